package ocr

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// DefaultLanguage is Urdu.
var DefaultLanguage = language.Urdu

// ParseLanguage parses a BCP 47 tag such as "ur" or "ur-PK". An empty string
// yields DefaultLanguage.
func ParseLanguage(s string) (language.Tag, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultLanguage, nil
	}
	tag, err := language.Parse(s)
	if err != nil {
		return language.Und, fmt.Errorf("ocr language %q: %w", s, err)
	}
	return tag, nil
}

// TesseractCode maps a language tag to the traineddata name Tesseract uses,
// which is the ISO 639-3 code except for Chinese.
func TesseractCode(tag language.Tag) string {
	base, _ := tag.Base()
	if base.String() == "zh" {
		if script, _ := tag.Script(); script.String() == "Hant" {
			return "chi_tra"
		}
		return "chi_sim"
	}
	return base.ISO3()
}

// DisplayName returns the English name of the language, e.g. "Urdu".
func DisplayName(tag language.Tag) string {
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return tag.String()
}
