package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/text/language"

	"github.com/hyperifyio/poemscout/internal/llm"
)

const noTextMarker = "NO_TEXT"

// Vision recognizes text with an OpenAI-compatible vision model.
type Vision struct {
	Client    llm.Client
	Model     string
	Language  language.Tag
	MaxTokens int
}

func (v *Vision) Name() string { return "vision" }

func (v *Vision) prompt() string {
	lang := DisplayName(v.Language)
	return fmt.Sprintf("Transcribe the %s text in this image exactly as written, keeping the original script and line breaks. "+
		"Do not translate, transliterate, explain or add anything. "+
		"If the image contains no %s text, answer with %s.", lang, lang, noTextMarker)
}

func (v *Vision) Recognize(ctx context.Context, img Image) (string, error) {
	if v.Client == nil || strings.TrimSpace(v.Model) == "" {
		return "", ErrEngineUnavailable
	}
	maxTokens := v.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	resp, err := v.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       v.Model,
		MaxTokens:   maxTokens,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are an OCR engine. You output only the text you see."},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: v.prompt()},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
						URL:    llm.ImageDataURL(img.MIMEType(), img.Data),
						Detail: openai.ImageURLDetailHigh,
					}},
				},
			},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices returned")
	}
	return cleanTranscript(resp.Choices[0].Message.Content), nil
}

// cleanTranscript drops code fences and the no-text marker models sometimes
// wrap their answer in.
func cleanTranscript(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	s = strings.TrimSpace(s)
	if strings.EqualFold(strings.Trim(s, ".` "), noTextMarker) {
		return ""
	}
	return s
}
