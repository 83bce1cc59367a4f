// Command vision-stub serves a minimal OpenAI-compatible chat endpoint that
// answers vision OCR requests with a fixed transcript. It lets the vision
// engine be exercised offline.
package main

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"messages"`
}

// hasImage reports whether any message carries an image_url part.
func (r chatRequest) hasImage() bool {
	for _, m := range r.Messages {
		var parts []struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(m.Content, &parts) != nil {
			continue
		}
		for _, p := range parts {
			if p.Type == string(openai.ChatMessagePartTypeImageURL) {
				return true
			}
		}
	}
	return false
}

func newMux(model, transcript string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ModelsList{Models: []openai.Model{{ID: model, Object: "model"}}})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}
		if !req.hasImage() {
			http.Error(w, "expected an image_url part", http.StatusBadRequest)
			return
		}
		content := transcript
		if strings.TrimSpace(content) == "" {
			content = "NO_TEXT"
		}
		log.Debug().Str("model", req.Model).Int("chars", len([]rune(content))).Msg("vision request")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Object: "chat.completion",
			Model:  model,
			Choices: []openai.ChatCompletionChoice{{
				Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
				FinishReason: openai.FinishReasonStop,
			}},
		})
	})
	return mux
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	model := os.Getenv("MODEL_ID")
	if strings.TrimSpace(model) == "" {
		model = "test-vision"
	}
	addr := os.Getenv("ADDR")
	if strings.TrimSpace(addr) == "" {
		addr = ":8081"
	}
	transcript := os.Getenv("STUB_TRANSCRIPT")
	if p := os.Getenv("STUB_TRANSCRIPT_FILE"); p != "" {
		b, err := os.ReadFile(p)
		if err != nil {
			log.Fatal().Err(err).Str("path", p).Msg("read transcript")
		}
		transcript = string(b)
	}

	log.Info().Str("addr", addr).Str("model", model).Msg("vision-stub listening")
	if err := http.ListenAndServe(addr, newMux(model, transcript)); err != nil {
		log.Fatal().Err(err).Msg("serve")
	}
}
