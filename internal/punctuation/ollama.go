package punctuation

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

const ollamaSystemPrompt = "You restore punctuation and capitalization of dictated text. " +
	"Reply with the corrected text only. Do not translate, reorder, add or remove words."

type ollamaPunctuator struct {
	endpoint string
	model    string
	http     *http.Client
	log      *slog.Logger
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system,omitempty"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
}

type ollamaStreamResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// NewOllama punctuates through a local Ollama model.
func NewOllama(endpoint, model string, httpClient *http.Client, log *slog.Logger) Punctuator {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ollamaPunctuator{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		http:     httpClient,
		log:      log.With(slog.String("component", "punctuation"), slog.String("backend", "ollama")),
	}
}

func (o *ollamaPunctuator) Punctuate(ctx context.Context, text, lang string) (string, bool) {
	result, err := o.generate(ctx, text, lang)
	if err != nil {
		o.log.Warn("ollama punctuation failed", slog.String("model", o.model), slogError(err))
		return text, false
	}
	result = strings.TrimSpace(result)
	if result == "" {
		o.log.Warn("ollama returned empty punctuation", slog.String("model", o.model))
		return text, false
	}
	return result, true
}

func (o *ollamaPunctuator) generate(ctx context.Context, text, lang string) (string, error) {
	payload := ollamaRequest{
		Model:   o.model,
		Prompt:  fmt.Sprintf("Language: %s\nText: %s", lang, text),
		System:  ollamaSystemPrompt,
		Stream:  true,
		Options: ollamaOptions{Temperature: 0},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("ollama returned status %s", resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	var accumulated strings.Builder
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var chunk ollamaStreamResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return "", err
		}
		accumulated.WriteString(chunk.Response)
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return accumulated.String(), nil
}
