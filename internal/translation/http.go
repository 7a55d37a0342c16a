package translation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type httpTranslator struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

type translateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type translateResponse struct {
	TranslatedText string `json:"translatedText"`
	Error          string `json:"error"`
}

// NewHTTPTranslator talks to a LibreTranslate compatible /translate endpoint.
func NewHTTPTranslator(endpoint, apiKey string, httpClient *http.Client) Translator {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &httpTranslator{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		http:     httpClient,
	}
}

func (h *httpTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	body, err := json.Marshal(translateRequest{
		Q:      text,
		Source: source,
		Target: target,
		Format: "text",
		APIKey: h.apiKey,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint+"/translate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("translate request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read translate response: %w", err)
	}
	var out translateResponse
	decodeErr := json.Unmarshal(data, &out)
	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && out.Error != "" {
			return "", fmt.Errorf("translate %s->%s: %s: %s", source, target, resp.Status, out.Error)
		}
		return "", fmt.Errorf("translate %s->%s: %s", source, target, resp.Status)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode translate response: %w", decodeErr)
	}
	if strings.TrimSpace(out.TranslatedText) == "" {
		return "", fmt.Errorf("translate %s->%s: empty translation", source, target)
	}
	return out.TranslatedText, nil
}
