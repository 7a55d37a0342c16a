package punctuation

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

type punkProse struct {
	endpoint string
	token    string
	http     *http.Client
	log      *slog.Logger
}

type punkProseRequest struct {
	Source string `json:"source"`
	Type   string `json:"type"`
	Lang   string `json:"lang"`
	Recase bool   `json:"recase"`
	Token  string `json:"token"`
}

type punkProseResponse struct {
	Result string `json:"result"`
}

type punkProseError struct {
	Detail any `json:"detail"`
}

// NewPunkProse returns a client for the punkProse recasing service. No
// retries are attempted; timeouts come from httpClient only.
func NewPunkProse(endpoint, token string, httpClient *http.Client, log *slog.Logger) Punctuator {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &punkProse{
		endpoint: endpoint,
		token:    token,
		http:     httpClient,
		log:      log.With(slog.String("component", "punctuation"), slog.String("backend", "punkprose")),
	}
}

func (p *punkProse) Punctuate(ctx context.Context, text, lang string) (string, bool) {
	body, err := json.Marshal(punkProseRequest{
		Source: text,
		Type:   "text",
		Lang:   lang,
		Recase: true,
		Token:  p.token,
	})
	if err != nil {
		p.log.Warn("failed to encode punctuation request", slogError(err))
		return text, false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		p.log.Warn("failed to build punctuation request", slogError(err))
		return text, false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		p.log.Warn("punctuation request failed", slog.String("url", p.endpoint), slogError(err))
		return text, false
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		p.log.Warn("failed to read punctuation response", slogError(err))
		return text, false
	}
	if resp.StatusCode != http.StatusOK {
		attrs := []any{slog.String("status", resp.Status)}
		var detail punkProseError
		if json.Unmarshal(data, &detail) == nil && detail.Detail != nil {
			attrs = append(attrs, slog.Any("detail", detail.Detail))
		}
		p.log.Warn("punctuation service returned an error", attrs...)
		return text, false
	}

	var out punkProseResponse
	if err := json.Unmarshal(data, &out); err != nil {
		p.log.Warn("failed to decode punctuation response", slogError(err))
		return text, false
	}
	if strings.TrimSpace(out.Result) == "" {
		p.log.Warn("punctuation service returned an empty result")
		return text, false
	}
	return out.Result, true
}
