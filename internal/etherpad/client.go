// Package etherpad talks to the Etherpad HTTP API. Pads are treated as plain
// text blobs: this process is the only writer.
package etherpad

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/collectivat/mic2etherpad/internal/config"
)

// APIError is a response whose envelope code is not 0.
type APIError struct {
	Method  string
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("etherpad %s: code %d: %s", e.Method, e.Code, e.Message)
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type Client struct {
	baseURL string
	apiKey  string
	version string
	http    *http.Client
	log     *slog.Logger
}

func New(cfg config.EtherpadConfig, log *slog.Logger) *Client {
	httpClient := &http.Client{}
	if cfg.TimeoutMS > 0 {
		httpClient.Timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		version: cfg.APIVersion,
		http:    httpClient,
		log:     log.With(slog.String("component", "etherpad")),
	}
}

// PadURL is the browser address of a pad.
func (c *Client) PadURL(padID string) string {
	return c.baseURL + "/p/" + url.PathEscape(padID)
}

func (c *Client) ListAllPads(ctx context.Context) ([]string, error) {
	var data struct {
		PadIDs []string `json:"padIDs"`
	}
	if err := c.call(ctx, "listAllPads", url.Values{}, &data); err != nil {
		return nil, err
	}
	return data.PadIDs, nil
}

func (c *Client) CreatePad(ctx context.Context, padID, text string) error {
	return c.call(ctx, "createPad", url.Values{"padID": {padID}, "text": {text}}, nil)
}

func (c *Client) SetText(ctx context.Context, padID, text string) error {
	return c.call(ctx, "setText", url.Values{"padID": {padID}, "text": {text}}, nil)
}

func (c *Client) AppendText(ctx context.Context, padID, text string) error {
	return c.call(ctx, "appendText", url.Values{"padID": {padID}, "text": {text}}, nil)
}

func (c *Client) GetText(ctx context.Context, padID string) (string, error) {
	var data struct {
		Text string `json:"text"`
	}
	if err := c.call(ctx, "getText", url.Values{"padID": {padID}}, &data); err != nil {
		return "", err
	}
	return data.Text, nil
}

// Reset empties padID, creating it when it does not exist yet. It reports
// whether the pad was created.
func (c *Client) Reset(ctx context.Context, padID string) (bool, error) {
	pads, err := c.ListAllPads(ctx)
	if err != nil {
		return false, err
	}
	for _, id := range pads {
		if id == padID {
			c.log.Warn("clearing existing pad", slog.String("pad_id", padID))
			return false, c.SetText(ctx, padID, "")
		}
	}
	c.log.Info("creating pad", slog.String("pad_id", padID))
	return true, c.CreatePad(ctx, padID, "")
}

func (c *Client) call(ctx context.Context, method string, params url.Values, out any) error {
	params.Set("apikey", c.apiKey)
	endpoint := fmt.Sprintf("%s/api/%s/%s", c.baseURL, c.version, method)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("etherpad %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("etherpad %s: read response: %w", method, err)
	}
	if resp.StatusCode >= 300 && len(body) == 0 {
		return fmt.Errorf("etherpad %s returned status %s", method, resp.Status)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("etherpad %s: decode response (status %s): %w", method, resp.Status, err)
	}
	if env.Code != 0 {
		return &APIError{Method: method, Code: env.Code, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("etherpad %s: decode data: %w", method, err)
		}
	}
	return nil
}
