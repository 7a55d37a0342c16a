// Package punctuation restores punctuation and casing of recognized text.
// Every backend falls back to the input text on failure.
package punctuation

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/collectivat/mic2etherpad/internal/config"
)

// Punctuator returns the punctuated text and true, or the input text and
// false when the backend could not be used.
type Punctuator interface {
	Punctuate(ctx context.Context, text, lang string) (string, bool)
}

// New builds the backend selected by cfg.Mode. Callers check
// config.PunctuationEnabled before asking for one.
func New(cfg config.PunctuationConfig, log *slog.Logger) (Punctuator, error) {
	httpClient := &http.Client{}
	if cfg.TimeoutMS > 0 {
		httpClient.Timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	}
	switch cfg.Mode {
	case "", "punkprose":
		return NewPunkProse(cfg.Endpoint, cfg.Token, httpClient, log), nil
	case "ollama":
		return NewOllama(cfg.Endpoint, cfg.Model, httpClient, log), nil
	default:
		return nil, fmt.Errorf("unsupported punctuation mode %q", cfg.Mode)
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
