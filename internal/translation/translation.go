// Package translation turns punctuated paragraphs into the target language.
package translation

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/collectivat/mic2etherpad/internal/config"
)

// Translator translates text from source to target language.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// New builds the backend selected by cfg.Mode.
func New(cfg config.TranslationConfig, log *slog.Logger) (Translator, error) {
	logger := log.With(slog.String("component", "translation"), slog.String("backend", cfg.Mode))
	switch cfg.Mode {
	case "", "http":
		httpClient := &http.Client{}
		if cfg.TimeoutMS > 0 {
			httpClient.Timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
		}
		return NewHTTPTranslator(cfg.Endpoint, cfg.APIKey, httpClient), nil
	case "exec":
		return NewExecTranslator(cfg.Command)
	case "mock":
		logger.Warn("using mock translator")
		return NewMockTranslator(), nil
	default:
		return nil, fmt.Errorf("unsupported translation mode %q", cfg.Mode)
	}
}
