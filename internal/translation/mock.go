package translation

import (
	"context"
	"strings"
)

type mockTranslator struct{}

// NewMockTranslator tags the text with the target language.
func NewMockTranslator() Translator { return mockTranslator{} }

func (mockTranslator) Translate(ctx context.Context, text, _, target string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "[" + target + "] " + strings.TrimSpace(text), nil
}
