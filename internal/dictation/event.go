package dictation

import (
	"context"
	"time"

	"github.com/collectivat/mic2etherpad/internal/shortcut"
)

type EventKind string

const (
	EventSegment   EventKind = "segment"
	EventCommand   EventKind = "command"
	EventParagraph EventKind = "paragraph"
)

// Event reports what the engine did with a segment. Paragraph events carry
// the pending text that was sent for punctuation and what came back.
type Event struct {
	Kind          EventKind
	PadID         string
	Text          string
	Command       shortcut.Command
	Punctuated    string
	PunctuationOK bool
	Translated    string
	Timestamp     time.Time
}

// Final is the text a paragraph ended up with in the document.
func (e Event) Final() string {
	if e.Punctuated != "" {
		return e.Punctuated
	}
	return e.Text
}

// Observer receives engine events in order, on the session loop.
type Observer interface {
	Observe(ctx context.Context, ev Event) error
}

type ObserverFunc func(ctx context.Context, ev Event) error

func (f ObserverFunc) Observe(ctx context.Context, ev Event) error { return f(ctx, ev) }
