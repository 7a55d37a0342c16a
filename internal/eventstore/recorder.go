package eventstore

import (
	"context"
	"strings"

	"github.com/collectivat/mic2etherpad/internal/dictation"
	"github.com/collectivat/mic2etherpad/internal/protocol"
)

// Recorder appends dictation events to the timeline of one session.
type Recorder struct {
	store     *Store
	sessionID string
}

// NewRecorder registers the session row and returns its recorder.
func NewRecorder(ctx context.Context, store *Store, sessionID, padID, language string) (*Recorder, error) {
	if err := store.AppendSession(ctx, sessionID, padID, language); err != nil {
		return nil, err
	}
	return &Recorder{store: store, sessionID: sessionID}, nil
}

func (r *Recorder) Observe(ctx context.Context, ev dictation.Event) error {
	_, payload, err := protocol.Encode(r.sessionID, ev)
	if err != nil {
		return err
	}
	text := ev.Final()
	if ev.Kind == dictation.EventCommand {
		text = string(ev.Command)
	}
	return r.store.AppendEvent(ctx, Event{
		SessionID: r.sessionID,
		Kind:      string(ev.Kind),
		Text:      text,
		Payload:   payload,
		CreatedAt: ev.Timestamp,
	})
}

// Transcript rebuilds the paragraphs of a recorded session.
func (s *Store) Transcript(ctx context.Context, sessionID string) (string, error) {
	events, err := s.ListSessionEvents(ctx, sessionID, -1)
	if err != nil {
		return "", err
	}
	var paragraphs []string
	for _, e := range events {
		if e.Kind == string(dictation.EventParagraph) {
			paragraphs = append(paragraphs, e.Text)
		}
	}
	return strings.Join(paragraphs, "\n"), nil
}
