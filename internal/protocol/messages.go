package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/collectivat/mic2etherpad/internal/dictation"
)

// Segment is a transcribed segment echoed to the pad.
type Segment struct {
	SessionID string    `json:"session_id"`
	PadID     string    `json:"pad_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Command is a recognized spoken shortcut.
type Command struct {
	SessionID string    `json:"session_id"`
	PadID     string    `json:"pad_id"`
	Command   string    `json:"command"`
	Timestamp time.Time `json:"timestamp"`
}

// Paragraph is published after a paragraph is committed to the pad.
type Paragraph struct {
	SessionID     string    `json:"session_id"`
	PadID         string    `json:"pad_id"`
	Text          string    `json:"text"`
	Punctuated    string    `json:"punctuated,omitempty"`
	PunctuationOK bool      `json:"punctuation_ok"`
	Translated    string    `json:"translated,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

const (
	SubjectSegment   = "dictation.segment"
	SubjectCommand   = "dictation.command"
	SubjectParagraph = "dictation.paragraph"
)

// Encode converts a dictation event into its subject and JSON message.
func Encode(sessionID string, ev dictation.Event) (string, []byte, error) {
	var (
		subject string
		msg     any
	)
	switch ev.Kind {
	case dictation.EventSegment:
		subject = SubjectSegment
		msg = Segment{SessionID: sessionID, PadID: ev.PadID, Text: ev.Text, Timestamp: ev.Timestamp}
	case dictation.EventCommand:
		subject = SubjectCommand
		msg = Command{SessionID: sessionID, PadID: ev.PadID, Command: string(ev.Command), Timestamp: ev.Timestamp}
	case dictation.EventParagraph:
		subject = SubjectParagraph
		msg = Paragraph{
			SessionID:     sessionID,
			PadID:         ev.PadID,
			Text:          ev.Text,
			Punctuated:    ev.Punctuated,
			PunctuationOK: ev.PunctuationOK,
			Translated:    ev.Translated,
			Timestamp:     ev.Timestamp,
		}
	default:
		return "", nil, fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", nil, err
	}
	return subject, data, nil
}
