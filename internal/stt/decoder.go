package stt

import "github.com/collectivat/mic2etherpad/internal/audio"

// Segment is a finalized unit of recognized speech. Empty Text marks a
// silence boundary.
type Segment struct {
	Text  string
	Final bool
}

// Decoder wraps a streaming recognizer. Accept feeds one frame and reports
// whether the recognizer closed an utterance with it.
type Decoder interface {
	Accept(frame audio.Frame) (Segment, bool, error)
	Close()
	Name() string
}
