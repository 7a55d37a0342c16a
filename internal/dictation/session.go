package dictation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/collectivat/mic2etherpad/internal/audio"
	"github.com/collectivat/mic2etherpad/internal/stt"
)

// FrameWriter receives every frame the session consumes, e.g. a WAV
// recorder.
type FrameWriter interface {
	Write(frame audio.Frame) error
}

// Session is the single processing loop: it pulls frames, decodes them and
// drives the engine. All document and network calls happen on this loop.
type Session struct {
	engine   *Engine
	decoder  stt.Decoder
	recorder FrameWriter
	log      *slog.Logger

	frames   int64
	segments int64
}

// NewSession wires a decoder to an engine. recorder may be nil.
func NewSession(engine *Engine, decoder stt.Decoder, recorder FrameWriter, log *slog.Logger) *Session {
	return &Session{
		engine:   engine,
		decoder:  decoder,
		recorder: recorder,
		log:      log.With(slog.String("component", "session"), slog.String("decoder", decoder.Name())),
	}
}

// Run consumes frames until the END shortcut, ctx cancellation or the frame
// channel closing, all of which return nil. Decoder failures and fatal
// translation failures are returned.
func (s *Session) Run(ctx context.Context, frames <-chan audio.Frame) error {
	defer func() {
		s.log.Info("session finished",
			slog.Int64("frames", s.frames),
			slog.Int64("segments", s.segments),
			slog.String("state", s.engine.State().String()))
	}()

	for {
		if ctx.Err() != nil {
			s.log.Info("session interrupted")
			return nil
		}
		select {
		case <-ctx.Done():
			s.log.Info("session interrupted")
			return nil
		case frame, ok := <-frames:
			if !ok {
				s.log.Info("audio input closed")
				return nil
			}
			if err := s.process(ctx, frame); err != nil {
				return err
			}
			if s.engine.Ended() {
				s.log.Info("end of dictation requested")
				return nil
			}
		}
	}
}

func (s *Session) process(ctx context.Context, frame audio.Frame) error {
	s.frames++
	if s.recorder != nil {
		if err := s.recorder.Write(frame); err != nil {
			s.log.Warn("recording disabled after write failure", slogError(err))
			s.recorder = nil
		}
	}
	seg, ok, err := s.decoder.Accept(frame)
	if err != nil {
		return fmt.Errorf("decode audio: %w", err)
	}
	if !ok {
		return nil
	}
	s.segments++
	return s.engine.Handle(ctx, seg)
}
