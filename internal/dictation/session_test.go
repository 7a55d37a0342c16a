package dictation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/collectivat/mic2etherpad/internal/audio"
	"github.com/collectivat/mic2etherpad/internal/stt"
)

type errDecoder struct{}

func (errDecoder) Accept(audio.Frame) (stt.Segment, bool, error) {
	return stt.Segment{}, false, errors.New("model crashed")
}
func (errDecoder) Close() {}
func (errDecoder) Name() string { return "broken" }

type countingRecorder struct{ frames int }

func (r *countingRecorder) Write(audio.Frame) error {
	r.frames++
	return nil
}

func framesOf(n int, closeAfter bool) chan audio.Frame {
	ch := make(chan audio.Frame, n)
	for i := 0; i < n; i++ {
		ch <- make(audio.Frame, 160)
	}
	if closeAfter {
		close(ch)
	}
	return ch
}

func TestSessionStopsOnEnd(t *testing.T) {
	doc := newFakeDoc()
	punct := &fakePunctuator{}
	engine := NewEngine(doc, Options{
		PadID:      "PAD",
		Language:   "en",
		Shortcuts:  mustTable(t, map[string]string{"END": "stop dictation"}),
		Punctuator: punct,
	}, newLogger())
	decoder := stt.NewScriptedDecoder([]string{"hello", "world", "stop dictation", "never", ""}, 1)
	recorder := &countingRecorder{}
	session := NewSession(engine, decoder, recorder, newLogger())

	frames := framesOf(10, false)
	if err := session.Run(context.Background(), frames); err != nil {
		t.Fatalf("run: %v", err)
	}
	if recorder.frames != 3 {
		t.Fatalf("expected 3 frames consumed, got %d", recorder.frames)
	}
	if len(frames) != 7 {
		t.Fatalf("frames after END must not be processed, %d left", len(frames))
	}
	if decoder.Remaining() != 2 {
		t.Fatalf("expected 2 scripted segments left, got %d", decoder.Remaining())
	}
	if len(punct.calls) != 1 || doc.pads["PAD"] != "Hello world.\n\n" {
		t.Fatalf("unexpected flush calls=%v pad=%q", punct.calls, doc.pads["PAD"])
	}
}

func TestSessionEndsWhenFramesClose(t *testing.T) {
	doc := newFakeDoc()
	engine := NewEngine(doc, Options{PadID: "PAD"}, newLogger())
	decoder := stt.NewScriptedDecoder([]string{"one", "two"}, 2)
	session := NewSession(engine, decoder, nil, newLogger())

	if err := session.Run(context.Background(), framesOf(4, true)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if doc.pads["PAD"] != "one two " {
		t.Fatalf("unexpected pad %q", doc.pads["PAD"])
	}
}

func TestSessionInterrupt(t *testing.T) {
	engine := NewEngine(newFakeDoc(), Options{PadID: "PAD"}, newLogger())
	session := NewSession(engine, stt.NewScriptedDecoder(nil, 1), nil, newLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- session.Run(ctx, make(chan audio.Frame)) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("interrupt must not be an error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop after cancel")
	}
}

func TestSessionCancelledSkipsReadyFrames(t *testing.T) {
	doc := newFakeDoc()
	engine := NewEngine(doc, Options{PadID: "PAD"}, newLogger())
	recorder := &countingRecorder{}
	session := NewSession(engine, stt.NewScriptedDecoder([]string{"hello"}, 1), recorder, newLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 20; i++ {
		if err := session.Run(ctx, framesOf(1, false)); err != nil {
			t.Fatalf("run: %v", err)
		}
	}
	if recorder.frames != 0 || doc.pads["PAD"] != "" {
		t.Fatalf("frames processed after cancel: frames=%d pad=%q", recorder.frames, doc.pads["PAD"])
	}
}

func TestSessionDecoderError(t *testing.T) {
	engine := NewEngine(newFakeDoc(), Options{PadID: "PAD"}, newLogger())
	session := NewSession(engine, errDecoder{}, nil, newLogger())
	if err := session.Run(context.Background(), framesOf(1, true)); err == nil {
		t.Fatal("expected decoder error")
	}
}

func TestSessionTranslationFailure(t *testing.T) {
	engine := NewEngine(newFakeDoc(), Options{
		PadID:       "PAD",
		Language:    "ca",
		Punctuator:  &fakePunctuator{},
		Translation: &TranslationTarget{PadID: "PAD_en", Language: "en", Translator: failingTranslator{}},
	}, newLogger())
	session := NewSession(engine, stt.NewScriptedDecoder([]string{"bon dia", ""}, 1), nil, newLogger())
	err := session.Run(context.Background(), framesOf(5, true))
	if !errors.Is(err, ErrTranslation) {
		t.Fatalf("expected ErrTranslation, got %v", err)
	}
}
