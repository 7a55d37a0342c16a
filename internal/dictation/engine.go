// Package dictation turns finalized speech segments into an Etherpad
// document. Segments are echoed live as they arrive; when a paragraph
// closes, the unsettled tail of the pad is punctuated and written back, and
// optionally translated into a second pad.
package dictation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/collectivat/mic2etherpad/internal/shortcut"
	"github.com/collectivat/mic2etherpad/internal/stt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

// ErrTranslation wraps translation failures that end the session.
var ErrTranslation = errors.New("translation failed")

// Document is the subset of the Etherpad API the engine needs.
type Document interface {
	GetText(ctx context.Context, padID string) (string, error)
	SetText(ctx context.Context, padID, text string) error
	AppendText(ctx context.Context, padID, text string) error
}

type Punctuator interface {
	Punctuate(ctx context.Context, text, lang string) (string, bool)
}

type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// TranslationTarget enables the translated pad.
type TranslationTarget struct {
	PadID      string
	Language   string
	Translator Translator
	// Passthrough publishes the untranslated text instead of failing.
	Passthrough bool
}

type Options struct {
	PadID               string
	Language            string
	NewlineAfterSegment bool
	Shortcuts           *shortcut.Table
	// Punctuator is nil when punctuation is not configured; closed
	// paragraphs then keep their live echo as final form.
	Punctuator  Punctuator
	Translation *TranslationTarget
	Observers   []Observer
}

type State int

const (
	StateIdle State = iota
	StateAccumulating
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulating:
		return "accumulating"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Engine owns the paragraph buffer. It is not safe for concurrent use; the
// session loop is its only caller.
type Engine struct {
	doc    Document
	opts   Options
	log    *slog.Logger
	tracer trace.Tracer

	state  State
	buffer []string
	ended  bool

	segments      metric.Int64Counter
	flushes       metric.Int64Counter
	punctFailures metric.Int64Counter
	echoFailures  metric.Int64Counter
	flushDuration metric.Float64Histogram
}

func NewEngine(doc Document, opts Options, log *slog.Logger) *Engine {
	e := &Engine{
		doc:    doc,
		opts:   opts,
		log:    log.With(slog.String("component", "dictation"), slog.String("pad_id", opts.PadID)),
		tracer: otel.Tracer("github.com/collectivat/mic2etherpad/dictation"),

		segments:      noop.Int64Counter{},
		flushes:       noop.Int64Counter{},
		punctFailures: noop.Int64Counter{},
		echoFailures:  noop.Int64Counter{},
		flushDuration: noop.Float64Histogram{},
	}
	if err := e.initMetrics(); err != nil {
		e.log.Warn("failed to initialize metrics", slogError(err))
	}
	return e
}

func (e *Engine) State() State { return e.state }

// Ended reports whether the END shortcut was recognized.
func (e *Engine) Ended() bool { return e.ended }

// Pending returns the segments of the paragraph being assembled.
func (e *Engine) Pending() []string { return append([]string(nil), e.buffer...) }

// Handle applies one finalized segment. The only error it returns is a
// translation failure when passthrough is disabled; document store failures
// are logged and the closed paragraph is flushed again on the next segment.
func (e *Engine) Handle(ctx context.Context, seg stt.Segment) error {
	if e.ended {
		return nil
	}
	switch {
	case seg.Text != "":
		if cmd, ok := e.opts.Shortcuts.Resolve(seg.Text); ok {
			e.command(ctx, cmd)
		} else {
			e.accept(ctx, seg.Text)
		}
	case e.state == StateAccumulating:
		e.log.Debug("paragraph closed by silence", slog.Int("segments", len(e.buffer)))
		e.state = StateClosed
	}
	return e.settle(ctx)
}

func (e *Engine) accept(ctx context.Context, text string) {
	e.log.Info("segment recognized", slog.String("text", text))
	e.buffer = append(e.buffer, text)
	if e.state == StateIdle {
		e.state = StateAccumulating
	}
	e.segments.Add(ctx, 1)

	sep := " "
	if e.opts.NewlineAfterSegment {
		sep = "\n"
	}
	e.echo(ctx, text+sep)
	e.notify(ctx, Event{Kind: EventSegment, Text: text})
}

func (e *Engine) command(ctx context.Context, cmd shortcut.Command) {
	e.log.Info("shortcut recognized", slog.String("command", string(cmd)))
	switch cmd {
	case shortcut.CommandNewline:
		e.echo(ctx, "\n")
		e.close()
	case shortcut.CommandEnd:
		e.ended = true
		e.close()
	}
	e.notify(ctx, Event{Kind: EventCommand, Command: cmd})
}

// close ends the current paragraph. An empty paragraph has nothing to
// flush and goes straight back to idle.
func (e *Engine) close() {
	if len(e.buffer) == 0 {
		e.state = StateIdle
		return
	}
	e.state = StateClosed
}

func (e *Engine) echo(ctx context.Context, text string) {
	if err := e.doc.AppendText(ctx, e.opts.PadID, text); err != nil {
		e.echoFailures.Add(ctx, 1)
		e.log.Warn("live echo failed", slog.String("text", text), slogError(err))
	}
}

func (e *Engine) settle(ctx context.Context) error {
	if e.state != StateClosed {
		return nil
	}
	if e.opts.Punctuator == nil {
		e.notify(ctx, Event{Kind: EventParagraph, Text: strings.Join(e.buffer, " ")})
		e.reset()
		return nil
	}
	if err := e.flush(ctx); err != nil {
		if errors.Is(err, ErrTranslation) {
			return err
		}
		e.log.Warn("flush failed, paragraph kept for retry", slogError(err))
		return nil
	}
	e.reset()
	return nil
}

func (e *Engine) reset() {
	e.buffer = e.buffer[:0]
	e.state = StateIdle
}

// flush rewrites the unsettled tail of the pad with its punctuated form.
func (e *Engine) flush(ctx context.Context) (err error) {
	ctx, span := e.tracer.Start(ctx, "dictation.flush",
		trace.WithAttributes(attribute.String("pad_id", e.opts.PadID)))
	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		e.flushDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	}()

	current, err := e.doc.GetText(ctx, e.opts.PadID)
	if err != nil {
		return fmt.Errorf("read pad %s: %w", e.opts.PadID, err)
	}
	settled, pending := split(current)
	normalized := NormalizePending(pending)
	span.SetAttributes(attribute.Int("settle_index", len(settled)))

	if normalized == "" {
		composed := Compose(settled, "")
		if composed == current {
			e.log.Debug("nothing pending, pad unchanged")
			return nil
		}
		if err := e.doc.SetText(ctx, e.opts.PadID, composed); err != nil {
			return fmt.Errorf("write pad %s: %w", e.opts.PadID, err)
		}
		return nil
	}

	punctuated, ok := e.opts.Punctuator.Punctuate(ctx, normalized, e.opts.Language)
	if ok && strings.TrimSpace(punctuated) == "" {
		ok = false
	}
	if !ok {
		e.punctFailures.Add(ctx, 1)
		e.log.Warn("punctuation unavailable, publishing raw paragraph")
		punctuated = normalized
	}
	if err := e.doc.SetText(ctx, e.opts.PadID, Compose(settled, punctuated)); err != nil {
		return fmt.Errorf("write pad %s: %w", e.opts.PadID, err)
	}
	e.flushes.Add(ctx, 1, metric.WithAttributes(attribute.Bool("punctuated", ok)))
	e.log.Info("paragraph flushed",
		slog.Int("settle_index", len(settled)),
		slog.Bool("punctuated", ok),
		slog.String("text", punctuated))

	ev := Event{Kind: EventParagraph, Text: normalized, Punctuated: punctuated, PunctuationOK: ok}
	if e.opts.Translation != nil {
		translated, err := e.translate(ctx, punctuated)
		if err != nil {
			return err
		}
		ev.Translated = translated
	}
	e.notify(ctx, ev)
	return nil
}

// translate appends the translation of text to the translated pad. The
// translated pad has no live echo, so it is extended without settling.
func (e *Engine) translate(ctx context.Context, text string) (string, error) {
	target := e.opts.Translation
	translated, err := target.Translator.Translate(ctx, text, e.opts.Language, target.Language)
	if err != nil {
		if !target.Passthrough {
			return "", fmt.Errorf("%w: %s->%s: %v", ErrTranslation, e.opts.Language, target.Language, err)
		}
		e.log.Warn("translation failed, publishing untranslated text",
			slog.String("target", target.Language), slogError(err))
		translated = text
	}

	existing, err := e.doc.GetText(ctx, target.PadID)
	if err != nil {
		e.log.Warn("failed to read translated pad", slog.String("translated_pad_id", target.PadID), slogError(err))
		return translated, nil
	}
	composed := Compose(strings.TrimSpace(existing), translated)
	if err := e.doc.SetText(ctx, target.PadID, composed); err != nil {
		e.log.Warn("failed to write translated pad", slog.String("translated_pad_id", target.PadID), slogError(err))
	}
	return translated, nil
}

func (e *Engine) notify(ctx context.Context, ev Event) {
	ev.PadID = e.opts.PadID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	for _, obs := range e.opts.Observers {
		if err := obs.Observe(ctx, ev); err != nil {
			e.log.Warn("observer failed", slog.String("event", string(ev.Kind)), slogError(err))
		}
	}
}

func (e *Engine) initMetrics() error {
	meter := otel.Meter("github.com/collectivat/mic2etherpad/dictation")
	var err error
	if e.segments, err = meter.Int64Counter("mic2ether.segments",
		metric.WithDescription("Transcribed segments echoed to the pad")); err != nil {
		return err
	}
	if e.flushes, err = meter.Int64Counter("mic2ether.flushes",
		metric.WithDescription("Paragraphs rewritten with punctuation")); err != nil {
		return err
	}
	if e.punctFailures, err = meter.Int64Counter("mic2ether.punctuation.failures",
		metric.WithDescription("Flushes that fell back to unpunctuated text")); err != nil {
		return err
	}
	if e.echoFailures, err = meter.Int64Counter("mic2ether.echo.failures",
		metric.WithDescription("Live echo appends rejected by the pad")); err != nil {
		return err
	}
	e.flushDuration, err = meter.Float64Histogram("mic2ether.flush.duration",
		metric.WithDescription("Flush latency"), metric.WithUnit("ms"))
	return err
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
