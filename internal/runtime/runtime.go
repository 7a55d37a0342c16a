package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/collectivat/mic2etherpad/internal/audio"
	"github.com/collectivat/mic2etherpad/internal/bus"
	"github.com/collectivat/mic2etherpad/internal/config"
	"github.com/collectivat/mic2etherpad/internal/dictation"
	"github.com/collectivat/mic2etherpad/internal/etherpad"
	"github.com/collectivat/mic2etherpad/internal/eventstore"
	"github.com/collectivat/mic2etherpad/internal/livefeed"
	"github.com/collectivat/mic2etherpad/internal/models"
	"github.com/collectivat/mic2etherpad/internal/natsserver"
	"github.com/collectivat/mic2etherpad/internal/punctuation"
	"github.com/collectivat/mic2etherpad/internal/shortcut"
	"github.com/collectivat/mic2etherpad/internal/stt"
	"github.com/collectivat/mic2etherpad/internal/transcript"
	"github.com/collectivat/mic2etherpad/internal/translation"
	"github.com/google/uuid"
)

// Runtime wires the dictation session to its collaborators and owns their
// lifetimes.
type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	sessionID  string
	httpServer *http.Server
	feed       *livefeed.Hub
	bus        *bus.Client
	metricsSrv *http.Server
	ready      atomic.Bool
	wg         sync.WaitGroup
	closers    []func()
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:       cfg,
		logger:    logger,
		sessionID: uuid.NewString(),
	}
}

func (r *Runtime) SessionID() string { return r.sessionID }

// Run sets everything up, dictates until END, interrupt or end of input, and
// tears down in reverse order. Setup failures are returned as errors.
func (r *Runtime) Run(ctx context.Context) error {
	defer r.shutdown()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(ctx, r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.onClose(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slogError(err))
		}
	})
	if r.cfg.HTTP.Enabled {
		r.feed = livefeed.NewHub(r.sessionID, r.logger)
		r.onClose(r.feed.Close)
	}
	r.startHTTP(metricsHandler)

	pad := etherpad.New(r.cfg.Etherpad, r.logger)
	opts, err := r.engineOptions(ctx, pad)
	if err != nil {
		return err
	}

	decoder, frames, recorder, err := r.openInput(ctx)
	if err != nil {
		return err
	}

	engine := dictation.NewEngine(pad, opts, r.logger)
	session := dictation.NewSession(engine, decoder, recorder, r.logger)

	r.ready.Store(true)
	r.logger.Info("dictation started",
		slog.String("session_id", r.sessionID),
		slog.String("pad_url", pad.PadURL(opts.PadID)),
		slog.Bool("punctuation", opts.Punctuator != nil),
		slog.Bool("translation", opts.Translation != nil),
		slog.Int("shortcuts", opts.Shortcuts.Len()))

	err = session.Run(ctx, frames)
	r.ready.Store(false)
	return err
}

// engineOptions resets the pads and builds the optional pipeline branches.
func (r *Runtime) engineOptions(ctx context.Context, pad *etherpad.Client) (dictation.Options, error) {
	cfg := r.cfg
	opts := dictation.Options{
		PadID:               cfg.Etherpad.PadID,
		Language:            cfg.STT.Language,
		NewlineAfterSegment: cfg.Dictation.NewlineAfterSegment,
		Shortcuts:           r.loadShortcuts(),
	}

	if err := r.resetPad(ctx, pad, opts.PadID); err != nil {
		return opts, err
	}

	if cfg.PunctuationEnabled() {
		p, err := punctuation.New(cfg.Punctuation, r.logger)
		if err != nil {
			return opts, err
		}
		opts.Punctuator = p
	} else {
		r.logger.Info("punctuation disabled, paragraphs keep their raw echo")
	}

	if cfg.Translation.Enabled() {
		t, err := translation.New(cfg.Translation, r.logger)
		if err != nil {
			return opts, err
		}
		target := &dictation.TranslationTarget{
			PadID:       cfg.Etherpad.PadID + "_" + cfg.Translation.TargetLanguage,
			Language:    cfg.Translation.TargetLanguage,
			Translator:  t,
			Passthrough: cfg.Translation.OnError == "passthrough",
		}
		if err := r.resetPad(ctx, pad, target.PadID); err != nil {
			return opts, err
		}
		r.logger.Info("translated pad ready", slog.String("pad_url", pad.PadURL(target.PadID)))
		opts.Translation = target
	}

	observers, err := r.observers(ctx)
	if err != nil {
		return opts, err
	}
	opts.Observers = observers
	return opts, nil
}

func (r *Runtime) resetPad(ctx context.Context, pad *etherpad.Client, padID string) error {
	created, err := pad.Reset(ctx, padID)
	if err != nil {
		return fmt.Errorf("prepare pad %s: %w", padID, err)
	}
	r.logger.Info("pad reset", slog.String("pad_id", padID), slog.Bool("created", created))
	return nil
}

func (r *Runtime) loadShortcuts() *shortcut.Table {
	path := r.cfg.Dictation.ShortcutsPath
	if path == "" {
		return shortcut.Empty()
	}
	table, err := shortcut.Load(path)
	if err != nil {
		r.logger.Warn("shortcuts unavailable, continuing without them", slog.String("path", path), slogError(err))
		return shortcut.Empty()
	}
	return table
}

func (r *Runtime) observers(ctx context.Context) ([]dictation.Observer, error) {
	var observers []dictation.Observer

	if path := r.cfg.Dictation.OutputPath; path != "" {
		w, err := transcript.Create(path)
		if err != nil {
			return nil, err
		}
		r.onClose(func() {
			if err := w.Close(); err != nil {
				r.logger.Error("failed to close transcript", slogError(err))
				return
			}
			r.logger.Info("transcript written", slog.String("path", w.Path()), slog.Int("paragraphs", w.Paragraphs()))
		})
		observers = append(observers, w)
	}

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return nil, fmt.Errorf("open event store: %w", err)
	}
	r.onClose(func() { _ = store.Close() })
	if store.Enabled() {
		rec, err := eventstore.NewRecorder(ctx, store, r.sessionID, r.cfg.Etherpad.PadID, r.cfg.STT.Language)
		if err != nil {
			return nil, fmt.Errorf("record session: %w", err)
		}
		observers = append(observers, rec)
	}

	if r.cfg.Bus.Enabled {
		busCfg := r.cfg.Bus
		srv, err := natsserver.Start(busCfg, r.logger)
		if err != nil {
			return nil, err
		}
		if srv != nil {
			r.onClose(srv.Shutdown)
			busCfg.Servers = []string{srv.ClientURL()}
		}
		client, err := bus.Connect(ctx, busCfg, r.logger)
		if err != nil {
			return nil, err
		}
		r.onClose(client.Close)
		r.bus = client
		observers = append(observers, bus.NewPublisher(client, r.sessionID))
	}

	if r.feed != nil {
		observers = append(observers, r.feed)
	}

	return observers, nil
}

// openInput returns the decoder, the frame channel and an optional WAV
// recorder. The mock decoder is fed silence instead of a microphone.
func (r *Runtime) openInput(ctx context.Context) (stt.Decoder, <-chan audio.Frame, dictation.FrameWriter, error) {
	cfg := r.cfg
	var (
		decoder    stt.Decoder
		frames     <-chan audio.Frame
		sampleRate int
	)

	switch cfg.STT.Mode {
	case "mock":
		sampleRate = cfg.Audio.SampleRate
		if sampleRate <= 0 {
			sampleRate = 16000
		}
		decoder = stt.NewScriptedDecoder(cfg.STT.MockScript, cfg.STT.MockEvery)
		frames = silence(ctx, len(cfg.STT.MockScript)*max(cfg.STT.MockEvery, 1), cfg.Audio.BlockSize)
		r.logger.Warn("using scripted decoder, no audio is captured", slog.Int("segments", len(cfg.STT.MockScript)))
	default:
		modelPath, err := r.resolveModel(ctx)
		if err != nil {
			return nil, nil, nil, err
		}
		source, err := audio.Open(cfg.Audio, r.logger)
		if err != nil {
			return nil, nil, nil, err
		}
		r.onClose(func() {
			if err := source.Close(); err != nil {
				r.logger.Warn("audio close failed", slogError(err))
			}
		})
		sampleRate = source.SampleRate()
		r.logger.Info("audio input opened",
			slog.String("device", source.Device().Name),
			slog.Int("sample_rate", sampleRate))
		vosk, err := stt.NewVoskDecoder(modelPath, sampleRate)
		if err != nil {
			return nil, nil, nil, err
		}
		decoder = vosk
		if err := source.Start(); err != nil {
			return nil, nil, nil, err
		}
		frames = source.Frames()
	}
	r.onClose(decoder.Close)

	var recorder dictation.FrameWriter
	if path := cfg.Audio.RecordPath; path != "" {
		wav, err := audio.NewWAVRecorder(path, sampleRate)
		if err != nil {
			return nil, nil, nil, err
		}
		r.onClose(func() {
			if err := wav.Close(); err != nil {
				r.logger.Warn("failed to finish recording", slogError(err))
				return
			}
			r.logger.Info("recording saved", slog.String("path", path), slog.Int64("samples", wav.Samples()))
		})
		recorder = wav
	}
	return decoder, frames, recorder, nil
}

func (r *Runtime) resolveModel(ctx context.Context) (string, error) {
	cfg := r.cfg.STT
	var urls map[string]string
	if cfg.ModelPath == "" {
		loaded, err := models.LoadURLs(cfg.ModelURLsPath)
		if err != nil {
			r.logger.Warn("model url table unavailable", slog.String("path", cfg.ModelURLsPath), slogError(err))
		}
		urls = loaded
	}
	manager := models.NewManager(cfg.ModelsDir, urls, nil, r.logger)
	path, err := manager.Resolve(ctx, cfg.ModelPath, cfg.Language)
	if err != nil {
		return "", fmt.Errorf("resolve model: %w", err)
	}
	return path, nil
}

// silence emits n empty blocks and closes the channel.
func silence(ctx context.Context, n, blockSize int) <-chan audio.Frame {
	ch := make(chan audio.Frame)
	go func() {
		defer close(ch)
		for i := 0; i < n; i++ {
			select {
			case <-ctx.Done():
				return
			case ch <- make(audio.Frame, blockSize):
			}
		}
	}()
	return ch
}

func (r *Runtime) startHTTP(metrics http.Handler) {
	if metrics != nil && r.cfg.Telemetry.PrometheusBind != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics)
		r.metricsSrv = r.serve(r.cfg.Telemetry.PrometheusBind, mux)
	}
	if !r.cfg.HTTP.Enabled {
		return
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	mux.Handle("/events", r.feed)
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	r.httpServer = r.serve(fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port), mux)
}

func (r *Runtime) serve(addr string, handler http.Handler) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("http server failed", slog.String("addr", addr), slogError(err))
		}
	}()
	r.logger.Info("http server listening", slog.String("addr", addr))
	return srv
}

// onClose registers cleanup to run in reverse order on shutdown.
func (r *Runtime) onClose(fn func()) {
	r.closers = append(r.closers, fn)
}

func (r *Runtime) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, srv := range []*http.Server{r.httpServer, r.metricsSrv} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slogError(err))
		}
	}
	r.wg.Wait()
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady reports ready while a session runs and the bus, when enabled,
// is connected.
func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && (r.bus == nil || r.bus.Healthy()) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
