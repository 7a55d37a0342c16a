package runtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/collectivat/mic2etherpad/internal/config"
	"github.com/collectivat/mic2etherpad/internal/etherpad/etherpadtest"
	"github.com/collectivat/mic2etherpad/internal/eventstore"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func punctuationServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Source string `json:"source"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		out := strings.ToUpper(req.Source[:1]) + req.Source[1:] + "."
		_ = json.NewEncoder(w).Encode(map[string]string{"result": out})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func mockConfig(t *testing.T, padURL string) config.Config {
	t.Helper()
	dir := t.TempDir()
	shortcuts := filepath.Join(dir, "shortcuts.json")
	if err := os.WriteFile(shortcuts, []byte(`{"NEWLINE": "new line", "END": "stop dictation"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Etherpad.URL = padURL
	cfg.Etherpad.APIKey = "secret"
	cfg.Etherpad.PadID = "TEST"
	cfg.STT.Mode = "mock"
	cfg.STT.Language = "en"
	cfg.STT.MockEvery = 1
	cfg.STT.MockScript = []string{"hello", "world", "", "good", "bye", "new line", "stop dictation", "never"}
	cfg.Audio.BlockSize = 160
	cfg.Dictation.ShortcutsPath = shortcuts
	cfg.Dictation.OutputPath = filepath.Join(dir, "out.txt")
	cfg.Audio.RecordPath = filepath.Join(dir, "session.wav")
	return cfg
}

func TestRunMockSession(t *testing.T) {
	pads := etherpadtest.NewServer("secret", map[string]string{"TEST": "stale content"})
	defer pads.Close()
	punct := punctuationServer(t)

	cfg := mockConfig(t, pads.URL)
	cfg.Punctuation.Endpoint = punct.URL
	cfg.Punctuation.Token = "tok"
	cfg.Translation.TargetLanguage = "ca"
	cfg.Translation.Mode = "mock"
	cfg.EventStore.RetentionMode = "persistent"
	cfg.EventStore.Path = filepath.Join(t.TempDir(), "events.db")
	cfg.Bus.Enabled = true
	cfg.Bus.Embedded = true
	cfg.Bus.Port = -1
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("config: %v", err)
	}

	rt := New(cfg, newLogger())
	if err := rt.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if text, _ := pads.Text("TEST"); text != "Hello world.\nGood bye.\n\n" {
		t.Fatalf("unexpected pad text %q", text)
	}
	if text, ok := pads.Text("TEST_ca"); !ok || text != "[ca] Hello world.\n[ca] Good bye.\n\n" {
		t.Fatalf("unexpected translated pad %q (exists=%v)", text, ok)
	}

	out, err := os.ReadFile(cfg.Dictation.OutputPath)
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	if string(out) != "Hello world.\nGood bye.\n" {
		t.Fatalf("unexpected transcript %q", out)
	}
	if info, err := os.Stat(cfg.Audio.RecordPath); err != nil || info.Size() == 0 {
		t.Fatalf("expected recording, err=%v", err)
	}

	store, err := eventstore.Open(context.Background(), cfg.EventStore, newLogger())
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer store.Close()
	text, err := store.Transcript(context.Background(), rt.SessionID())
	if err != nil {
		t.Fatalf("stored transcript: %v", err)
	}
	if text != "Hello world.\nGood bye." {
		t.Fatalf("unexpected stored transcript %q", text)
	}
}

func TestRunWithoutPunctuation(t *testing.T) {
	pads := etherpadtest.NewServer("secret", nil)
	defer pads.Close()

	cfg := mockConfig(t, pads.URL)
	cfg.Dictation.ShortcutsPath = filepath.Join(t.TempDir(), "missing.json")
	cfg.STT.MockScript = []string{"hello", "world", "", "again"}

	if err := New(cfg, newLogger()).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if text, _ := pads.Text("TEST"); text != "hello world again " {
		t.Fatalf("unexpected pad text %q", text)
	}
	out, err := os.ReadFile(cfg.Dictation.OutputPath)
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	if string(out) != "hello world\n" {
		t.Fatalf("unexpected transcript %q", out)
	}
}

func TestRunFailsWhenPadUnavailable(t *testing.T) {
	pads := etherpadtest.NewServer("other-key", nil)
	defer pads.Close()

	cfg := mockConfig(t, pads.URL)
	if err := New(cfg, newLogger()).Run(context.Background()); err == nil {
		t.Fatal("expected startup error for rejected api key")
	}
}

func TestRunRequiresModel(t *testing.T) {
	pads := etherpadtest.NewServer("secret", nil)
	defer pads.Close()

	cfg := mockConfig(t, pads.URL)
	cfg.STT.Mode = "vosk"
	cfg.STT.Language = ""
	if err := New(cfg, newLogger()).Run(context.Background()); err == nil {
		t.Fatal("expected error without model path or language")
	}
}

func TestHealthHandlers(t *testing.T) {
	rt := New(config.Default(), newLogger())
	rec := httptest.NewRecorder()
	rt.handleReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before start, got %d", rec.Code)
	}
	rt.ready.Store(true)
	rec = httptest.NewRecorder()
	rt.handleReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 when ready, got %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	rt.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
