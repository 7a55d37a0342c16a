package translation

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"testing"

	"github.com/collectivat/mic2etherpad/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestHTTPTranslator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/translate" {
			http.NotFound(w, r)
			return
		}
		var req translateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Source != "ca" || req.Target != "en" || req.Format != "text" || req.APIKey != "key" {
			t.Errorf("unexpected request %+v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"translatedText": "Hello, world."})
	}))
	defer srv.Close()

	tr := NewHTTPTranslator(srv.URL+"/", "key", nil)
	out, err := tr.Translate(context.Background(), "Hola, món.", "ca", "en")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if out != "Hello, world." {
		t.Fatalf("unexpected translation %q", out)
	}
}

func TestHTTPTranslatorError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "ca is not supported"}`))
	}))
	defer srv.Close()

	tr := NewHTTPTranslator(srv.URL, "", nil)
	_, err := tr.Translate(context.Background(), "Hola.", "ca", "xx")
	if err == nil || !strings.Contains(err.Error(), "ca is not supported") {
		t.Fatalf("expected service error, got %v", err)
	}
}

func TestHTTPTranslatorEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"translatedText": ""}`))
	}))
	defer srv.Close()

	tr := NewHTTPTranslator(srv.URL, "", nil)
	if out, err := tr.Translate(context.Background(), "Hola.", "ca", "en"); err == nil {
		t.Fatalf("expected error for empty translation, got %q", out)
	}
}

func TestExecTranslator(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	tr, err := NewExecTranslator(`sh -c 'cat >/dev/null; echo "{\"text\": \"Bon dia.\"}"'`)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	out, err := tr.Translate(context.Background(), "Good morning.", "en", "ca")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if out != "Bon dia." {
		t.Fatalf("unexpected translation %q", out)
	}
}

func TestExecTranslatorEmptyCommand(t *testing.T) {
	if _, err := NewExecTranslator("   "); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestMockTranslator(t *testing.T) {
	out, err := NewMockTranslator().Translate(context.Background(), " Hola. ", "ca", "en")
	if err != nil || out != "[en] Hola." {
		t.Fatalf("unexpected mock output %q err=%v", out, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMockTranslator().Translate(ctx, "Hola.", "ca", "en"); err == nil {
		t.Fatal("expected context error")
	}
}

func TestNewSelectsBackend(t *testing.T) {
	if _, err := New(config.TranslationConfig{Mode: "mock"}, newLogger()); err != nil {
		t.Fatalf("mock: %v", err)
	}
	if _, err := New(config.TranslationConfig{Mode: "http", Endpoint: "http://x"}, newLogger()); err != nil {
		t.Fatalf("http: %v", err)
	}
	if _, err := New(config.TranslationConfig{Mode: "carrier-pigeon"}, newLogger()); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
