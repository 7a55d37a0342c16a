package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/collectivat/mic2etherpad/internal/config"
)

func TestFlagsOverlayConfig(t *testing.T) {
	opts, err := parseFlags([]string{
		"-l", "ca", "--translatelang", "en", "-t", "tok", "-p", "CLASS",
		"--url", "http://pads:9001", "-k", "key", "-r", "44100", "-d", "USB",
		"-x", "out.txt", "-s", "shortcuts.json", "-m", "models/ca",
	}, io.Discard)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg := config.Default()
	opts.apply(&cfg)

	if cfg.STT.Language != "ca" || cfg.STT.ModelPath != "models/ca" {
		t.Fatalf("unexpected stt config %+v", cfg.STT)
	}
	if cfg.Translation.TargetLanguage != "en" || cfg.Punctuation.Token != "tok" {
		t.Fatalf("unexpected optional features: %+v %+v", cfg.Translation, cfg.Punctuation)
	}
	if cfg.Etherpad.PadID != "CLASS" || cfg.Etherpad.URL != "http://pads:9001" || cfg.Etherpad.APIKey != "key" {
		t.Fatalf("unexpected etherpad config %+v", cfg.Etherpad)
	}
	if cfg.Audio.SampleRate != 44100 || cfg.Audio.Device != "USB" {
		t.Fatalf("unexpected audio config %+v", cfg.Audio)
	}
	if cfg.Dictation.OutputPath != "out.txt" || cfg.Dictation.ShortcutsPath != "shortcuts.json" {
		t.Fatalf("unexpected dictation config %+v", cfg.Dictation)
	}
}

func TestUnsetFlagsKeepConfig(t *testing.T) {
	opts, err := parseFlags([]string{"-a"}, io.Discard)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !opts.listDevices {
		t.Fatal("expected -a to list devices")
	}
	cfg := config.Default()
	cfg.Etherpad.PadID = "FROM_FILE"
	opts.apply(&cfg)
	if cfg.Etherpad.PadID != "FROM_FILE" {
		t.Fatalf("unset flag overwrote config: %q", cfg.Etherpad.PadID)
	}
}

func TestUnknownFlag(t *testing.T) {
	var out bytes.Buffer
	if _, err := parseFlags([]string{"--bogus"}, &out); err == nil {
		t.Fatal("expected error for unknown flag")
	}
	if !strings.Contains(out.String(), "bogus") {
		t.Fatalf("expected usage output, got %q", out.String())
	}
}

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.TelemetryConfig{LogLevel: "warn", LogFormat: "text"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "level=WARN") {
		t.Fatalf("unexpected log output %q", buf.String())
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dictation.env")
	if err := os.WriteFile(path, []byte("MIC2ETHER_ETHERPAD_PAD_ID=FROM_DOTENV\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("MIC2ETHER_ETHERPAD_PAD_ID", "")
	os.Unsetenv("MIC2ETHER_ETHERPAD_PAD_ID")

	if err := loadEnvFile(path, true); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := os.Getenv("MIC2ETHER_ETHERPAD_PAD_ID"); got != "FROM_DOTENV" {
		t.Fatalf("expected dotenv value, got %q", got)
	}

	missing := filepath.Join(dir, "missing.env")
	if err := loadEnvFile(missing, false); err != nil {
		t.Fatalf("missing default env file must be ignored: %v", err)
	}
	if err := loadEnvFile(missing, true); err == nil {
		t.Fatal("expected error for explicit missing env file")
	}
}
