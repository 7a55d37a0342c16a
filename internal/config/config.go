package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	TraceStdout    bool   `yaml:"trace_stdout"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
	Port    int    `yaml:"port"`
}

type Config struct {
	SessionName string            `yaml:"session_name"`
	Environment string            `yaml:"environment"`
	HTTP        HTTPConfig        `yaml:"http"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Bus         BusConfig         `yaml:"bus"`
	EventStore  EventStoreConfig  `yaml:"event_store"`
	Audio       AudioConfig       `yaml:"audio"`
	STT         STTConfig         `yaml:"stt"`
	Etherpad    EtherpadConfig    `yaml:"etherpad"`
	Dictation   DictationConfig   `yaml:"dictation"`
	Punctuation PunctuationConfig `yaml:"punctuation"`
	Translation TranslationConfig `yaml:"translation"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// AudioConfig selects the capture device. Device is either a numeric
// portaudio index or a case-insensitive substring of the device name.
type AudioConfig struct {
	Device     string `yaml:"device"`
	SampleRate int    `yaml:"sample_rate"`
	BlockSize  int    `yaml:"block_size"`
	QueueSize  int    `yaml:"queue_size"`
	RecordPath string `yaml:"record_path"`
}

type STTConfig struct {
	Mode          string   `yaml:"mode"` // vosk, mock
	ModelPath     string   `yaml:"model_path"`
	Language      string   `yaml:"language"`
	ModelsDir     string   `yaml:"models_dir"`
	ModelURLsPath string   `yaml:"model_urls_path"`
	MockScript    []string `yaml:"mock_script"`
	MockEvery     int      `yaml:"mock_every_frames"`
}

type EtherpadConfig struct {
	URL        string `yaml:"url"`
	APIKey     string `yaml:"api_key"`
	APIVersion string `yaml:"api_version"`
	PadID      string `yaml:"pad_id"`
	TimeoutMS  int    `yaml:"timeout_ms"`
}

type DictationConfig struct {
	NewlineAfterSegment bool   `yaml:"newline_after_segment"`
	ShortcutsPath       string `yaml:"shortcuts_path"`
	OutputPath          string `yaml:"output_path"`
}

type PunctuationConfig struct {
	Mode      string `yaml:"mode"` // punkprose, ollama
	Endpoint  string `yaml:"endpoint"`
	Token     string `yaml:"token"`
	Model     string `yaml:"model"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type TranslationConfig struct {
	TargetLanguage string `yaml:"target_language"`
	Mode           string `yaml:"mode"` // http, exec, mock
	Endpoint       string `yaml:"endpoint"`
	APIKey         string `yaml:"api_key"`
	Command        string `yaml:"command"`
	OnError        string `yaml:"on_error"` // fail, passthrough
	TimeoutMS      int    `yaml:"timeout_ms"`
}

// PunctuationEnabled reports whether closed paragraphs are sent for
// punctuation. A source language is required in every mode.
func (c Config) PunctuationEnabled() bool {
	if strings.TrimSpace(c.STT.Language) == "" {
		return false
	}
	switch c.Punctuation.Mode {
	case "ollama":
		return c.Punctuation.Model != ""
	default:
		return c.Punctuation.Token != ""
	}
}

// Enabled reports whether a translated pad is maintained.
func (t TranslationConfig) Enabled() bool {
	return strings.TrimSpace(t.TargetLanguage) != ""
}

func Default() Config {
	return Config{
		SessionName: "mic2ether",
		Environment: "development",
		HTTP: HTTPConfig{
			Enabled: false,
			Bind:    "127.0.0.1",
			Port:    8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			LogFormat:      "json",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: "",
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       false,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/mic2ether-events.db",
			RetentionMode: "ephemeral",
			RetentionDays: 30,
			MaxSessions:   1000,
		},
		Audio: AudioConfig{
			BlockSize: 8000,
			QueueSize: 256,
		},
		STT: STTConfig{
			Mode:          "vosk",
			ModelsDir:     "models",
			ModelURLsPath: "etc/model_urls.json",
			MockEvery:     4,
		},
		Etherpad: EtherpadConfig{
			URL:        "http://localhost:9001",
			APIKey:     "myapikey",
			APIVersion: "1.2.13",
			PadID:      "MIC2ETHER",
		},
		Punctuation: PunctuationConfig{
			Mode:     "punkprose",
			Endpoint: "http://api.collectivat.cat/punkProse",
		},
		Translation: TranslationConfig{
			Mode:    "http",
			OnError: "fail",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.SessionName, "MIC2ETHER_SESSION_NAME")
	overrideString(&cfg.Environment, "MIC2ETHER_ENVIRONMENT")
	overrideBool(&cfg.HTTP.Enabled, "MIC2ETHER_HTTP_ENABLED")
	overrideString(&cfg.HTTP.Bind, "MIC2ETHER_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "MIC2ETHER_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "MIC2ETHER_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.LogFormat, "MIC2ETHER_TELEMETRY_LOG_FORMAT")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "MIC2ETHER_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "MIC2ETHER_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Telemetry.TraceStdout, "MIC2ETHER_TELEMETRY_TRACE_STDOUT")
	overrideString(&cfg.Telemetry.PrometheusBind, "MIC2ETHER_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Enabled, "MIC2ETHER_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "MIC2ETHER_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "MIC2ETHER_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "MIC2ETHER_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "MIC2ETHER_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "MIC2ETHER_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "MIC2ETHER_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "MIC2ETHER_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "MIC2ETHER_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "MIC2ETHER_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "MIC2ETHER_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "MIC2ETHER_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "MIC2ETHER_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "MIC2ETHER_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.Audio.Device, "MIC2ETHER_AUDIO_DEVICE")
	overrideInt(&cfg.Audio.SampleRate, "MIC2ETHER_AUDIO_SAMPLE_RATE")
	overrideInt(&cfg.Audio.BlockSize, "MIC2ETHER_AUDIO_BLOCK_SIZE")
	overrideInt(&cfg.Audio.QueueSize, "MIC2ETHER_AUDIO_QUEUE_SIZE")
	overrideString(&cfg.Audio.RecordPath, "MIC2ETHER_AUDIO_RECORD_PATH")
	overrideString(&cfg.STT.Mode, "MIC2ETHER_STT_MODE")
	overrideString(&cfg.STT.ModelPath, "MIC2ETHER_STT_MODEL_PATH")
	overrideString(&cfg.STT.Language, "MIC2ETHER_STT_LANGUAGE")
	overrideString(&cfg.STT.ModelsDir, "MIC2ETHER_STT_MODELS_DIR")
	overrideString(&cfg.STT.ModelURLsPath, "MIC2ETHER_STT_MODEL_URLS_PATH")
	overrideString(&cfg.Etherpad.URL, "MIC2ETHER_ETHERPAD_URL")
	overrideString(&cfg.Etherpad.APIKey, "MIC2ETHER_ETHERPAD_API_KEY")
	overrideString(&cfg.Etherpad.APIVersion, "MIC2ETHER_ETHERPAD_API_VERSION")
	overrideString(&cfg.Etherpad.PadID, "MIC2ETHER_ETHERPAD_PAD_ID")
	overrideInt(&cfg.Etherpad.TimeoutMS, "MIC2ETHER_ETHERPAD_TIMEOUT_MS")
	overrideBool(&cfg.Dictation.NewlineAfterSegment, "MIC2ETHER_DICTATION_NEWLINE_AFTER_SEGMENT")
	overrideString(&cfg.Dictation.ShortcutsPath, "MIC2ETHER_DICTATION_SHORTCUTS_PATH")
	overrideString(&cfg.Dictation.OutputPath, "MIC2ETHER_DICTATION_OUTPUT_PATH")
	overrideString(&cfg.Punctuation.Mode, "MIC2ETHER_PUNCTUATION_MODE")
	overrideString(&cfg.Punctuation.Endpoint, "MIC2ETHER_PUNCTUATION_ENDPOINT")
	overrideString(&cfg.Punctuation.Token, "MIC2ETHER_PUNCTUATION_TOKEN")
	overrideString(&cfg.Punctuation.Model, "MIC2ETHER_PUNCTUATION_MODEL")
	overrideInt(&cfg.Punctuation.TimeoutMS, "MIC2ETHER_PUNCTUATION_TIMEOUT_MS")
	overrideString(&cfg.Translation.TargetLanguage, "MIC2ETHER_TRANSLATION_TARGET_LANGUAGE")
	overrideString(&cfg.Translation.Mode, "MIC2ETHER_TRANSLATION_MODE")
	overrideString(&cfg.Translation.Endpoint, "MIC2ETHER_TRANSLATION_ENDPOINT")
	overrideString(&cfg.Translation.APIKey, "MIC2ETHER_TRANSLATION_API_KEY")
	overrideString(&cfg.Translation.Command, "MIC2ETHER_TRANSLATION_COMMAND")
	overrideString(&cfg.Translation.OnError, "MIC2ETHER_TRANSLATION_ON_ERROR")
	overrideInt(&cfg.Translation.TimeoutMS, "MIC2ETHER_TRANSLATION_TIMEOUT_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

// Validate is exported so that main can re-check the config after CLI flags
// have been applied on top of the file and environment.
func Validate(cfg Config) error {
	if cfg.SessionName == "" {
		return errors.New("session_name must not be empty")
	}
	if cfg.HTTP.Enabled && (cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535) {
		return errors.New("http.port must be between 1 and 65535")
	}
	switch strings.ToLower(cfg.Telemetry.LogFormat) {
	case "json", "text":
	default:
		return errors.New("telemetry.log_format must be one of json|text")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port < -1 || cfg.Bus.Port == 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 (or -1 for random) when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionMode != "ephemeral" && cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Audio.SampleRate < 0 {
		return errors.New("audio.sample_rate must be >= 0")
	}
	if cfg.Audio.BlockSize <= 0 {
		return errors.New("audio.block_size must be positive")
	}
	if cfg.Audio.QueueSize <= 0 {
		return errors.New("audio.queue_size must be positive")
	}
	switch cfg.STT.Mode {
	case "vosk":
	case "mock":
		if cfg.STT.MockEvery <= 0 {
			return errors.New("stt.mock_every_frames must be positive when mode=mock")
		}
	default:
		return errors.New("stt.mode must be one of vosk|mock")
	}
	if cfg.Etherpad.URL == "" {
		return errors.New("etherpad.url must not be empty")
	}
	if cfg.Etherpad.PadID == "" {
		return errors.New("etherpad.pad_id must not be empty")
	}
	if cfg.Etherpad.APIVersion == "" {
		return errors.New("etherpad.api_version must not be empty")
	}
	switch cfg.Punctuation.Mode {
	case "punkprose", "ollama":
	default:
		return errors.New("punctuation.mode must be one of punkprose|ollama")
	}
	if cfg.PunctuationEnabled() && cfg.Punctuation.Endpoint == "" {
		return errors.New("punctuation.endpoint must be set when punctuation is enabled")
	}
	if cfg.Translation.Enabled() {
		switch cfg.Translation.Mode {
		case "http", "mock":
		case "exec":
			if cfg.Translation.Command == "" {
				return errors.New("translation.command must be set when mode=exec")
			}
		default:
			return errors.New("translation.mode must be one of http|exec|mock")
		}
		if cfg.Translation.Mode == "http" && cfg.Translation.Endpoint == "" {
			return errors.New("translation.endpoint must be set when mode=http")
		}
		if cfg.STT.Language == "" {
			return errors.New("stt.language must be set when translation is enabled")
		}
		switch cfg.Translation.OnError {
		case "fail", "passthrough":
		default:
			return errors.New("translation.on_error must be one of fail|passthrough")
		}
	}
	return nil
}
