// Package config provides the configuration schema, loader, hot-reload
// watcher and provider registry of the cognify server.
package config

import (
	"fmt"
	"strconv"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure, loaded with [Load] or
// [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Document   ProviderEntry    `yaml:"document"`
	Completion ProviderEntry    `yaml:"completion"`
	Generation GenerationConfig `yaml:"generation"`
	Chat       ChatConfig       `yaml:"chat"`
	Voice      VoiceConfig      `yaml:"voice"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Observe    ObserveConfig    `yaml:"observe"`
}

// ServerConfig holds network, upload and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on.
	ListenAddr string `yaml:"listen_addr"`

	LogLevel LogLevel `yaml:"log_level"`

	// UploadDir is where uploads are staged during analysis. Empty means
	// os.TempDir().
	UploadDir string `yaml:"upload_dir"`

	// MaxUploadBytes caps the multipart request body.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// CORSOrigins lists allowed browser origins; "*" allows any.
	CORSOrigins []string `yaml:"cors_origins"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ProviderEntry is the common block shared by every provider kind. Name
// selects the constructor in the [Registry].
type ProviderEntry struct {
	Name string `yaml:"name"`

	// APIKey authenticates against the provider. Use ${ENV} references to
	// keep secrets out of the file.
	APIKey string `yaml:"api_key"`

	// BaseURL is the service endpoint. Empty uses the provider default.
	BaseURL string `yaml:"base_url"`

	// Model selects the model, or for Azure services the deployment name.
	Model string `yaml:"model"`

	// Options holds provider-specific values.
	Options map[string]any `yaml:"options"`
}

// OptionString returns Options[key] when it is a string (numbers and bools
// are formatted), or "".
func (e ProviderEntry) OptionString(key string) string {
	switch v := e.Options[key].(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

// OptionDuration parses Options[key] as a Go duration ("1500ms", "2s").
// Missing keys yield 0.
func (e ProviderEntry) OptionDuration(key string) (time.Duration, error) {
	s := e.OptionString(key)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("option %q: %w", key, err)
	}
	return d, nil
}

// GenerationConfig tunes lesson generation.
type GenerationConfig struct {
	// MaxTokens caps the completion length.
	MaxTokens int `yaml:"max_tokens"`
}

// ChatConfig tunes the companion chat endpoint.
type ChatConfig struct {
	Enabled      *bool   `yaml:"enabled"`
	SystemPrompt string  `yaml:"system_prompt"`
	HistoryLimit int     `yaml:"history_limit"`
	MaxTokens    int     `yaml:"max_tokens"`
	Temperature  float64 `yaml:"temperature"`
}

// IsEnabled reports whether /chat is served. Unset means enabled.
func (c ChatConfig) IsEnabled() bool { return c.Enabled == nil || *c.Enabled }

// VoiceConfig selects the realtime provider and tunes the voice gateway. An
// empty Name disables /voice.
type VoiceConfig struct {
	ProviderEntry `yaml:",inline"`

	// SampleRate is the realtime service's PCM16 rate.
	SampleRate int `yaml:"sample_rate"`

	// ClientSampleRate is the browser audio context rate.
	ClientSampleRate int `yaml:"client_sample_rate"`

	// FrameSize is the capture accumulator threshold, in client samples.
	FrameSize int `yaml:"frame_size"`

	// BlockSize is the playback render block, in client samples.
	BlockSize int `yaml:"block_size"`

	Instructions string  `yaml:"instructions"`
	Voice        string  `yaml:"voice"`
	Temperature  float64 `yaml:"temperature"`
	ServerVAD    *bool   `yaml:"server_vad"`
}

// Enabled reports whether a realtime provider is configured.
func (v VoiceConfig) Enabled() bool { return v.Name != "" }

// UseServerVAD reports whether provider-side turn detection is on. Unset
// means on.
func (v VoiceConfig) UseServerVAD() bool { return v.ServerVAD == nil || *v.ServerVAD }

// ResilienceConfig tunes the circuit breakers around upstream services.
type ResilienceConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// ObserveConfig configures telemetry export.
type ObserveConfig struct {
	ServiceName   string `yaml:"service_name"`
	TraceExporter string `yaml:"trace_exporter"`
	OTLPEndpoint  string `yaml:"otlp_endpoint"`
	OTLPInsecure  bool   `yaml:"otlp_insecure"`
}

// Defaults.
const (
	DefaultListenAddr       = ":5000"
	DefaultMaxUploadBytes   = 50 << 20
	DefaultShutdownTimeout  = 15 * time.Second
	DefaultGenerationTokens = 16384
	DefaultHistoryLimit     = 10
	DefaultChatTokens       = 800
	DefaultChatTemperature  = 0.7
	DefaultVoiceSampleRate  = 24000
	DefaultVoiceFrameSize   = 2400
	DefaultRealtimeVoice    = "alloy"
	DefaultMaxFailures      = 5
	DefaultResetTimeout     = 30 * time.Second
	DefaultServiceName      = "cognify"
)

// ApplyDefaults fills unset fields in place.
func ApplyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.ListenAddr == "" {
		s.ListenAddr = DefaultListenAddr
	}
	if s.LogLevel == "" {
		s.LogLevel = LogInfo
	}
	if s.MaxUploadBytes == 0 {
		s.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if s.CORSOrigins == nil {
		s.CORSOrigins = []string{"*"}
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}

	if cfg.Generation.MaxTokens == 0 {
		cfg.Generation.MaxTokens = DefaultGenerationTokens
	}

	c := &cfg.Chat
	if c.HistoryLimit == 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultChatTokens
	}
	if c.Temperature == 0 {
		c.Temperature = DefaultChatTemperature
	}

	v := &cfg.Voice
	if v.SampleRate == 0 {
		v.SampleRate = DefaultVoiceSampleRate
	}
	if v.ClientSampleRate == 0 {
		v.ClientSampleRate = v.SampleRate
	}
	if v.FrameSize == 0 {
		v.FrameSize = DefaultVoiceFrameSize
	}
	if v.BlockSize == 0 {
		v.BlockSize = v.FrameSize
	}
	if v.Voice == "" {
		v.Voice = DefaultRealtimeVoice
	}

	if cfg.Resilience.MaxFailures == 0 {
		cfg.Resilience.MaxFailures = DefaultMaxFailures
	}
	if cfg.Resilience.ResetTimeout == 0 {
		cfg.Resilience.ResetTimeout = DefaultResetTimeout
	}
	if cfg.Observe.ServiceName == "" {
		cfg.Observe.ServiceName = DefaultServiceName
	}
	if cfg.Observe.TraceExporter == "" {
		cfg.Observe.TraceExporter = "none"
	}
}
