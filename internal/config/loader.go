package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the built-in provider names per kind. [Validate]
// warns about names outside these lists; they may still be registered by an
// embedding program.
var ValidProviderNames = map[string][]string{
	"document":   {"azure", "gcp"},
	"completion": {"azure-openai", "openai", "anthropic", "gemini", "deepseek", "mistral", "groq", "ollama", "llamacpp", "llamafile"},
	"voice":      {"openai-realtime", "azure-realtime"},
}

// ValidTraceExporters lists the accepted observe.trace_exporter values.
var ValidTraceExporters = []string{"none", "stdout", "otlp"}

// Load reads the YAML file at path, expands ${VAR} references from the
// environment, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader is [Load] for an already opened source.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(expandEnv(data)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} with the variable's value. Bare $VAR is left
// alone so prompts may contain dollar signs.
func expandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(m []byte) []byte {
		return []byte(os.Getenv(string(m[2 : len(m)-1])))
	})
}

// Validate checks cfg for coherence and returns every failure joined.
// It expects defaults to be applied.
func Validate(cfg *Config) error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	// Server
	if !cfg.Server.LogLevel.IsValid() {
		add("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel)
	}
	if cfg.Server.MaxUploadBytes <= 0 {
		add("server.max_upload_bytes must be positive, got %d", cfg.Server.MaxUploadBytes)
	}
	if cfg.Server.UploadDir != "" {
		if fi, err := os.Stat(cfg.Server.UploadDir); err != nil || !fi.IsDir() {
			add("server.upload_dir %q is not an existing directory", cfg.Server.UploadDir)
		}
	}

	// Document service
	doc := cfg.Document
	switch doc.Name {
	case "":
		add("document.name is required; valid values: %v", ValidProviderNames["document"])
	case "azure":
		if doc.BaseURL == "" {
			add("document.base_url is required for the azure document service")
		}
		if doc.APIKey == "" {
			add("document.api_key is required for the azure document service")
		}
		if _, err := doc.OptionDuration("poll_interval"); err != nil {
			add("document.options: %v", err)
		}
	case "gcp":
		if doc.OptionString("project_id") == "" || doc.OptionString("processor_id") == "" {
			add("document.options.project_id and document.options.processor_id are required for the gcp document service")
		}
	default:
		warnUnknownProvider("document", doc.Name)
	}

	// Completion service
	comp := cfg.Completion
	switch comp.Name {
	case "":
		add("completion.name is required; valid values: %v", ValidProviderNames["completion"])
	case "azure-openai":
		if comp.BaseURL == "" {
			add("completion.base_url is required for azure-openai")
		}
		if comp.APIKey == "" {
			add("completion.api_key is required for azure-openai")
		}
		if comp.Model == "" {
			add("completion.model (the deployment id) is required for azure-openai")
		}
	default:
		warnUnknownProvider("completion", comp.Name)
	}

	if cfg.Generation.MaxTokens <= 0 {
		add("generation.max_tokens must be positive, got %d", cfg.Generation.MaxTokens)
	}

	// Chat
	if cfg.Chat.HistoryLimit < 0 {
		add("chat.history_limit must not be negative, got %d", cfg.Chat.HistoryLimit)
	}
	if cfg.Chat.MaxTokens < 0 {
		add("chat.max_tokens must not be negative, got %d", cfg.Chat.MaxTokens)
	}
	if cfg.Chat.Temperature < 0 || cfg.Chat.Temperature > 2 {
		add("chat.temperature %.2f is out of range [0, 2]", cfg.Chat.Temperature)
	}

	// Voice
	if v := cfg.Voice; v.Enabled() {
		warnUnknownProvider("voice", v.Name)
		if v.Name == "azure-realtime" && v.BaseURL == "" {
			add("voice.base_url is required for azure-realtime")
		}
		if v.SampleRate <= 0 || v.ClientSampleRate <= 0 {
			add("voice.sample_rate and voice.client_sample_rate must be positive")
		}
		if v.FrameSize <= 0 || v.BlockSize <= 0 {
			add("voice.frame_size and voice.block_size must be positive")
		}
		if v.Temperature != 0 && (v.Temperature < 0.6 || v.Temperature > 1.2) {
			add("voice.temperature %.2f is out of range [0.6, 1.2]", v.Temperature)
		}
	}

	// Resilience
	if cfg.Resilience.MaxFailures < 0 {
		add("resilience.max_failures must not be negative, got %d", cfg.Resilience.MaxFailures)
	}
	if cfg.Resilience.ResetTimeout < 0 {
		add("resilience.reset_timeout must not be negative, got %s", cfg.Resilience.ResetTimeout)
	}

	// Observe
	if !slices.Contains(ValidTraceExporters, cfg.Observe.TraceExporter) {
		add("observe.trace_exporter %q is invalid; valid values: %v", cfg.Observe.TraceExporter, ValidTraceExporters)
	}

	return errors.Join(errs...)
}

// warnUnknownProvider logs when name is not a built-in provider of kind.
func warnUnknownProvider(kind, name string) {
	if name == "" || slices.Contains(ValidProviderNames[kind], name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", ValidProviderNames[kind],
	)
}
