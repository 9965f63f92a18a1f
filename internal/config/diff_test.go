package config_test

import (
	"testing"
	"time"

	"github.com/cognify-ai/cognify/internal/config"
)

func baseConfig() *config.Config {
	cfg := &config.Config{
		Document:   config.ProviderEntry{Name: "azure", BaseURL: "https://docs", APIKey: "k", Options: map[string]any{"api_version": "2024-11-30"}},
		Completion: config.ProviderEntry{Name: "openai", APIKey: "sk"},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(baseConfig(), baseConfig())
	if !d.Empty() {
		t.Errorf("identical configs produced %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("diff = %+v", d)
	}
	if d.RestartRequired {
		t.Error("log level change should not require a restart")
	}
}

func TestDiff_ChatChanged(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Chat.SystemPrompt = "Be brief."
	new.Chat.Temperature = 0.3

	d := config.Diff(old, new)
	if !d.ChatChanged {
		t.Error("expected ChatChanged")
	}
	if d.RestartRequired || d.VoicePersonaChanged {
		t.Errorf("unexpected flags: %+v", d)
	}
}

func TestDiff_ChatToggleRequiresRestart(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	off := false
	new.Chat.Enabled = &off

	if d := config.Diff(old, new); !d.RestartRequired {
		t.Error("disabling /chat should require a restart")
	}
}

func TestDiff_VoicePersonaChanged(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Voice.Voice = "verse"
	vad := false
	new.Voice.ServerVAD = &vad

	d := config.Diff(old, new)
	if !d.VoicePersonaChanged {
		t.Error("expected VoicePersonaChanged")
	}
	if d.RestartRequired {
		t.Error("persona change should not require a restart")
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"listen addr", func(c *config.Config) { c.Server.ListenAddr = ":9000" }},
		{"upload limit", func(c *config.Config) { c.Server.MaxUploadBytes = 1 }},
		{"cors", func(c *config.Config) { c.Server.CORSOrigins = []string{"https://a"} }},
		{"document key", func(c *config.Config) { c.Document.APIKey = "rotated" }},
		{"document option", func(c *config.Config) { c.Document.Options["api_version"] = "2023-07-31" }},
		{"completion model", func(c *config.Config) { c.Completion.Model = "gpt-4o-mini" }},
		{"voice provider", func(c *config.Config) { c.Voice.Name = "openai-realtime" }},
		{"frame size", func(c *config.Config) { c.Voice.FrameSize = 1200 }},
		{"generation tokens", func(c *config.Config) { c.Generation.MaxTokens = 100 }},
		{"breaker", func(c *config.Config) { c.Resilience.ResetTimeout = time.Minute }},
		{"tracing", func(c *config.Config) { c.Observe.TraceExporter = "stdout" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old, new := baseConfig(), baseConfig()
			tt.mutate(new)
			d := config.Diff(old, new)
			if !d.RestartRequired {
				t.Errorf("diff = %+v, want RestartRequired", d)
			}
			if d.Empty() {
				t.Error("Empty() = true for a changed config")
			}
		})
	}
}
