package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cognify-ai/cognify/internal/config"
	"github.com/cognify-ai/cognify/pkg/provider/document"
	docmock "github.com/cognify-ai/cognify/pkg/provider/document/mock"
	"github.com/cognify-ai/cognify/pkg/provider/llm"
	llmmock "github.com/cognify-ai/cognify/pkg/provider/llm/mock"
	"github.com/cognify-ai/cognify/pkg/provider/realtime"
	rtmock "github.com/cognify-ai/cognify/pkg/provider/realtime/mock"
)

const validYAML = `
server:
  listen_addr: ":8080"
  log_level: debug
  max_upload_bytes: 1048576
  cors_origins: ["https://app.example.com"]
document:
  name: azure
  base_url: https://docs.cognitiveservices.azure.com
  api_key: doc-key
  options:
    api_version: "2024-11-30"
    poll_interval: 1500ms
completion:
  name: azure-openai
  base_url: https://chat.openai.azure.com
  api_key: llm-key
  model: gpt-4o
  options:
    api_version: "2024-08-01-preview"
generation:
  max_tokens: 8000
chat:
  history_limit: 6
voice:
  name: openai-realtime
  api_key: rt-key
  model: gpt-4o-realtime-preview
  client_sample_rate: 48000
  server_vad: false
resilience:
  max_failures: 3
  reset_timeout: 10s
observe:
  trace_exporter: stdout
`

// minimalYAML is the smallest config that validates.
const minimalYAML = `
document:
  name: gcp
  options: {project_id: p, processor_id: abc}
completion:
  name: openai
  api_key: sk
`

func load(t *testing.T, src string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(src))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg := load(t, validYAML)

	if cfg.Server.ListenAddr != ":8080" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Document.Name != "azure" || cfg.Document.OptionString("api_version") != "2024-11-30" {
		t.Errorf("document = %+v", cfg.Document)
	}
	if d, err := cfg.Document.OptionDuration("poll_interval"); err != nil || d != 1500*time.Millisecond {
		t.Errorf("poll_interval = %v, %v", d, err)
	}
	if cfg.Completion.Model != "gpt-4o" {
		t.Errorf("completion model = %q", cfg.Completion.Model)
	}
	if cfg.Generation.MaxTokens != 8000 || cfg.Chat.HistoryLimit != 6 {
		t.Errorf("generation/chat = %+v / %+v", cfg.Generation, cfg.Chat)
	}
	if !cfg.Voice.Enabled() || cfg.Voice.APIKey != "rt-key" || cfg.Voice.ClientSampleRate != 48000 {
		t.Errorf("voice = %+v", cfg.Voice)
	}
	if cfg.Voice.UseServerVAD() {
		t.Error("server_vad: false should disable server VAD")
	}
	if cfg.Resilience.MaxFailures != 3 || cfg.Resilience.ResetTimeout != 10*time.Second {
		t.Errorf("resilience = %+v", cfg.Resilience)
	}
}

func TestApplyDefaults(t *testing.T) {
	t.Parallel()
	cfg := load(t, minimalYAML)

	if cfg.Server.ListenAddr != config.DefaultListenAddr || cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("server defaults = %+v", cfg.Server)
	}
	if cfg.Server.MaxUploadBytes != config.DefaultMaxUploadBytes {
		t.Errorf("max_upload_bytes = %d", cfg.Server.MaxUploadBytes)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "*" {
		t.Errorf("cors_origins = %v", cfg.Server.CORSOrigins)
	}
	if cfg.Generation.MaxTokens != 16384 {
		t.Errorf("generation.max_tokens = %d, want 16384", cfg.Generation.MaxTokens)
	}
	if cfg.Chat.HistoryLimit != 10 || cfg.Chat.MaxTokens != 800 || cfg.Chat.Temperature != 0.7 || !cfg.Chat.IsEnabled() {
		t.Errorf("chat defaults = %+v", cfg.Chat)
	}
	if cfg.Voice.Enabled() {
		t.Error("voice should be disabled without a provider name")
	}
	if cfg.Voice.SampleRate != 24000 || cfg.Voice.ClientSampleRate != 24000 || cfg.Voice.FrameSize != 2400 || cfg.Voice.BlockSize != 2400 {
		t.Errorf("voice defaults = %+v", cfg.Voice)
	}
	if !cfg.Voice.UseServerVAD() {
		t.Error("server VAD should default on")
	}
	if cfg.Observe.TraceExporter != "none" || cfg.Observe.ServiceName != "cognify" {
		t.Errorf("observe defaults = %+v", cfg.Observe)
	}
}

func TestLoadFromReader_ExpandsEnv(t *testing.T) {
	t.Setenv("COGNIFY_TEST_COMPLETION_KEY", "from-env")
	cfg := load(t, minimalYAML+`
chat:
  system_prompt: "Costs $5, not ${COGNIFY_TEST_UNSET_VAR}."
voice:
  name: openai-realtime
  api_key: ${COGNIFY_TEST_COMPLETION_KEY}
`)

	if cfg.Voice.APIKey != "from-env" {
		t.Errorf("api_key = %q, want expanded value", cfg.Voice.APIKey)
	}
	if cfg.Chat.SystemPrompt != "Costs $5, not ." {
		t.Errorf("system_prompt = %q; bare $ must survive, ${} must expand", cfg.Chat.SystemPrompt)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(minimalYAML + "\nnpcs: []\n"))
	if err == nil || !strings.Contains(err.Error(), "npcs") {
		t.Errorf("err = %v, want unknown field error", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want []string
	}{
		{
			name: "empty config needs both services",
			yaml: ``,
			want: []string{"document.name is required", "completion.name is required"},
		},
		{
			name: "azure document without credentials",
			yaml: `
document: {name: azure, options: {poll_interval: soon}}
completion: {name: openai}
`,
			want: []string{"document.base_url", "document.api_key", "poll_interval"},
		},
		{
			name: "gcp document without processor",
			yaml: `
document: {name: gcp}
completion: {name: openai}
`,
			want: []string{"processor_id"},
		},
		{
			name: "azure-openai without deployment",
			yaml: `
document: {name: gcp, options: {project_id: p, processor_id: x}}
completion: {name: azure-openai}
`,
			want: []string{"completion.base_url", "completion.api_key", "deployment id"},
		},
		{
			name: "bad ranges",
			yaml: minimalYAML + `
server: {log_level: loud, max_upload_bytes: -1}
generation: {max_tokens: -5}
chat: {history_limit: -1, temperature: 3}
resilience: {max_failures: -1}
observe: {trace_exporter: zipkin}
`,
			want: []string{"server.log_level", "max_upload_bytes", "generation.max_tokens", "chat.history_limit", "chat.temperature", "resilience.max_failures", "observe.trace_exporter"},
		},
		{
			name: "azure realtime without endpoint",
			yaml: minimalYAML + `
voice: {name: azure-realtime, temperature: 2}
`,
			want: []string{"voice.base_url", "voice.temperature"},
		},
		{
			name: "missing upload dir",
			yaml: minimalYAML + `
server: {upload_dir: /nonexistent/cognify-uploads}
`,
			want: []string{"server.upload_dir"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			for _, w := range tt.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error does not mention %q:\n%v", w, err)
				}
			}
		})
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "cognify.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := config.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file err = %v, want ErrNotExist", err)
	}
}

func TestProviderEntry_OptionString(t *testing.T) {
	t.Parallel()
	e := config.ProviderEntry{Options: map[string]any{"s": "x", "i": 3, "f": 1.5, "b": true, "m": map[string]any{}}}
	for k, want := range map[string]string{"s": "x", "i": "3", "f": "1.5", "b": "true", "m": "", "absent": ""} {
		if got := e.OptionString(k); got != want {
			t.Errorf("OptionString(%q) = %q, want %q", k, got, want)
		}
	}
	if d, err := e.OptionDuration("absent"); err != nil || d != 0 {
		t.Errorf("absent duration = %v, %v", d, err)
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateLLM unknown: err = %v", err)
	}
	if _, err := reg.CreateDocument(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateDocument unknown: err = %v", err)
	}
	if _, err := reg.CreateRealtime(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateRealtime unknown: err = %v", err)
	}

	var gotEntry config.ProviderEntry
	reg.RegisterLLM("fake", func(e config.ProviderEntry) (llm.Provider, error) {
		gotEntry = e
		return &llmmock.Provider{}, nil
	})
	reg.RegisterDocument("fake", func(config.ProviderEntry) (document.Extractor, error) { return &docmock.Extractor{}, nil })
	reg.RegisterRealtime("fake", func(config.ProviderEntry) (realtime.Provider, error) { return &rtmock.Provider{}, nil })

	p, err := reg.CreateLLM(config.ProviderEntry{Name: "fake", Model: "m1"})
	if err != nil || p == nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if gotEntry.Model != "m1" {
		t.Errorf("factory got entry %+v", gotEntry)
	}
	if _, err := reg.CreateDocument(config.ProviderEntry{Name: "fake"}); err != nil {
		t.Errorf("CreateDocument: %v", err)
	}
	rt, err := reg.CreateRealtime(config.ProviderEntry{Name: "fake"})
	if err != nil {
		t.Fatalf("CreateRealtime: %v", err)
	}
	if _, err := rt.Connect(context.Background(), realtime.SessionConfig{}); err != nil {
		t.Errorf("Connect: %v", err)
	}

	boom := errors.New("bad key")
	reg.RegisterLLM("broken", func(config.ProviderEntry) (llm.Provider, error) { return nil, boom })
	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "broken"}); !errors.Is(err, boom) {
		t.Errorf("factory error not propagated: %v", err)
	}

	if names := reg.Names("completion"); strings.Join(names, ",") != "broken,fake" {
		t.Errorf("Names = %v", names)
	}
}
