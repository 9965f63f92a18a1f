package anyllm

import (
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/cognify-ai/cognify/pkg/provider/llm"
)

func TestConvertMessage(t *testing.T) {
	for _, role := range []string{llm.RoleSystem, llm.RoleUser, llm.RoleAssistant} {
		got := convertMessage(llm.Message{Role: role, Content: "hello"})
		if got.Role != role {
			t.Errorf("role = %q, want %q", got.Role, role)
		}
		if got.ContentString() != "hello" {
			t.Errorf("content = %q, want hello", got.ContentString())
		}
	}
}

func TestBuildParams(t *testing.T) {
	p := &Provider{model: "claude-3-5-sonnet-latest"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "be kind",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "hi"},
			{Role: llm.RoleAssistant, Content: "hello"},
			{Role: llm.RoleUser, Content: "how are you"},
		},
		Temperature: 0.7,
		TopP:        0.95,
		MaxTokens:   800,
	})
	if params.Model != "claude-3-5-sonnet-latest" {
		t.Errorf("model = %q", params.Model)
	}
	if len(params.Messages) != 4 {
		t.Fatalf("messages = %d, want 4 (system + 3)", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Errorf("first message role = %q, want system", params.Messages[0].Role)
	}
	if params.Temperature == nil || *params.Temperature != 0.7 {
		t.Errorf("temperature = %v, want 0.7", params.Temperature)
	}
	if params.TopP == nil || *params.TopP != 0.95 {
		t.Errorf("top_p = %v, want 0.95", params.TopP)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 800 {
		t.Errorf("max tokens = %v, want 800", params.MaxTokens)
	}

	bare := p.buildParams(llm.CompletionRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "x"}}})
	if bare.Temperature != nil || bare.TopP != nil || bare.MaxTokens != nil {
		t.Error("zero sampling values must be left unset")
	}
}

func TestModelCapabilities(t *testing.T) {
	tests := []struct {
		model     string
		maxOutput int
	}{
		{"gpt-4o-mini", 16_384},
		{"GPT-4o", 16_384},
		{"gpt-4-turbo", 4_096},
		{"o3-mini", 100_000},
		{"claude-3-opus-20240229", 4_096},
		{"claude-3-5-sonnet-latest", 8_192},
		{"gemini-1.5-pro", 8_192},
		{"gemini-2.0-flash", 8_192},
		{"llama3", 0},
	}
	for _, tt := range tests {
		if got := modelCapabilities(tt.model).MaxOutputTokens; got != tt.maxOutput {
			t.Errorf("%s: MaxOutputTokens = %d, want %d", tt.model, got, tt.maxOutput)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty vendor")
	}
	if _, err := New("openai", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("fakecloud", "some-model", anyllmlib.WithAPIKey("dummy")); err == nil {
		t.Error("expected error for unsupported vendor")
	}
}

func TestNew_Backends(t *testing.T) {
	p, err := New("anthropic", "claude-3-5-sonnet-latest", anyllmlib.WithAPIKey("sk-ant-test"))
	if err != nil {
		t.Fatalf("anthropic: %v", err)
	}
	if p.Capabilities().MaxOutputTokens != 8_192 {
		t.Errorf("anthropic capabilities not derived from model")
	}

	if _, err := New("ollama", "llama3"); err != nil {
		t.Errorf("ollama should not need an API key: %v", err)
	}
}

func TestVendors(t *testing.T) {
	got := Vendors()
	if len(got) != 9 {
		t.Fatalf("vendors = %v, want 9 entries", got)
	}
	for i := 1; i < len(got); i++ {
		if got[i-1] >= got[i] {
			t.Fatalf("vendors not sorted: %v", got)
		}
	}
	if _, err := New("OLLAMA", "llama3"); err != nil {
		t.Errorf("vendor names should be case-insensitive: %v", err)
	}
}
