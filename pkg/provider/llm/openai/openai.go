// Package openai provides an LLM provider backed by the OpenAI chat completions
// API, either on api.openai.com or on an Azure OpenAI deployment.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/cognify-ai/cognify/pkg/provider/llm"
)

// DefaultAzureAPIVersion is the Azure OpenAI data-plane version used when
// none is configured.
const DefaultAzureAPIVersion = "2024-08-01-preview"

// Provider implements llm.Provider using the OpenAI SDK.
type Provider struct {
	client oai.Client
	model  string
	azure  bool
}

// config holds optional configuration for the provider.
type config struct {
	baseURL         string
	organization    string
	timeout         time.Duration
	azureEndpoint   string
	azureAPIVersion string
	httpClient      *http.Client
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) {
		c.organization = org
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		c.httpClient = hc
	}
}

// WithAzure routes requests to an Azure OpenAI resource. endpoint is the
// resource root (https://<name>.openai.azure.com) and the provider's model is
// taken as the deployment id. An empty apiVersion selects
// [DefaultAzureAPIVersion].
func WithAzure(endpoint, apiVersion string) Option {
	return func(c *config) {
		c.azureEndpoint = endpoint
		c.azureAPIVersion = apiVersion
	}
}

// New constructs a Provider. With [WithAzure], model is the deployment id.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	switch {
	case apiKey == "":
		return nil, errors.New("openai: apiKey must not be empty")
	case model == "":
		return nil, errors.New("openai: model must not be empty")
	}

	var cfg config
	for _, o := range opts {
		o(&cfg)
	}

	reqOpts := cfg.endpointOptions(apiKey, model)
	if hc := cfg.client(); hc != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(hc))
	}
	return &Provider{
		client: oai.NewClient(reqOpts...),
		model:  model,
		azure:  cfg.azureEndpoint != "",
	}, nil
}

// endpointOptions selects the route and credentials: an Azure deployment
// authenticated by api-key header, or the OpenAI API with a bearer token.
func (c *config) endpointOptions(apiKey, model string) []option.RequestOption {
	if c.azureEndpoint != "" {
		version := c.azureAPIVersion
		if version == "" {
			version = DefaultAzureAPIVersion
		}
		// The SDK appends "chat/completions" to the base URL.
		base := strings.TrimRight(c.azureEndpoint, "/") + "/openai/deployments/" + model + "/"
		return []option.RequestOption{
			option.WithBaseURL(base),
			option.WithQuery("api-version", version),
			option.WithHeaderDel("authorization"),
			option.WithHeader("api-key", apiKey),
		}
	}
	out := []option.RequestOption{option.WithAPIKey(apiKey)}
	if c.baseURL != "" {
		out = append(out, option.WithBaseURL(c.baseURL))
	}
	if c.organization != "" {
		out = append(out, option.WithOrganization(c.organization))
	}
	return out
}

// client returns the configured HTTP client, a timeout-bound one, or nil for
// the SDK default.
func (c *config) client() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	if c.timeout > 0 {
		return &http.Client{Timeout: c.timeout}
	}
	return nil
}

// Complete implements llm.Provider. The response carries the first candidate;
// a response without candidates yields empty Content rather than an error.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, fmt.Errorf("openai: build params: %w", err)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}

	u := resp.Usage
	out := &llm.CompletionResponse{Usage: llm.Usage{
		PromptTokens:     int(u.PromptTokens),
		CompletionTokens: int(u.CompletionTokens),
		TotalTokens:      int(u.TotalTokens),
	}}
	if len(resp.Choices) > 0 {
		first := resp.Choices[0]
		out.Content, out.FinishReason = first.Message.Content, first.FinishReason
	}
	return out, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	return modelCapabilities(p.model)
}

// modelCapabilities returns ModelCapabilities for known OpenAI model names.
// Azure deployments are usually named after their model, so the same table
// applies.
func modelCapabilities(model string) llm.ModelCapabilities {
	caps := llm.ModelCapabilities{
		ContextWindow:   128_000,
		MaxOutputTokens: 4_096,
	}

	lower := strings.ToLower(model)
	switch {
	case strings.HasPrefix(lower, "gpt-4o"), strings.HasPrefix(lower, "gpt-4.1"):
		caps.MaxOutputTokens = 16_384
	case strings.HasPrefix(lower, "gpt-4-turbo"):
		caps.MaxOutputTokens = 4_096
	case strings.HasPrefix(lower, "gpt-4"):
		caps.ContextWindow = 8_192
	case strings.HasPrefix(lower, "gpt-3.5-turbo"):
		caps.ContextWindow = 16_385
	case strings.HasPrefix(lower, "o1-mini"):
		caps.MaxOutputTokens = 65_536
	case strings.HasPrefix(lower, "o1"), strings.HasPrefix(lower, "o3"):
		caps.ContextWindow = 200_000
		caps.MaxOutputTokens = 100_000
	default:
		// Unknown deployment name: do not clamp.
		caps.MaxOutputTokens = 0
	}
	return caps
}

// buildParams converts a CompletionRequest into OpenAI SDK params.
func (p *Provider) buildParams(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	messages := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, oai.SystemMessage(req.SystemPrompt))
	}

	for _, m := range req.Messages {
		msg, err := convertMessage(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		messages = append(messages, msg)
	}
	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: messages,
	}

	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.TopP != 0 {
		params.TopP = param.NewOpt(req.TopP)
	}
	if req.MaxTokens > 0 {
		// Azure api-versions before 2024-09-01 only understand max_tokens.
		if p.azure {
			params.MaxTokens = param.NewOpt(int64(req.MaxTokens))
		} else {
			params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
		}
	}

	return params, nil
}

// convertMessage converts an llm.Message to an OpenAI SDK message param.
func convertMessage(m llm.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case llm.RoleSystem:
		return oai.SystemMessage(m.Content), nil
	case llm.RoleUser:
		return oai.UserMessage(m.Content), nil
	case llm.RoleAssistant:
		return oai.AssistantMessage(m.Content), nil
	default:
		return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: unknown message role %q", m.Role)
	}
}
