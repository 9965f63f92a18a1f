// Package azure provides a document.Extractor backed by Azure AI Document
// Intelligence (formerly Form Recognizer) through its REST API.
//
// An analysis is a long-running operation: the document is submitted with a
// POST, and the returned Operation-Location is polled until the service
// reports success or failure.
package azure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cognify-ai/cognify/pkg/provider/document"
)

const (
	// DefaultModel is the prebuilt OCR/read model.
	DefaultModel = "prebuilt-read"

	// DefaultAPIVersion is the GA Form Recognizer API version.
	DefaultAPIVersion = "2023-07-31"

	// DefaultPollInterval is used when the service does not send Retry-After.
	DefaultPollInterval = time.Second

	// firstDocumentIntelligenceVersion is the earliest API version served
	// under the /documentintelligence route instead of /formrecognizer.
	firstDocumentIntelligenceVersion = "2023-10-31-preview"
)

// ErrAnalysisFailed is returned when the service reports the analysis as failed.
var ErrAnalysisFailed = errors.New("azure: document analysis failed")

// Extractor implements document.Extractor against a Document Intelligence resource.
type Extractor struct {
	endpoint     string
	apiKey       string
	model        string
	apiVersion   string
	pollInterval time.Duration
	client       *http.Client
}

// Option is a functional option for Extractor.
type Option func(*Extractor)

// WithModel selects the analysis model (default [DefaultModel]).
func WithModel(model string) Option {
	return func(e *Extractor) {
		if model != "" {
			e.model = model
		}
	}
}

// WithAPIVersion selects the REST API version (default [DefaultAPIVersion]).
func WithAPIVersion(v string) Option {
	return func(e *Extractor) {
		if v != "" {
			e.apiVersion = v
		}
	}
}

// WithPollInterval sets the fallback delay between status polls.
func WithPollInterval(d time.Duration) Option {
	return func(e *Extractor) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Extractor) {
		if c != nil {
			e.client = c
		}
	}
}

// New constructs an Extractor for the resource at endpoint
// (https://<name>.cognitiveservices.azure.com).
func New(endpoint, apiKey string, opts ...Option) (*Extractor, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("azure: endpoint must not be empty")
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("azure: invalid endpoint %q: %w", endpoint, err)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("azure: apiKey must not be empty")
	}
	e := &Extractor{
		endpoint:     strings.TrimRight(endpoint, "/"),
		apiKey:       apiKey,
		model:        DefaultModel,
		apiVersion:   DefaultAPIVersion,
		pollInterval: DefaultPollInterval,
		client:       &http.Client{},
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// analyzeURL returns the submission URL for the configured model and version.
func (e *Extractor) analyzeURL() string {
	route := "formrecognizer"
	if e.apiVersion >= firstDocumentIntelligenceVersion {
		route = "documentintelligence"
	}
	q := url.Values{"api-version": {e.apiVersion}}
	return fmt.Sprintf("%s/%s/documentModels/%s:analyze?%s", e.endpoint, route, url.PathEscape(e.model), q.Encode())
}

// operation is the polled status document.
type operation struct {
	Status        string `json:"status"`
	AnalyzeResult *struct {
		Content string            `json:"content"`
		Pages   []json.RawMessage `json:"pages"`
	} `json:"analyzeResult"`
	Error *serviceError `json:"error"`
}

type serviceError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *serviceError) String() string {
	if e == nil {
		return "unknown error"
	}
	return e.Code + ": " + e.Message
}

// Extract implements document.Extractor.
func (e *Extractor) Extract(ctx context.Context, src document.Source) (*document.Result, error) {
	if src.Reader == nil {
		return nil, fmt.Errorf("azure: nil document reader")
	}
	opURL, err := e.submit(ctx, src)
	if err != nil {
		return nil, err
	}

	for {
		op, wait, err := e.poll(ctx, opURL)
		if err != nil {
			return nil, err
		}
		switch strings.ToLower(op.Status) {
		case "succeeded":
			res := &document.Result{}
			if op.AnalyzeResult != nil {
				res.Text = op.AnalyzeResult.Content
				res.Pages = len(op.AnalyzeResult.Pages)
			}
			return res, nil
		case "failed", "canceled":
			return nil, fmt.Errorf("%w: %s", ErrAnalysisFailed, op.Error.String())
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (e *Extractor) submit(ctx context.Context, src document.Source) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.analyzeURL(), src.Reader)
	if err != nil {
		return "", fmt.Errorf("azure: build analyze request: %w", err)
	}
	if src.Size >= 0 {
		req.ContentLength = src.Size
	}
	ct := src.MimeType
	if ct == "" {
		ct = "application/octet-stream"
	}
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Ocp-Apim-Subscription-Key", e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("azure: analyze: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("azure: analyze: %s", describeFailure(resp))
	}
	opURL := resp.Header.Get("Operation-Location")
	if opURL == "" {
		return "", fmt.Errorf("azure: analyze: response has no Operation-Location")
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return opURL, nil
}

func (e *Extractor) poll(ctx context.Context, opURL string) (*operation, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("azure: build poll request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("azure: poll: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("azure: poll: %s", describeFailure(resp))
	}
	var op operation
	if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
		return nil, 0, fmt.Errorf("azure: decode operation: %w", err)
	}

	wait := e.pollInterval
	if s, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && s > 0 {
		wait = time.Duration(s) * time.Second
	}
	return &op, wait, nil
}

// describeFailure renders a non-success response, preferring the service's
// own error message.
func describeFailure(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var envelope struct {
		Error *serviceError `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil {
		return fmt.Sprintf("status %d: %s", resp.StatusCode, envelope.Error.String())
	}
	return fmt.Sprintf("status %d", resp.StatusCode)
}

var _ document.Extractor = (*Extractor)(nil)
