// Package gcp provides a document.Extractor backed by Google Cloud Document AI.
//
// Documents are sent inline (RawDocument) to an OCR or layout processor and the
// processor's reading-order text is returned.
package gcp

import (
	"context"
	"fmt"
	"io"
	"strings"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"

	"github.com/cognify-ai/cognify/pkg/provider/document"
)

// DefaultLocation is the Document AI multi-region used when none is configured.
const DefaultLocation = "us"

// Config identifies the processor to call.
type Config struct {
	ProjectID        string
	Location         string
	ProcessorID      string
	ProcessorVersion string

	// Credentials is either a service-account JSON document or a path to one.
	// Empty falls back to Application Default Credentials.
	Credentials string
}

// processFunc is the subset of the Document AI client used by Extractor.
type processFunc func(ctx context.Context, req *documentaipb.ProcessRequest) (*documentaipb.ProcessResponse, error)

// Extractor implements document.Extractor against a Document AI processor.
type Extractor struct {
	name    string
	process processFunc
	close   func() error
}

// New dials Document AI at the regional endpoint for cfg.Location.
func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Extractor, error) {
	if cfg.Location == "" {
		cfg.Location = DefaultLocation
	}
	name := ProcessorName(cfg.ProjectID, cfg.Location, cfg.ProcessorID, cfg.ProcessorVersion)
	if name == "" {
		return nil, fmt.Errorf("gcp: project_id, location and processor_id are required")
	}

	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)
	clientOpts := append([]option.ClientOption{option.WithEndpoint(endpoint)}, credentialOptions(cfg.Credentials)...)
	clientOpts = append(clientOpts, opts...)

	c, err := documentai.NewDocumentProcessorClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("gcp: documentai client: %w", err)
	}
	return &Extractor{
		name: name,
		process: func(ctx context.Context, req *documentaipb.ProcessRequest) (*documentaipb.ProcessResponse, error) {
			return c.ProcessDocument(ctx, req)
		},
		close: c.Close,
	}, nil
}

// Extract implements document.Extractor.
func (e *Extractor) Extract(ctx context.Context, src document.Source) (*document.Result, error) {
	if src.Reader == nil {
		return nil, fmt.Errorf("gcp: nil document reader")
	}
	data, err := io.ReadAll(src.Reader)
	if err != nil {
		return nil, fmt.Errorf("gcp: read document: %w", err)
	}
	mime := src.MimeType
	if mime == "" || mime == "application/octet-stream" {
		mime = "application/pdf"
	}

	resp, err := e.process(ctx, &documentaipb.ProcessRequest{
		Name: e.name,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: mime,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gcp: ProcessDocument: %w", err)
	}
	if resp == nil || resp.GetDocument() == nil {
		return &document.Result{}, nil
	}
	doc := resp.GetDocument()
	return &document.Result{Text: doc.GetText(), Pages: len(doc.GetPages())}, nil
}

// Close releases the underlying gRPC connection.
func (e *Extractor) Close() error {
	if e.close == nil {
		return nil
	}
	return e.close()
}

// ProcessorName builds the fully qualified processor resource name, or ""
// when a required part is missing.
func ProcessorName(project, location, processorID, version string) string {
	project = strings.TrimSpace(project)
	location = strings.TrimSpace(location)
	processorID = strings.TrimSpace(processorID)
	version = strings.TrimSpace(version)

	if project == "" || location == "" || processorID == "" {
		return ""
	}
	base := fmt.Sprintf("projects/%s/locations/%s/processors/%s", project, location, processorID)
	if version != "" {
		return base + "/processorVersions/" + version
	}
	return base
}

// credentialOptions accepts inline JSON or a file path.
func credentialOptions(creds string) []option.ClientOption {
	creds = strings.TrimSpace(creds)
	switch {
	case creds == "":
		return nil
	case strings.HasPrefix(creds, "{"):
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	default:
		return []option.ClientOption{option.WithCredentialsFile(creds)}
	}
}

var _ document.Extractor = (*Extractor)(nil)
