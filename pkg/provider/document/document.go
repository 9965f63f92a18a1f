// Package document defines the Extractor interface for document-understanding
// services that turn an uploaded file into plain text.
//
// Implementations live in sub-packages (azure, gcp, mock) and must be safe for
// concurrent use.
package document

import (
	"context"
	"io"
)

// Source is a document to analyse.
type Source struct {
	// Reader yields the raw document bytes. Extractors read it at most once.
	Reader io.Reader

	// Size is the document length in bytes, or -1 if unknown.
	Size int64

	// Name is the client-supplied file name. Informational only.
	Name string

	// MimeType is the declared content type. Empty lets the service sniff it.
	MimeType string
}

// Result is the text extracted from a document.
type Result struct {
	// Text is the full reading-order content across all pages. It may be empty
	// when the service found nothing to read.
	Text string

	// Pages is the number of pages the service analysed, if reported.
	Pages int
}

// Extractor is the abstraction over a hosted document-understanding backend.
type Extractor interface {
	// Extract sends the document to the backend and waits for the analysis to
	// finish, polling as the backend requires. Transport failures and analyses
	// reported as failed are returned as errors.
	Extract(ctx context.Context, src Source) (*Result, error)
}
