// Package mock provides a test double for the document.Extractor interface.
package mock

import (
	"context"
	"io"
	"sync"

	"github.com/cognify-ai/cognify/pkg/provider/document"
)

// ExtractCall records a single invocation of Extract.
type ExtractCall struct {
	Name     string
	MimeType string
	Data     []byte
}

// Extractor is a mock implementation of document.Extractor. It drains the
// source reader so callers can observe that the upload was consumed.
type Extractor struct {
	mu sync.Mutex

	// Result is returned by Extract. Nil yields an empty result.
	Result *document.Result

	// Err, if non-nil, is returned by Extract after the source is read.
	Err error

	// ExtractFunc, if set, is called after the source is read and overrides
	// Result and Err.
	ExtractFunc func(ctx context.Context, data []byte) (*document.Result, error)

	// Calls records every invocation of Extract in order.
	Calls []ExtractCall
}

// Extract records the call and returns the configured result.
func (m *Extractor) Extract(ctx context.Context, src document.Source) (*document.Result, error) {
	var data []byte
	if src.Reader != nil {
		var err error
		if data, err = io.ReadAll(src.Reader); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	m.Calls = append(m.Calls, ExtractCall{Name: src.Name, MimeType: src.MimeType, Data: data})
	fn, res, err := m.ExtractFunc, m.Result, m.Err
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, data)
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		return &document.Result{}, nil
	}
	out := *res
	return &out, nil
}

// CallCount returns the number of Extract invocations.
func (m *Extractor) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastCall returns the most recent call, or the zero value when there was none.
func (m *Extractor) LastCall() ExtractCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return ExtractCall{}
	}
	return m.Calls[len(m.Calls)-1]
}

var _ document.Extractor = (*Extractor)(nil)
