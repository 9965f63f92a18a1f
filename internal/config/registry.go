package config

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cognify-ai/cognify/pkg/provider/document"
	"github.com/cognify-ai/cognify/pkg/provider/llm"
	"github.com/cognify-ai/cognify/pkg/provider/realtime"
)

// ErrProviderNotRegistered is returned by the Create methods when no factory
// is registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to constructors for each provider kind. It is
// safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	document map[string]func(ProviderEntry) (document.Extractor, error)
	llm      map[string]func(ProviderEntry) (llm.Provider, error)
	realtime map[string]func(ProviderEntry) (realtime.Provider, error)
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		document: make(map[string]func(ProviderEntry) (document.Extractor, error)),
		llm:      make(map[string]func(ProviderEntry) (llm.Provider, error)),
		realtime: make(map[string]func(ProviderEntry) (realtime.Provider, error)),
	}
}

// RegisterDocument registers a document service factory under name,
// replacing any previous registration.
func (r *Registry) RegisterDocument(name string, factory func(ProviderEntry) (document.Extractor, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.document[name] = factory
}

// RegisterLLM registers a completion provider factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterRealtime registers a speech-to-speech provider factory under name.
func (r *Registry) RegisterRealtime(name string, factory func(ProviderEntry) (realtime.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.realtime[name] = factory
}

// CreateDocument builds the document service registered under entry.Name.
func (r *Registry) CreateDocument(entry ProviderEntry) (document.Extractor, error) {
	return create(r, r.document, "document", entry)
}

// CreateLLM builds the completion provider registered under entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return create(r, r.llm, "completion", entry)
}

// CreateRealtime builds the speech-to-speech provider registered under entry.Name.
func (r *Registry) CreateRealtime(entry ProviderEntry) (realtime.Provider, error) {
	return create(r, r.realtime, "voice", entry)
}

// Names returns the sorted registered names for kind ("document",
// "completion" or "voice").
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	switch kind {
	case "document":
		names = keys(r.document)
	case "completion":
		names = keys(r.llm)
	case "voice":
		names = keys(r.realtime)
	}
	sort.Strings(names)
	return names
}

func create[T any](r *Registry, m map[string]func(ProviderEntry) (T, error), kind string, entry ProviderEntry) (T, error) {
	r.mu.RLock()
	factory, ok := m[entry.Name]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, entry.Name)
	}
	return factory(entry)
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
