package retrieval

import (
	"context"
	"errors"
	"sync"

	"github.com/relaydesk/voicegate/internal/types"
	"github.com/rs/zerolog"
)

// ErrNamespaceNotFound is returned when no index exists for a namespace.
// Distinct from an empty result, which is a valid success.
var ErrNamespaceNotFound = errors.New("namespace not found")

// Registry maps tenant namespaces to their retrieval indexes. Lookups are
// read-mostly; installs happen at startup and via the ingestion endpoint.
type Registry struct {
	mu      sync.RWMutex
	indexes map[string]*Index
	logger  zerolog.Logger
}

// NewRegistry creates an empty namespace registry
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		indexes: make(map[string]*Index),
		logger:  logger,
	}
}

// Install replaces the index for a namespace
func (r *Registry) Install(namespace string, ix *Index) {
	r.mu.Lock()
	r.indexes[namespace] = ix
	r.mu.Unlock()

	r.logger.Info().
		Str("namespace", namespace).
		Int("chunks", ix.Size()).
		Msg("index installed")
}

// Namespaces returns the registered namespace keys
func (r *Registry) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.indexes))
	for ns := range r.indexes {
		out = append(out, ns)
	}
	return out
}

// Retrieve returns the top-k snippets for a query scoped to one namespace.
// Returns ErrNamespaceNotFound when the namespace has no index.
func (r *Registry) Retrieve(ctx context.Context, namespace, query string, k int) ([]types.Snippet, error) {
	r.mu.RLock()
	ix, ok := r.indexes[namespace]
	r.mu.RUnlock()

	if !ok {
		return nil, ErrNamespaceNotFound
	}
	return ix.Search(ctx, query, k)
}
