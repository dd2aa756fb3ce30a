package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/relaydesk/voicegate/internal/retrieval"
	"github.com/rs/zerolog"
)

// Service builds retrieval indexes from raw documents and installs them
// into the namespace registry
type Service struct {
	registry *retrieval.Registry
	embedder retrieval.Embedder
	chunker  *Chunker
	logger   zerolog.Logger
}

// NewService creates an ingestion service
func NewService(registry *retrieval.Registry, embedder retrieval.Embedder, logger zerolog.Logger) *Service {
	return &Service{
		registry: registry,
		embedder: embedder,
		chunker:  NewChunker(1000, 200),
		logger:   logger,
	}
}

// InstallDocuments chunks the documents, embeds them and installs the
// resulting index under the namespace, replacing any previous index.
func (s *Service) InstallDocuments(ctx context.Context, namespace string, documents []string) (int, error) {
	var chunks []string
	for _, doc := range documents {
		chunks = append(chunks, s.chunker.Split(doc)...)
	}

	ix, err := retrieval.NewIndex(ctx, s.embedder, chunks)
	if err != nil {
		return 0, fmt.Errorf("failed to build index for %s: %w", namespace, err)
	}

	s.registry.Install(namespace, ix)
	return len(chunks), nil
}

// LoadDir ingests a directory tree where each top-level subdirectory is a
// namespace and every .txt/.md file inside it is a document.
func (s *Service) LoadDir(ctx context.Context, root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("failed to read knowledge dir: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		namespace := entry.Name()

		var documents []string
		nsDir := filepath.Join(root, namespace)
		files, err := os.ReadDir(nsDir)
		if err != nil {
			return fmt.Errorf("failed to read namespace dir %s: %w", namespace, err)
		}
		for _, f := range files {
			ext := strings.ToLower(filepath.Ext(f.Name()))
			if f.IsDir() || (ext != ".txt" && ext != ".md") {
				continue
			}
			data, err := os.ReadFile(filepath.Join(nsDir, f.Name()))
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", f.Name(), err)
			}
			documents = append(documents, string(data))
		}

		if len(documents) == 0 {
			continue
		}
		count, err := s.InstallDocuments(ctx, namespace, documents)
		if err != nil {
			return err
		}
		s.logger.Info().
			Str("namespace", namespace).
			Int("documents", len(documents)).
			Int("chunks", count).
			Msg("knowledge loaded")
	}
	return nil
}

type ingestRequest struct {
	Namespace string   `json:"namespace"`
	Documents []string `json:"documents"`
}

// HandleIngest is the operator endpoint for installing namespace documents
func (s *Service) HandleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Namespace == "" || len(req.Documents) == 0 {
		http.Error(w, "namespace and documents are required", http.StatusBadRequest)
		return
	}

	count, err := s.InstallDocuments(r.Context(), req.Namespace, req.Documents)
	if err != nil {
		s.logger.Error().Err(err).Str("namespace", req.Namespace).Msg("ingestion failed")
		http.Error(w, "ingestion failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"namespace": req.Namespace,
		"chunks":    count,
	})
}
