// Package kg manages knowledge graph snapshots on the backend: list, export
// the live graph under a name, import a snapshot, delete one.
package kg

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/KevinMoonLab/nexarag/internal/types"
)

// Backend is the slice of the API client the store needs.
type Backend interface {
	KgList(ctx context.Context) ([]types.KnowledgeGraphInfo, error)
	KgExport(ctx context.Context, name, description string) (types.KgOperationResponse, error)
	KgImport(ctx context.Context, name string) (types.KgOperationResponse, error)
	KgDelete(ctx context.Context, name string) (types.KgOperationResponse, error)
	KgCurrent(ctx context.Context) (types.CurrentKgInfo, error)
}

// Store is a thin stateless wrapper over the backend lifecycle endpoints.
// An operation the server reports as unsuccessful comes back as an error,
// so callers have a single failure path.
type Store struct {
	backend Backend
	logger  *zap.Logger
}

// NewStore creates a store.
func NewStore(backend Backend, logger *zap.Logger) *Store {
	return &Store{backend: backend, logger: logger.With(zap.String("component", "kg"))}
}

// List returns the available snapshots.
func (s *Store) List(ctx context.Context) ([]types.KnowledgeGraphInfo, error) {
	return s.backend.KgList(ctx)
}

// Export saves the live graph as a named snapshot.
func (s *Store) Export(ctx context.Context, name, description string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("snapshot name is required")
	}
	resp, err := s.backend.KgExport(ctx, name, description)
	return s.ack("export", name, resp, err)
}

// Import replaces the live graph with a named snapshot. The graph store
// catches up through the graph_updated event the server emits afterwards.
func (s *Store) Import(ctx context.Context, name string) (string, error) {
	resp, err := s.backend.KgImport(ctx, name)
	return s.ack("import", name, resp, err)
}

// Delete removes a named snapshot.
func (s *Store) Delete(ctx context.Context, name string) (string, error) {
	resp, err := s.backend.KgDelete(ctx, name)
	return s.ack("delete", name, resp, err)
}

// Current describes the graph currently backing the server.
func (s *Store) Current(ctx context.Context) (types.CurrentKgInfo, error) {
	return s.backend.KgCurrent(ctx)
}

func (s *Store) ack(op, name string, resp types.KgOperationResponse, err error) (string, error) {
	if err != nil {
		s.logger.Warn("kg operation failed", zap.String("op", op), zap.String("name", name), zap.Error(err))
		return "", err
	}
	if !resp.Success {
		s.logger.Warn("kg operation rejected", zap.String("op", op), zap.String("name", name), zap.String("message", resp.Message))
		return "", fmt.Errorf("kg %s %q: %s", op, name, resp.Message)
	}
	return resp.Message, nil
}
