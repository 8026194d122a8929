// Package papers backs the relevance-search panel: query the backend for
// candidate papers, then queue the chosen ones for ingestion.
package papers

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/KevinMoonLab/nexarag/internal/dispatch"
	"github.com/KevinMoonLab/nexarag/internal/types"
)

// Backend is the slice of the API client the store needs.
type Backend interface {
	SearchRelevance(ctx context.Context, query string) ([]types.PaperRelevanceResult, error)
	AddPapers(ctx context.Context, paperIDs []string) error
}

// Notifier surfaces request outcomes to the user.
type Notifier interface {
	Show(msg string)
	ShowError(msg string)
}

// Store holds the current search results. Searches are switch-latest: while
// a query is in flight, a newer query supersedes it and the stale result set
// never reaches subscribers.
type Store struct {
	backend  Backend
	notifier Notifier
	logger   *zap.Logger

	mu      sync.RWMutex
	results []types.PaperRelevanceResult
	loading bool

	search *dispatch.Sequencer[string, []types.PaperRelevanceResult]

	subMu  sync.Mutex
	subs   map[int]chan struct{}
	nextID int
}

// NewStore creates a store with no results.
func NewStore(backend Backend, notifier Notifier, logger *zap.Logger) *Store {
	s := &Store{
		backend:  backend,
		notifier: notifier,
		logger:   logger.With(zap.String("component", "papers")),
		subs:     make(map[int]chan struct{}),
	}
	s.search = dispatch.New(
		func(ctx context.Context, query string) ([]types.PaperRelevanceResult, error) {
			return backend.SearchRelevance(ctx, query)
		},
		func(query string, results []types.PaperRelevanceResult) {
			s.mu.Lock()
			s.results = results
			s.loading = false
			s.mu.Unlock()
			s.logger.Debug("search finished", zap.String("query", query), zap.Int("results", len(results)))
			s.notifySubscribers()
		},
		func(query string, err error) {
			s.mu.Lock()
			s.loading = false
			s.mu.Unlock()
			s.logger.Warn("search failed", zap.String("query", query), zap.Error(err))
			s.notifier.ShowError("Search failed")
			s.notifySubscribers()
		},
	)
	return s
}

// Search runs a relevance query. A blank term clears instead.
func (s *Store) Search(ctx context.Context, term string) {
	term = strings.TrimSpace(term)
	if term == "" {
		s.Clear()
		return
	}
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()
	s.notifySubscribers()
	s.search.Dispatch(ctx, term)
}

// Results returns the current result set.
func (s *Store) Results() []types.PaperRelevanceResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.PaperRelevanceResult, len(s.results))
	copy(out, s.results)
	return out
}

// Loading reports whether a query is in flight.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Add queues papers for ingestion. The graph grows later through a
// graph_updated push event; nothing changes locally here.
func (s *Store) Add(ctx context.Context, paperIDs []string) {
	if len(paperIDs) == 0 {
		return
	}
	if err := s.backend.AddPapers(ctx, paperIDs); err != nil {
		s.logger.Warn("add papers failed", zap.Int("count", len(paperIDs)), zap.Error(err))
		s.notifier.ShowError("Failed to add papers")
		return
	}
	s.notifier.Show("Adding papers...")
}

// Clear drops the result set.
func (s *Store) Clear() {
	s.mu.Lock()
	s.results = nil
	s.loading = false
	s.mu.Unlock()
	s.notifySubscribers()
}

// Wait blocks until in-flight searches settle. Intended for shutdown and tests.
func (s *Store) Wait() {
	s.search.Wait()
}

// Subscribe registers for change notification. Ticks coalesce; consumers
// re-read snapshots.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextID
	s.nextID++
	ch := make(chan struct{}, 1)
	s.subs[id] = ch
	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) notifySubscribers() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
