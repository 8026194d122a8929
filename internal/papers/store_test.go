package papers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/KevinMoonLab/nexarag/internal/types"
)

type fakeBackend struct {
	mu       sync.Mutex
	searchFn func(ctx context.Context, query string) ([]types.PaperRelevanceResult, error)
	added    [][]string
	addErr   error
}

func (f *fakeBackend) SearchRelevance(ctx context.Context, query string) ([]types.PaperRelevanceResult, error) {
	return f.searchFn(ctx, query)
}

func (f *fakeBackend) AddPapers(ctx context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, ids)
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	shown  []string
	errors []string
}

func (f *fakeNotifier) Show(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shown = append(f.shown, msg)
}

func (f *fakeNotifier) ShowError(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, msg)
}

func result(id, title string) types.PaperRelevanceResult {
	return types.PaperRelevanceResult{PaperID: id, Title: title}
}

func TestStore_SearchDeliversResults(t *testing.T) {
	b := &fakeBackend{searchFn: func(ctx context.Context, q string) ([]types.PaperRelevanceResult, error) {
		return []types.PaperRelevanceResult{result("p1", "Graphs")}, nil
	}}
	s := NewStore(b, &fakeNotifier{}, zap.NewNop())

	s.Search(context.Background(), "graphs")
	if !s.Loading() {
		t.Error("loading should be set while the query is in flight")
	}
	s.Wait()

	if s.Loading() {
		t.Error("loading should clear after delivery")
	}
	got := s.Results()
	if len(got) != 1 || got[0].PaperID != "p1" {
		t.Errorf("results = %+v", got)
	}
}

func TestStore_StaleQueryNeverLands(t *testing.T) {
	release := make(chan struct{})
	b := &fakeBackend{searchFn: func(ctx context.Context, q string) ([]types.PaperRelevanceResult, error) {
		if q == "old" {
			<-release
			return []types.PaperRelevanceResult{result("stale", "Stale")}, nil
		}
		return []types.PaperRelevanceResult{result("fresh", "Fresh")}, nil
	}}
	s := NewStore(b, &fakeNotifier{}, zap.NewNop())

	s.Search(context.Background(), "old")
	s.Search(context.Background(), "new")
	time.Sleep(20 * time.Millisecond) // let the newer query land first
	close(release)
	s.Wait()

	got := s.Results()
	if len(got) != 1 || got[0].PaperID != "fresh" {
		t.Errorf("stale result reached the store: %+v", got)
	}
}

func TestStore_BlankTermClears(t *testing.T) {
	b := &fakeBackend{searchFn: func(ctx context.Context, q string) ([]types.PaperRelevanceResult, error) {
		return []types.PaperRelevanceResult{result("p1", "P")}, nil
	}}
	s := NewStore(b, &fakeNotifier{}, zap.NewNop())
	s.Search(context.Background(), "x")
	s.Wait()

	s.Search(context.Background(), "   ")
	if len(s.Results()) != 0 {
		t.Error("blank term should clear results")
	}
	if s.Loading() {
		t.Error("clearing must not leave loading set")
	}
}

func TestStore_SearchFailureNotifiesAndKeepsNothing(t *testing.T) {
	b := &fakeBackend{searchFn: func(ctx context.Context, q string) ([]types.PaperRelevanceResult, error) {
		return nil, errors.New("backend down")
	}}
	n := &fakeNotifier{}
	s := NewStore(b, n, zap.NewNop())

	s.Search(context.Background(), "query")
	s.Wait()

	if s.Loading() {
		t.Error("loading should clear on failure")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.errors) != 1 {
		t.Errorf("expected one error toast, got %v", n.errors)
	}
}

func TestStore_AddQueuesPapers(t *testing.T) {
	b := &fakeBackend{}
	n := &fakeNotifier{}
	s := NewStore(b, n, zap.NewNop())

	s.Add(context.Background(), []string{"p1", "p2"})
	s.Add(context.Background(), nil) // no-op

	b.mu.Lock()
	if len(b.added) != 1 || len(b.added[0]) != 2 {
		t.Errorf("added = %v", b.added)
	}
	b.mu.Unlock()

	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.shown) != 1 || n.shown[0] != "Adding papers..." {
		t.Errorf("toasts = %v", n.shown)
	}
}
