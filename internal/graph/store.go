// Package graph holds the canonical knowledge graph state and its derived
// views. The Store is the only writer of the graph; everything a consumer
// reads (indices, filtered subgraph, selection) is recomputed from the
// canonical state inside the mutation, so readers never observe an
// intermediate state.
package graph

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/KevinMoonLab/nexarag/internal/dispatch"
	"github.com/KevinMoonLab/nexarag/internal/events"
	"github.com/KevinMoonLab/nexarag/internal/types"
)

// Backend is the slice of the api client the store needs.
type Backend interface {
	GetGraph(ctx context.Context) (types.KnowledgeGraph, error)
	ClearGraph(ctx context.Context) error
	AddCitations(ctx context.Context, paperIDs []string) error
	AddReferences(ctx context.Context, paperIDs []string) error
}

// Notifier shows transient user-facing notifications.
type Notifier interface {
	Show(message string)
	ShowError(message string)
}

// Store owns the canonical graph and all views derived from it.
type Store struct {
	backend  Backend
	notifier Notifier
	logger   *zap.Logger

	mu sync.RWMutex

	// Canonical state
	graph       types.KnowledgeGraph
	searchTerm  string
	labelFilter map[types.NodeLabel]bool
	weightNodes bool
	selectedID  string
	scope       ContextScope

	// Derived, recomputed in full on every mutation
	nodeByID     map[string]types.KnowledgeNode
	nodesByLabel map[types.NodeLabel][]types.KnowledgeNode
	children     map[string][]types.KnowledgeNode
	parents      map[string][]types.KnowledgeNode
	degree       map[string]int
	maxDegree    int
	filtered     types.KnowledgeGraph

	fetch *dispatch.Sequencer[struct{}, types.KnowledgeGraph]

	subMu  sync.Mutex
	subs   map[int]chan struct{}
	nextID int
}

// NewStore creates an empty store. All labels start enabled.
func NewStore(backend Backend, notifier Notifier, logger *zap.Logger) *Store {
	s := &Store{
		backend:     backend,
		notifier:    notifier,
		logger:      logger.With(zap.String("component", "graph")),
		labelFilter: make(map[types.NodeLabel]bool),
		subs:        make(map[int]chan struct{}),
	}
	for _, l := range types.AllLabels() {
		s.labelFilter[l] = true
	}
	s.recompute()

	// Graph fetches are switch-latest: a refresh triggered while another is
	// in flight wins, and the older result is discarded. Only a successful
	// fetch replaces local state.
	s.fetch = dispatch.New(
		func(ctx context.Context, _ struct{}) (types.KnowledgeGraph, error) {
			return backend.GetGraph(ctx)
		},
		func(_ struct{}, g types.KnowledgeGraph) {
			s.Replace(g)
		},
		func(_ struct{}, err error) {
			s.logger.Warn("graph fetch failed", zap.Error(err))
			s.notifier.ShowError("Failed to fetch graph")
		},
	)
	return s
}

// Run consumes push events until ctx is cancelled or the subscription
// closes. A graph_updated event triggers a toast and a refetch.
func (s *Store) Run(ctx context.Context, evs <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-evs:
			if !ok {
				return
			}
			if ev.Type == events.TypeGraphUpdated {
				s.notifier.Show("Graph updated!")
				s.Refresh(ctx)
			}
		}
	}
}

// Refresh fetches the graph from the backend (switch-latest).
func (s *Store) Refresh(ctx context.Context) {
	s.fetch.Dispatch(ctx, struct{}{})
}

// Wait blocks until in-flight fetches settle. Intended for shutdown and tests.
func (s *Store) Wait() {
	s.fetch.Wait()
}

// Replace atomically swaps the canonical graph and recomputes every derived
// view before any reader can observe the new state.
func (s *Store) Replace(g types.KnowledgeGraph) {
	s.mu.Lock()
	s.graph = g
	s.recompute()
	s.mu.Unlock()
	s.notifySubscribers()
}

// AppendNodes unions nodes into the existing node sequence without touching
// edges. A node whose id is already present replaces the existing node in
// place (replace-on-conflict; the sequence keeps its original position).
func (s *Store) AppendNodes(nodes []types.KnowledgeNode) {
	s.mu.Lock()
	pos := make(map[string]int, len(s.graph.Nodes))
	for i, n := range s.graph.Nodes {
		pos[n.ID] = i
	}
	for _, n := range nodes {
		if i, ok := pos[n.ID]; ok {
			s.graph.Nodes[i] = n
			continue
		}
		pos[n.ID] = len(s.graph.Nodes)
		s.graph.Nodes = append(s.graph.Nodes, n)
	}
	s.recompute()
	s.mu.Unlock()
	s.notifySubscribers()
}

// SetFilter replaces the set of labels visible in the filtered view.
func (s *Store) SetFilter(labels []types.NodeLabel) {
	s.mu.Lock()
	s.labelFilter = make(map[types.NodeLabel]bool, len(labels))
	for _, l := range labels {
		s.labelFilter[l] = true
	}
	s.recompute()
	s.mu.Unlock()
	s.notifySubscribers()
}

// ToggleLabel flips one label in the filter.
func (s *Store) ToggleLabel(label types.NodeLabel) {
	s.mu.Lock()
	s.labelFilter[label] = !s.labelFilter[label]
	s.recompute()
	s.mu.Unlock()
	s.notifySubscribers()
}

// SetSearchTerm updates the name filter (case-insensitive substring match).
func (s *Store) SetSearchTerm(term string) {
	s.mu.Lock()
	s.searchTerm = term
	s.recompute()
	s.mu.Unlock()
	s.notifySubscribers()
}

// SetWeightNodes toggles degree-weighted sizing.
func (s *Store) SetWeightNodes(on bool) {
	s.mu.Lock()
	s.weightNodes = on
	s.mu.Unlock()
	s.notifySubscribers()
}

// WeightNodes reports whether degree weighting is enabled.
func (s *Store) WeightNodes() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.weightNodes
}

// Select sets the single-selection cursor.
func (s *Store) Select(nodeID string) {
	s.mu.Lock()
	s.selectedID = nodeID
	s.mu.Unlock()
	s.notifySubscribers()
}

// SelectPaper selects the Paper node with the given semantic paper id.
func (s *Store) SelectPaper(paperID string) {
	s.mu.Lock()
	for _, n := range s.graph.Nodes {
		if n.Label != types.LabelPaper {
			continue
		}
		if p, ok := n.Properties.(types.PaperData); ok && p.PaperID == paperID {
			s.selectedID = n.ID
			break
		}
	}
	s.mu.Unlock()
	s.notifySubscribers()
}

// ClearSelection clears the selection cursor.
func (s *Store) ClearSelection() {
	s.mu.Lock()
	s.selectedID = ""
	s.mu.Unlock()
	s.notifySubscribers()
}

// SelectedNode returns the currently selected node, if any.
func (s *Store) SelectedNode() (types.KnowledgeNode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodeByID[s.selectedID]
	return n, ok
}

// Graph returns a shallow snapshot of the canonical graph.
func (s *Store) Graph() types.KnowledgeGraph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph
}

// Filtered returns the derived filtered subgraph.
func (s *Store) Filtered() types.KnowledgeGraph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filtered
}

// NodeByID looks a node up in O(1).
func (s *Store) NodeByID(id string) (types.KnowledgeNode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodeByID[id]
	return n, ok
}

// NodesByLabel returns all nodes with the given label.
func (s *Store) NodesByLabel(label types.NodeLabel) []types.KnowledgeNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodesByLabel[label]
}

// ChildrenOf returns the nodes reachable via one outgoing edge. Edges whose
// target is missing from the node set are not represented here.
func (s *Store) ChildrenOf(id string) []types.KnowledgeNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.children[id]
}

// ParentsOf returns the nodes reaching id via one edge.
func (s *Store) ParentsOf(id string) []types.KnowledgeNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.parents[id]
}

// Degree returns the count of distinct one-hop neighbors in either
// direction. A self-loop contributes one.
func (s *Store) Degree(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degree[id]
}

// MaxDegree returns the maximum degree across all nodes, 0 for an empty
// graph.
func (s *Store) MaxDegree() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxDegree
}

// DegreeWeight returns the sizing weight 50*max(degree,5)/maxDegree.
// Callers must only ask when weighting is enabled and the graph is
// non-empty; with maxDegree 0 the weight is meaningless and 0 is returned.
func (s *Store) DegreeWeight(id string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.maxDegree == 0 {
		return 0
	}
	d := s.degree[id]
	if d < 5 {
		d = 5
	}
	return 50 * float64(d) / float64(s.maxDegree)
}

// ClearGraph asks the backend to drop the graph. Local state is reset when
// the resulting graph_updated event arrives.
func (s *Store) ClearGraph(ctx context.Context) {
	if err := s.backend.ClearGraph(ctx); err != nil {
		s.logger.Warn("clear graph failed", zap.Error(err))
		s.notifier.ShowError("Failed to clear graph")
		return
	}
	s.notifier.Show("Clearing graph...")
}

// AddCitations queues citation expansion for a paper. The graph grows later
// via a graph_updated event; nothing changes locally here.
func (s *Store) AddCitations(ctx context.Context, paperID string) {
	if err := s.backend.AddCitations(ctx, []string{paperID}); err != nil {
		s.logger.Warn("add citations failed", zap.String("paper", paperID), zap.Error(err))
		s.notifier.ShowError("Failed to request citations")
		return
	}
	s.notifier.Show("Building citation graph...")
}

// AddReferences queues reference expansion for a paper.
func (s *Store) AddReferences(ctx context.Context, paperID string) {
	if err := s.backend.AddReferences(ctx, []string{paperID}); err != nil {
		s.logger.Warn("add references failed", zap.String("paper", paperID), zap.Error(err))
		s.notifier.ShowError("Failed to request references")
		return
	}
	s.notifier.Show("Building reference graph...")
}

// Subscribe registers for change notification. The channel receives a tick
// after every mutation; ticks coalesce, so consumers re-read snapshots.
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
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
}

func (s *Store) notifySubscribers() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, sub := range s.subs {
		select {
		case sub <- struct{}{}:
		default:
		}
	}
}

// recompute rebuilds every derived view from the canonical state. Always a
// full pass; the graph is assumed to fit comfortably in memory, which is a
// documented scalability ceiling of this client.
// Callers must hold s.mu.
func (s *Store) recompute() {
	s.nodeByID = make(map[string]types.KnowledgeNode, len(s.graph.Nodes))
	s.nodesByLabel = make(map[types.NodeLabel][]types.KnowledgeNode)
	for _, n := range s.graph.Nodes {
		s.nodeByID[n.ID] = n
		s.nodesByLabel[n.Label] = append(s.nodesByLabel[n.Label], n)
	}

	// Adjacency excludes dangling edges: an endpoint missing from the node
	// set makes the edge invisible to traversal, though it stays in storage.
	s.children = make(map[string][]types.KnowledgeNode)
	s.parents = make(map[string][]types.KnowledgeNode)
	neighborSets := make(map[string]map[string]struct{})
	addNeighbor := func(of, neighbor string) {
		set, ok := neighborSets[of]
		if !ok {
			set = make(map[string]struct{})
			neighborSets[of] = set
		}
		set[neighbor] = struct{}{}
	}
	for _, e := range s.graph.Edges {
		src, srcOK := s.nodeByID[e.Source]
		dst, dstOK := s.nodeByID[e.Target]
		if !srcOK || !dstOK {
			continue
		}
		s.children[e.Source] = append(s.children[e.Source], dst)
		s.parents[e.Target] = append(s.parents[e.Target], src)
		addNeighbor(e.Source, e.Target)
		addNeighbor(e.Target, e.Source)
	}

	s.degree = make(map[string]int, len(s.graph.Nodes))
	s.maxDegree = 0
	for _, n := range s.graph.Nodes {
		d := len(neighborSets[n.ID])
		s.degree[n.ID] = d
		if d > s.maxDegree {
			s.maxDegree = d
		}
	}

	s.filtered = s.computeFiltered()
}

// computeFiltered applies the label and search filters. Callers must hold
// s.mu.
func (s *Store) computeFiltered() types.KnowledgeGraph {
	term := strings.ToLower(s.searchTerm)

	var nodes []types.KnowledgeNode
	keep := make(map[string]bool, len(s.graph.Nodes))
	for _, n := range s.graph.Nodes {
		if !s.labelFilter[n.Label] {
			continue
		}
		if term != "" && !strings.Contains(strings.ToLower(n.DisplayName()), term) {
			continue
		}
		nodes = append(nodes, n)
		keep[n.ID] = true
	}

	var edges []types.Edge
	for _, e := range s.graph.Edges {
		if keep[e.Source] && keep[e.Target] {
			edges = append(edges, e)
		}
	}

	return types.KnowledgeGraph{Nodes: nodes, Edges: edges}
}
