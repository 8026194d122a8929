package graph

// ContextScope says which context-menu command set is active. Exactly one
// set is active at a time, chosen by whether the last right-click landed on
// a node or on empty canvas.
type ContextScope int

const (
	CanvasContextActive ContextScope = iota
	NodeContextActive
)

// Command is one context-menu entry. Commands carry stable ids so the
// presentation layer can bind actions without string-matching titles.
type Command struct {
	ID    string
	Title string
}

var nodeCommands = []Command{
	{ID: "show-node", Title: "Details"},
	{ID: "add-citations", Title: "Add Citations"},
	{ID: "add-references", Title: "Add References"},
	{ID: "add-documents", Title: "Add Documents"},
}

var canvasCommands = []Command{
	{ID: "bulk-add-documents", Title: "Bulk Add Documents"},
	{ID: "refresh-graph", Title: "Refresh Graph"},
}

// RightClickNode records a right-click on a node: the node becomes selected
// and the node command set becomes active.
func (s *Store) RightClickNode(nodeID string) {
	s.mu.Lock()
	s.selectedID = nodeID
	s.scope = NodeContextActive
	s.mu.Unlock()
	s.notifySubscribers()
}

// RightClickCanvas records a right-click on empty canvas: the canvas command
// set becomes active. The selection is left alone.
func (s *Store) RightClickCanvas() {
	s.mu.Lock()
	s.scope = CanvasContextActive
	s.mu.Unlock()
	s.notifySubscribers()
}

// Scope returns which command set is active.
func (s *Store) Scope() ContextScope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scope
}

// ActiveCommands returns the command set for the current scope.
func (s *Store) ActiveCommands() []Command {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.scope == NodeContextActive {
		return nodeCommands
	}
	return canvasCommands
}
