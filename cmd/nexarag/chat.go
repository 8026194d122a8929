package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/KevinMoonLab/nexarag/cmd/nexarag/ui"
	"github.com/KevinMoonLab/nexarag/internal/chat"
	"github.com/KevinMoonLab/nexarag/internal/config"
	"github.com/KevinMoonLab/nexarag/internal/events"
	"github.com/KevinMoonLab/nexarag/internal/graph"
	"github.com/KevinMoonLab/nexarag/internal/history"
	"github.com/KevinMoonLab/nexarag/internal/papers"
	"github.com/KevinMoonLab/nexarag/internal/toast"
	"github.com/KevinMoonLab/nexarag/internal/types"
)

const thinkingTick = 500 * time.Millisecond

const (
	composePlaceholder = "Ask about your papers... (Enter to send, Ctrl+C to exit)"
	searchPlaceholder  = "Search papers, or `add 1 3` to ingest results (Esc to leave)"
)

type chatModel struct {
	// UI components
	textinput textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	styles    ui.Styles
	renderer  *glamour.TermRenderer

	// State
	width          int
	height         int
	ready          bool
	showGraph      bool
	searchMode     bool
	showNodeDetail bool

	// Backend
	ctx     context.Context
	cancel  context.CancelFunc
	channel *events.Channel
	store   *graph.Store
	engine  *chat.Engine
	search  *papers.Store
	sink    *toast.Sink
	archive *history.Archive

	// Coalesced store-change notifications
	updates <-chan struct{}
}

// Messages for tea updates
type (
	stateChangedMsg struct{}
	thinkingTickMsg time.Time
)

// runInteractive wires the stores together and runs the TUI until exit.
func runInteractive() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := apiClient()
	sink := toast.NewSink()
	store := graph.NewStore(client, sink, logger)
	engine := chat.NewEngine(client, sink, logger)
	search := papers.NewStore(client, sink, logger)
	channel := events.NewChannel(cfg.Backend.WebSocketURL, cfg.GetReconnectDelay(), logger)

	var archive *history.Archive
	if cfg.History.Enabled {
		var err error
		archive, err = history.Open(cfg.History.DatabasePath)
		if err != nil {
			logger.Warn("history archive unavailable", zap.Error(err))
			archive = nil
		} else {
			defer archive.Close()
		}
	}

	// Live config reload: only the chat model is safe to change mid-session;
	// URL changes need a restart.
	if watcher, err := config.NewWatcher(resolvedConfigPath(), logger); err != nil {
		logger.Warn("config watch unavailable", zap.Error(err))
	} else {
		defer watcher.Close()
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case c, ok := <-watcher.Updates():
					if !ok {
						return
					}
					if c.Chat.Model != "" {
						engine.SetSelectedModel(c.Chat.Model)
					}
					sink.Show("Config reloaded")
				}
			}
		}()
	}

	channel.Connect(ctx)
	defer channel.Close()

	graphEvents, cancelGraphSub := channel.Subscribe()
	defer cancelGraphSub()
	chatEvents, cancelChatSub := channel.Subscribe()
	defer cancelChatSub()
	go store.Run(ctx, graphEvents)
	go engine.Run(ctx, chatEvents)

	// Plot payloads pass through untouched; the terminal only announces them.
	plotEvents, cancelPlotSub := channel.Subscribe()
	defer cancelPlotSub()
	go func() {
		for ev := range plotEvents {
			if ev.Type != events.TypePlotCreated {
				continue
			}
			var p types.PlotCreated
			if err := json.Unmarshal(ev.Body, &p); err != nil {
				logger.Warn("failed to decode plot payload", zap.Error(err))
				continue
			}
			sink.Show(fmt.Sprintf("Embedding plot ready (%d papers)", len(p.PaperIDs)))
		}
	}()

	if cfg.Chat.Model != "" {
		engine.SetSelectedModel(cfg.Chat.Model)
	}
	engine.Bootstrap(ctx)
	store.Refresh(ctx)

	// Funnel every store's change ticks into one channel the TUI waits on.
	// Fragment streams arrive in fast bursts; the debouncer coalesces them
	// into one repaint instead of one per fragment.
	updates := make(chan struct{}, 1)
	repaint := ui.NewDebouncer(30 * time.Millisecond)
	forward := func(ch <-chan struct{}) {
		for range ch {
			repaint.Debounce(func() {
				select {
				case updates <- struct{}{}:
				default:
				}
			})
		}
	}
	storeSub, unsubStore := store.Subscribe()
	defer unsubStore()
	engineSub, unsubEngine := engine.Subscribe()
	defer unsubEngine()
	searchSub, unsubSearch := search.Subscribe()
	defer unsubSearch()
	toastSub, unsubToast := sink.Subscribe()
	defer unsubToast()
	go forward(storeSub)
	go forward(engineSub)
	go forward(searchSub)
	go forward(toastSub)
	go func() {
		statuses, cancelStatus := channel.StatusChanges()
		defer cancelStatus()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-statuses:
				if !ok {
					return
				}
				select {
				case updates <- struct{}{}:
				default:
				}
			}
		}
	}()

	m := newChatModel(ctx, cancel, channel, store, engine, search, sink, archive, updates)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	m.archiveTranscript()
	return err
}

func newChatModel(
	ctx context.Context,
	cancel context.CancelFunc,
	channel *events.Channel,
	store *graph.Store,
	engine *chat.Engine,
	search *papers.Store,
	sink *toast.Sink,
	archive *history.Archive,
	updates <-chan struct{},
) chatModel {
	styles := ui.DefaultStyles()
	if cfg.UI.Theme == "light" {
		styles = ui.NewStyles(ui.LightTheme())
	}

	ti := textinput.New()
	ti.Placeholder = composePlaceholder
	ti.Focus()
	ti.Prompt = "│ "
	ti.CharLimit = 4096
	ti.Width = 80
	ti.PromptStyle = styles.Prompt

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	vp := viewport.New(80, 20)

	var renderer *glamour.TermRenderer
	if styles.Theme.IsDark {
		renderer, _ = glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(80))
	} else {
		renderer, _ = glamour.NewTermRenderer(glamour.WithStylePath("light"), glamour.WithWordWrap(80))
	}

	return chatModel{
		textinput: ti,
		viewport:  vp,
		spinner:   sp,
		styles:    styles,
		renderer:  renderer,
		showGraph: true,
		ctx:       ctx,
		cancel:    cancel,
		channel:   channel,
		store:     store,
		engine:    engine,
		search:    search,
		sink:      sink,
		archive:   archive,
		updates:   updates,
	}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		m.waitForUpdate(),
		m.scheduleThinkingTick(),
	)
}

// waitForUpdate turns store-change notifications into tea messages.
func (m chatModel) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		<-m.updates
		return stateChangedMsg{}
	}
}

func (m chatModel) scheduleThinkingTick() tea.Cmd {
	return tea.Tick(thinkingTick, func(t time.Time) tea.Msg {
		return thinkingTickMsg(t)
	})
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.handleGraphKeys(msg) {
			return m, nil
		}
		switch msg.Type {
		case tea.KeyCtrlC:
			m.cancel()
			return m, tea.Quit

		case tea.KeyEsc:
			if m.searchMode {
				m.searchMode = false
				m.search.Clear()
				m.store.SetSearchTerm("")
				m.textinput.SetValue("")
				m.textinput.Placeholder = composePlaceholder
				return m, nil
			}
			m.cancel()
			return m, tea.Quit

		case tea.KeyCtrlP:
			m.searchMode = !m.searchMode
			m.textinput.SetValue("")
			if m.searchMode {
				m.textinput.Placeholder = searchPlaceholder
			} else {
				m.search.Clear()
				m.store.SetSearchTerm("")
				m.textinput.Placeholder = composePlaceholder
			}
			return m, nil

		case tea.KeyEnter:
			if m.searchMode {
				m.handleSearchInput(m.textinput.Value())
				m.textinput.SetValue("")
				return m, nil
			}
			m.engine.SetCompose(m.textinput.Value())
			m.engine.Send(m.ctx)
			m.textinput.SetValue("")
			m.refreshViewport()
			return m, nil

		case tea.KeyCtrlN:
			m.archiveTranscript()
			m.engine.StartNewConversation(m.ctx)
			m.refreshViewport()
			return m, nil

		case tea.KeyCtrlR:
			m.sink.Show("Refreshing graph...")
			m.store.Refresh(m.ctx)
			return m, nil

		case tea.KeyTab:
			m.showGraph = !m.showGraph
			m.layout()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.layout()
		m.refreshViewport()

	case stateChangedMsg:
		m.refreshViewport()
		return m, m.waitForUpdate()

	case thinkingTickMsg:
		m.engine.Tick()
		return m, m.scheduleThinkingTick()
	}

	m.textinput, tiCmd = m.textinput.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	m.spinner, spCmd = m.spinner.Update(msg)
	return m, tea.Batch(tiCmd, vpCmd, spCmd)
}

// layout recomputes component sizes for the current terminal dimensions.
func (m *chatModel) layout() {
	if !m.ready {
		return
	}
	chatWidth := m.width
	if m.showGraph {
		chatWidth = m.width * 2 / 3
	}
	contentHeight := m.height - 5 // header, input, status bar
	if contentHeight < 3 {
		contentHeight = 3
	}
	m.viewport.Width = chatWidth - 2
	m.viewport.Height = contentHeight
	m.textinput.Width = m.width - 4

	wrap := chatWidth - 6
	if wrap < 20 {
		wrap = 20
	}
	if m.styles.Theme.IsDark {
		m.renderer, _ = glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(wrap))
	} else {
		m.renderer, _ = glamour.NewTermRenderer(glamour.WithStylePath("light"), glamour.WithWordWrap(wrap))
	}
}

// refreshViewport re-renders the transcript into the viewport and sticks to
// the bottom.
func (m *chatModel) refreshViewport() {
	var b strings.Builder
	for _, msg := range m.engine.Messages() {
		if msg.IsUser {
			b.WriteString(m.styles.UserLabel.Render("You"))
			b.WriteString("\n")
			b.WriteString(msg.Text)
			b.WriteString("\n\n")
			continue
		}
		b.WriteString(m.styles.AssistantLabel.Render("Assistant"))
		b.WriteString("\n")
		b.WriteString(m.renderMarkdown(msg.Text))
		b.WriteString("\n")
	}
	if m.engine.IsThinking() {
		b.WriteString(m.styles.Thinking.Render("thinking" + m.engine.ThinkingDots()))
		b.WriteString("\n")
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m *chatModel) renderMarkdown(text string) string {
	if m.renderer == nil {
		return text
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return text
	}
	return out
}

func (m chatModel) View() string {
	if !m.ready {
		return "Starting nexarag..."
	}

	header := m.renderHeader()
	chatPane := m.styles.Pane.Render(m.viewport.View())

	var body string
	switch {
	case m.searchMode:
		// The search term also narrows the graph pane, so results and the
		// matching subgraph sit side by side.
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.renderSearchPane(), m.renderGraphPane())
	case m.showGraph:
		body = lipgloss.JoinHorizontal(lipgloss.Top, chatPane, m.renderGraphPane())
	default:
		body = chatPane
	}

	input := m.textinput.View()
	status := m.renderStatusBar()

	return lipgloss.JoinVertical(lipgloss.Left, header, body, input, status)
}

func (m chatModel) renderHeader() string {
	conn := m.styles.Offline.Render("● offline")
	if m.channel.Status() {
		conn = m.styles.Online.Render("● connected")
	}
	model := m.engine.SelectedModel()
	if model == "" {
		model = "no model"
	}
	title := m.styles.Header.Render("nexarag")
	meta := m.styles.StatusBar.Render(fmt.Sprintf("  %s  ·  ", model))
	return title + meta + conn
}

func (m chatModel) renderStatusBar() string {
	if n, ok := m.sink.Current(); ok {
		if n.Kind == toast.Error {
			return m.styles.ToastError.Render(n.Message)
		}
		return m.styles.ToastInfo.Render(n.Message)
	}
	return m.styles.Help.Render("enter: send · ctrl+n: new chat · ctrl+p: search papers · ctrl+r: refresh graph · tab: toggle graph · ctrl+c: quit")
}

// renderGraphPane summarizes the filtered graph: label counts and the
// highest-degree nodes, selection highlighted.
func (m chatModel) renderGraphPane() string {
	width := m.width - m.viewport.Width - 8
	if width < 24 {
		width = 24
	}

	var b strings.Builder
	b.WriteString(m.styles.PaneTitle.Render("Knowledge Graph"))
	b.WriteString("\n\n")

	nodes := m.rankedNodes()
	if len(nodes) == 0 {
		b.WriteString(m.styles.NodeMuted.Render("Empty. Add papers with `nexarag papers add`."))
	} else {
		for _, l := range types.AllLabels() {
			if n := len(m.store.NodesByLabel(l)); n > 0 {
				b.WriteString(fmt.Sprintf("%-18s %d\n", l, n))
			}
		}
		b.WriteString("\n")

		selected, hasSelection := m.store.SelectedNode()
		limit := m.viewport.Height - len(types.AllLabels()) - 6
		if hasSelection && m.showNodeDetail {
			limit -= 6
		}
		if limit < 1 {
			limit = 1
		}
		if limit > len(nodes) {
			limit = len(nodes)
		}
		weighted := m.store.WeightNodes()
		for _, n := range nodes[:limit] {
			name := truncate(n.DisplayName(), width-8)
			line := fmt.Sprintf("%s (%d)", name, m.store.Degree(n.ID))
			if weighted {
				line += fmt.Sprintf(" w%.0f", m.store.DegreeWeight(n.ID))
			}
			if hasSelection && n.ID == selected.ID {
				line = m.styles.NodeSelected.Render("▸ " + line)
			} else {
				line = "  " + line
			}
			b.WriteString(line)
			b.WriteString("\n")
		}

		if hasSelection && m.showNodeDetail {
			b.WriteString("\n")
			b.WriteString(m.styles.PaneTitle.Render("Node"))
			b.WriteString("\n")
			b.WriteString(fmt.Sprintf("%s  %s\n", selected.Label, truncate(selected.DisplayName(), width-14)))
			b.WriteString(fmt.Sprintf("degree %d  weight %.0f\n", m.store.Degree(selected.ID), m.store.DegreeWeight(selected.ID)))
			b.WriteString(fmt.Sprintf("parents %d  children %d\n", len(m.store.ParentsOf(selected.ID)), len(m.store.ChildrenOf(selected.ID))))
		}

		b.WriteString("\n")
		b.WriteString(m.styles.Help.Render(m.contextHints()))
	}

	return m.styles.Pane.Width(width).Height(m.viewport.Height).Render(b.String())
}

// rankedNodes returns the filtered nodes ordered by connectivity, the order
// the pane lists them in and alt+j/alt+k walk through.
func (m chatModel) rankedNodes() []types.KnowledgeNode {
	g := m.store.Filtered()
	nodes := make([]types.KnowledgeNode, len(g.Nodes))
	copy(nodes, g.Nodes)
	sort.SliceStable(nodes, func(i, j int) bool {
		return m.store.Degree(nodes[i].ID) > m.store.Degree(nodes[j].ID)
	})
	return nodes
}

// graphKeyFor maps context-menu command ids to their keybindings. Document
// uploads need file paths and stay on the CLI.
var graphKeyFor = map[string]string{
	"show-node":      "alt+o",
	"add-citations":  "alt+c",
	"add-references": "alt+e",
	"refresh-graph":  "ctrl+r",
}

func (m chatModel) contextHints() string {
	var parts []string
	for _, c := range m.store.ActiveCommands() {
		if k, ok := graphKeyFor[c.ID]; ok {
			parts = append(parts, fmt.Sprintf("%s: %s", k, c.Title))
		}
	}
	parts = append(parts, "alt+j/k: select", "alt+l: hide label", "alt+w: weights")
	return strings.Join(parts, " · ")
}

// handleGraphKeys dispatches the graph pane's keybindings. Returns true when
// the key was consumed.
func (m *chatModel) handleGraphKeys(msg tea.KeyMsg) bool {
	if !m.showGraph && !m.searchMode {
		return false
	}
	switch msg.String() {
	case "alt+j":
		m.moveSelection(1)
	case "alt+k":
		m.moveSelection(-1)
	case "alt+o":
		m.showNodeDetail = !m.showNodeDetail
	case "alt+l":
		if sel, ok := m.store.SelectedNode(); ok {
			m.store.ToggleLabel(sel.Label)
		}
	case "alt+w":
		m.store.SetWeightNodes(!m.store.WeightNodes())
	case "alt+c":
		if id, ok := m.selectedPaperID(); ok {
			m.store.AddCitations(m.ctx, id)
		} else {
			m.sink.ShowError("Select a paper first")
		}
	case "alt+e":
		if id, ok := m.selectedPaperID(); ok {
			m.store.AddReferences(m.ctx, id)
		} else {
			m.sink.ShowError("Select a paper first")
		}
	default:
		return false
	}
	m.refreshViewport()
	return true
}

// moveSelection walks the ranked node list. Moving above the first entry
// clears the selection and hands the context menu back to the canvas.
func (m *chatModel) moveSelection(delta int) {
	nodes := m.rankedNodes()
	if len(nodes) == 0 {
		return
	}
	idx := -1
	if sel, ok := m.store.SelectedNode(); ok {
		for i, n := range nodes {
			if n.ID == sel.ID {
				idx = i
				break
			}
		}
	}
	idx += delta
	if idx < 0 {
		m.store.ClearSelection()
		m.store.RightClickCanvas()
		return
	}
	if idx >= len(nodes) {
		idx = len(nodes) - 1
	}
	m.store.RightClickNode(nodes[idx].ID)
}

func (m chatModel) selectedPaperID() (string, bool) {
	sel, ok := m.store.SelectedNode()
	if !ok {
		return "", false
	}
	p, ok := sel.Properties.(types.PaperData)
	if !ok {
		return "", false
	}
	return p.PaperID, true
}

// renderSearchPane lists relevance search results, numbered for `add`. It
// takes over the chat pane's slot while search mode is active.
func (m chatModel) renderSearchPane() string {
	width := m.viewport.Width
	if width < 24 {
		width = 24
	}

	var b strings.Builder
	b.WriteString(m.styles.PaneTitle.Render("Paper Search"))
	b.WriteString("\n\n")

	switch {
	case m.search.Loading():
		b.WriteString(m.spinner.View())
		b.WriteString(" searching...")
	case len(m.search.Results()) == 0:
		b.WriteString(m.styles.NodeMuted.Render("Type a query and press Enter."))
	default:
		for i, r := range m.search.Results() {
			title := truncate(r.Title, width-10)
			b.WriteString(fmt.Sprintf("%2d. %s (%d)\n", i+1, title, r.Year))
			if len(r.Authors) > 0 {
				b.WriteString(m.styles.NodeMuted.Render("    " + truncate(r.Authors[0].Name, width-10)))
				b.WriteString("\n")
			}
		}
	}

	return m.styles.Pane.Width(width).Height(m.viewport.Height).Render(b.String())
}

// handleSearchInput interprets one line of the search prompt: "add 1 3"
// queues the listed results for ingestion, anything else runs as a query.
func (m *chatModel) handleSearchInput(line string) {
	line = strings.TrimSpace(line)
	if rest, ok := strings.CutPrefix(line, "add "); ok {
		results := m.search.Results()
		var ids []string
		for _, tok := range strings.Fields(rest) {
			i, err := strconv.Atoi(tok)
			if err != nil || i < 1 || i > len(results) {
				m.sink.ShowError(fmt.Sprintf("No search result #%s", tok))
				return
			}
			ids = append(ids, results[i-1].PaperID)
		}
		if len(ids) == 0 {
			m.sink.ShowError("Usage: add <result numbers>")
			return
		}
		m.search.Add(m.ctx, ids)
		m.store.SelectPaper(ids[0])
		return
	}
	m.store.SetSearchTerm(line)
	m.search.Search(m.ctx, line)
}

// archiveTranscript persists the current conversation, if any.
func (m chatModel) archiveTranscript() {
	if m.archive == nil {
		return
	}
	chatID := m.engine.ChatID()
	msgs := m.engine.Messages()
	if chatID == "" || len(msgs) == 0 {
		return
	}
	if err := m.archive.Append(chatID, msgs); err != nil {
		logger.Warn("failed to archive transcript", zap.Error(err))
	}
}

func truncate(s string, max int) string {
	if max < 4 || len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
