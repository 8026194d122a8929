// Package chat aggregates user messages and streamed response fragments
// into a single coalesced transcript.
package chat

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KevinMoonLab/nexarag/internal/dispatch"
	"github.com/KevinMoonLab/nexarag/internal/events"
	"github.com/KevinMoonLab/nexarag/internal/types"
)

// embeddingModelMarker tags embedding-only models that must never appear in
// the chat model picker.
const embeddingModelMarker = "nomic"

// Backend is the slice of the API client the engine needs.
type Backend interface {
	SendChat(ctx context.Context, msg types.ChatMessage) (types.ChatMessage, error)
	DefaultPrefix(ctx context.Context) (string, error)
	ListModels(ctx context.Context) ([]types.ModelDetails, error)
}

// Notifier surfaces request failures to the user.
type Notifier interface {
	ShowError(msg string)
}

// response collects the ordered fragment list for one responseId.
type response struct {
	userMessageID string
	parts         []string
}

// Engine pairs user messages with streamed assistant responses. A response
// is reconstructed by concatenating its fragments in arrival order and is
// final only once the backend signals completion.
//
// All methods are safe for concurrent use.
type Engine struct {
	backend  Backend
	notifier Notifier
	logger   *zap.Logger

	mu           sync.RWMutex
	compose      string
	prompt       string
	chatID       string
	userMessages []types.ChatMessage
	responses    map[string]*response // responseId -> fragments
	byUser       map[string]string    // userMessageId -> responseId

	// Completion signals that arrived before any fragment for their
	// responseId. Applied when the first fragment lands.
	earlyCompletions map[string]bool

	responseComplete bool
	thinking         bool
	dots             int

	models        []types.ModelDetails
	selectedModel string

	send      *dispatch.Sequencer[types.ChatMessage, types.ChatMessage]
	prefixSeq *dispatch.Sequencer[struct{}, string]
	modelSeq  *dispatch.Sequencer[struct{}, []types.ModelDetails]

	subMu  sync.Mutex
	subs   map[int]chan struct{}
	nextID int
}

// NewEngine creates an idle engine with an empty transcript.
func NewEngine(backend Backend, notifier Notifier, logger *zap.Logger) *Engine {
	e := &Engine{
		backend:          backend,
		notifier:         notifier,
		logger:           logger.With(zap.String("component", "chat")),
		responses:        make(map[string]*response),
		byUser:           make(map[string]string),
		earlyCompletions: make(map[string]bool),
		responseComplete: true,
		subs:             make(map[int]chan struct{}),
	}
	e.send = dispatch.New(
		func(ctx context.Context, msg types.ChatMessage) (types.ChatMessage, error) {
			return backend.SendChat(ctx, msg)
		},
		func(_ types.ChatMessage, ack types.ChatMessage) {
			e.adoptChatID(ack.ChatID)
		},
		func(msg types.ChatMessage, err error) {
			e.logger.Warn("chat send failed", zap.String("messageId", msg.MessageID), zap.Error(err))
			e.notifier.ShowError("Failed to send message")
			e.mu.Lock()
			e.responseComplete = true
			e.thinking = false
			e.mu.Unlock()
			e.notifySubscribers()
		},
	)
	e.prefixSeq = dispatch.New(
		func(ctx context.Context, _ struct{}) (string, error) {
			return backend.DefaultPrefix(ctx)
		},
		func(_ struct{}, prefix string) {
			e.mu.Lock()
			e.prompt = prefix
			e.mu.Unlock()
			e.notifySubscribers()
		},
		func(_ struct{}, err error) {
			e.logger.Warn("default prefix fetch failed", zap.Error(err))
		},
	)
	e.modelSeq = dispatch.New(
		func(ctx context.Context, _ struct{}) ([]types.ModelDetails, error) {
			return backend.ListModels(ctx)
		},
		func(_ struct{}, models []types.ModelDetails) {
			e.setModels(models)
		},
		func(_ struct{}, err error) {
			e.logger.Warn("model list fetch failed", zap.Error(err))
			e.notifier.ShowError("Failed to fetch models")
		},
	)
	return e
}

// Bootstrap kicks off the startup fetches: the default system prompt and the
// available model list.
func (e *Engine) Bootstrap(ctx context.Context) {
	e.prefixSeq.Dispatch(ctx, struct{}{})
	e.modelSeq.Dispatch(ctx, struct{}{})
}

// Run consumes push events until ctx is cancelled or the subscription closes.
func (e *Engine) Run(ctx context.Context, evs <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-evs:
			if !ok {
				return
			}
			switch ev.Type {
			case events.TypeChatResponse:
				var fr types.ChatResponse
				if err := json.Unmarshal(ev.Body, &fr); err != nil {
					e.logger.Warn("malformed chat fragment", zap.Error(err))
					continue
				}
				e.HandleFragment(fr)
			case events.TypeResponseCompleted:
				e.HandleCompleted(ev.Body)
			}
		}
	}
}

// Wait blocks until in-flight requests settle. Intended for shutdown and tests.
func (e *Engine) Wait() {
	e.send.Wait()
	e.prefixSeq.Wait()
	e.modelSeq.Wait()
}

// SetCompose updates the compose field.
func (e *Engine) SetCompose(s string) {
	e.mu.Lock()
	e.compose = s
	e.mu.Unlock()
	e.notifySubscribers()
}

// Compose returns the current compose field contents.
func (e *Engine) Compose() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.compose
}

// Prompt returns the system prompt sent as the prefix of every message.
func (e *Engine) Prompt() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.prompt
}

// SetPrompt overrides the system prompt.
func (e *Engine) SetPrompt(p string) {
	e.mu.Lock()
	e.prompt = p
	e.mu.Unlock()
	e.notifySubscribers()
}

// ChatID returns the server-assigned conversation id, empty until the first
// exchange establishes one.
func (e *Engine) ChatID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.chatID
}

// ResponseComplete reports whether the engine is ready to send. It is false
// from Send until the matching completion signal arrives.
func (e *Engine) ResponseComplete() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.responseComplete
}

// IsThinking reports whether the thinking indicator is animating.
func (e *Engine) IsThinking() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.thinking
}

// ThinkingDots returns the current frame of the indicator, cycling through
// ".", "..", "...". Callers drive the cadence with Tick.
func (e *Engine) ThinkingDots() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return strings.Repeat(".", e.dots+1)
}

// Tick advances the thinking animation by one frame. No-op while idle.
func (e *Engine) Tick() {
	e.mu.Lock()
	if !e.thinking {
		e.mu.Unlock()
		return
	}
	e.dots = (e.dots + 1) % 3
	e.mu.Unlock()
	e.notifySubscribers()
}

// Send posts the compose field as a new user message. The message appears in
// the transcript immediately; the assistant reply streams in later through
// push events. Empty compose and an in-flight response are both no-ops.
func (e *Engine) Send(ctx context.Context) {
	e.mu.Lock()
	text := strings.TrimSpace(e.compose)
	if text == "" || !e.responseComplete {
		e.mu.Unlock()
		return
	}
	msg := types.ChatMessage{
		Message:   text,
		ChatID:    e.chatID,
		MessageID: uuid.NewString(),
		Model:     e.selectedModel,
		Prefix:    e.prompt,
	}
	e.userMessages = append(e.userMessages, msg)
	e.compose = ""
	e.responseComplete = false
	if !e.thinking {
		e.thinking = true
		e.dots = 0
	}
	e.mu.Unlock()
	e.notifySubscribers()

	e.send.Dispatch(ctx, msg)
}

// HandleFragment appends one streamed fragment to its response and stops the
// thinking animation.
func (e *Engine) HandleFragment(fr types.ChatResponse) {
	e.mu.Lock()
	r, ok := e.responses[fr.ResponseID]
	if !ok {
		r = &response{userMessageID: fr.UserMessageID}
		e.responses[fr.ResponseID] = r
		e.byUser[fr.UserMessageID] = fr.ResponseID
	}
	r.parts = append(r.parts, fr.Message)
	e.thinking = false
	if e.chatID == "" && fr.ChatID != "" {
		e.chatID = fr.ChatID
	}
	if e.earlyCompletions[fr.ResponseID] {
		delete(e.earlyCompletions, fr.ResponseID)
		e.responseComplete = true
	}
	e.mu.Unlock()
	e.notifySubscribers()
}

// HandleCompleted marks the referenced response complete and re-enables
// sending. A completion that beats its first fragment through the socket is
// held back and applied when that fragment arrives.
func (e *Engine) HandleCompleted(body json.RawMessage) {
	var sig struct {
		ResponseID string `json:"responseId"`
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &sig); err != nil {
			e.logger.Warn("malformed completion signal", zap.Error(err))
		}
	}

	e.mu.Lock()
	if sig.ResponseID != "" {
		if _, seen := e.responses[sig.ResponseID]; !seen {
			e.earlyCompletions[sig.ResponseID] = true
			e.mu.Unlock()
			return
		}
	}
	e.responseComplete = true
	e.thinking = false
	e.mu.Unlock()
	e.notifySubscribers()
}

// Messages returns the transcript: each user message followed by its
// coalesced response, in send order. Entries with empty text are omitted,
// so an unanswered user message yields exactly one bubble.
func (e *Engine) Messages() []types.ViewChatMessage {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var view []types.ViewChatMessage
	for _, m := range e.userMessages {
		if m.Message != "" {
			view = append(view, types.ViewChatMessage{Text: m.Message, IsUser: true, MessageID: m.MessageID})
		}
		respID, ok := e.byUser[m.MessageID]
		if !ok {
			continue
		}
		text := strings.Join(e.responses[respID].parts, "")
		if text == "" {
			continue
		}
		view = append(view, types.ViewChatMessage{Text: text, IsUser: false, MessageID: respID})
	}
	return view
}

// Models returns the chat-capable model list, embedding models excluded.
func (e *Engine) Models() []types.ModelDetails {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]types.ModelDetails, len(e.models))
	copy(out, e.models)
	return out
}

// SelectedModel returns the model used for outgoing messages.
func (e *Engine) SelectedModel() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.selectedModel
}

// SetSelectedModel picks a model explicitly.
func (e *Engine) SetSelectedModel(name string) {
	e.mu.Lock()
	e.selectedModel = name
	e.mu.Unlock()
	e.notifySubscribers()
}

// RefreshModels refetches the model list (switch-latest).
func (e *Engine) RefreshModels(ctx context.Context) {
	e.modelSeq.Dispatch(ctx, struct{}{})
}

// StartNewConversation drops the transcript, the conversation id, the compose
// field and the prompt, then refetches the default prompt. The selected model
// survives the reset.
func (e *Engine) StartNewConversation(ctx context.Context) {
	e.mu.Lock()
	e.chatID = ""
	e.userMessages = nil
	e.responses = make(map[string]*response)
	e.byUser = make(map[string]string)
	e.earlyCompletions = make(map[string]bool)
	e.compose = ""
	e.prompt = ""
	e.responseComplete = true
	e.thinking = false
	e.mu.Unlock()
	e.notifySubscribers()

	e.prefixSeq.Dispatch(ctx, struct{}{})
}

// Subscribe registers for change notification. Ticks coalesce; consumers
// re-read snapshots.
func (e *Engine) Subscribe() (<-chan struct{}, func()) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	id := e.nextID
	e.nextID++
	ch := make(chan struct{}, 1)
	e.subs[id] = ch
	return ch, func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		delete(e.subs, id)
	}
}

func (e *Engine) adoptChatID(id string) {
	if id == "" {
		return
	}
	e.mu.Lock()
	if e.chatID == "" {
		e.chatID = id
	}
	e.mu.Unlock()
	e.notifySubscribers()
}

func (e *Engine) setModels(models []types.ModelDetails) {
	e.mu.Lock()
	filtered := models[:0:0]
	for _, m := range models {
		if strings.Contains(m.Name, embeddingModelMarker) {
			continue
		}
		filtered = append(filtered, m)
	}
	e.models = filtered
	if e.selectedModel == "" && len(filtered) > 0 {
		e.selectedModel = filtered[0].Name
	}
	e.mu.Unlock()
	e.notifySubscribers()
}

func (e *Engine) notifySubscribers() {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
