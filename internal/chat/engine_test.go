package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/KevinMoonLab/nexarag/internal/events"
	"github.com/KevinMoonLab/nexarag/internal/types"
)

type fakeBackend struct {
	mu       sync.Mutex
	sent     []types.ChatMessage
	ackChat  string
	sendErr  error
	prefix   string
	models   []types.ModelDetails
	modelErr error
}

func (f *fakeBackend) SendChat(ctx context.Context, msg types.ChatMessage) (types.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return types.ChatMessage{}, f.sendErr
	}
	f.sent = append(f.sent, msg)
	ack := msg
	if ack.ChatID == "" {
		ack.ChatID = f.ackChat
	}
	return ack, nil
}

func (f *fakeBackend) DefaultPrefix(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prefix, nil
}

func (f *fakeBackend) ListModels(ctx context.Context) ([]types.ModelDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.modelErr != nil {
		return nil, f.modelErr
	}
	return f.models, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	errors []string
}

func (f *fakeNotifier) ShowError(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, msg)
}

func newTestEngine() (*Engine, *fakeBackend, *fakeNotifier) {
	b := &fakeBackend{ackChat: "chat-1"}
	n := &fakeNotifier{}
	return NewEngine(b, n, zap.NewNop()), b, n
}

func sendOne(t *testing.T, e *Engine, text string) string {
	t.Helper()
	e.SetCompose(text)
	e.Send(context.Background())
	e.Wait()
	msgs := e.Messages()
	if len(msgs) == 0 || !msgs[len(msgs)-1].IsUser {
		t.Fatalf("user message missing after send: %+v", msgs)
	}
	return msgs[len(msgs)-1].MessageID
}

func TestEngine_SendAppendsOptimistically(t *testing.T) {
	e, b, _ := newTestEngine()

	e.SetCompose("  hello  ")
	e.Send(context.Background())

	msgs := e.Messages()
	if len(msgs) != 1 || msgs[0].Text != "hello" || !msgs[0].IsUser {
		t.Fatalf("got %+v", msgs)
	}
	if e.Compose() != "" {
		t.Error("compose should be cleared on send")
	}
	if e.ResponseComplete() {
		t.Error("send should gate further sends")
	}
	if !e.IsThinking() {
		t.Error("send should start the thinking indicator")
	}

	e.Wait()
	if e.ChatID() != "chat-1" {
		t.Errorf("chatId not adopted from ack: %q", e.ChatID())
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.sent) != 1 || b.sent[0].MessageID == "" {
		t.Errorf("expected one send with a messageId, got %+v", b.sent)
	}
}

func TestEngine_EmptyComposeIsNoOp(t *testing.T) {
	e, b, _ := newTestEngine()
	e.SetCompose("   ")
	e.Send(context.Background())
	e.Wait()

	if len(e.Messages()) != 0 {
		t.Error("whitespace-only compose should not produce a message")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.sent) != 0 {
		t.Error("nothing should reach the backend")
	}
}

func TestEngine_SendBlockedWhileAwaitingResponse(t *testing.T) {
	e, b, _ := newTestEngine()
	sendOne(t, e, "first")

	e.SetCompose("second")
	e.Send(context.Background())
	e.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.sent) != 1 {
		t.Errorf("second send should be gated, backend saw %d messages", len(b.sent))
	}
}

func TestEngine_FragmentOrderMatters(t *testing.T) {
	e, _, _ := newTestEngine()
	userID := sendOne(t, e, "hi")

	e.HandleFragment(types.ChatResponse{ResponseID: "r1", UserMessageID: userID, Message: "Hel"})
	e.HandleFragment(types.ChatResponse{ResponseID: "r1", UserMessageID: userID, Message: "lo"})

	msgs := e.Messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d entries, want user + assistant", len(msgs))
	}
	if msgs[1].Text != "Hello" || msgs[1].IsUser {
		t.Errorf("coalesced response = %+v, want Hello", msgs[1])
	}
}

func TestEngine_UnansweredMessageHasSingleBubble(t *testing.T) {
	e, _, _ := newTestEngine()
	sendOne(t, e, "anyone there?")

	msgs := e.Messages()
	if len(msgs) != 1 {
		t.Fatalf("unanswered user message must yield exactly one entry, got %d", len(msgs))
	}
	if !msgs[0].IsUser {
		t.Error("the single entry must be the user bubble")
	}
}

func TestEngine_FirstFragmentStopsThinking(t *testing.T) {
	e, _, _ := newTestEngine()
	userID := sendOne(t, e, "hi")
	if !e.IsThinking() {
		t.Fatal("should be thinking after send")
	}

	e.HandleFragment(types.ChatResponse{ResponseID: "r1", UserMessageID: userID, Message: "x"})
	if e.IsThinking() {
		t.Error("first fragment must stop the thinking indicator")
	}
}

func TestEngine_ThinkingDotsCycle(t *testing.T) {
	e, _, _ := newTestEngine()
	sendOne(t, e, "hi")

	want := []string{".", "..", "...", "."}
	for i, w := range want {
		if got := e.ThinkingDots(); got != w {
			t.Errorf("frame %d = %q, want %q", i, got, w)
		}
		e.Tick()
	}
}

func TestEngine_CompletionReenablesSend(t *testing.T) {
	e, _, _ := newTestEngine()
	userID := sendOne(t, e, "hi")
	e.HandleFragment(types.ChatResponse{ResponseID: "r1", UserMessageID: userID, Message: "done"})
	e.HandleCompleted(json.RawMessage(`{"responseId":"r1"}`))

	if !e.ResponseComplete() {
		t.Error("completion should re-enable send")
	}
}

func TestEngine_EarlyCompletionBufferedUntilFirstFragment(t *testing.T) {
	e, _, _ := newTestEngine()
	userID := sendOne(t, e, "hi")

	// Completion outruns its fragments through the socket.
	e.HandleCompleted(json.RawMessage(`{"responseId":"r1"}`))
	if e.ResponseComplete() {
		t.Fatal("completion with no fragments yet must be held back")
	}

	e.HandleFragment(types.ChatResponse{ResponseID: "r1", UserMessageID: userID, Message: "late"})
	if !e.ResponseComplete() {
		t.Error("buffered completion should apply on the first fragment")
	}
	if msgs := e.Messages(); len(msgs) != 2 || msgs[1].Text != "late" {
		t.Errorf("transcript after buffered completion: %+v", msgs)
	}
}

func TestEngine_UncorrelatedCompletionApplies(t *testing.T) {
	e, _, _ := newTestEngine()
	sendOne(t, e, "hi")

	e.HandleCompleted(nil)
	if !e.ResponseComplete() {
		t.Error("a completion without a responseId applies immediately")
	}
}

func TestEngine_ModelFilteringAndFallback(t *testing.T) {
	e, b, _ := newTestEngine()
	b.models = []types.ModelDetails{
		{Name: "nomic-embed-text"},
		{Name: "llama3"},
		{Name: "mistral"},
	}

	e.RefreshModels(context.Background())
	e.Wait()

	models := e.Models()
	if len(models) != 2 {
		t.Fatalf("embedding models should be filtered, got %+v", models)
	}
	if e.SelectedModel() != "llama3" {
		t.Errorf("selected model should fall back to first remaining, got %q", e.SelectedModel())
	}

	e.SetSelectedModel("mistral")
	e.RefreshModels(context.Background())
	e.Wait()
	if e.SelectedModel() != "mistral" {
		t.Error("explicit selection must survive a refresh")
	}
}

func TestEngine_BootstrapFetchesPrefix(t *testing.T) {
	e, b, _ := newTestEngine()
	b.prefix = "You are a helpful research assistant."

	e.Bootstrap(context.Background())
	e.Wait()

	if e.Prompt() != b.prefix {
		t.Errorf("prompt = %q, want default prefix", e.Prompt())
	}
}

func TestEngine_StartNewConversationResetsEverythingButModel(t *testing.T) {
	e, b, _ := newTestEngine()
	b.prefix = "fresh prefix"
	e.SetSelectedModel("llama3")

	id1 := sendOne(t, e, "one")
	e.HandleFragment(types.ChatResponse{ResponseID: "r1", UserMessageID: id1, Message: "a", ChatID: "chat-1"})
	e.HandleCompleted(json.RawMessage(`{"responseId":"r1"}`))
	id2 := sendOne(t, e, "two")
	e.HandleFragment(types.ChatResponse{ResponseID: "r2", UserMessageID: id2, Message: "b"})
	e.HandleCompleted(json.RawMessage(`{"responseId":"r2"}`))

	e.StartNewConversation(context.Background())
	e.Wait()

	if len(e.Messages()) != 0 {
		t.Error("transcript should be empty after reset")
	}
	if e.ChatID() != "" {
		t.Error("chatId should be cleared")
	}
	if e.Compose() != "" {
		t.Error("compose should be cleared")
	}
	if e.SelectedModel() != "llama3" {
		t.Error("selected model must survive the reset")
	}
	if e.Prompt() != "fresh prefix" {
		t.Errorf("prompt should be refetched, got %q", e.Prompt())
	}
	if !e.ResponseComplete() {
		t.Error("reset should re-enable send")
	}
}

func TestEngine_SendFailureSurfacesAndUnblocks(t *testing.T) {
	e, b, n := newTestEngine()
	b.sendErr = errors.New("backend down")

	e.SetCompose("hi")
	e.Send(context.Background())
	e.Wait()

	n.mu.Lock()
	if len(n.errors) != 1 {
		t.Errorf("expected one error notification, got %v", n.errors)
	}
	n.mu.Unlock()

	if !e.ResponseComplete() {
		t.Error("failed send must not leave the gate closed")
	}
	if e.IsThinking() {
		t.Error("failed send must stop the thinking indicator")
	}
}

func TestEngine_RunConsumesPushEvents(t *testing.T) {
	e, _, _ := newTestEngine()
	userID := sendOne(t, e, "hi")

	evs := make(chan events.Event, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		e.Run(ctx, evs)
		close(done)
	}()

	frag, _ := json.Marshal(types.ChatResponse{ResponseID: "r1", UserMessageID: userID, Message: "pong"})
	evs <- events.Event{Type: events.TypeChatResponse, Body: frag}
	evs <- events.Event{Type: events.TypeResponseCompleted, Body: json.RawMessage(`{"responseId":"r1"}`)}

	deadline := time.Now().Add(5 * time.Second)
	for !e.ResponseComplete() {
		if time.Now().After(deadline) {
			t.Fatal("events not consumed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	msgs := e.Messages()
	if len(msgs) != 2 || msgs[1].Text != "pong" {
		t.Errorf("transcript = %+v", msgs)
	}

	cancel()
	<-done
}

func TestEngine_MalformedFragmentIsDropped(t *testing.T) {
	e, _, _ := newTestEngine()

	evs := make(chan events.Event, 2)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx, evs)
		close(done)
	}()

	evs <- events.Event{Type: events.TypeChatResponse, Body: json.RawMessage(`{broken`)}
	close(evs)
	<-done
	cancel()

	if len(e.Messages()) != 0 {
		t.Error("malformed fragment must not reach the transcript")
	}
}
