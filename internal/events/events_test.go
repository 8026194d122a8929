package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

// wsServer upgrades every request and feeds the connection to handle.
// TestMain verifies no goroutines leak once every test (and its cleanup,
// including httptest server shutdown) has finished.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func wsServer(t *testing.T, handle func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handle(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitStatus(t *testing.T, ch <-chan bool, want bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case got, ok := <-ch:
			if !ok {
				t.Fatal("status channel closed")
			}
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for status=%v", want)
		}
	}
}

func TestChannel_DeliversEventsInOrder(t *testing.T) {
	frames := []string{
		`{"type":"chat_response","body":{"message":"Hel"}}`,
		`{"type":"chat_response","body":{"message":"lo"}}`,
		`{"type":"graph_updated","body":null}`,
	}
	srv := wsServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// Keep the connection up until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	c := NewChannel(wsURL(srv), 50*time.Millisecond, zap.NewNop())
	events, unsub := c.Subscribe()
	defer unsub()
	c.Connect(context.Background())
	defer c.Close()

	want := []Type{TypeChatResponse, TypeChatResponse, TypeGraphUpdated}
	for i, w := range want {
		select {
		case ev := <-events:
			if ev.Type != w {
				t.Errorf("event %d: got type %q, want %q", i, ev.Type, w)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestChannel_MalformedFrameDoesNotKillStream(t *testing.T) {
	srv := wsServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{not json`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"response_completed","body":{}}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	c := NewChannel(wsURL(srv), 50*time.Millisecond, zap.NewNop())
	events, unsub := c.Subscribe()
	defer unsub()
	c.Connect(context.Background())
	defer c.Close()

	select {
	case ev := <-events:
		if ev.Type != TypeResponseCompleted {
			t.Errorf("got type %q, want response_completed", ev.Type)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out; malformed frame should have been skipped")
	}
}

func TestChannel_UnknownTypeIsDelivered(t *testing.T) {
	srv := wsServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"surprise","body":{}}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	c := NewChannel(wsURL(srv), 50*time.Millisecond, zap.NewNop())
	events, unsub := c.Subscribe()
	defer unsub()
	c.Connect(context.Background())
	defer c.Close()

	select {
	case ev := <-events:
		if ev.Type != Type("surprise") {
			t.Errorf("got type %q, want surprise", ev.Type)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for unknown-type event")
	}
}

func TestChannel_ReconnectsAfterClose(t *testing.T) {
	accepts := make(chan *websocket.Conn, 4)
	srv := wsServer(t, func(conn *websocket.Conn) {
		accepts <- conn
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	c := NewChannel(wsURL(srv), 50*time.Millisecond, zap.NewNop())
	status, unsub := c.StatusChanges()
	defer unsub()
	c.Connect(context.Background())
	defer c.Close()

	// Initial snapshot is false, then the first dial flips it true.
	waitStatus(t, status, true)

	var first *websocket.Conn
	select {
	case first = <-accepts:
	case <-time.After(5 * time.Second):
		t.Fatal("server never saw the first connection")
	}

	// Kill the connection server-side; the channel must observe the drop
	// immediately and come back after the fixed delay.
	dropped := time.Now()
	first.Close()
	waitStatus(t, status, false)
	waitStatus(t, status, true)

	if elapsed := time.Since(dropped); elapsed < 50*time.Millisecond {
		t.Errorf("reconnected after %v, before the configured delay", elapsed)
	}

	select {
	case <-accepts:
	case <-time.After(5 * time.Second):
		t.Fatal("server never saw the reconnect")
	}
}

func TestChannel_StatusFalseWhileBackendUnreachable(t *testing.T) {
	c := NewChannel("ws://127.0.0.1:1/ws", 20*time.Millisecond, zap.NewNop())
	c.Connect(context.Background())
	defer c.Close()

	time.Sleep(100 * time.Millisecond)
	if c.Status() {
		t.Error("status should stay false while the backend is unreachable")
	}
}

func TestChannel_UnsubscribeStopsDelivery(t *testing.T) {
	c := NewChannel("ws://127.0.0.1:1/ws", time.Minute, zap.NewNop())
	events, unsub := c.Subscribe()
	unsub()
	if _, ok := <-events; ok {
		t.Error("channel should be closed after unsubscribe")
	}
	c.broadcast(Event{Type: TypeGraphUpdated}) // must not panic
}
