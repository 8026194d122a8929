// Package events maintains the persistent websocket connection to the
// Nexarag backend and fans incoming push events out to subscribers.
//
// The backend pushes JSON frames of the form {"type": ..., "body": ...}.
// The channel does not validate body shape; consumers decode the raw body
// for the types they understand and ignore the rest.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Type identifies a push event.
type Type string

// Known push event types. Unknown types are still delivered; consumers must
// ignore types they do not recognize.
const (
	TypeGraphUpdated      Type = "graph_updated"
	TypeChatResponse      Type = "chat_response"
	TypeResponseCompleted Type = "response_completed"
	TypePlotCreated       Type = "plot_created"
)

// Event is one push event from the backend. Body is left undecoded.
type Event struct {
	Type Type            `json:"type"`
	Body json.RawMessage `json:"body"`
}

const (
	// Maximum frame size accepted from the backend.
	maxMessageSize = 512 * 1024 // 512KB

	// Per-subscriber buffer. A subscriber that falls this far behind starts
	// losing events rather than stalling the read pump.
	subscriberBuffer = 64
)

// Channel owns one websocket connection to the backend. On close it redials
// after a fixed delay, forever, until the channel itself is closed.
type Channel struct {
	url            string
	reconnectDelay time.Duration
	logger         *zap.Logger

	mu         sync.Mutex
	subs       map[int]chan Event
	statusSubs map[int]chan bool
	nextSubID  int
	connected  bool
	started    bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewChannel creates a channel for the given websocket URL. The connection
// is not established until Connect.
func NewChannel(url string, reconnectDelay time.Duration, logger *zap.Logger) *Channel {
	if reconnectDelay <= 0 {
		reconnectDelay = 3 * time.Second
	}
	return &Channel{
		url:            url,
		reconnectDelay: reconnectDelay,
		logger:         logger.With(zap.String("component", "events")),
		subs:           make(map[int]chan Event),
		statusSubs:     make(map[int]chan bool),
		done:           make(chan struct{}),
	}
}

// Connect starts the connection loop. It returns immediately; connectivity is
// observable through Status and StatusChanges. Calling Connect twice is a
// no-op.
func (c *Channel) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	go c.run(ctx)
}

// Close tears the connection down and stops reconnecting.
func (c *Channel) Close() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		<-c.done
	}
}

// Status reports current connectivity.
func (c *Channel) Status() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Subscribe registers for all events from this point on; there is no replay.
// The returned cancel function must be called to release the subscription.
func (c *Channel) Subscribe() (<-chan Event, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSubID
	c.nextSubID++
	ch := make(chan Event, subscriberBuffer)
	c.subs[id] = ch
	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
}

// StatusChanges registers for connectivity transitions. The current status is
// delivered first so subscribers do not have to race Status.
func (c *Channel) StatusChanges() (<-chan bool, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSubID
	c.nextSubID++
	ch := make(chan bool, subscriberBuffer)
	ch <- c.connected
	c.statusSubs[id] = ch
	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.statusSubs[id]; ok {
			delete(c.statusSubs, id)
			close(sub)
		}
	}
}

// run dials, pumps messages until the connection drops, then waits the fixed
// reconnect delay and dials again. There is no backoff growth and no retry
// ceiling; the channel keeps trying until closed.
func (c *Channel) run(ctx context.Context) {
	defer close(c.done)
	defer c.setConnected(false)

	for {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("websocket dial failed, will retry",
				zap.String("url", c.url),
				zap.Duration("delay", c.reconnectDelay),
				zap.Error(err))
		} else {
			c.logger.Info("connected to backend event stream", zap.String("url", c.url))
			c.setConnected(true)
			c.readPump(ctx, conn)
			c.setConnected(false)
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("websocket connection closed, will reconnect",
				zap.Duration("delay", c.reconnectDelay))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.reconnectDelay):
		}
	}
}

// readPump reads frames until the connection fails. Malformed frames are
// dropped; they must not take the channel down.
func (c *Channel) readPump(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	// Unblock ReadMessage when the context is cancelled.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Warn("dropping malformed event frame", zap.Error(err))
			continue
		}
		c.broadcast(ev)
	}
}

func (c *Channel) broadcast(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, sub := range c.subs {
		select {
		case sub <- ev:
		default:
			c.logger.Warn("subscriber too slow, dropping event",
				zap.Int("subscriber", id),
				zap.String("type", string(ev.Type)))
		}
	}
}

func (c *Channel) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected == connected {
		return
	}
	c.connected = connected
	for id, sub := range c.statusSubs {
		select {
		case sub <- connected:
		default:
			c.logger.Warn("status subscriber too slow, dropping update",
				zap.Int("subscriber", id))
		}
	}
}
