// Package toast is a single-slot transient notification sink. A new
// notification replaces whatever is currently visible; nothing queues.
package toast

import (
	"sync"
	"time"
)

// Kind distinguishes informational toasts from error toasts.
type Kind int

const (
	Info Kind = iota
	Error
)

// Notification is one visible toast.
type Notification struct {
	Message string
	Kind    Kind
}

// DefaultDuration is how long a toast stays visible.
const DefaultDuration = 3 * time.Second

// Sink holds at most one visible notification at a time and clears it after
// a fixed duration. Showing a new one replaces the current one and restarts
// the timer. Safe for concurrent use.
type Sink struct {
	mu       sync.Mutex
	current  *Notification
	seq      uint64
	duration time.Duration

	subMu  sync.Mutex
	subs   map[int]chan struct{}
	nextID int
}

// NewSink creates a sink with the default display duration.
func NewSink() *Sink {
	return &Sink{duration: DefaultDuration, subs: make(map[int]chan struct{})}
}

// NewSinkWithDuration is for tests that cannot wait three seconds.
func NewSinkWithDuration(d time.Duration) *Sink {
	return &Sink{duration: d, subs: make(map[int]chan struct{})}
}

// Show displays an informational toast.
func (s *Sink) Show(msg string) { s.show(msg, Info) }

// ShowError displays an error toast.
func (s *Sink) ShowError(msg string) { s.show(msg, Error) }

func (s *Sink) show(msg string, kind Kind) {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.current = &Notification{Message: msg, Kind: kind}
	s.mu.Unlock()
	s.notifySubscribers()

	time.AfterFunc(s.duration, func() {
		s.mu.Lock()
		// A later toast restarted the timer; leave it alone.
		if s.seq != seq {
			s.mu.Unlock()
			return
		}
		s.current = nil
		s.mu.Unlock()
		s.notifySubscribers()
	})
}

// Current returns the visible notification, if any.
func (s *Sink) Current() (Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Notification{}, false
	}
	return *s.current, true
}

// Subscribe registers for change notification. Ticks coalesce; consumers
// re-read Current.
func (s *Sink) Subscribe() (<-chan struct{}, func()) {
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

func (s *Sink) notifySubscribers() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
