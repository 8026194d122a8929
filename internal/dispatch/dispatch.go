// Package dispatch provides the switch-latest request sequencer.
//
// Each Sequencer owns one logical request stream (a "subject"): every
// Dispatch triggers exactly one call, and only the result of the most
// recently dispatched call is ever delivered. When a new request supersedes
// an in-flight one, the older call keeps running but its result is discarded
// on arrival. This keeps stale search or fetch results from clobbering the
// state produced by a newer request.
package dispatch

import (
	"context"
	"sync"
)

// Sequencer serializes result delivery for one subject stream.
// Req is the request payload, Res the call result.
type Sequencer[Req, Res any] struct {
	call     func(context.Context, Req) (Res, error)
	onResult func(Req, Res)
	onError  func(Req, error)

	mu  sync.Mutex
	gen uint64
	wg  sync.WaitGroup
}

// New creates a sequencer. onResult receives the result of the winning call;
// onError receives its failure. Neither is invoked for superseded calls.
// onError may be nil, in which case failures are silently dropped.
func New[Req, Res any](
	call func(context.Context, Req) (Res, error),
	onResult func(Req, Res),
	onError func(Req, error),
) *Sequencer[Req, Res] {
	return &Sequencer[Req, Res]{
		call:     call,
		onResult: onResult,
		onError:  onError,
	}
}

// Dispatch triggers one call for req. If an earlier call for this sequencer
// is still in flight, its eventual result is discarded; the call itself is
// not aborted.
func (s *Sequencer[Req, Res]) Dispatch(ctx context.Context, req Req) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		res, err := s.call(ctx, req)

		// The staleness check and the delivery happen under the same lock,
		// otherwise a superseding Dispatch could slip in between them and a
		// stale result would still reach the callbacks. Callbacks must not
		// call Dispatch on this sequencer.
		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.gen {
			return
		}

		if err != nil {
			if s.onError != nil {
				s.onError(req, err)
			}
			return
		}
		s.onResult(req, res)
	}()
}

// Wait blocks until all dispatched calls have returned, delivered or not.
// Intended for shutdown and tests.
func (s *Sequencer[Req, Res]) Wait() {
	s.wg.Wait()
}
