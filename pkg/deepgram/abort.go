package deepgram

import (
	"context"
	"sync"
)

// abortSlot tracks the in-flight one-shot request of one kind. Beginning
// a new request aborts the previous one.
type abortSlot struct {
	mu     sync.Mutex
	seq    uint64
	cancel context.CancelCauseFunc
}

// begin aborts the current request, if any, and returns the context for
// the new one. The returned done func must be called when the request
// finishes.
func (s *abortSlot) begin(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel(ErrRequestAborted)
	}
	s.seq++
	seq := s.seq
	s.cancel = cancel
	s.mu.Unlock()

	return ctx, func() {
		s.mu.Lock()
		if s.seq == seq {
			s.cancel = nil
		}
		s.mu.Unlock()
		cancel(context.Canceled)
	}
}

// abort cancels the current request.
func (s *abortSlot) abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel(ErrRequestAborted)
		s.cancel = nil
	}
}
