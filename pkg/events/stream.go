package events

import (
	"sync"

	"github.com/cuemby/procpool/pkg/types"
)

// Stream is an unbounded FIFO of lifecycle artifacts. Publishers never
// block; a closed stream keeps serving queued artifacts until it is
// drained so late completion records are not lost on shutdown.
type Stream struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []types.Artifact
	closed bool
}

// NewStream returns an empty open stream.
func NewStream() *Stream {
	s := &Stream{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Publish appends an artifact. Artifacts published after Close are
// dropped.
func (s *Stream) Publish(a types.Artifact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queue = append(s.queue, a)
	s.cond.Signal()
}

// Next blocks until an artifact is available and returns it. It returns
// ok=false once the stream is closed and fully drained.
func (s *Stream) Next() (types.Artifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) == 0 && !s.closed {
		s.cond.Wait()
	}
	if len(s.queue) == 0 {
		return types.Artifact{}, false
	}
	a := s.queue[0]
	s.queue = s.queue[1:]
	return a, true
}

// Close stops accepting artifacts and wakes every blocked consumer.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cond.Broadcast()
}

// Len reports how many artifacts are waiting.
func (s *Stream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
