package state

import (
	"sync"

	"github.com/yurykabanov/baqup/pkg/domain"
)

// ring keeps the most recent events; the oldest is overwritten on overflow.
type ring struct {
	mu    sync.Mutex
	buf   []domain.Event
	start int
	size  int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]domain.Event, capacity)}
}

func (r *ring) push(e domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = e
		r.size++
		return
	}

	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) list() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Event, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}
