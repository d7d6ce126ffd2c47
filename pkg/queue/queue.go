package queue

import (
	"container/heap"
	"fmt"
	"sync"

	"github.com/cuemby/procpool/pkg/task"
)

// entry pairs a record with its arrival order so equal priorities pop
// first-in first-out.
type entry struct {
	rec *task.Record
	seq uint64
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].rec.Task.Priority != h[j].rec.Task.Priority {
		return h[i].rec.Task.Priority < h[j].rec.Task.Priority
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) { *h = append(*h, x.(*entry)) }

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// PriorityPool is a blocking min-priority queue of task records. Records
// with smaller numeric priority pop first; ties pop in insertion order.
// An id-indexed side map allows O(1) inspection of anything that has
// passed through, advisory until Forget removes it.
type PriorityPool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	heap   entryHeap
	byID   map[string]*task.Record
	seq    uint64
	closed bool
}

// New creates a pool, seeded with any given records.
func New(recs ...*task.Record) (*PriorityPool, error) {
	p := &PriorityPool{byID: make(map[string]*task.Record)}
	p.cond = sync.NewCond(&p.mu)
	for _, rec := range recs {
		if err := p.Put(rec); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Put inserts a record and wakes one waiting Pop. Records must carry an
// id for indexing.
func (p *PriorityPool) Put(rec *task.Record) error {
	if rec == nil || rec.Task == nil || rec.Task.ID == "" {
		return fmt.Errorf("queued records must have an id for indexing")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("priority pool is closed")
	}
	p.byID[rec.Task.ID] = rec
	p.seq++
	heap.Push(&p.heap, &entry{rec: rec, seq: p.seq})
	p.cond.Signal()
	return nil
}

// Pop blocks until a record is available and returns the one with the
// smallest priority. It returns false once the pool is closed; anything
// still queued at that point is not dispatched.
func (p *PriorityPool) Pop() (*task.Record, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.heap) == 0 && !p.closed {
		p.cond.Wait()
	}
	if p.closed {
		return nil, false
	}
	e := heap.Pop(&p.heap).(*entry)
	return e.rec, true
}

// Get returns the record known under id, popped or not, until Forget.
func (p *PriorityPool) Get(id string) *task.Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.byID[id]
}

// Forget drops the side-map entry for id. Called once a record reaches a
// terminal state.
func (p *PriorityPool) Forget(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.byID, id)
}

// Len reports how many records wait in the heap.
func (p *PriorityPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.heap)
}

// Empty reports whether nothing is waiting.
func (p *PriorityPool) Empty() bool {
	return p.Len() == 0
}

// All returns an unordered snapshot of the waiting records.
func (p *PriorityPool) All() []*task.Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	recs := make([]*task.Record, len(p.heap))
	for i, e := range p.heap {
		recs[i] = e.rec
	}
	return recs
}

// Close wakes every blocked Pop and makes further Puts fail.
func (p *PriorityPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
}
