package main

import (
	"container/heap"
	"flag"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"
)

// Compares two shapes for the structure the dispatcher blocks on while
// waiting for work: a min-heap guarded by a sync.Cond, and a plain
// buffered channel. The channel is simpler and a little faster, but it
// freezes delivery order at send time, so a high-priority task that
// arrives while others wait cannot jump the line. The heap+cond shape
// re-sorts on every push.

type item struct {
	priority int
	seq      int
}

type itemHeap []item

func (h itemHeap) Len() int { return len(h) }
func (h itemHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h itemHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *itemHeap) Push(x interface{}) { *h = append(*h, x.(item)) }
func (h *itemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// condPool is the heap + sync.Cond shape
type condPool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  itemHeap
	closed bool
}

func newCondPool() *condPool {
	p := &condPool{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *condPool) push(it item) {
	p.mu.Lock()
	heap.Push(&p.items, it)
	p.mu.Unlock()
	p.cond.Signal()
}

func (p *condPool) pop() (item, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.items) == 0 && !p.closed {
		p.cond.Wait()
	}
	if len(p.items) == 0 {
		return item{}, false
	}
	return heap.Pop(&p.items).(item), true
}

func (p *condPool) close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
}

func main() {
	var (
		items     = flag.Int("items", 10000, "Items per scenario")
		producers = flag.Int("producers", 4, "Producer goroutines")
		consumers = flag.Int("consumers", 4, "Consumer goroutines")
	)
	flag.Parse()

	log.Printf("Blocking pop POC: %d items, %d producers, %d consumers",
		*items, *producers, *consumers)

	orderScenario(*items)
	throughputScenario(*items, *producers, *consumers)
}

// orderScenario preloads both shapes with random priorities and drains
// them with one consumer, counting how often each shape hands over
// something that was not the best waiting item.
func orderScenario(n int) {
	priorities := make([]int, n)
	for i := range priorities {
		priorities[i] = rand.Intn(1000)
	}
	want := append([]int(nil), priorities...)
	sort.Ints(want)

	pool := newCondPool()
	for i, p := range priorities {
		pool.push(item{priority: p, seq: i})
	}
	pool.close()
	misses := 0
	for i := 0; i < n; i++ {
		it, ok := pool.pop()
		if !ok {
			log.Fatalf("heap+cond drained early at %d", i)
		}
		if it.priority != want[i] {
			misses++
		}
	}
	log.Printf("heap+cond:  %d/%d out-of-order deliveries", misses, n)

	ch := make(chan item, n)
	for i, p := range priorities {
		ch <- item{priority: p, seq: i}
	}
	close(ch)
	misses = 0
	i := 0
	for it := range ch {
		if it.priority != want[i] {
			misses++
		}
		i++
	}
	log.Printf("channel:    %d/%d out-of-order deliveries", misses, n)
}

// throughputScenario hammers both shapes with concurrent pushes and
// pops and reports ops/sec.
func throughputScenario(n, producers, consumers int) {
	perProducer := n / producers

	pool := newCondPool()
	start := time.Now()
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				pool.push(item{priority: rand.Intn(1000), seq: base + i})
			}
		}(p * perProducer)
	}
	var consumed sync.WaitGroup
	for c := 0; c < consumers; c++ {
		consumed.Add(1)
		go func() {
			defer consumed.Done()
			for {
				if _, ok := pool.pop(); !ok {
					return
				}
			}
		}()
	}
	wg.Wait()
	pool.close()
	consumed.Wait()
	condElapsed := time.Since(start)

	ch := make(chan item, n)
	start = time.Now()
	wg = sync.WaitGroup{}
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				ch <- item{priority: rand.Intn(1000), seq: base + i}
			}
		}(p * perProducer)
	}
	consumed = sync.WaitGroup{}
	for c := 0; c < consumers; c++ {
		consumed.Add(1)
		go func() {
			defer consumed.Done()
			for range ch {
			}
		}()
	}
	wg.Wait()
	close(ch)
	consumed.Wait()
	chanElapsed := time.Since(start)

	total := float64(producers * perProducer)
	log.Printf("heap+cond:  %.0f ops/sec", total/condElapsed.Seconds())
	log.Printf("channel:    %.0f ops/sec", total/chanElapsed.Seconds())
	log.Println("Verdict: the channel wins on raw throughput but cannot")
	log.Println("reorder waiting work; the daemon keeps the heap+cond.")
}
