package worker

import (
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Task func()

// Pool runs fire-and-forget side effects (event publishing, audit writes)
// off the request path.
type Pool struct {
	wg     sync.WaitGroup
	jobs   chan Task
	depth  prometheus.Gauge
	log    *slog.Logger
	mu     sync.RWMutex
	closed bool
}

// NewPool starts n workers over a queue of the given capacity. depth may be
// nil.
func NewPool(n, queue int, depth prometheus.Gauge, log *slog.Logger) *Pool {
	if n < 1 {
		n = 1
	}
	if queue < 1 {
		queue = 1024
	}
	if log == nil {
		log = slog.Default()
	}
	p := &Pool{jobs: make(chan Task, queue), depth: depth, log: log}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				p.gauge(-1)
				p.run(job)
			}
		}()
	}
	return p
}

func (p *Pool) run(job Task) {
	defer func() {
		if rec := recover(); rec != nil {
			p.log.Error("worker task panic", "err", rec)
		}
	}()
	job()
}

func (p *Pool) gauge(delta float64) {
	if p.depth != nil {
		p.depth.Add(delta)
	}
}

// Submit enqueues f without blocking. It reports false when the pool is
// stopped or the queue is full.
func (p *Pool) Submit(f Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.jobs <- f:
		p.gauge(1)
		return true
	default:
		p.log.Warn("worker queue full, dropping task")
		return false
	}
}

// Stop drains queued tasks and waits for the workers to exit.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}
