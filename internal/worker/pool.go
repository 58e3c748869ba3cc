package worker

import (
	"sync"
	"time"
)

type workerMeta struct {
	ch        chan *job
	lastUsed  time.Time
	enqueued  bool // in the idle list
	discarded bool // retiring
}

// pool is an elastic set of worker goroutines between min and max.
type pool struct {
	mu       sync.Mutex
	cond     *sync.Cond
	idle     []*workerMeta
	metadata map[chan *job]*workerMeta
	min      int
	max      int
	running  int
	expiry   time.Duration
	closed   bool
	quit     chan struct{}
}

const defaultWorkerIdle = 30 * time.Second

func newPool(minWorkers, maxWorkers int, idle time.Duration) *pool {
	if idle <= 0 {
		idle = defaultWorkerIdle
	}
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if minWorkers > maxWorkers {
		minWorkers = maxWorkers
	}
	p := &pool{
		metadata: make(map[chan *job]*workerMeta),
		min:      minWorkers,
		max:      maxWorkers,
		expiry:   idle,
		quit:     make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < minWorkers; i++ {
		p.mu.Lock()
		meta := p.spawnLocked()
		meta.enqueued = true
		meta.lastUsed = time.Now()
		p.idle = append(p.idle, meta)
		p.mu.Unlock()
	}
	go p.purgeStaleWorkers()
	return p
}

func (p *pool) spawnLocked() *workerMeta {
	meta := &workerMeta{ch: make(chan *job)}
	p.metadata[meta.ch] = meta
	p.running++
	go p.work(meta.ch)
	return meta
}

func (p *pool) work(ch chan *job) {
	for j := range ch {
		j.execute()
		if !p.release(ch) {
			return
		}
	}
}

// acquire returns an idle worker, spawning one while below max. It blocks
// when every worker is busy and returns nil once the pool is closed.
func (p *pool) acquire() chan *job {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		if p.closed {
			return nil
		}
		if meta := p.popIdleLocked(); meta != nil {
			return meta.ch
		}
		if p.running < p.max {
			return p.spawnLocked().ch
		}
		p.cond.Wait()
	}
}

// release puts a worker back on the idle list. false means the worker
// should exit.
func (p *pool) release(ch chan *job) bool {
	p.mu.Lock()
	meta, ok := p.metadata[ch]
	if !ok || meta.discarded {
		p.mu.Unlock()
		return false
	}
	if p.closed {
		p.retireLocked(meta)
		p.mu.Unlock()
		return false
	}
	meta.enqueued = true
	meta.lastUsed = time.Now()
	p.idle = append(p.idle, meta)
	p.mu.Unlock()
	p.cond.Signal()
	return true
}

func (p *pool) retireLocked(meta *workerMeta) {
	if _, ok := p.metadata[meta.ch]; !ok {
		return
	}
	delete(p.metadata, meta.ch)
	meta.discarded = true
	meta.enqueued = false
	p.running--
}

func (p *pool) popIdleLocked() *workerMeta {
	for len(p.idle) > 0 {
		meta := p.idle[0]
		p.idle = p.idle[1:]
		if meta.discarded {
			continue
		}
		meta.enqueued = false
		return meta
	}
	return nil
}

func (p *pool) purgeStaleWorkers() {
	ticker := time.NewTicker(p.expiry)
	defer ticker.Stop()
	for {
		select {
		case <-p.quit:
			return
		case <-ticker.C:
			p.shutdownExpired()
		}
	}
}

// shutdownExpired retires idle workers unused for longer than expiry,
// keeping at least min alive.
func (p *pool) shutdownExpired() {
	var stale []*workerMeta
	now := time.Now()

	p.mu.Lock()
	remaining := p.idle[:0]
	for _, meta := range p.idle {
		if meta.discarded {
			continue
		}
		if now.Sub(meta.lastUsed) >= p.expiry && p.running > p.min {
			p.retireLocked(meta)
			stale = append(stale, meta)
			continue
		}
		remaining = append(remaining, meta)
	}
	p.idle = remaining
	p.mu.Unlock()

	for _, meta := range stale {
		close(meta.ch)
	}
}

func (p *pool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *pool) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	for _, meta := range idle {
		p.retireLocked(meta)
	}
	p.mu.Unlock()
	close(p.quit)
	p.cond.Broadcast()
	for _, meta := range idle {
		close(meta.ch)
	}
}
