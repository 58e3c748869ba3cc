// Package worker bounds how many slow upstream calls run at once. Jobs are
// queued per caller and handed to an elastic worker pool in round-robin order.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrBusy   = errors.New("dispatcher queue is full")
	ErrClosed = errors.New("dispatcher closed")
)

// Task is the unit of work. It receives the submitter's context.
type Task func(ctx context.Context)

type job struct {
	key  string
	ctx  context.Context
	run  Task
	err  error
	done chan struct{}
}

func (j *job) execute() {
	defer close(j.done)
	if err := j.ctx.Err(); err != nil {
		j.err = err
		return
	}
	defer func() {
		if r := recover(); r != nil {
			j.err = fmt.Errorf("task panic: %v", r)
		}
	}()
	j.run(j.ctx)
}

func (j *job) cancel(err error) {
	j.err = err
	close(j.done)
}

type Config struct {
	MinWorkers  int
	MaxWorkers  int
	QueueSize   int
	IdleTimeout time.Duration
}

type Dispatcher struct {
	intake chan *job
	pool   *pool
	queue  *fairQueue

	// mu guards closed so no job enters intake once Close starts draining.
	mu     sync.RWMutex
	closed bool

	quit      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 32
	}
	d := &Dispatcher{
		intake:  make(chan *job, cfg.QueueSize),
		pool:    newPool(cfg.MinWorkers, cfg.MaxWorkers, cfg.IdleTimeout),
		queue:   newFairQueue(),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go d.run()
	return d
}

// Do runs task on a pool worker and waits for it. key groups jobs of one
// caller for fair scheduling. A full intake queue fails fast with ErrBusy.
func (d *Dispatcher) Do(ctx context.Context, key string, task Task) error {
	j := &job{key: key, ctx: ctx, run: task, done: make(chan struct{})}
	if err := d.submit(j); err != nil {
		return err
	}
	select {
	case <-j.done:
		return j.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) submit(j *job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.intake <- j:
		return nil
	default:
		return ErrBusy
	}
}

func (d *Dispatcher) run() {
	defer close(d.stopped)
	for {
		if !d.dispatchOne() {
			select {
			case j := <-d.intake: // idle: wait for work
				d.queue.push(j)
			case <-d.quit:
				return
			}
			continue
		}
		select {
		case j := <-d.intake:
			d.queue.push(j)
		case <-d.quit:
			return
		default:
		}
	}
}

// dispatchOne hands the next fair job to a worker, blocking until one is free.
func (d *Dispatcher) dispatchOne() bool {
	j := d.queue.pop()
	if j == nil {
		return false
	}
	ch := d.pool.acquire()
	if ch == nil {
		j.cancel(ErrClosed)
		return true
	}
	ch <- j
	return true
}

// Workers reports the number of live worker goroutines.
func (d *Dispatcher) Workers() int {
	return d.pool.size()
}

// Close stops accepting work. Queued jobs fail with ErrClosed; running jobs
// finish.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		close(d.quit)
		d.pool.close()
		<-d.stopped
		for _, j := range d.queue.drain() {
			j.cancel(ErrClosed)
		}
		for {
			select {
			case j := <-d.intake:
				j.cancel(ErrClosed)
			default:
				return
			}
		}
	})
}
