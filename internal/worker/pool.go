package worker

import (
	"context"
	"errors"
	"log"
	"sync"
)

// DefaultPoolSize is the number of uploads that run at once.
const DefaultPoolSize = 5

// ErrPoolClosed is returned by Submit after Stop or Close.
var ErrPoolClosed = errors.New("worker pool is closed")

// Task is one unit of work. ctx is cancelled when the pool is stopped.
type Task func(ctx context.Context)

// Pool runs tasks on a fixed set of workers. Tasks wait in an unbounded FIFO
// queue, so Submit never blocks.
type Pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Task
	closed  bool
	running int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool starts size workers; size <= 0 uses DefaultPoolSize.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{ctx: ctx, cancel: cancel}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.work()
	}
	return p
}

// Submit queues t for execution.
func (p *Pool) Submit(t Task) error {
	if t == nil {
		return errors.New("worker pool: nil task")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.queue = append(p.queue, t)
	p.cond.Signal()
	return nil
}

// Running returns the number of tasks being executed.
func (p *Pool) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Queued returns the number of tasks waiting for a worker.
func (p *Pool) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Close stops intake and waits until every queued task has run.
func (p *Pool) Close() {
	p.shutdown()
	p.wg.Wait()
	p.cancel()
}

// Stop stops intake and cancels the context handed to tasks. Queued tasks
// still run with the cancelled context. Stop waits for the workers or ctx.
func (p *Pool) Stop(ctx context.Context) error {
	p.shutdown()
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) shutdown() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
}

func (p *Pool) work() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		t := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.running++
		p.mu.Unlock()

		p.run(t)

		p.mu.Lock()
		p.running--
		p.mu.Unlock()
	}
}

func (p *Pool) run(t Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("worker pool: task panicked: %v", r)
		}
	}()
	t(p.ctx)
}
