package mellow

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// WorkerMessageKind tags one WorkerMessage, grounded on
// original_source/src/worker/mod.rs's WorkerMessage enum.
type WorkerMessageKind int

const (
	MsgValue WorkerMessageKind = iota
	MsgStop
	MsgPing
	MsgPong
	MsgNamed
)

// WorkerMessage is one item passed between a worker and its parent
// over a WorkerHandle's channels.
type WorkerMessage struct {
	Kind  WorkerMessageKind
	Name  string // set for MsgNamed
	Value Value
}

// WorkerHandle is the parent-side handle to a spawned worker,
// grounded on original_source's WorkerHandle: two buffered channels
// (capacity 16) replace the original's mpsc sender/receiver pair, and the original's
// Arc<Mutex<bool>> running flag becomes an atomic.Bool.
type WorkerHandle struct {
	Name    string
	toWork  chan WorkerMessage
	fromWrk chan WorkerMessage
	done    chan struct{}
	running atomic.Bool
}

// WorkerContext is what a worker goroutine uses to talk back to its
// parent, mirroring original_source's WorkerContext.
type WorkerContext struct {
	toParent chan WorkerMessage
	fromPar  chan WorkerMessage
	running  *atomic.Bool
}

func (c *WorkerContext) Send(msg WorkerMessage) { c.toParent <- msg }

func (c *WorkerContext) Receive() WorkerMessage { return <-c.fromPar }

// TryReceive is the non-blocking counterpart to Receive.
func (c *WorkerContext) TryReceive() (WorkerMessage, bool) {
	select {
	case m := <-c.fromPar:
		return m, true
	default:
		return WorkerMessage{}, false
	}
}

func (c *WorkerContext) ShouldRun() bool { return c.running.Load() }

func (c *WorkerContext) MarkStopped() { c.running.Store(false) }

// spawnWorkerFunc starts f on a dedicated goroutine and returns a
// handle the parent uses to talk to it, grounded on original_source's
// spawn_worker function.
func spawnWorkerFunc(name string, f func(*WorkerContext)) *WorkerHandle {
	h := &WorkerHandle{
		Name:    name,
		toWork:  make(chan WorkerMessage, 16),
		fromWrk: make(chan WorkerMessage, 16),
		done:    make(chan struct{}),
	}
	h.running.Store(true)

	ctx := &WorkerContext{toParent: h.fromWrk, fromPar: h.toWork, running: &h.running}
	go func() {
		defer close(h.done)
		f(ctx)
	}()
	return h
}

func (h *WorkerHandle) Send(msg WorkerMessage) { h.toWork <- msg }

func (h *WorkerHandle) Receive() WorkerMessage { return <-h.fromWrk }

func (h *WorkerHandle) TryReceive() (WorkerMessage, bool) {
	select {
	case m := <-h.fromWrk:
		return m, true
	default:
		return WorkerMessage{}, false
	}
}

func (h *WorkerHandle) IsRunning() bool { return h.running.Load() }

// Stop signals the worker and blocks until its goroutine exits.
func (h *WorkerHandle) Stop() {
	select {
	case h.toWork <- WorkerMessage{Kind: MsgStop}:
	default:
	}
	<-h.done
}

// Join waits for the worker to finish on its own, without signaling it.
func (h *WorkerHandle) Join() { <-h.done }

// WorkerPool bounds the number of concurrently running workers a
// program may spawn, grounded on original_source's WorkerPool.
type WorkerPool struct {
	mu         sync.Mutex
	workers    map[string]*WorkerHandle
	maxWorkers int
}

func NewWorkerPool(maxWorkers int) *WorkerPool {
	return &WorkerPool{workers: make(map[string]*WorkerHandle), maxWorkers: maxWorkers}
}

func (p *WorkerPool) Spawn(name string, f func(*WorkerContext)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.workers) >= p.maxWorkers {
		return fmt.Errorf("worker pool full (max %d workers)", p.maxWorkers)
	}
	if _, exists := p.workers[name]; exists {
		return fmt.Errorf("worker %q already exists", name)
	}
	p.workers[name] = spawnWorkerFunc(name, f)
	return nil
}

func (p *WorkerPool) Get(name string) (*WorkerHandle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.workers[name]
	return h, ok
}

func (p *WorkerPool) SendTo(name string, msg WorkerMessage) error {
	h, ok := p.Get(name)
	if !ok {
		return fmt.Errorf("worker %q not found", name)
	}
	h.Send(msg)
	return nil
}

func (p *WorkerPool) Broadcast(msg WorkerMessage) []string {
	p.mu.Lock()
	handles := make([]*WorkerHandle, 0, len(p.workers))
	for _, h := range p.workers {
		handles = append(handles, h)
	}
	p.mu.Unlock()
	var errs []string
	for _, h := range handles {
		h.Send(msg)
	}
	return errs
}

func (p *WorkerPool) Stop(name string) error {
	p.mu.Lock()
	h, ok := p.workers[name]
	if ok {
		delete(p.workers, name)
	}
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("worker %q not found", name)
	}
	h.Stop()
	return nil
}

func (p *WorkerPool) StopAll() []string {
	p.mu.Lock()
	names := make([]string, 0, len(p.workers))
	for n := range p.workers {
		names = append(names, n)
	}
	p.mu.Unlock()
	var errs []string
	for _, n := range names {
		if err := p.Stop(n); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", n, err))
		}
	}
	return errs
}

func (p *WorkerPool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, h := range p.workers {
		if h.IsRunning() {
			n++
		}
	}
	return n
}

func (p *WorkerPool) WorkerNames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.workers))
	for n := range p.workers {
		names = append(names, n)
	}
	return names
}
