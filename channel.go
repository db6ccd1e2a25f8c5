package mellow

import (
	"sync"
	"time"
)

// maxChannelBuffer bounds `make_chan`'s capacity argument, grounded on
// original_source/src/stdlib/chan.rs's MAX_BUFFER_SIZE.
const maxChannelBuffer = 10000

// channelImpl backs the Channel Value kind with a buffered Go channel
// plus an explicit closed flag, grounded on original_source's
// ChannelHandle. A plain `chan Value` alone can't distinguish "closed"
// from "received the zero value", so closed is tracked separately and
// guarded by mu.
type channelImpl struct {
	mu     sync.Mutex
	ch     chan Value
	closed bool
}

func newChannelImpl(capacity int) *channelImpl {
	return &channelImpl{ch: make(chan Value, capacity)}
}

func NewChannel(capacity int) *Channel {
	return &Channel{impl: newChannelImpl(capacity)}
}

func (c *channelImpl) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Send blocks until the value is accepted or the channel is closed.
func (c *channelImpl) Send(v Value) (err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return NewRuntimeError(ErrType, "send on closed channel")
	}
	c.mu.Unlock()

	defer func() {
		// A concurrent Close can close c.ch while this goroutine is
		// mid-send; recover turns that race's panic into the same
		// "closed" error Send returns when it observes closed up front,
		// instead of letting the zero-value nil return mask it as success.
		if recover() != nil {
			err = NewRuntimeError(ErrType, "send on closed channel")
		}
	}()
	c.ch <- v
	return nil
}

// Receive blocks until a value is available or the channel closes.
func (c *channelImpl) Receive() (Value, error) {
	v, ok := <-c.ch
	if !ok {
		return nil, NewRuntimeError(ErrType, "receive on closed channel")
	}
	return v, nil
}

// TryReceive is the non-blocking form: ok is false if nothing was
// waiting (distinct from a closed-channel receive, which never blocks
// and always succeeds with ok=true, v=nil).
func (c *channelImpl) TryReceive() (v Value, ok bool, closed bool) {
	select {
	case val, open := <-c.ch:
		if !open {
			return nil, true, true
		}
		return val, true, false
	default:
		return nil, false, false
	}
}

// ReceiveTimeout waits up to d for a value before giving up.
func (c *channelImpl) ReceiveTimeout(d time.Duration) (v Value, ok bool, closed bool) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case val, open := <-c.ch:
		if !open {
			return nil, true, true
		}
		return val, true, false
	case <-timer.C:
		return nil, false, false
	}
}

func (c *channelImpl) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}
