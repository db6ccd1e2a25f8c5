package mellow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorker_SpawnAndMessagePassing(t *testing.T) {
	h := spawnWorkerFunc("echo", func(ctx *WorkerContext) {
		msg := ctx.Receive()
		ctx.Send(WorkerMessage{Kind: MsgValue, Value: msg.Value})
		ctx.MarkStopped()
	})
	h.Send(WorkerMessage{Kind: MsgValue, Value: Int(7)})
	reply := h.Receive()
	assert.Equal(t, Int(7), reply.Value)
	h.Join()
	assert.False(t, h.IsRunning())
}

func TestWorker_TryReceiveNonBlocking(t *testing.T) {
	h := spawnWorkerFunc("slow", func(ctx *WorkerContext) {
		time.Sleep(30 * time.Millisecond)
		ctx.Send(WorkerMessage{Kind: MsgPong})
		ctx.MarkStopped()
	})
	_, got := h.TryReceive()
	assert.False(t, got)
	h.Join()
	msg, got := h.TryReceive()
	assert.True(t, got)
	assert.Equal(t, MsgPong, msg.Kind)
}

func TestWorkerPool_SpawnAndLookup(t *testing.T) {
	p := NewWorkerPool(2)
	err := p.Spawn("w1", func(ctx *WorkerContext) {
		ctx.Receive()
		ctx.MarkStopped()
	})
	require.NoError(t, err)

	_, ok := p.Get("w1")
	assert.True(t, ok)

	err = p.Spawn("w1", func(ctx *WorkerContext) {})
	assert.Error(t, err, "duplicate worker name must fail")

	assert.NoError(t, p.SendTo("w1", WorkerMessage{Kind: MsgStop}))
	assert.NoError(t, p.Stop("w1"))
	_, ok = p.Get("w1")
	assert.False(t, ok)
}

func TestWorkerPool_RejectsOverCapacity(t *testing.T) {
	p := NewWorkerPool(1)
	require.NoError(t, p.Spawn("a", func(ctx *WorkerContext) { ctx.Receive() }))
	err := p.Spawn("b", func(ctx *WorkerContext) {})
	assert.Error(t, err)
	p.Stop("a")
}

func TestWorkerPool_StopAllStopsEveryWorker(t *testing.T) {
	p := NewWorkerPool(4)
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, p.Spawn(name, func(ctx *WorkerContext) { ctx.Receive() }))
	}
	errs := p.StopAll()
	assert.Empty(t, errs)
	assert.Equal(t, 0, p.ActiveCount())
}

func TestWorkerContext_ShouldRunReflectsAtomicFlag(t *testing.T) {
	done := make(chan struct{})
	h := spawnWorkerFunc("loop", func(ctx *WorkerContext) {
		for ctx.ShouldRun() {
			if _, got := ctx.TryReceive(); got {
				ctx.MarkStopped()
			}
		}
		close(done)
	})
	h.Send(WorkerMessage{Kind: MsgStop})
	<-done
	assert.False(t, h.IsRunning())
}
