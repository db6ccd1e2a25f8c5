package mellow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvironment_DeclareLookup(t *testing.T) {
	e := NewEnvironment()
	e.Declare("x", Int(1))
	v, ok := e.Lookup("x")
	assert.True(t, ok)
	assert.Equal(t, Int(1), v)

	_, ok = e.Lookup("missing")
	assert.False(t, ok)
}

func TestEnvironment_ScopingInnerShadowsOuter(t *testing.T) {
	e := NewEnvironment()
	e.Declare("x", Int(1))
	e.Push()
	e.Declare("x", Int(2))
	v, _ := e.Lookup("x")
	assert.Equal(t, Int(2), v)
	e.Pop()
	v, _ = e.Lookup("x")
	assert.Equal(t, Int(1), v)
}

func TestEnvironment_AssignFindsEnclosingScope(t *testing.T) {
	e := NewEnvironment()
	e.Declare("x", Int(1))
	e.Push()
	ok := e.Assign("x", Int(99))
	assert.True(t, ok)
	e.Pop()
	v, _ := e.Lookup("x")
	assert.Equal(t, Int(99), v)
}

func TestEnvironment_AssignUndefinedFails(t *testing.T) {
	e := NewEnvironment()
	assert.False(t, e.Assign("nope", Int(1)))
}

func TestEnvironment_SnapshotFlattensInnermostWins(t *testing.T) {
	e := NewEnvironment()
	e.Declare("x", Int(1))
	e.Declare("y", Int(2))
	e.Push()
	e.Declare("x", Int(10))
	snap := e.Snapshot()
	v, ok := snap.Lookup("x")
	assert.True(t, ok)
	assert.Equal(t, Int(10), v)
	v, ok = snap.Lookup("y")
	assert.True(t, ok)
	assert.Equal(t, Int(2), v)
}

func TestCapturedEnv_RestoreBuildsOuterPlusFreshInner(t *testing.T) {
	e := NewEnvironment()
	e.Declare("captured", String("hi"))
	snap := e.Snapshot()

	restored := snap.Restore()
	v, ok := restored.Lookup("captured")
	assert.True(t, ok)
	assert.Equal(t, String("hi"), v)

	restored.Declare("local", Int(5))
	_, stillThere := snap.Lookup("local")
	assert.False(t, stillThere, "declaring into the restored env must not leak back into the capture")
}

func TestCapturedEnv_NilLookupIsSafe(t *testing.T) {
	var c *CapturedEnv
	_, ok := c.Lookup("anything")
	assert.False(t, ok)
}
