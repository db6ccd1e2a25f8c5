package mellow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruthy(t *testing.T) {
	tests := []struct {
		name     string
		v        Value
		expected bool
	}{
		{"true bool", Bool(true), true},
		{"false bool", Bool(false), false},
		{"nonzero int", Int(5), true},
		{"zero int", Int(0), false},
		{"nonzero float", Float(0.5), true},
		{"zero float", Float(0), false},
		{"nonempty string", String("hi"), true},
		{"empty string", String(""), false},
		{"nonempty array", NewArray([]Value{Int(1)}), true},
		{"empty array", NewArray(nil), false},
		{"unit", Unit{}, false},
		{"okay", &Okay{Inner: Int(1)}, true},
		{"oops", &Oops{Message: "bad"}, false},
		{"open channel", NewChannel(1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Truthy(tt.v))
		})
	}
}

func TestTruthyClosedChannel(t *testing.T) {
	ch := NewChannel(1)
	ch.impl.Close()
	assert.False(t, Truthy(ch))
}

func TestValuesEqual_NumericPromotion(t *testing.T) {
	assert.True(t, valuesEqual(Int(3), Float(3.0)))
	assert.True(t, valuesEqual(Float(3.0), Int(3)))
	assert.False(t, valuesEqual(Int(3), Float(3.5)))
}

func TestValuesEqual_Array(t *testing.T) {
	a := NewArray([]Value{Int(1), String("x")})
	b := NewArray([]Value{Int(1), String("x")})
	c := NewArray([]Value{Int(1), String("y")})
	assert.True(t, valuesEqual(a, b))
	assert.False(t, valuesEqual(a, c))
}

func TestValuesEqual_Record(t *testing.T) {
	a := NewRecord()
	a.Set("k", Int(1))
	b := NewRecord()
	b.Set("k", Int(1))
	assert.True(t, valuesEqual(a, b))
	b.Set("other", Int(2))
	assert.False(t, valuesEqual(a, b))
}

func TestValuesEqual_ResultKinds(t *testing.T) {
	assert.True(t, valuesEqual(&Okay{Inner: Int(1)}, &Okay{Inner: Int(1)}))
	assert.False(t, valuesEqual(&Okay{Inner: Int(1)}, &Okay{Inner: Int(2)}))
	assert.True(t, valuesEqual(&Oops{Message: "x"}, &Oops{Message: "x"}))
}

func TestValuesEqual_ClosureChannelNeverEqual(t *testing.T) {
	c1 := &Closure{FuncIndex: 0}
	assert.False(t, valuesEqual(c1, c1))
	ch := NewChannel(1)
	assert.False(t, valuesEqual(ch, ch))
}

func TestDisplayValue(t *testing.T) {
	assert.Equal(t, "()", displayValue(nil))
	assert.Equal(t, "5", displayValue(Int(5)))
	assert.Equal(t, "[1, 2]", displayValue(NewArray([]Value{Int(1), Int(2)})))
}

func TestRecordSetPreservesInsertionOrder(t *testing.T) {
	r := NewRecord()
	r.Set("b", Int(2))
	r.Set("a", Int(1))
	r.Set("b", Int(99))
	assert.Equal(t, []string{"b", "a"}, r.Keys)
	assert.Equal(t, Int(99), r.Fields["b"])
}
