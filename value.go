package mellow

import (
	"fmt"
	"strconv"
	"strings"
)

// Value is the runtime value model shared by the tree-walking
// interpreter and the bytecode VM. It is a Go interface with a type
// switch at each consumer, matching the teacher's `Value` interface
// in value.go rather than one tagged-union struct — Mellow's value
// set is closed and small enough that a visitor is unneeded.
type Value interface {
	Type() string
	String() string
}

type Int int64

func (Int) Type() string      { return "Int" }
func (v Int) String() string  { return strconv.FormatInt(int64(v), 10) }

type Float float64

func (Float) Type() string     { return "Float" }
func (v Float) String() string { return strconv.FormatFloat(float64(v), 'g', -1, 64) }

type String string

func (String) Type() string     { return "String" }
func (v String) String() string { return string(v) }

type Bool bool

func (Bool) Type() string     { return "Bool" }
func (v Bool) String() string { return strconv.FormatBool(bool(v)) }

type Unit struct{}

func (Unit) Type() string     { return "Unit" }
func (Unit) String() string   { return "()" }

type Array struct {
	Items []Value
}

func NewArray(items []Value) *Array { return &Array{Items: items} }

func (*Array) Type() string { return "Array" }
func (a *Array) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, v := range a.Items {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(displayValue(v))
	}
	sb.WriteString("]")
	return sb.String()
}

// Record preserves insertion order in Keys even though that order is
// not observable through the language (spec §3): iteration helpers
// that might leak it are intentionally not exposed to user code.
type Record struct {
	Keys   []string
	Fields map[string]Value
}

func NewRecord() *Record {
	return &Record{Fields: make(map[string]Value)}
}

func (r *Record) Set(key string, v Value) {
	if _, exists := r.Fields[key]; !exists {
		r.Keys = append(r.Keys, key)
	}
	r.Fields[key] = v
}

func (*Record) Type() string { return "Record" }
func (r *Record) String() string {
	var sb strings.Builder
	sb.WriteString("{")
	for i, k := range r.Keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s: %s", k, displayValue(r.Fields[k]))
	}
	sb.WriteString("}")
	return sb.String()
}

// Okay is the success carrier of a Result value.
type Okay struct {
	Inner Value
}

func (*Okay) Type() string     { return "Okay" }
func (o *Okay) String() string { return fmt.Sprintf("Okay(%s)", displayValue(o.Inner)) }

// Oops is the failure carrier of a Result value; it always carries a
// String message (non-string constructors are coerced via their
// display form per spec §4.3).
type Oops struct {
	Message string
}

func (*Oops) Type() string     { return "Oops" }
func (o *Oops) String() string { return fmt.Sprintf("Oops(%s)", strconv.Quote(o.Message)) }

// Closure pairs a lambda's parameters and body with the flat
// environment snapshot captured at evaluation time (spec §3
// CapturedEnv, §4.4 closure semantics). FuncIndex is set instead of
// Params/Body when the closure was produced by the bytecode compiler
// and refers to a CompiledFunction by index.
type Closure struct {
	Params    []Parameter
	Body      []Stmt
	ExprBody  Expr
	Captured  *CapturedEnv
	FuncIndex int
	IsCompiled bool
}

func (*Closure) Type() string     { return "Closure" }
func (c *Closure) String() string { return "<closure>" }

// Channel is a bounded FIFO Value kind (spec §3 C12); the actual
// synchronization lives in channel.go so this file stays pure data
// plus the Value interface methods.
type Channel struct {
	impl *channelImpl
}

func (*Channel) Type() string     { return "Channel" }
func (c *Channel) String() string { return "<channel>" }

// displayValue renders v the way `print`/`toString` do: Values
// implement String() themselves, this helper exists only so callers
// that hold a possibly-nil Value (e.g. an empty Record field) don't
// have to special-case nil.
func displayValue(v Value) string {
	if v == nil {
		return "()"
	}
	return v.String()
}

// Truthy implements spec §3's truthiness table.
func Truthy(v Value) bool {
	switch t := v.(type) {
	case Bool:
		return bool(t)
	case Int:
		return t != 0
	case Float:
		return t != 0
	case String:
		return len(t) > 0
	case *Array:
		return len(t.Items) > 0
	case *Record:
		return len(t.Keys) > 0
	case Unit:
		return false
	case *Okay:
		return true
	case *Oops:
		return false
	case *Closure:
		return true
	case *Channel:
		return !t.impl.isClosed()
	default:
		return false
	}
}

// valuesEqual implements structural equality for every Value kind
// except Closure and Channel, which follow an identity discipline and
// are never equal even to themselves through this function (spec
// §3/§8 "Closure and Channel... equal to themselves only" refers to
// the VM-equivalence invariant at the level of program results, not
// to the `==` operator, which these two kinds simply cannot use).
func valuesEqual(a, b Value) bool {
	switch av := a.(type) {
	case Int:
		switch bv := b.(type) {
		case Int:
			return av == bv
		case Float:
			return Float(av) == bv
		}
		return false
	case Float:
		switch bv := b.(type) {
		case Float:
			return av == bv
		case Int:
			return av == Float(bv)
		}
		return false
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Unit:
		_, ok := b.(Unit)
		return ok
	case *Array:
		bv, ok := b.(*Array)
		if !ok || len(av.Items) != len(bv.Items) {
			return false
		}
		for i := range av.Items {
			if !valuesEqual(av.Items[i], bv.Items[i]) {
				return false
			}
		}
		return true
	case *Record:
		bv, ok := b.(*Record)
		if !ok || len(av.Keys) != len(bv.Keys) {
			return false
		}
		for k, v := range av.Fields {
			bvv, exists := bv.Fields[k]
			if !exists || !valuesEqual(v, bvv) {
				return false
			}
		}
		return true
	case *Okay:
		bv, ok := b.(*Okay)
		return ok && valuesEqual(av.Inner, bv.Inner)
	case *Oops:
		bv, ok := b.(*Oops)
		return ok && av.Message == bv.Message
	default:
		// Closure, Channel: identity discipline, never structurally equal.
		return false
	}
}
