package mellow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchPattern_Wildcard(t *testing.T) {
	bindings, ok := matchPattern(&WildcardPattern{}, Int(5))
	assert.True(t, ok)
	assert.Empty(t, bindings)
}

func TestMatchPattern_IdentifierBindsValue(t *testing.T) {
	bindings, ok := matchPattern(&IdentifierPattern{Name: "x"}, Int(5))
	assert.True(t, ok)
	assert.Equal(t, Int(5), bindings["x"])
}

func TestMatchPattern_LiteralMatchesEqualValue(t *testing.T) {
	pat := &LiteralPattern{Lit: &LiteralExpr{Kind: LitInt, I: 3}}
	_, ok := matchPattern(pat, Int(3))
	assert.True(t, ok)
	_, ok = matchPattern(pat, Int(4))
	assert.False(t, ok)
}

func TestMatchPattern_ConstructorOkay(t *testing.T) {
	pat := &ConstructorPattern{Name: "Okay", Inner: &IdentifierPattern{Name: "v"}}
	bindings, ok := matchPattern(pat, &Okay{Inner: Int(7)})
	assert.True(t, ok)
	assert.Equal(t, Int(7), bindings["v"])

	_, ok = matchPattern(pat, &Oops{Message: "bad"})
	assert.False(t, ok)
}

func TestMatchPattern_ConstructorOopsBindsMessageAsString(t *testing.T) {
	pat := &ConstructorPattern{Name: "Oops", Inner: &IdentifierPattern{Name: "e"}}
	bindings, ok := matchPattern(pat, &Oops{Message: "boom"})
	assert.True(t, ok)
	assert.Equal(t, String("boom"), bindings["e"])
}

func TestMatchPattern_BareConstructorNoInner(t *testing.T) {
	bindings, ok := matchPattern(&ConstructorPattern{Name: "Okay"}, &Okay{Inner: Int(1)})
	assert.True(t, ok)
	assert.Empty(t, bindings)
}

func TestMatchPattern_UnknownConstructorIsNonMatch(t *testing.T) {
	_, ok := matchPattern(&ConstructorPattern{Name: "Weird"}, Int(1))
	assert.False(t, ok)
}

func TestLiteralToValue(t *testing.T) {
	assert.Equal(t, Int(1), literalToValue(&LiteralExpr{Kind: LitInt, I: 1}))
	assert.Equal(t, Float(1.5), literalToValue(&LiteralExpr{Kind: LitFloat, F: 1.5}))
	assert.Equal(t, String("hi"), literalToValue(&LiteralExpr{Kind: LitString, S: "hi"}))
	assert.Equal(t, Bool(true), literalToValue(&LiteralExpr{Kind: LitBool, B: true}))
}
