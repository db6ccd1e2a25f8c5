package mellow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runSrc(t *testing.T, src string) (Value, error) {
	t.Helper()
	program, err := Parse([]byte(src))
	require.NoError(t, err)
	cfg := NewConfig()
	cfg.DefaultConsent = true
	consent := NewConsentStore("")
	consent.SetAutoSave(false)
	registry := NewRegistry(cfg, consent)
	interp := NewInterp(registry, consent)
	return interp.Run(program)
}

func TestInterp_ArithmeticAndReturn(t *testing.T) {
	v, err := runSrc(t, `to main() -> Int { give back 2 + 3 * 4; }`)
	require.NoError(t, err)
	assert.Equal(t, Int(14), v)
}

func TestInterp_FloatPromotion(t *testing.T) {
	v, err := runSrc(t, `to main() { give back 1 + 2.5; }`)
	require.NoError(t, err)
	assert.Equal(t, Float(3.5), v)
}

func TestInterp_StringConcatWithAdd(t *testing.T) {
	v, err := runSrc(t, `to main() { give back "a" + "b"; }`)
	require.NoError(t, err)
	assert.Equal(t, String("ab"), v)
}

func TestInterp_VarDeclAndAssignment(t *testing.T) {
	v, err := runSrc(t, `to main() { remember x = 1; x = x + 1; give back x; }`)
	require.NoError(t, err)
	assert.Equal(t, Int(2), v)
}

func TestInterp_AssignUndefinedNameErrors(t *testing.T) {
	_, err := runSrc(t, `to main() { x = 1; }`)
	require.Error(t, err)
	rerr, ok := asRuntimeError(err)
	require.True(t, ok)
	assert.Equal(t, ErrUndefinedName, rerr.Kind)
}

func TestInterp_ConditionalBranches(t *testing.T) {
	v, err := runSrc(t, `to main() { when false { give back 1; } otherwise { give back 2; } }`)
	require.NoError(t, err)
	assert.Equal(t, Int(2), v)
}

func TestInterp_LoopAccumulates(t *testing.T) {
	v, err := runSrc(t, `to main() { remember sum = 0; repeat 5 times { sum = sum + 1; } give back sum; }`)
	require.NoError(t, err)
	assert.Equal(t, Int(5), v)
}

func TestInterp_LoopCountMustBeInt(t *testing.T) {
	_, err := runSrc(t, `to main() { repeat "x" times { give back 1; } }`)
	require.Error(t, err)
	rerr, ok := asRuntimeError(err)
	require.True(t, ok)
	assert.Equal(t, ErrType, rerr.Kind)
}

func TestInterp_AttemptBlockSwallowsError(t *testing.T) {
	v, err := runSrc(t, `
		to main() {
			attempt safely { remember x = 1 / 0; } reassure "divide failed";
			give back 7;
		}`)
	require.NoError(t, err)
	assert.Equal(t, Int(7), v)
}

func TestInterp_DivByZeroErrorsOutsideAttempt(t *testing.T) {
	_, err := runSrc(t, `to main() { give back 1 / 0; }`)
	require.Error(t, err)
	rerr, ok := asRuntimeError(err)
	require.True(t, ok)
	assert.Equal(t, ErrDivByZero, rerr.Kind)
}

func TestInterp_ConsentBlockRunsWhenGranted(t *testing.T) {
	v, err := runSrc(t, `to main() { must have network { give back 1; } give back 2; }`)
	require.NoError(t, err)
	assert.Equal(t, Int(1), v)
}

func TestInterp_DecideMatchesConstructorArmAndBinds(t *testing.T) {
	v, err := runSrc(t, `
		to main() {
			remember r = Okay(42);
			decide based on r {
				Okay(v) -> { give back v; }
				_ -> { give back -1; }
			}
		}`)
	require.NoError(t, err)
	assert.Equal(t, Int(42), v)
}

func TestInterp_DecideFallsThroughToWildcard(t *testing.T) {
	v, err := runSrc(t, `
		to main() {
			remember r = Oops("bad");
			decide based on r {
				Okay(v) -> { give back v; }
				_ -> { give back -1; }
			}
		}`)
	require.NoError(t, err)
	assert.Equal(t, Int(-1), v)
}

func TestInterp_DecideArmGuardMustHold(t *testing.T) {
	v, err := runSrc(t, `
		to main() {
			remember x = 5;
			decide based on x {
				n if n > 10 -> { give back 1; }
				n -> { give back 100; }
			}
		}`)
	require.NoError(t, err)
	assert.Equal(t, Int(100), v)
}

func TestInterp_UnwrapOkayReturnsInner(t *testing.T) {
	v, err := runSrc(t, `to main() { give back unwrap Okay(9); }`)
	require.NoError(t, err)
	assert.Equal(t, Int(9), v)
}

func TestInterp_UnwrapOopsErrors(t *testing.T) {
	_, err := runSrc(t, `to main() { give back unwrap Oops("no"); }`)
	require.Error(t, err)
	rerr, ok := asRuntimeError(err)
	require.True(t, ok)
	assert.Equal(t, ErrUnwrap, rerr.Kind)
}

func TestInterp_ArrayLiteralAndIndex(t *testing.T) {
	v, err := runSrc(t, `to main() { remember xs = [10, 20, 30]; give back xs[1]; }`)
	require.NoError(t, err)
	assert.Equal(t, Int(20), v)
}

func TestInterp_IndexOutOfBoundsErrors(t *testing.T) {
	_, err := runSrc(t, `to main() { remember xs = [1]; give back xs[5]; }`)
	require.Error(t, err)
	rerr, ok := asRuntimeError(err)
	require.True(t, ok)
	assert.Equal(t, ErrIndexRange, rerr.Kind)
}

func TestInterp_MeasuredExprIsTransparent(t *testing.T) {
	v, err := runSrc(t, `to main() { give back 5 measured in seconds; }`)
	require.NoError(t, err)
	assert.Equal(t, Int(5), v)
}

func TestInterp_LambdaCallWithExprBody(t *testing.T) {
	v, err := runSrc(t, `
		to main() {
			remember inc = |x| -> x + 1;
			give back inc(41);
		}`)
	require.NoError(t, err)
	assert.Equal(t, Int(42), v)
}

func TestInterp_LambdaCapturesEnclosingScope(t *testing.T) {
	v, err := runSrc(t, `
		to main() {
			remember base = 10;
			remember addBase = |x| -> x + base;
			give back addBase(5);
		}`)
	require.NoError(t, err)
	assert.Equal(t, Int(15), v)
}

func TestInterp_NamedFunctionCallAndRecursionlessArity(t *testing.T) {
	v, err := runSrc(t, `
		to double(x: Int) -> Int { give back x * 2; }
		to main() { give back double(21); }`)
	require.NoError(t, err)
	assert.Equal(t, Int(42), v)
}

func TestInterp_RecursiveFactorial(t *testing.T) {
	v, err := runSrc(t, `
		to f(n: Int) -> Int {
			when n <= 1 { give back 1; }
			give back n * f(n - 1);
		}
		to main() { give back f(5); }`)
	require.NoError(t, err)
	assert.Equal(t, Int(120), v)
}

func TestInterp_CallArityMismatchErrors(t *testing.T) {
	_, err := runSrc(t, `
		to f(a: Int, b: Int) -> Int { give back a + b; }
		to main() { give back f(1); }`)
	require.Error(t, err)
	rerr, ok := asRuntimeError(err)
	require.True(t, ok)
	assert.Equal(t, ErrArity, rerr.Kind)
}

func TestInterp_EqualityAndComparison(t *testing.T) {
	v, err := runSrc(t, `to main() { give back (1 < 2) and (2 == 2); }`)
	require.NoError(t, err)
	assert.Equal(t, Bool(true), v)
}

func TestInterp_NoMainReturnsUnit(t *testing.T) {
	v, err := runSrc(t, `to helper() -> Int { give back 1; }`)
	require.NoError(t, err)
	assert.Equal(t, Unit{}, v)
}

func TestInterp_ComplainStmtDoesNotAbort(t *testing.T) {
	v, err := runSrc(t, `to main() { complain "just a heads up"; give back 1; }`)
	require.NoError(t, err)
	assert.Equal(t, Int(1), v)
}

func TestApplyIndex_NegativeIndexErrors(t *testing.T) {
	_, err := applyIndex(&Array{Items: []Value{Int(1)}}, Int(-1), Range{})
	require.Error(t, err)
	rerr, ok := asRuntimeError(err)
	require.True(t, ok)
	assert.Equal(t, ErrIndexRange, rerr.Kind)
}

func TestApplyBinaryOp_ModByZeroErrors(t *testing.T) {
	_, err := applyBinaryOp(OpMod, Int(1), Int(0), Range{})
	require.Error(t, err)
}

func TestApplyUnaryOp_NegateBool(t *testing.T) {
	_, err := applyUnaryOp(OpNeg, Bool(true), Range{})
	assert.Error(t, err)
}
