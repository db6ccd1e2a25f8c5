package mellow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runVM(t *testing.T, src string) (Value, error) {
	t.Helper()
	program, err := Parse([]byte(src))
	require.NoError(t, err)
	compiled, err := Compile(program)
	require.NoError(t, err)
	cfg := NewConfig()
	registry := NewRegistry(cfg, nil)
	vm := NewVM(compiled, cfg, registry)
	return vm.Run()
}

func TestVM_ArithmeticAndReturn(t *testing.T) {
	v, err := runVM(t, `to main() -> Int { give back 2 + 3 * 4; }`)
	require.NoError(t, err)
	assert.Equal(t, Int(14), v)
}

func TestVM_NoMainErrors(t *testing.T) {
	program, err := Parse([]byte(`to helper() -> Int { give back 1; }`))
	require.NoError(t, err)
	compiled, err := Compile(program)
	require.NoError(t, err)
	cfg := NewConfig()
	vm := NewVM(compiled, cfg, NewRegistry(cfg, nil))
	_, err = vm.Run()
	require.Error(t, err)
	rerr, ok := asRuntimeError(err)
	require.True(t, ok)
	assert.Equal(t, ErrVMInvariant, rerr.Kind)
}

func TestVM_LocalsRoundTrip(t *testing.T) {
	v, err := runVM(t, `to main() { remember x = 5; x = x + 1; give back x; }`)
	require.NoError(t, err)
	assert.Equal(t, Int(6), v)
}

func TestVM_ConditionalBothBranches(t *testing.T) {
	vTrue, err := runVM(t, `to main() { when true { give back 1; } otherwise { give back 2; } }`)
	require.NoError(t, err)
	assert.Equal(t, Int(1), vTrue)

	vFalse, err := runVM(t, `to main() { when false { give back 1; } otherwise { give back 2; } }`)
	require.NoError(t, err)
	assert.Equal(t, Int(2), vFalse)
}

func TestVM_LoopAccumulates(t *testing.T) {
	v, err := runVM(t, `to main() { remember sum = 0; repeat 4 times { sum = sum + 2; } give back sum; }`)
	require.NoError(t, err)
	assert.Equal(t, Int(8), v)
}

func TestVM_NamedFunctionCallThroughClosure(t *testing.T) {
	v, err := runVM(t, `
		to double(x: Int) -> Int { give back x * 2; }
		to main() { give back double(21); }`)
	require.NoError(t, err)
	assert.Equal(t, Int(42), v)
}

func TestVM_RecursiveFactorial(t *testing.T) {
	v, err := runVM(t, `
		to f(n: Int) -> Int {
			when n <= 1 { give back 1; }
			give back n * f(n - 1);
		}
		to main() { give back f(5); }`)
	require.NoError(t, err)
	assert.Equal(t, Int(120), v)
}

func TestVM_ArityMismatchErrors(t *testing.T) {
	_, err := runVM(t, `
		to f(a: Int, b: Int) -> Int { give back a + b; }
		to main() { give back f(1); }`)
	require.Error(t, err)
	rerr, ok := asRuntimeError(err)
	require.True(t, ok)
	assert.Equal(t, ErrArity, rerr.Kind)
}

func TestVM_LambdaCapturesEnclosingLocals(t *testing.T) {
	v, err := runVM(t, `
		to main() {
			remember base = 10;
			remember addBase = |x| -> x + base;
			give back addBase(5);
		}`)
	require.NoError(t, err)
	assert.Equal(t, Int(15), v)
}

func TestVM_ArrayLiteralAndIndex(t *testing.T) {
	v, err := runVM(t, `to main() { remember xs = [10, 20, 30]; give back xs[2]; }`)
	require.NoError(t, err)
	assert.Equal(t, Int(30), v)
}

func TestVM_OkayUnwrapRoundTrip(t *testing.T) {
	v, err := runVM(t, `to main() { give back unwrap Okay(9); }`)
	require.NoError(t, err)
	assert.Equal(t, Int(9), v)
}

func TestVM_UnwrapOopsHaltsFrame(t *testing.T) {
	v, err := runVM(t, `to main() { give back unwrap Oops("boom"); }`)
	require.NoError(t, err)
	oops, ok := v.(*Oops)
	require.True(t, ok)
	assert.Equal(t, "boom", oops.Message)
}

func TestVM_DecideConstructorPattern(t *testing.T) {
	v, err := runVM(t, `
		to main() {
			remember r = Okay(7);
			decide based on r {
				Okay(v) -> { give back v; }
				_ -> { give back -1; }
			}
		}`)
	require.NoError(t, err)
	assert.Equal(t, Int(7), v)
}

func TestVM_DivisionByZeroErrors(t *testing.T) {
	_, err := runVM(t, `to main() { give back 1 / 0; }`)
	require.Error(t, err)
	rerr, ok := asRuntimeError(err)
	require.True(t, ok)
	assert.Equal(t, ErrDivByZero, rerr.Kind)
}

func TestVM_StackOverflowOnDeepRecursion(t *testing.T) {
	program, err := Parse([]byte(`
		to recur(n: Int) -> Int { give back recur(n + 1); }
		to main() { give back recur(0); }`))
	require.NoError(t, err)
	compiled, err := Compile(program)
	require.NoError(t, err)
	cfg := NewConfig()
	cfg.MaxCallDepth = 16
	vm := NewVM(compiled, cfg, NewRegistry(cfg, nil))
	_, err = vm.Run()
	require.Error(t, err)
	rerr, ok := asRuntimeError(err)
	require.True(t, ok)
	assert.Equal(t, ErrStackOverflow, rerr.Kind)
}

func TestVM_IndexValueOutOfBoundsReturnsUnit(t *testing.T) {
	v := indexValue(&Array{Items: []Value{Int(1)}}, Int(9))
	assert.Equal(t, Unit{}, v)
}

func TestVM_IndexRecordByKey(t *testing.T) {
	rec := NewRecord()
	rec.Set("name", String("alice"))
	v := indexValue(rec, String("name"))
	assert.Equal(t, String("alice"), v)
}

func TestVM_PushPopStackDiscipline(t *testing.T) {
	vm := NewVM(NewCompiledProgram(), NewConfig(), NewRegistry(NewConfig(), nil))
	require.NoError(t, vm.push1(Int(1)))
	require.NoError(t, vm.push1(Int(2)))
	v, err := vm.pop()
	require.NoError(t, err)
	assert.Equal(t, Int(2), v)
	_, err = vm.peek()
	require.NoError(t, err)
}

func TestVM_PopOnEmptyStackErrors(t *testing.T) {
	vm := NewVM(NewCompiledProgram(), NewConfig(), NewRegistry(NewConfig(), nil))
	_, err := vm.pop()
	require.Error(t, err)
	rerr, ok := asRuntimeError(err)
	require.True(t, ok)
	assert.Equal(t, ErrVMInvariant, rerr.Kind)
}

func TestVM_PushBeyondMaxStackErrors(t *testing.T) {
	cfg := NewConfig()
	cfg.MaxStackSize = 2
	vm := NewVM(NewCompiledProgram(), cfg, NewRegistry(cfg, nil))
	require.NoError(t, vm.push1(Int(1)))
	require.NoError(t, vm.push1(Int(2)))
	err := vm.push1(Int(3))
	require.Error(t, err)
}

func TestVM_AttemptBlockCatchesDivisionByZero(t *testing.T) {
	v, err := runVM(t, `to main() { attempt safely { give back 1/0; } or reassure "ok"; give back 42; }`)
	require.NoError(t, err)
	assert.Equal(t, Int(42), v)
}

func TestVM_AttemptBlockCatchesErrorFromNestedCall(t *testing.T) {
	v, err := runVM(t, `
		to boom() -> Int { give back 1/0; }
		to main() {
			attempt safely { give back boom(); } or reassure "ok";
			give back 7;
		}`)
	require.NoError(t, err)
	assert.Equal(t, Int(7), v)
}

func TestVM_ConsentBlockStmtSkipsBodyWhenDenied(t *testing.T) {
	program, err := Parse([]byte(`
		to main() {
			must have network { give back 1; }
			give back 0;
		}`))
	require.NoError(t, err)
	compiled, err := Compile(program)
	require.NoError(t, err)
	cfg := NewConfig()
	cfg.Interactive = false
	cfg.DefaultConsent = false
	v, err := NewVM(compiled, cfg, NewRegistry(cfg, nil)).Run()
	require.NoError(t, err)
	assert.Equal(t, Int(0), v, "a denied capability request must skip the guarded body")
}

func TestVM_ConsentBlockStmtRunsBodyWhenGranted(t *testing.T) {
	program, err := Parse([]byte(`
		to main() {
			must have network { give back 1; }
			give back 0;
		}`))
	require.NoError(t, err)
	compiled, err := Compile(program)
	require.NoError(t, err)
	cfg := NewConfig()
	registry := NewRegistry(cfg, nil)
	registry.Grant("*", ParseCapability("network"), "test")
	v, err := NewVM(compiled, cfg, registry).Run()
	require.NoError(t, err)
	assert.Equal(t, Int(1), v, "a granted capability request must run the guarded body")
}

func TestVM_TopLevelConsentBlockRunsBeforeMain(t *testing.T) {
	program, err := Parse([]byte(`
		must have network { remember unused = 1; }
		to main() { give back 1; }`))
	require.NoError(t, err)
	compiled, err := Compile(program)
	require.NoError(t, err)
	require.GreaterOrEqual(t, compiled.InitFunc, 0)
	cfg := NewConfig()
	registry := NewRegistry(cfg, nil)
	v, err := NewVM(compiled, cfg, registry).Run()
	require.NoError(t, err)
	assert.Equal(t, Int(1), v)
	var sawRequested bool
	for _, entry := range registry.AuditLog() {
		if entry.Action == AuditRequested && entry.Capability.Kind == "network" {
			sawRequested = true
		}
	}
	assert.True(t, sawRequested, "the top-level consent block's __init__ function must run and request its capability")
}
