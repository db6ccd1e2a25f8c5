package mellow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileSrc(t *testing.T, src string) *CompiledProgram {
	t.Helper()
	program, err := Parse([]byte(src))
	require.NoError(t, err)
	compiled, err := Compile(program)
	require.NoError(t, err)
	return compiled
}

func TestCompile_SimpleFunctionEndsInReturn(t *testing.T) {
	cp := compileSrc(t, `to add(a: Int, b: Int) -> Int { give back a + b; }`)
	fn := cp.Functions[cp.FuncIndex["add"]]
	require.NotEmpty(t, fn.Code)
	assert.Equal(t, CodeReturn, fn.Code[len(fn.Code)-1].Op)
	assert.Equal(t, 2, fn.Arity)
}

func TestCompile_MissingReturnGetsImplicitUnit(t *testing.T) {
	cp := compileSrc(t, `to f() { remember x = 1; }`)
	fn := cp.Functions[cp.FuncIndex["f"]]
	last := fn.Code[len(fn.Code)-1]
	assert.Equal(t, CodeReturn, last.Op)
	prev := fn.Code[len(fn.Code)-2]
	assert.Equal(t, CodeConst, prev.Op)
	assert.Equal(t, Unit{}, fn.Constants[prev.A])
}

func TestCompile_VarDeclAndAssignmentUseLocalSlots(t *testing.T) {
	cp := compileSrc(t, `to f() { remember x = 1; x = 2; }`)
	fn := cp.Functions[cp.FuncIndex["f"]]

	var storeOps []Instruction
	for _, instr := range fn.Code {
		if instr.Op == CodeStoreLocal {
			storeOps = append(storeOps, instr)
		}
	}
	require.Len(t, storeOps, 2)
	assert.Equal(t, storeOps[0].A, storeOps[1].A, "reassignment reuses the same local slot")
}

func TestCompile_ConditionalPatchesJumpTargets(t *testing.T) {
	cp := compileSrc(t, `to f() { when true { give back 1; } otherwise { give back 2; } }`)
	fn := cp.Functions[cp.FuncIndex["f"]]

	var sawJumpIfFalse, sawJump bool
	for _, instr := range fn.Code {
		switch instr.Op {
		case CodeJumpIfFalse:
			sawJumpIfFalse = true
			assert.Greater(t, instr.A, 0)
		case CodeJump:
			sawJump = true
			assert.LessOrEqual(t, instr.A, len(fn.Code))
		}
	}
	assert.True(t, sawJumpIfFalse)
	assert.True(t, sawJump)
}

func TestCompile_LoopEmitsBackwardJump(t *testing.T) {
	cp := compileSrc(t, `to f() { repeat 3 times { remember x = 1; } }`)
	fn := cp.Functions[cp.FuncIndex["f"]]

	var foundBackwardJump bool
	for i, instr := range fn.Code {
		if instr.Op == CodeJump && instr.A < i {
			foundBackwardJump = true
		}
	}
	assert.True(t, foundBackwardJump, "repeat-N-times compiles to a counting loop with a backward jump")
}

func TestCompile_BuiltinCallsGetDedicatedOpcodes(t *testing.T) {
	cp := compileSrc(t, `to f() { print("hi"); }`)
	fn := cp.Functions[cp.FuncIndex["f"]]

	var sawPrint bool
	for _, instr := range fn.Code {
		if instr.Op == CodePrint {
			sawPrint = true
		}
	}
	assert.True(t, sawPrint)
}

func TestCompile_NamedCallResolvesViaMakeClosure(t *testing.T) {
	cp := compileSrc(t, `
		to helper() -> Int { give back 1; }
		to f() { give back helper(); }`)
	fn := cp.Functions[cp.FuncIndex["f"]]

	var sawMakeClosure, sawCall bool
	for _, instr := range fn.Code {
		if instr.Op == CodeMakeClosure {
			sawMakeClosure = true
			assert.Equal(t, cp.FuncIndex["helper"], instr.A)
		}
		if instr.Op == CodeCall {
			sawCall = true
		}
	}
	assert.True(t, sawMakeClosure)
	assert.True(t, sawCall)
}

func TestCompile_BareNameCallResolvesLocalBeforeGlobal(t *testing.T) {
	cp := compileSrc(t, `to main() { remember f = |x| -> x + 1; give back f(5); }`)
	fn := cp.Functions[cp.FuncIndex["main"]]

	var sawLoadLocal, sawLoadGlobal bool
	for _, instr := range fn.Code {
		if instr.Op == CodeLoadLocal {
			sawLoadLocal = true
		}
		if instr.Op == CodeLoadGlobal {
			sawLoadGlobal = true
		}
	}
	assert.True(t, sawLoadLocal, "calling a local lambda by name must load it as a local")
	assert.False(t, sawLoadGlobal, "a locally-bound callee must never fall through to LoadGlobal")
}

func TestCompile_OkayOopsUnwrapOpcodes(t *testing.T) {
	cp := compileSrc(t, `to f() { give back unwrap Okay(1); }`)
	fn := cp.Functions[cp.FuncIndex["f"]]

	var sawOkay, sawUnwrap bool
	for _, instr := range fn.Code {
		if instr.Op == CodeMakeOkay {
			sawOkay = true
		}
		if instr.Op == CodeTryUnwrap {
			sawUnwrap = true
		}
	}
	assert.True(t, sawOkay)
	assert.True(t, sawUnwrap)
}

func TestCompile_ArrayLiteralEmitsMakeArrayWithCount(t *testing.T) {
	cp := compileSrc(t, `to f() { give back [1, 2, 3]; }`)
	fn := cp.Functions[cp.FuncIndex["f"]]

	var found bool
	for _, instr := range fn.Code {
		if instr.Op == CodeMakeArray {
			found = true
			assert.Equal(t, 3, instr.A)
		}
	}
	assert.True(t, found)
}

func TestCompile_DecideCompilesConstructorPatterns(t *testing.T) {
	cp := compileSrc(t, `
		to f(r) {
			decide based on r {
				Okay(v) -> { give back v; }
				_ -> { give back 0; }
			}
		}`)
	fn := cp.Functions[cp.FuncIndex["f"]]

	var sawIsOkay bool
	for _, instr := range fn.Code {
		if instr.Op == CodeIsOkay {
			sawIsOkay = true
		}
	}
	assert.True(t, sawIsOkay)
}

func TestCompile_LambdaCompilesToSeparateFunctionEntry(t *testing.T) {
	cp := compileSrc(t, `to f() { remember g = |x| -> x + 1; }`)
	require.Len(t, cp.Functions, 2)

	var lambdaFn *CompiledFunction
	for _, fn := range cp.Functions {
		if fn.Name == "<lambda>" {
			lambdaFn = fn
		}
	}
	require.NotNil(t, lambdaFn)
	assert.Equal(t, 1, lambdaFn.Arity)
	assert.Equal(t, CodeReturn, lambdaFn.Code[len(lambdaFn.Code)-1].Op)
}

func TestCompile_ConstDefEvaluatesIntoGlobals(t *testing.T) {
	cp := compileSrc(t, `const pi = 3;`)
	v, ok := cp.Globals["pi"]
	require.True(t, ok)
	assert.Equal(t, Int(3), v)
}

func TestCompile_WorkerDefCompilesAsNamedFunction(t *testing.T) {
	cp := compileSrc(t, `worker greeter { give back 1; }`)
	_, ok := cp.FuncIndex["greeter"]
	assert.True(t, ok)
}

func TestCompile_MainSetsEntry(t *testing.T) {
	cp := compileSrc(t, `to main() { give back 1; }`)
	assert.Equal(t, cp.FuncIndex["main"], cp.Entry)
}

func TestCompile_AttemptBlockEmitsTryBeginAndEnd(t *testing.T) {
	cp := compileSrc(t, `to f() { attempt safely { give back 1/0; } or reassure "ok"; give back 42; }`)
	fn := cp.Functions[cp.FuncIndex["f"]]

	var sawBegin, sawEnd bool
	var beginTarget int
	for i, instr := range fn.Code {
		if instr.Op == CodeTryBegin {
			sawBegin = true
			beginTarget = instr.A
			assert.Greater(t, beginTarget, i)
		}
		if instr.Op == CodeTryEnd {
			sawEnd = true
		}
	}
	assert.True(t, sawBegin)
	assert.True(t, sawEnd)
}

func TestCompile_ConsentBlockStmtEmitsCheckConsent(t *testing.T) {
	cp := compileSrc(t, `to f() { must have network { give back 1; } give back 0; }`)
	fn := cp.Functions[cp.FuncIndex["f"]]

	var sawCheck bool
	for i, instr := range fn.Code {
		if instr.Op == CodeCheckConsent {
			sawCheck = true
			assert.Equal(t, "network", instr.S)
			assert.Greater(t, instr.A, i)
		}
	}
	assert.True(t, sawCheck)
}

func TestCompile_TopLevelConsentBlockCompilesIntoInitFunc(t *testing.T) {
	cp := compileSrc(t, `must have network { remember x = 1; } to main() { give back 1; }`)
	require.GreaterOrEqual(t, cp.InitFunc, 0)
	initFn := cp.Functions[cp.InitFunc]
	var sawCheck bool
	for _, instr := range initFn.Code {
		if instr.Op == CodeCheckConsent {
			sawCheck = true
		}
	}
	assert.True(t, sawCheck)
}

func TestBinaryOpcode_MapsEveryOperator(t *testing.T) {
	cases := map[BinaryOp]OpCode{
		OpAdd: CodeAdd, OpSub: CodeSub, OpMul: CodeMul, OpDiv: CodeDiv, OpMod: CodeMod,
		OpEq: CodeEq, OpNe: CodeNe, OpLt: CodeLt, OpLe: CodeLe, OpGt: CodeGt, OpGe: CodeGe,
		OpAnd: CodeAnd, OpOr: CodeOr,
	}
	for op, want := range cases {
		assert.Equal(t, want, binaryOpcode(op))
	}
}
