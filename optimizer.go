package mellow

// Optimizer runs three idempotent bytecode passes, grounded on
// original_source/src/vm/optimizer.rs: constant folding, peephole
// rewrites, and dead code elimination. Each pass ends by compacting
// Nop instructions and rewriting jump targets, matching the original's
// remove_nops step.
type Optimizer struct {
	ConstantFolding       bool
	PeepholeOptimizations bool
	DeadCodeElimination   bool
}

func NewOptimizer() *Optimizer {
	return &Optimizer{ConstantFolding: true, PeepholeOptimizations: true, DeadCodeElimination: true}
}

func (o *Optimizer) Optimize(program *CompiledProgram) {
	for _, fn := range program.Functions {
		if fn == nil {
			continue
		}
		if o.ConstantFolding {
			o.foldConstants(fn)
		}
		if o.PeepholeOptimizations {
			o.peephole(fn)
		}
		if o.DeadCodeElimination {
			o.eliminateDeadCode(fn)
		}
	}
}

func (o *Optimizer) foldConstants(fn *CompiledFunction) {
	for i := 0; i+2 < len(fn.Code); i++ {
		if fn.Code[i].Op != CodeConst || fn.Code[i+1].Op != CodeConst {
			continue
		}
		a := fn.Constants[fn.Code[i].A]
		b := fn.Constants[fn.Code[i+1].A]
		result, ok := foldBinary(fn.Code[i+2].Op, a, b)
		if !ok {
			continue
		}
		idx := fn.AddConstant(result)
		fn.Code[i] = Instruction{Op: CodeConst, A: idx}
		fn.Code[i+1] = Instruction{Op: CodeNop}
		fn.Code[i+2] = Instruction{Op: CodeNop}
	}
	o.removeNops(fn)
}

func foldBinary(op OpCode, a, b Value) (Value, bool) {
	switch op {
	case CodeAdd:
		if as, ok := a.(String); ok {
			if bs, ok := b.(String); ok {
				return String(string(as) + string(bs)), true
			}
		}
		return foldArith(a, b, func(x, y int64) int64 { return x + y }, func(x, y float64) float64 { return x + y })
	case CodeSub:
		return foldArith(a, b, func(x, y int64) int64 { return x - y }, func(x, y float64) float64 { return x - y })
	case CodeMul:
		return foldArith(a, b, func(x, y int64) int64 { return x * y }, func(x, y float64) float64 { return x * y })
	case CodeDiv:
		ai, aIsInt := a.(Int)
		bi, bIsInt := b.(Int)
		if aIsInt && bIsInt {
			if bi == 0 {
				return nil, false
			}
			return Int(int64(ai) / int64(bi)), true
		}
		af, aok := toFloat(a)
		bf, bok := toFloat(b)
		if aok && bok {
			return Float(af / bf), true
		}
		return nil, false
	case CodeEq:
		return Bool(valuesEqual(a, b)), true
	case CodeNe:
		return Bool(!valuesEqual(a, b)), true
	case CodeLt:
		return foldCompare(a, b, func(x, y int64) bool { return x < y }, func(x, y float64) bool { return x < y })
	case CodeLe:
		return foldCompare(a, b, func(x, y int64) bool { return x <= y }, func(x, y float64) bool { return x <= y })
	case CodeGt:
		return foldCompare(a, b, func(x, y int64) bool { return x > y }, func(x, y float64) bool { return x > y })
	case CodeGe:
		return foldCompare(a, b, func(x, y int64) bool { return x >= y }, func(x, y float64) bool { return x >= y })
	case CodeAnd:
		return Bool(Truthy(a) && Truthy(b)), true
	case CodeOr:
		return Bool(Truthy(a) || Truthy(b)), true
	}
	return nil, false
}

func toFloat(v Value) (float64, bool) {
	switch t := v.(type) {
	case Int:
		return float64(t), true
	case Float:
		return float64(t), true
	}
	return 0, false
}

func foldArith(a, b Value, iop func(int64, int64) int64, fop func(float64, float64) float64) (Value, bool) {
	ai, aIsInt := a.(Int)
	bi, bIsInt := b.(Int)
	if aIsInt && bIsInt {
		return Int(iop(int64(ai), int64(bi))), true
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return Float(fop(af, bf)), true
	}
	return nil, false
}

func foldCompare(a, b Value, iop func(int64, int64) bool, fop func(float64, float64) bool) (Value, bool) {
	ai, aIsInt := a.(Int)
	bi, bIsInt := b.(Int)
	if aIsInt && bIsInt {
		return Bool(iop(int64(ai), int64(bi))), true
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return Bool(fop(af, bf)), true
	}
	return nil, false
}

func (o *Optimizer) peephole(fn *CompiledFunction) {
	for i := 0; i+1 < len(fn.Code); i++ {
		a, b := fn.Code[i], fn.Code[i+1]
		switch {
		case a.Op == CodeDup && b.Op == CodePop:
			fn.Code[i] = Instruction{Op: CodeNop}
			fn.Code[i+1] = Instruction{Op: CodeNop}
		case a.Op == CodeNot && b.Op == CodeNot:
			fn.Code[i] = Instruction{Op: CodeNop}
			fn.Code[i+1] = Instruction{Op: CodeNop}
		case a.Op == CodeNeg && b.Op == CodeNeg:
			fn.Code[i] = Instruction{Op: CodeNop}
			fn.Code[i+1] = Instruction{Op: CodeNop}
		}

		if fn.Code[i].Op == CodeJump && fn.Code[i].A == i+1 {
			fn.Code[i] = Instruction{Op: CodeNop}
		}

		if fn.Code[i].Op == CodeConst && i+1 < len(fn.Code) && fn.Code[i+1].Op == CodeJumpIfFalse {
			if b, ok := fn.Constants[fn.Code[i].A].(Bool); ok {
				if bool(b) {
					fn.Code[i] = Instruction{Op: CodeNop}
					fn.Code[i+1] = Instruction{Op: CodeNop}
				} else {
					target := fn.Code[i+1].A
					fn.Code[i] = Instruction{Op: CodeNop}
					fn.Code[i+1] = Instruction{Op: CodeJump, A: target}
				}
			}
		}
	}
	o.removeNops(fn)
}

func (o *Optimizer) eliminateDeadCode(fn *CompiledFunction) {
	if len(fn.Code) == 0 {
		return
	}
	reachable := make([]bool, len(fn.Code))
	worklist := []int{0}
	for len(worklist) > 0 {
		idx := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		if idx < 0 || idx >= len(fn.Code) || reachable[idx] {
			continue
		}
		reachable[idx] = true
		switch fn.Code[idx].Op {
		case CodeJump:
			worklist = append(worklist, fn.Code[idx].A)
		case CodeJumpIfFalse, CodeJumpIfTrue, CodeCheckConsent, CodeTryBegin:
			// Both branches are live: CodeCheckConsent may skip its
			// guarded body to A, and CodeTryBegin's handler resumes at
			// A on error even when the bracketed body ends in a
			// CodeReturn that would otherwise cut off fallthrough.
			worklist = append(worklist, fn.Code[idx].A, idx+1)
		case CodeReturn, CodeHalt:
			// no successor
		default:
			worklist = append(worklist, idx+1)
		}
	}
	for i, ok := range reachable {
		if !ok {
			fn.Code[i] = Instruction{Op: CodeNop}
		}
	}
	o.removeNops(fn)
}

// removeNops compacts Nop instructions and rewrites every jump target
// to account for the shift, matching original_source's remove_nops.
func (o *Optimizer) removeNops(fn *CompiledFunction) {
	newIndices := make([]int, len(fn.Code))
	next := 0
	for i, instr := range fn.Code {
		newIndices[i] = next
		if instr.Op != CodeNop {
			next++
		}
	}
	for i := range fn.Code {
		switch fn.Code[i].Op {
		case CodeJump, CodeJumpIfFalse, CodeJumpIfTrue, CodeCheckConsent, CodeTryBegin:
			if fn.Code[i].A < len(newIndices) {
				fn.Code[i].A = newIndices[fn.Code[i].A]
			}
		}
	}
	compacted := fn.Code[:0]
	for _, instr := range fn.Code {
		if instr.Op != CodeNop {
			compacted = append(compacted, instr)
		}
	}
	fn.Code = compacted
}
