package mellow

import "fmt"

// callFrame is one active function invocation on the VM's call stack,
// grounded on original_source/src/vm/machine.rs's CallFrame.
type callFrame struct {
	fn      *CompiledFunction
	ip      int
	basePtr int
	// captured is the closure environment this frame was invoked
	// with, if any (nil for a direct named-function call).
	captured *CapturedEnv
}

// VM is Mellow's stack-based bytecode interpreter, grounded on
// original_source/src/vm/machine.rs's VirtualMachine. Where the
// original pushed a bare function index as a placeholder for closures
// ("For now, just push the function index as an integer"), this VM
// materializes a real *Closure carrying the enclosing frame's locals
// by name (CompiledFunction.LocalNames), so a closure called later
// from a different call stack still sees the bindings it captured.
type VM struct {
	program      *CompiledProgram
	stack        []Value
	frames       []*callFrame
	globals      map[string]Value
	registry     *Registry
	maxStack     int
	maxCallDepth int
	handlers     []tryHandler
}

// tryHandler is one active attempt/catch region: the frame and stack
// depths to unwind to, and the ip to resume at, if a RuntimeError
// escapes the region CodeTryBegin opened.
type tryHandler struct {
	frameDepth int
	stackDepth int
	target     int
}

func NewVM(program *CompiledProgram, cfg *Config, registry *Registry) *VM {
	globals := make(map[string]Value, len(program.Globals))
	for k, v := range program.Globals {
		globals[k] = v
	}
	return &VM{
		program:      program,
		stack:        make([]Value, 0, 1024),
		frames:       make([]*callFrame, 0, 64),
		globals:      globals,
		registry:     registry,
		maxStack:     cfg.MaxStackSize,
		maxCallDepth: cfg.MaxCallDepth,
	}
}

// Run executes the program's entry function and returns its result.
// If the program has top-level consent blocks, its synthetic
// __init__ function runs first, matching the tree-walking
// interpreter's pass (c) order (consent blocks, then main).
func (vm *VM) Run() (Value, error) {
	if vm.program.InitFunc >= 0 {
		if err := vm.runFunction(vm.program.InitFunc); err != nil {
			return nil, err
		}
	}
	if vm.program.Entry < 0 {
		return nil, NewRuntimeError(ErrVMInvariant, "no main function found")
	}
	if err := vm.runFunction(vm.program.Entry); err != nil {
		return nil, err
	}
	if len(vm.stack) == 0 {
		return Unit{}, nil
	}
	return vm.stack[len(vm.stack)-1], nil
}

// runFunction calls funcIdx with no arguments and drives the step
// loop until its frame (and any frames it pushes) return, catching
// any RuntimeError against an active try handler before giving up.
func (vm *VM) runFunction(funcIdx int) error {
	baseDepth := len(vm.frames)
	if err := vm.callFunction(funcIdx, 0, nil); err != nil {
		return err
	}
	for len(vm.frames) > baseDepth {
		if err := vm.step(); err != nil {
			if vm.catch(err) {
				continue
			}
			return err
		}
	}
	return nil
}

// catch reports whether err was absorbed by the innermost active try
// handler, unwinding the call and value stacks to the handler's depth
// and resuming the enclosing frame at its target ip.
func (vm *VM) catch(err error) bool {
	if _, ok := err.(*RuntimeError); !ok {
		return false
	}
	n := len(vm.handlers)
	if n == 0 {
		return false
	}
	h := vm.handlers[n-1]
	vm.handlers = vm.handlers[:n-1]
	if h.frameDepth <= 0 || h.frameDepth > len(vm.frames) {
		return false
	}
	vm.frames = vm.frames[:h.frameDepth]
	if h.stackDepth <= len(vm.stack) {
		vm.stack = vm.stack[:h.stackDepth]
	}
	vm.frames[h.frameDepth-1].ip = h.target
	return true
}

func (vm *VM) callFunction(funcIdx, argCount int, captured *CapturedEnv) error {
	if len(vm.frames) >= vm.maxCallDepth {
		return NewRuntimeError(ErrStackOverflow, "maximum call depth exceeded")
	}
	fn := vm.program.GetFunction(funcIdx)
	if fn == nil {
		return NewRuntimeError(ErrVMInvariant, fmt.Sprintf("function %d not found", funcIdx))
	}
	if argCount != fn.Arity {
		return NewRuntimeError(ErrArity, fmt.Sprintf("%s expects %d arguments, got %d", fn.Name, fn.Arity, argCount))
	}

	basePtr := len(vm.stack) - argCount
	for i := 0; i < fn.Locals-fn.Arity; i++ {
		vm.push(Unit{})
	}

	vm.frames = append(vm.frames, &callFrame{fn: fn, basePtr: basePtr, captured: captured})
	return nil
}

func (vm *VM) step() error {
	frame := vm.frames[len(vm.frames)-1]
	if frame.ip >= len(frame.fn.Code) {
		return vm.doReturn()
	}
	instr := frame.fn.Code[frame.ip]
	frame.ip++

	switch instr.Op {
	case CodeConst:
		return vm.push1(frame.fn.Constants[instr.A])

	case CodePop:
		_, err := vm.pop()
		return err

	case CodeDup:
		v, err := vm.peek()
		if err != nil {
			return err
		}
		return vm.push1(v)

	case CodeSwap:
		n := len(vm.stack)
		if n >= 2 {
			vm.stack[n-1], vm.stack[n-2] = vm.stack[n-2], vm.stack[n-1]
		}
		return nil

	case CodeLoadLocal:
		idx := frame.basePtr + instr.A
		if idx < 0 || idx >= len(vm.stack) {
			return vm.push1(Unit{})
		}
		return vm.push1(vm.stack[idx])

	case CodeStoreLocal:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		idx := frame.basePtr + instr.A
		for len(vm.stack) <= idx {
			vm.stack = append(vm.stack, Unit{})
		}
		vm.stack[idx] = v
		return nil

	case CodeLoadGlobal:
		if frame.captured != nil {
			if v, ok := frame.captured.Lookup(instr.S); ok {
				return vm.push1(v)
			}
		}
		if v, ok := vm.globals[instr.S]; ok {
			return vm.push1(v)
		}
		return vm.push1(Unit{})

	case CodeStoreGlobal:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		vm.globals[instr.S] = v
		return nil

	case CodeAdd, CodeSub, CodeMul, CodeDiv, CodeMod, CodeEq, CodeNe,
		CodeLt, CodeLe, CodeGt, CodeGe, CodeAnd, CodeOr, CodeConcat:
		return vm.binaryOp(instr.Op)

	case CodeNeg:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		switch t := v.(type) {
		case Int:
			return vm.push1(-t)
		case Float:
			return vm.push1(-t)
		}
		return NewRuntimeError(ErrType, fmt.Sprintf("cannot negate %s", v.Type()))

	case CodeNot:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		return vm.push1(Bool(!Truthy(v)))

	case CodeJump:
		frame.ip = instr.A
		return nil

	case CodeJumpIfFalse:
		cond, err := vm.pop()
		if err != nil {
			return err
		}
		if !Truthy(cond) {
			frame.ip = instr.A
		}
		return nil

	case CodeJumpIfTrue:
		cond, err := vm.pop()
		if err != nil {
			return err
		}
		if Truthy(cond) {
			frame.ip = instr.A
		}
		return nil

	case CodeCall:
		return vm.doCall(instr.A)

	case CodeReturn:
		return vm.doReturn()

	case CodeMakeClosure:
		fn := vm.program.GetFunction(instr.A)
		if fn == nil {
			return NewRuntimeError(ErrVMInvariant, fmt.Sprintf("function %d not found", instr.A))
		}
		bindings := make(map[string]Value, len(frame.fn.LocalNames))
		if frame.captured != nil {
			for k, v := range frame.captured.bindings {
				bindings[k] = v
			}
		}
		for i, name := range frame.fn.LocalNames {
			if name == "" {
				continue
			}
			idx := frame.basePtr + i
			if idx < len(vm.stack) {
				bindings[name] = vm.stack[idx]
			}
		}
		return vm.push1(&Closure{FuncIndex: instr.A, IsCompiled: true, Captured: &CapturedEnv{bindings: bindings}})

	case CodeMakeArray:
		items := make([]Value, instr.A)
		for i := instr.A - 1; i >= 0; i-- {
			v, err := vm.pop()
			if err != nil {
				return err
			}
			items[i] = v
		}
		return vm.push1(&Array{Items: items})

	case CodeMakeRecord:
		pairs := make([][2]Value, instr.A)
		for i := instr.A - 1; i >= 0; i-- {
			v, err := vm.pop()
			if err != nil {
				return err
			}
			k, err := vm.pop()
			if err != nil {
				return err
			}
			pairs[i] = [2]Value{k, v}
		}
		rec := NewRecord()
		for _, p := range pairs {
			key, ok := p[0].(String)
			if !ok {
				return NewRuntimeError(ErrType, "record keys must be strings")
			}
			rec.Set(string(key), p[1])
		}
		return vm.push1(rec)

	case CodeIndex:
		index, err := vm.pop()
		if err != nil {
			return err
		}
		obj, err := vm.pop()
		if err != nil {
			return err
		}
		return vm.push1(indexValue(obj, index))

	case CodeLen:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		switch t := v.(type) {
		case *Array:
			return vm.push1(Int(len(t.Items)))
		case String:
			return vm.push1(Int(len(t)))
		case *Record:
			return vm.push1(Int(len(t.Keys)))
		}
		return vm.push1(Int(0))

	case CodeMakeOkay:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		return vm.push1(&Okay{Inner: v})

	case CodeMakeOops:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		if msg, ok := v.(String); ok {
			return vm.push1(&Oops{Message: string(msg)})
		}
		return vm.push1(&Oops{Message: displayValue(v)})

	case CodeTryUnwrap:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		switch t := v.(type) {
		case *Okay:
			return vm.push1(t.Inner)
		case *Oops:
			vm.push(v)
			frame.ip = len(frame.fn.Code)
			return nil
		default:
			return vm.push1(t)
		}

	case CodeIsOkay:
		v, err := vm.peek()
		if err != nil {
			return err
		}
		_, ok := v.(*Okay)
		return vm.push1(Bool(ok))

	case CodePrint:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		fmt.Println(displayValue(v))
		return nil

	case CodeToString:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		return vm.push1(String(displayValue(v)))

	case CodeCheckConsent:
		if vm.registry == nil {
			frame.ip = instr.A
			return nil
		}
		if err := vm.registry.Request("*", ParseCapability(instr.S)); err != nil {
			frame.ip = instr.A
		}
		return nil

	case CodeTryBegin:
		vm.handlers = append(vm.handlers, tryHandler{
			frameDepth: len(vm.frames),
			stackDepth: len(vm.stack),
			target:     instr.A,
		})
		return nil

	case CodeTryEnd:
		if n := len(vm.handlers); n > 0 {
			vm.handlers = vm.handlers[:n-1]
		}
		return nil

	case CodeNop:
		return nil

	case CodeHalt:
		vm.frames = nil
		return nil
	}

	return NewRuntimeError(ErrVMInvariant, fmt.Sprintf("unhandled opcode %d", instr.Op))
}

func indexValue(obj, index Value) Value {
	switch o := obj.(type) {
	case *Array:
		if i, ok := index.(Int); ok {
			if int(i) >= 0 && int(i) < len(o.Items) {
				return o.Items[i]
			}
		}
	case String:
		if i, ok := index.(Int); ok {
			runes := []rune(string(o))
			if int(i) >= 0 && int(i) < len(runes) {
				return String(string(runes[i]))
			}
		}
	case *Record:
		if k, ok := index.(String); ok {
			if v, exists := o.Fields[string(k)]; exists {
				return v
			}
		}
	}
	return Unit{}
}

func (vm *VM) doCall(argCount int) error {
	callee, err := vm.pop()
	if err != nil {
		return err
	}
	c, ok := callee.(*Closure)
	if !ok {
		return NewRuntimeError(ErrType, fmt.Sprintf("cannot call non-function value of type %s", callee.Type()))
	}
	return vm.callFunction(c.FuncIndex, argCount, c.Captured)
}

func (vm *VM) doReturn() error {
	retVal, err := vm.pop()
	if err != nil {
		retVal = Unit{}
	}
	frame := vm.frames[len(vm.frames)-1]
	vm.frames = vm.frames[:len(vm.frames)-1]
	vm.stack = vm.stack[:frame.basePtr]
	vm.push(retVal)
	return nil
}

func (vm *VM) binaryOp(op OpCode) error {
	b, err := vm.pop()
	if err != nil {
		return err
	}
	a, err := vm.pop()
	if err != nil {
		return err
	}
	switch op {
	case CodeAdd:
		return vm.arith(a, b, "add", func(x, y int64) int64 { return x + y }, func(x, y float64) float64 { return x + y }, true)
	case CodeSub:
		return vm.arith(a, b, "subtract", func(x, y int64) int64 { return x - y }, func(x, y float64) float64 { return x - y }, false)
	case CodeMul:
		return vm.arith(a, b, "multiply", func(x, y int64) int64 { return x * y }, func(x, y float64) float64 { return x * y }, false)
	case CodeDiv:
		return vm.div(a, b)
	case CodeMod:
		ai, aok := a.(Int)
		bi, bok := b.(Int)
		if !aok || !bok {
			return NewRuntimeError(ErrType, "modulo requires integers")
		}
		if bi == 0 {
			return NewRuntimeError(ErrDivByZero, "modulo by zero")
		}
		return vm.push1(ai % bi)
	case CodeEq:
		return vm.push1(Bool(valuesEqual(a, b)))
	case CodeNe:
		return vm.push1(Bool(!valuesEqual(a, b)))
	case CodeLt:
		return vm.compare(a, b, func(x, y int64) bool { return x < y }, func(x, y float64) bool { return x < y })
	case CodeLe:
		return vm.compare(a, b, func(x, y int64) bool { return x <= y }, func(x, y float64) bool { return x <= y })
	case CodeGt:
		return vm.compare(a, b, func(x, y int64) bool { return x > y }, func(x, y float64) bool { return x > y })
	case CodeGe:
		return vm.compare(a, b, func(x, y int64) bool { return x >= y }, func(x, y float64) bool { return x >= y })
	case CodeAnd:
		return vm.push1(Bool(Truthy(a) && Truthy(b)))
	case CodeOr:
		return vm.push1(Bool(Truthy(a) || Truthy(b)))
	case CodeConcat:
		return vm.push1(String(displayValue(a) + displayValue(b)))
	}
	return NewRuntimeError(ErrVMInvariant, "unreachable binary op")
}

func (vm *VM) arith(a, b Value, verb string, iop func(int64, int64) int64, fop func(float64, float64) float64, allowStrings bool) error {
	if allowStrings {
		if as, ok := a.(String); ok {
			if bs, ok := b.(String); ok {
				return vm.push1(as + bs)
			}
		}
	}
	ai, aIsInt := a.(Int)
	bi, bIsInt := b.(Int)
	if aIsInt && bIsInt {
		return vm.push1(Int(iop(int64(ai), int64(bi))))
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		return vm.push1(Float(fop(af, bf)))
	}
	return NewRuntimeError(ErrType, fmt.Sprintf("cannot %s %s and %s", verb, a.Type(), b.Type()))
}

func (vm *VM) div(a, b Value) error {
	ai, aIsInt := a.(Int)
	bi, bIsInt := b.(Int)
	if aIsInt && bIsInt {
		if bi == 0 {
			return NewRuntimeError(ErrDivByZero, "division by zero")
		}
		return vm.push1(ai / bi)
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		return vm.push1(Float(af / bf))
	}
	return NewRuntimeError(ErrType, fmt.Sprintf("cannot divide %s and %s", a.Type(), b.Type()))
}

func (vm *VM) compare(a, b Value, iop func(int64, int64) bool, fop func(float64, float64) bool) error {
	ai, aIsInt := a.(Int)
	bi, bIsInt := b.(Int)
	if aIsInt && bIsInt {
		return vm.push1(Bool(iop(int64(ai), int64(bi))))
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		return vm.push1(Bool(fop(af, bf)))
	}
	return vm.push1(Bool(false))
}

func asFloat(v Value) (float64, bool) {
	switch t := v.(type) {
	case Int:
		return float64(t), true
	case Float:
		return float64(t), true
	}
	return 0, false
}

func (vm *VM) push(v Value) { vm.stack = append(vm.stack, v) }

func (vm *VM) push1(v Value) error {
	if len(vm.stack) >= vm.maxStack {
		return NewRuntimeError(ErrStackOverflow, "stack overflow")
	}
	vm.stack = append(vm.stack, v)
	return nil
}

func (vm *VM) pop() (Value, error) {
	n := len(vm.stack)
	if n == 0 {
		return nil, NewRuntimeError(ErrVMInvariant, "stack underflow")
	}
	v := vm.stack[n-1]
	vm.stack = vm.stack[:n-1]
	return v, nil
}

func (vm *VM) peek() (Value, error) {
	n := len(vm.stack)
	if n == 0 {
		return nil, NewRuntimeError(ErrVMInvariant, "stack underflow")
	}
	return vm.stack[n-1], nil
}
