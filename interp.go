package mellow

import (
	"fmt"
)

// controlFlow signals how a statement sequence should unwind, mirrored
// from original_source/src/interpreter/mod.rs's ControlFlow enum.
type controlFlow struct {
	returning bool
	value     Value
}

var flowContinue = controlFlow{}

func flowReturn(v Value) controlFlow { return controlFlow{returning: true, value: v} }

// Interp is Mellow's tree-walking interpreter, grounded on
// original_source/src/interpreter/mod.rs's Interpreter. It runs a
// Program in three passes (register definitions, run top-level
// consent blocks and gratitude display, call main), exactly mirroring
// the original's run() method.
type Interp struct {
	env       *Environment
	functions map[string]*FunctionDef
	workers   map[string]*WorkerDef
	gratitude []GratitudeEntry
	verbose   bool
	careMode  bool
	registry  *Registry
	consent   *ConsentStore
	pool      *WorkerPool
}

func NewInterp(registry *Registry, consent *ConsentStore) *Interp {
	return &Interp{
		env:       NewEnvironment(),
		functions: make(map[string]*FunctionDef),
		workers:   make(map[string]*WorkerDef),
		careMode:  true,
		registry:  registry,
		consent:   consent,
		pool:      NewWorkerPool(16),
	}
}

// Run executes program to completion and returns main's result (or
// Unit if there is no main).
func (in *Interp) Run(program *Program) (Value, error) {
	for _, item := range program.Items {
		switch it := item.(type) {
		case *FunctionDef:
			in.functions[it.Name] = it
		case *WorkerDef:
			in.workers[it.Name] = it
		case *GratitudeDecl:
			in.gratitude = append(in.gratitude, it.Entries...)
		case *Pragma:
			in.applyPragma(it)
		}
	}

	if in.verbose && len(in.gratitude) > 0 {
		fmt.Println("=== Gratitude ===")
		for _, g := range in.gratitude {
			fmt.Printf("  Thanks to %s for: %s\n", g.Key, g.Value)
		}
		fmt.Println()
	}

	for _, item := range program.Items {
		switch it := item.(type) {
		case *ConsentBlock:
			if err := in.execConsentBlockTop(it); err != nil {
				return nil, err
			}
		case *ConstDef:
			v, err := in.eval(it.Expr)
			if err != nil {
				return nil, err
			}
			in.env.Declare(it.Name, v)
		}
	}

	if _, ok := in.functions["main"]; ok {
		return in.callNamedFunction("main", nil)
	}
	return Unit{}, nil
}

func (in *Interp) applyPragma(p *Pragma) {
	enabled := true
	if len(p.Args) > 0 && p.Args[0] == "off" {
		enabled = false
	}
	switch p.Name {
	case "verbose":
		in.verbose = enabled
	case "care":
		in.careMode = enabled
	}
}

func (in *Interp) execConsentBlockTop(c *ConsentBlock) error {
	if err := in.registry.Request("*", ParseCapability(c.Capability)); err != nil {
		if in.verbose {
			fmt.Printf("  Consent denied for: %s\n", c.Capability)
		}
		return nil
	}
	in.env.Push()
	defer in.env.Pop()
	_, err := in.execBlock(c.Body)
	return err
}

// execBlock runs a statement sequence, stopping and propagating the
// first return/error it encounters.
func (in *Interp) execBlock(stmts []Stmt) (controlFlow, error) {
	for _, s := range stmts {
		cf, err := in.exec(s)
		if err != nil {
			return flowContinue, err
		}
		if cf.returning {
			return cf, nil
		}
	}
	return flowContinue, nil
}

func (in *Interp) exec(stmt Stmt) (controlFlow, error) {
	switch s := stmt.(type) {
	case *VarDecl:
		v, err := in.eval(s.Expr)
		if err != nil {
			return flowContinue, err
		}
		in.env.Declare(s.Name, v)
		return flowContinue, nil

	case *Assignment:
		v, err := in.eval(s.Expr)
		if err != nil {
			return flowContinue, err
		}
		if !in.env.Assign(s.Name, v) {
			return flowContinue, NewRuntimeError(ErrUndefinedName, s.Name).WithSpan(s.Span)
		}
		return flowContinue, nil

	case *ReturnStmt:
		if s.Expr == nil {
			return flowReturn(Unit{}), nil
		}
		v, err := in.eval(s.Expr)
		if err != nil {
			return flowContinue, err
		}
		return flowReturn(v), nil

	case *Conditional:
		cond, err := in.eval(s.Cond)
		if err != nil {
			return flowContinue, err
		}
		if Truthy(cond) {
			return in.execBlock(s.Then)
		}
		if s.Else != nil {
			return in.execBlock(s.Else)
		}
		return flowContinue, nil

	case *Loop:
		countVal, err := in.eval(s.Count)
		if err != nil {
			return flowContinue, err
		}
		n, ok := countVal.(Int)
		if !ok {
			return flowContinue, NewRuntimeError(ErrType, "loop count must be an integer").WithSpan(s.Span)
		}
		for i := Int(0); i < n; i++ {
			cf, err := in.execBlock(s.Body)
			if err != nil {
				return flowContinue, err
			}
			if cf.returning {
				return cf, nil
			}
		}
		return flowContinue, nil

	case *AttemptBlock:
		in.env.Push()
		cf, err := in.execBlock(s.Body)
		in.env.Pop()
		if err != nil {
			if in.verbose {
				fmt.Printf("  Reassurance: %s\n", s.Reassurance)
			}
			return flowContinue, nil
		}
		return cf, nil

	case *ConsentBlockStmt:
		if err := in.registry.Request("*", ParseCapability(s.Capability)); err != nil {
			if in.verbose {
				fmt.Printf("  Consent denied for: %s\n", s.Capability)
			}
			return flowContinue, nil
		}
		in.env.Push()
		cf, err := in.execBlock(s.Body)
		in.env.Pop()
		return cf, err

	case *ExprStmt:
		_, err := in.eval(s.Expr)
		return flowContinue, err

	case *WorkerSpawn:
		if in.verbose {
			fmt.Printf("  Spawning worker: %s\n", s.Name)
		}
		return flowContinue, in.spawnWorker(s.Name)

	case *ComplainStmt:
		if in.careMode {
			fmt.Printf("Complaint: %s\n", s.Message)
		}
		return flowContinue, nil

	case *EmoteAnnotatedStmt:
		if in.verbose {
			fmt.Printf("  @%s\n", s.Tag.Name)
		}
		return in.exec(s.Inner)

	case *DecideStmt:
		scrutinee, err := in.eval(s.Scrutinee)
		if err != nil {
			return flowContinue, err
		}
		for _, arm := range s.Arms {
			bindings, ok := matchPattern(arm.Pattern, scrutinee)
			if !ok {
				continue
			}
			in.env.Push()
			for k, v := range bindings {
				in.env.Declare(k, v)
			}
			if arm.Guard != nil {
				g, err := in.eval(arm.Guard)
				if err != nil {
					in.env.Pop()
					return flowContinue, err
				}
				if !Truthy(g) {
					in.env.Pop()
					continue
				}
			}
			cf, err := in.execBlock(arm.Body)
			in.env.Pop()
			return cf, err
		}
		return flowContinue, nil
	}
	return flowContinue, NewRuntimeError(ErrVMInvariant, "unhandled statement kind")
}

// spawnWorker starts the named worker's body on its own goroutine via
// the interpreter's WorkerPool and returns immediately — `spawn
// worker` is fire-and-forget (spec §5.7); a worker's own errors are
// reported through it rather than propagated to the spawning scope.
func (in *Interp) spawnWorker(name string) error {
	w, ok := in.workers[name]
	if !ok {
		return NewRuntimeError(ErrUndefinedName, fmt.Sprintf("worker %q not found", name))
	}
	return in.pool.Spawn(name, func(ctx *WorkerContext) {
		sub := &Interp{
			env:       NewEnvironment(),
			functions: in.functions,
			workers:   in.workers,
			verbose:   in.verbose,
			careMode:  in.careMode,
			registry:  in.registry,
			consent:   in.consent,
			pool:      in.pool,
		}
		_, err := sub.execBlock(w.Body)
		if err != nil {
			ctx.Send(WorkerMessage{Kind: MsgNamed, Name: "error", Value: String(err.Error())})
		}
		ctx.MarkStopped()
	})
}

func (in *Interp) eval(expr Expr) (Value, error) {
	switch e := expr.(type) {
	case *LiteralExpr:
		return literalToValue(e), nil

	case *IdentifierExpr:
		v, ok := in.env.Lookup(e.Name)
		if !ok {
			return nil, NewRuntimeError(ErrUndefinedName, e.Name).WithSpan(e.Span)
		}
		return v, nil

	case *BinaryExpr:
		left, err := in.eval(e.Left)
		if err != nil {
			return nil, err
		}
		right, err := in.eval(e.Right)
		if err != nil {
			return nil, err
		}
		return applyBinaryOp(e.Op, left, right, e.Span)

	case *UnaryExpr:
		v, err := in.eval(e.Operand)
		if err != nil {
			return nil, err
		}
		return applyUnaryOp(e.Op, v, e.Span)

	case *CallExpr:
		args := make([]Value, len(e.Args))
		for i, a := range e.Args {
			v, err := in.eval(a)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		if e.Callee != nil {
			callee, err := in.eval(e.Callee)
			if err != nil {
				return nil, err
			}
			closure, ok := callee.(*Closure)
			if !ok {
				return nil, NewRuntimeError(ErrType, "cannot call non-function value").WithSpan(e.Span)
			}
			return in.callClosure(closure, args)
		}
		if result, handled, err := callBuiltin(e.Name, args); handled {
			return result, err
		}
		if v, ok := in.env.Lookup(e.Name); ok {
			if closure, ok := v.(*Closure); ok {
				return in.callClosure(closure, args)
			}
		}
		return in.callNamedFunction(e.Name, args)

	case *ArrayLit:
		items := make([]Value, len(e.Items))
		for i, it := range e.Items {
			v, err := in.eval(it)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return &Array{Items: items}, nil

	case *IndexExpr:
		obj, err := in.eval(e.Object)
		if err != nil {
			return nil, err
		}
		idx, err := in.eval(e.Index)
		if err != nil {
			return nil, err
		}
		return applyIndex(obj, idx, e.Span)

	case *MeasuredExpr:
		return in.eval(e.Inner)

	case *OkayExpr:
		v, err := in.eval(e.Inner)
		if err != nil {
			return nil, err
		}
		return &Okay{Inner: v}, nil

	case *OopsExpr:
		v, err := in.eval(e.Inner)
		if err != nil {
			return nil, err
		}
		if s, ok := v.(String); ok {
			return &Oops{Message: string(s)}, nil
		}
		return &Oops{Message: displayValue(v)}, nil

	case *UnwrapExpr:
		v, err := in.eval(e.Inner)
		if err != nil {
			return nil, err
		}
		switch t := v.(type) {
		case *Okay:
			return t.Inner, nil
		case *Oops:
			return nil, NewRuntimeError(ErrUnwrap, t.Message).WithSpan(e.Span)
		default:
			return t, nil
		}

	case *LambdaExpr:
		captured := in.env.Snapshot()
		return &Closure{Params: e.Params, Body: e.BlockBody, ExprBody: e.ExprBody, Captured: captured}, nil

	case *ThanksExpr:
		if in.verbose {
			fmt.Printf("  Expressing gratitude to: %s\n", e.Name)
		}
		return String("Thanks to " + e.Name), nil
	}
	return nil, NewRuntimeError(ErrVMInvariant, "unhandled expression kind")
}

func (in *Interp) callClosure(c *Closure, args []Value) (Value, error) {
	if len(c.Params) != len(args) {
		return nil, NewRuntimeError(ErrArity, fmt.Sprintf("closure expects %d arguments, got %d", len(c.Params), len(args)))
	}
	savedEnv := in.env
	in.env = c.Captured.Restore()
	defer func() { in.env = savedEnv }()

	for i, p := range c.Params {
		in.env.Declare(p.Name, args[i])
	}

	if c.ExprBody != nil {
		return in.eval(c.ExprBody)
	}
	cf, err := in.execBlock(c.Body)
	if err != nil {
		return nil, err
	}
	if cf.returning {
		return cf.value, nil
	}
	return Unit{}, nil
}

func (in *Interp) callNamedFunction(name string, args []Value) (Value, error) {
	fn, ok := in.functions[name]
	if !ok {
		return nil, NewRuntimeError(ErrUndefinedName, fmt.Sprintf("function %q not found", name))
	}
	if len(fn.Params) != len(args) {
		return nil, NewRuntimeError(ErrArity, fmt.Sprintf("%s expects %d arguments, got %d", name, len(fn.Params), len(args)))
	}

	in.env.Push()
	for i, p := range fn.Params {
		in.env.Declare(p.Name, args[i])
	}
	cf, err := in.execBlock(fn.Body)
	in.env.Pop()
	if err != nil {
		return nil, err
	}
	if cf.returning {
		return cf.value, nil
	}
	return Unit{}, nil
}

func applyIndex(target, index Value, span Range) (Value, error) {
	i, ok := index.(Int)
	if !ok {
		return nil, NewRuntimeError(ErrType, "index must be an integer").WithSpan(span)
	}
	if i < 0 {
		return nil, NewRuntimeError(ErrIndexRange, fmt.Sprintf("negative index %d", i)).WithSpan(span)
	}
	switch t := target.(type) {
	case *Array:
		if int(i) >= len(t.Items) {
			return nil, NewRuntimeError(ErrIndexRange, fmt.Sprintf("index %d out of bounds", i)).WithSpan(span)
		}
		return t.Items[i], nil
	case String:
		runes := []rune(string(t))
		if int(i) >= len(runes) {
			return nil, NewRuntimeError(ErrIndexRange, fmt.Sprintf("index %d out of bounds", i)).WithSpan(span)
		}
		return String(string(runes[i])), nil
	}
	return nil, NewRuntimeError(ErrType, fmt.Sprintf("cannot index value of type %s", target.Type())).WithSpan(span)
}

func applyBinaryOp(op BinaryOp, left, right Value, span Range) (Value, error) {
	switch op {
	case OpAdd:
		if ls, ok := left.(String); ok {
			return String(string(ls) + displayValue(right)), nil
		}
		if rs, ok := right.(String); ok {
			return String(displayValue(left) + string(rs)), nil
		}
		return numericBinary(left, right, "add", func(a, b int64) int64 { return a + b }, func(a, b float64) float64 { return a + b }, span)
	case OpSub:
		return numericBinary(left, right, "subtract", func(a, b int64) int64 { return a - b }, func(a, b float64) float64 { return a - b }, span)
	case OpMul:
		return numericBinary(left, right, "multiply", func(a, b int64) int64 { return a * b }, func(a, b float64) float64 { return a * b }, span)
	case OpDiv:
		return divide(left, right, span)
	case OpMod:
		li, lok := left.(Int)
		ri, rok := right.(Int)
		if !lok || !rok {
			return nil, NewRuntimeError(ErrType, "modulo requires integers").WithSpan(span)
		}
		if ri == 0 {
			return nil, NewRuntimeError(ErrDivByZero, "modulo by zero").WithSpan(span)
		}
		return li % ri, nil
	case OpEq:
		return Bool(valuesEqual(left, right)), nil
	case OpNe:
		return Bool(!valuesEqual(left, right)), nil
	case OpLt:
		return compareValues(left, right, "<", span)
	case OpLe:
		return compareValues(left, right, "<=", span)
	case OpGt:
		return compareValues(left, right, ">", span)
	case OpGe:
		return compareValues(left, right, ">=", span)
	case OpAnd:
		return Bool(Truthy(left) && Truthy(right)), nil
	case OpOr:
		return Bool(Truthy(left) || Truthy(right)), nil
	}
	return nil, NewRuntimeError(ErrVMInvariant, "unreachable binary op").WithSpan(span)
}

func numericBinary(left, right Value, verb string, iop func(int64, int64) int64, fop func(float64, float64) float64, span Range) (Value, error) {
	li, lIsInt := left.(Int)
	ri, rIsInt := right.(Int)
	if lIsInt && rIsInt {
		return Int(iop(int64(li), int64(ri))), nil
	}
	lf, lok := asFloat(left)
	rf, rok := asFloat(right)
	if lok && rok {
		return Float(fop(lf, rf)), nil
	}
	return nil, NewRuntimeError(ErrType, fmt.Sprintf("cannot %s %s and %s", verb, left.Type(), right.Type())).WithSpan(span)
}

func divide(left, right Value, span Range) (Value, error) {
	li, lIsInt := left.(Int)
	ri, rIsInt := right.(Int)
	if lIsInt && rIsInt {
		if ri == 0 {
			return nil, NewRuntimeError(ErrDivByZero, "division by zero").WithSpan(span)
		}
		return li / ri, nil
	}
	lf, lok := asFloat(left)
	rf, rok := asFloat(right)
	if lok && rok {
		if rf == 0 {
			return nil, NewRuntimeError(ErrDivByZero, "division by zero").WithSpan(span)
		}
		return Float(lf / rf), nil
	}
	return nil, NewRuntimeError(ErrType, fmt.Sprintf("cannot divide %s and %s", left.Type(), right.Type())).WithSpan(span)
}

func compareValues(left, right Value, op string, span Range) (Value, error) {
	if ls, ok := left.(String); ok {
		if rs, ok := right.(String); ok {
			switch op {
			case "<":
				return Bool(ls < rs), nil
			case "<=":
				return Bool(ls <= rs), nil
			case ">":
				return Bool(ls > rs), nil
			case ">=":
				return Bool(ls >= rs), nil
			}
		}
	}
	lf, lok := asFloat(left)
	rf, rok := asFloat(right)
	if lok && rok {
		switch op {
		case "<":
			return Bool(lf < rf), nil
		case "<=":
			return Bool(lf <= rf), nil
		case ">":
			return Bool(lf > rf), nil
		case ">=":
			return Bool(lf >= rf), nil
		}
	}
	return nil, NewRuntimeError(ErrType, fmt.Sprintf("cannot compare %s and %s", left.Type(), right.Type())).WithSpan(span)
}

func applyUnaryOp(op UnaryOp, v Value, span Range) (Value, error) {
	switch op {
	case OpNeg:
		switch t := v.(type) {
		case Int:
			return -t, nil
		case Float:
			return -t, nil
		}
		return nil, NewRuntimeError(ErrType, fmt.Sprintf("cannot negate %s", v.Type())).WithSpan(span)
	case OpNot:
		return Bool(!Truthy(v)), nil
	}
	return nil, NewRuntimeError(ErrVMInvariant, "unreachable unary op").WithSpan(span)
}
