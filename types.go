package mellow

import "fmt"

// InferredKind tags an InferredType, grounded on
// original_source/src/typechecker/mod.rs's InferredType enum.
type InferredKind int

const (
	KInt InferredKind = iota
	KFloat
	KString
	KBool
	KUnit
	KArray
	KResult
	KMaybe
	KFunction
	KUnknown // fresh, unresolved type variable (Unknown(u32) in the original)
	KTypeVar // a named, user-level type reference that was never defined
)

// InferredType is Mellow's advisory type value. Array/Maybe use Elem,
// Result uses Ok/Err, Function uses Params/Ret, Unknown uses ID,
// TypeVar uses Name; every other kind is a leaf.
type InferredType struct {
	Kind   InferredKind
	Elem   *InferredType
	Ok     *InferredType
	Err    *InferredType
	Params []InferredType
	Ret    *InferredType
	ID     int
	Name   string
}

func tInt() InferredType    { return InferredType{Kind: KInt} }
func tFloat() InferredType  { return InferredType{Kind: KFloat} }
func tString() InferredType { return InferredType{Kind: KString} }
func tBool() InferredType   { return InferredType{Kind: KBool} }
func tUnit() InferredType   { return InferredType{Kind: KUnit} }

func (t InferredType) String() string {
	switch t.Kind {
	case KInt:
		return "Int"
	case KFloat:
		return "Float"
	case KString:
		return "String"
	case KBool:
		return "Bool"
	case KUnit:
		return "Unit"
	case KArray:
		return fmt.Sprintf("[%s]", t.Elem.String())
	case KResult:
		return fmt.Sprintf("Result[%s, %s]", t.Ok.String(), t.Err.String())
	case KMaybe:
		return fmt.Sprintf("Maybe[%s]", t.Elem.String())
	case KFunction:
		s := "fn("
		for i, p := range t.Params {
			if i > 0 {
				s += ", "
			}
			s += p.String()
		}
		return s + ") -> " + t.Ret.String()
	case KUnknown:
		return fmt.Sprintf("?%d", t.ID)
	case KTypeVar:
		return t.Name
	}
	return "?"
}

// TypeDiagnostic is one advisory finding. It never halts execution;
// Check only collects them.
type TypeDiagnostic struct {
	Message string
	Span    Range
}

func (d TypeDiagnostic) Error() string { return d.Message }

// typeEnv tracks variable and function types across nested scopes,
// grounded on original_source's TypeEnv.
type typeEnv struct {
	scopes    []map[string]InferredType
	functions map[string]InferredType
}

func newTypeEnv() *typeEnv {
	return &typeEnv{scopes: []map[string]InferredType{{}}, functions: map[string]InferredType{}}
}

func (e *typeEnv) pushScope() { e.scopes = append(e.scopes, map[string]InferredType{}) }
func (e *typeEnv) popScope()  { e.scopes = e.scopes[:len(e.scopes)-1] }

func (e *typeEnv) define(name string, t InferredType) {
	e.scopes[len(e.scopes)-1][name] = t
}

func (e *typeEnv) get(name string) (InferredType, bool) {
	for i := len(e.scopes) - 1; i >= 0; i-- {
		if t, ok := e.scopes[i][name]; ok {
			return t, true
		}
	}
	return InferredType{}, false
}

func (e *typeEnv) defineFunction(name string, t InferredType) { e.functions[name] = t }
func (e *typeEnv) getFunction(name string) (InferredType, bool) {
	t, ok := e.functions[name]
	return t, ok
}

// TypeChecker runs Mellow's optional, advisory type pass: a small
// Hindley-Milner-style inference/unification system over the AST,
// grounded on original_source/src/typechecker/mod.rs. It never blocks
// Run; callers use Check purely for diagnostics.
type TypeChecker struct {
	env           *typeEnv
	nextVar       int
	substitutions map[int]InferredType
	diagnostics   []TypeDiagnostic
}

func NewTypeChecker() *TypeChecker {
	return &TypeChecker{env: newTypeEnv(), substitutions: map[int]InferredType{}}
}

func (tc *TypeChecker) freshVar() InferredType {
	tc.nextVar++
	return InferredType{Kind: KUnknown, ID: tc.nextVar}
}

func (tc *TypeChecker) applySubstitutions(t InferredType) InferredType {
	switch t.Kind {
	case KUnknown:
		if resolved, ok := tc.substitutions[t.ID]; ok {
			return tc.applySubstitutions(resolved)
		}
		return t
	case KArray:
		elem := tc.applySubstitutions(*t.Elem)
		return InferredType{Kind: KArray, Elem: &elem}
	case KMaybe:
		elem := tc.applySubstitutions(*t.Elem)
		return InferredType{Kind: KMaybe, Elem: &elem}
	case KResult:
		ok := tc.applySubstitutions(*t.Ok)
		errT := tc.applySubstitutions(*t.Err)
		return InferredType{Kind: KResult, Ok: &ok, Err: &errT}
	case KFunction:
		params := make([]InferredType, len(t.Params))
		for i, p := range t.Params {
			params[i] = tc.applySubstitutions(p)
		}
		ret := tc.applySubstitutions(*t.Ret)
		return InferredType{Kind: KFunction, Params: params, Ret: &ret}
	default:
		return t
	}
}

// unify records substitutions that make t1 and t2 equal, grounded on
// the original's unify, including its explicit Int<->Float promotion.
func (tc *TypeChecker) unify(t1, t2 InferredType, span Range) error {
	a := tc.applySubstitutions(t1)
	b := tc.applySubstitutions(t2)

	switch {
	case a.Kind == KUnknown:
		tc.substitutions[a.ID] = b
		return nil
	case b.Kind == KUnknown:
		tc.substitutions[b.ID] = a
		return nil
	case a.Kind == KTypeVar || b.Kind == KTypeVar:
		return nil
	case a.Kind == KInt && b.Kind == KInt,
		a.Kind == KFloat && b.Kind == KFloat,
		a.Kind == KString && b.Kind == KString,
		a.Kind == KBool && b.Kind == KBool,
		a.Kind == KUnit && b.Kind == KUnit,
		a.Kind == KInt && b.Kind == KFloat,
		a.Kind == KFloat && b.Kind == KInt:
		return nil
	case a.Kind == KArray && b.Kind == KArray:
		return tc.unify(*a.Elem, *b.Elem, span)
	case a.Kind == KMaybe && b.Kind == KMaybe:
		return tc.unify(*a.Elem, *b.Elem, span)
	case a.Kind == KResult && b.Kind == KResult:
		if err := tc.unify(*a.Ok, *b.Ok, span); err != nil {
			return err
		}
		return tc.unify(*a.Err, *b.Err, span)
	case a.Kind == KFunction && b.Kind == KFunction:
		if len(a.Params) != len(b.Params) {
			return TypeDiagnostic{
				Message: fmt.Sprintf("arity mismatch: expected %d argument(s), got %d", len(a.Params), len(b.Params)),
				Span:    span,
			}
		}
		for i := range a.Params {
			if err := tc.unify(a.Params[i], b.Params[i], span); err != nil {
				return err
			}
		}
		return tc.unify(*a.Ret, *b.Ret, span)
	default:
		return TypeDiagnostic{
			Message: fmt.Sprintf("type mismatch: expected %s, found %s", a.String(), b.String()),
			Span:    span,
		}
	}
}

// astTypeToInferred maps a TypeAnnotation's flat name onto an
// InferredType. Mellow's annotation grammar is a bare name (spec §3),
// unlike the original's nested Type AST, so Array/Result/Maybe never
// arise from annotations directly; they only appear as inferred types.
func astTypeToInferred(ann *TypeAnnotation) InferredType {
	if ann == nil {
		return InferredType{Kind: KTypeVar, Name: "_"}
	}
	switch ann.Name {
	case "Int":
		return tInt()
	case "Float":
		return tFloat()
	case "String":
		return tString()
	case "Bool":
		return tBool()
	case "Unit":
		return tUnit()
	default:
		return InferredType{Kind: KTypeVar, Name: ann.Name}
	}
}

// Check runs the advisory pass over the whole program and returns
// every diagnostic collected; it never returns an error that would
// stop interpretation.
func (tc *TypeChecker) Check(program *Program) []TypeDiagnostic {
	for _, item := range program.Items {
		if f, ok := item.(*FunctionDef); ok {
			tc.registerFunction(f)
		}
	}
	for _, item := range program.Items {
		if f, ok := item.(*FunctionDef); ok {
			tc.checkFunction(f)
		}
	}
	return tc.diagnostics
}

func (tc *TypeChecker) report(err error) {
	if err == nil {
		return
	}
	if d, ok := err.(TypeDiagnostic); ok {
		tc.diagnostics = append(tc.diagnostics, d)
		return
	}
	tc.diagnostics = append(tc.diagnostics, TypeDiagnostic{Message: err.Error()})
}

func (tc *TypeChecker) registerFunction(fn *FunctionDef) {
	params := make([]InferredType, len(fn.Params))
	for i, p := range fn.Params {
		if p.Type != nil {
			params[i] = astTypeToInferred(p.Type)
		} else {
			params[i] = tc.freshVar()
		}
	}
	ret := tUnit()
	if fn.ReturnType != nil {
		ret = astTypeToInferred(fn.ReturnType)
	}
	tc.env.defineFunction(fn.Name, InferredType{Kind: KFunction, Params: params, Ret: &ret})
}

func (tc *TypeChecker) checkFunction(fn *FunctionDef) {
	tc.env.pushScope()
	defer tc.env.popScope()

	for _, p := range fn.Params {
		if p.Type != nil {
			tc.env.define(p.Name, astTypeToInferred(p.Type))
		} else {
			tc.env.define(p.Name, tc.freshVar())
		}
	}

	expectedReturn := tUnit()
	if fn.ReturnType != nil {
		expectedReturn = astTypeToInferred(fn.ReturnType)
	}

	for _, stmt := range fn.Body {
		tc.checkStatement(stmt, expectedReturn)
	}
}

func (tc *TypeChecker) checkStatement(stmt Stmt, expectedReturn InferredType) {
	switch s := stmt.(type) {
	case *VarDecl:
		t := tc.inferExpr(s.Expr)
		if s.Type != nil {
			tc.report(tc.unify(astTypeToInferred(s.Type), t, s.Span))
		}
		tc.env.define(s.Name, t)

	case *Assignment:
		varType, ok := tc.env.get(s.Name)
		if !ok {
			tc.report(TypeDiagnostic{Message: fmt.Sprintf("undefined variable %q", s.Name), Span: s.Span})
			return
		}
		exprType := tc.inferExpr(s.Expr)
		tc.report(tc.unify(varType, exprType, s.Span))

	case *ReturnStmt:
		t := tUnit()
		if s.Expr != nil {
			t = tc.inferExpr(s.Expr)
		}
		tc.report(tc.unify(expectedReturn, t, s.Span))

	case *Conditional:
		condType := tc.inferExpr(s.Cond)
		tc.report(tc.unify(tBool(), condType, s.Cond.ExprSpan()))
		tc.env.pushScope()
		for _, st := range s.Then {
			tc.checkStatement(st, expectedReturn)
		}
		tc.env.popScope()
		if s.Else != nil {
			tc.env.pushScope()
			for _, st := range s.Else {
				tc.checkStatement(st, expectedReturn)
			}
			tc.env.popScope()
		}

	case *Loop:
		countType := tc.inferExpr(s.Count)
		tc.report(tc.unify(tInt(), countType, s.Count.ExprSpan()))
		tc.env.pushScope()
		for _, st := range s.Body {
			tc.checkStatement(st, expectedReturn)
		}
		tc.env.popScope()

	case *AttemptBlock:
		tc.env.pushScope()
		for _, st := range s.Body {
			tc.checkStatement(st, expectedReturn)
		}
		tc.env.popScope()

	case *ConsentBlockStmt:
		tc.env.pushScope()
		for _, st := range s.Body {
			tc.checkStatement(st, expectedReturn)
		}
		tc.env.popScope()

	case *ExprStmt:
		tc.inferExpr(s.Expr)

	case *DecideStmt:
		tc.inferExpr(s.Scrutinee)
		for _, arm := range s.Arms {
			tc.env.pushScope()
			if arm.Guard != nil {
				guardType := tc.inferExpr(arm.Guard)
				tc.report(tc.unify(tBool(), guardType, arm.Guard.ExprSpan()))
			}
			for _, st := range arm.Body {
				tc.checkStatement(st, expectedReturn)
			}
			tc.env.popScope()
		}

	case *ComplainStmt:
		// no type obligations

	case *EmoteAnnotatedStmt:
		tc.checkStatement(s.Inner, expectedReturn)

	case *WorkerSpawn:
		// no type obligations; worker bodies are not checked, since Check
		// visits FunctionDef items only
	}
}

func (tc *TypeChecker) inferExpr(expr Expr) InferredType {
	switch e := expr.(type) {
	case *LiteralExpr:
		switch e.Kind {
		case LitInt:
			return tInt()
		case LitFloat:
			return tFloat()
		case LitString:
			return tString()
		case LitBool:
			return tBool()
		}
		return tc.freshVar()

	case *IdentifierExpr:
		if t, ok := tc.env.get(e.Name); ok {
			return t
		}
		if t, ok := tc.env.getFunction(e.Name); ok {
			return t
		}
		tc.report(TypeDiagnostic{Message: fmt.Sprintf("undefined variable %q", e.Name), Span: e.Span})
		return tc.freshVar()

	case *BinaryExpr:
		left := tc.inferExpr(e.Left)
		right := tc.inferExpr(e.Right)
		switch e.Op {
		case OpAdd, OpSub, OpMul, OpDiv, OpMod:
			if e.Op == OpAdd && (left.Kind == KString || right.Kind == KString) {
				tc.report(tc.unify(tString(), left, e.Span))
				tc.report(tc.unify(tString(), right, e.Span))
				return tString()
			}
			tc.report(tc.unify(left, right, e.Span))
			if left.Kind == KFloat || right.Kind == KFloat {
				return tFloat()
			}
			return left
		case OpEq, OpNe, OpLt, OpGt, OpLe, OpGe:
			tc.report(tc.unify(left, right, e.Span))
			return tBool()
		case OpAnd, OpOr:
			tc.report(tc.unify(tBool(), left, e.Span))
			tc.report(tc.unify(tBool(), right, e.Span))
			return tBool()
		}
		return tc.freshVar()

	case *UnaryExpr:
		operand := tc.inferExpr(e.Operand)
		if e.Op == OpNot {
			tc.report(tc.unify(tBool(), operand, e.Span))
			return tBool()
		}
		return operand

	case *CallExpr:
		argTypes := make([]InferredType, len(e.Args))
		for i, a := range e.Args {
			argTypes[i] = tc.inferExpr(a)
		}
		if e.Callee != nil {
			calleeType := tc.inferExpr(e.Callee)
			if calleeType.Kind == KFunction {
				return tc.applyCall(calleeType, argTypes, e.Span)
			}
			return tc.freshVar()
		}
		if fnType, ok := tc.env.getFunction(e.Name); ok {
			return tc.applyCall(fnType, argTypes, e.Span)
		}
		// builtins and as-yet-unresolved calls are advisory no-ops
		return tc.freshVar()

	case *ArrayLit:
		elem := tc.freshVar()
		for _, item := range e.Items {
			tc.report(tc.unify(elem, tc.inferExpr(item), item.ExprSpan()))
		}
		return InferredType{Kind: KArray, Elem: &elem}

	case *IndexExpr:
		objType := tc.inferExpr(e.Object)
		tc.report(tc.unify(tInt(), tc.inferExpr(e.Index), e.Index.ExprSpan()))
		if objType.Kind == KArray {
			return *objType.Elem
		}
		return tc.freshVar()

	case *MeasuredExpr:
		return tc.inferExpr(e.Inner)

	case *OkayExpr:
		ok := tc.inferExpr(e.Inner)
		return InferredType{Kind: KResult, Ok: &ok, Err: ptr(tString())}

	case *OopsExpr:
		errT := tc.inferExpr(e.Inner)
		return InferredType{Kind: KResult, Ok: ptr(tc.freshVar()), Err: &errT}

	case *UnwrapExpr:
		innerType := tc.inferExpr(e.Inner)
		if innerType.Kind == KResult {
			return *innerType.Ok
		}
		return tc.freshVar()

	case *LambdaExpr:
		tc.env.pushScope()
		params := make([]InferredType, len(e.Params))
		for i, p := range e.Params {
			if p.Type != nil {
				params[i] = astTypeToInferred(p.Type)
			} else {
				params[i] = tc.freshVar()
			}
			tc.env.define(p.Name, params[i])
		}
		var ret InferredType
		if e.ExprBody != nil {
			ret = tc.inferExpr(e.ExprBody)
		} else {
			ret = tc.freshVar()
			for _, st := range e.BlockBody {
				tc.checkStatement(st, ret)
			}
		}
		tc.env.popScope()
		return InferredType{Kind: KFunction, Params: params, Ret: &ret}

	case *ThanksExpr:
		return tString()
	}
	return tc.freshVar()
}

func ptr(t InferredType) *InferredType { return &t }

func (tc *TypeChecker) applyCall(fnType InferredType, argTypes []InferredType, span Range) InferredType {
	if len(fnType.Params) != len(argTypes) {
		tc.report(TypeDiagnostic{
			Message: fmt.Sprintf("arity mismatch: expected %d argument(s), got %d", len(fnType.Params), len(argTypes)),
			Span:    span,
		})
		return *fnType.Ret
	}
	for i, p := range fnType.Params {
		tc.report(tc.unify(p, argTypes[i], span))
	}
	return *fnType.Ret
}
