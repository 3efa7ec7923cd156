// Package interp implements the tree-walk interpreter that executes a
// module directly, without lowering to a target language. It shares the
// internal/ast vocabulary with the compiler but no other state: a
// program can be run here or compiled, never both in one pass.
package interp

import (
	"fmt"
	"math"

	pkgerrors "github.com/pkg/errors"

	"numlattice/internal/ast"
)

// Value is an int64 or a float64 for numbers, a string for string
// literals and str() results, or nil for the result of a call that
// returns nothing.
type Value interface{}

// Env is a scoped variable environment with a parent chain.
type Env struct {
	vars   map[string]Value
	parent *Env
}

// NewEnv creates a child scope of parent (nil for the global scope).
func NewEnv(parent *Env) *Env {
	return &Env{vars: make(map[string]Value), parent: parent}
}

func (e *Env) Get(name string) (Value, bool) {
	if v, ok := e.vars[name]; ok {
		return v, true
	}
	if e.parent != nil {
		return e.parent.Get(name)
	}
	return nil, false
}

func (e *Env) Set(name string, v Value) { e.vars[name] = v }

// Function is a user-defined function closing over its defining scope.
type Function struct {
	Name   string
	Params []string
	Body   []ast.Stmt
	Def    *Env
}

// Printer receives the rendered text of each print() call; the interpreter
// itself has no notion of stdout so tests can capture output directly.
type Printer func(line string)

// Interpreter walks a module's statements against a global environment.
type Interpreter struct {
	global   *Env
	funcs    map[string]*Function
	print    Printer
	builtins map[string]func([]Value) (Value, error)
}

// New creates an interpreter. A nil printer discards print() output.
func New(printer Printer) *Interpreter {
	if printer == nil {
		printer = func(string) {}
	}
	it := &Interpreter{
		global: NewEnv(nil),
		funcs:  make(map[string]*Function),
		print:  printer,
	}
	it.builtins = map[string]func([]Value) (Value, error){
		"len":   it.builtinLen,
		"int":   it.builtinInt,
		"float": it.builtinFloat,
		"abs":   it.builtinAbs,
		"str":   it.builtinStr,
		"min":   it.builtinMin,
		"max":   it.builtinMax,
	}
	return it
}

type breakSignal struct{}
type continueSignal struct{}
type returnSignal struct{ value Value }

func (breakSignal) Error() string    { return "break outside loop" }
func (continueSignal) Error() string { return "continue outside loop" }
func (returnSignal) Error() string   { return "return outside function" }

// Run executes every top-level statement of mod against the interpreter's
// global environment.
func (it *Interpreter) Run(mod *ast.Module) error {
	for _, s := range mod.Stmts {
		if err := it.exec(s, it.global); err != nil {
			return err
		}
	}
	return nil
}

func (it *Interpreter) exec(s ast.Stmt, env *Env) error {
	switch n := s.(type) {
	case *ast.FuncDef:
		it.funcs[n.Name] = &Function{Name: n.Name, Params: n.Params, Body: n.Body, Def: env}
		return nil
	case *ast.Assign:
		val, err := it.eval(n.Value, env)
		if err != nil {
			return err
		}
		for _, target := range n.Targets {
			if err := it.assign(target, val, env); err != nil {
				return err
			}
		}
		return nil
	case *ast.AugAssign:
		cur, ok := env.Get(n.Target.Ident)
		if !ok {
			return pkgerrors.Errorf("undefined variable %q", n.Target.Ident)
		}
		rhs, err := it.eval(n.Value, env)
		if err != nil {
			return err
		}
		result, err := it.applyBinary(n.Op, cur, rhs)
		if err != nil {
			return err
		}
		return it.assign(n.Target, result, env)
	case *ast.ExprStmt:
		_, err := it.eval(n.X, env)
		return err
	case *ast.If:
		cond, err := it.eval(n.Cond, env)
		if err != nil {
			return err
		}
		body := n.Else
		if truthy(cond) {
			body = n.Then
		}
		for _, s := range body {
			if err := it.exec(s, env); err != nil {
				return err
			}
		}
		return nil
	case *ast.While:
		for {
			cond, err := it.eval(n.Cond, env)
			if err != nil {
				return err
			}
			if !truthy(cond) {
				return nil
			}
			if err := it.execLoopBody(n.Body, env); err != nil {
				if _, ok := err.(breakSignal); ok {
					return nil
				}
				if _, ok := err.(continueSignal); ok {
					continue
				}
				return err
			}
		}
	case *ast.RangeFor:
		start, end, step, err := rangeArgs(n.Args, env, it)
		if err != nil {
			return err
		}
		if step == 0 {
			return pkgerrors.New("range() step must not be zero")
		}
		for i := start; (step > 0 && i < end) || (step < 0 && i > end); i += step {
			env.Set(n.Var, i)
			if err := it.execLoopBody(n.Body, env); err != nil {
				if _, ok := err.(breakSignal); ok {
					return nil
				}
				if _, ok := err.(continueSignal); ok {
					continue
				}
				return err
			}
		}
		return nil
	case *ast.OtherFor:
		return pkgerrors.Errorf("unsupported for-loop iterable in %q", n.Var)
	case *ast.Return:
		if n.Value == nil {
			return returnSignal{value: nil}
		}
		val, err := it.eval(n.Value, env)
		if err != nil {
			return err
		}
		return returnSignal{value: val}
	case *ast.Pass:
		return nil
	case *ast.Break:
		return breakSignal{}
	case *ast.Continue:
		return continueSignal{}
	default:
		return pkgerrors.Errorf("unsupported statement %T", s)
	}
}

// execLoopBody runs body once, letting break/continue propagate to the
// caller's loop (which decides whether to stop or skip to the next pass)
// and return propagate through unchanged.
func (it *Interpreter) execLoopBody(body []ast.Stmt, env *Env) error {
	for _, s := range body {
		if err := it.exec(s, env); err != nil {
			return err
		}
	}
	return nil
}

func (it *Interpreter) assign(target ast.Expr, val Value, env *Env) error {
	switch t := target.(type) {
	case *ast.Name:
		env.Set(t.Ident, val)
		return nil
	case *ast.Subscript:
		return pkgerrors.New("subscript assignment requires a buffer runtime; not supported by the tree-walk interpreter")
	default:
		return pkgerrors.Errorf("unsupported assignment target %T", target)
	}
}

func (it *Interpreter) eval(x ast.Expr, env *Env) (Value, error) {
	switch n := x.(type) {
	case *ast.IntLit:
		return n.Value, nil
	case *ast.FloatLit:
		return n.Value, nil
	case *ast.BoolLit:
		if n.Value {
			return int64(1), nil
		}
		return int64(0), nil
	case *ast.StringLit:
		return n.Value, nil
	case *ast.Name:
		if v, ok := env.Get(n.Ident); ok {
			return v, nil
		}
		return nil, pkgerrors.Errorf("undefined variable %q", n.Ident)
	case *ast.Binary:
		left, err := it.eval(n.Left, env)
		if err != nil {
			return nil, err
		}
		right, err := it.eval(n.Right, env)
		if err != nil {
			return nil, err
		}
		return it.applyBinary(n.Op, left, right)
	case *ast.Unary:
		v, err := it.eval(n.Operand, env)
		if err != nil {
			return nil, err
		}
		return applyUnary(n.Op, v)
	case *ast.Compare:
		return it.evalCompare(n, env)
	case *ast.Logical:
		left, err := it.eval(n.Left, env)
		if err != nil {
			return nil, err
		}
		if n.Op == ast.And && !truthy(left) {
			return left, nil
		}
		if n.Op == ast.Or && truthy(left) {
			return left, nil
		}
		return it.eval(n.Right, env)
	case *ast.Conditional:
		cond, err := it.eval(n.Cond, env)
		if err != nil {
			return nil, err
		}
		if truthy(cond) {
			return it.eval(n.Then, env)
		}
		return it.eval(n.Else, env)
	case *ast.Call:
		return it.call(n, env)
	case *ast.Subscript:
		return nil, pkgerrors.New("subscripts require a buffer runtime; not supported by the tree-walk interpreter")
	default:
		return nil, pkgerrors.Errorf("unsupported expression %T", x)
	}
}

func (it *Interpreter) evalCompare(n *ast.Compare, env *Env) (Value, error) {
	prev, err := it.eval(n.Operands[0], env)
	if err != nil {
		return nil, err
	}
	for i, op := range n.Ops {
		next, err := it.eval(n.Operands[i+1], env)
		if err != nil {
			return nil, err
		}
		ok, err := compareOp(op, prev, next)
		if err != nil {
			return nil, err
		}
		if !ok {
			return int64(0), nil
		}
		prev = next
	}
	return int64(1), nil
}

func (it *Interpreter) call(n *ast.Call, env *Env) (Value, error) {
	if n.Callee == "print" {
		return it.builtinPrint(n.Args, env)
	}
	if fn, ok := it.builtins[n.Callee]; ok {
		args, err := it.evalArgs(n.Args, env)
		if err != nil {
			return nil, err
		}
		return fn(args)
	}
	fn, ok := it.funcs[n.Callee]
	if !ok {
		return nil, pkgerrors.Errorf("undefined function %q", n.Callee)
	}
	if len(n.Args) != len(fn.Params) {
		return nil, pkgerrors.Errorf("%s() takes %d arguments, got %d", fn.Name, len(fn.Params), len(n.Args))
	}
	args, err := it.evalArgs(n.Args, env)
	if err != nil {
		return nil, err
	}
	callEnv := NewEnv(fn.Def)
	for i, p := range fn.Params {
		callEnv.Set(p, args[i])
	}
	for _, s := range fn.Body {
		if err := it.exec(s, callEnv); err != nil {
			if ret, ok := err.(returnSignal); ok {
				return ret.value, nil
			}
			return nil, err
		}
	}
	return nil, nil
}

func (it *Interpreter) evalArgs(exprs []ast.Expr, env *Env) ([]Value, error) {
	args := make([]Value, len(exprs))
	for i, a := range exprs {
		v, err := it.eval(a, env)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

func (it *Interpreter) builtinPrint(exprs []ast.Expr, env *Env) (Value, error) {
	args, err := it.evalArgs(exprs, env)
	if err != nil {
		return nil, err
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = format(a)
	}
	line := ""
	for i, p := range parts {
		if i > 0 {
			line += " "
		}
		line += p
	}
	it.print(line)
	return nil, nil
}

func (it *Interpreter) builtinLen(args []Value) (Value, error) {
	if len(args) != 1 {
		return nil, pkgerrors.New("len() takes exactly one argument")
	}
	if s, ok := args[0].(string); ok {
		return int64(len(s)), nil
	}
	return nil, pkgerrors.New("len() is only supported on strings in this runtime")
}

func (it *Interpreter) builtinInt(args []Value) (Value, error) {
	if len(args) != 1 {
		return nil, pkgerrors.New("int() takes exactly one argument")
	}
	switch v := args[0].(type) {
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	default:
		return nil, pkgerrors.Errorf("int() unsupported for %T", v)
	}
}

func (it *Interpreter) builtinFloat(args []Value) (Value, error) {
	if len(args) != 1 {
		return nil, pkgerrors.New("float() takes exactly one argument")
	}
	switch v := args[0].(type) {
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return nil, pkgerrors.Errorf("float() unsupported for %T", v)
	}
}

func (it *Interpreter) builtinAbs(args []Value) (Value, error) {
	if len(args) != 1 {
		return nil, pkgerrors.New("abs() takes exactly one argument")
	}
	switch v := args[0].(type) {
	case int64:
		if v < 0 {
			return -v, nil
		}
		return v, nil
	case float64:
		return math.Abs(v), nil
	default:
		return nil, pkgerrors.Errorf("abs() unsupported for %T", v)
	}
}

func (it *Interpreter) builtinStr(args []Value) (Value, error) {
	if len(args) != 1 {
		return nil, pkgerrors.New("str() takes exactly one argument")
	}
	return format(args[0]), nil
}

func (it *Interpreter) builtinMin(args []Value) (Value, error) {
	if len(args) == 0 {
		return nil, pkgerrors.New("min() requires at least one argument")
	}
	best := args[0]
	for _, v := range args[1:] {
		less, err := it.numericLess(v, best)
		if err != nil {
			return nil, err
		}
		if less {
			best = v
		}
	}
	return best, nil
}

func (it *Interpreter) builtinMax(args []Value) (Value, error) {
	if len(args) == 0 {
		return nil, pkgerrors.New("max() requires at least one argument")
	}
	best := args[0]
	for _, v := range args[1:] {
		less, err := it.numericLess(best, v)
		if err != nil {
			return nil, err
		}
		if less {
			best = v
		}
	}
	return best, nil
}

func (it *Interpreter) numericLess(a, b Value) (bool, error) {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if !aok || !bok {
		return false, pkgerrors.Errorf("min()/max() unsupported for %T/%T", a, b)
	}
	return af < bf, nil
}

func format(v Value) string {
	switch n := v.(type) {
	case int64:
		return fmt.Sprintf("%d", n)
	case float64:
		return fmt.Sprintf("%g", n)
	case string:
		return n
	case nil:
		return "None"
	default:
		return fmt.Sprintf("%v", n)
	}
}

func truthy(v Value) bool {
	switch n := v.(type) {
	case int64:
		return n != 0
	case float64:
		return n != 0
	case string:
		return n != ""
	case nil:
		return false
	default:
		return true
	}
}

func asFloat(v Value) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func bothInt(a, b Value) (int64, int64, bool) {
	ai, aok := a.(int64)
	bi, bok := b.(int64)
	return ai, bi, aok && bok
}

func (it *Interpreter) applyBinary(op ast.BinOp, a, b Value) (Value, error) {
	if op == ast.TrueDiv {
		af, aok := asFloat(a)
		bf, bok := asFloat(b)
		if !aok || !bok {
			return nil, pkgerrors.Errorf("unsupported operand types for /: %T and %T", a, b)
		}
		return af / bf, nil
	}
	if ai, bi, ok := bothInt(a, b); ok {
		switch op {
		case ast.Add:
			return ai + bi, nil
		case ast.Sub:
			return ai - bi, nil
		case ast.Mul:
			return ai * bi, nil
		case ast.FloorDiv:
			return floorDivInt(ai, bi), nil
		case ast.Mod:
			return ai % bi, nil
		case ast.Pow:
			return int64(math.Pow(float64(ai), float64(bi))), nil
		case ast.BitAnd:
			return ai & bi, nil
		case ast.BitOr:
			return ai | bi, nil
		case ast.BitXor:
			return ai ^ bi, nil
		case ast.Shl:
			return ai << uint(bi), nil
		case ast.Shr:
			return ai >> uint(bi), nil
		}
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if !aok || !bok {
		return nil, pkgerrors.Errorf("unsupported operand types for %s: %T and %T", op, a, b)
	}
	switch op {
	case ast.Add:
		return af + bf, nil
	case ast.Sub:
		return af - bf, nil
	case ast.Mul:
		return af * bf, nil
	case ast.FloorDiv:
		return math.Floor(af / bf), nil
	case ast.Mod:
		return math.Mod(af, bf), nil
	case ast.Pow:
		return math.Pow(af, bf), nil
	default:
		return nil, pkgerrors.Errorf("operator %s is not defined on floating operands", op)
	}
}

func floorDivInt(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func applyUnary(op ast.UnOp, v Value) (Value, error) {
	switch op {
	case ast.Neg:
		switch n := v.(type) {
		case int64:
			return -n, nil
		case float64:
			return -n, nil
		}
	case ast.Pos:
		return v, nil
	case ast.Not:
		if truthy(v) {
			return int64(0), nil
		}
		return int64(1), nil
	}
	return nil, pkgerrors.Errorf("unsupported unary operator %s on %T", op, v)
}

func compareOp(op ast.CmpOp, a, b Value) (bool, error) {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			switch op {
			case ast.Eq:
				return af == bf, nil
			case ast.Ne:
				return af != bf, nil
			case ast.Lt:
				return af < bf, nil
			case ast.Le:
				return af <= bf, nil
			case ast.Gt:
				return af > bf, nil
			case ast.Ge:
				return af >= bf, nil
			}
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch op {
		case ast.Eq:
			return as == bs, nil
		case ast.Ne:
			return as != bs, nil
		case ast.Lt:
			return as < bs, nil
		case ast.Le:
			return as <= bs, nil
		case ast.Gt:
			return as > bs, nil
		case ast.Ge:
			return as >= bs, nil
		}
	}
	return false, pkgerrors.Errorf("unsupported comparison between %T and %T", a, b)
}

// rangeArgs evaluates range(...)'s 1-3 arguments into start/end/step.
func rangeArgs(args []ast.Expr, env *Env, it *Interpreter) (start, end, step int64, err error) {
	vals := make([]int64, len(args))
	for i, a := range args {
		v, err := it.eval(a, env)
		if err != nil {
			return 0, 0, 0, err
		}
		iv, ok := v.(int64)
		if !ok {
			return 0, 0, 0, pkgerrors.New("range() arguments must be integers")
		}
		vals[i] = iv
	}
	switch len(vals) {
	case 1:
		return 0, vals[0], 1, nil
	case 2:
		return vals[0], vals[1], 1, nil
	case 3:
		return vals[0], vals[1], vals[2], nil
	default:
		return 0, 0, 0, pkgerrors.New("range() takes 1 to 3 arguments")
	}
}
