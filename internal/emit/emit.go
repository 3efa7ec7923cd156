// Package emit implements the shared emitter: the walk over a module that
// every backend reuses for statement lowering, control flow, expressions,
// and declare-on-first-assignment bookkeeping. Backends plug in their
// integer/float spellings and operator overrides through the Backend
// interface.
package emit

import (
	"fmt"
	"strconv"
	"strings"

	"numlattice/internal/ast"
	"numlattice/internal/errors"
	"numlattice/internal/types"

	pkgerrors "github.com/pkg/errors"
)

// Backend supplies the handful of target-specific overrides: integer and
// float spellings, the loop-index spelling, and the binary-op and call
// lowerings a target needs to specialize.
type Backend interface {
	// Spelling returns the target-language token for a lattice type.
	Spelling(t types.Type) string
	// LoopIndexSpelling returns the integer spelling used for a for-range
	// loop counter.
	LoopIndexSpelling() string
	// LowerBinary renders a binary expression, given the already-rendered
	// operand text and their inferred types. ok is false to fall back to
	// the shared default table.
	LowerBinary(op ast.BinOp, left, right string, lt, rt types.Type) (rendered string, ok bool)
	// LowerCall renders a call from its AST node, rendering any arguments
	// itself through e.Expr. ok is false to fall back to the shared
	// default (`callee(args...)`).
	// LowerCall may call e.Fail to record a fatal BackendRejection (e.g.
	// print() in the GPU backend); emission continues so the rest of the
	// program still produces output, but Emitter.Err will be non-nil.
	LowerCall(e *Emitter, call *ast.Call) (rendered string, ok bool)
}

var binSymbols = map[ast.BinOp]string{
	ast.Add:      "+",
	ast.Sub:      "-",
	ast.Mul:      "*",
	ast.TrueDiv:  "/",
	ast.FloorDiv: "/",
	ast.Mod:      "%",
	ast.Shl:      "<<",
	ast.Shr:      ">>",
	ast.BitAnd:   "&",
	ast.BitOr:    "|",
	ast.BitXor:   "^",
}

var cmpSymbols = map[ast.CmpOp]string{
	ast.Eq: "==",
	ast.Ne: "!=",
	ast.Lt: "<",
	ast.Le: "<=",
	ast.Gt: ">",
	ast.Ge: ">=",
}

// Emitter walks a module and produces target source as an ordered,
// indented line sequence. Emission runs on a single logical thread; the
// line buffer has no concurrent readers.
type Emitter struct {
	Backend Backend
	Tables  *types.Tables

	lines    []string
	indent   int
	fn       string          // "" at module scope
	declared map[string]bool // per-scope declared-names set

	// Err accumulates the first fatal error raised via Fail. The shared
	// emitter keeps walking after a fatal construct so the rest of the
	// program still produces output; callers check Err when done.
	Err error
}

// Fail records the first fatal error encountered during emission.
func (e *Emitter) Fail(err error) {
	if e.Err == nil {
		e.Err = err
	}
}

// NewEmitter creates an emitter bound to a backend and a populated symbol
// table (post-inference, post-refinement).
func NewEmitter(b Backend, tab *types.Tables) *Emitter {
	return &Emitter{Backend: b, Tables: tab, declared: make(map[string]bool)}
}

func (e *Emitter) emit(line string) {
	e.lines = append(e.lines, strings.Repeat("    ", e.indent)+line)
}

// Lines returns the accumulated output lines.
func (e *Emitter) Lines() []string { return e.lines }

// CurrentFunc returns the name of the function currently being emitted, or
// "" at module scope. Backends use it to resolve a Name's type without
// reaching into Emitter's unexported state.
func (e *Emitter) CurrentFunc() string { return e.fn }

// Raw appends a line at the current indentation, for backend drivers that
// assemble forward declarations, signatures, and braces around a nested
// Emitter's body. The bundled backends assemble their output with a
// strings.Builder instead and do not call it.
func (e *Emitter) Raw(line string) { e.emit(line) }

// RawIndented appends a pre-indented line verbatim (no further indent
// applied), used to splice another emitter's already-indented body lines.
func (e *Emitter) RawIndented(line string) { e.lines = append(e.lines, line) }

// IndentBy adjusts the base indentation level a sub-emitter starts its
// body lines at, so a driver can nest its output inside a signature line
// and closing brace it emits itself.
func (e *Emitter) IndentBy(n int) { e.indent += n }

// EnterFunc pushes a fresh declared-names scope seeded with the function's
// parameter names, as they are pre-declared by the signature.
func (e *Emitter) EnterFunc(name string, params []string) (restore func()) {
	oldFn, oldDeclared := e.fn, e.declared
	e.fn = name
	e.declared = make(map[string]bool, len(params))
	for _, p := range params {
		e.declared[p] = true
	}
	return func() {
		e.fn = oldFn
		e.declared = oldDeclared
	}
}

func (e *Emitter) typeOf(name string) types.Type {
	return e.Tables.LookupVar(e.fn, name)
}

func (e *Emitter) exprType(x ast.Expr) types.Type {
	return exprType(x, e.fn, e.Tables)
}

// exprType applies the same rules as infer.ExprType, reading the tables
// only (emission is read-only and needs no refinement, only lookup).
func exprType(x ast.Expr, fn string, tab *types.Tables) types.Type {
	switch n := x.(type) {
	case *ast.IntLit:
		return types.Int
	case *ast.FloatLit:
		return types.Float
	case *ast.BoolLit:
		return types.Int
	case *ast.StringLit:
		return types.Int
	case *ast.Name:
		return tab.LookupVar(fn, n.Ident)
	case *ast.Binary:
		switch n.Op {
		case ast.TrueDiv:
			return types.Float
		case ast.FloorDiv:
			return types.Int
		default:
			return types.Join(exprType(n.Left, fn, tab), exprType(n.Right, fn, tab))
		}
	case *ast.Unary:
		return exprType(n.Operand, fn, tab)
	case *ast.Conditional:
		return types.Join(exprType(n.Then, fn, tab), exprType(n.Else, fn, tab))
	case *ast.Compare, *ast.Logical:
		return types.Int
	case *ast.Call:
		if rt, ok := tab.ReturnType(n.Callee); ok {
			return rt
		}
		return types.Int
	case *ast.Subscript:
		if name, ok := n.Container.(*ast.Name); ok {
			return tab.LookupVar(fn, name.Ident)
		}
		return types.Int
	default:
		return types.Int
	}
}

// ── statements ───────────────────────────────────────────────────────────

// Stmt emits one statement.
func (e *Emitter) Stmt(s ast.Stmt) error {
	switch n := s.(type) {
	case *ast.Assign:
		return e.assign(n)
	case *ast.AugAssign:
		e.emit(fmt.Sprintf("%s %s= %s;", n.Target.Ident, e.binSymbol(n.Op), e.Expr(n.Value)))
		return nil
	case *ast.ExprStmt:
		e.emit(e.Expr(n.X) + ";")
		return nil
	case *ast.If:
		e.ifChain(n)
		return nil
	case *ast.While:
		e.emit(fmt.Sprintf("while (%s) {", e.Expr(n.Cond)))
		e.indent++
		for _, s := range n.Body {
			e.Stmt(s)
		}
		e.indent--
		e.emit("}")
		return nil
	case *ast.RangeFor:
		e.rangeFor(n)
		return nil
	case *ast.OtherFor:
		e.emit(errors.Sentinel(errors.UnsupportedStatement, "for-in (non-range iterator)") + " {")
		e.indent++
		for _, s := range n.Body {
			e.Stmt(s)
		}
		e.indent--
		e.emit("}")
		return nil
	case *ast.Return:
		if n.Value != nil {
			e.emit(fmt.Sprintf("return %s;", e.Expr(n.Value)))
		} else {
			e.emit("return;")
		}
		return nil
	case *ast.Pass:
		e.emit("// pass")
		return nil
	case *ast.Break:
		e.emit("break;")
		return nil
	case *ast.Continue:
		e.emit("continue;")
		return nil
	default:
		e.emit(errors.Sentinel(errors.UnsupportedStatement, fmt.Sprintf("%T", s)) + ";")
		return nil
	}
}

func (e *Emitter) assign(n *ast.Assign) error {
	val := e.Expr(n.Value)
	for _, target := range n.Targets {
		switch t := target.(type) {
		case *ast.Name:
			typ := e.typeOf(t.Ident)
			if !e.declared[t.Ident] {
				e.declared[t.Ident] = true
				e.emit(fmt.Sprintf("%s %s = %s;", e.Backend.Spelling(typ), t.Ident, val))
			} else {
				e.emit(fmt.Sprintf("%s = %s;", t.Ident, val))
			}
		case *ast.Subscript:
			// A subscript target is a store, not a declaration.
			e.emit(fmt.Sprintf("%s = %s;", e.Expr(t), val))
		default:
			e.emit(errors.Sentinel(errors.UnsupportedStatement, "assignment target") + ";")
		}
	}
	return nil
}

func (e *Emitter) ifChain(n *ast.If) {
	e.emit(fmt.Sprintf("if (%s) {", e.Expr(n.Cond)))
	e.indent++
	for _, s := range n.Then {
		e.Stmt(s)
	}
	e.indent--

	switch {
	case len(n.Else) == 0:
		e.emit("}")
	case len(n.Else) == 1:
		if elif, ok := n.Else[0].(*ast.If); ok {
			e.elifChain(elif)
			e.emit("}")
			return
		}
		e.emitElseBlock(n.Else)
	default:
		e.emitElseBlock(n.Else)
	}
}

func (e *Emitter) elifChain(n *ast.If) {
	e.emit(fmt.Sprintf("} else if (%s) {", e.Expr(n.Cond)))
	e.indent++
	for _, s := range n.Then {
		e.Stmt(s)
	}
	e.indent--

	if len(n.Else) == 0 {
		return
	}
	if len(n.Else) == 1 {
		if elif, ok := n.Else[0].(*ast.If); ok {
			e.elifChain(elif)
			return
		}
	}
	e.emit("} else {")
	e.indent++
	for _, s := range n.Else {
		e.Stmt(s)
	}
	e.indent--
}

func (e *Emitter) emitElseBlock(body []ast.Stmt) {
	e.emit("} else {")
	e.indent++
	for _, s := range body {
		e.Stmt(s)
	}
	e.indent--
	e.emit("}")
}

// rangeFor lowers `for Var in range(...)`: one arg is the end, two are
// start/end, three add the step. The comparison flips to > for a
// literally negative step.
func (e *Emitter) rangeFor(n *ast.RangeFor) {
	var start, end, step string
	negative := false
	switch len(n.Args) {
	case 1:
		start, end, step = "0", e.Expr(n.Args[0]), "1"
	case 2:
		start, end, step = e.Expr(n.Args[0]), e.Expr(n.Args[1]), "1"
	case 3:
		start, end, step = e.Expr(n.Args[0]), e.Expr(n.Args[1]), e.Expr(n.Args[2])
		negative = isNegativeStep(n.Args[2])
	default:
		start, end, step = "0", "0", "1"
	}
	cmp := "<"
	if negative {
		cmp = ">"
	}
	loopType := e.Backend.LoopIndexSpelling()
	e.declared[n.Var] = true
	e.emit(fmt.Sprintf("for (%s %s = %s; %s %s %s; %s += %s) {",
		loopType, n.Var, start, n.Var, cmp, end, n.Var, step))
	e.indent++
	for _, s := range n.Body {
		e.Stmt(s)
	}
	e.indent--
	e.emit("}")
}

func isNegativeStep(e ast.Expr) bool {
	switch n := e.(type) {
	case *ast.IntLit:
		return n.Value < 0
	case *ast.FloatLit:
		return n.Value < 0
	case *ast.Unary:
		if n.Op != ast.Neg {
			return false
		}
		switch n.Operand.(type) {
		case *ast.IntLit, *ast.FloatLit:
			return true
		}
	}
	return false
}

// ── expressions ──────────────────────────────────────────────────────────

func (e *Emitter) binSymbol(op ast.BinOp) string {
	if s, ok := binSymbols[op]; ok {
		return s
	}
	return "?"
}

func cmpSymbol(op ast.CmpOp) string {
	if s, ok := cmpSymbols[op]; ok {
		return s
	}
	return "?"
}

// Expr renders an expression to target text.
func (e *Emitter) Expr(x ast.Expr) string {
	switch n := x.(type) {
	case *ast.IntLit:
		return strconv.FormatInt(n.Value, 10)
	case *ast.FloatLit:
		return strconv.FormatFloat(n.Value, 'g', -1, 64)
	case *ast.BoolLit:
		if n.Value {
			return "1"
		}
		return "0"
	case *ast.StringLit:
		return strconv.Quote(n.Value)
	case *ast.Name:
		return n.Ident
	case *ast.Binary:
		return e.binary(n)
	case *ast.Unary:
		operand := e.Expr(n.Operand)
		switch n.Op {
		case ast.Neg:
			return fmt.Sprintf("(-%s)", operand)
		case ast.Pos:
			return fmt.Sprintf("(+%s)", operand)
		case ast.Not:
			return fmt.Sprintf("(!%s)", operand)
		default:
			return errors.Sentinel(errors.UnknownOperator, string(n.Op))
		}
	case *ast.Compare:
		parts := make([]string, 0, len(n.Operands)*2-1)
		parts = append(parts, e.Expr(n.Operands[0]))
		for i, op := range n.Ops {
			parts = append(parts, cmpSymbol(op), e.Expr(n.Operands[i+1]))
		}
		return "(" + strings.Join(parts, " ") + ")"
	case *ast.Logical:
		joiner := " && "
		if n.Op == ast.Or {
			joiner = " || "
		}
		return "(" + e.Expr(n.Left) + joiner + e.Expr(n.Right) + ")"
	case *ast.Conditional:
		return fmt.Sprintf("(%s ? %s : %s)", e.Expr(n.Cond), e.Expr(n.Then), e.Expr(n.Else))
	case *ast.Call:
		return e.call(n)
	case *ast.Subscript:
		return fmt.Sprintf("%s[%s]", e.Expr(n.Container), e.Expr(n.Index))
	default:
		return errors.Sentinel(errors.UnsupportedExpression, fmt.Sprintf("%T", x))
	}
}

func (e *Emitter) binary(n *ast.Binary) string {
	left, right := e.Expr(n.Left), e.Expr(n.Right)
	lt, rt := e.exprType(n.Left), e.exprType(n.Right)
	if rendered, ok := e.Backend.LowerBinary(n.Op, left, right, lt, rt); ok {
		return rendered
	}
	return fmt.Sprintf("(%s %s %s)", left, e.binSymbol(n.Op), right)
}

func (e *Emitter) call(n *ast.Call) string {
	if rendered, ok := e.Backend.LowerCall(e, n); ok {
		return rendered
	}
	args := make([]string, len(n.Args))
	for i, a := range n.Args {
		args[i] = e.Expr(a)
	}
	return fmt.Sprintf("%s(%s)", n.Callee, strings.Join(args, ", "))
}

// Reject raises a fatal BackendRejection for a construct a backend
// forbids (e.g. print in the GPU backend). Wrapped with pkg/errors so a
// caller can trace the cause through the compile-and-emit boundary.
func Reject(construct, backend string) error {
	return pkgerrors.Wrap(errors.New(errors.BackendRejection, construct, backend), "emission aborted")
}
