// Package gpu implements the GPU shading-language backend: 32-bit
// integers, single-precision float, helpers-then-kernels ordering, a
// six-way parameter classifier that recovers buffer/scalar/thread-id
// roles from an untyped parameter list, and a hard rejection of print
// inside kernel bodies.
package gpu

import (
	"fmt"
	"strings"

	"numlattice/internal/ast"
	"numlattice/internal/emit"
	"numlattice/internal/errors"
	"numlattice/internal/gpuruntime"
	"numlattice/internal/types"
)

const (
	intSpelling   = "int"
	floatSpelling = "float"
)

// Backend is the GPU shading-language target descriptor.
type Backend struct{}

func (Backend) Spelling(t types.Type) string {
	if t == types.Float {
		return floatSpelling
	}
	return intSpelling
}

func (Backend) LoopIndexSpelling() string { return intSpelling }

func (Backend) LowerBinary(op ast.BinOp, left, right string, lt, rt types.Type) (string, bool) {
	switch op {
	case ast.Pow:
		return fmt.Sprintf("pow((float)%s, (float)%s)", left, right), true
	case ast.FloorDiv:
		if lt == types.Float || rt == types.Float {
			return fmt.Sprintf("(int)((float)%s / (float)%s)", left, right), true
		}
		return fmt.Sprintf("(%s / %s)", left, right), true
	default:
		return "", false
	}
}

// LowerCall rejects print: the GPU target has no stdout.
func (Backend) LowerCall(e *emit.Emitter, call *ast.Call) (string, bool) {
	if call.Callee != "print" {
		return "", false
	}
	e.Fail(emit.Reject("print", "gpu"))
	return errors.Sentinel(errors.BackendRejection, "print"), true
}

// role is one of the six parameter classifications.
type role int

const (
	roleTID role = iota
	roleBufferFloat
	roleBufferInt
	roleScalarFloat
	roleScalarUint
	roleScalarInt
)

type classifiedParam struct {
	name string
	role role
}

// classify implements the priority-ordered classifier: tid, then
// subscript-base, then inferred-FLOAT, then tid-compared, then default
// int. It walks the kernel body once to collect the two sets the rule
// depends on, then classifies every declared parameter in order.
func classify(fn *ast.FuncDef, tab *types.Tables) []classifiedParam {
	params := make(map[string]bool, len(fn.Params))
	for _, p := range fn.Params {
		params[p] = true
	}

	indexed := make(map[string]bool)
	tidCompared := make(map[string]bool)
	var walkExpr func(ast.Expr)
	var walkStmt func(ast.Stmt)

	walkExpr = func(x ast.Expr) {
		if x == nil {
			return
		}
		switch n := x.(type) {
		case *ast.Subscript:
			if name, ok := n.Container.(*ast.Name); ok && params[name.Ident] {
				indexed[name.Ident] = true
			}
			walkExpr(n.Container)
			walkExpr(n.Index)
		case *ast.Binary:
			walkExpr(n.Left)
			walkExpr(n.Right)
		case *ast.Unary:
			walkExpr(n.Operand)
		case *ast.Compare:
			namesTid := false
			var operandNames []string
			for _, o := range n.Operands {
				if name, ok := o.(*ast.Name); ok {
					if name.Ident == "tid" {
						namesTid = true
					} else if params[name.Ident] {
						operandNames = append(operandNames, name.Ident)
					}
				}
				walkExpr(o)
			}
			if namesTid {
				for _, name := range operandNames {
					tidCompared[name] = true
				}
			}
		case *ast.Logical:
			walkExpr(n.Left)
			walkExpr(n.Right)
		case *ast.Conditional:
			walkExpr(n.Cond)
			walkExpr(n.Then)
			walkExpr(n.Else)
		case *ast.Call:
			for _, a := range n.Args {
				walkExpr(a)
			}
		}
	}
	walkStmt = func(s ast.Stmt) {
		if s == nil {
			return
		}
		switch n := s.(type) {
		case *ast.Assign:
			walkExpr(n.Value)
			for _, t := range n.Targets {
				walkExpr(t)
			}
		case *ast.AugAssign:
			walkExpr(n.Value)
		case *ast.ExprStmt:
			walkExpr(n.X)
		case *ast.If:
			walkExpr(n.Cond)
			for _, s := range n.Then {
				walkStmt(s)
			}
			for _, s := range n.Else {
				walkStmt(s)
			}
		case *ast.While:
			walkExpr(n.Cond)
			for _, s := range n.Body {
				walkStmt(s)
			}
		case *ast.RangeFor:
			for _, a := range n.Args {
				walkExpr(a)
			}
			for _, s := range n.Body {
				walkStmt(s)
			}
		case *ast.OtherFor:
			walkExpr(n.Iter)
			for _, s := range n.Body {
				walkStmt(s)
			}
		case *ast.Return:
			walkExpr(n.Value)
		}
	}
	for _, s := range fn.Body {
		walkStmt(s)
	}

	result := make([]classifiedParam, 0, len(fn.Params))
	for _, name := range fn.Params {
		if name == "tid" {
			result = append(result, classifiedParam{name, roleTID})
			continue
		}
		typ := tab.Funcs[fn.Name].ParamTypes[name]
		isFloat := typ == types.Float

		switch {
		case indexed[name]:
			if isFloat {
				result = append(result, classifiedParam{name, roleBufferFloat})
			} else {
				result = append(result, classifiedParam{name, roleBufferInt})
			}
		case isFloat:
			result = append(result, classifiedParam{name, roleScalarFloat})
		case tidCompared[name]:
			result = append(result, classifiedParam{name, roleScalarUint})
		default:
			result = append(result, classifiedParam{name, roleScalarInt})
		}
	}
	return result
}

// paramDecl renders one classified parameter's declaration, given its
// assigned buffer index (ignored for tid).
func paramDecl(cp classifiedParam, idx int) string {
	switch cp.role {
	case roleTID:
		return fmt.Sprintf("    uint %s [[thread_position_in_grid]]", cp.name)
	case roleBufferFloat:
		return fmt.Sprintf("    device float* %s [[buffer(%d)]]", cp.name, idx)
	case roleBufferInt:
		return fmt.Sprintf("    device int* %s [[buffer(%d)]]", cp.name, idx)
	case roleScalarFloat:
		return fmt.Sprintf("    constant float& %s [[buffer(%d)]]", cp.name, idx)
	case roleScalarUint:
		return fmt.Sprintf("    constant uint& %s [[buffer(%d)]]", cp.name, idx)
	default:
		return fmt.Sprintf("    constant int& %s [[buffer(%d)]]", cp.name, idx)
	}
}

// isKernel reports whether a function's parameter list names tid.
func isKernel(fn *ast.FuncDef) bool {
	for _, p := range fn.Params {
		if p == "tid" {
			return true
		}
	}
	return false
}

// Generate compiles a module to GPU shading-language source. Type
// inference and refinement must already have populated tab.
func Generate(mod *ast.Module, tab *types.Tables) (string, error) {
	var helpers, kernels []*ast.FuncDef
	for _, s := range mod.Stmts {
		fn, ok := s.(*ast.FuncDef)
		if !ok {
			continue
		}
		if isKernel(fn) {
			kernels = append(kernels, fn)
		} else {
			helpers = append(helpers, fn)
		}
	}

	var firstErr error
	var out strings.Builder
	out.WriteString("#include <metal_stdlib>\n")
	out.WriteString("using namespace metal;\n\n")

	for _, fn := range helpers {
		out.WriteString(renderHelper(fn, tab, &firstErr))
	}
	for _, fn := range kernels {
		out.WriteString(renderKernel(fn, tab, &firstErr))
	}

	return out.String(), firstErr
}

func renderHelper(fn *ast.FuncDef, tab *types.Tables, firstErr *error) string {
	ft := tab.Funcs[fn.Name]
	params := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = spelling(ft.ParamTypes[p]) + " " + p
	}
	header := fmt.Sprintf("%s %s(%s)", spelling(ft.Return), fn.Name, strings.Join(params, ", "))

	body := emit.NewEmitter(Backend{}, tab)
	body.IndentBy(1)
	restore := body.EnterFunc(fn.Name, fn.Params)
	for _, s := range fn.Body {
		body.Stmt(s)
	}
	restore()
	if body.Err != nil && *firstErr == nil {
		*firstErr = body.Err
	}

	var b strings.Builder
	b.WriteString(header + " {\n")
	for _, line := range body.Lines() {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("}\n\n")
	return b.String()
}

// renderKernel emits one kernel entry point: signature (with classified,
// buffer-indexed parameters) then body.
func renderKernel(fn *ast.FuncDef, tab *types.Tables, firstErr *error) string {
	classified := classify(fn, tab)

	decls := make([]string, len(classified))
	idx := 0
	for i, cp := range classified {
		if cp.role == roleTID {
			decls[i] = paramDecl(cp, 0)
			continue
		}
		decls[i] = paramDecl(cp, idx)
		idx++
	}

	body := emit.NewEmitter(Backend{}, tab)
	body.IndentBy(1)
	restore := body.EnterFunc(fn.Name, fn.Params)
	for _, s := range fn.Body {
		body.Stmt(s)
	}
	restore()
	if body.Err != nil && *firstErr == nil {
		*firstErr = body.Err
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("kernel void %s(\n", fn.Name))
	b.WriteString(strings.Join(decls, ",\n"))
	b.WriteString("\n) {\n")
	for _, line := range body.Lines() {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("}\n\n")
	return b.String()
}

func spelling(t types.Type) string {
	if t == types.Float {
		return floatSpelling
	}
	return intSpelling
}

// BuildPlan derives a kernel's launch-time binding contract from the
// same classification renderKernel uses for its signature, so the two
// can never disagree about a parameter's buffer index. A buffer that is
// only ever written to (never read back through a subscript) is planned
// as BindingOutput rather than BindingData, so the host allocates it by
// element count instead of copying data in.
func BuildPlan(fn *ast.FuncDef, tab *types.Tables) gpuruntime.Plan {
	classified := classify(fn, tab)
	plan := gpuruntime.Plan{KernelName: fn.Name}

	idx := 0
	for _, cp := range classified {
		if cp.role == roleTID {
			continue
		}
		var kind gpuruntime.BindingKind
		var elem gpuruntime.ElementType
		switch cp.role {
		case roleBufferFloat:
			elem = gpuruntime.ElementFloat
			if read, written := bufferUsage(fn, cp.name); written && !read {
				kind = gpuruntime.BindingOutput
			} else {
				kind = gpuruntime.BindingData
			}
		case roleBufferInt:
			elem = gpuruntime.ElementInt
			if read, written := bufferUsage(fn, cp.name); written && !read {
				kind = gpuruntime.BindingOutput
			} else {
				kind = gpuruntime.BindingData
			}
		case roleScalarFloat:
			elem, kind = gpuruntime.ElementFloat, gpuruntime.BindingScalar
		case roleScalarUint:
			elem, kind = gpuruntime.ElementUint, gpuruntime.BindingScalar
			plan.GridSizeArg = cp.name
		default:
			elem, kind = gpuruntime.ElementInt, gpuruntime.BindingScalar
		}
		plan.Bindings = append(plan.Bindings, gpuruntime.Binding{Name: cp.name, Kind: kind, Elem: elem, Index: idx})
		idx++
	}
	return plan
}

// bufferUsage walks fn's body reporting whether name (a parameter) is
// ever read through a subscript (appears as a Subscript.Container inside
// an expression) and whether it is ever written through one (appears as
// a Subscript target of an Assign).
func bufferUsage(fn *ast.FuncDef, name string) (read, written bool) {
	var walkExpr func(ast.Expr)
	var walkStmt func(ast.Stmt)

	walkExpr = func(e ast.Expr) {
		if e == nil {
			return
		}
		switch n := e.(type) {
		case *ast.Subscript:
			if nm, ok := n.Container.(*ast.Name); ok && nm.Ident == name {
				read = true
			}
			walkExpr(n.Container)
			walkExpr(n.Index)
		case *ast.Binary:
			walkExpr(n.Left)
			walkExpr(n.Right)
		case *ast.Unary:
			walkExpr(n.Operand)
		case *ast.Compare:
			for _, o := range n.Operands {
				walkExpr(o)
			}
		case *ast.Logical:
			walkExpr(n.Left)
			walkExpr(n.Right)
		case *ast.Conditional:
			walkExpr(n.Cond)
			walkExpr(n.Then)
			walkExpr(n.Else)
		case *ast.Call:
			for _, a := range n.Args {
				walkExpr(a)
			}
		}
	}
	walkStmt = func(s ast.Stmt) {
		if s == nil {
			return
		}
		switch n := s.(type) {
		case *ast.Assign:
			for _, t := range n.Targets {
				if sub, ok := t.(*ast.Subscript); ok {
					if nm, ok := sub.Container.(*ast.Name); ok && nm.Ident == name {
						written = true
					}
					walkExpr(sub.Index)
				} else {
					walkExpr(t)
				}
			}
			walkExpr(n.Value)
		case *ast.AugAssign:
			walkExpr(n.Value)
		case *ast.ExprStmt:
			walkExpr(n.X)
		case *ast.If:
			walkExpr(n.Cond)
			for _, s := range n.Then {
				walkStmt(s)
			}
			for _, s := range n.Else {
				walkStmt(s)
			}
		case *ast.While:
			walkExpr(n.Cond)
			for _, s := range n.Body {
				walkStmt(s)
			}
		case *ast.RangeFor:
			for _, a := range n.Args {
				walkExpr(a)
			}
			for _, s := range n.Body {
				walkStmt(s)
			}
		case *ast.OtherFor:
			walkExpr(n.Iter)
			for _, s := range n.Body {
				walkStmt(s)
			}
		case *ast.Return:
			walkExpr(n.Value)
		}
	}
	for _, s := range fn.Body {
		walkStmt(s)
	}
	return
}
