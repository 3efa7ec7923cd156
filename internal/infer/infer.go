// Package infer implements the two-phase type-inference pass: bottom-up
// expression/statement inference, followed by a call-site refinement
// pass that joins argument types back into callee parameter types.
package infer

import (
	"numlattice/internal/ast"
	"numlattice/internal/types"
)

// Infer runs both phases over a module: expression/statement inference,
// then call-site refinement. It never returns an error for well-formed
// ASTs; inference itself cannot fail (unsupported shapes only affect
// emission).
func Infer(mod *ast.Module, tab *types.Tables) {
	p := &pass{tab: tab}
	for _, s := range mod.Stmts {
		p.stmt(s)
	}
	refine(mod, tab)
}

type pass struct {
	tab *types.Tables
	fn  string // "" at module scope
}

// ExprType infers the type of an expression.
func ExprType(e ast.Expr, fn string, tab *types.Tables) types.Type {
	p := &pass{tab: tab, fn: fn}
	return p.expr(e)
}

func (p *pass) expr(e ast.Expr) types.Type {
	switch n := e.(type) {
	case *ast.IntLit:
		return types.Int
	case *ast.FloatLit:
		return types.Float
	case *ast.BoolLit:
		return types.Int
	case *ast.StringLit:
		return types.Int // strings carry no numeric type; treated as INT for lattice purposes
	case *ast.Name:
		return p.tab.LookupVar(p.fn, n.Ident)
	case *ast.Binary:
		switch n.Op {
		case ast.TrueDiv:
			return types.Float
		case ast.FloorDiv:
			return types.Int
		default:
			return types.Join(p.expr(n.Left), p.expr(n.Right))
		}
	case *ast.Unary:
		return p.expr(n.Operand)
	case *ast.Conditional:
		return types.Join(p.expr(n.Then), p.expr(n.Else))
	case *ast.Compare, *ast.Logical:
		return types.Int
	case *ast.Call:
		if rt, ok := p.tab.ReturnType(n.Callee); ok {
			return rt
		}
		return types.Int
	case *ast.Subscript:
		if name, ok := n.Container.(*ast.Name); ok {
			return p.tab.LookupVar(p.fn, name.Ident)
		}
		return types.Int
	default:
		return types.Int
	}
}

func (p *pass) stmt(s ast.Stmt) {
	switch n := s.(type) {
	case *ast.Assign:
		typ := p.expr(n.Value)
		for _, target := range n.Targets {
			switch t := target.(type) {
			case *ast.Name:
				p.tab.SetVar(p.fn, t.Ident, typ)
			case *ast.Subscript:
				// A subscript target does not declare a new name, but a
				// write through it still informs the container's element
				// type: join so a single FLOAT-typed write promotes the
				// whole buffer.
				if name, ok := t.Container.(*ast.Name); ok {
					existing := p.tab.LookupVar(p.fn, name.Ident)
					p.tab.SetVar(p.fn, name.Ident, types.Join(existing, typ))
				}
			}
		}
	case *ast.AugAssign:
		existing := p.tab.LookupVar(p.fn, n.Target.Ident)
		rhs := p.expr(n.Value)
		p.tab.SetVar(p.fn, n.Target.Ident, types.Join(existing, rhs))
	case *ast.ExprStmt:
		p.expr(n.X)
	case *ast.If:
		for _, s := range n.Then {
			p.stmt(s)
		}
		for _, s := range n.Else {
			p.stmt(s)
		}
	case *ast.While:
		for _, s := range n.Body {
			p.stmt(s)
		}
	case *ast.RangeFor:
		p.tab.SetVar(p.fn, n.Var, types.Int)
		for _, a := range n.Args {
			p.expr(a)
		}
		for _, s := range n.Body {
			p.stmt(s)
		}
	case *ast.OtherFor:
		for _, s := range n.Body {
			p.stmt(s)
		}
	case *ast.FuncDef:
		old := p.fn
		p.fn = n.Name
		p.tab.DeclareFunc(n.Name, n.Params)
		for _, s := range n.Body {
			p.stmt(s)
		}
		p.tab.Funcs[n.Name].Return = returnType(n.Body, p)
		p.fn = old
	case *ast.Return, *ast.Pass, *ast.Break, *ast.Continue:
		// No type effect; return types are derived by returnType below.
	}
}

// returnType computes the join of INT with every `return <expr>` inside
// body, recursing through nested if/while/for bodies.
func returnType(body []ast.Stmt, p *pass) types.Type {
	ret := types.Int
	for _, s := range body {
		switch n := s.(type) {
		case *ast.Return:
			if n.Value != nil {
				ret = types.Join(ret, p.expr(n.Value))
			}
		case *ast.If:
			ret = types.Join(ret, returnType(n.Then, p))
			ret = types.Join(ret, returnType(n.Else, p))
		case *ast.While:
			ret = types.Join(ret, returnType(n.Body, p))
		case *ast.RangeFor:
			ret = types.Join(ret, returnType(n.Body, p))
		case *ast.OtherFor:
			ret = types.Join(ret, returnType(n.Body, p))
		}
	}
	return ret
}

// refine walks every call in the module and joins each positional
// argument's inferred type into the callee's parameter type at that
// position. A single pass suffices: the
// lattice has height 1, so refinement can never need to revisit a type
// it already raised to FLOAT.
func refine(mod *ast.Module, tab *types.Tables) {
	for _, s := range mod.Stmts {
		walkStmt(s, "", tab)
	}
}

func walkStmt(s ast.Stmt, fn string, tab *types.Tables) {
	switch n := s.(type) {
	case *ast.Assign:
		walkExpr(n.Value, fn, tab)
		for _, t := range n.Targets {
			walkExpr(t, fn, tab)
		}
	case *ast.AugAssign:
		walkExpr(n.Value, fn, tab)
	case *ast.ExprStmt:
		walkExpr(n.X, fn, tab)
	case *ast.If:
		walkExpr(n.Cond, fn, tab)
		for _, s := range n.Then {
			walkStmt(s, fn, tab)
		}
		for _, s := range n.Else {
			walkStmt(s, fn, tab)
		}
	case *ast.While:
		walkExpr(n.Cond, fn, tab)
		for _, s := range n.Body {
			walkStmt(s, fn, tab)
		}
	case *ast.RangeFor:
		for _, a := range n.Args {
			walkExpr(a, fn, tab)
		}
		for _, s := range n.Body {
			walkStmt(s, fn, tab)
		}
	case *ast.OtherFor:
		walkExpr(n.Iter, fn, tab)
		for _, s := range n.Body {
			walkStmt(s, fn, tab)
		}
	case *ast.FuncDef:
		for _, s := range n.Body {
			walkStmt(s, n.Name, tab)
		}
	case *ast.Return:
		if n.Value != nil {
			walkExpr(n.Value, fn, tab)
		}
	}
}

func walkExpr(e ast.Expr, fn string, tab *types.Tables) {
	switch n := e.(type) {
	case *ast.Binary:
		walkExpr(n.Left, fn, tab)
		walkExpr(n.Right, fn, tab)
	case *ast.Unary:
		walkExpr(n.Operand, fn, tab)
	case *ast.Compare:
		for _, o := range n.Operands {
			walkExpr(o, fn, tab)
		}
	case *ast.Logical:
		walkExpr(n.Left, fn, tab)
		walkExpr(n.Right, fn, tab)
	case *ast.Conditional:
		walkExpr(n.Cond, fn, tab)
		walkExpr(n.Then, fn, tab)
		walkExpr(n.Else, fn, tab)
	case *ast.Subscript:
		walkExpr(n.Container, fn, tab)
		walkExpr(n.Index, fn, tab)
	case *ast.Call:
		for _, a := range n.Args {
			walkExpr(a, fn, tab)
		}
		if ft, ok := tab.Funcs[n.Callee]; ok {
			for i, a := range n.Args {
				if i >= len(ft.ParamNames) {
					break
				}
				pname := ft.ParamNames[i]
				argType := ExprType(a, fn, tab)
				ft.ParamTypes[pname] = types.Join(ft.ParamTypes[pname], argType)
			}
		}
	}
}
