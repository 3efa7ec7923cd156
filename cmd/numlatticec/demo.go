package main

import "numlattice/internal/ast"

// fibonacciDemo builds the AST for:
//
//	a = 0
//	b = 1
//	while a < 100:
//	    print(a)
//	    temp = b
//	    b = a + b
//	    a = temp
//
// --demo builds this AST directly instead of parsing source text, so
// the compiler core can be exercised without a source file on disk.
func fibonacciDemo() *ast.Module {
	return &ast.Module{Stmts: []ast.Stmt{
		&ast.Assign{Targets: []ast.Expr{&ast.Name{Ident: "a"}}, Value: &ast.IntLit{Value: 0}},
		&ast.Assign{Targets: []ast.Expr{&ast.Name{Ident: "b"}}, Value: &ast.IntLit{Value: 1}},
		&ast.While{
			Cond: &ast.Compare{
				Operands: []ast.Expr{&ast.Name{Ident: "a"}, &ast.IntLit{Value: 100}},
				Ops:      []ast.CmpOp{ast.Lt},
			},
			Body: []ast.Stmt{
				&ast.ExprStmt{X: &ast.Call{Callee: "print", Args: []ast.Expr{&ast.Name{Ident: "a"}}}},
				&ast.Assign{Targets: []ast.Expr{&ast.Name{Ident: "temp"}}, Value: &ast.Name{Ident: "b"}},
				&ast.Assign{
					Targets: []ast.Expr{&ast.Name{Ident: "b"}},
					Value:   &ast.Binary{Op: ast.Add, Left: &ast.Name{Ident: "a"}, Right: &ast.Name{Ident: "b"}},
				},
				&ast.Assign{Targets: []ast.Expr{&ast.Name{Ident: "a"}}, Value: &ast.Name{Ident: "temp"}},
			},
		},
	}}
}

// saxpyDemo builds the AST for a GPU SAXPY kernel:
//
//	def saxpy(a, x, y, out, n, tid):
//	    if tid < n:
//	        out[tid] = a * x[tid] + y[tid]
func saxpyDemo() *ast.Module {
	fn := &ast.FuncDef{
		Name:   "saxpy",
		Params: []string{"a", "x", "y", "out", "n", "tid"},
		Body: []ast.Stmt{
			&ast.If{
				Cond: &ast.Compare{
					Operands: []ast.Expr{&ast.Name{Ident: "tid"}, &ast.Name{Ident: "n"}},
					Ops:      []ast.CmpOp{ast.Lt},
				},
				Then: []ast.Stmt{
					&ast.Assign{
						Targets: []ast.Expr{&ast.Subscript{Container: &ast.Name{Ident: "out"}, Index: &ast.Name{Ident: "tid"}}},
						Value: &ast.Binary{
							Op: ast.Add,
							Left: &ast.Binary{
								Op:    ast.Mul,
								Left:  &ast.Name{Ident: "a"},
								Right: &ast.Subscript{Container: &ast.Name{Ident: "x"}, Index: &ast.Name{Ident: "tid"}},
							},
							Right: &ast.Subscript{Container: &ast.Name{Ident: "y"}, Index: &ast.Name{Ident: "tid"}},
						},
					},
				},
			},
		},
	}
	return &ast.Module{Stmts: []ast.Stmt{fn}}
}
