package interp

import (
	"testing"

	"numlattice/internal/ast"
)

// TestFibonacciUnderHundred runs:
//
//	a = 0
//	b = 1
//	while a < 100:
//	    print(a)
//	    temp = b
//	    b = a + b
//	    a = temp
//
// and expects every fibonacci number under 100, one per line.
func TestFibonacciUnderHundred(t *testing.T) {
	mod := &ast.Module{Stmts: []ast.Stmt{
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

	var got []string
	it := New(func(line string) { got = append(got, line) })
	if err := it.Run(mod); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"0", "1", "1", "2", "3", "5", "8", "13", "21", "34", "55", "89"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("line %d: got %q, want %q (full: %v)", i, got[i], want[i], got)
		}
	}
}

func TestFunctionCallAndReturn(t *testing.T) {
	// def square(x): return x * x
	// print(square(7))
	mod := &ast.Module{Stmts: []ast.Stmt{
		&ast.FuncDef{
			Name:   "square",
			Params: []string{"x"},
			Body: []ast.Stmt{
				&ast.Return{Value: &ast.Binary{Op: ast.Mul, Left: &ast.Name{Ident: "x"}, Right: &ast.Name{Ident: "x"}}},
			},
		},
		&ast.ExprStmt{X: &ast.Call{Callee: "print", Args: []ast.Expr{
			&ast.Call{Callee: "square", Args: []ast.Expr{&ast.IntLit{Value: 7}}},
		}}},
	}}

	var got []string
	it := New(func(line string) { got = append(got, line) })
	if err := it.Run(mod); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0] != "49" {
		t.Fatalf("got %v, want [49]", got)
	}
}

func TestBuiltinsAbsStrMinMax(t *testing.T) {
	// print(abs(-3))
	// print(str(5))
	// print(min(3, 1, 2))
	// print(max(3, 1, 2))
	mod := &ast.Module{Stmts: []ast.Stmt{
		&ast.ExprStmt{X: &ast.Call{Callee: "print", Args: []ast.Expr{
			&ast.Call{Callee: "abs", Args: []ast.Expr{&ast.Unary{Op: ast.Neg, Operand: &ast.IntLit{Value: 3}}}},
		}}},
		&ast.ExprStmt{X: &ast.Call{Callee: "print", Args: []ast.Expr{
			&ast.Call{Callee: "str", Args: []ast.Expr{&ast.IntLit{Value: 5}}},
		}}},
		&ast.ExprStmt{X: &ast.Call{Callee: "print", Args: []ast.Expr{
			&ast.Call{Callee: "min", Args: []ast.Expr{&ast.IntLit{Value: 3}, &ast.IntLit{Value: 1}, &ast.IntLit{Value: 2}}},
		}}},
		&ast.ExprStmt{X: &ast.Call{Callee: "print", Args: []ast.Expr{
			&ast.Call{Callee: "max", Args: []ast.Expr{&ast.IntLit{Value: 3}, &ast.IntLit{Value: 1}, &ast.IntLit{Value: 2}}},
		}}},
	}}

	var got []string
	it := New(func(line string) { got = append(got, line) })
	if err := it.Run(mod); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"3", "5", "1", "3"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("line %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBreakExitsLoop(t *testing.T) {
	// for i in range(10):
	//     if i == 3: break
	//     print(i)
	mod := &ast.Module{Stmts: []ast.Stmt{
		&ast.RangeFor{
			Var:  "i",
			Args: []ast.Expr{&ast.IntLit{Value: 10}},
			Body: []ast.Stmt{
				&ast.If{
					Cond: &ast.Compare{Operands: []ast.Expr{&ast.Name{Ident: "i"}, &ast.IntLit{Value: 3}}, Ops: []ast.CmpOp{ast.Eq}},
					Then: []ast.Stmt{&ast.Break{}},
				},
				&ast.ExprStmt{X: &ast.Call{Callee: "print", Args: []ast.Expr{&ast.Name{Ident: "i"}}}},
			},
		},
	}}
	var got []string
	it := New(func(line string) { got = append(got, line) })
	if err := it.Run(mod); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"0", "1", "2"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
