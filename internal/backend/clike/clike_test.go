package clike

import (
	"strings"
	"testing"

	"numlattice/internal/ast"
	"numlattice/internal/infer"
	"numlattice/internal/types"

	"golang.org/x/tools/txtar"
)

func TestPrintRoutingAndIntegerCast(t *testing.T) {
	// print(1, 2.5)
	mod := &ast.Module{Stmts: []ast.Stmt{
		&ast.ExprStmt{X: &ast.Call{Callee: "print", Args: []ast.Expr{
			&ast.IntLit{Value: 1},
			&ast.FloatLit{Value: 2.5},
		}}},
	}}
	tab := types.NewTables()
	infer.Infer(mod, tab)

	out, err := Generate(mod, tab)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, `printf("%lld %f\n", (long long)1, 2.5)`) {
		t.Fatalf("unexpected print lowering:\n%s", out)
	}
	if !strings.Contains(out, "int main() {") {
		t.Fatalf("missing entry point:\n%s", out)
	}
	if strings.Contains(out, "#include <math.h>") {
		t.Fatalf("no pow() call present; math.h should not be included:\n%s", out)
	}
}

func TestMathHeaderIncludedIffPowUsed(t *testing.T) {
	// x = 2 ** 3
	mod := &ast.Module{Stmts: []ast.Stmt{
		&ast.Assign{
			Targets: []ast.Expr{&ast.Name{Ident: "x"}},
			Value:   &ast.Binary{Op: ast.Pow, Left: &ast.IntLit{Value: 2}, Right: &ast.IntLit{Value: 3}},
		},
	}}
	tab := types.NewTables()
	infer.Infer(mod, tab)

	out, err := Generate(mod, tab)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "#include <math.h>") {
		t.Fatalf("expected math.h include when pow() is used:\n%s", out)
	}
	if !strings.Contains(out, "(long long)pow((double)2, (double)3)") {
		t.Fatalf("expected int-cast pow lowering for two INT operands:\n%s", out)
	}
}

func TestFunctionBodyNotDuplicatedInMain(t *testing.T) {
	// def square(x): return x * x
	// y = square(3)
	mod := &ast.Module{Stmts: []ast.Stmt{
		&ast.FuncDef{
			Name:   "square",
			Params: []string{"x"},
			Body: []ast.Stmt{
				&ast.Return{Value: &ast.Binary{Op: ast.Mul, Left: &ast.Name{Ident: "x"}, Right: &ast.Name{Ident: "x"}}},
			},
		},
		&ast.Assign{
			Targets: []ast.Expr{&ast.Name{Ident: "y"}},
			Value:   &ast.Call{Callee: "square", Args: []ast.Expr{&ast.IntLit{Value: 3}}},
		},
	}}
	tab := types.NewTables()
	infer.Infer(mod, tab)

	out, err := Generate(mod, tab)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantReturn := "return (x * x);"
	if n := strings.Count(out, wantReturn); n != 1 {
		t.Fatalf("expected function body to appear exactly once, found %d occurrences:\n%s", n, out)
	}

	mainIdx := strings.Index(out, "int main() {")
	if mainIdx < 0 {
		t.Fatalf("missing entry point:\n%s", out)
	}
	if strings.Contains(out[mainIdx:], "x * x") {
		t.Fatalf("function body must not be duplicated inside main():\n%s", out)
	}
	if !strings.Contains(out[mainIdx:], "square(3)") {
		t.Fatalf("expected call to square(3) inside main():\n%s", out)
	}
}

// TestGoldenSquare compares full emission output against a golden fixture
// stored in testdata/golden.txtar, rather than scattered substring checks,
// to catch incidental formatting drift across the whole file at once.
func TestGoldenSquare(t *testing.T) {
	archive, err := txtar.ParseFile("testdata/golden.txtar")
	if err != nil {
		t.Fatalf("reading golden archive: %v", err)
	}
	var want []byte
	for _, f := range archive.Files {
		if f.Name == "square.c" {
			want = f.Data
		}
	}
	if want == nil {
		t.Fatal("golden archive missing square.c")
	}

	mod := &ast.Module{Stmts: []ast.Stmt{
		&ast.FuncDef{
			Name:   "square",
			Params: []string{"x"},
			Body: []ast.Stmt{
				&ast.Return{Value: &ast.Binary{Op: ast.Mul, Left: &ast.Name{Ident: "x"}, Right: &ast.Name{Ident: "x"}}},
			},
		},
		&ast.Assign{
			Targets: []ast.Expr{&ast.Name{Ident: "y"}},
			Value:   &ast.Call{Callee: "square", Args: []ast.Expr{&ast.IntLit{Value: 3}}},
		},
	}}
	tab := types.NewTables()
	infer.Infer(mod, tab)

	out, err := Generate(mod, tab)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != strings.TrimSpace(string(want)) {
		t.Fatalf("output does not match golden fixture:\ngot:\n%s\nwant:\n%s", out, want)
	}
}

func TestForwardDeclarationPrecedesDefinition(t *testing.T) {
	mod := &ast.Module{Stmts: []ast.Stmt{
		&ast.FuncDef{
			Name:   "id",
			Params: []string{"x"},
			Body:   []ast.Stmt{&ast.Return{Value: &ast.Name{Ident: "x"}}},
		},
	}}
	tab := types.NewTables()
	infer.Infer(mod, tab)

	out, err := Generate(mod, tab)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	declIdx := strings.Index(out, "long long id(long long x);")
	defIdx := strings.Index(out, "long long id(long long x) {")
	if declIdx < 0 || defIdx < 0 || declIdx >= defIdx {
		t.Fatalf("expected forward declaration before definition:\n%s", out)
	}
}
