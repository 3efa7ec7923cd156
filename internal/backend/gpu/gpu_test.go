package gpu

import (
	"strconv"
	"strings"
	"testing"

	"numlattice/internal/ast"
	"numlattice/internal/infer"
	"numlattice/internal/types"
)

// saxpyModule builds: def saxpy(a, x, y, out, n, tid): if tid < n: out[tid] = a*x[tid] + y[tid]
func saxpyModule() *ast.Module {
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
								Op:   ast.Mul,
								Left: &ast.Name{Ident: "a"},
								Right: &ast.Subscript{
									Container: &ast.Name{Ident: "x"},
									Index:     &ast.Name{Ident: "tid"},
								},
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

func TestSAXPYKernelSignature(t *testing.T) {
	mod := saxpyModule()
	tab := types.NewTables()
	infer.Infer(mod, tab)
	tab.Funcs["saxpy"].ParamTypes["a"] = types.Float // the scale factor is a float scalar

	out, err := Generate(mod, tab)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(out, "kernel void saxpy(") {
		t.Fatalf("missing kernel signature:\n%s", out)
	}
	if !strings.Contains(out, "constant float& a [[buffer(0)]]") {
		t.Fatalf("expected scalar-float reference for a:\n%s", out)
	}
	for i, name := range []string{"x", "y", "out"} {
		_ = i
		if !strings.Contains(out, "device float* "+name+" [[buffer(") && !strings.Contains(out, "device int* "+name+" [[buffer(") {
			t.Fatalf("expected buffer pointer for %s:\n%s", name, out)
		}
	}
	if !strings.Contains(out, "constant uint& n [[buffer(") {
		t.Fatalf("expected scalar-unsigned reference for n (compared against tid):\n%s", out)
	}
	if !strings.Contains(out, "uint tid [[thread_position_in_grid]]") {
		t.Fatalf("expected thread-position attribute for tid:\n%s", out)
	}

	for i := 0; i <= 4; i++ {
		want := "[[buffer(" + strconv.Itoa(i) + ")]]"
		if !strings.Contains(out, want) {
			t.Fatalf("expected buffer index %d present in signature:\n%s", i, out)
		}
	}
}

func TestPrintInsideKernelIsBackendRejection(t *testing.T) {
	// def bad(tid): print(tid)
	mod := &ast.Module{Stmts: []ast.Stmt{
		&ast.FuncDef{
			Name:   "bad",
			Params: []string{"tid"},
			Body: []ast.Stmt{
				&ast.ExprStmt{X: &ast.Call{Callee: "print", Args: []ast.Expr{&ast.Name{Ident: "tid"}}}},
			},
		},
	}}
	tab := types.NewTables()
	infer.Infer(mod, tab)

	_, err := Generate(mod, tab)
	if err == nil {
		t.Fatal("expected a BackendRejection error for print inside a kernel, got nil")
	}
	if !strings.Contains(err.Error(), "print") {
		t.Fatalf("expected error to name print, got: %v", err)
	}
}

func TestClassifyPriorityOrder(t *testing.T) {
	// buf is both indexed and FLOAT-typed: buffer classification must win
	// over scalar-float.
	fn := &ast.FuncDef{
		Name:   "k",
		Params: []string{"buf", "tid"},
		Body: []ast.Stmt{
			&ast.Assign{
				Targets: []ast.Expr{&ast.Subscript{Container: &ast.Name{Ident: "buf"}, Index: &ast.Name{Ident: "tid"}}},
				Value:   &ast.FloatLit{Value: 1.25},
			},
		},
	}
	mod := &ast.Module{Stmts: []ast.Stmt{fn}}
	tab := types.NewTables()
	infer.Infer(mod, tab)

	if tab.Funcs["k"].ParamTypes["buf"] != types.Float {
		t.Fatalf("expected buf refined to FLOAT from subscript-write RHS, got %v", tab.Funcs["k"].ParamTypes["buf"])
	}

	classified := classify(fn, tab)
	for _, cp := range classified {
		if cp.name == "buf" && cp.role != roleBufferFloat {
			t.Fatalf("expected buf classified as buffer_float, got role %v", cp.role)
		}
	}
}
