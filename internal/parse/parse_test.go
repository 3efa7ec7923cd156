package parse

import (
	"testing"

	"numlattice/internal/ast"
	"numlattice/internal/interp"
	"numlattice/internal/lex"
)

func parseSource(t *testing.T, src string) *ast.Module {
	t.Helper()
	tokens, err := lex.New(src).Tokenize()
	if err != nil {
		t.Fatalf("lex error: %v", err)
	}
	mod, err := Parse(tokens)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return mod
}

// TestFibonacciProgramParsesAndRuns feeds the fibonacci program through
// the real lexer and parser, rather than the hand-built AST
// cmd/numlatticec's demo uses, and checks the interpreter still
// produces the expected output.
func TestFibonacciProgramParsesAndRuns(t *testing.T) {
	src := `a = 0
b = 1
while a < 100:
    print(a)
    temp = b
    b = a + b
    a = temp
`
	mod := parseSource(t, src)

	var got []string
	it := interp.New(func(line string) { got = append(got, line) })
	if err := it.Run(mod); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"0", "1", "1", "2", "3", "5", "8", "13", "21", "34", "55", "89"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("line %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

// TestSAXPYKernelTextParsesToExpectedShape checks that a subscript-write
// kernel body parses into the same shape cmd/numlatticec's hand-built
// saxpyDemo() constructs, so the GPU backend's classifier sees an
// identical AST whether the source came from --file or --demo.
func TestSAXPYKernelTextParsesToExpectedShape(t *testing.T) {
	src := `def saxpy(a, x, y, out, n, tid):
    if tid < n:
        out[tid] = a * x[tid] + y[tid]
`
	mod := parseSource(t, src)
	if len(mod.Stmts) != 1 {
		t.Fatalf("expected exactly one top-level statement, got %d", len(mod.Stmts))
	}
	fn, ok := mod.Stmts[0].(*ast.FuncDef)
	if !ok {
		t.Fatalf("expected a FuncDef, got %T", mod.Stmts[0])
	}
	if fn.Name != "saxpy" || len(fn.Params) != 6 {
		t.Fatalf("unexpected signature: %+v", fn)
	}
	if len(fn.Body) != 1 {
		t.Fatalf("expected a single if statement in the body, got %d stmts", len(fn.Body))
	}
	ifStmt, ok := fn.Body[0].(*ast.If)
	if !ok {
		t.Fatalf("expected an If, got %T", fn.Body[0])
	}
	assign, ok := ifStmt.Then[0].(*ast.Assign)
	if !ok {
		t.Fatalf("expected an Assign inside the if body, got %T", ifStmt.Then[0])
	}
	if _, ok := assign.Targets[0].(*ast.Subscript); !ok {
		t.Fatalf("expected a Subscript assignment target, got %T", assign.Targets[0])
	}
}

func TestElifChainFoldsIntoNestedIf(t *testing.T) {
	src := `if x < 0:
    y = 0
elif x < 10:
    y = 1
else:
    y = 2
`
	mod := parseSource(t, src)
	top, ok := mod.Stmts[0].(*ast.If)
	if !ok {
		t.Fatalf("expected an If, got %T", mod.Stmts[0])
	}
	if len(top.Else) != 1 {
		t.Fatalf("expected elif folded into a single-statement Else body, got %d stmts", len(top.Else))
	}
	if _, ok := top.Else[0].(*ast.If); !ok {
		t.Fatalf("expected the Else body to hold a nested If, got %T", top.Else[0])
	}
}

func TestForRangeBecomesRangeFor(t *testing.T) {
	src := "for i in range(10):\n    pass\n"
	mod := parseSource(t, src)
	if _, ok := mod.Stmts[0].(*ast.RangeFor); !ok {
		t.Fatalf("expected a RangeFor, got %T", mod.Stmts[0])
	}
}

func TestForOverOtherIterableBecomesOtherFor(t *testing.T) {
	src := "for v in xs:\n    pass\n"
	mod := parseSource(t, src)
	if _, ok := mod.Stmts[0].(*ast.OtherFor); !ok {
		t.Fatalf("expected an OtherFor, got %T", mod.Stmts[0])
	}
}

func TestTernaryConditionalExpression(t *testing.T) {
	src := "x = 1 if a < b else 2\n"
	mod := parseSource(t, src)
	assign := mod.Stmts[0].(*ast.Assign)
	cond, ok := assign.Value.(*ast.Conditional)
	if !ok {
		t.Fatalf("expected a Conditional, got %T", assign.Value)
	}
	if _, ok := cond.Cond.(*ast.Compare); !ok {
		t.Fatalf("expected the ternary condition to be a Compare, got %T", cond.Cond)
	}
}

func TestOperatorPrecedenceBindsPowerTighterThanUnary(t *testing.T) {
	// -2 ** 2 == -(2 ** 2): unary minus must bind looser than power.
	src := "x = -2 ** 2\n"
	mod := parseSource(t, src)
	assign := mod.Stmts[0].(*ast.Assign)
	unary, ok := assign.Value.(*ast.Unary)
	if !ok || unary.Op != ast.Neg {
		t.Fatalf("expected a Neg Unary at the top, got %T", assign.Value)
	}
	if _, ok := unary.Operand.(*ast.Binary); !ok {
		t.Fatalf("expected ** to bind before unary minus, got %T", unary.Operand)
	}
}

func TestBitwiseOperatorsParse(t *testing.T) {
	src := "x = (a & b) | (c ^ d) << 2\n"
	mod := parseSource(t, src)
	assign := mod.Stmts[0].(*ast.Assign)
	top, ok := assign.Value.(*ast.Binary)
	if !ok || top.Op != ast.BitOr {
		t.Fatalf("expected a top-level BitOr, got %+v", assign.Value)
	}
}

func TestAugmentedAssignment(t *testing.T) {
	src := "total += 1\n"
	mod := parseSource(t, src)
	aug, ok := mod.Stmts[0].(*ast.AugAssign)
	if !ok {
		t.Fatalf("expected an AugAssign, got %T", mod.Stmts[0])
	}
	if aug.Target.Ident != "total" || aug.Op != ast.Add {
		t.Fatalf("unexpected AugAssign: %+v", aug)
	}
}

func TestChainedAssignmentSharesOneValue(t *testing.T) {
	src := "a = b = 1\n"
	mod := parseSource(t, src)
	assign, ok := mod.Stmts[0].(*ast.Assign)
	if !ok {
		t.Fatalf("expected an Assign, got %T", mod.Stmts[0])
	}
	if len(assign.Targets) != 2 {
		t.Fatalf("expected two chained targets, got %d", len(assign.Targets))
	}
}
