package lex

import "testing"

func typesOf(tokens []Token) []TokenType {
	out := make([]TokenType, len(tokens))
	for i, t := range tokens {
		out[i] = t.Type
	}
	return out
}

func TestIndentDedentAroundWhileBody(t *testing.T) {
	src := "a = 0\nwhile a < 100:\n    print(a)\n    a = a + 1\n"
	tokens, err := New(src).Tokenize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	types := typesOf(tokens)

	want := []TokenType{
		Ident, Eq, Int, Newline,
		KwWhile, Ident, Lt, Int, Colon, Newline,
		Indent,
		Ident, LParen, Ident, RParen, Newline,
		Ident, Eq, Ident, Plus, Int, Newline,
		Dedent,
		EOF,
	}
	if len(types) != len(want) {
		t.Fatalf("got %d tokens %v, want %d tokens %v", len(types), types, len(want), want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("token %d: got %s, want %s (full: %v)", i, types[i], want[i], types)
		}
	}
}

func TestNestedIndentationProducesMatchingDedents(t *testing.T) {
	src := "def f(x):\n    if x:\n        return 1\n    return 0\n"
	tokens, err := New(src).Tokenize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var indents, dedents int
	for _, tok := range tokens {
		switch tok.Type {
		case Indent:
			indents++
		case Dedent:
			dedents++
		}
	}
	if indents != 2 || dedents != 2 {
		t.Fatalf("expected 2 INDENT and 2 DEDENT, got %d and %d", indents, dedents)
	}
}

func TestBlankAndCommentLinesIgnoredForLayout(t *testing.T) {
	src := "x = 1\n\n# a comment\n\ny = 2\n"
	tokens, err := New(src).Tokenize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, tok := range tokens {
		if tok.Type == Indent || tok.Type == Dedent {
			t.Fatalf("blank/comment lines must not affect indentation, got %v", typesOf(tokens))
		}
	}
}

func TestFloatAndIntLiteralsClassified(t *testing.T) {
	tokens, err := New("1 2.5 3e2\n").Tokenize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []TokenType{Int, Float, Float, Newline, EOF}
	got := typesOf(tokens)
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestOperatorsAndAugAssign(t *testing.T) {
	tokens, err := New("x += 1\ny //= 2\nz **= 3\n").Tokenize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var ops []TokenType
	for _, tok := range tokens {
		switch tok.Type {
		case PlusEq, SlashSl, StarStar:
			ops = append(ops, tok.Type)
		}
	}
	if len(ops) != 3 {
		t.Fatalf("expected to find +=, //, ** tokens, got %v", typesOf(tokens))
	}
}
