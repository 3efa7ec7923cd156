// Package parse implements the recursive-descent, precedence-climbing
// parser the front end needs to turn a token stream into the
// *ast.Module the rest of the compiler walks: keyword dispatch in
// statement(), a precedence ladder driving expression(), and the
// INDENT/DEDENT/NEWLINE layout tokens from internal/lex in place of
// brace and semicolon punctuation.
package parse

import (
	"fmt"

	"numlattice/internal/ast"
	"numlattice/internal/lex"
)

// Parser walks a token stream and builds an *ast.Module. A syntax error
// is an expected failure mode, so every parse method returns an error
// explicitly rather than panicking; every call site checks its error
// before consuming the result.
type Parser struct {
	tokens  []lex.Token
	current int
}

// New creates a Parser over an already-lexed token stream.
func New(tokens []lex.Token) *Parser {
	return &Parser{tokens: tokens}
}

// Parse parses a complete module: a flat list of top-level statements.
func Parse(tokens []lex.Token) (*ast.Module, error) {
	return New(tokens).Parse()
}

// Parse is the entry point: every top-level statement until EOF.
func (p *Parser) Parse() (*ast.Module, error) {
	mod := &ast.Module{}
	p.skipBlankLines()
	for !p.check(lex.EOF) {
		stmt, err := p.statement()
		if err != nil {
			return nil, err
		}
		mod.Stmts = append(mod.Stmts, stmt)
		p.skipBlankLines()
	}
	return mod, nil
}

func (p *Parser) skipBlankLines() {
	for p.check(lex.Newline) {
		p.advance()
	}
}

// block parses an INDENT, one-or-more statements, then a DEDENT — the
// body of any compound statement.
func (p *Parser) block() ([]ast.Stmt, error) {
	if _, err := p.consume(lex.Newline, "expected newline before an indented block"); err != nil {
		return nil, err
	}
	if _, err := p.consume(lex.Indent, "expected an indented block"); err != nil {
		return nil, err
	}
	var stmts []ast.Stmt
	for !p.check(lex.Dedent) && !p.check(lex.EOF) {
		stmt, err := p.statement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
		p.skipBlankLines()
	}
	if _, err := p.consume(lex.Dedent, "expected dedent closing block"); err != nil {
		return nil, err
	}
	return stmts, nil
}

func (p *Parser) statement() (ast.Stmt, error) {
	switch p.peek().Type {
	case lex.KwDef:
		return p.funcDef()
	case lex.KwIf:
		return p.ifStmt()
	case lex.KwWhile:
		return p.whileStmt()
	case lex.KwFor:
		return p.forStmt()
	case lex.KwReturn:
		return p.returnStmt()
	case lex.KwPass:
		p.advance()
		return p.finishSimple(&ast.Pass{})
	case lex.KwBreak:
		p.advance()
		return p.finishSimple(&ast.Break{})
	case lex.KwContinue:
		p.advance()
		return p.finishSimple(&ast.Continue{})
	default:
		return p.simpleStmt()
	}
}

// finishSimple consumes the trailing NEWLINE after a bare keyword
// statement (pass/break/continue) and returns stmt.
func (p *Parser) finishSimple(stmt ast.Stmt) (ast.Stmt, error) {
	if _, err := p.consume(lex.Newline, "expected newline after statement"); err != nil {
		return nil, err
	}
	return stmt, nil
}

// simpleStmt parses an assignment chain, an augmented assignment, or a
// bare expression statement, distinguished by the token that follows
// the first parsed expression.
func (p *Parser) simpleStmt() (ast.Stmt, error) {
	first, err := p.expression()
	if err != nil {
		return nil, err
	}
	if augOp, ok := augAssignOp(p.peek().Type); ok {
		name, ok := first.(*ast.Name)
		if !ok {
			return nil, p.errorf("augmented assignment target must be a name")
		}
		p.advance()
		value, err := p.expression()
		if err != nil {
			return nil, err
		}
		if _, err := p.consume(lex.Newline, "expected newline after statement"); err != nil {
			return nil, err
		}
		return &ast.AugAssign{Target: name, Op: augOp, Value: value}, nil
	}
	if p.check(lex.Eq) {
		targets := []ast.Expr{first}
		var value ast.Expr
		for p.match(lex.Eq) {
			next, err := p.expression()
			if err != nil {
				return nil, err
			}
			if p.check(lex.Eq) {
				targets = append(targets, next)
				continue
			}
			value = next
			break
		}
		if value == nil {
			return nil, p.errorf("expected an expression after '='")
		}
		if _, err := p.consume(lex.Newline, "expected newline after statement"); err != nil {
			return nil, err
		}
		return &ast.Assign{Targets: targets, Value: value}, nil
	}
	if _, err := p.consume(lex.Newline, "expected newline after statement"); err != nil {
		return nil, err
	}
	return &ast.ExprStmt{X: first}, nil
}

func augAssignOp(t lex.TokenType) (ast.BinOp, bool) {
	switch t {
	case lex.PlusEq:
		return ast.Add, true
	case lex.MinusEq:
		return ast.Sub, true
	case lex.StarEq:
		return ast.Mul, true
	case lex.SlashEq:
		return ast.TrueDiv, true
	case lex.PercentEq:
		return ast.Mod, true
	default:
		return "", false
	}
}

func (p *Parser) returnStmt() (ast.Stmt, error) {
	p.advance()
	if p.check(lex.Newline) {
		p.advance()
		return &ast.Return{}, nil
	}
	value, err := p.expression()
	if err != nil {
		return nil, err
	}
	if _, err := p.consume(lex.Newline, "expected newline after return"); err != nil {
		return nil, err
	}
	return &ast.Return{Value: value}, nil
}

// funcDef parses `def name(params):` followed by an indented body.
// Parameter type annotations (`x: FLOAT`) are accepted and discarded:
// internal/ast.FuncDef carries no per-parameter type, since every
// parameter's type is recovered by internal/infer instead.
func (p *Parser) funcDef() (ast.Stmt, error) {
	p.advance()
	nameTok, err := p.consume(lex.Ident, "expected a function name")
	if err != nil {
		return nil, err
	}
	if _, err := p.consume(lex.LParen, "expected '(' after function name"); err != nil {
		return nil, err
	}
	var params []string
	for !p.check(lex.RParen) {
		paramTok, err := p.consume(lex.Ident, "expected a parameter name")
		if err != nil {
			return nil, err
		}
		params = append(params, paramTok.Lexeme)
		if p.match(lex.Colon) {
			if _, err := p.consume(lex.Ident, "expected a type annotation"); err != nil {
				return nil, err
			}
		}
		if !p.match(lex.Comma) {
			break
		}
	}
	if _, err := p.consume(lex.RParen, "expected ')' after parameters"); err != nil {
		return nil, err
	}
	if p.match(lex.Minus) {
		// `-> TYPE` return annotation: accepted and discarded, same as
		// parameter annotations.
		if _, err := p.consume(lex.Gt, "expected '>' after '-' in a return annotation"); err != nil {
			return nil, err
		}
		if _, err := p.consume(lex.Ident, "expected a return type"); err != nil {
			return nil, err
		}
	}
	if _, err := p.consume(lex.Colon, "expected ':' after function signature"); err != nil {
		return nil, err
	}
	body, err := p.block()
	if err != nil {
		return nil, err
	}
	return &ast.FuncDef{Name: nameTok.Lexeme, Params: params, Body: body}, nil
}

// ifStmt parses if/elif/else, folding each elif into a single-statement
// Else body holding a nested *ast.If.
func (p *Parser) ifStmt() (ast.Stmt, error) {
	p.advance()
	cond, err := p.expression()
	if err != nil {
		return nil, err
	}
	if _, err := p.consume(lex.Colon, "expected ':' after if condition"); err != nil {
		return nil, err
	}
	then, err := p.block()
	if err != nil {
		return nil, err
	}
	elseBody, err := p.elifOrElse()
	if err != nil {
		return nil, err
	}
	return &ast.If{Cond: cond, Then: then, Else: elseBody}, nil
}

func (p *Parser) elifOrElse() ([]ast.Stmt, error) {
	switch p.peek().Type {
	case lex.KwElif:
		p.advance()
		cond, err := p.expression()
		if err != nil {
			return nil, err
		}
		if _, err := p.consume(lex.Colon, "expected ':' after elif condition"); err != nil {
			return nil, err
		}
		then, err := p.block()
		if err != nil {
			return nil, err
		}
		nested, err := p.elifOrElse()
		if err != nil {
			return nil, err
		}
		return []ast.Stmt{&ast.If{Cond: cond, Then: then, Else: nested}}, nil
	case lex.KwElse:
		p.advance()
		if _, err := p.consume(lex.Colon, "expected ':' after else"); err != nil {
			return nil, err
		}
		return p.block()
	default:
		return nil, nil
	}
}

func (p *Parser) whileStmt() (ast.Stmt, error) {
	p.advance()
	cond, err := p.expression()
	if err != nil {
		return nil, err
	}
	if _, err := p.consume(lex.Colon, "expected ':' after while condition"); err != nil {
		return nil, err
	}
	body, err := p.block()
	if err != nil {
		return nil, err
	}
	return &ast.While{Cond: cond, Body: body}, nil
}

// forStmt parses `for VAR in ITER:`. An ITER that is a direct call to
// range(...) becomes an *ast.RangeFor; anything else becomes an
// *ast.OtherFor, an always-unsupported shape at emission time (it is
// accepted here only so the interpreter path and --target ast can
// still show it).
func (p *Parser) forStmt() (ast.Stmt, error) {
	p.advance()
	varTok, err := p.consume(lex.Ident, "expected a loop variable")
	if err != nil {
		return nil, err
	}
	if _, err := p.consume(lex.KwIn, "expected 'in' after loop variable"); err != nil {
		return nil, err
	}
	iter, err := p.expression()
	if err != nil {
		return nil, err
	}
	if _, err := p.consume(lex.Colon, "expected ':' after for clause"); err != nil {
		return nil, err
	}
	body, err := p.block()
	if err != nil {
		return nil, err
	}
	if call, ok := iter.(*ast.Call); ok && call.Callee == "range" {
		return &ast.RangeFor{Var: varTok.Lexeme, Args: call.Args, Body: body}, nil
	}
	return &ast.OtherFor{Var: varTok.Lexeme, Iter: iter, Body: body}, nil
}

// --- expression parsing, precedence climbing low to high ---
//
// conditional > or > and > not > comparison > bitor > bitxor > bitand
// > shift > arith > term > factor/unary > power (right-assoc) > atom+trailer

func (p *Parser) expression() (ast.Expr, error) { return p.conditional() }

func (p *Parser) conditional() (ast.Expr, error) {
	then, err := p.orExpr()
	if err != nil {
		return nil, err
	}
	if !p.match(lex.KwIf) {
		return then, nil
	}
	cond, err := p.orExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.consume(lex.KwElse, "expected 'else' in a conditional expression"); err != nil {
		return nil, err
	}
	elseExpr, err := p.conditional()
	if err != nil {
		return nil, err
	}
	return &ast.Conditional{Cond: cond, Then: then, Else: elseExpr}, nil
}

func (p *Parser) orExpr() (ast.Expr, error) {
	left, err := p.andExpr()
	if err != nil {
		return nil, err
	}
	for p.match(lex.KwOr) {
		right, err := p.andExpr()
		if err != nil {
			return nil, err
		}
		left = &ast.Logical{Op: ast.Or, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) andExpr() (ast.Expr, error) {
	left, err := p.notExpr()
	if err != nil {
		return nil, err
	}
	for p.match(lex.KwAnd) {
		right, err := p.notExpr()
		if err != nil {
			return nil, err
		}
		left = &ast.Logical{Op: ast.And, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) notExpr() (ast.Expr, error) {
	if p.match(lex.KwNot) {
		operand, err := p.notExpr()
		if err != nil {
			return nil, err
		}
		return &ast.Unary{Op: ast.Not, Operand: operand}, nil
	}
	return p.comparison()
}

var cmpOps = map[lex.TokenType]ast.CmpOp{
	lex.EqEq: ast.Eq, lex.Ne: ast.Ne, lex.Lt: ast.Lt,
	lex.Le: ast.Le, lex.Gt: ast.Gt, lex.Ge: ast.Ge,
}

func (p *Parser) comparison() (ast.Expr, error) {
	first, err := p.bitorExpr()
	if err != nil {
		return nil, err
	}
	operands := []ast.Expr{first}
	var ops []ast.CmpOp
	for {
		op, ok := cmpOps[p.peek().Type]
		if !ok {
			break
		}
		p.advance()
		next, err := p.bitorExpr()
		if err != nil {
			return nil, err
		}
		operands = append(operands, next)
		ops = append(ops, op)
	}
	if len(ops) == 0 {
		return first, nil
	}
	return &ast.Compare{Operands: operands, Ops: ops}, nil
}

func (p *Parser) bitorExpr() (ast.Expr, error) {
	left, err := p.bitxorExpr()
	if err != nil {
		return nil, err
	}
	for p.match(lex.Pipe) {
		right, err := p.bitxorExpr()
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{Op: ast.BitOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) bitxorExpr() (ast.Expr, error) {
	left, err := p.bitandExpr()
	if err != nil {
		return nil, err
	}
	for p.match(lex.Caret) {
		right, err := p.bitandExpr()
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{Op: ast.BitXor, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) bitandExpr() (ast.Expr, error) {
	left, err := p.shiftExpr()
	if err != nil {
		return nil, err
	}
	for p.match(lex.Amp) {
		right, err := p.shiftExpr()
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{Op: ast.BitAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) shiftExpr() (ast.Expr, error) {
	left, err := p.arithExpr()
	if err != nil {
		return nil, err
	}
	for {
		var op ast.BinOp
		switch p.peek().Type {
		case lex.Shl:
			op = ast.Shl
		case lex.Shr:
			op = ast.Shr
		default:
			return left, nil
		}
		p.advance()
		right, err := p.arithExpr()
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{Op: op, Left: left, Right: right}
	}
}

func (p *Parser) arithExpr() (ast.Expr, error) {
	left, err := p.termExpr()
	if err != nil {
		return nil, err
	}
	for {
		var op ast.BinOp
		switch p.peek().Type {
		case lex.Plus:
			op = ast.Add
		case lex.Minus:
			op = ast.Sub
		default:
			return left, nil
		}
		p.advance()
		right, err := p.termExpr()
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{Op: op, Left: left, Right: right}
	}
}

func (p *Parser) termExpr() (ast.Expr, error) {
	left, err := p.factor()
	if err != nil {
		return nil, err
	}
	for {
		var op ast.BinOp
		switch p.peek().Type {
		case lex.Star:
			op = ast.Mul
		case lex.Slash:
			op = ast.TrueDiv
		case lex.SlashSl:
			op = ast.FloorDiv
		case lex.Percent:
			op = ast.Mod
		default:
			return left, nil
		}
		p.advance()
		right, err := p.factor()
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{Op: op, Left: left, Right: right}
	}
}

func (p *Parser) factor() (ast.Expr, error) {
	switch p.peek().Type {
	case lex.Minus:
		p.advance()
		operand, err := p.factor()
		if err != nil {
			return nil, err
		}
		return &ast.Unary{Op: ast.Neg, Operand: operand}, nil
	case lex.Plus:
		p.advance()
		operand, err := p.factor()
		if err != nil {
			return nil, err
		}
		return &ast.Unary{Op: ast.Pos, Operand: operand}, nil
	default:
		return p.power()
	}
}

// power is right-associative: 2 ** 3 ** 2 == 2 ** (3 ** 2).
func (p *Parser) power() (ast.Expr, error) {
	base, err := p.atomTrailer()
	if err != nil {
		return nil, err
	}
	if p.match(lex.StarStar) {
		exp, err := p.factor()
		if err != nil {
			return nil, err
		}
		return &ast.Binary{Op: ast.Pow, Left: base, Right: exp}, nil
	}
	return base, nil
}

func (p *Parser) atomTrailer() (ast.Expr, error) {
	expr, err := p.atom()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().Type {
		case lex.LParen:
			name, ok := expr.(*ast.Name)
			if !ok {
				return nil, p.errorf("only a bare name may be called")
			}
			p.advance()
			args, err := p.argList()
			if err != nil {
				return nil, err
			}
			if _, err := p.consume(lex.RParen, "expected ')' after call arguments"); err != nil {
				return nil, err
			}
			expr = &ast.Call{Callee: name.Ident, Args: args}
		case lex.LBracket:
			p.advance()
			index, err := p.expression()
			if err != nil {
				return nil, err
			}
			if _, err := p.consume(lex.RBracket, "expected ']' after subscript index"); err != nil {
				return nil, err
			}
			expr = &ast.Subscript{Container: expr, Index: index}
		default:
			return expr, nil
		}
	}
}

func (p *Parser) argList() ([]ast.Expr, error) {
	var args []ast.Expr
	if p.check(lex.RParen) {
		return args, nil
	}
	for {
		arg, err := p.expression()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if !p.match(lex.Comma) {
			break
		}
	}
	return args, nil
}

func (p *Parser) atom() (ast.Expr, error) {
	tok := p.peek()
	switch tok.Type {
	case lex.Int:
		p.advance()
		var v int64
		if _, err := fmt.Sscanf(tok.Lexeme, "%d", &v); err != nil {
			return nil, p.errorf("invalid integer literal %q", tok.Lexeme)
		}
		return &ast.IntLit{Value: v}, nil
	case lex.Float:
		p.advance()
		var v float64
		if _, err := fmt.Sscanf(tok.Lexeme, "%g", &v); err != nil {
			return nil, p.errorf("invalid float literal %q", tok.Lexeme)
		}
		return &ast.FloatLit{Value: v}, nil
	case lex.String:
		p.advance()
		return &ast.StringLit{Value: tok.Lexeme}, nil
	case lex.KwTrue:
		p.advance()
		return &ast.BoolLit{Value: true}, nil
	case lex.KwFalse:
		p.advance()
		return &ast.BoolLit{Value: false}, nil
	case lex.Ident:
		p.advance()
		return &ast.Name{Ident: tok.Lexeme}, nil
	case lex.LParen:
		p.advance()
		inner, err := p.expression()
		if err != nil {
			return nil, err
		}
		if _, err := p.consume(lex.RParen, "expected ')' after a parenthesized expression"); err != nil {
			return nil, err
		}
		return inner, nil
	default:
		return nil, p.errorf("unexpected token %s in expression", tok)
	}
}

// --- cursor helpers ---

func (p *Parser) match(t lex.TokenType) bool {
	if p.check(t) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) check(t lex.TokenType) bool {
	return p.peek().Type == t
}

func (p *Parser) consume(t lex.TokenType, msg string) (lex.Token, error) {
	if p.check(t) {
		return p.advance(), nil
	}
	return lex.Token{}, p.errorf("%s (got %s)", msg, p.peek())
}

func (p *Parser) advance() lex.Token {
	tok := p.tokens[p.current]
	if p.current < len(p.tokens)-1 {
		p.current++
	}
	return tok
}

func (p *Parser) peek() lex.Token {
	return p.tokens[p.current]
}

func (p *Parser) errorf(format string, args ...interface{}) error {
	line := p.peek().Line
	return fmt.Errorf("parse: line %d: %s", line, fmt.Sprintf(format, args...))
}
