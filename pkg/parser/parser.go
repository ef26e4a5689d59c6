// Package parser builds minic ASTs with a single-token-lookahead recursive
// descent over a pull-based lexer.
package parser

import (
	"fmt"

	"github.com/lemonberrylabs/minic/pkg/ast"
	"github.com/lemonberrylabs/minic/pkg/lexer"
)

// MaxSourceSize is the maximum program source size in bytes (128 KB).
const MaxSourceSize = 128 * 1024

// MaxNestingDepth bounds expression nesting (parentheses and call
// arguments) so deeply nested input fails cleanly instead of exhausting
// the stack.
const MaxNestingDepth = 512

// ParseError represents the first grammar mismatch in a program.
type ParseError struct {
	Expected string     // e.g. "';'" or "identifier, number or '('"
	Got      lexer.Kind // kind of the offending token
	Lexeme   string     // text of the offending token
	Pos      int        // byte offset of the offending token

	// Message replaces the expected/got description for limit violations.
	Message string
}

func (e *ParseError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("parse error at position %d: %s", e.Pos, e.Message)
	}
	return fmt.Sprintf("expected %s but got %s ('%s') at position %d", e.Expected, e.Got, e.Lexeme, e.Pos)
}

// statement is a node legal both inside a block and at top level.
type statement interface {
	ast.Stmt
	ast.TopLevel
}

// Parser is a recursive descent parser for minic programs.
type Parser struct {
	lex   *lexer.Lexer
	cur   lexer.Token
	depth int
}

// Parse parses a complete program.
func Parse(src string) (*ast.Program, error) {
	if len(src) > MaxSourceSize {
		return nil, &ParseError{Message: fmt.Sprintf("source size %d exceeds maximum %d bytes", len(src), MaxSourceSize)}
	}
	p, err := New(src)
	if err != nil {
		return nil, err
	}
	return p.Parse()
}

// New creates a parser and reads the first token.
func New(src string) (*Parser, error) {
	p := &Parser{lex: lexer.New(src)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

// Parse consumes the whole token stream and returns the program.
func (p *Parser) Parse() (*ast.Program, error) {
	prog := &ast.Program{}
	for p.cur.Kind != lexer.KindEOF {
		item, err := p.parseTopLevel()
		if err != nil {
			return nil, err
		}
		prog.Items = append(prog.Items, item)
	}
	return prog, nil
}

// advance moves to the next token.
func (p *Parser) advance() error {
	tok, err := p.lex.NextToken()
	if err != nil {
		return fmt.Errorf("lexer error: %w", err)
	}
	p.cur = tok
	return nil
}

// at reports whether the current token has the given kind.
func (p *Parser) at(kind lexer.Kind) bool {
	return p.cur.Kind == kind
}

// expect consumes a token of the expected kind or returns a ParseError.
func (p *Parser) expect(kind lexer.Kind) (lexer.Token, error) {
	if !p.at(kind) {
		return p.cur, p.errorExpected(kind.Describe())
	}
	tok := p.cur
	if err := p.advance(); err != nil {
		return tok, err
	}
	return tok, nil
}

func (p *Parser) errorExpected(expected string) *ParseError {
	return &ParseError{
		Expected: expected,
		Got:      p.cur.Kind,
		Lexeme:   p.cur.Lexeme,
		Pos:      p.cur.Pos,
	}
}

func (p *Parser) atType() bool {
	return p.at(lexer.KindInt) || p.at(lexer.KindFloat)
}

// parseTopLevel parses a declaration, function or statement. `Type id` is
// shared by declarations and functions; a following '(' selects a function.
func (p *Parser) parseTopLevel() (ast.TopLevel, error) {
	if !p.atType() {
		return p.parseStatement()
	}

	pos := p.cur.Pos
	typ, err := p.parseType()
	if err != nil {
		return nil, err
	}
	name, err := p.expect(lexer.KindIdent)
	if err != nil {
		return nil, err
	}

	if p.at(lexer.KindLParen) {
		return p.parseFuncRest(pos, typ, name.Lexeme)
	}

	if _, err := p.expect(lexer.KindSemicolon); err != nil {
		return nil, err
	}
	return &ast.VarDecl{Pos: pos, Type: typ, Name: name.Lexeme}, nil
}

// parseFuncRest parses `'(' Params? ')' Block` after `Type id`.
func (p *Parser) parseFuncRest(pos int, ret ast.Type, name string) (*ast.FuncDecl, error) {
	if _, err := p.expect(lexer.KindLParen); err != nil {
		return nil, err
	}
	params, err := p.parseParams()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.KindRParen); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.FuncDecl{Pos: pos, ReturnType: ret, Name: name, Params: params, Body: body}, nil
}

// parseParams parses an optional `Type id (',' Type id)*` list.
func (p *Parser) parseParams() ([]ast.Param, error) {
	var params []ast.Param
	if !p.atType() {
		return params, nil
	}
	for {
		pos := p.cur.Pos
		typ, err := p.parseType()
		if err != nil {
			return nil, err
		}
		name, err := p.expect(lexer.KindIdent)
		if err != nil {
			return nil, err
		}
		params = append(params, ast.Param{Pos: pos, Type: typ, Name: name.Lexeme})

		if !p.at(lexer.KindComma) {
			return params, nil
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
}

func (p *Parser) parseType() (ast.Type, error) {
	switch p.cur.Kind {
	case lexer.KindInt:
		return ast.TypeInt, p.advance()
	case lexer.KindFloat:
		return ast.TypeFloat, p.advance()
	default:
		return 0, p.errorExpected("'int' or 'float'")
	}
}

// parseBlock parses `'{' (VarDecl | PrintStmt | ReturnStmt | Stmt)* '}'`.
func (p *Parser) parseBlock() (*ast.Block, error) {
	open, err := p.expect(lexer.KindLBrace)
	if err != nil {
		return nil, err
	}

	block := &ast.Block{Pos: open.Pos}
	for !p.at(lexer.KindRBrace) {
		if p.at(lexer.KindEOF) {
			return nil, p.errorExpected(lexer.KindRBrace.Describe())
		}

		var stmt ast.Stmt
		if p.atType() {
			stmt, err = p.parseVarDecl()
		} else {
			stmt, err = p.parseStatement()
		}
		if err != nil {
			return nil, err
		}
		block.Stmts = append(block.Stmts, stmt)
	}

	if _, err := p.expect(lexer.KindRBrace); err != nil {
		return nil, err
	}
	return block, nil
}

// parseVarDecl parses `Type id ';'`.
func (p *Parser) parseVarDecl() (*ast.VarDecl, error) {
	pos := p.cur.Pos
	typ, err := p.parseType()
	if err != nil {
		return nil, err
	}
	name, err := p.expect(lexer.KindIdent)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.KindSemicolon); err != nil {
		return nil, err
	}
	return &ast.VarDecl{Pos: pos, Type: typ, Name: name.Lexeme}, nil
}

// parseStatement parses PrintStmt | ReturnStmt | id '=' Expr ';' | Expr ';'.
func (p *Parser) parseStatement() (statement, error) {
	switch p.cur.Kind {
	case lexer.KindPrint:
		return p.parsePrint()
	case lexer.KindReturn:
		return p.parseReturn()
	case lexer.KindIdent:
		return p.parseIdentStatement()
	}

	pos := p.cur.Pos
	x, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.KindSemicolon); err != nil {
		return nil, err
	}
	return &ast.ExprStmt{Pos: pos, X: x}, nil
}

// parseIdentStatement handles statements led by an identifier. Once the
// identifier is consumed, '=' selects an assignment; anything else makes
// the identifier (or call) the leftmost operand of an expression statement.
func (p *Parser) parseIdentStatement() (statement, error) {
	name := p.cur
	if err := p.advance(); err != nil {
		return nil, err
	}

	if p.at(lexer.KindAssign) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.KindSemicolon); err != nil {
			return nil, err
		}
		return &ast.Assign{Pos: name.Pos, Name: name.Lexeme, Value: value}, nil
	}

	left, err := p.parseIdentTail(name)
	if err != nil {
		return nil, err
	}
	left, err = p.parseMultiplicationRest(left)
	if err != nil {
		return nil, err
	}
	x, err := p.parseAdditionRest(left)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.KindSemicolon); err != nil {
		return nil, err
	}
	return &ast.ExprStmt{Pos: name.Pos, X: x}, nil
}

// parsePrint parses `'print' '(' Expr ')' ';'`.
func (p *Parser) parsePrint() (*ast.Print, error) {
	kw, err := p.expect(lexer.KindPrint)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.KindLParen); err != nil {
		return nil, err
	}
	value, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.KindRParen); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.KindSemicolon); err != nil {
		return nil, err
	}
	return &ast.Print{Pos: kw.Pos, Value: value}, nil
}

// parseReturn parses `'return' Expr? ';'`.
func (p *Parser) parseReturn() (*ast.Return, error) {
	kw, err := p.expect(lexer.KindReturn)
	if err != nil {
		return nil, err
	}
	ret := &ast.Return{Pos: kw.Pos}
	if !p.at(lexer.KindSemicolon) {
		ret.Value, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(lexer.KindSemicolon); err != nil {
		return nil, err
	}
	return ret, nil
}

// parseExpression is the entry point for expressions.
// Precedence (low to high):
//
//	+, -
//	*, /
//	identifier, call, number, parenthesized expression
func (p *Parser) parseExpression() (ast.Expr, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > MaxNestingDepth {
		return nil, &ParseError{
			Got:     p.cur.Kind,
			Lexeme:  p.cur.Lexeme,
			Pos:     p.cur.Pos,
			Message: fmt.Sprintf("expression nesting exceeds maximum depth of %d", MaxNestingDepth),
		}
	}

	left, err := p.parseMultiplication()
	if err != nil {
		return nil, err
	}
	return p.parseAdditionRest(left)
}

// parseAdditionRest folds `(('+'|'-') Term)*` onto left.
func (p *Parser) parseAdditionRest(left ast.Expr) (ast.Expr, error) {
	for p.at(lexer.KindPlus) || p.at(lexer.KindMinus) {
		op := ast.OpAdd
		if p.at(lexer.KindMinus) {
			op = ast.OpSub
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseMultiplication()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryOp{Pos: left.Position(), Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseMultiplication() (ast.Expr, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	return p.parseMultiplicationRest(left)
}

// parseMultiplicationRest folds `(('*'|'/') Factor)*` onto left.
func (p *Parser) parseMultiplicationRest(left ast.Expr) (ast.Expr, error) {
	for p.at(lexer.KindStar) || p.at(lexer.KindSlash) {
		op := ast.OpMul
		if p.at(lexer.KindSlash) {
			op = ast.OpDiv
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryOp{Pos: left.Position(), Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseFactor() (ast.Expr, error) {
	tok := p.cur

	switch tok.Kind {
	case lexer.KindIdent:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return p.parseIdentTail(tok)
	case lexer.KindNumber:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.Number{Pos: tok.Pos, Text: tok.Lexeme}, nil
	case lexer.KindLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		x, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.KindRParen); err != nil {
			return nil, err
		}
		return x, nil
	default:
		return nil, p.errorExpected("identifier, number or '('")
	}
}

// parseIdentTail turns an already consumed identifier into a call when an
// argument list follows, or a plain variable reference otherwise.
func (p *Parser) parseIdentTail(name lexer.Token) (ast.Expr, error) {
	if !p.at(lexer.KindLParen) {
		return &ast.Ident{Pos: name.Pos, Name: name.Lexeme}, nil
	}
	args, err := p.parseArgList()
	if err != nil {
		return nil, err
	}
	return &ast.Call{Pos: name.Pos, Func: name.Lexeme, Args: args}, nil
}

// parseArgList parses `'(' (Expr (',' Expr)*)? ')'`.
func (p *Parser) parseArgList() ([]ast.Expr, error) {
	if _, err := p.expect(lexer.KindLParen); err != nil {
		return nil, err
	}

	var args []ast.Expr
	if !p.at(lexer.KindRParen) {
		for {
			arg, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if !p.at(lexer.KindComma) {
				break
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}

	if _, err := p.expect(lexer.KindRParen); err != nil {
		return nil, err
	}
	return args, nil
}
