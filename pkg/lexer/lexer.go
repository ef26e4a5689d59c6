package lexer

import (
	"fmt"
	"strings"
)

// snippetLen is how much source an Error quotes from the failing offset.
const snippetLen = 20

// Error reports a character no token pattern matches.
type Error struct {
	Pos     int
	Snippet string
}

func (e *Error) Error() string {
	return fmt.Sprintf("unexpected character at position %d: '%s'", e.Pos, e.Snippet)
}

// Lexer tokenizes minic source text.
type Lexer struct {
	input string
	pos   int
}

// New creates a new lexer for the given input.
func New(input string) *Lexer {
	return &Lexer{input: input}
}

// Pos returns the current cursor offset.
func (l *Lexer) Pos() int {
	return l.pos
}

// NextToken returns the token starting at the cursor and moves past it.
// Once the input is exhausted every call returns an EOF token.
func (l *Lexer) NextToken() (Token, error) {
	l.skipWhitespace()

	if l.pos >= len(l.input) {
		return Token{Kind: KindEOF, Pos: l.pos}, nil
	}

	ch := l.input[l.pos]

	if isIdentStart(ch) {
		return l.readIdentifier(), nil
	}

	if isDigit(ch) {
		return l.readNumber(), nil
	}

	var kind Kind
	switch ch {
	case '+':
		kind = KindPlus
	case '-':
		kind = KindMinus
	case '*':
		kind = KindStar
	case '/':
		kind = KindSlash
	case '=':
		kind = KindAssign
	case ';':
		kind = KindSemicolon
	case ',':
		kind = KindComma
	case '(':
		kind = KindLParen
	case ')':
		kind = KindRParen
	case '{':
		kind = KindLBrace
	case '}':
		kind = KindRBrace
	default:
		return Token{}, l.errorAt(l.pos)
	}

	l.pos++
	return Token{Kind: kind, Lexeme: l.input[l.pos-1 : l.pos], Pos: l.pos - 1}, nil
}

// Tokenize drains the lexer and returns every token up to and including EOF.
func (l *Lexer) Tokenize() ([]Token, error) {
	var tokens []Token
	for {
		tok, err := l.NextToken()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Kind == KindEOF {
			return tokens, nil
		}
	}
}

// readIdentifier reads an identifier or keyword.
func (l *Lexer) readIdentifier() Token {
	start := l.pos
	for l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
		l.pos++
	}

	word := l.input[start:l.pos]
	if kind, ok := keywords[word]; ok {
		return Token{Kind: kind, Lexeme: word, Pos: start}
	}
	return Token{Kind: KindIdent, Lexeme: word, Pos: start}
}

// readNumber reads digits with an optional fractional part. A dot is only
// consumed when a digit follows it.
func (l *Lexer) readNumber() Token {
	start := l.pos
	for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
		l.pos++
	}
	if l.pos+1 < len(l.input) && l.input[l.pos] == '.' && isDigit(l.input[l.pos+1]) {
		l.pos++
		for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
			l.pos++
		}
	}
	return Token{Kind: KindNumber, Lexeme: l.input[start:l.pos], Pos: start}
}

func (l *Lexer) errorAt(pos int) *Error {
	end := pos + snippetLen
	if end > len(l.input) {
		end = len(l.input)
	}
	snippet := strings.ReplaceAll(l.input[pos:end], "\n", `\n`)
	return &Error{Pos: pos, Snippet: snippet}
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) && isSpace(l.input[l.pos]) {
		l.pos++
	}
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}

// LineCol converts a byte offset into a 1-based line and column.
func LineCol(src string, pos int) (line, col int) {
	if pos > len(src) {
		pos = len(src)
	}
	line = 1 + strings.Count(src[:pos], "\n")
	col = pos - strings.LastIndexByte(src[:pos], '\n')
	return line, col
}
