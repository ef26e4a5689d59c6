// Package lexer turns minic source text into tokens. It is pull-based: the
// parser asks for one token at a time with NextToken.
package lexer

// Kind represents the type of a lexical token.
type Kind int

const (
	// Keywords
	KindInt    Kind = iota // int
	KindFloat              // float
	KindReturn             // return
	KindPrint              // print

	// Identifiers and literals
	KindIdent  // identifier
	KindNumber // number literal, digits(.digits)?

	// Arithmetic
	KindPlus  // +
	KindMinus // -
	KindStar  // *
	KindSlash // /

	KindAssign    // =
	KindSemicolon // ;
	KindComma     // ,

	// Brackets
	KindLParen // (
	KindRParen // )
	KindLBrace // {
	KindRBrace // }

	// Special
	KindEOF // end of input
)

// Token represents a single lexical token.
type Token struct {
	Kind   Kind
	Lexeme string // raw source text
	Pos    int    // byte offset in source
}

// keywords maps reserved words to their token kinds. Identifiers are
// scanned first and then looked up here, so "integer" stays an identifier.
var keywords = map[string]Kind{
	"int":    KindInt,
	"float":  KindFloat,
	"return": KindReturn,
	"print":  KindPrint,
}

// String returns a debug-friendly representation of the token kind.
func (k Kind) String() string {
	switch k {
	case KindInt:
		return "INT_KW"
	case KindFloat:
		return "FLOAT_KW"
	case KindReturn:
		return "RETURN_KW"
	case KindPrint:
		return "PRINT_KW"
	case KindIdent:
		return "ID"
	case KindNumber:
		return "NUM"
	case KindPlus:
		return "PLUS"
	case KindMinus:
		return "MINUS"
	case KindStar:
		return "STAR"
	case KindSlash:
		return "SLASH"
	case KindAssign:
		return "ASSIGN"
	case KindSemicolon:
		return "SEMI"
	case KindComma:
		return "COMMA"
	case KindLParen:
		return "LPAREN"
	case KindRParen:
		return "RPAREN"
	case KindLBrace:
		return "LBRACE"
	case KindRBrace:
		return "RBRACE"
	case KindEOF:
		return "EOF"
	default:
		return "UNKNOWN"
	}
}

// Describe returns the source spelling of a kind for diagnostics, e.g.
// "';'" for KindSemicolon or "identifier" for KindIdent.
func (k Kind) Describe() string {
	switch k {
	case KindInt:
		return "'int'"
	case KindFloat:
		return "'float'"
	case KindReturn:
		return "'return'"
	case KindPrint:
		return "'print'"
	case KindIdent:
		return "identifier"
	case KindNumber:
		return "number"
	case KindPlus:
		return "'+'"
	case KindMinus:
		return "'-'"
	case KindStar:
		return "'*'"
	case KindSlash:
		return "'/'"
	case KindAssign:
		return "'='"
	case KindSemicolon:
		return "';'"
	case KindComma:
		return "','"
	case KindLParen:
		return "'('"
	case KindRParen:
		return "')'"
	case KindLBrace:
		return "'{'"
	case KindRBrace:
		return "'}'"
	case KindEOF:
		return "end of input"
	default:
		return "unknown token"
	}
}
