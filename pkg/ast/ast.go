// Package ast defines the Abstract Syntax Tree types for parsed minic
// programs. These types represent the structure of a program after parsing
// and before interpretation. Nodes are never mutated once built.
//
// Expr, Stmt and TopLevel are closed: their marker methods are unexported,
// so only the node types declared here can satisfy them.
package ast

// Type is a declared variable, parameter or return type.
type Type int

const (
	TypeInt Type = iota
	TypeFloat
)

// String returns the source spelling of the type.
func (t Type) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	default:
		return "unknown"
	}
}

// Op is a binary arithmetic operator.
type Op byte

const (
	OpAdd Op = '+'
	OpSub Op = '-'
	OpMul Op = '*'
	OpDiv Op = '/'
)

// String returns the operator symbol.
func (o Op) String() string {
	return string(o)
}

// Node is implemented by every AST node.
type Node interface {
	// Position returns the byte offset of the node's first token.
	Position() int
}

// Expr is an expression node.
type Expr interface {
	Node
	exprNode()
}

// Stmt is a statement allowed inside a function body.
type Stmt interface {
	Node
	stmtNode()
}

// TopLevel is an item allowed at program level.
type TopLevel interface {
	Node
	topLevelNode()
}

// Program is a complete parsed source file.
type Program struct {
	// Items holds top-level items in source order.
	Items []TopLevel
}

// --- Declarations ---

// VarDecl declares a variable: `int x;`.
type VarDecl struct {
	Pos  int
	Type Type
	Name string
}

// Param is one function parameter.
type Param struct {
	Pos  int
	Type Type
	Name string
}

// FuncDecl is a function definition.
type FuncDecl struct {
	Pos        int
	ReturnType Type
	Name       string
	Params     []Param
	Body       *Block
}

// Block is a brace-delimited statement list.
type Block struct {
	Pos   int
	Stmts []Stmt
}

// --- Statements ---

// Assign stores the value of an expression: `x = expr;`.
type Assign struct {
	Pos   int
	Name  string
	Value Expr
}

// Print emits the numeric value of an expression.
type Print struct {
	Pos   int
	Value Expr
}

// Return leaves the enclosing function. Value is nil for a bare `return;`.
type Return struct {
	Pos   int
	Value Expr
}

// ExprStmt is an expression evaluated for its side effects: `foo(1, 2);`.
type ExprStmt struct {
	Pos int
	X   Expr
}

// --- Expressions ---

// BinaryOp is a binary arithmetic operation.
type BinaryOp struct {
	Pos   int
	Op    Op
	Left  Expr
	Right Expr
}

// Number is a numeric literal. Text is converted only at evaluation time.
type Number struct {
	Pos  int
	Text string
}

// Ident is a variable reference.
type Ident struct {
	Pos  int
	Name string
}

// Call is a function call.
type Call struct {
	Pos  int
	Func string
	Args []Expr
}

func (n *VarDecl) Position() int  { return n.Pos }
func (n *FuncDecl) Position() int { return n.Pos }
func (n *Block) Position() int    { return n.Pos }
func (n *Assign) Position() int   { return n.Pos }
func (n *Print) Position() int    { return n.Pos }
func (n *Return) Position() int   { return n.Pos }
func (n *ExprStmt) Position() int { return n.Pos }
func (n *BinaryOp) Position() int { return n.Pos }
func (n *Number) Position() int   { return n.Pos }
func (n *Ident) Position() int    { return n.Pos }
func (n *Call) Position() int     { return n.Pos }

func (*BinaryOp) exprNode() {}
func (*Number) exprNode()   {}
func (*Ident) exprNode()    {}
func (*Call) exprNode()     {}

func (*VarDecl) stmtNode()  {}
func (*Assign) stmtNode()   {}
func (*Print) stmtNode()    {}
func (*Return) stmtNode()   {}
func (*ExprStmt) stmtNode() {}

func (*FuncDecl) topLevelNode() {}
func (*VarDecl) topLevelNode()  {}
func (*Assign) topLevelNode()   {}
func (*Print) topLevelNode()    {}
func (*Return) topLevelNode()   {}
func (*ExprStmt) topLevelNode() {}
