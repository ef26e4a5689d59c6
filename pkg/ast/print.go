package ast

import (
	"fmt"
	"io"
	"strings"
)

// Fprint writes an indented dump of node to w, one node per line.
func Fprint(w io.Writer, node Node) error {
	p := &printer{w: w}
	p.node(node, 0)
	return p.err
}

// FprintProgram is Fprint for a whole program.
func FprintProgram(w io.Writer, prog *Program) error {
	p := &printer{w: w}
	p.line(0, "Program")
	for _, it := range prog.Items {
		p.node(it, 1)
	}
	return p.err
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) line(indent int, format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, strings.Repeat("  ", indent)+format+"\n", args...)
}

func (p *printer) node(node Node, indent int) {
	switch n := node.(type) {
	case *FuncDecl:
		p.line(indent, "FuncDecl(ret=%s, name=%s)", n.ReturnType, n.Name)
		if len(n.Params) > 0 {
			p.line(indent+1, "Params:")
			for _, prm := range n.Params {
				p.line(indent+2, "Param(type=%s, name=%s)", prm.Type, prm.Name)
			}
		}
		p.line(indent+1, "Body:")
		p.node(n.Body, indent+2)
	case *Block:
		p.line(indent, "Block")
		for _, s := range n.Stmts {
			p.node(s, indent+1)
		}
	case *VarDecl:
		p.line(indent, "Decl(type=%s, name=%s)", n.Type, n.Name)
	case *Assign:
		p.line(indent, "Assign(name=%s)", n.Name)
		p.node(n.Value, indent+1)
	case *Print:
		p.line(indent, "Print")
		p.node(n.Value, indent+1)
	case *Return:
		p.line(indent, "Return")
		if n.Value != nil {
			p.node(n.Value, indent+1)
		}
	case *ExprStmt:
		p.node(n.X, indent)
	case *BinaryOp:
		p.line(indent, "BinOp(op='%s')", n.Op)
		p.node(n.Left, indent+1)
		p.node(n.Right, indent+1)
	case *Number:
		p.line(indent, "Num(%s)", n.Text)
	case *Ident:
		p.line(indent, "Id(%s)", n.Name)
	case *Call:
		p.line(indent, "Call(%s)", n.Func)
		for _, a := range n.Args {
			p.node(a, indent+1)
		}
	default:
		p.line(indent, "(unknown node %T)", node)
	}
}

// ExprString renders an expression fully parenthesized, e.g. "(a + (b * c))".
func ExprString(e Expr) string {
	switch n := e.(type) {
	case *BinaryOp:
		return "(" + ExprString(n.Left) + " " + n.Op.String() + " " + ExprString(n.Right) + ")"
	case *Number:
		return n.Text
	case *Ident:
		return n.Name
	case *Call:
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = ExprString(a)
		}
		return n.Func + "(" + strings.Join(args, ", ") + ")"
	default:
		return fmt.Sprintf("<%T>", e)
	}
}
