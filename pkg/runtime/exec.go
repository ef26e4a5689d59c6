package runtime

import (
	"context"
	"fmt"

	"github.com/lemonberrylabs/minic/pkg/ast"
	"github.com/lemonberrylabs/minic/pkg/types"
)

// flowControl says how a statement finished.
type flowControl int

const (
	flowNormal flowControl = iota // continue with the next statement
	flowReturn                    // unwind to the caller with value
)

// stmtResult is the result of executing a statement or block.
type stmtResult struct {
	flow  flowControl
	value float64
}

// execBlock runs statements in order until one returns.
func (in *Interpreter) execBlock(ctx context.Context, b *ast.Block, e env) (stmtResult, error) {
	for _, stmt := range b.Stmts {
		res, err := in.execStmt(ctx, stmt, e)
		if err != nil {
			return stmtResult{}, err
		}
		if res.flow == flowReturn {
			return res, nil
		}
	}
	return stmtResult{flow: flowNormal}, nil
}

func (in *Interpreter) execStmt(ctx context.Context, stmt ast.Stmt, e env) (stmtResult, error) {
	switch n := stmt.(type) {
	case *ast.VarDecl:
		e.declare(n.Name)
		return stmtResult{}, nil
	case *ast.Assign:
		return stmtResult{}, in.execAssign(ctx, n, e)
	case *ast.Print:
		return stmtResult{}, in.execPrint(ctx, n, e)
	case *ast.Return:
		if n.Value == nil {
			return stmtResult{flow: flowReturn}, nil
		}
		v, err := in.eval(ctx, n.Value, e)
		if err != nil {
			return stmtResult{}, err
		}
		return stmtResult{flow: flowReturn, value: v}, nil
	case *ast.ExprStmt:
		_, err := in.eval(ctx, n.X, e)
		return stmtResult{}, err
	default:
		return stmtResult{}, fmt.Errorf("internal error: unknown statement %T", stmt)
	}
}

func (in *Interpreter) execAssign(ctx context.Context, n *ast.Assign, e env) error {
	v, err := in.eval(ctx, n.Value, e)
	if err != nil {
		return err
	}
	return e.assign(n.Name, v)
}

func (in *Interpreter) execPrint(ctx context.Context, n *ast.Print, e env) error {
	v, err := in.eval(ctx, n.Value, e)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(in.out, types.FormatNumber(v)); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}

// eval evaluates an expression to its numeric value.
func (in *Interpreter) eval(ctx context.Context, x ast.Expr, e env) (float64, error) {
	switch n := x.(type) {
	case *ast.Number:
		v, err := types.ParseNumber(n.Text)
		if err != nil {
			return 0, fmt.Errorf("number literal at position %d: %w", n.Pos, err)
		}
		return v, nil

	case *ast.Ident:
		return e.lookup(n.Name)

	case *ast.BinaryOp:
		left, err := in.eval(ctx, n.Left, e)
		if err != nil {
			return 0, err
		}
		right, err := in.eval(ctx, n.Right, e)
		if err != nil {
			return 0, err
		}
		return applyOp(n.Op, left, right)

	case *ast.Call:
		args := make([]float64, len(n.Args))
		for i, a := range n.Args {
			v, err := in.eval(ctx, a, e)
			if err != nil {
				return 0, err
			}
			args[i] = v
		}
		return in.CallContext(ctx, n.Func, args)

	default:
		return 0, fmt.Errorf("internal error: unknown expression %T", x)
	}
}

func applyOp(op ast.Op, left, right float64) (float64, error) {
	switch op {
	case ast.OpAdd:
		return left + right, nil
	case ast.OpSub:
		return left - right, nil
	case ast.OpMul:
		return left * right, nil
	case ast.OpDiv:
		if right == 0 {
			return 0, types.NewDivisionByZero()
		}
		return left / right, nil
	default:
		return 0, types.NewUnsupportedOperator(op.String())
	}
}
