package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/lemonberrylabs/minic/pkg/ast"
	"github.com/lemonberrylabs/minic/pkg/lexer"
)

// parseExpr parses src as the body of a single expression statement.
func parseExpr(t *testing.T, src string) ast.Expr {
	t.Helper()
	prog, err := Parse(src + ";")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if len(prog.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(prog.Items))
	}
	stmt, ok := prog.Items[0].(*ast.ExprStmt)
	if !ok {
		t.Fatalf("expected *ast.ExprStmt, got %T", prog.Items[0])
	}
	return stmt.X
}

func parseExpectError(t *testing.T, src string) *ParseError {
	t.Helper()
	_, err := Parse(src)
	if err == nil {
		t.Fatal("expected error but got nil")
	}
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ParseError, got %T: %v", err, err)
	}
	return perr
}

func TestPrecedenceAndAssociativity(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"a + b * c", "(a + (b * c))"},
		{"a * b + c", "((a * b) + c)"},
		{"a - b - c", "((a - b) - c)"},
		{"a / b / c", "((a / b) / c)"},
		{"a - b + c", "((a - b) + c)"},
		{"(a + b) * c", "((a + b) * c)"},
		{"a * (b - c) / d", "((a * (b - c)) / d)"},
		{"2 + 3 * 4", "(2 + (3 * 4))"},
		{"f(1, 2) * g()", "(f(1, 2) * g())"},
		{"f(a + b, g(c) * 2)", "f((a + b), (g(c) * 2))"},
		{"((x))", "x"},
		{"1.5", "1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ast.ExprString(parseExpr(t, tt.input))
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPrecedenceTreeShape(t *testing.T) {
	root, ok := parseExpr(t, "a + b * c").(*ast.BinaryOp)
	if !ok {
		t.Fatal("expected root to be *ast.BinaryOp")
	}
	if root.Op != ast.OpAdd {
		t.Fatalf("expected root op '+', got %q", root.Op)
	}
	right, ok := root.Right.(*ast.BinaryOp)
	if !ok || right.Op != ast.OpMul {
		t.Fatalf("expected right child '*', got %#v", root.Right)
	}
	if left, ok := root.Left.(*ast.Ident); !ok || left.Name != "a" {
		t.Fatalf("expected left child a, got %#v", root.Left)
	}
}

func TestParseFunction(t *testing.T) {
	prog, err := Parse("int add(int a, float b) { return a + b; }")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prog.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(prog.Items))
	}

	fn, ok := prog.Items[0].(*ast.FuncDecl)
	if !ok {
		t.Fatalf("expected *ast.FuncDecl, got %T", prog.Items[0])
	}
	if fn.Name != "add" || fn.ReturnType != ast.TypeInt {
		t.Errorf("got %s %s, want int add", fn.ReturnType, fn.Name)
	}
	if len(fn.Params) != 2 {
		t.Fatalf("expected 2 params, got %d", len(fn.Params))
	}
	if fn.Params[0].Name != "a" || fn.Params[0].Type != ast.TypeInt {
		t.Errorf("unexpected first param %+v", fn.Params[0])
	}
	if fn.Params[1].Name != "b" || fn.Params[1].Type != ast.TypeFloat {
		t.Errorf("unexpected second param %+v", fn.Params[1])
	}
	if len(fn.Body.Stmts) != 1 {
		t.Fatalf("expected 1 body statement, got %d", len(fn.Body.Stmts))
	}
	ret, ok := fn.Body.Stmts[0].(*ast.Return)
	if !ok {
		t.Fatalf("expected *ast.Return, got %T", fn.Body.Stmts[0])
	}
	if got := ast.ExprString(ret.Value); got != "(a + b)" {
		t.Errorf("got return value %s, want (a + b)", got)
	}
}

func TestParseEmptyParamsAndBody(t *testing.T) {
	prog, err := Parse("float f() { }")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fn := prog.Items[0].(*ast.FuncDecl)
	if len(fn.Params) != 0 || len(fn.Body.Stmts) != 0 {
		t.Errorf("expected no params and empty body, got %d params, %d stmts", len(fn.Params), len(fn.Body.Stmts))
	}
}

func TestParseTopLevelItems(t *testing.T) {
	src := `
float flamenco;
int add(int a, int b) {
    print(a + b);
    return a + b;
}
g = 1 + 2;
print(g);
add(1, 2);
`
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantTypes := []string{"*ast.VarDecl", "*ast.FuncDecl", "*ast.Assign", "*ast.Print", "*ast.ExprStmt"}
	if len(prog.Items) != len(wantTypes) {
		t.Fatalf("expected %d items, got %d", len(wantTypes), len(prog.Items))
	}
	for i, item := range prog.Items {
		var got string
		switch item.(type) {
		case *ast.VarDecl:
			got = "*ast.VarDecl"
		case *ast.FuncDecl:
			got = "*ast.FuncDecl"
		case *ast.Assign:
			got = "*ast.Assign"
		case *ast.Print:
			got = "*ast.Print"
		case *ast.ExprStmt:
			got = "*ast.ExprStmt"
		}
		if got != wantTypes[i] {
			t.Errorf("item %d: got %T, want %s", i, item, wantTypes[i])
		}
	}

	decl := prog.Items[0].(*ast.VarDecl)
	if decl.Name != "flamenco" || decl.Type != ast.TypeFloat {
		t.Errorf("unexpected declaration %+v", decl)
	}
	assign := prog.Items[2].(*ast.Assign)
	if assign.Name != "g" || ast.ExprString(assign.Value) != "(1 + 2)" {
		t.Errorf("unexpected assignment %s = %s", assign.Name, ast.ExprString(assign.Value))
	}
}

func TestParseBlockStatements(t *testing.T) {
	src := `int main(int z) {
    int t;
    t = add(3, 4);
    print(t);
    twice(5);
    t + 1;
    return;
}`
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := prog.Items[0].(*ast.FuncDecl).Body.Stmts
	if len(body) != 6 {
		t.Fatalf("expected 6 statements, got %d", len(body))
	}
	if _, ok := body[0].(*ast.VarDecl); !ok {
		t.Errorf("stmt 0: expected *ast.VarDecl, got %T", body[0])
	}
	if a, ok := body[1].(*ast.Assign); !ok || ast.ExprString(a.Value) != "add(3, 4)" {
		t.Errorf("stmt 1: unexpected %#v", body[1])
	}
	if _, ok := body[2].(*ast.Print); !ok {
		t.Errorf("stmt 2: expected *ast.Print, got %T", body[2])
	}
	if e, ok := body[3].(*ast.ExprStmt); !ok || ast.ExprString(e.X) != "twice(5)" {
		t.Errorf("stmt 3: unexpected %#v", body[3])
	}
	if e, ok := body[4].(*ast.ExprStmt); !ok || ast.ExprString(e.X) != "(t + 1)" {
		t.Errorf("stmt 4: unexpected %#v", body[4])
	}
	if r, ok := body[5].(*ast.Return); !ok || r.Value != nil {
		t.Errorf("stmt 5: expected bare return, got %#v", body[5])
	}
}

func TestExpressionStatementWithIdentifierPrefix(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"x * 2 + 1;", "((x * 2) + 1)"},
		{"f(1) - g(2) * 3;", "(f(1) - (g(2) * 3))"},
		{"x;", "x"},
		{"(x + 1) * 2;", "((x + 1) * 2)"},
		{"7;", "7"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			prog, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("parse error: %v", err)
			}
			stmt, ok := prog.Items[0].(*ast.ExprStmt)
			if !ok {
				t.Fatalf("expected *ast.ExprStmt, got %T", prog.Items[0])
			}
			if got := ast.ExprString(stmt.X); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNodePositions(t *testing.T) {
	src := "int x;\nx = a + b;"
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assign := prog.Items[1].(*ast.Assign)
	if assign.Pos != 7 {
		t.Errorf("assign pos: got %d, want 7", assign.Pos)
	}
	bin := assign.Value.(*ast.BinaryOp)
	if bin.Pos != 11 {
		t.Errorf("binary pos: got %d, want 11", bin.Pos)
	}
	if right := bin.Right.(*ast.Ident); right.Pos != 15 {
		t.Errorf("right operand pos: got %d, want 15", right.Pos)
	}
}

func TestMissingSemicolon(t *testing.T) {
	perr := parseExpectError(t, "int x\n")
	if perr.Expected != "';'" {
		t.Errorf("expected to want ';', got %q", perr.Expected)
	}
	if perr.Got != lexer.KindEOF {
		t.Errorf("expected EOF, got %s", perr.Got)
	}
	if perr.Pos != 6 {
		t.Errorf("got pos %d, want 6", perr.Pos)
	}
	if !strings.Contains(perr.Error(), "';'") {
		t.Errorf("error message should name ';': %s", perr.Error())
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		got      lexer.Kind
	}{
		{"missing name after type", "int ;", "identifier", lexer.KindSemicolon},
		{"missing close paren in params", "int f(int a { }", "')'", lexer.KindLBrace},
		{"missing body", "int f();", "'{'", lexer.KindSemicolon},
		{"param without type", "int f(a) { }", "')'", lexer.KindIdent},
		{"param missing type after comma", "int f(int a, b) { }", "'int' or 'float'", lexer.KindIdent},
		{"unterminated block", "int f() { print(1);", "'}'", lexer.KindEOF},
		{"print without parens", "print 1;", "'('", lexer.KindNumber},
		{"dangling operator", "x = 1 + ;", "identifier, number or '('", lexer.KindSemicolon},
		{"unclosed paren", "x = (1 + 2;", "')'", lexer.KindSemicolon},
		{"return missing semicolon", "int f() { return 1 }", "';'", lexer.KindRBrace},
		{"assign to number", "1 = 2;", "';'", lexer.KindAssign},
		{"call missing close", "f(1, 2;", "')'", lexer.KindSemicolon},
		{"trailing comma in call", "f(1,);", "identifier, number or '('", lexer.KindRParen},
		{"nested function", "int f() { int g() { } }", "';'", lexer.KindLParen},
		{"stray brace", "}", "identifier, number or '('", lexer.KindRBrace},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			perr := parseExpectError(t, tt.input)
			if perr.Expected != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, perr.Expected)
			}
			if perr.Got != tt.got {
				t.Errorf("got kind %s, want %s", perr.Got, tt.got)
			}
		})
	}
}

func TestLexErrorSurfacesThroughParse(t *testing.T) {
	_, err := Parse("int x;\nx = 3 % 2;")
	var lexErr *lexer.Error
	if !errors.As(err, &lexErr) {
		t.Fatalf("expected *lexer.Error, got %T: %v", err, err)
	}
	if lexErr.Pos != 13 {
		t.Errorf("got pos %d, want 13", lexErr.Pos)
	}
}

func TestNestingLimit(t *testing.T) {
	deep := strings.Repeat("(", MaxNestingDepth+1) + "1" + strings.Repeat(")", MaxNestingDepth+1)
	perr := parseExpectError(t, "x = "+deep+";")
	if !strings.Contains(perr.Message, "nesting") {
		t.Errorf("expected nesting message, got %q", perr.Message)
	}

	ok := strings.Repeat("(", 100) + "1" + strings.Repeat(")", 100)
	if _, err := Parse("x = " + ok + ";"); err != nil {
		t.Errorf("moderate nesting should parse: %v", err)
	}
}

func TestSourceSizeLimit(t *testing.T) {
	src := strings.Repeat(" ", MaxSourceSize+1)
	perr := parseExpectError(t, src)
	if !strings.Contains(perr.Message, "exceeds maximum") {
		t.Errorf("unexpected message %q", perr.Message)
	}
}

func TestEmptyProgram(t *testing.T) {
	prog, err := Parse("  \n\t ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prog.Items) != 0 {
		t.Errorf("expected no items, got %d", len(prog.Items))
	}
}
