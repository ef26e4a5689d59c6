package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lemonberrylabs/minic/pkg/ast"
	"github.com/lemonberrylabs/minic/pkg/fixture"
	"github.com/lemonberrylabs/minic/pkg/lexer"
	"github.com/lemonberrylabs/minic/pkg/parser"
	"github.com/lemonberrylabs/minic/pkg/runtime"
	"github.com/lemonberrylabs/minic/pkg/service"
	"github.com/lemonberrylabs/minic/pkg/stdlib"
	"github.com/lemonberrylabs/minic/pkg/types"
)

// readSource reads a program file; "-" reads standard input.
func readSource(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// diagnose prefixes err with the file and, for lex and parse errors, the
// line and column it points at.
func diagnose(path, src string, err error) error {
	if pos, ok := service.Position(err); ok {
		line, col := lexer.LineCol(src, pos)
		return fmt.Errorf("%s:%d:%d: %w", path, line, col, err)
	}
	return fmt.Errorf("%s: %w", path, err)
}

func newRunCmd() *cobra.Command {
	var (
		call     string
		args     []float64
		useStd   bool
		maxDepth int
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Run a program's top-level statements and optionally call a function",
		Example: `  minic run add.mc
  minic run add.mc --call add --arg 3 --arg 4`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, argv []string) error {
			path := argv[0]
			src, err := readSource(cmd, path)
			if err != nil {
				return err
			}
			prog, err := parser.Parse(src)
			if err != nil {
				return diagnose(path, src, err)
			}

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			out := cmd.OutOrStdout()
			opts := []runtime.Option{
				runtime.WithOutput(out),
				runtime.WithMaxCallDepth(maxDepth),
			}
			if useStd {
				opts = append(opts, runtime.WithFunctions(stdlib.NewRegistry()))
			}

			in, err := runtime.NewContext(ctx, prog, opts...)
			if err != nil {
				return diagnose(path, src, err)
			}
			if call == "" {
				return nil
			}
			v, err := in.CallContext(ctx, call, args)
			if err != nil {
				return diagnose(path, src, err)
			}
			fmt.Fprintf(out, "=> %s\n", types.FormatNumber(v))
			return nil
		},
	}
	cmd.Flags().StringVar(&call, "call", "", "Function to call after the top-level statements")
	cmd.Flags().Float64SliceVar(&args, "arg", nil, "Argument for --call (repeatable)")
	cmd.Flags().BoolVar(&useStd, "stdlib", false, "Expose the math builtins")
	cmd.Flags().IntVar(&maxDepth, "max-depth", runtime.DefaultMaxCallDepth, "Maximum call depth")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Abort the run after this long (0 means no limit)")
	return cmd
}

func newTokensCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tokens FILE",
		Short: "Print the token stream of a program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, argv []string) error {
			path := argv[0]
			src, err := readSource(cmd, path)
			if err != nil {
				return err
			}
			toks, err := lexer.New(src).Tokenize()
			if err != nil {
				return diagnose(path, src, err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "POS\tLINE:COL\tKIND\tLEXEME")
			for _, tok := range toks {
				line, col := lexer.LineCol(src, tok.Pos)
				fmt.Fprintf(w, "%d\t%d:%d\t%s\t%s\n", tok.Pos, line, col, tok.Kind, tok.Lexeme)
			}
			return w.Flush()
		},
	}
}

func newASTCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ast FILE",
		Short: "Print the syntax tree of a program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, argv []string) error {
			path := argv[0]
			src, err := readSource(cmd, path)
			if err != nil {
				return err
			}
			prog, err := parser.Parse(src)
			if err != nil {
				return diagnose(path, src, err)
			}
			return ast.FprintProgram(cmd.OutOrStdout(), prog)
		},
	}
}

// errFixturesFailed is returned by the test command when any fixture fails.
var errFixturesFailed = errors.New("fixtures failed")

func newTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test FIXTURE...",
		Short: "Run YAML fixture files against the interpreter",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, paths []string) error {
			out := cmd.OutOrStdout()
			passed, failed := 0, 0
			for _, path := range paths {
				f, err := fixture.Load(path)
				if err != nil {
					fmt.Fprintf(out, "ERROR %s: %v\n", path, err)
					failed++
					continue
				}
				res := fixture.Run(f)
				if res.Passed {
					fmt.Fprintf(out, "PASS  %s\n", res.Name)
					passed++
					continue
				}
				fmt.Fprintf(out, "FAIL  %s\n", res.Name)
				for _, msg := range res.Failures {
					fmt.Fprintf(out, "      %s\n", msg)
				}
				failed++
			}

			fmt.Fprintf(out, "\n%d passed, %d failed\n", passed, failed)
			if failed > 0 {
				return fmt.Errorf("%d of %d %w", failed, passed+failed, errFixturesFailed)
			}
			return nil
		},
	}
}
