package grpcapi

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/lemonberrylabs/minic/pkg/config"
	"github.com/lemonberrylabs/minic/pkg/service"
	"github.com/lemonberrylabs/minic/pkg/store"
)

func startTestServer(t *testing.T) (string, func()) {
	t.Helper()
	srv := New(service.New(store.New(), config.Default().Interpreter))

	lis, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	go srv.grpc.Serve(lis)

	return lis.Addr().String(), func() {
		srv.grpc.Stop()
	}
}

func dial(t *testing.T, addr string) *grpc.ClientConn {
	t.Helper()
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	return conn
}

func expectCode(t *testing.T, err error, want codes.Code) {
	t.Helper()
	if got := status.Code(err); got != want {
		t.Fatalf("expected %v, got %v (%v)", want, got, err)
	}
}

func TestCompileAndCall(t *testing.T) {
	addr, cleanup := startTestServer(t)
	defer cleanup()

	conn := dial(t, addr)
	defer conn.Close()

	client := NewClient(conn)
	ctx := context.Background()

	// Compile
	p, err := client.Compile(ctx, "add", "int add(int a, int b) { print(a * b); return a + b; }")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	id := p.GetFields()["id"].GetStringValue()
	if id == "" {
		t.Fatal("expected an id")
	}
	if got := p.GetFields()["revision"].GetNumberValue(); got != 1 {
		t.Fatalf("unexpected revision: %v", got)
	}

	// Call
	run, err := client.Call(ctx, id, "add", []float64{3, 4})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got := run.GetFields()["result"].GetNumberValue(); got != 7 {
		t.Fatalf("unexpected result: %v", got)
	}
	if got := run.GetFields()["state"].GetStringValue(); got != string(store.RunSucceeded) {
		t.Fatalf("unexpected state: %s", got)
	}
	out := run.GetFields()["output"].GetListValue().GetValues()
	if len(out) != 1 || out[0].GetStringValue() != "12" {
		t.Fatalf("unexpected output: %v", out)
	}
}

func TestProgramLifecycle(t *testing.T) {
	addr, cleanup := startTestServer(t)
	defer cleanup()

	conn := dial(t, addr)
	defer conn.Close()

	client := NewClient(conn)
	ctx := context.Background()

	for _, name := range []string{"one", "two"} {
		if _, err := client.Compile(ctx, name, "int f() { return 1; }"); err != nil {
			t.Fatalf("Compile(%s): %v", name, err)
		}
	}

	resp, err := client.ListPrograms(ctx)
	if err != nil {
		t.Fatalf("ListPrograms: %v", err)
	}
	programs := resp.GetFields()["programs"].GetListValue().GetValues()
	if len(programs) != 2 {
		t.Fatalf("expected 2 programs, got %d", len(programs))
	}

	id := programs[0].GetStructValue().GetFields()["id"].GetStringValue()
	got, err := client.GetProgram(ctx, id)
	if err != nil {
		t.Fatalf("GetProgram: %v", err)
	}
	if got.GetFields()["name"].GetStringValue() != "one" {
		t.Fatalf("unexpected program: %v", got)
	}

	if _, err := client.DeleteProgram(ctx, id); err != nil {
		t.Fatalf("DeleteProgram: %v", err)
	}
	_, err = client.GetProgram(ctx, id)
	expectCode(t, err, codes.NotFound)
}

func TestErrorCodes(t *testing.T) {
	addr, cleanup := startTestServer(t)
	defer cleanup()

	conn := dial(t, addr)
	defer conn.Close()

	client := NewClient(conn)
	ctx := context.Background()

	_, err := client.Compile(ctx, "broken", "int x")
	expectCode(t, err, codes.InvalidArgument)

	_, err = client.Compile(ctx, "", "int x;")
	expectCode(t, err, codes.InvalidArgument)

	p, err := client.Compile(ctx, "add", "int add(int a, int b) { return a + b; }")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	_, err = client.Compile(ctx, "add", "int x;")
	expectCode(t, err, codes.AlreadyExists)

	id := p.GetFields()["id"].GetStringValue()
	_, err = client.Call(ctx, id, "add", []float64{1})
	expectCode(t, err, codes.FailedPrecondition)

	_, err = client.Call(ctx, "missing", "add", nil)
	expectCode(t, err, codes.NotFound)

	_, err = client.Call(ctx, id, "", nil)
	expectCode(t, err, codes.InvalidArgument)
}

func TestEval(t *testing.T) {
	addr, cleanup := startTestServer(t)
	defer cleanup()

	conn := dial(t, addr)
	defer conn.Close()

	client := NewClient(conn)
	ctx := context.Background()

	resp, err := client.Eval(ctx, "print(2 * 3 + 1);", "", nil)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if resp.GetFields()["called"].GetBoolValue() {
		t.Fatal("expected no call")
	}
	out := resp.GetFields()["output"].GetListValue().GetValues()
	if len(out) != 1 || out[0].GetStringValue() != "7" {
		t.Fatalf("unexpected output: %v", out)
	}

	resp, err = client.Eval(ctx, "float half(float x) { return x / 2; }", "half", []float64{5})
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if got := resp.GetFields()["result"].GetNumberValue(); got != 2.5 {
		t.Fatalf("unexpected result: %v", got)
	}

	_, err = client.Eval(ctx, "print(1 / 0);", "", nil)
	expectCode(t, err, codes.FailedPrecondition)
}
