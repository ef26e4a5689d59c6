// Package grpcapi serves the minic.v1.Interpreter gRPC service. Requests and
// responses are google.protobuf.Struct messages, so any gRPC client can call
// it without generated stubs.
package grpcapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lemonberrylabs/minic/pkg/service"
	"github.com/lemonberrylabs/minic/pkg/store"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "minic.v1.Interpreter"

// Full method names.
const (
	MethodCompile       = "/" + ServiceName + "/Compile"
	MethodGetProgram    = "/" + ServiceName + "/GetProgram"
	MethodListPrograms  = "/" + ServiceName + "/ListPrograms"
	MethodDeleteProgram = "/" + ServiceName + "/DeleteProgram"
	MethodCall          = "/" + ServiceName + "/Call"
	MethodEval          = "/" + ServiceName + "/Eval"
)

// Handler is the server side of minic.v1.Interpreter.
type Handler interface {
	Compile(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetProgram(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPrograms(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteProgram(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Call(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Eval(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// Server implements the Interpreter gRPC service.
type Server struct {
	svc  *service.Service
	grpc *grpc.Server
}

// New creates a new gRPC server wrapping the given service.
func New(svc *service.Service) *Server {
	srv := &Server{svc: svc}

	gs := grpc.NewServer()
	gs.RegisterService(&serviceDesc, srv)
	srv.grpc = gs

	return srv
}

// Serve starts listening on the given address and serves gRPC requests.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return s.grpc.Serve(lis)
}

// GracefulStop gracefully stops the gRPC server.
func (s *Server) GracefulStop() {
	s.grpc.GracefulStop()
}

// --- Programs ---

func (s *Server) Compile(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name := stringField(req, "name")
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "name is required")
	}
	p, err := s.svc.Compile(ctx, name, stringField(req, "source"))
	if err != nil {
		return nil, toStatus(err)
	}
	return programToProto(p)
}

func (s *Server) GetProgram(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := s.svc.Store().GetProgram(stringField(req, "id"))
	if err != nil {
		return nil, toStatus(err)
	}
	return programToProto(p)
}

func (s *Server) ListPrograms(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	programs := s.svc.Store().ListPrograms()

	items := make([]interface{}, len(programs))
	for i, p := range programs {
		items[i] = programFields(p)
	}
	return newStruct(map[string]interface{}{"programs": items})
}

func (s *Server) DeleteProgram(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := stringField(req, "id")
	if err := s.svc.Delete(id); err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]interface{}{"id": id, "deleted": true})
}

// --- Execution ---

func (s *Server) Call(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	function := stringField(req, "function")
	if function == "" {
		return nil, status.Error(codes.InvalidArgument, "function is required")
	}
	args, err := numberList(req, "args")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	run, err := s.svc.Call(ctx, stringField(req, "program_id"), function, args)
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]interface{}{
		"run_id": run.ID,
		"state":  string(run.State),
		"result": float64(run.Result),
		"output": stringList(run.Output),
	})
}

func (s *Server) Eval(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	args, err := numberList(req, "args")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	res, err := s.svc.Eval(ctx, stringField(req, "source"), stringField(req, "function"), args)
	if err != nil {
		return nil, toStatus(err)
	}
	fields := map[string]interface{}{
		"called": res.Called,
		"output": stringList(res.Output),
	}
	if res.Called {
		fields["result"] = res.Value
	}
	return newStruct(fields)
}

// --- Helpers ---

// toStatus maps a service error to a gRPC status.
func toStatus(err error) error {
	switch {
	case service.IsSourceError(err), errors.Is(err, service.ErrInvalidName):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, store.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, err.Error())
	}
	switch service.ErrorKind(err) {
	case service.KindDeadlineExceeded:
		return status.Error(codes.DeadlineExceeded, err.Error())
	case service.KindCancelled:
		return status.Error(codes.Canceled, err.Error())
	case service.KindInternal:
		return status.Error(codes.Internal, err.Error())
	}
	return status.Error(codes.FailedPrecondition, err.Error())
}

func programFields(p *store.Program) map[string]interface{} {
	return map[string]interface{}{
		"id":          p.ID,
		"name":        p.Name,
		"source":      p.Source,
		"revision":    p.Revision,
		"create_time": p.CreateTime.Format(time.RFC3339),
		"update_time": p.UpdateTime.Format(time.RFC3339),
	}
}

func programToProto(p *store.Program) (*structpb.Struct, error) {
	return newStruct(programFields(p))
}

func newStruct(fields map[string]interface{}) (*structpb.Struct, error) {
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to build response: %v", err)
	}
	return st, nil
}

func stringField(st *structpb.Struct, key string) string {
	return st.GetFields()[key].GetStringValue()
}

func numberList(st *structpb.Struct, key string) ([]float64, error) {
	v, ok := st.GetFields()[key]
	if !ok {
		return nil, nil
	}
	list := v.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("%s must be a list of numbers", key)
	}
	out := make([]float64, len(list.GetValues()))
	for i, item := range list.GetValues() {
		n, ok := item.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("%s[%d] is not a number", key, i)
		}
		out[i] = n.NumberValue
	}
	return out, nil
}

func stringList(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// --- Service descriptor ---

func unaryHandler(method string, call func(Handler, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(Handler), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + method,
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(Handler), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Handler)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("Compile", Handler.Compile),
		unaryHandler("GetProgram", Handler.GetProgram),
		unaryHandler("ListPrograms", Handler.ListPrograms),
		unaryHandler("DeleteProgram", Handler.DeleteProgram),
		unaryHandler("Call", Handler.Call),
		unaryHandler("Eval", Handler.Eval),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "minic/v1/interpreter.proto",
}

// Client calls minic.v1.Interpreter over conn.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps conn.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) invoke(ctx context.Context, method string, fields map[string]interface{}) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Compile stores a new program.
func (c *Client) Compile(ctx context.Context, name, source string) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodCompile, map[string]interface{}{"name": name, "source": source})
}

// GetProgram fetches a program by id.
func (c *Client) GetProgram(ctx context.Context, id string) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodGetProgram, map[string]interface{}{"id": id})
}

// ListPrograms lists every stored program.
func (c *Client) ListPrograms(ctx context.Context) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodListPrograms, map[string]interface{}{})
}

// DeleteProgram removes a program.
func (c *Client) DeleteProgram(ctx context.Context, id string) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodDeleteProgram, map[string]interface{}{"id": id})
}

// Call runs function of a stored program.
func (c *Client) Call(ctx context.Context, programID, function string, args []float64) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodCall, map[string]interface{}{
		"program_id": programID,
		"function":   function,
		"args":       numbers(args),
	})
}

// Eval runs source without storing it.
func (c *Client) Eval(ctx context.Context, source, function string, args []float64) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodEval, map[string]interface{}{
		"source":   source,
		"function": function,
		"args":     numbers(args),
	})
}

func numbers(vs []float64) []interface{} {
	out := make([]interface{}, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}
