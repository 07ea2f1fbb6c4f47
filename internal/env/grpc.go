package env

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Observe-l/tdc-polar/internal/config"
	"github.com/Observe-l/tdc-polar/internal/sim"
)

// ServiceName is the gRPC service the environment is exported under.
// Messages are well-known types, so no generated stubs are needed.
const ServiceName = "tdcpolar.Env"

const (
	methodConfigure = "/" + ServiceName + "/Configure"
	methodReset     = "/" + ServiceName + "/Reset"
	methodEvaluate  = "/" + ServiceName + "/Evaluate"
	methodRollout   = "/" + ServiceName + "/Rollout"
)

// EnvServer is the gRPC facing side of a Server.
type EnvServer interface {
	Configure(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Reset(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Evaluate(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Rollout(grpc.ServerStream) error
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EnvServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Configure", Handler: configureHandler},
		{MethodName: "Reset", Handler: resetHandler},
		{MethodName: "Evaluate", Handler: evaluateHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Rollout", Handler: rolloutHandler, ServerStreams: true, ClientStreams: true},
	},
	Metadata: "tdcpolar/env.proto",
}

// Register exports s on g.
func Register(g grpc.ServiceRegistrar, s *Server) {
	g.RegisterService(&ServiceDesc, &envGRPC{inner: s})
}

func configureHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EnvServer).Configure(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodConfigure}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(EnvServer).Configure(ctx, req.(*structpb.Struct))
	})
}

func resetHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EnvServer).Reset(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodReset}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(EnvServer).Reset(ctx, req.(*emptypb.Empty))
	})
}

func evaluateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EnvServer).Evaluate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodEvaluate}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(EnvServer).Evaluate(ctx, req.(*emptypb.Empty))
	})
}

func rolloutHandler(srv any, stream grpc.ServerStream) error {
	return srv.(EnvServer).Rollout(stream)
}

// envGRPC wraps a Server into the wire interface.
type envGRPC struct {
	inner *Server
}

func (e *envGRPC) Configure(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	cfg, err := config.FromMap(in.AsMap())
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := e.inner.Configure(ctx, cfg); err != nil {
		return nil, err
	}
	return &emptypb.Empty{}, nil
}

func (e *envGRPC) Reset(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	obs, err := e.inner.Reset(ctx)
	if err != nil {
		return nil, err
	}
	return observationStruct(obs)
}

func (e *envGRPC) Evaluate(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	resp, err := e.inner.Evaluate(ctx)
	if err != nil {
		return nil, err
	}
	return stepStruct(resp)
}

func (e *envGRPC) Rollout(stream grpc.ServerStream) error {
	recv := func() (*StepRequest, error) {
		in := new(structpb.Struct)
		if err := stream.RecvMsg(in); err != nil {
			return nil, err
		}
		return &StepRequest{Epochs: int(in.GetFields()["epochs"].GetNumberValue())}, nil
	}
	send := func(resp *StepResponse) error {
		out, err := stepStruct(resp)
		if err != nil {
			return err
		}
		return stream.SendMsg(out)
	}
	return e.inner.Rollout(stream.Context(), recv, send)
}

func observationStruct(obs *Observation) (*structpb.Struct, error) {
	pos := make([]any, len(obs.InfoPositions))
	for i, p := range obs.InfoPositions {
		pos[i] = p
	}
	return structpb.NewStruct(map[string]any{
		"info_positions": pos,
		"mean_capacity":  obs.MeanCapacity,
		"info_capacity":  obs.InfoCapacity,
	})
}

func observationFromStruct(s *structpb.Struct) *Observation {
	f := s.GetFields()
	obs := &Observation{
		MeanCapacity: f["mean_capacity"].GetNumberValue(),
		InfoCapacity: f["info_capacity"].GetNumberValue(),
	}
	for _, v := range f["info_positions"].GetListValue().GetValues() {
		obs.InfoPositions = append(obs.InfoPositions, int(v.GetNumberValue()))
	}
	return obs
}

func stepStruct(r *StepResponse) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"simulations": r.Result.Simulations,
		"word_errors": r.Result.WordErrors,
		"bit_errors":  r.Result.BitErrors,
		"ber":         r.Result.BER,
		"bler":        r.Result.BLER,
		"progress":    r.Result.Progress,
		"done":        r.Done,
	})
}

func stepFromStruct(s *structpb.Struct) *StepResponse {
	f := s.GetFields()
	return &StepResponse{
		Result: sim.BERResult{
			Simulations: int(f["simulations"].GetNumberValue()),
			WordErrors:  int(f["word_errors"].GetNumberValue()),
			BitErrors:   int(f["bit_errors"].GetNumberValue()),
			BER:         f["ber"].GetNumberValue(),
			BLER:        f["bler"].GetNumberValue(),
			Progress:    f["progress"].GetNumberValue(),
		},
		Done: f["done"].GetBoolValue(),
	}
}

// Client calls a remote environment.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient returns a client over cc.
func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

// Configure sends cfg to the server.
func (c *Client) Configure(ctx context.Context, cfg config.Config) error {
	m, err := config.ToMap(cfg)
	if err != nil {
		return err
	}
	in, err := structpb.NewStruct(m)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return c.cc.Invoke(ctx, methodConfigure, in, new(emptypb.Empty))
}

// Reset starts a new experiment and returns its observation.
func (c *Client) Reset(ctx context.Context) (*Observation, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodReset, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return observationFromStruct(out), nil
}

// Evaluate runs the remote experiment to completion.
func (c *Client) Evaluate(ctx context.Context) (*StepResponse, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodEvaluate, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return stepFromStruct(out), nil
}

// Rollout requests epochsPerStep epochs at a time until the server reports
// the run done or maxSteps responses arrived. fn sees every response.
func (c *Client) Rollout(ctx context.Context, epochsPerStep, maxSteps int, fn func(*StepResponse)) error {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], methodRollout)
	if err != nil {
		return err
	}
	req, err := structpb.NewStruct(map[string]any{"epochs": epochsPerStep})
	if err != nil {
		return err
	}
	for step := 0; step < maxSteps; step++ {
		if err := stream.SendMsg(req); err != nil {
			return err
		}
		out := new(structpb.Struct)
		if err := stream.RecvMsg(out); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		resp := stepFromStruct(out)
		if fn != nil {
			fn(resp)
		}
		if resp.Done {
			break
		}
	}
	return stream.CloseSend()
}
