// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"context"
	"io"

	"google.golang.org/grpc"
)

const (
	ServiceName = "partd.helper.v1.ExternalCommand"

	MethodStart      = "/" + ServiceName + "/Start"
	MethodCopyBlocks = "/" + ServiceName + "/CopyBlocks"
	MethodExit       = "/" + ServiceName + "/Exit"
)

// EventSender is the server side of an event stream
type EventSender interface {
	Send(*Event) error
	Context() context.Context
}

// HelperServer is implemented by the privileged helper
type HelperServer interface {
	Start(*StartRequest, EventSender) error
	CopyBlocks(*CopyBlocksRequest, EventSender) error
	Exit(context.Context, *ExitRequest) (*ExitReply, error)
}

// RegisterHelperServer registers srv on s
func RegisterHelperServer(s grpc.ServiceRegistrar, srv HelperServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes the helper service for grpc-go
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*HelperServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Exit",
			Handler:    exitHandler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Start",
			Handler:       startHandler,
			ServerStreams: true,
		},
		{
			StreamName:    "CopyBlocks",
			Handler:       copyBlocksHandler,
			ServerStreams: true,
		},
	},
	Metadata: "partd/helper.v1",
}

type eventSender struct {
	grpc.ServerStream
}

func (s *eventSender) Send(ev *Event) error {
	return s.ServerStream.SendMsg(ev)
}

func startHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(StartRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(HelperServer).Start(in, &eventSender{stream})
}

func copyBlocksHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(CopyBlocksRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(HelperServer).CopyBlocks(in, &eventSender{stream})
}

func exitHandler(
	srv interface{},
	ctx context.Context,
	dec func(interface{}) error,
	interceptor grpc.UnaryServerInterceptor,
) (interface{}, error) {
	in := new(ExitRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HelperServer).Exit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: MethodExit,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(HelperServer).Exit(ctx, req.(*ExitRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// EventStream is the client side of an event stream
type EventStream interface {
	Recv() (*Event, error)
}

type eventStream struct {
	grpc.ClientStream
}

func (s *eventStream) Recv() (*Event, error) {
	ev := new(Event)
	if err := s.ClientStream.RecvMsg(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// HelperClient is the caller side of the helper service
type HelperClient struct {
	cc grpc.ClientConnInterface
}

func NewHelperClient(cc grpc.ClientConnInterface) *HelperClient {
	return &HelperClient{cc: cc}
}

func (c *HelperClient) openStream(
	ctx context.Context,
	desc *grpc.StreamDesc,
	method string,
	in interface{},
	opts ...grpc.CallOption,
) (EventStream, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, desc, method, opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		if err == io.EOF {
			// The real error surfaces on RecvMsg
			return &eventStream{stream}, nil
		}
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &eventStream{stream}, nil
}

func (c *HelperClient) Start(ctx context.Context, in *StartRequest, opts ...grpc.CallOption) (EventStream, error) {
	return c.openStream(ctx, &ServiceDesc.Streams[0], MethodStart, in, opts...)
}

func (c *HelperClient) CopyBlocks(ctx context.Context, in *CopyBlocksRequest, opts ...grpc.CallOption) (EventStream, error) {
	return c.openStream(ctx, &ServiceDesc.Streams[1], MethodCopyBlocks, in, opts...)
}

func (c *HelperClient) Exit(ctx context.Context, in *ExitRequest, opts ...grpc.CallOption) (*ExitReply, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	out := new(ExitReply)
	if err := c.cc.Invoke(ctx, MethodExit, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
