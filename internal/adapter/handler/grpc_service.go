package handler

import (
	"context"
	"errors"

	"google.golang.org/grpc"

	"github.com/rl1809/warehouse-ledger/internal/core/domain"
)

const serviceName = "ledger.v1.Ledger"

func unary[Req any](name string, call func(LedgerServer, context.Context, *Req) (*Response, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(LedgerServer), ctx, req)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + serviceName + "/" + name,
			}
			return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(LedgerServer), ctx, req.(*Req))
			})
		},
	}
}

// LedgerServiceDesc describes ledger.v1.Ledger. Messages travel as JSON.
var LedgerServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateInbound", LedgerServer.CreateInbound),
		unary("CreateOutbound", LedgerServer.CreateOutbound),
		unary("AmendInbound", LedgerServer.AmendInbound),
		unary("AmendOutbound", LedgerServer.AmendOutbound),
		unary("CancelInbound", LedgerServer.CancelInbound),
		unary("DeleteOutbound", LedgerServer.DeleteOutbound),
		unary("GetStockPosition", LedgerServer.GetStockPosition),
		unary("ListStockPositions", LedgerServer.ListStockPositions),
		unary("SummarizeStock", LedgerServer.SummarizeStock),
		unary("ListMovements", LedgerServer.ListMovements),
		unary("ListAudit", LedgerServer.ListAudit),
		unary("Reconcile", LedgerServer.Reconcile),
		unary("Verify", LedgerServer.Verify),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ledger/v1/ledger.proto",
}

func RegisterLedgerServer(s grpc.ServiceRegistrar, srv LedgerServer) {
	s.RegisterService(&LedgerServiceDesc, srv)
}

// LedgerClient calls ledger.v1.Ledger. A response with Success false is
// returned together with a *RejectedError.
type LedgerClient struct {
	cc grpc.ClientConnInterface
}

func NewLedgerClient(cc grpc.ClientConnInterface) *LedgerClient {
	return &LedgerClient{cc: cc}
}

// RejectedError carries the message of an unsuccessful response.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	return e.Message
}

// IsRejected reports whether err came from an unsuccessful response rather
// than the transport.
func IsRejected(err error) bool {
	var r *RejectedError
	return errors.As(err, &r)
}

func (c *LedgerClient) invoke(ctx context.Context, method string, req any, opts ...grpc.CallOption) (*Response, error) {
	out := new(Response)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/"+method, req, out, opts...); err != nil {
		return nil, err
	}
	if !out.Success {
		return out, &RejectedError{Message: out.Message}
	}
	return out, nil
}

func (c *LedgerClient) CreateInbound(ctx context.Context, req *InboundRequest, opts ...grpc.CallOption) (*Response, error) {
	return c.invoke(ctx, "CreateInbound", req, opts...)
}

func (c *LedgerClient) CreateOutbound(ctx context.Context, req *OutboundRequest, opts ...grpc.CallOption) (*Response, error) {
	return c.invoke(ctx, "CreateOutbound", req, opts...)
}

func (c *LedgerClient) AmendInbound(ctx context.Context, req *AmendRequest, opts ...grpc.CallOption) (*Response, error) {
	return c.invoke(ctx, "AmendInbound", req, opts...)
}

func (c *LedgerClient) AmendOutbound(ctx context.Context, req *AmendRequest, opts ...grpc.CallOption) (*Response, error) {
	return c.invoke(ctx, "AmendOutbound", req, opts...)
}

func (c *LedgerClient) CancelInbound(ctx context.Context, req *EntryIDRequest, opts ...grpc.CallOption) (*Response, error) {
	return c.invoke(ctx, "CancelInbound", req, opts...)
}

func (c *LedgerClient) DeleteOutbound(ctx context.Context, req *EntryIDRequest, opts ...grpc.CallOption) (*Response, error) {
	return c.invoke(ctx, "DeleteOutbound", req, opts...)
}

func (c *LedgerClient) GetStockPosition(ctx context.Context, req *PositionQuery, opts ...grpc.CallOption) (*Response, error) {
	return c.invoke(ctx, "GetStockPosition", req, opts...)
}

func (c *LedgerClient) ListStockPositions(ctx context.Context, req *PositionQuery, opts ...grpc.CallOption) (*Response, error) {
	return c.invoke(ctx, "ListStockPositions", req, opts...)
}

func (c *LedgerClient) SummarizeStock(ctx context.Context, req *PositionQuery, opts ...grpc.CallOption) (*Response, error) {
	return c.invoke(ctx, "SummarizeStock", req, opts...)
}

func (c *LedgerClient) ListMovements(ctx context.Context, req *MovementQuery, opts ...grpc.CallOption) (*Response, error) {
	return c.invoke(ctx, "ListMovements", req, opts...)
}

func (c *LedgerClient) ListAudit(ctx context.Context, req *AuditQuery, opts ...grpc.CallOption) (*Response, error) {
	return c.invoke(ctx, "ListAudit", req, opts...)
}

func (c *LedgerClient) Reconcile(ctx context.Context, opts ...grpc.CallOption) (*Response, error) {
	return c.invoke(ctx, "Reconcile", &Empty{}, opts...)
}

func (c *LedgerClient) Verify(ctx context.Context, opts ...grpc.CallOption) (*Response, error) {
	return c.invoke(ctx, "Verify", &Empty{}, opts...)
}

func positionKey(q *PositionQuery) domain.PositionKey {
	key := domain.PositionKey{ItemID: q.ItemID, Location: domain.Location{Warehouse: q.Warehouse}}
	if q.Shelf != nil {
		key.Location.Shelf = *q.Shelf
	}
	return key
}
