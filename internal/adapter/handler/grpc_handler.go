package handler

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/store-transfer/internal/core/domain"
	"github.com/rl1809/store-transfer/internal/core/service"
)

// JSONCodecName is the content-subtype clients select with
// grpc.CallContentSubtype to talk to TransferServiceServer.
const JSONCodecName = "json"

const transferServiceName = "transfer.v1.TransferService"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string { return JSONCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type GRPCCreateTransferRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	CreateTransferRequest
}

type GRPCUpdateStatusRequest struct {
	RequestID string `json:"request_id"`
	UpdateStatusRequest
}

type GRPCGetTransferRequest struct {
	RequestID string `json:"request_id"`
}

type GRPCListForStoreRequest struct {
	StoreID string `json:"store_id"`
}

type GRPCListForStoreResponse struct {
	Transfers []TransferResponse `json:"transfers"`
}

// TransferServiceServer is the gRPC surface of the transfer workflow.
type TransferServiceServer interface {
	Create(context.Context, *GRPCCreateTransferRequest) (*TransferResponse, error)
	UpdateStatus(context.Context, *GRPCUpdateStatusRequest) (*TransferResponse, error)
	Get(context.Context, *GRPCGetTransferRequest) (*TransferResponse, error)
	ListForStore(context.Context, *GRPCListForStoreRequest) (*GRPCListForStoreResponse, error)
}

type GRPCHandler struct {
	transfers *service.TransferService
	logger    *zap.Logger
}

func NewGRPCHandler(transfers *service.TransferService, logger *zap.Logger) *GRPCHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GRPCHandler{transfers: transfers, logger: logger}
}

func (h *GRPCHandler) Create(ctx context.Context, req *GRPCCreateTransferRequest) (*TransferResponse, error) {
	p, _ := PrincipalFromContext(ctx)
	transfer, err := h.transfers.CreateTransferRequest(ctx, req.toInput(req.SendingStoreID, p, req.IdempotencyKey))
	if err != nil {
		return nil, h.toStatus(err)
	}
	resp := newTransferResponse(transfer)
	return &resp, nil
}

func (h *GRPCHandler) UpdateStatus(ctx context.Context, req *GRPCUpdateStatusRequest) (*TransferResponse, error) {
	next, err := domain.ParseTransferStatus(req.Status)
	if err != nil {
		return nil, h.toStatus(err)
	}

	p, _ := PrincipalFromContext(ctx)
	transfer, err := h.transfers.UpdateStatus(ctx, service.UpdateStatusInput{
		TransferID:    req.RequestID,
		Status:        next,
		Actor:         p,
		ResponseNotes: req.ResponseNotes,
	})
	if err != nil {
		setCurrentStatus(ctx, err)
		return nil, h.toStatus(err)
	}
	resp := newTransferResponse(transfer)
	return &resp, nil
}

func (h *GRPCHandler) Get(ctx context.Context, req *GRPCGetTransferRequest) (*TransferResponse, error) {
	transfer, err := h.transfers.GetTransferRequest(ctx, req.RequestID)
	if err != nil {
		return nil, h.toStatus(err)
	}
	resp := newTransferResponse(transfer)
	return &resp, nil
}

func (h *GRPCHandler) ListForStore(ctx context.Context, req *GRPCListForStoreRequest) (*GRPCListForStoreResponse, error) {
	transfers, err := h.transfers.ListTransferRequestsForStore(ctx, req.StoreID)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &GRPCListForStoreResponse{Transfers: newTransferListResponse(transfers)}, nil
}

func (h *GRPCHandler) toStatus(err error) error {
	code := grpcCode(err)
	if code == codes.Internal {
		h.logger.Error("grpc request failed", zap.Error(err))
		return status.Error(code, "internal error")
	}

	return status.Error(code, err.Error())
}

// setCurrentStatus reports the status a rejected transition found, so callers
// can refresh without a second Get.
func setCurrentStatus(ctx context.Context, err error) {
	var te *domain.TransitionError
	if errors.As(err, &te) {
		_ = grpc.SetTrailer(ctx, metadata.Pairs("current-status", string(te.Current)))
	}
}

func grpcCode(err error) codes.Code {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, domain.ErrValidation):
		return codes.InvalidArgument
	case errors.Is(err, domain.ErrInvalidTransition):
		return codes.FailedPrecondition
	case errors.Is(err, domain.ErrUnauthorizedTransition),
		errors.Is(err, domain.ErrForbidden):
		return codes.PermissionDenied
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return codes.Aborted
	case errors.Is(err, domain.ErrDuplicateRequest):
		return codes.AlreadyExists
	case errors.Is(err, domain.ErrDataIntegrity):
		return codes.DataLoss
	default:
		return codes.Internal
	}
}

// UnaryAuthInterceptor resolves the principal from the "authorization"
// metadata entry.
func (a *Authenticator) UnaryAuthInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	var header string
	if values := md.Get("authorization"); len(values) > 0 {
		header = values[0]
	}
	p, err := a.Principal(bearerToken(header))
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, errUnauthenticated.Error())
	}
	return next(WithPrincipal(ctx, p), req)
}

func RegisterTransferServiceServer(s grpc.ServiceRegistrar, srv TransferServiceServer) {
	s.RegisterService(&transferServiceDesc, srv)
}

func unaryMethod[Req any, Resp any](name string, call func(TransferServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(TransferServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + transferServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(TransferServiceServer), ctx, req.(*Req))
			})
		},
	}
}

var transferServiceDesc = grpc.ServiceDesc{
	ServiceName: transferServiceName,
	HandlerType: (*TransferServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("Create", TransferServiceServer.Create),
		unaryMethod("UpdateStatus", TransferServiceServer.UpdateStatus),
		unaryMethod("Get", TransferServiceServer.Get),
		unaryMethod("ListForStore", TransferServiceServer.ListForStore),
	},
	Streams: []grpc.StreamDesc{},
}

// TransferServiceClient is a thin JSON-codec client used by tooling and tests.
type TransferServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewTransferServiceClient(cc grpc.ClientConnInterface) *TransferServiceClient {
	return &TransferServiceClient{cc: cc}
}

func (c *TransferServiceClient) invoke(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+transferServiceName+"/"+method, in, out, opts...)
}

func (c *TransferServiceClient) Create(ctx context.Context, in *GRPCCreateTransferRequest, opts ...grpc.CallOption) (*TransferResponse, error) {
	out := new(TransferResponse)
	if err := c.invoke(ctx, "Create", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TransferServiceClient) UpdateStatus(ctx context.Context, in *GRPCUpdateStatusRequest, opts ...grpc.CallOption) (*TransferResponse, error) {
	out := new(TransferResponse)
	if err := c.invoke(ctx, "UpdateStatus", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TransferServiceClient) Get(ctx context.Context, in *GRPCGetTransferRequest, opts ...grpc.CallOption) (*TransferResponse, error) {
	out := new(TransferResponse)
	if err := c.invoke(ctx, "Get", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TransferServiceClient) ListForStore(ctx context.Context, in *GRPCListForStoreRequest, opts ...grpc.CallOption) (*GRPCListForStoreResponse, error) {
	out := new(GRPCListForStoreResponse)
	if err := c.invoke(ctx, "ListForStore", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
