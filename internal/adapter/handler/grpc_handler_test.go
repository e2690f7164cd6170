package handler

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/rl1809/store-transfer/internal/core/domain"
)

type grpcEnv struct {
	client *TransferServiceClient
	auth   *Authenticator
}

func newGRPCEnv(t *testing.T) *grpcEnv {
	t.Helper()
	transfers, _ := newServices(t)
	auth := NewAuthenticator(testSecret)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(auth.UnaryAuthInterceptor))
	RegisterTransferServiceServer(srv, NewGRPCHandler(transfers, nil))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return &grpcEnv{client: NewTransferServiceClient(conn), auth: auth}
}

func (e *grpcEnv) as(t *testing.T, p domain.Principal) context.Context {
	t.Helper()
	token, err := e.auth.Issue(p, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)
}

func TestGRPC_CreateGetList(t *testing.T) {
	env := newGRPCEnv(t)

	req := &GRPCCreateTransferRequest{IdempotencyKey: "k-1"}
	req.SendingStoreID = "store-a"
	req.ReceivingStoreID = "store-b"
	req.Items = []TransferItemRequest{{ProductID: "widget", Quantity: 2}}

	created, err := env.client.Create(env.as(t, senderOps), req)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.Status != "Requested" || created.InitiatingEmployeeID != "emp-a" {
		t.Errorf("unexpected transfer %+v", created)
	}

	got, err := env.client.Get(env.as(t, receiver), &GRPCGetTransferRequest{RequestID: created.ID})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ID != created.ID || len(got.Items) != 1 || got.Items[0].QuantityRequested != 2 {
		t.Errorf("unexpected transfer %+v", got)
	}

	list, err := env.client.ListForStore(env.as(t, receiver), &GRPCListForStoreRequest{StoreID: "store-b"})
	if err != nil {
		t.Fatalf("ListForStore failed: %v", err)
	}
	if len(list.Transfers) != 1 {
		t.Errorf("expected 1 transfer, got %d", len(list.Transfers))
	}

	_, err = env.client.ListForStore(env.as(t, receiver), &GRPCListForStoreRequest{StoreID: "store-nowhere"})
	if status.Code(err) != codes.NotFound {
		t.Errorf("unknown store: expected NotFound, got %v", err)
	}
}

func TestGRPC_StatusCodes(t *testing.T) {
	env := newGRPCEnv(t)

	req := &GRPCCreateTransferRequest{}
	req.SendingStoreID = "store-a"
	req.ReceivingStoreID = "store-b"
	req.Items = []TransferItemRequest{{ProductID: "widget", Quantity: 1}}
	created, err := env.client.Create(env.as(t, senderOps), req)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	t.Run("unauthenticated", func(t *testing.T) {
		_, err := env.client.Get(context.Background(), &GRPCGetTransferRequest{RequestID: created.ID})
		if status.Code(err) != codes.Unauthenticated {
			t.Errorf("expected Unauthenticated, got %v", err)
		}
	})

	t.Run("not found", func(t *testing.T) {
		_, err := env.client.Get(env.as(t, receiver), &GRPCGetTransferRequest{RequestID: "missing"})
		if status.Code(err) != codes.NotFound {
			t.Errorf("expected NotFound, got %v", err)
		}
	})

	t.Run("validation", func(t *testing.T) {
		bad := &GRPCCreateTransferRequest{}
		bad.SendingStoreID = "store-a"
		bad.ReceivingStoreID = "store-a"
		bad.Items = []TransferItemRequest{{ProductID: "widget", Quantity: 1}}
		_, err := env.client.Create(env.as(t, senderOps), bad)
		if status.Code(err) != codes.InvalidArgument {
			t.Errorf("expected InvalidArgument, got %v", err)
		}
	})

	t.Run("wrong party", func(t *testing.T) {
		update := &GRPCUpdateStatusRequest{RequestID: created.ID}
		update.Status = "Accepted"
		_, err := env.client.UpdateStatus(env.as(t, senderOps), update)
		if status.Code(err) != codes.PermissionDenied {
			t.Errorf("expected PermissionDenied, got %v", err)
		}
	})

	t.Run("invalid transition", func(t *testing.T) {
		update := &GRPCUpdateStatusRequest{RequestID: created.ID}
		update.Status = "Received"
		var trailer metadata.MD
		_, err := env.client.UpdateStatus(env.as(t, receiver), update, grpc.Trailer(&trailer))
		if status.Code(err) != codes.FailedPrecondition {
			t.Errorf("expected FailedPrecondition, got %v", err)
		}
		if got := trailer.Get("current-status"); len(got) != 1 || got[0] != "Requested" {
			t.Errorf("expected current-status trailer, got %v", got)
		}
	})
}

func TestGRPCCode(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
	}{
		{domain.ErrConcurrencyConflict, codes.Aborted},
		{domain.ErrDuplicateRequest, codes.AlreadyExists},
		{domain.ErrInsufficientStock, codes.DataLoss},
		{domain.ErrForbidden, codes.PermissionDenied},
		{errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		if got := grpcCode(tt.err); got != tt.code {
			t.Errorf("grpcCode(%v) = %v, want %v", tt.err, got, tt.code)
		}
	}
}
