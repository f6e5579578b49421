package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/teresa-solution/lead-finance-service/internal/crypto"
	"github.com/teresa-solution/lead-finance-service/internal/model"
	"github.com/teresa-solution/lead-finance-service/internal/pricing"
)

const (
	ServiceName = "leadfinance.v1.LeadFinanceService"
	// UserIDHeader carries the authenticated caller, set by the auth layer.
	UserIDHeader = "x-user-id"
)

// LeadFinanceServiceServer is the server API for leadfinance.v1.LeadFinanceService.
// Requests and responses are google.protobuf.Struct with the JSON shapes
// of the model package.
type LeadFinanceServiceServer interface {
	ComputeQuote(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WriteFinancials(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReadFinancials(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListAuditLog(context.Context, *structpb.Struct) (*structpb.Struct, error)
	VerifyAudit(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var LeadFinanceServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LeadFinanceServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ComputeQuote", Handler: unaryHandler("ComputeQuote", LeadFinanceServiceServer.ComputeQuote)},
		{MethodName: "WriteFinancials", Handler: unaryHandler("WriteFinancials", LeadFinanceServiceServer.WriteFinancials)},
		{MethodName: "ReadFinancials", Handler: unaryHandler("ReadFinancials", LeadFinanceServiceServer.ReadFinancials)},
		{MethodName: "ListAuditLog", Handler: unaryHandler("ListAuditLog", LeadFinanceServiceServer.ListAuditLog)},
		{MethodName: "VerifyAudit", Handler: unaryHandler("VerifyAudit", LeadFinanceServiceServer.VerifyAudit)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "leadfinance/v1/lead_finance.proto",
}

func RegisterLeadFinanceServiceServer(s grpc.ServiceRegistrar, srv LeadFinanceServiceServer) {
	s.RegisterService(&LeadFinanceServiceDesc, srv)
}

func unaryHandler(method string, call func(LeadFinanceServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LeadFinanceServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ServiceName + "/" + method,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(LeadFinanceServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// LeadFinanceServer exposes FinancialService over gRPC.
type LeadFinanceServer struct {
	svc *FinancialService
}

func NewLeadFinanceServer(svc *FinancialService) *LeadFinanceServer {
	return &LeadFinanceServer{svc: svc}
}

type quoteRequest struct {
	model.QuoteRequest
	LeadID string `json:"lead_id"`
}

func (s *LeadFinanceServer) ComputeQuote(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req quoteRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}

	var (
		res model.QuoteResult
		err error
	)
	if req.LeadID != "" {
		res, err = s.svc.QuoteLead(ctx, req.LeadID, req.MenuType)
	} else {
		res, err = s.svc.Quote(req.QuoteRequest)
	}
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(res)
}

// amount accepts a JSON string or number and keeps its decimal text.
type amount string

func (a *amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = amount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("amount must be a string or number")
	}
	*a = amount(n.String())
	return nil
}

type writeRequest struct {
	LeadID         string `json:"lead_id"`
	PriceQuote     amount `json:"price_quote"`
	GST            amount `json:"gst"`
	FinalDeposit   amount `json:"fd"`
	AdvanceDeposit amount `json:"ad"`
}

func (s *LeadFinanceServer) WriteFinancials(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var req writeRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}

	entry, err := s.svc.WriteFinancialFields(ctx, req.LeadID, model.FinancialFields{
		PriceQuote:     string(req.PriceQuote),
		GST:            string(req.GST),
		FinalDeposit:   string(req.FinalDeposit),
		AdvanceDeposit: string(req.AdvanceDeposit),
	}, userID)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]interface{}{
		"success":    true,
		"lead_id":    entry.LeadID,
		"audit_id":   entry.ID.String(),
		"audit_hash": entry.DataHash,
		"created_at": entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
}

type leadRequest struct {
	LeadID string `json:"lead_id"`
}

func (s *LeadFinanceServer) ReadFinancials(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var req leadRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}

	data, err := s.svc.ReadFinancialFields(ctx, req.LeadID, userID)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(data)
}

func (s *LeadFinanceServer) ListAuditLog(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if _, err := userIDFromContext(ctx); err != nil {
		return nil, err
	}
	var req leadRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}

	entries, err := s.svc.AuditTrail(ctx, req.LeadID)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]interface{}{
		"lead_id": req.LeadID,
		"entries": entries,
	})
}

func (s *LeadFinanceServer) VerifyAudit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var req leadRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}

	ok, entry, err := s.svc.VerifyLatestAudit(ctx, req.LeadID, userID)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]interface{}{
		"lead_id":  req.LeadID,
		"verified": ok,
		"entry":    entry,
	})
}

func userIDFromContext(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "missing metadata")
	}
	values := md.Get(UserIDHeader)
	if len(values) == 0 || values[0] == "" {
		return "", status.Error(codes.Unauthenticated, "missing "+UserIDHeader)
	}
	return values[0], nil
}

func fromStruct(in *structpb.Struct, v interface{}) error {
	data, err := json.Marshal(in.AsMap())
	if err != nil {
		return status.Error(codes.InvalidArgument, "malformed request")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}
	return nil
}

func toStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "Internal server error")
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Error(codes.Internal, "Internal server error")
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "Internal server error")
	}
	return out, nil
}

// toStatus maps service errors to gRPC codes. Decryption and storage
// details stay in the logs.
func toStatus(err error) error {
	var verr *pricing.ValidationError
	switch {
	case errors.As(err, &verr):
		return status.Error(codes.InvalidArgument, verr.Error())
	case errors.Is(err, ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrUnauthorized):
		return status.Error(codes.PermissionDenied, ErrUnauthorized.Error())
	case errors.Is(err, ErrNotFound):
		return status.Error(codes.NotFound, "Lead not found")
	case errors.Is(err, ErrNoFinancialData):
		return status.Error(codes.NotFound, "No encrypted financial data")
	case errors.Is(err, ErrNoAuditTrail):
		return status.Error(codes.NotFound, "No audit entries")
	case errors.Is(err, crypto.ErrConfiguration):
		return status.Error(codes.FailedPrecondition, "Encryption key not configured")
	case errors.Is(err, crypto.ErrDecryption):
		return status.Error(codes.DataLoss, "Failed to decrypt data")
	case errors.Is(err, ErrWriteSuperseded):
		return status.Error(codes.Aborted, "Financial data was replaced by a concurrent write before verification")
	case errors.Is(err, ErrAuditWriteFailed):
		return status.Error(codes.Aborted, "Financial data stored but audit trail write failed")
	}
	log.Error().Err(err).Msg("Unhandled service error")
	return status.Error(codes.Internal, "Internal server error")
}
