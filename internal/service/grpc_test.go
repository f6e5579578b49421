package service

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/teresa-solution/lead-finance-service/internal/audit"
)

func withUser(id string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(UserIDHeader, id))
}

func mustStruct(t *testing.T, m map[string]interface{}) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func assertCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	st, ok := status.FromError(err)
	require.True(t, ok, "not a status error: %v", err)
	assert.Equal(t, code, st.Code())
}

func TestLeadFinanceServer_WriteAndRead(t *testing.T) {
	svc, _ := setupTestService(t)
	srv := NewLeadFinanceServer(svc)

	// Amounts may arrive as numbers or strings.
	resp, err := srv.WriteFinancials(withUser(salesID), mustStruct(t, map[string]interface{}{
		"lead_id":     testLeadID,
		"price_quote": 155760,
		"gst":         "23760",
		"fd":          109032,
		"ad":          "46728",
	}))
	require.NoError(t, err)
	fields := resp.GetFields()
	assert.True(t, fields["success"].GetBoolValue())
	assert.Equal(t, audit.ComputeHash(testLeadID, "155760", salesID, fixedNow), fields["audit_hash"].GetStringValue())

	out, err := srv.ReadFinancials(withUser(adminID), mustStruct(t, map[string]interface{}{"lead_id": testLeadID}))
	require.NoError(t, err)
	data := out.GetFields()["financial_data"].GetStructValue().GetFields()
	assert.Equal(t, "155760", data["price_quote"].GetStringValue())
	assert.Equal(t, "23760", data["gst"].GetStringValue())
	assert.Equal(t, "109032", data["fd"].GetStringValue())
	assert.Equal(t, "46728", data["ad"].GetStringValue())
	assert.Equal(t, "Mehta Wedding", out.GetFields()["lead_name"].GetStringValue())

	logs, err := srv.ListAuditLog(withUser(salesID), mustStruct(t, map[string]interface{}{"lead_id": testLeadID}))
	require.NoError(t, err)
	assert.Len(t, logs.GetFields()["entries"].GetListValue().GetValues(), 1)

	verified, err := srv.VerifyAudit(withUser(adminID), mustStruct(t, map[string]interface{}{"lead_id": testLeadID}))
	require.NoError(t, err)
	assert.True(t, verified.GetFields()["verified"].GetBoolValue())
}

func TestLeadFinanceServer_ErrorCodes(t *testing.T) {
	svc, _ := setupTestService(t)
	srv := NewLeadFinanceServer(svc)
	lead := mustStruct(t, map[string]interface{}{"lead_id": testLeadID})

	_, err := srv.ReadFinancials(context.Background(), lead)
	assertCode(t, err, codes.Unauthenticated)

	_, err = srv.ReadFinancials(withUser(salesID), lead)
	assertCode(t, err, codes.PermissionDenied)

	_, err = srv.ReadFinancials(withUser(adminID), lead)
	assertCode(t, err, codes.NotFound)

	_, err = srv.ReadFinancials(withUser(adminID), mustStruct(t, map[string]interface{}{"lead_id": "ghost"}))
	assertCode(t, err, codes.NotFound)

	_, err = srv.WriteFinancials(withUser(salesID), mustStruct(t, map[string]interface{}{"lead_id": testLeadID, "price_quote": "1"}))
	assertCode(t, err, codes.InvalidArgument)

	_, err = srv.WriteFinancials(withUser(salesID), mustStruct(t, map[string]interface{}{"lead_id": testLeadID, "price_quote": true}))
	assertCode(t, err, codes.InvalidArgument)

	_, err = srv.ComputeQuote(withUser(salesID), mustStruct(t, map[string]interface{}{
		"occasion": "wedding", "pax": 5000, "function_date": "2027-01-01", "menu_type": "premium", "lead_time_days": 30,
	}))
	assertCode(t, err, codes.InvalidArgument)

	noKey := NewLeadFinanceServer(NewFinancialService(svc.leads, svc.audits, nil, nil))
	_, err = noKey.ReadFinancials(withUser(adminID), lead)
	assertCode(t, err, codes.FailedPrecondition)
}

func TestToStatus_Mapping(t *testing.T) {
	assertCode(t, toStatus(ErrAuditWriteFailed), codes.Aborted)
	assertCode(t, toStatus(ErrWriteSuperseded), codes.Aborted)
	assertCode(t, toStatus(ErrNoAuditTrail), codes.NotFound)
	assertCode(t, toStatus(assert.AnError), codes.Internal)
}

func TestLeadFinanceServer_OverGRPC(t *testing.T) {
	svc, _ := setupTestService(t)

	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	RegisterLeadFinanceServiceServer(server, NewLeadFinanceServer(svc))
	go func() { _ = server.Serve(lis) }()
	defer server.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()

	ctx := metadata.AppendToOutgoingContext(context.Background(), UserIDHeader, salesID)
	in := mustStruct(t, map[string]interface{}{
		"occasion":       "corporate",
		"pax":            250,
		"function_date":  "2026-12-05",
		"menu_type":      "non-vegetarian",
		"lead_time_days": 10,
	})
	out := new(structpb.Struct)
	require.NoError(t, conn.Invoke(ctx, "/"+ServiceName+"/ComputeQuote", in, out))
	assert.Equal(t, float64(497304), out.GetFields()["total_price"].GetNumberValue())
	assert.True(t, out.GetFields()["demand_surge"].GetBoolValue())

	// Quote a stored lead by id.
	out = new(structpb.Struct)
	require.NoError(t, conn.Invoke(ctx, "/"+ServiceName+"/ComputeQuote",
		mustStruct(t, map[string]interface{}{"lead_id": testLeadID, "menu_type": "vegetarian"}), out))
	assert.Positive(t, out.GetFields()["total_price"].GetNumberValue())

	err = conn.Invoke(ctx, "/"+ServiceName+"/ReadFinancials", mustStruct(t, map[string]interface{}{"lead_id": testLeadID}), new(structpb.Struct))
	assertCode(t, err, codes.PermissionDenied)
}
