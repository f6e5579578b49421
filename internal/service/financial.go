package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/teresa-solution/lead-finance-service/internal/access"
	"github.com/teresa-solution/lead-finance-service/internal/audit"
	"github.com/teresa-solution/lead-finance-service/internal/crypto"
	"github.com/teresa-solution/lead-finance-service/internal/model"
	"github.com/teresa-solution/lead-finance-service/internal/monitoring"
	"github.com/teresa-solution/lead-finance-service/internal/pricing"
	"github.com/teresa-solution/lead-finance-service/internal/store"
)

var (
	ErrUnauthorized     = errors.New("unauthorized: admin access required")
	ErrNotFound         = errors.New("lead not found")
	ErrNoFinancialData  = errors.New("no encrypted financial data")
	ErrAuditWriteFailed = errors.New("audit write failed")
	ErrInvalidInput     = errors.New("invalid input")
	ErrStoreWrite       = errors.New("store write failed")
	ErrNoAuditTrail     = errors.New("no audit entries for lead")
	ErrWriteSuperseded  = errors.New("financial write superseded by a later write")
)

// LeadStore is the lead side of the store the service needs.
type LeadStore interface {
	GetLead(ctx context.Context, id string) (*model.Lead, error)
	SetEncryptedFinancials(ctx context.Context, leadID string, rec model.EncryptedFinancialRecord) error
	MarkFinancialsVerified(ctx context.Context, leadID, priceQuoteToken string) error
}

// AuditStore appends and lists audit entries.
type AuditStore interface {
	audit.Appender
	ListAudit(ctx context.Context, leadID string) ([]model.AuditLogEntry, error)
}

// FinancialService runs the encrypted write path, the guarded read path
// and quoting.
type FinancialService struct {
	leads  LeadStore
	audits AuditStore
	writer *audit.Writer
	cipher *crypto.Cipher
	guard  *access.Guard
	engine *pricing.Engine
	now    func() time.Time
}

type Option func(*FinancialService)

// WithClock sets the clock used for audit timestamps and, unless
// WithEngine is also given, for quoting.
func WithClock(now func() time.Time) Option {
	return func(s *FinancialService) { s.now = now }
}

func WithEngine(e *pricing.Engine) Option {
	return func(s *FinancialService) { s.engine = e }
}

// NewFinancialService wires the service. cipher may be nil when no key is
// configured; financial operations then fail with crypto.ErrConfiguration.
func NewFinancialService(leads LeadStore, audits AuditStore, cipher *crypto.Cipher, guard *access.Guard, opts ...Option) *FinancialService {
	s := &FinancialService{
		leads:  leads,
		audits: audits,
		writer: audit.NewWriter(audits),
		cipher: cipher,
		guard:  guard,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.guard == nil {
		s.guard = access.NewGuard(nil)
	}
	if s.engine == nil {
		s.engine = pricing.NewEngine(pricing.WithClock(s.now))
	}
	return s
}

// WriteFinancialFields encrypts fields onto the lead and appends an audit
// entry. The record is stored unverified and flagged verified only after
// the audit entry is committed, so an audit failure leaves it unverified.
// The flag is set only while the stored ciphertext is still this write's;
// if another write replaced it in between, the stored record stays
// unverified and ErrWriteSuperseded is returned.
func (s *FinancialService) WriteFinancialFields(ctx context.Context, leadID string, fields model.FinancialFields, actingUserID string) (*model.AuditLogEntry, error) {
	start := time.Now()
	defer func() { monitoring.FinancialWriteDuration.Observe(time.Since(start).Seconds()) }()

	if err := validateWrite(leadID, fields, actingUserID); err != nil {
		monitoring.FinancialWrites.WithLabelValues("invalid").Inc()
		return nil, err
	}
	if s.cipher == nil {
		monitoring.FinancialWrites.WithLabelValues("unconfigured").Inc()
		return nil, crypto.ErrConfiguration
	}

	rec, err := s.encrypt(fields)
	if err != nil {
		monitoring.FinancialWrites.WithLabelValues("encrypt_failed").Inc()
		return nil, err
	}

	if err := s.leads.SetEncryptedFinancials(ctx, leadID, rec); err != nil {
		monitoring.FinancialWrites.WithLabelValues("store_failed").Inc()
		if errors.Is(err, store.ErrLeadNotFound) {
			return nil, ErrNotFound
		}
		log.Error().Err(err).Str("lead_id", leadID).Msg("Failed to store encrypted financials")
		return nil, fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}

	entry, err := s.writer.RecordWrite(ctx, leadID, fields.PriceQuote, actingUserID, s.now())
	if err != nil {
		monitoring.FinancialWrites.WithLabelValues("audit_failed").Inc()
		monitoring.Alert("audit append failed after financial write", map[string]interface{}{
			"lead_id": leadID,
			"user_id": actingUserID,
		})
		log.Error().Err(err).Str("lead_id", leadID).Msg("Encrypted financials stored without audit entry")
		return nil, fmt.Errorf("%w: %v", ErrAuditWriteFailed, err)
	}

	err = s.leads.MarkFinancialsVerified(ctx, leadID, rec.PriceQuoteEncrypted)
	if errors.Is(err, store.ErrFinancialsSuperseded) {
		monitoring.FinancialWrites.WithLabelValues("superseded").Inc()
		log.Warn().Str("lead_id", leadID).Str("audit_id", entry.ID.String()).Msg("Financial write replaced before it was verified")
		return nil, ErrWriteSuperseded
	}
	if err != nil {
		monitoring.FinancialWrites.WithLabelValues("verify_failed").Inc()
		log.Error().Err(err).Str("lead_id", leadID).Str("audit_id", entry.ID.String()).Msg("Failed to mark financials verified")
		return nil, fmt.Errorf("%w: mark verified: %v", ErrStoreWrite, err)
	}

	monitoring.FinancialWrites.WithLabelValues("success").Inc()
	log.Info().Str("lead_id", leadID).Str("user_id", actingUserID).Str("audit_id", entry.ID.String()).Msg("Financial fields encrypted")
	return entry, nil
}

func (s *FinancialService) encrypt(f model.FinancialFields) (model.EncryptedFinancialRecord, error) {
	var rec model.EncryptedFinancialRecord
	targets := []struct {
		plain string
		out   *string
	}{
		{f.PriceQuote, &rec.PriceQuoteEncrypted},
		{f.GST, &rec.GSTEncrypted},
		{f.FinalDeposit, &rec.FinalDepositEncrypted},
		{f.AdvanceDeposit, &rec.AdvanceDepositEncrypted},
	}
	for _, t := range targets {
		token, err := s.cipher.EncryptField([]byte(t.plain))
		if err != nil {
			return model.EncryptedFinancialRecord{}, fmt.Errorf("encrypt financial field: %w", err)
		}
		*t.out = token
	}
	return rec, nil
}

func validateWrite(leadID string, f model.FinancialFields, userID string) error {
	if leadID == "" {
		return fmt.Errorf("%w: lead_id is required", ErrInvalidInput)
	}
	if userID == "" {
		return fmt.Errorf("%w: acting user is required", ErrInvalidInput)
	}
	values := []struct{ name, value string }{
		{"price_quote", f.PriceQuote},
		{"gst", f.GST},
		{"fd", f.FinalDeposit},
		{"ad", f.AdvanceDeposit},
	}
	for _, v := range values {
		if v.value == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidInput, v.name)
		}
		d, err := decimal.NewFromString(v.value)
		if err != nil {
			return fmt.Errorf("%w: %s is not a decimal amount", ErrInvalidInput, v.name)
		}
		if d.IsNegative() {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidInput, v.name)
		}
	}
	return nil
}

// ReadFinancialFields decrypts a lead's financial fields for principalID.
// Authorization is checked before anything is loaded.
func (s *FinancialService) ReadFinancialFields(ctx context.Context, leadID, principalID string) (*model.DecryptedFinancials, error) {
	if s.guard.AuthorizeDecryption(ctx, principalID) != access.Allow {
		monitoring.DecryptionAttempts.WithLabelValues("denied").Inc()
		log.Warn().Str("lead_id", leadID).Str("user_id", principalID).Msg("Financial decryption denied")
		return nil, ErrUnauthorized
	}
	if leadID == "" {
		return nil, fmt.Errorf("%w: lead_id is required", ErrInvalidInput)
	}
	if s.cipher == nil {
		monitoring.DecryptionAttempts.WithLabelValues("unconfigured").Inc()
		return nil, crypto.ErrConfiguration
	}

	lead, err := s.leads.GetLead(ctx, leadID)
	if errors.Is(err, store.ErrLeadNotFound) {
		monitoring.DecryptionAttempts.WithLabelValues("not_found").Inc()
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load lead %s: %w", leadID, err)
	}
	if !lead.Financials.Complete() {
		monitoring.DecryptionAttempts.WithLabelValues("no_data").Inc()
		return nil, ErrNoFinancialData
	}

	var fields model.FinancialFields
	sources := []struct {
		name  string
		token string
		out   *string
	}{
		{"price_quote", lead.Financials.PriceQuoteEncrypted, &fields.PriceQuote},
		{"gst", lead.Financials.GSTEncrypted, &fields.GST},
		{"fd", lead.Financials.FinalDepositEncrypted, &fields.FinalDeposit},
		{"ad", lead.Financials.AdvanceDepositEncrypted, &fields.AdvanceDeposit},
	}
	for _, src := range sources {
		v, err := decryptAmount(s.cipher, src.token)
		if err != nil {
			monitoring.DecryptionAttempts.WithLabelValues("failed").Inc()
			log.Error().Err(err).Str("lead_id", leadID).Str("field", src.name).Msg("Failed to decrypt financial field")
			return nil, fmt.Errorf("%s: %w", src.name, err)
		}
		*src.out = v
	}

	monitoring.DecryptionAttempts.WithLabelValues("success").Inc()
	log.Info().Str("lead_id", leadID).Str("user_id", principalID).Msg("Financial fields decrypted")
	return &model.DecryptedFinancials{
		LeadID:   lead.ID,
		LeadName: lead.Name,
		Fields:   fields,
		Verified: lead.Financials.Verified,
	}, nil
}

// decryptAmount decrypts a financial token and requires the plaintext to be
// a decimal amount, which is what every write stores. Padding alone lets
// some wrong-key tokens through.
func decryptAmount(c *crypto.Cipher, token string) (string, error) {
	v, err := c.DecryptString(token)
	if err != nil {
		return "", err
	}
	if _, err := decimal.NewFromString(v); err != nil {
		return "", fmt.Errorf("%w: plaintext is not a decimal amount", crypto.ErrDecryption)
	}
	return v, nil
}

// AuditTrail lists a lead's audit entries oldest first.
func (s *FinancialService) AuditTrail(ctx context.Context, leadID string) ([]model.AuditLogEntry, error) {
	if leadID == "" {
		return nil, fmt.Errorf("%w: lead_id is required", ErrInvalidInput)
	}
	entries, err := s.audits.ListAudit(ctx, leadID)
	if err != nil {
		return nil, fmt.Errorf("list audit for lead %s: %w", leadID, err)
	}
	return entries, nil
}

// VerifyLatestAudit decrypts the current price quote for an authorized
// principal and checks it against the newest audit entry.
func (s *FinancialService) VerifyLatestAudit(ctx context.Context, leadID, principalID string) (bool, *model.AuditLogEntry, error) {
	data, err := s.ReadFinancialFields(ctx, leadID, principalID)
	if err != nil {
		return false, nil, err
	}
	entries, err := s.AuditTrail(ctx, leadID)
	if err != nil {
		return false, nil, err
	}
	if len(entries) == 0 {
		return false, nil, ErrNoAuditTrail
	}
	latest := entries[len(entries)-1]
	return audit.Verify(latest, data.Fields.PriceQuote), &latest, nil
}

// Quote runs the pricing engine and records the outcome.
func (s *FinancialService) Quote(req model.QuoteRequest) (model.QuoteResult, error) {
	res, err := s.engine.ComputeQuote(req)
	if err != nil {
		monitoring.QuotesComputed.WithLabelValues("invalid").Inc()
		return res, err
	}
	monitoring.QuotesComputed.WithLabelValues("ok").Inc()
	log.Info().
		Str("occasion", req.Occasion).
		Int("pax", req.Pax).
		Int64("total_price", res.TotalPrice).
		Int("lead_score", res.LeadScore).
		Str("payment_risk", string(res.PaymentRisk)).
		Msg("Quote computed")
	return res, nil
}

// QuoteLead quotes a stored lead, deriving the lead time from its event
// date.
func (s *FinancialService) QuoteLead(ctx context.Context, leadID, menuType string) (model.QuoteResult, error) {
	lead, err := s.leads.GetLead(ctx, leadID)
	if errors.Is(err, store.ErrLeadNotFound) {
		return model.QuoteResult{}, ErrNotFound
	}
	if err != nil {
		return model.QuoteResult{}, fmt.Errorf("load lead %s: %w", leadID, err)
	}

	req := model.QuoteRequest{
		Occasion:   lead.Occasion,
		Pax:        lead.Pax,
		MenuType:   menuType,
		LeadSource: lead.Source,
	}
	if lead.EventDate != nil {
		req.FunctionDate = lead.EventDate.Format(model.DateLayout)
		days := model.LeadTimeDays(*lead.EventDate, s.now())
		req.LeadTimeDays = &days
	}
	return s.Quote(req)
}
