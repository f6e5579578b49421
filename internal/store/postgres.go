package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teresa-solution/lead-finance-service/internal/model"
)

// PostgresStore reads and writes the leads and audit_log tables. The
// audit_log table rejects UPDATE and DELETE with a trigger (see
// scripts/migrations).
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// parseLeadID maps ids that cannot exist in a uuid column to ErrLeadNotFound.
func parseLeadID(id string) (uuid.UUID, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, ErrLeadNotFound
	}
	return u, nil
}

func (s *PostgresStore) PutLead(ctx context.Context, lead *model.Lead) error {
	id, err := parseLeadID(lead.ID)
	if err != nil {
		return fmt.Errorf("invalid lead id %q: %w", lead.ID, err)
	}
	now := time.Now().UTC()
	query := `INSERT INTO leads (id, name, occasion, pax, event_date, source, created_at, updated_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
              ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, occasion = EXCLUDED.occasion,
                  pax = EXCLUDED.pax, event_date = EXCLUDED.event_date, source = EXCLUDED.source,
                  updated_at = EXCLUDED.updated_at`
	_, err = s.pool.Exec(ctx, query, id, lead.Name, lead.Occasion, lead.Pax, lead.EventDate, lead.Source, now)
	return err
}

func (s *PostgresStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	leadID, err := parseLeadID(id)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, name, occasion, pax, event_date, source,
                     price_quote_encrypted, gst_encrypted, fd_encrypted, ad_encrypted,
                     financials_verified, financials_updated_at, created_at, updated_at
              FROM leads WHERE id = $1`
	var (
		uid               uuid.UUID
		lead              model.Lead
		occasion, source  *string
		pax               *int32
		pq, gst, fd, ad   *string
		verified          bool
		financialsUpdated *time.Time
	)
	err = s.pool.QueryRow(ctx, query, leadID).Scan(&uid, &lead.Name, &occasion, &pax, &lead.EventDate, &source,
		&pq, &gst, &fd, &ad, &verified, &financialsUpdated, &lead.CreatedAt, &lead.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrLeadNotFound
	}
	if err != nil {
		return nil, err
	}

	lead.ID = uid.String()
	lead.Occasion = deref(occasion)
	lead.Source = deref(source)
	if pax != nil {
		lead.Pax = int(*pax)
	}
	if pq != nil || gst != nil || fd != nil || ad != nil {
		rec := &model.EncryptedFinancialRecord{
			PriceQuoteEncrypted:     deref(pq),
			GSTEncrypted:            deref(gst),
			FinalDepositEncrypted:   deref(fd),
			AdvanceDepositEncrypted: deref(ad),
			Verified:                verified,
		}
		if financialsUpdated != nil {
			rec.UpdatedAt = *financialsUpdated
		}
		lead.Financials = rec
	}
	return &lead, nil
}

// SetEncryptedFinancials overwrites all four ciphertexts and clears the
// verified flag in one statement.
func (s *PostgresStore) SetEncryptedFinancials(ctx context.Context, leadID string, rec model.EncryptedFinancialRecord) error {
	id, err := parseLeadID(leadID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	query := `UPDATE leads SET price_quote_encrypted = $2, gst_encrypted = $3, fd_encrypted = $4, ad_encrypted = $5,
                  financials_verified = FALSE, financials_updated_at = $6, updated_at = $6
              WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, rec.PriceQuoteEncrypted, rec.GSTEncrypted,
		rec.FinalDepositEncrypted, rec.AdvanceDepositEncrypted, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLeadNotFound
	}
	return nil
}

// MarkFinancialsVerified flags the row only if it still holds
// priceQuoteToken. A later write has replaced it otherwise.
func (s *PostgresStore) MarkFinancialsVerified(ctx context.Context, leadID, priceQuoteToken string) error {
	id, err := parseLeadID(leadID)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET financials_verified = TRUE WHERE id = $1 AND price_quote_encrypted = $2`,
		id, priceQuoteToken)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM leads WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrLeadNotFound
	}
	return ErrFinancialsSuperseded
}

func (s *PostgresStore) AppendAudit(ctx context.Context, entry *model.AuditLogEntry) error {
	id, err := parseLeadID(entry.LeadID)
	if err != nil {
		return err
	}
	query := `INSERT INTO audit_log (id, lead_id, data_hash, user_id, created_at)
              VALUES ($1, $2, $3, $4, $5)`
	_, err = s.pool.Exec(ctx, query, entry.ID, id, entry.DataHash, entry.UserID, entry.CreatedAt)
	return err
}

func (s *PostgresStore) ListAudit(ctx context.Context, leadID string) ([]model.AuditLogEntry, error) {
	id, err := parseLeadID(leadID)
	if err != nil {
		return []model.AuditLogEntry{}, nil
	}
	query := `SELECT id, lead_id, data_hash, user_id, created_at
              FROM audit_log WHERE lead_id = $1 ORDER BY created_at, id`
	rows, err := s.pool.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []model.AuditLogEntry{}
	for rows.Next() {
		var (
			e   model.AuditLogEntry
			lid uuid.UUID
		)
		if err := rows.Scan(&e.ID, &lid, &e.DataHash, &e.UserID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.LeadID = lid.String()
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
