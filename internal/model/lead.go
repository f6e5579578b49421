package model

import (
	"time"

	"github.com/google/uuid"
)

// Lead represents the columns of the leads table the finance core reads.
// Everything else on the row belongs to the CRUD layer.
type Lead struct {
	ID         string                    `json:"id"`
	Name       string                    `json:"name"`
	Occasion   string                    `json:"occasion,omitempty"`
	Pax        int                       `json:"pax,omitempty"`
	EventDate  *time.Time                `json:"event_date,omitempty"`
	Source     string                    `json:"source,omitempty"`
	Financials *EncryptedFinancialRecord `json:"financials,omitempty"` // nil until the first write
	CreatedAt  time.Time                 `json:"created_at"`
	UpdatedAt  time.Time                 `json:"updated_at"`
}

// FinancialFields holds the four plaintext monetary values of a lead.
// Values are decimal strings; they never leave the service unencrypted
// except through an authorized read.
type FinancialFields struct {
	PriceQuote     string `json:"price_quote"`
	GST            string `json:"gst"`
	FinalDeposit   string `json:"fd"`
	AdvanceDeposit string `json:"ad"`
}

// EncryptedFinancialRecord is the at-rest form of FinancialFields.
// Each token is base64(IV || ciphertext) and decrypts on its own.
type EncryptedFinancialRecord struct {
	PriceQuoteEncrypted     string    `json:"price_quote_encrypted"`
	GSTEncrypted            string    `json:"gst_encrypted"`
	FinalDepositEncrypted   string    `json:"fd_encrypted"`
	AdvanceDepositEncrypted string    `json:"ad_encrypted"`
	Verified                bool      `json:"financials_verified"` // false until the audit entry is committed
	UpdatedAt               time.Time `json:"updated_at"`
}

// Complete reports whether all four ciphertexts are present.
func (r *EncryptedFinancialRecord) Complete() bool {
	if r == nil {
		return false
	}
	return r.PriceQuoteEncrypted != "" && r.GSTEncrypted != "" &&
		r.FinalDepositEncrypted != "" && r.AdvanceDepositEncrypted != ""
}

// DecryptedFinancials is the result of an authorized read.
type DecryptedFinancials struct {
	LeadID   string          `json:"lead_id"`
	LeadName string          `json:"lead_name"`
	Fields   FinancialFields `json:"financial_data"`
	Verified bool            `json:"verified"`
}

// AuditLogEntry represents one row of the audit_log table. Entries are
// append-only: nothing updates or deletes them.
type AuditLogEntry struct {
	ID        uuid.UUID `json:"id"`
	LeadID    string    `json:"lead_id"`
	DataHash  string    `json:"data_hash"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
