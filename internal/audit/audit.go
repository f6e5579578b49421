// Package audit records who committed which price quote for a lead and when.
//
// Each entry carries SHA-256(lead_id|price_quote|user_id|created_at). The
// hash does not hide the price: verifying an entry needs the plaintext
// quote, which only an authorized reader can obtain. Entries are
// independent snapshots, not a chain.
package audit

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/teresa-solution/lead-finance-service/internal/model"
)

// TimestampLayout renders created_at inside the hashed payload: UTC with
// millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Appender persists audit entries. Implementations must never update or
// delete an entry once appended.
type Appender interface {
	AppendAudit(ctx context.Context, entry *model.AuditLogEntry) error
}

// ComputeHash returns the hex-encoded SHA-256 of the audit payload.
func ComputeHash(leadID, priceQuote, userID string, ts time.Time) string {
	payload := leadID + "|" + priceQuote + "|" + userID + "|" + ts.UTC().Format(TimestampLayout)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// Verify reports whether entry was written for priceQuote.
func Verify(entry model.AuditLogEntry, priceQuote string) bool {
	want := ComputeHash(entry.LeadID, priceQuote, entry.UserID, entry.CreatedAt)
	return subtle.ConstantTimeCompare([]byte(want), []byte(entry.DataHash)) == 1
}

// Writer hashes and appends one entry per committed financial write.
type Writer struct {
	appender Appender
}

func NewWriter(appender Appender) *Writer {
	return &Writer{appender: appender}
}

// RecordWrite builds the entry for a write at ts and appends it. ts is
// truncated to milliseconds so the stored timestamp reproduces the hash.
func (w *Writer) RecordWrite(ctx context.Context, leadID, priceQuote, userID string, ts time.Time) (*model.AuditLogEntry, error) {
	ts = ts.UTC().Truncate(time.Millisecond)
	entry := &model.AuditLogEntry{
		ID:        uuid.New(),
		LeadID:    leadID,
		DataHash:  ComputeHash(leadID, priceQuote, userID, ts),
		UserID:    userID,
		CreatedAt: ts,
	}
	if err := w.appender.AppendAudit(ctx, entry); err != nil {
		return nil, fmt.Errorf("append audit entry for lead %s: %w", leadID, err)
	}
	return entry, nil
}
