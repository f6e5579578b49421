package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/teresa-solution/lead-finance-service/internal/model"
)

// MemoryStore keeps leads and audit entries in process. Used by the CLI,
// local runs and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	leads  map[string]*model.Lead
	audits map[string][]model.AuditLogEntry
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		leads:  make(map[string]*model.Lead),
		audits: make(map[string][]model.AuditLogEntry),
		now:    time.Now,
	}
}

func (m *MemoryStore) PutLead(_ context.Context, lead *model.Lead) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l := copyLead(lead)
	now := m.now().UTC()
	if existing, ok := m.leads[l.ID]; ok {
		l.CreatedAt = existing.CreatedAt
		if l.Financials == nil {
			l.Financials = existing.Financials
		}
	} else if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now
	m.leads[l.ID] = l
	return nil
}

func (m *MemoryStore) GetLead(_ context.Context, id string) (*model.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.leads[id]
	if !ok {
		return nil, ErrLeadNotFound
	}
	return copyLead(l), nil
}

func (m *MemoryStore) SetEncryptedFinancials(_ context.Context, leadID string, rec model.EncryptedFinancialRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.leads[leadID]
	if !ok {
		return ErrLeadNotFound
	}
	rec.Verified = false
	rec.UpdatedAt = m.now().UTC()
	l.Financials = &rec
	l.UpdatedAt = rec.UpdatedAt
	return nil
}

func (m *MemoryStore) MarkFinancialsVerified(_ context.Context, leadID, priceQuoteToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.leads[leadID]
	if !ok {
		return ErrLeadNotFound
	}
	if l.Financials == nil || l.Financials.PriceQuoteEncrypted != priceQuoteToken {
		return ErrFinancialsSuperseded
	}
	l.Financials.Verified = true
	return nil
}

func (m *MemoryStore) AppendAudit(_ context.Context, entry *model.AuditLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.leads[entry.LeadID]; !ok {
		return ErrLeadNotFound
	}
	m.audits[entry.LeadID] = append(m.audits[entry.LeadID], *entry)
	return nil
}

// ListAudit returns the entries for leadID oldest first.
func (m *MemoryStore) ListAudit(_ context.Context, leadID string) ([]model.AuditLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.AuditLogEntry, len(m.audits[leadID]))
	copy(out, m.audits[leadID])
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
