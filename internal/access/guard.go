// Package access decides whether a principal may decrypt financial fields.
package access

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Decision is the outcome of an authorization check.
type Decision int

const (
	Deny Decision = iota
	Allow
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

const (
	// CapabilityFinancialDecrypt is the capability that unlocks decryption.
	CapabilityFinancialDecrypt = "financial:decrypt"
	// DefaultAdminID is the designated administrator identity.
	DefaultAdminID = "000"
)

// CapabilityChecker answers whether a principal holds a capability.
type CapabilityChecker interface {
	HasCapability(ctx context.Context, principalID, capability string) (bool, error)
}

// AdminIdentity grants every capability to exactly one principal.
type AdminIdentity struct {
	ID string
}

func (a AdminIdentity) HasCapability(_ context.Context, principalID, _ string) (bool, error) {
	return a.ID != "" && principalID == a.ID, nil
}

// Guard authorizes decryption requests. It keeps no state between calls.
type Guard struct {
	checker CapabilityChecker
}

// NewGuard returns a Guard backed by checker. A nil checker falls back to
// AdminIdentity with DefaultAdminID.
func NewGuard(checker CapabilityChecker) *Guard {
	if checker == nil {
		checker = AdminIdentity{ID: DefaultAdminID}
	}
	return &Guard{checker: checker}
}

// AuthorizeDecryption allows principalID only if it holds
// CapabilityFinancialDecrypt. Lookup errors deny.
func (g *Guard) AuthorizeDecryption(ctx context.Context, principalID string) Decision {
	if principalID == "" {
		return Deny
	}
	ok, err := g.checker.HasCapability(ctx, principalID, CapabilityFinancialDecrypt)
	if err != nil {
		log.Warn().Err(err).Str("user_id", principalID).Msg("Capability lookup failed, denying decryption")
		return Deny
	}
	if !ok {
		return Deny
	}
	return Allow
}
