package commands

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("LEADFIN_ENV_FILE", filepath.Join(t.TempDir(), "none.env"))
	t.Setenv("LEADFIN_CONFIG", "")
	keyDerivation = ""

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestQuoteCmd(t *testing.T) {
	out, err := run(t, "quote", "--occasion", "wedding", "--pax", "100", "--date", "2099-01-10",
		"--menu", "premium", "--lead-time", "60", "--source", "referral")
	require.NoError(t, err)

	var res map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, float64(100), res["lead_score"])
	assert.Contains(t, res, "pricing_factors")
}

func TestQuoteCmd_Invalid(t *testing.T) {
	_, err := run(t, "quote", "--occasion", "wedding", "--pax", "3", "--date", "2099-01-10", "--menu", "premium")
	assert.Error(t, err)
}

func TestEncryptDecryptCmd(t *testing.T) {
	t.Setenv("FINANCIAL_ENCRYPTION_KEY", "cli-test-secret")

	for _, kd := range []string{"hkdf", "legacy"} {
		out, err := run(t, "--key-derivation", kd, "encrypt", "46728")
		require.NoError(t, err)
		token := strings.TrimSpace(out)

		out, err = run(t, "--key-derivation", kd, "decrypt", "--as", "000", token)
		require.NoError(t, err)
		assert.Equal(t, "46728", strings.TrimSpace(out))
	}
}

func TestDecryptCmd_RequiresAuthorizedPrincipal(t *testing.T) {
	t.Setenv("FINANCIAL_ENCRYPTION_KEY", "cli-test-secret")
	t.Setenv("LEADFIN_SECURITY_ADMIN_ID", "ops-admin")

	out, err := run(t, "encrypt", "46728")
	require.NoError(t, err)
	token := strings.TrimSpace(out)

	for _, args := range [][]string{
		{"decrypt", token},
		{"decrypt", "--as", "000", token},
		{"decrypt", "--as", "user-sales", token},
	} {
		out, err := run(t, args...)
		assert.Error(t, err, "args %v", args)
		assert.NotContains(t, out, "46728")
	}

	out, err = run(t, "decrypt", "--as", "ops-admin", token)
	require.NoError(t, err)
	assert.Equal(t, "46728", strings.TrimSpace(out))
}

func TestEncryptCmd_MissingKey(t *testing.T) {
	t.Setenv("FINANCIAL_ENCRYPTION_KEY", "")
	t.Setenv("LEADFIN_SECURITY_ENCRYPTION_KEY", "")
	t.Setenv("LEADFIN_FINANCIAL_ENCRYPTION_KEY", "")

	_, err := run(t, "encrypt", "1")
	assert.Error(t, err)
}

func TestAuditHashCmd(t *testing.T) {
	out, err := run(t, "audit", "hash", "--lead", "lead-1", "--price", "155760", "--user", "u-7", "--at", "2026-10-16T09:30:15.123Z")
	require.NoError(t, err)

	sum := sha256.Sum256([]byte("lead-1|155760|u-7|2026-10-16T09:30:15.123Z"))
	assert.Equal(t, hex.EncodeToString(sum[:])+"  2026-10-16T09:30:15.123Z", strings.TrimSpace(out))
}
