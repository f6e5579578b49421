package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points Load at a missing .env so the developer's own file does
// not leak into tests.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("LEADFIN_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("LEADFIN_CONFIG", "")
	t.Setenv("FINANCIAL_ENCRYPTION_KEY", "")
	t.Setenv("LEADFIN_SECURITY_ENCRYPTION_KEY", "")
	t.Setenv("LEADFIN_FINANCIAL_ENCRYPTION_KEY", "")
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 50051, c.Server.GRPCPort)
	assert.Equal(t, 8081, c.Server.HTTPPort)
	assert.Equal(t, "memory", c.Store.Backend)
	assert.Equal(t, "hkdf", c.Security.KeyDerivation)
	assert.Equal(t, "000", c.Security.AdminID)
	assert.Equal(t, "static", c.Security.CapabilitySource)
	assert.Equal(t, time.Hour, c.Redis.CacheTTL)
	assert.Empty(t, c.Security.EncryptionKey)
	assert.Equal(t, "host=localhost port=5432 user=admin password= dbname=leads sslmode=disable", c.Database.DSN())
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("LEADFIN_STORE_BACKEND", "postgres")
	t.Setenv("LEADFIN_DATABASE_URL", "postgres://u:p@db:5432/leads")
	t.Setenv("LEADFIN_SECURITY_ADMIN_ID", "ops")
	t.Setenv("LEADFIN_REDIS_CACHE_TTL", "5m")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", c.Store.Backend)
	assert.Equal(t, "postgres://u:p@db:5432/leads", c.Database.DSN())
	assert.Equal(t, "ops", c.Security.AdminID)
	assert.Equal(t, 5*time.Minute, c.Redis.CacheTTL)
}

func TestLoad_EncryptionKeyFallback(t *testing.T) {
	isolate(t)
	t.Setenv("FINANCIAL_ENCRYPTION_KEY", "from-legacy-name")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-legacy-name", c.Security.EncryptionKey)

	t.Setenv("LEADFIN_SECURITY_ENCRYPTION_KEY", "from-prefixed-name")
	c, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "from-prefixed-name", c.Security.EncryptionKey)
}

func TestLoad_DotEnvFile(t *testing.T) {
	isolate(t)
	os.Unsetenv("LEADFIN_SECURITY_KEY_DERIVATION")
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("LEADFIN_SECURITY_KEY_DERIVATION=legacy\n"), 0o600))
	t.Setenv("LEADFIN_ENV_FILE", path)
	t.Cleanup(func() { os.Unsetenv("LEADFIN_SECURITY_KEY_DERIVATION") })

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "legacy", c.Security.KeyDerivation)
}

func TestLoad_ConfigFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "leadfin.toml")
	content := "[store]\nbackend = \"dynamodb\"\n\n[dynamo]\nleads_table = \"crm_leads\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("LEADFIN_CONFIG", path)

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "dynamodb", c.Store.Backend)
	assert.Equal(t, "crm_leads", c.Dynamo.LeadsTable)
	assert.Equal(t, "audit_log", c.Dynamo.AuditTable)
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	isolate(t)
	t.Setenv("LEADFIN_STORE_BACKEND", "cassandra")

	_, err := Load()
	assert.Error(t, err)
}
