package monitoring

import (
	"bytes"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestAlert_IncludesFields(t *testing.T) {
	var buf bytes.Buffer
	orig := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = orig }()

	Alert("audit append failed", map[string]interface{}{"lead_id": "lead-1"})

	out := buf.String()
	assert.Contains(t, out, `"alert":"audit append failed"`)
	assert.Contains(t, out, `"lead_id":"lead-1"`)
	assert.Contains(t, out, `"level":"error"`)
}

func TestConfigureLogger(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.GlobalLevel())

	ConfigureLogger("debug", false)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	ConfigureLogger("nonsense", false)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(FinancialWrites.WithLabelValues("success"))
	FinancialWrites.WithLabelValues("success").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(FinancialWrites.WithLabelValues("success")))
}
