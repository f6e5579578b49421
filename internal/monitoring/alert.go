package monitoring

import (
	"github.com/rs/zerolog/log"
)

// Alert logs an operator-facing alert. Fields must not carry plaintext
// financial values.
func Alert(message string, fields map[string]interface{}) {
	log.Error().
		Str("alert", message).
		Fields(fields).
		Msg("ALERT: financial data integrity issue")
}
