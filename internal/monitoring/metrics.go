package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	QuotesComputed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_quotes_computed_total",
			Help: "Total number of price quotes computed by outcome",
		},
		[]string{"outcome"},
	)
	FinancialWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_financial_writes_total",
			Help: "Total number of encrypted financial writes by status",
		},
		[]string{"status"},
	)
	DecryptionAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_financial_decryptions_total",
			Help: "Total number of financial read attempts by result",
		},
		[]string{"result"},
	)
	FinancialWriteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lead_financial_write_duration_seconds",
			Help:    "Duration of encrypt, store and audit for one financial write",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
		},
	)
)

func InitMetrics() {
	collectors := map[string]prometheus.Collector{
		"QuotesComputed":         QuotesComputed,
		"FinancialWrites":        FinancialWrites,
		"DecryptionAttempts":     DecryptionAttempts,
		"FinancialWriteDuration": FinancialWriteDuration,
	}
	for name, c := range collectors {
		if err := prometheus.Register(c); err != nil {
			log.Error().Err(err).Str("metric", name).Msg("Failed to register metric")
		}
	}
}
