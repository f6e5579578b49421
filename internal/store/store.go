package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/teresa-solution/lead-finance-service/internal/model"
)

var ErrLeadNotFound = errors.New("lead not found")

// ErrFinancialsSuperseded means the stored ciphertext is no longer the one
// the caller wrote.
var ErrFinancialsSuperseded = errors.New("financials superseded by a later write")

// Backend is the keyed relation the financial service reads and writes.
// Every implementation keeps audit entries append-only.
type Backend interface {
	PutLead(ctx context.Context, lead *model.Lead) error
	GetLead(ctx context.Context, id string) (*model.Lead, error)
	SetEncryptedFinancials(ctx context.Context, leadID string, rec model.EncryptedFinancialRecord) error
	// MarkFinancialsVerified sets the verified flag only while the stored
	// price quote ciphertext is still priceQuoteToken, and returns
	// ErrFinancialsSuperseded otherwise.
	MarkFinancialsVerified(ctx context.Context, leadID, priceQuoteToken string) error
	AppendAudit(ctx context.Context, entry *model.AuditLogEntry) error
	ListAudit(ctx context.Context, leadID string) ([]model.AuditLogEntry, error)
	Close() error
}

type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SetEx(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Close() error
}

type PoolOptions struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxConns:        20,
		MinConns:        5,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
	}
}

// NewPool opens a pgx pool for dsn and pings it.
func NewPool(ctx context.Context, dsn string, opts PoolOptions) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}
	config.MaxConns = opts.MaxConns
	config.MinConns = opts.MinConns
	config.MaxConnLifetime = opts.MaxConnLifetime
	config.MaxConnIdleTime = opts.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return pool, nil
}

func copyLead(l *model.Lead) *model.Lead {
	out := *l
	if l.EventDate != nil {
		d := *l.EventDate
		out.EventDate = &d
	}
	if l.Financials != nil {
		f := *l.Financials
		out.Financials = &f
	}
	return &out
}
