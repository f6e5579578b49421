package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/teresa-solution/lead-finance-service/internal/model"
)

const DefaultCacheTTL = time.Hour

// CachedStore puts a redis cache-aside layer in front of a Backend for
// lead reads. Leads only ever carry ciphertext, so nothing decrypted
// reaches redis. Audit calls pass through.
//
// Every write bumps a per-lead generation counter after the backend
// commits. Cached values carry the generation that was current before
// their backend load, and a value whose generation no longer matches is
// treated as a miss. A read that loaded a row before a write therefore
// cannot serve it after that write, whenever its SetEx lands.
type CachedStore struct {
	Backend
	redis RedisClient
	ttl   time.Duration
}

type cachedLead struct {
	Generation string      `json:"generation"`
	Lead       *model.Lead `json:"lead"`
}

func NewCachedStore(backend Backend, rdb RedisClient, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedStore{Backend: backend, redis: rdb, ttl: ttl}
}

func leadKey(id string) string {
	return fmt.Sprintf("lead:%s", id)
}

func generationKey(id string) string {
	return fmt.Sprintf("lead:%s:generation", id)
}

func (c *CachedStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	gen, err := c.redis.Get(ctx, generationKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		gen, err = "0", nil
	}
	if err != nil {
		log.Warn().Err(err).Str("lead_id", id).Msg("Lead cache read failed")
		return c.Backend.GetLead(ctx, id)
	}

	key := leadKey(id)
	cached, err := c.redis.Get(ctx, key).Result()
	if err == nil {
		entry := cachedLead{}
		if err := json.Unmarshal([]byte(cached), &entry); err == nil && entry.Lead != nil && entry.Generation == gen {
			return entry.Lead, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		log.Warn().Err(err).Str("lead_id", id).Msg("Lead cache read failed")
	}

	lead, err := c.Backend.GetLead(ctx, id)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(cachedLead{Generation: gen, Lead: lead})
	if err == nil {
		if err := c.redis.SetEx(ctx, key, data, c.ttl).Err(); err != nil {
			log.Warn().Err(err).Str("lead_id", id).Msg("Lead cache write failed")
		}
	}
	return lead, nil
}

func (c *CachedStore) PutLead(ctx context.Context, lead *model.Lead) error {
	if err := c.Backend.PutLead(ctx, lead); err != nil {
		return err
	}
	c.invalidate(ctx, lead.ID)
	return nil
}

func (c *CachedStore) SetEncryptedFinancials(ctx context.Context, leadID string, rec model.EncryptedFinancialRecord) error {
	if err := c.Backend.SetEncryptedFinancials(ctx, leadID, rec); err != nil {
		return err
	}
	c.invalidate(ctx, leadID)
	return nil
}

func (c *CachedStore) MarkFinancialsVerified(ctx context.Context, leadID, priceQuoteToken string) error {
	if err := c.Backend.MarkFinancialsVerified(ctx, leadID, priceQuoteToken); err != nil {
		return err
	}
	c.invalidate(ctx, leadID)
	return nil
}

func (c *CachedStore) Close() error {
	berr := c.Backend.Close()
	rerr := c.redis.Close()
	if berr != nil {
		return berr
	}
	return rerr
}

// invalidate must run after the backend write has committed.
func (c *CachedStore) invalidate(ctx context.Context, leadID string) {
	if err := c.redis.Incr(ctx, generationKey(leadID)).Err(); err != nil {
		log.Warn().Err(err).Str("lead_id", leadID).Msg("Lead cache generation bump failed")
	}
	if err := c.redis.Del(ctx, leadKey(leadID)).Err(); err != nil {
		log.Warn().Err(err).Str("lead_id", leadID).Msg("Lead cache invalidation failed")
	}
}
