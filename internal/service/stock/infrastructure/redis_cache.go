// internal/service/stock/infrastructure/redis_cache.go
package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"granary/internal/pkg/logger"
	redispkg "granary/internal/pkg/redis"
	"granary/internal/service/stock/domain"

	goredis "github.com/redis/go-redis/v9"
)

const cacheSetScriptName = "ledger_cache_set"

// 只在缓存里没有更新版本时写入。两个读者并发回填时，
// 旧快照不能覆盖新快照。
// KEYS[1]: 缓存键; ARGV[1]: 序列化的台账; ARGV[2]: 版本; ARGV[3]: TTL 秒
var cacheSetScript = `
local existing = redis.call('get', KEYS[1])
if existing then
    local decoded = cjson.decode(existing)
    if tonumber(decoded['version']) >= tonumber(ARGV[2]) then
        return 0
    end
end
redis.call('set', KEYS[1], ARGV[1], 'EX', tonumber(ARGV[3]))
return 1
`

type cachedLedger struct {
	ID          string    `json:"id"`
	ProductName string    `json:"product_name"`
	Available   int64     `json:"available"`
	Reserved    int64     `json:"reserved"`
	Price       float64   `json:"price"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RedisLedgerCache 是 domain.LedgerCache 的 Redis 实现。
// 缓存故障一律降级为未命中，绝不让读路径因为缓存而失败。
type RedisLedgerCache struct {
	client *redispkg.Client
	ttl    time.Duration
}

func NewRedisLedgerCache(client *redispkg.Client, ttl time.Duration) (*RedisLedgerCache, error) {
	if err := client.LoadScriptFromContent(cacheSetScriptName, cacheSetScript); err != nil {
		return nil, fmt.Errorf("failed to load cache script: %w", err)
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLedgerCache{client: client, ttl: ttl}, nil
}

func cacheKey(id string) string {
	return fmt.Sprintf("stock:ledger:{%s}", id)
}

func (c *RedisLedgerCache) Get(ctx context.Context, id string) (*domain.Ledger, bool) {
	raw, err := c.client.GetClient().Get(ctx, cacheKey(id)).Bytes()
	if err != nil {
		if err != goredis.Nil {
			logger.Ctx(ctx).Warn().Err(err).Str("product_id", id).Msg("Ledger cache read failed")
		}
		return nil, false
	}
	var cached cachedLedger
	if err := json.Unmarshal(raw, &cached); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("product_id", id).Msg("Ledger cache entry corrupt, dropping")
		c.Invalidate(ctx, id)
		return nil, false
	}
	return &domain.Ledger{
		ID:          cached.ID,
		ProductName: cached.ProductName,
		Available:   cached.Available,
		Reserved:    cached.Reserved,
		Price:       cached.Price,
		Version:     cached.Version,
		CreatedAt:   cached.CreatedAt,
		UpdatedAt:   cached.UpdatedAt,
	}, true
}

func (c *RedisLedgerCache) Set(ctx context.Context, ledger *domain.Ledger) {
	payload, err := json.Marshal(cachedLedger{
		ID:          ledger.ID,
		ProductName: ledger.ProductName,
		Available:   ledger.Available,
		Reserved:    ledger.Reserved,
		Price:       ledger.Price,
		Version:     ledger.Version,
		CreatedAt:   ledger.CreatedAt,
		UpdatedAt:   ledger.UpdatedAt,
	})
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("product_id", ledger.ID).Msg("Failed to marshal ledger for cache")
		return
	}
	keys := []string{cacheKey(ledger.ID)}
	if _, err := c.client.RunScript(ctx, cacheSetScriptName, keys, payload, ledger.Version, int(c.ttl.Seconds())); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("product_id", ledger.ID).Msg("Ledger cache write failed")
	}
}

func (c *RedisLedgerCache) Invalidate(ctx context.Context, id string) {
	if err := c.client.GetClient().Del(ctx, cacheKey(id)).Err(); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("product_id", id).Msg("Ledger cache invalidation failed")
	}
}
