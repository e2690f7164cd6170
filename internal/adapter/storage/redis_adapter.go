package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/store-transfer/internal/core/domain"
	"github.com/rl1809/store-transfer/internal/port"
)

const (
	storeTransfersKeyPrefix = "transfers:store:"
	storeGenerationSuffix   = ":gen"
	defaultIdempotencyTTL   = 24 * time.Hour
	defaultStoreListTTL     = 10 * time.Minute
)

var _ port.CacheRepository = (*RedisAdapter)(nil)

// setIfCurrentScript writes a store list only while its generation still
// matches the one the caller read before querying the database.
var setIfCurrentScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1]) or "0"
if current ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
return 1
`)

type RedisAdapter struct {
	client         *redis.Client
	idempotencyTTL time.Duration
	storeListTTL   time.Duration
}

// NewRedisAdapter builds the cache. Zero TTLs fall back to 24h for
// idempotency keys and 10m for store transfer lists.
func NewRedisAdapter(client *redis.Client, idempotencyTTL, storeListTTL time.Duration) *RedisAdapter {
	if idempotencyTTL <= 0 {
		idempotencyTTL = defaultIdempotencyTTL
	}
	if storeListTTL <= 0 {
		storeListTTL = defaultStoreListTTL
	}
	return &RedisAdapter{client: client, idempotencyTTL: idempotencyTTL, storeListTTL: storeListTTL}
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, r.idempotencyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisAdapter) GetStoreTransfers(ctx context.Context, storeID string) ([]domain.TransferRequest, bool, error) {
	payload, err := r.client.Get(ctx, storeTransfersKeyPrefix+storeID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var transfers []domain.TransferRequest
	if err := json.Unmarshal(payload, &transfers); err != nil {
		return nil, false, fmt.Errorf("decode cached transfers: %w", err)
	}
	return transfers, true, nil
}

func (r *RedisAdapter) StoreTransfersGeneration(ctx context.Context, storeID string) (int64, error) {
	gen, err := r.client.Get(ctx, generationKey(storeID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (r *RedisAdapter) SetStoreTransfers(ctx context.Context, storeID string, generation int64, transfers []domain.TransferRequest) (bool, error) {
	payload, err := json.Marshal(transfers)
	if err != nil {
		return false, fmt.Errorf("encode transfers: %w", err)
	}

	stored, err := setIfCurrentScript.Run(ctx, r.client,
		[]string{generationKey(storeID), storeTransfersKeyPrefix + storeID},
		strconv.FormatInt(generation, 10), payload, r.storeListTTL.Milliseconds(),
	).Int()
	if err != nil {
		return false, err
	}
	return stored == 1, nil
}

// InvalidateStoreTransfers bumps each generation before dropping the list, so
// a reader that queried the database earlier cannot put its result back.
func (r *RedisAdapter) InvalidateStoreTransfers(ctx context.Context, storeIDs ...string) error {
	if len(storeIDs) == 0 {
		return nil
	}
	pipe := r.client.TxPipeline()
	for _, id := range storeIDs {
		pipe.Incr(ctx, generationKey(id))
		pipe.Del(ctx, storeTransfersKeyPrefix+id)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func generationKey(storeID string) string {
	return storeTransfersKeyPrefix + storeID + storeGenerationSuffix
}
