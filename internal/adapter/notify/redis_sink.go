package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/store-transfer/internal/core/domain"
)

const (
	notificationsKey      = "notifications:all"
	storeChannelPrefix    = "notifications:store:"
	notificationRetention = 30 * 24 * time.Hour
)

// RedisSink pushes store notifications over pub/sub and keeps a rolling
// 30-day history in a sorted set scored by unix milliseconds.
type RedisSink struct {
	client *redis.Client
	now    func() time.Time
	newID  func() string
}

func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{
		client: client,
		now:    time.Now,
		newID:  func() string { return uuid.Must(uuid.NewV7()).String() },
	}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Deliver(ctx context.Context, event domain.Event) error {
	n := BuildNotification(s.newID(), event)
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	cutoff := s.now().Add(-notificationRetention).UnixMilli()
	pipe := s.client.TxPipeline()
	pipe.Publish(ctx, StoreChannel(n.StoreID), payload)
	pipe.ZAdd(ctx, notificationsKey, redis.Z{Score: float64(n.Timestamp.UnixMilli()), Member: payload})
	pipe.ZRemRangeByScore(ctx, notificationsKey, "-inf", strconv.FormatInt(cutoff, 10))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push notification: %w", err)
	}
	return nil
}

// StoreChannel is the pub/sub channel a store's clients subscribe to.
func StoreChannel(storeID string) string {
	return storeChannelPrefix + storeID
}
