package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"

	"gtgbot/internal/alert"
	logx "gtgbot/pkg/logx"
)

// Key names match the original deployment so an upgraded relay picks up the
// existing subscriber set and any batches queued by the previous version.
const (
	queueKey       = "alert_queue"
	subscribersKey = "alert_subscribers"
)

type redisStore struct {
	c   *redis.Client
	log logx.Logger
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	return &redisStore{c: redis.NewClient(opts), log: log}, nil
}

func (s *redisStore) PushBatch(ctx context.Context, batch alert.Batch) (int64, error) {
	b, err := json.Marshal(batch)
	if err != nil {
		return 0, err
	}
	// RPUSH + LPOP form the FIFO; the post-push list length doubles as the
	// entry id (ids are only meaningful for logging).
	n, err := s.c.RPush(ctx, queueKey, b).Result()
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *redisStore) PopBatch(ctx context.Context) (alert.Batch, error) {
	b, err := s.c.LPop(ctx, queueKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return alert.Batch{}, ErrEmpty
	}
	if err != nil {
		return alert.Batch{}, err
	}
	var batch alert.Batch
	if err := json.Unmarshal(b, &batch); err != nil {
		// The entry is already gone from the list; surface the corruption
		// instead of re-queueing garbage.
		return alert.Batch{}, err
	}
	return batch, nil
}

func (s *redisStore) QueueDepth(ctx context.Context) (int64, error) {
	return s.c.LLen(ctx, queueKey).Result()
}

func (s *redisStore) AddSubscriber(ctx context.Context, chatID int64) (bool, error) {
	n, err := s.c.SAdd(ctx, subscribersKey, chatID).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *redisStore) RemoveSubscriber(ctx context.Context, chatID int64) (bool, error) {
	n, err := s.c.SRem(ctx, subscribersKey, chatID).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *redisStore) IsSubscriber(ctx context.Context, chatID int64) (bool, error) {
	return s.c.SIsMember(ctx, subscribersKey, chatID).Result()
}

func (s *redisStore) Subscribers(ctx context.Context) ([]int64, error) {
	members, err := s.c.SMembers(ctx, subscribersKey).Result()
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			// Foreign entries in the set (e.g. manual edits) are skipped,
			// not fatal to a dispatch cycle.
			s.log.Warn("skipping non-numeric subscriber entry", logx.String("member", m))
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

func (s *redisStore) Ping(ctx context.Context) error {
	return s.c.Ping(ctx).Err()
}

func (s *redisStore) Close() error {
	return s.c.Close()
}
