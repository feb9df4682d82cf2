package logsink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	streamPrefix   = "pulsar:invocations:"
	streamTTL      = 24 * time.Hour
	defaultMaxLen  = 1000
	defaultRecentN = 50
)

// RedisSink appends records to one Redis stream per function.
type RedisSink struct {
	client *redis.Client
	maxLen int64
}

// NewRedisSink creates a sink on an existing client. maxLen caps each
// stream approximately; zero uses a default.
func NewRedisSink(client *redis.Client, maxLen int64) *RedisSink {
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	return &RedisSink{client: client, maxLen: maxLen}
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

func streamKey(function string) string {
	return streamPrefix + function
}

func (s *RedisSink) Save(ctx context.Context, rec *Record) error {
	prepare(rec)
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	key := streamKey(rec.Function)
	_, err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd: %w", err)
	}

	s.client.Expire(ctx, key, streamTTL)
	return nil
}

func (s *RedisSink) SaveBatch(ctx context.Context, recs []*Record) error {
	if len(recs) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, rec := range recs {
		prepare(rec)
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		key := streamKey(rec.Function)
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: key,
			MaxLen: s.maxLen,
			Approx: true,
			Values: map[string]interface{}{"data": string(data)},
		})
		pipe.Expire(ctx, key, streamTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("xadd batch: %w", err)
	}
	return nil
}

// Recent returns up to count of the newest records for a function, newest
// first.
func (s *RedisSink) Recent(ctx context.Context, function string, count int64) ([]*Record, error) {
	if count <= 0 {
		count = defaultRecentN
	}
	messages, err := s.client.XRevRangeN(ctx, streamKey(function), "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("xrevrange: %w", err)
	}

	recs := make([]*Record, 0, len(messages))
	for _, msg := range messages {
		data, ok := msg.Values["data"].(string)
		if !ok {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			continue
		}
		recs = append(recs, &rec)
	}
	return recs, nil
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
