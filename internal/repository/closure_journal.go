package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PendingClosure is a channel teardown that was scheduled but has not run yet.
type PendingClosure struct {
	ChannelID string
	Deadline  time.Time
}

// ClosureJournal remembers scheduled channel teardowns outside the process, so a
// restart can finish deletions that were pending when it stopped.
type ClosureJournal interface {
	Record(ctx context.Context, channelID string, deadline time.Time) error
	Forget(ctx context.Context, channelID string) error
	Pending(ctx context.Context) ([]PendingClosure, error)
}

type redisClosureJournal struct {
	client *redis.Client
	key    string
}

// NewClosureJournal returns a Redis sorted-set journal scored by deadline.
// A nil client yields a journal that records nothing.
func NewClosureJournal(client *redis.Client, key string) ClosureJournal {
	if client == nil {
		return noopClosureJournal{}
	}
	return &redisClosureJournal{client: client, key: key}
}

func (j *redisClosureJournal) Record(ctx context.Context, channelID string, deadline time.Time) error {
	err := j.client.ZAdd(ctx, j.key, redis.Z{
		Score:  float64(deadline.UnixMilli()),
		Member: channelID,
	}).Err()
	if err != nil {
		return fmt.Errorf("record closure %s: %w", channelID, err)
	}
	return nil
}

func (j *redisClosureJournal) Forget(ctx context.Context, channelID string) error {
	if err := j.client.ZRem(ctx, j.key, channelID).Err(); err != nil {
		return fmt.Errorf("forget closure %s: %w", channelID, err)
	}
	return nil
}

func (j *redisClosureJournal) Pending(ctx context.Context) ([]PendingClosure, error) {
	entries, err := j.client.ZRangeWithScores(ctx, j.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list closures: %w", err)
	}
	result := make([]PendingClosure, 0, len(entries))
	for _, entry := range entries {
		channelID, ok := entry.Member.(string)
		if !ok || channelID == "" {
			continue
		}
		result = append(result, PendingClosure{
			ChannelID: channelID,
			Deadline:  time.UnixMilli(int64(entry.Score)),
		})
	}
	return result, nil
}

type noopClosureJournal struct{}

func (noopClosureJournal) Record(context.Context, string, time.Time) error { return nil }

func (noopClosureJournal) Forget(context.Context, string) error { return nil }

func (noopClosureJournal) Pending(context.Context) ([]PendingClosure, error) { return nil, nil }
