package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const closingsKey = "auction:closings"

// DueQueue orders items by the time they should be closed
type DueQueue interface {
	Add(ctx context.Context, itemID uuid.UUID, at time.Time) error
	Due(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	Remove(ctx context.Context, itemID uuid.UUID) error
}

// RedisQueue keeps closings in a sorted set scored by end time in milliseconds,
// so several service instances share one schedule.
type RedisQueue struct {
	redis *redis.Client
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{redis: client}
}

func (q *RedisQueue) Add(ctx context.Context, itemID uuid.UUID, at time.Time) error {
	err := q.redis.ZAdd(ctx, closingsKey, redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: itemID.String(),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to schedule item closing: %w", err)
	}
	return nil
}

func (q *RedisQueue) Due(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	members, err := q.redis.ZRangeByScore(ctx, closingsKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read due closings: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(members))
	for _, member := range members {
		id, err := uuid.Parse(member)
		if err != nil {
			// garbage in the set would otherwise be returned forever
			q.redis.ZRem(ctx, closingsKey, member)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (q *RedisQueue) Remove(ctx context.Context, itemID uuid.UUID) error {
	if err := q.redis.ZRem(ctx, closingsKey, itemID.String()).Err(); err != nil {
		return fmt.Errorf("failed to remove item closing: %w", err)
	}
	return nil
}

// LocalQueue is the single-process DueQueue
type LocalQueue struct {
	mu       sync.Mutex
	closings map[uuid.UUID]time.Time
}

func NewLocalQueue() *LocalQueue {
	return &LocalQueue{closings: make(map[uuid.UUID]time.Time)}
}

func (q *LocalQueue) Add(_ context.Context, itemID uuid.UUID, at time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closings[itemID] = at
	return nil
}

func (q *LocalQueue) Due(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	type entry struct {
		id uuid.UUID
		at time.Time
	}
	var due []entry
	for id, at := range q.closings {
		if !at.After(now) {
			due = append(due, entry{id: id, at: at})
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	ids := make([]uuid.UUID, len(due))
	for i, e := range due {
		ids[i] = e.id
	}
	return ids, nil
}

func (q *LocalQueue) Remove(_ context.Context, itemID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.closings, itemID)
	return nil
}

// Len returns the number of scheduled closings
func (q *LocalQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.closings)
}
