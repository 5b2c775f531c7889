package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrCoolingDown = errors.New("reminder recently sent for this appointment")
)

// ReminderGate keeps one appointment from receiving repeated reminders within
// a cooldown. Acquire returns a release func that reopens the gate, used when
// the reminder could not be delivered.
type ReminderGate interface {
	Acquire(ctx context.Context, appointmentID string) (release func(ctx context.Context) error, err error)
}

type redisReminderGate struct {
	client   *redis.Client
	cooldown time.Duration
}

func NewRedisReminderGate(client *redis.Client, cooldown time.Duration) ReminderGate {
	return &redisReminderGate{
		client:   client,
		cooldown: cooldown,
	}
}

func (g *redisReminderGate) Acquire(ctx context.Context, appointmentID string) (func(ctx context.Context) error, error) {
	key := fmt.Sprintf("reminder:cooldown:%s", appointmentID)
	token := uuid.NewString()

	ok, err := g.client.SetNX(ctx, key, token, g.cooldown).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire reminder gate: %w", err)
	}
	if !ok {
		return nil, ErrCoolingDown
	}

	return func(ctx context.Context) error {
		return g.release(ctx, key, token)
	}, nil
}

var releaseScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

// release only deletes the key if it still holds our token, so a gate that
// expired and was re-acquired by someone else stays closed.
func (g *redisReminderGate) release(ctx context.Context, key, token string) error {
	_, err := releaseScript.Run(ctx, g.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release reminder gate: %w", err)
	}
	return nil
}
