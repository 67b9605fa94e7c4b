package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis publishes tracked scalars to a Redis stream so that running
// experiments can be monitored remotely. Each call to Track adds one
// entry to the stream holding the step and every scalar.
type Redis struct {
	client  *redis.Client
	stream  string
	maxLen  int64
	timeout time.Duration
}

// NewRedis returns a new Redis Tracker publishing to the stream
// "mtppo:<runID>" on the server at addr. If maxLen > 0, the stream is
// approximately trimmed to maxLen entries.
func NewRedis(addr, runID string, maxLen int64) *Redis {
	return &Redis{
		client:  redis.NewClient(&redis.Options{Addr: addr}),
		stream:  Stream(runID),
		maxLen:  maxLen,
		timeout: 5 * time.Second,
	}
}

// Stream returns the name of the Redis stream of a run
func Stream(runID string) string {
	return "mtppo:" + runID
}

// Ping checks the connection to the Redis server
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Track adds the scalars to the stream
func (r *Redis) Track(step int, scalars map[string]float64) error {
	values := make(map[string]interface{}, len(scalars)+1)
	for k, v := range scalars {
		values[k] = v
	}
	values["step"] = step

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	args := &redis.XAddArgs{Stream: r.stream, Values: values}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("track: %w", err)
	}
	return nil
}

// Save closes the connection to the Redis server
func (r *Redis) Save() error {
	return r.client.Close()
}
