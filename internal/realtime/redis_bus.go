package realtime

import (
	"context"
	"runtime/debug"
	"strings"

	"github.com/huangang/cocode/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const channelPrefix = "cocode:project:"

// RedisBus relays frames between instances over Redis pub/sub.
type RedisBus struct {
	rdb *redis.Client
}

func NewRedisBus(rdb *redis.Client) *RedisBus {
	return &RedisBus{rdb: rdb}
}

func channelFor(projectID string) string {
	return channelPrefix + projectID
}

func (b *RedisBus) Publish(ctx context.Context, projectID string, frame []byte) error {
	return b.rdb.Publish(ctx, channelFor(projectID), frame).Err()
}

// Subscribe listens on every project channel until ctx is done. It returns once
// the subscription is confirmed by the server.
func (b *RedisBus) Subscribe(ctx context.Context, deliver func(projectID string, frame []byte)) error {
	sub := b.rdb.PSubscribe(ctx, channelPrefix+"*")
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				projectID := strings.TrimPrefix(msg.Channel, channelPrefix)
				func() {
					defer func() {
						if r := recover(); r != nil {
							logger.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("panic in realtime bus subscriber")
						}
					}()
					deliver(projectID, []byte(msg.Payload))
				}()
			}
		}
	}()

	return nil
}

// Close is a no-op; the Redis client belongs to the caller.
func (b *RedisBus) Close() error {
	return nil
}
