package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"auction-storefront/internal/domain"
	"auction-storefront/pkg/logger"

	"github.com/go-redis/redis/v8"
)

// InvalidationBus carries invalidation signals between storefront processes
// over Redis pub/sub. Payloads are "userID:unixMillis"; subscribers ignore
// signals addressed to a different user.
type InvalidationBus struct {
	client   *redis.Client
	channel  string
	identity domain.IdentitySource
	log      logger.Logger
}

func NewInvalidationBus(client *redis.Client, channel string, identity domain.IdentitySource, log logger.Logger) *InvalidationBus {
	return &InvalidationBus{
		client:   client,
		channel:  channel,
		identity: identity,
		log:      log,
	}
}

func (r *InvalidationBus) Publish(ctx context.Context) error {
	userID := ""
	if ident, ok := r.identity.Current(); ok {
		userID = ident.UserID
	}

	payload := formatPayload(userID, time.Now())
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	return nil
}

func (r *InvalidationBus) Subscribe(ctx context.Context) (<-chan struct{}, error) {
	pubsub := r.client.Subscribe(ctx, r.channel)

	// Wait for the subscription confirmation so a failing Redis surfaces here.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	out := make(chan struct{}, 1)
	go r.listen(ctx, pubsub, out)

	r.log.Info("Subscribed to invalidation channel", "channel", r.channel)
	return out, nil
}

func (r *InvalidationBus) listen(ctx context.Context, pubsub *redis.PubSub, out chan<- struct{}) {
	defer close(out)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			userID, _, err := parsePayload(msg.Payload)
			if err != nil {
				r.log.Error("Failed to parse invalidation", "payload", msg.Payload, "error", err)
				continue
			}
			if !r.addressedToCurrentUser(userID) {
				continue
			}
			select {
			case out <- struct{}{}:
			default:
			}

		case <-ctx.Done():
			r.log.Info("Invalidation subscriber stopped", "channel", r.channel)
			return
		}
	}
}

func (r *InvalidationBus) addressedToCurrentUser(userID string) bool {
	if userID == "" {
		return true
	}
	ident, ok := r.identity.Current()
	return ok && ident.UserID == userID
}

func formatPayload(userID string, at time.Time) string {
	return fmt.Sprintf("%s:%d", userID, at.UnixMilli())
}

func parsePayload(payload string) (string, time.Time, error) {
	idx := strings.LastIndex(payload, ":")
	if idx < 0 {
		return "", time.Time{}, fmt.Errorf("invalid invalidation format: %s", payload)
	}

	millis, err := strconv.ParseInt(payload[idx+1:], 10, 64)
	if err != nil {
		return "", time.Time{}, err
	}

	return payload[:idx], time.UnixMilli(millis), nil
}
