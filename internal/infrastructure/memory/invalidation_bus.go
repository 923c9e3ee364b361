package memory

import (
	"context"
	"sync"

	"auction-storefront/pkg/logger"

	"github.com/google/uuid"
)

// InvalidationBus is an in-process broadcast of payload-less invalidation
// signals. A subscriber that has not yet consumed a signal keeps exactly one
// pending; further publishes coalesce into it.
type InvalidationBus struct {
	mu   sync.RWMutex
	subs map[string]chan struct{}
	log  logger.Logger
}

func NewInvalidationBus(log logger.Logger) *InvalidationBus {
	return &InvalidationBus{
		subs: make(map[string]chan struct{}),
		log:  log,
	}
}

func (b *InvalidationBus) Publish(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel that receives signals until ctx is done. The
// channel is closed after unsubscribing.
func (b *InvalidationBus) Subscribe(ctx context.Context) (<-chan struct{}, error) {
	id := uuid.NewString()
	ch := make(chan struct{}, 1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	b.log.Debug("Invalidation subscriber added", "subscriber_id", id)

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
		b.log.Debug("Invalidation subscriber removed", "subscriber_id", id)
	}()

	return ch, nil
}

func (b *InvalidationBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
