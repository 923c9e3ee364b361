package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"auction-storefront/internal/clock"
	"auction-storefront/internal/domain"
	"auction-storefront/pkg/logger"

	"github.com/google/uuid"
)

type countObserver struct {
	id string
	fn func(domain.Counts)
}

// CountSync is the single cache of wishlist and active-bid counts. Every
// write is sequence-tagged: a response that resolves after a newer write has
// been applied is discarded.
type CountSync struct {
	fetcher  domain.CountsFetcher
	identity domain.IdentitySource
	clock    clock.Clock
	log      logger.Logger

	// notifyMu keeps observers seeing commits in commit order.
	notifyMu sync.Mutex

	mu          sync.RWMutex
	counts      domain.Counts
	lastChanged time.Time
	issued      uint64
	applied     uint64
	observers   []countObserver
}

func NewCountSync(fetcher domain.CountsFetcher, identity domain.IdentitySource, clk clock.Clock, log logger.Logger) *CountSync {
	if clk == nil {
		clk = clock.Real()
	}
	return &CountSync{
		fetcher:  fetcher,
		identity: identity,
		clock:    clk,
		log:      log,
	}
}

func (s *CountSync) Counts() domain.Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counts
}

func (s *CountSync) LastChanged() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastChanged
}

// Subscribe registers fn to receive every committed value. The returned
// function unregisters it.
func (s *CountSync) Subscribe(fn func(domain.Counts)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.observers = append(s.observers, countObserver{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		observers := make([]countObserver, 0, len(s.observers))
		for _, o := range s.observers {
			if o.id != id {
				observers = append(observers, o)
			}
		}
		s.observers = observers
	}
}

// Refresh fetches the authoritative counts for the current user. Without a
// user the counts are reset to zero and nothing is fetched. On failure the
// cache is left as it was and the error is returned.
func (s *CountSync) Refresh(ctx context.Context) error {
	ident, ok := s.identity.Current()
	if !ok {
		s.reset()
		return nil
	}

	seq := s.nextSeq()
	counts, err := s.fetcher.FetchCounts(ctx, ident.UserID)
	if err != nil {
		s.log.Warn("Failed to refresh counts", "user_id", ident.UserID, "seq", seq, "error", err)
		return fmt.Errorf("refresh counts: %w", err)
	}

	if counts.WishlistCount < 0 || counts.BidsCount < 0 {
		s.log.Warn("Backend returned negative counts", "user_id", ident.UserID,
			"wishlist_count", counts.WishlistCount, "bids_count", counts.BidsCount)
	}
	s.apply(seq, domain.Counts{
		WishlistCount: max(counts.WishlistCount, 0),
		BidsCount:     max(counts.BidsCount, 0),
	})
	return nil
}

// TriggerInvalidation marks the counts as changed and refreshes them.
func (s *CountSync) TriggerInvalidation(ctx context.Context) error {
	s.mu.Lock()
	s.lastChanged = s.clock.Now()
	s.mu.Unlock()

	return s.Refresh(ctx)
}

// OnAuthChange must be called whenever the authenticated user may have changed.
func (s *CountSync) OnAuthChange(ctx context.Context) error {
	if _, ok := s.identity.Current(); !ok {
		s.reset()
		return nil
	}
	return s.Refresh(ctx)
}

// Run refreshes on every signal from sub until ctx is done.
func (s *CountSync) Run(ctx context.Context, sub domain.InvalidationSubscriber) error {
	signals, err := sub.Subscribe(ctx)
	if err != nil {
		return err
	}

	s.log.Info("Listening for count invalidations")
	for {
		select {
		case _, ok := <-signals:
			if !ok {
				return ctx.Err()
			}
			if err := s.TriggerInvalidation(ctx); err != nil {
				s.log.Error("Failed to apply invalidation", "error", err)
			}
		case <-ctx.Done():
			s.log.Info("Count invalidation listener stopped")
			return ctx.Err()
		}
	}
}

func (s *CountSync) nextSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	return s.issued
}

func (s *CountSync) reset() {
	s.apply(s.nextSeq(), domain.Counts{})
}

func (s *CountSync) apply(seq uint64, counts domain.Counts) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if seq < s.applied {
		applied := s.applied
		s.mu.Unlock()
		s.log.Debug("Discarding stale counts response", "seq", seq, "applied", applied)
		return
	}
	s.applied = seq
	counts.RefreshedAt = s.clock.Now()
	s.counts = counts
	observers := make([]countObserver, len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	for _, o := range observers {
		o.fn(counts)
	}
}
