package services

import (
	"context"
	"fmt"

	"auction-storefront/internal/domain"
	"auction-storefront/pkg/logger"
)

// WishlistService performs wishlist mutations and announces each successful
// one on the invalidation bus so every count observer refreshes.
type WishlistService struct {
	backend   domain.WishlistBackend
	publisher domain.InvalidationPublisher
	log       logger.Logger
}

func NewWishlistService(backend domain.WishlistBackend, publisher domain.InvalidationPublisher, log logger.Logger) *WishlistService {
	return &WishlistService{
		backend:   backend,
		publisher: publisher,
		log:       log,
	}
}

func (s *WishlistService) List(ctx context.Context) ([]domain.WishlistItem, error) {
	items, err := s.backend.ListWishlist(ctx)
	if err != nil {
		return nil, fmt.Errorf("list wishlist: %w", err)
	}
	return items, nil
}

func (s *WishlistService) Contains(ctx context.Context, productID string) (bool, error) {
	items, err := s.List(ctx)
	if err != nil {
		return false, err
	}
	for _, item := range items {
		if item.ProductID == productID {
			return true, nil
		}
	}
	return false, nil
}

func (s *WishlistService) Add(ctx context.Context, productID string) error {
	if productID == "" {
		return domain.ErrEmptyProductID
	}
	if err := s.backend.AddToWishlist(ctx, productID); err != nil {
		return fmt.Errorf("add %s to wishlist: %w", productID, err)
	}

	s.log.Info("Added to wishlist", "product_id", productID)
	s.invalidate(ctx)
	return nil
}

func (s *WishlistService) Remove(ctx context.Context, productID string) error {
	if productID == "" {
		return domain.ErrEmptyProductID
	}
	if err := s.backend.RemoveFromWishlist(ctx, productID); err != nil {
		return fmt.Errorf("remove %s from wishlist: %w", productID, err)
	}

	s.log.Info("Removed from wishlist", "product_id", productID)
	s.invalidate(ctx)
	return nil
}

// Publish failures are logged only; the next poll converges the counts.
func (s *WishlistService) invalidate(ctx context.Context) {
	if err := s.publisher.Publish(ctx); err != nil {
		s.log.Error("Failed to publish count invalidation", "error", err)
	}
}
