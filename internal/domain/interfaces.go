package domain

import (
	"context"
	"errors"
)

var (
	ErrEmptySubject       = errors.New("subject id is required")
	ErrNoSubject          = errors.New("no subject to reconnect to")
	ErrReconnectExhausted = errors.New("live updates unavailable: reconnect attempts exhausted")
	ErrNotAnObject        = errors.New("live message is not a JSON object")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNoIdentity         = errors.New("no authenticated user")
	ErrEmptyProductID     = errors.New("product id is required")
)

// Live transport interfaces
type LiveTransport interface {
	ReadMessage() ([]byte, error)
	Close() error
}

type LiveDialer interface {
	Dial(ctx context.Context, subjectID string) (LiveTransport, error)
}

type MessageHandler func(msg *LiveMessage)

type StatusHandler func(status LiveStatus)

// Identity interfaces
type IdentitySource interface {
	Current() (Identity, bool)
}

// Backend interfaces
type CountsFetcher interface {
	FetchCounts(ctx context.Context, userID string) (Counts, error)
}

type WishlistBackend interface {
	ListWishlist(ctx context.Context) ([]WishlistItem, error)
	AddToWishlist(ctx context.Context, productID string) error
	RemoveFromWishlist(ctx context.Context, productID string) error
}

type ProductBackend interface {
	GetProduct(ctx context.Context, productID string) (*Product, error)
}

// Invalidation interfaces
type InvalidationPublisher interface {
	Publish(ctx context.Context) error
}

type InvalidationSubscriber interface {
	Subscribe(ctx context.Context) (<-chan struct{}, error)
}

type InvalidationBus interface {
	InvalidationPublisher
	InvalidationSubscriber
}
