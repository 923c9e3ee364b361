package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// LiveState is the lifecycle state of the live-update connection.
type LiveState int

const (
	LiveIdle LiveState = iota
	LiveConnecting
	LiveOpen
	LiveReconnecting
	// LiveFailed is idle after reconnect attempts ran out. Only an explicit
	// Connect or Reconnect leaves it.
	LiveFailed
)

func (s LiveState) String() string {
	switch s {
	case LiveIdle:
		return "idle"
	case LiveConnecting:
		return "connecting"
	case LiveOpen:
		return "open"
	case LiveReconnecting:
		return "reconnecting"
	case LiveFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s LiveState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *LiveState) UnmarshalText(text []byte) error {
	for candidate := LiveIdle; candidate <= LiveFailed; candidate++ {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown live state %q", text)
}

type LiveStatus struct {
	State   LiveState `json:"state"`
	Subject string    `json:"subject,omitempty"`
	Attempt int       `json:"attempt"`
	Err     error     `json:"-"`
}

// LiveMessage is one inbound live-update message. Type is empty when the
// payload has no string "type" field.
type LiveMessage struct {
	Type       string         `json:"type"`
	Subject    string         `json:"subject"`
	Raw        map[string]any `json:"raw"`
	Data       []byte         `json:"-"`
	ReceivedAt time.Time      `json:"received_at"`
}

const (
	// MessageLiveUnavailable is delivered to handlers when the manager gives up reconnecting.
	MessageLiveUnavailable = "live_unavailable"

	MessageBidUpdate       = "bid_update"
	MessageAuctionEnded    = "auction_ended"
	MessageAuctionExtended = "auction_extended"
)

// Counts is the cached wishlist/active-bid pair.
type Counts struct {
	WishlistCount int       `json:"wishlist_count"`
	BidsCount     int       `json:"bids_count"`
	RefreshedAt   time.Time `json:"refreshed_at"`
}

type Identity struct {
	UserID string
	Token  string
}

type WishlistItem struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Product struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	StartingBid float64   `json:"starting_bid"`
	CurrentBid  float64   `json:"current_bid"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
}

// Duration is the auction window, used as the countdown's total duration.
func (p *Product) Duration() time.Duration {
	return p.EndTime.Sub(p.StartTime)
}

// DecodeLiveMessage parses a raw frame. Any JSON object is accepted; the type
// discriminator is optional.
func DecodeLiveMessage(subject string, data []byte, receivedAt time.Time) (*LiveMessage, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, ErrNotAnObject
	}

	msgType, _ := raw["type"].(string)
	return &LiveMessage{
		Type:       msgType,
		Subject:    subject,
		Raw:        raw,
		Data:       data,
		ReceivedAt: receivedAt,
	}, nil
}
