package handlers

import (
	"context"
	"net/http"
	"sync"

	"auction-storefront/internal/clock"
	"auction-storefront/internal/countdown"
	"auction-storefront/internal/domain"
	"auction-storefront/internal/services"
	"auction-storefront/pkg/logger"

	"github.com/labstack/echo/v4"
)

const recentMessageLimit = 50

// LiveHandler exposes the live connection, a short history of the messages
// it delivered and the countdown of the subscribed product.
type LiveHandler struct {
	live      *services.LiveManager
	products  domain.ProductBackend
	publisher domain.InvalidationPublisher
	clock     clock.Clock
	log       logger.Logger

	mu        sync.Mutex
	handlerID string
	subject   string
	recent    []*domain.LiveMessage
	watcher   *countdown.Watcher

	// cdMu guards the latest countdown; watchers emit from their own goroutine.
	cdMu      sync.Mutex
	cdOwner   *countdown.Watcher
	countdown *countdown.State
}

type LiveResponse struct {
	State     domain.LiveState      `json:"state"`
	Subject   string                `json:"subject,omitempty"`
	Attempt   int                   `json:"attempt"`
	Error     string                `json:"error,omitempty"`
	Recent    []*domain.LiveMessage `json:"recent"`
	Countdown *countdown.State      `json:"countdown,omitempty"`
}

func NewLiveHandler(live *services.LiveManager, products domain.ProductBackend, publisher domain.InvalidationPublisher,
	clk clock.Clock, log logger.Logger) *LiveHandler {
	if clk == nil {
		clk = clock.Real()
	}
	return &LiveHandler{
		live:      live,
		products:  products,
		publisher: publisher,
		clock:     clk,
		log:       log,
	}
}

func (h *LiveHandler) Connect(c echo.Context) error {
	subjectID := c.Param("subjectID")

	// The product lookup runs unlocked so record keeps draining messages of
	// the current subject while the backend answers.
	h.mu.Lock()
	switching := subjectID != h.subject
	h.mu.Unlock()

	var product *domain.Product
	var productErr error
	if switching && subjectID != "" {
		product, productErr = h.products.GetProduct(c.Request().Context(), subjectID)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.handlerID != "" {
		h.live.RemoveMessageHandler(h.handlerID)
		h.handlerID = ""
	}

	id, err := h.live.Connect(subjectID, h.record)
	if err != nil {
		return errorJSON(c, err)
	}
	h.handlerID = id
	if subjectID != h.subject {
		h.subject = subjectID
		h.recent = nil
		h.watchLocked(subjectID, product, productErr)
	}

	h.log.Info("Live subscription requested", "subject", subjectID)
	return c.JSON(http.StatusAccepted, h.responseLocked())
}

// Reconnect leaves the failed state with a fresh attempt budget.
func (h *LiveHandler) Reconnect(c echo.Context) error {
	if err := h.live.Reconnect(); err != nil {
		return errorJSON(c, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return c.JSON(http.StatusAccepted, h.responseLocked())
}

func (h *LiveHandler) Disconnect(c echo.Context) error {
	h.live.Disconnect()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlerID = ""
	h.subject = ""
	h.recent = nil
	h.stopWatchLocked()
	return c.NoContent(http.StatusNoContent)
}

func (h *LiveHandler) Status(c echo.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return c.JSON(http.StatusOK, h.responseLocked())
}

func (h *LiveHandler) record(msg *domain.LiveMessage) {
	h.mu.Lock()
	h.recent = append(h.recent, msg)
	if len(h.recent) > recentMessageLimit {
		h.recent = h.recent[len(h.recent)-recentMessageLimit:]
	}
	h.mu.Unlock()

	// A new bid or an ended auction can change the active-bid count.
	switch msg.Type {
	case domain.MessageBidUpdate, domain.MessageAuctionEnded:
		if err := h.publisher.Publish(context.Background()); err != nil {
			h.log.Error("Failed to publish invalidation", "subject", msg.Subject, "error", err)
		}
	}
}

// watchLocked replaces the countdown watcher with one for product. A
// product that could not be fetched leaves the countdown empty.
func (h *LiveHandler) watchLocked(productID string, product *domain.Product, err error) {
	h.stopWatchLocked()

	if err != nil {
		h.log.Warn("No countdown for live subject", "subject", productID, "error", err)
		return
	}
	if product == nil {
		// Another request switched subjects while this one skipped the lookup.
		h.log.Warn("No countdown for live subject", "subject", productID)
		return
	}

	var w *countdown.Watcher
	w = countdown.NewWatcher(h.clock, product.EndTime, product.Duration(), func(state countdown.State) {
		h.cdMu.Lock()
		defer h.cdMu.Unlock()
		if h.cdOwner == w {
			h.countdown = &state
		}
	})

	h.cdMu.Lock()
	h.cdOwner = w
	h.cdMu.Unlock()

	h.watcher = w
	w.Start(context.Background())
}

func (h *LiveHandler) stopWatchLocked() {
	if h.watcher != nil {
		h.watcher.Stop()
		h.watcher = nil
	}

	h.cdMu.Lock()
	h.cdOwner = nil
	h.countdown = nil
	h.cdMu.Unlock()
}

func (h *LiveHandler) currentCountdown() *countdown.State {
	h.cdMu.Lock()
	defer h.cdMu.Unlock()
	if h.countdown == nil {
		return nil
	}
	state := *h.countdown
	return &state
}

func (h *LiveHandler) responseLocked() LiveResponse {
	status := h.live.Status()
	resp := LiveResponse{
		State:     status.State,
		Subject:   status.Subject,
		Attempt:   status.Attempt,
		Recent:    append([]*domain.LiveMessage{}, h.recent...),
		Countdown: h.currentCountdown(),
	}
	if status.Err != nil {
		resp.Error = status.Err.Error()
	}
	return resp
}
