package handlers

import (
	"net/http"
	"time"

	"auction-storefront/internal/domain"
	"auction-storefront/internal/services"
	"auction-storefront/pkg/logger"

	"github.com/labstack/echo/v4"
)

type CountsHandler struct {
	counts    *services.CountSync
	publisher domain.InvalidationPublisher
	log       logger.Logger
}

type CountsResponse struct {
	WishlistCount int       `json:"wishlist_count"`
	BidsCount     int       `json:"bids_count"`
	RefreshedAt   time.Time `json:"refreshed_at"`
	LastChanged   time.Time `json:"last_changed"`
}

func NewCountsHandler(counts *services.CountSync, publisher domain.InvalidationPublisher, log logger.Logger) *CountsHandler {
	return &CountsHandler{
		counts:    counts,
		publisher: publisher,
		log:       log,
	}
}

func (h *CountsHandler) GetCounts(c echo.Context) error {
	counts := h.counts.Counts()
	return c.JSON(http.StatusOK, CountsResponse{
		WishlistCount: counts.WishlistCount,
		BidsCount:     counts.BidsCount,
		RefreshedAt:   counts.RefreshedAt,
		LastChanged:   h.counts.LastChanged(),
	})
}

// Invalidate broadcasts an invalidation signal; every count observer refreshes asynchronously.
func (h *CountsHandler) Invalidate(c echo.Context) error {
	if err := h.publisher.Publish(c.Request().Context()); err != nil {
		h.log.Error("Failed to publish invalidation", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to publish invalidation"})
	}
	return c.JSON(http.StatusAccepted, map[string]string{"message": "Invalidation published"})
}
