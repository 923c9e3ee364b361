package handlers

import (
	"net/http"
	"time"

	"auction-storefront/internal/clock"
	"auction-storefront/internal/countdown"
	"auction-storefront/internal/domain"
	"auction-storefront/pkg/logger"

	"github.com/labstack/echo/v4"
)

type CountdownHandler struct {
	products domain.ProductBackend
	clock    clock.Clock
	log      logger.Logger
}

type CountdownResponse struct {
	ProductID string    `json:"product_id"`
	EndTime   time.Time `json:"end_time"`
	Display   string    `json:"display"`
	countdown.State
}

func NewCountdownHandler(products domain.ProductBackend, clk clock.Clock, log logger.Logger) *CountdownHandler {
	if clk == nil {
		clk = clock.Real()
	}
	return &CountdownHandler{products: products, clock: clk, log: log}
}

// GetCountdown reports the remaining time for a product. The optional total
// query parameter overrides the auction window used for progress.
func (h *CountdownHandler) GetCountdown(c echo.Context) error {
	productID := c.Param("id")

	var total time.Duration
	if raw := c.QueryParam("total"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid total duration"})
		}
		total = d
	}

	product, err := h.products.GetProduct(c.Request().Context(), productID)
	if err != nil {
		h.log.Error("Failed to fetch product", "product_id", productID, "error", err)
		return errorJSON(c, err)
	}
	if total == 0 {
		total = product.Duration()
	}

	state := countdown.Snapshot(product.EndTime, total, h.clock.Now())
	return c.JSON(http.StatusOK, CountdownResponse{
		ProductID: product.ID,
		EndTime:   product.EndTime,
		Display:   state.Breakdown.String(),
		State:     state,
	})
}
