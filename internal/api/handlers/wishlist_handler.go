package handlers

import (
	"net/http"

	"auction-storefront/internal/services"
	"auction-storefront/pkg/logger"

	"github.com/labstack/echo/v4"
)

type WishlistHandler struct {
	wishlist *services.WishlistService
	log      logger.Logger
}

func NewWishlistHandler(wishlist *services.WishlistService, log logger.Logger) *WishlistHandler {
	return &WishlistHandler{wishlist: wishlist, log: log}
}

func (h *WishlistHandler) List(c echo.Context) error {
	items, err := h.wishlist.List(c.Request().Context())
	if err != nil {
		h.log.Error("Failed to list wishlist", "error", err)
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"items": items,
		"count": len(items),
	})
}

func (h *WishlistHandler) Add(c echo.Context) error {
	productID := c.Param("productID")
	if err := h.wishlist.Add(c.Request().Context(), productID); err != nil {
		h.log.Error("Failed to add to wishlist", "product_id", productID, "error", err)
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"product_id": productID})
}

func (h *WishlistHandler) Remove(c echo.Context) error {
	productID := c.Param("productID")
	if err := h.wishlist.Remove(c.Request().Context(), productID); err != nil {
		h.log.Error("Failed to remove from wishlist", "product_id", productID, "error", err)
		return errorJSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
