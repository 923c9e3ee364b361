package handlers

import (
	"net/http"
	"time"

	"auction-storefront/internal/services"

	"github.com/labstack/echo/v4"
)

type Handlers struct {
	Counts    *CountsHandler
	Session   *SessionHandler
	Wishlist  *WishlistHandler
	Live      *LiveHandler
	Countdown *CountdownHandler
}

// RegisterRoutes mounts the view API on e.
func RegisterRoutes(e *echo.Echo, h Handlers, live *services.LiveManager) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"service":   "storefront",
			"timestamp": time.Now().Format(time.RFC3339),
			"live":      live.Status().State,
		})
	})

	api := e.Group("/api/v1")

	api.GET("/counts", h.Counts.GetCounts)
	api.POST("/counts/invalidate", h.Counts.Invalidate)

	api.GET("/session", h.Session.GetSession)
	api.POST("/session", h.Session.Login)
	api.DELETE("/session", h.Session.Logout)

	api.GET("/wishlist", h.Wishlist.List)
	api.POST("/wishlist/:productID", h.Wishlist.Add)
	api.DELETE("/wishlist/:productID", h.Wishlist.Remove)

	api.GET("/live", h.Live.Status)
	api.POST("/live/reconnect", h.Live.Reconnect)
	api.POST("/live/:subjectID", h.Live.Connect)
	api.DELETE("/live", h.Live.Disconnect)

	api.GET("/products/:id/countdown", h.Countdown.GetCountdown)
}
