package handlers

import (
	"net/http"

	"auction-storefront/internal/session"
	"auction-storefront/pkg/logger"

	"github.com/labstack/echo/v4"
)

type SessionHandler struct {
	store *session.Store
	log   logger.Logger
}

type LoginRequest struct {
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

type SessionResponse struct {
	LoggedIn bool   `json:"logged_in"`
	UserID   string `json:"user_id,omitempty"`
}

func NewSessionHandler(store *session.Store, log logger.Logger) *SessionHandler {
	return &SessionHandler{store: store, log: log}
}

func (h *SessionHandler) GetSession(c echo.Context) error {
	ident, ok := h.store.Current()
	return c.JSON(http.StatusOK, SessionResponse{LoggedIn: ok, UserID: ident.UserID})
}

func (h *SessionHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		h.log.Error("Failed to bind request", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if req.UserID == "" || req.Token == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "user_id and token are required"})
	}

	h.store.Login(req.UserID, req.Token)
	return c.JSON(http.StatusOK, SessionResponse{LoggedIn: true, UserID: req.UserID})
}

func (h *SessionHandler) Logout(c echo.Context) error {
	h.store.Logout()
	return c.JSON(http.StatusOK, SessionResponse{LoggedIn: false})
}
