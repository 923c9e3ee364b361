package handlers

import (
	"errors"
	"net/http"

	"auction-storefront/internal/domain"
	"auction-storefront/internal/infrastructure/backend"

	"github.com/labstack/echo/v4"
)

func errorStatus(err error) int {
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrNoIdentity):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrEmptySubject), errors.Is(err, domain.ErrEmptyProductID):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNoSubject):
		return http.StatusConflict
	case backend.IsNotFound(err):
		return http.StatusNotFound
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorJSON(c echo.Context, err error) error {
	return c.JSON(errorStatus(err), map[string]string{"error": err.Error()})
}
