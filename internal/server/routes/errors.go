package routes

import (
	"errors"
	"net/http"

	"github.com/kinfolk-ai/kinfolk/pkg/genealogy"
	"github.com/kinfolk-ai/kinfolk/pkg/leaselock"
	"github.com/kinfolk-ai/kinfolk/pkg/logger"

	"github.com/labstack/echo/v4"
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps the store's error taxonomy onto HTTP statuses. Storage
// failures are logged and not echoed to the client.
func writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, genealogy.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{err.Error()})
	case errors.Is(err, genealogy.ErrInvalid):
		return c.JSON(http.StatusBadRequest, errorResponse{err.Error()})
	case errors.Is(err, leaselock.ErrBusy):
		return c.JSON(http.StatusConflict, errorResponse{"Reconciliation already running"})
	case errors.Is(err, genealogy.ErrConflict):
		return c.JSON(http.StatusConflict, errorResponse{"Concurrent update, retry the request"})
	}
	logger.Error("[Server] Request failed", "path", c.Path(), "err", err)
	return c.JSON(http.StatusInternalServerError, errorResponse{"Internal server error"})
}

func badRequest(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, errorResponse{"Invalid request params"})
}
