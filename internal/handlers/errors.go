package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/anonto42/reelshelf/backend/internal/apperrors"
	"github.com/anonto42/reelshelf/backend/pkg/logger"
	"github.com/labstack/echo/v4"
)

// NewHTTPErrorHandler renders every error as { "error": message }. Coded
// service errors keep their status; unknown errors become a generic 500 and
// the cause is only logged.
func NewHTTPErrorHandler(log *logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, msg := resolveError(err)
		if status >= http.StatusInternalServerError {
			log.Error("request failed", "method", c.Request().Method, "path", c.Path(), "status", status, "error", err)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, echo.Map{"error": msg})
		}
		if err != nil {
			log.Warn("writing error response", "error", err)
		}
	}
}

// resolveError prefers a coded error over any echo error it wraps, so the
// client sees the service's message and never a decoder's.
func resolveError(err error) (int, string) {
	var ae *apperrors.Error
	if errors.As(err, &ae) {
		return apperrors.StatusAndMessage(ae)
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		switch m := he.Message.(type) {
		case string:
			return he.Code, m
		case nil:
			return he.Code, http.StatusText(he.Code)
		default:
			return he.Code, fmt.Sprint(m)
		}
	}
	return apperrors.StatusAndMessage(err)
}
