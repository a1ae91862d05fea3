package handlers

import (
	"context"
	"net/http"
	"net/url"

	"github.com/anonto42/reelshelf/backend/internal/catalog"
	"github.com/anonto42/reelshelf/backend/internal/middleware"
	"github.com/labstack/echo/v4"
)

// CatalogFetcher returns raw catalog JSON for an endpoint
type CatalogFetcher interface {
	Fetch(ctx context.Context, endpoint string, params url.Values) ([]byte, error)
}

// CatalogHandler proxies read requests to the movie catalog
type CatalogHandler struct {
	catalog CatalogFetcher
}

// NewCatalogHandler creates a new CatalogHandler
func NewCatalogHandler(fetcher CatalogFetcher) *CatalogHandler {
	return &CatalogHandler{catalog: fetcher}
}

// RegisterCatalogRoutes registers the proxy route. The group should carry
// OptionalUser so account endpoints can check the caller.
func (h *CatalogHandler) RegisterCatalogRoutes(g *echo.Group) {
	g.GET("/tmdb", h.Proxy)
}

// Proxy serves GET /tmdb?endpoint=movie/popular&page=2
func (h *CatalogHandler) Proxy(c echo.Context) error {
	endpoint := c.QueryParam("endpoint")
	if err := catalog.ValidateEndpoint(endpoint); err != nil {
		return err
	}
	if catalog.RequiresAuth(endpoint) && middleware.UserIDFrom(c) == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
	}

	body, err := h.catalog.Fetch(c.Request().Context(), endpoint, c.QueryParams())
	if err != nil {
		return err
	}
	return c.JSONBlob(http.StatusOK, body)
}
