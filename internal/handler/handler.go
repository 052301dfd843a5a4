package handler

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"crm-service/internal/apperr"
	"crm-service/internal/blob"
	"crm-service/internal/store"
	"crm-service/prometheus"
)

// Handler carries the request-independent collaborators. Everything
// request-scoped travels on the echo context; no handler mutates shared
// state.
type Handler struct {
	Store      *store.Store
	Blob       blob.Store
	Extractor  blob.Extractor
	PresignTTL time.Duration
}

// respondError translates the error taxonomy into the HTTP surface: a
// stable code plus a caller-safe message. Store causes never leak.
func respondError(c echo.Context, err error) error {
	kind := apperr.KindOf(err)
	if kind == apperr.Forbidden {
		prometheus.TenantDeniedCounter.Inc()
	}
	return c.JSON(apperr.HTTPStatus(kind), echo.Map{
		"error": apperr.Message(err),
		"code":  string(kind),
	})
}

// pageParams reads the pagination query parameters. pageSize is clamped
// to the store default when absent or unusable.
func pageParams(c echo.Context) (int, string) {
	pageSize := 0
	if raw := c.QueryParam("pageSize"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			pageSize = n
		}
	}
	return pageSize, c.QueryParam("cursor")
}

// pageResponse is the uniform shape of every paginated listing.
func pageResponse(items interface{}, nextCursor string, more bool) echo.Map {
	return echo.Map{
		"items":      items,
		"nextCursor": nextCursor,
		"hasMore":    more,
	}
}
