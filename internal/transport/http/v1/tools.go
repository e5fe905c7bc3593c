package v1

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/finagent/orchestrator/internal/tools"
)

// ListTools returns the tool catalog, optionally filtered by category and
// tags.
func (h *Handler) ListTools(c echo.Context) error {
	filter := tools.Filter{Category: c.QueryParam("category")}
	if tags := c.QueryParam("tags"); tags != "" {
		filter.Tags = strings.Split(tags, ",")
	}

	defs := h.deps.Registry.List(filter)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"tools": defs,
		"count": len(defs),
	})
}
