package feed

import (
	"errors"
	"strconv"
	"strings"

	feedsvc "kbs-backend/internal/application/feed"
	"kbs-backend/internal/domain"
	"kbs-backend/internal/middleware"
	"kbs-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

type Handlers struct {
	Service *feedsvc.Service
}

// GET /api/v1/circles
func (h *Handlers) ListCircles(c *fiber.Ctx) error {
	circles, err := h.Service.Circles(c.Context())
	if err != nil {
		return response.Error(c, "Circles are unavailable", fiber.StatusServiceUnavailable, nil)
	}
	return response.Success(c, "Circles fetched successfully", circles, nil)
}

// GET /api/v1/feed?scope&chip&q&distance&price_min&price_max&condition&sort
func (h *Handlers) GetFeed(c *fiber.Ctx) error {
	q := feedsvc.Query{
		Scope:  utils.CopyString(c.Query("scope")),
		Chip:   feedsvc.Chip(c.Query("chip", string(feedsvc.ChipAll))),
		Search: c.Query("q"),
		Criteria: feedsvc.Criteria{
			Distance:   queryFloat(c, "distance"),
			PriceMin:   c.Query("price_min"),
			PriceMax:   c.Query("price_max"),
			Conditions: queryConditions(c),
			SortBy:     feedsvc.SortKey(c.Query("sort", string(feedsvc.SortNewest))),
		},
	}
	result, err := h.Service.Feed(c.Context(), middleware.GetViewerID(c), q)
	if err != nil {
		if errors.Is(err, feedsvc.ErrUnknownScope) {
			return response.Error(c, "Scope not found", fiber.StatusNotFound, nil)
		}
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "Feed fetched successfully", result, fiber.Map{
		"distance":   result.Criteria.Distance,
		"sort":       result.Criteria.SortBy,
		"conditions": result.Criteria.Conditions,
	})
}

// PUT /api/v1/feed/scope
func (h *Handlers) SelectScope(c *fiber.Ctx) error {
	var body struct {
		ScopeID string `json:"scope_id"`
	}
	if err := c.BodyParser(&body); err != nil || strings.TrimSpace(body.ScopeID) == "" {
		return response.Error(c, "scope_id is required", fiber.StatusBadRequest, nil)
	}
	circle, err := h.Service.SelectScope(c.Context(), middleware.GetViewerID(c), strings.TrimSpace(body.ScopeID))
	if err != nil {
		if errors.Is(err, feedsvc.ErrUnknownScope) {
			return response.Error(c, "Scope not found", fiber.StatusNotFound, nil)
		}
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "Scope selected", circle, nil)
}

// queryFloat returns 0 (use the default) for a missing or malformed value.
func queryFloat(c *fiber.Ctx, key string) float64 {
	v, err := strconv.ParseFloat(c.Query(key), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func queryConditions(c *fiber.Ctx) []domain.Condition {
	var out []domain.Condition
	for _, raw := range c.Context().QueryArgs().PeekMulti("condition") {
		if s := strings.TrimSpace(string(raw)); s != "" {
			out = append(out, domain.Condition(s))
		}
	}
	return out
}
