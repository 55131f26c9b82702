package stories

import (
	"errors"

	storysvc "kbs-backend/internal/application/stories"
	"kbs-backend/internal/middleware"
	"kbs-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

type Handlers struct {
	Service *storysvc.Service
}

// GET /api/v1/stories/tray?scope
func (h *Handlers) GetTray(c *fiber.Ctx) error {
	tray, err := h.Service.Tray(c.Context(), middleware.GetViewerID(c), c.Query("scope"))
	if err != nil {
		log.Warn().Err(err).Str("trace_id", middleware.GetTraceID(c)).Msg("story tray unavailable")
		return response.Error(c, "Stories are unavailable", fiber.StatusServiceUnavailable, nil)
	}
	return response.Success(c, "Story tray fetched successfully", tray, nil)
}

// POST /api/v1/stories/sessions
func (h *Handlers) OpenSession(c *fiber.Ctx) error {
	var body struct {
		CommunityID string `json:"community_id"`
	}
	if err := c.BodyParser(&body); err != nil || body.CommunityID == "" {
		return response.Error(c, "community_id is required", fiber.StatusBadRequest, nil)
	}
	view, err := h.Service.Open(c.Context(), middleware.GetViewerID(c), body.CommunityID)
	if err != nil {
		return sessionError(c, err)
	}
	return response.SuccessCreated(c, "Story playback started", view, nil)
}

// GET /api/v1/stories/sessions/:id
func (h *Handlers) GetSession(c *fiber.Ctx) error {
	view, err := h.Service.Get(middleware.GetViewerID(c), c.Params("id"))
	if err != nil {
		return sessionError(c, err)
	}
	return response.Success(c, "Story playback state", view, nil)
}

// POST /api/v1/stories/sessions/:id/events
func (h *Handlers) SendEvent(c *fiber.Ctx) error {
	var body struct {
		Type string `json:"type"`
	}
	if err := c.BodyParser(&body); err != nil || body.Type == "" {
		return response.Error(c, "type is required", fiber.StatusBadRequest, nil)
	}
	view, err := h.Service.Dispatch(middleware.GetViewerID(c), c.Params("id"), storysvc.Event(body.Type))
	if err != nil {
		return sessionError(c, err)
	}
	return response.Success(c, "Event applied", view, nil)
}

// DELETE /api/v1/stories/sessions/:id
func (h *Handlers) CloseSession(c *fiber.Ctx) error {
	if err := h.Service.Close(middleware.GetViewerID(c), c.Params("id")); err != nil {
		return sessionError(c, err)
	}
	return response.Success(c, "Story playback closed", fiber.Map{"session_id": c.Params("id")}, nil)
}

func sessionError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, storysvc.ErrSessionNotFound):
		return response.Error(c, err.Error(), fiber.StatusNotFound, nil)
	case errors.Is(err, storysvc.ErrCommunityNotFound):
		return response.Error(c, err.Error(), fiber.StatusNotFound, nil)
	case errors.Is(err, storysvc.ErrNoStories):
		return response.Error(c, err.Error(), fiber.StatusConflict, nil)
	case errors.Is(err, storysvc.ErrUnknownEvent):
		return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
	}
	log.Error().Err(err).Str("trace_id", middleware.GetTraceID(c)).Msg("story session error")
	return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
}
