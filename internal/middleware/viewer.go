package middleware

import (
	"strings"

	"kbs-backend/internal/pkg/response"
	"kbs-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

// ViewerIDHeader carries the client's device id. Per-viewer preferences are
// keyed by it.
const ViewerIDHeader = "X-Viewer-Id"

const viewerLocal = "viewer_id"

// RequireViewer rejects requests without a viewer id with 400. The id is copied
// out of the request buffer since sessions and stores keep it after the request.
func RequireViewer() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := utils.CopyString(strings.TrimSpace(c.Get(ViewerIDHeader)))
		if !validation.IsValidViewerID(id) {
			return response.Error(c, "Missing or invalid "+ViewerIDHeader+" header", fiber.StatusBadRequest, nil)
		}
		c.Locals(viewerLocal, id)
		return c.Next()
	}
}

// GetViewerID returns the viewer id set by RequireViewer ("" if absent).
func GetViewerID(c *fiber.Ctx) string {
	id, _ := c.Locals(viewerLocal).(string)
	return id
}
