package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/parsey/docpreview/internal/model"
	"github.com/parsey/docpreview/internal/service"
	"github.com/parsey/docpreview/pkg/response"
)

type SessionHandler struct {
	sessions  *service.SessionService
	analysis  *service.AnalysisService
	uploads   *service.UploadPolicy
	validator *validator.Validate
}

func NewSessionHandler(sessions *service.SessionService, analysis *service.AnalysisService, uploads *service.UploadPolicy, v *validator.Validate) *SessionHandler {
	return &SessionHandler{
		sessions:  sessions,
		analysis:  analysis,
		uploads:   uploads,
		validator: v,
	}
}

// Preview handles POST /api/sessions/:sessionId/preview
func (h *SessionHandler) Preview(c *fiber.Ctx) error {
	sessionID := c.Params("sessionId")
	if sessionID == "" {
		return response.ValidationError(c, "Session ID is required", nil)
	}

	file, ok, err := readUpload(c, h.uploads)
	if !ok {
		return err
	}

	result, err := h.sessions.Preview(c.UserContext(), sessionID, file)
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, result)
}

// Current handles GET /api/sessions/:sessionId/preview
func (h *SessionHandler) Current(c *fiber.Ctx) error {
	result, err := h.sessions.Current(c.Params("sessionId"))
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, result)
}

// Zoom handles POST /api/sessions/:sessionId/zoom
func (h *SessionHandler) Zoom(c *fiber.Ctx) error {
	var req model.ZoomRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.sessions.Zoom(c.Params("sessionId"), req.Action)
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, result)
}

// Teardown handles DELETE /api/sessions/:sessionId
func (h *SessionHandler) Teardown(c *fiber.Ctx) error {
	sessionID := c.Params("sessionId")
	ctx := c.UserContext()

	if err := h.analysis.Forget(ctx, sessionID); err != nil {
		return respondError(c, err)
	}
	err := h.sessions.Teardown(ctx, sessionID)
	if err != nil && !errors.Is(err, service.ErrSessionNotFound) {
		return respondError(c, err)
	}

	return response.OK(c, model.TeardownResponse{Success: true, SessionID: sessionID})
}
