package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/parsey/docpreview/internal/client"
	"github.com/parsey/docpreview/internal/service"
	"github.com/parsey/docpreview/pkg/response"
)

type AnalysisHandler struct {
	analysis *service.AnalysisService
	analyzer client.DocumentAnalyzer
	uploads  *service.UploadPolicy
}

func NewAnalysisHandler(analysis *service.AnalysisService, analyzer client.DocumentAnalyzer, uploads *service.UploadPolicy) *AnalysisHandler {
	return &AnalysisHandler{
		analysis: analysis,
		analyzer: analyzer,
		uploads:  uploads,
	}
}

// Phases handles GET /api/analysis/phases
func (h *AnalysisHandler) Phases(c *fiber.Ctx) error {
	return response.OK(c, h.analysis.Phases())
}

// Start handles POST /api/sessions/:sessionId/analysis
func (h *AnalysisHandler) Start(c *fiber.Ctx) error {
	sessionID := c.Params("sessionId")
	if sessionID == "" {
		return response.ValidationError(c, "Session ID is required", nil)
	}

	file, ok, err := readUpload(c, h.uploads)
	if !ok {
		return err
	}

	result, err := h.analysis.Start(c.UserContext(), sessionID, file)
	if err != nil {
		return respondError(c, err)
	}
	return response.Accepted(c, result)
}

// Status handles GET /api/analysis/status/:runId
func (h *AnalysisHandler) Status(c *fiber.Ctx) error {
	result, err := h.analysis.Status(c.UserContext(), c.Params("runId"))
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, result)
}

// Result handles GET /api/analysis/result/:runId
func (h *AnalysisHandler) Result(c *fiber.Ctx) error {
	result, err := h.analysis.Result(c.UserContext(), c.Params("runId"))
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, result)
}

// Reset handles POST /api/analysis/reset/:runId
func (h *AnalysisHandler) Reset(c *fiber.Ctx) error {
	result, err := h.analysis.Reset(c.UserContext(), c.Params("runId"))
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, result)
}

// Classify handles POST /api/analysis/classify. It is synchronous and
// creates no run.
func (h *AnalysisHandler) Classify(c *fiber.Ctx) error {
	file, ok, err := readUpload(c, h.uploads)
	if !ok {
		return err
	}

	result, err := h.analyzer.Classify(c.UserContext(), client.File{
		Name:        file.Name,
		ContentType: file.MediaType,
		Data:        file.Data,
	})
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, result)
}
