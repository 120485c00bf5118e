package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/parsey/docpreview/internal/model"
	"github.com/parsey/docpreview/internal/service"
	"github.com/parsey/docpreview/pkg/response"
)

type GalleryHandler struct {
	gallery *service.GalleryService
}

func NewGalleryHandler(gallery *service.GalleryService) *GalleryHandler {
	return &GalleryHandler{gallery: gallery}
}

// Models handles GET /api/gallery/models
func (h *GalleryHandler) Models(c *fiber.Ctx) error {
	models, err := h.gallery.Models(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, fiber.Map{"models": models})
}

// Prompts handles GET /api/gallery/prompts
func (h *GalleryHandler) Prompts(c *fiber.Ctx) error {
	prompts, err := h.gallery.Prompts(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, fiber.Map{"prompts": prompts})
}

// Generate handles POST /api/sessions/:sessionId/gallery/generate
func (h *GalleryHandler) Generate(c *fiber.Ctx) error {
	var req model.GenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	result, err := h.gallery.Generate(c.UserContext(), c.Params("sessionId"), &req)
	if err != nil {
		return respondError(c, err)
	}
	return response.Created(c, result)
}
