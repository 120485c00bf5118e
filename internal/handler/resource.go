package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/parsey/docpreview/internal/resource"
)

type ResourceHandler struct {
	store resource.Store
}

func NewResourceHandler(store resource.Store) *ResourceHandler {
	return &ResourceHandler{store: store}
}

// Get handles GET /api/resources/:id
func (h *ResourceHandler) Get(c *fiber.Ctx) error {
	obj, err := h.store.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}

	c.Set(fiber.HeaderContentType, obj.ContentType)
	c.Set(fiber.HeaderCacheControl, "private, no-store")
	return c.Send(obj.Data)
}
