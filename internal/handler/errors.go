package handler

import (
	"errors"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/parsey/docpreview/internal/client"
	"github.com/parsey/docpreview/internal/preview"
	"github.com/parsey/docpreview/internal/progress"
	"github.com/parsey/docpreview/internal/resource"
	"github.com/parsey/docpreview/internal/service"
	"github.com/parsey/docpreview/pkg/response"
)

func formatValidationErrors(err error) interface{} {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		errs := make(map[string]string)
		for _, e := range validationErrors {
			errs[e.Field()] = e.Tag()
		}
		return errs
	}
	return nil
}

// respondError maps service and backend errors onto the error envelope
func respondError(c *fiber.Ctx, err error) error {
	var (
		uploadErr *service.UploadError
		apiErr    *client.APIError
		schemaErr *client.SchemaMismatchError
		verrs     validator.ValidationErrors
	)

	switch {
	case errors.As(err, &uploadErr):
		return uploadError(c, uploadErr)
	case errors.As(err, &verrs):
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))

	case errors.Is(err, service.ErrSessionNotFound):
		return response.NotFound(c, "Session not found")
	case errors.Is(err, service.ErrRunNotFound):
		return response.NotFound(c, "Analysis run not found")
	case errors.Is(err, resource.ErrNotFound):
		return response.NotFound(c, "Resource not found")
	case errors.Is(err, resource.ErrHandleRevoked):
		return response.Gone(c, "Resource has been released")

	case errors.Is(err, preview.ErrSuperseded):
		return response.Conflict(c, "Preview superseded by a newer file")
	case errors.Is(err, service.ErrGallerySuperseded):
		return response.Conflict(c, "Gallery superseded by a newer generation")
	case errors.Is(err, preview.ErrSlotClosed):
		return response.Gone(c, "Session has been closed")
	case errors.Is(err, service.ErrRunNotFinished):
		return response.Conflict(c, "Analysis not finished yet")
	case errors.Is(err, progress.ErrInvalidTransition):
		return response.Conflict(c, err.Error())

	case errors.As(err, &apiErr):
		if apiErr.Kind == client.KindTimeout {
			return response.BackendTimeout(c, apiErr.Message)
		}
		return response.BackendError(c, apiErr.Message, fiber.Map{
			"kind":   apiErr.Kind,
			"status": apiErr.Status,
		})
	case errors.As(err, &schemaErr):
		return response.BackendError(c, "Unexpected backend response", fiber.Map{
			"field":  schemaErr.Field,
			"reason": schemaErr.Reason,
		})
	case errors.Is(err, service.ErrGenerationFailed):
		return response.BackendError(c, "Image generation failed", nil)
	}

	log.Printf("Request %s %s failed: %v", c.Method(), c.Path(), err)
	return response.ServiceError(c, err.Error())
}

func uploadError(c *fiber.Ctx, err *service.UploadError) error {
	details := fiber.Map{
		"fileName": err.FileName,
		"fileSize": err.Size,
	}
	switch {
	case errors.Is(err, service.ErrFileTooLarge):
		details["maxSize"] = err.MaxSize
		return response.PayloadTooLarge(c, "File size exceeds the upload limit", details)
	case errors.Is(err, service.ErrUnsupportedExtension):
		details["allowed"] = err.Allowed
		return response.UnsupportedFormat(c, "File type not supported", details)
	default:
		return response.ValidationError(c, err.Error(), details)
	}
}
