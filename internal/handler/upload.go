package handler

import (
	"fmt"
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/parsey/docpreview/internal/preview"
	"github.com/parsey/docpreview/internal/service"
	"github.com/parsey/docpreview/pkg/response"
)

const formFileField = "file"

// readUpload reads the multipart file field after checking it against the
// upload policy. On failure the error response has already been written
// and ok is false.
func readUpload(c *fiber.Ctx, policy *service.UploadPolicy) (file preview.SourceFile, ok bool, err error) {
	header, ferr := c.FormFile(formFileField)
	if ferr != nil {
		return file, false, response.ValidationError(c, "File is required", fiber.Map{"field": formFileField})
	}

	if cerr := policy.Check(header.Filename, header.Size); cerr != nil {
		return file, false, respondError(c, cerr)
	}

	f, oerr := header.Open()
	if oerr != nil {
		return file, false, response.ServiceError(c, "Failed to open file")
	}
	defer f.Close()

	// The part header size is trusted only up to the policy limit.
	data, rerr := io.ReadAll(io.LimitReader(f, policy.MaxBytes()+1))
	if rerr != nil {
		return file, false, response.ServiceError(c, fmt.Sprintf("Failed to read file: %v", rerr))
	}
	if cerr := policy.Check(header.Filename, int64(len(data))); cerr != nil {
		return file, false, respondError(c, cerr)
	}

	return preview.SourceFile{
		Name:      header.Filename,
		MediaType: header.Header.Get(fiber.HeaderContentType),
		Size:      int64(len(data)),
		Data:      data,
	}, true, nil
}
