package server

import (
	"fmt"
	"io"

	"threads/internal/models"
	"threads/internal/upload"

	"github.com/gofiber/fiber/v2"
)

// UploadFiles stores the multipart "files" field and returns their URLs.
func (s *Server) UploadFiles(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Expected multipart form with files"))
	}

	headers := form.File["files"]
	files := make([]upload.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return models.RespondWithAppError(c, models.NewValidationError(fmt.Sprintf("cannot read %s", fh.Filename)))
		}
		content, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return models.RespondWithAppError(c, models.NewValidationError(fmt.Sprintf("cannot read %s", fh.Filename)))
		}
		files = append(files, upload.File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Content:     content,
		})
	}

	results, err := s.uploads.Upload(c.UserContext(), upload.PolicyMedia, files)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(results)
}
