package api

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"compliance-core/internal/pipeline"
)

// ErrorHandler maps pipeline errors to their HTTP shape. Anything that
// is not an AppError is an internal failure and stays opaque to the
// caller.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}

	var appErr *pipeline.AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(pipeline.ErrorResponse{Error: appErr})
	}

	log.Printf("ERROR: %v", err)
	return c.Status(code).JSON(pipeline.ErrorResponse{
		Error: &pipeline.AppError{
			Code:    "INTERNAL_ERROR",
			Message: "Internal server error",
		},
	})
}
