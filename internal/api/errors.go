package api

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/bull/docsearch/internal/ingest"
)

// Error is the JSON body of every failed request.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e Error) Error() string {
	return e.Message
}

// NewError creates an Error with the given status code.
func NewError(code int, msg string) Error {
	return Error{Code: code, Message: msg}
}

// ValidationError reports request fields that failed validation.
type ValidationError struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

// NewValidationError creates a 400 ValidationError.
func NewValidationError(errs map[string]string) ValidationError {
	return ValidationError{
		Code:    fiber.StatusBadRequest,
		Message: "validation failed",
		Errors:  errs,
	}
}

func ErrBadRequest(msg string) Error {
	return NewError(fiber.StatusBadRequest, msg)
}

func ErrInvalidID() Error {
	return NewError(fiber.StatusBadRequest, "invalid id given")
}

func ErrNotFound[T any](arg T, resource string) Error {
	return NewError(fiber.StatusNotFound, fmt.Sprintf("%s with id %v not found", resource, arg))
}

var validate = validator.New()

// validateStruct returns nil or a ValidationError keyed by the failing field's JSON name.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return ErrBadRequest(err.Error())
	}
	out := make(map[string]string, len(verrs))
	for _, e := range verrs {
		out[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
	}
	return NewValidationError(out)
}

// NewErrorHandler maps errors returned by handlers to JSON responses.
// Service errors are matched by sentinel; anything unrecognized is a 500 with a generic message.
func NewErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *fiber.Ctx, err error) error {
		var (
			apiErr Error
			valErr ValidationError
			fibErr *fiber.Error
		)
		switch {
		case errors.As(err, &valErr):
			return c.Status(valErr.Code).JSON(valErr)
		case errors.As(err, &apiErr):
		case errors.As(err, &fibErr):
			apiErr = NewError(fibErr.Code, fibErr.Message)
		case errors.Is(err, ingest.ErrNotFound):
			apiErr = NewError(fiber.StatusNotFound, err.Error())
		case errors.Is(err, ingest.ErrFileTooLarge):
			apiErr = NewError(fiber.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, ingest.ErrInvalidInput):
			apiErr = NewError(fiber.StatusBadRequest, err.Error())
		default:
			apiErr = NewError(fiber.StatusInternalServerError, "internal server error")
		}

		if apiErr.Code >= fiber.StatusInternalServerError {
			logger.Error("Request failed", "method", c.Method(), "path", c.Path(), "error", err)
		} else {
			logger.Debug("Request rejected", "method", c.Method(), "path", c.Path(), "code", apiErr.Code, "error", err)
		}
		return c.Status(apiErr.Code).JSON(apiErr)
	}
}
