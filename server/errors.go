package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/alimasry/elearning-docstore/store"
)

type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError writes the standard error body. message must be safe to show
// to clients.
func writeError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(errorPayload{
		RequestID: requestIDFromCtx(c),
		Error:     errorEnvelope{Code: code, Message: message},
	})
}

// writeStoreError maps a repository failure to a response. Rejected input
// is the caller's fault; everything else is reported as internal.
func (s *Server) writeStoreError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrInvalidArgument):
		return writeError(c, fiber.StatusBadRequest, "INVALID_ARGUMENT", "invalid document id or collection")
	case errors.Is(err, store.ErrUndefinedValue):
		return writeError(c, fiber.StatusBadRequest, "UNDEFINED_VALUE", "body contains null values")
	default:
		s.log.Error("store operation failed", "request_id", requestIDFromCtx(c), "error", err)
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

// ErrorHandler renders errors that escape the handlers, such as unmatched
// routes, in the standard envelope.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		default:
			return writeError(c, status, "INTERNAL_ERROR", "internal server error")
		}
	}
}
