package server

import (
	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/pagecache"
	"github.com/unkn0wn-root/pagecache/internal/comments"
	"github.com/unkn0wn-root/pagecache/internal/games"
)

// errBadRequest marks malformed request bodies and parameters.
var errBadRequest = errors.New("bad request")

// statusOf maps a handler error to a status and a stable error code.
func statusOf(err error) (int, string) {
	var fe *fiber.Error
	switch {
	case errors.Is(err, pagecache.ErrInvalidPageToken):
		return fiber.StatusBadRequest, "invalid_page_token"
	case errors.Is(err, errBadRequest), errors.Is(err, games.ErrInvalid), errors.Is(err, comments.ErrInvalid):
		return fiber.StatusBadRequest, "invalid_request"
	case errors.Is(err, pagecache.ErrNotFound):
		return fiber.StatusNotFound, "not_found"
	case errors.Is(err, pagecache.ErrSourceUnavailable):
		return fiber.StatusServiceUnavailable, "source_unavailable"
	case errors.As(err, &fe):
		return fe.Code, "http_error"
	default:
		return fiber.StatusInternalServerError, "internal"
	}
}

func errorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		status, code := statusOf(err)
		entry := logger.WithFields(logrus.Fields{
			"action":     "request_error",
			"request_id": requestID(c),
			"path":       c.Path(),
			"status":     status,
		}).WithError(err)
		if status >= fiber.StatusInternalServerError {
			entry.Error("request failed")
		} else {
			entry.Debug("request rejected")
		}

		body := fiber.Map{"error": code}
		if status < fiber.StatusInternalServerError {
			body["message"] = err.Error()
		}
		return c.Status(status).JSON(body)
	}
}
