// Package server exposes the listings and comment threads over HTTP.
//
// Every list endpoint speaks the same token protocol: the client passes
// the next_token of the previous response back as ?token= and stops when a
// response carries no next_token.
package server

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/pagecache"
	"github.com/unkn0wn-root/pagecache/internal/comments"
	"github.com/unkn0wn-root/pagecache/internal/games"
)

type Games interface {
	Publish(ctx context.Context, title, author string) (games.Game, error)
	Vote(ctx context.Context, id string, delta int) error
	Play(ctx context.Context, id string) error
}

type Listings interface {
	GetPage(ctx context.Context, ordering, token string) (pagecache.Page[games.Game], error)
}

type Comments interface {
	Thread(ctx context.Context, gameID, token string) (pagecache.Page[comments.Comment], error)
	Append(ctx context.Context, gameID, author, body string) (comments.Comment, error)
	Edit(ctx context.Context, commentID, body string) (comments.Comment, error)
	Delete(ctx context.Context, commentID string) error
	Flag(ctx context.Context, commentID string) error
}

type AppOptions struct {
	Logger   *logrus.Logger
	Games    Games
	Listings Listings
	Comments Comments
	// DefaultOrdering is used when GET /games has no ?order=.
	DefaultOrdering string
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// Health is probed by /healthz; nil always reports ok.
	Health func(ctx context.Context) error
}

const contextKeyRequestID = "_pagecache_request_id"

func NewApp(opts AppOptions) (*fiber.App, error) {
	switch {
	case opts.Logger == nil:
		return nil, errors.New("logger is required")
	case opts.Games == nil || opts.Listings == nil || opts.Comments == nil:
		return nil, errors.New("games, listings and comments are required")
	}
	if opts.DefaultOrdering == "" {
		opts.DefaultOrdering = games.OrderRecent
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		ErrorHandler:  errorHandler(opts.Logger),
	})
	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts.Logger))

	h := &handlers{opts: opts}
	app.Get("/healthz", h.health)
	if opts.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(opts.Metrics))
	}

	app.Get("/games", h.listGames)
	app.Post("/games", h.publishGame)
	app.Post("/games/:id/votes", h.voteGame)
	app.Post("/games/:id/plays", h.playGame)
	app.Get("/games/:id/comments", h.thread)
	app.Post("/games/:id/comments", h.appendComment)

	app.Patch("/comments/:id", h.editComment)
	app.Delete("/comments/:id", h.deleteComment)
	app.Post("/comments/:id/flag", h.flagComment)

	return app, nil
}

// requestContextMiddleware tags the request with an id and logs it once
// the handler chain is done.
func requestContextMiddleware(logger *logrus.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := c.Get("X-Request-ID")
		if reqID == "" {
			reqID = newRequestID()
		}
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		err := c.Next()
		if err != nil {
			// run the error handler now so the logged status is the final one
			if herr := c.App().Config().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		logger.WithFields(requestFields(c, reqID)).Debug("request served")
		return nil
	}
}

func requestID(c fiber.Ctx) string {
	if v, ok := c.Locals(contextKeyRequestID).(string); ok {
		return v
	}
	return ""
}
