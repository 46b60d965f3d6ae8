package server

import (
	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/pagecache/internal/logging"
)

type handlers struct {
	opts AppOptions
}

type publishRequest struct {
	Title  string `json:"title"`
	Author string `json:"author"`
}

type voteRequest struct {
	Delta int `json:"delta"`
}

type commentRequest struct {
	Author string `json:"author"`
	Body   string `json:"body"`
}

func (h *handlers) health(c fiber.Ctx) error {
	if h.opts.Health != nil {
		if err := h.opts.Health(c.Context()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable", "error": err.Error()})
		}
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *handlers) listGames(c fiber.Ctx) error {
	order := c.Query("order", h.opts.DefaultOrdering)
	pg, err := h.opts.Listings.GetPage(c.Context(), order, c.Query("token"))
	if err != nil {
		return err
	}
	return c.JSON(pg)
}

func (h *handlers) publishGame(c fiber.Ctx) error {
	var req publishRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	g, err := h.opts.Games.Publish(c.Context(), req.Title, req.Author)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(g)
}

func (h *handlers) voteGame(c fiber.Ctx) error {
	var req voteRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.opts.Games.Vote(c.Context(), c.Params("id"), req.Delta); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *handlers) playGame(c fiber.Ctx) error {
	if err := h.opts.Games.Play(c.Context(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *handlers) thread(c fiber.Ctx) error {
	pg, err := h.opts.Comments.Thread(c.Context(), c.Params("id"), c.Query("token"))
	if err != nil {
		return err
	}
	return c.JSON(pg)
}

func (h *handlers) appendComment(c fiber.Ctx) error {
	var req commentRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	cm, err := h.opts.Comments.Append(c.Context(), c.Params("id"), req.Author, req.Body)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(cm)
}

func (h *handlers) editComment(c fiber.Ctx) error {
	var req commentRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	cm, err := h.opts.Comments.Edit(c.Context(), c.Params("id"), req.Body)
	if err != nil {
		return err
	}
	return c.JSON(cm)
}

func (h *handlers) deleteComment(c fiber.Ctx) error {
	if err := h.opts.Comments.Delete(c.Context(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *handlers) flagComment(c fiber.Ctx) error {
	if err := h.opts.Comments.Flag(c.Context(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func bind(c fiber.Ctx, out any) error {
	if err := c.Bind().JSON(out); err != nil {
		return errors.Mark(errors.Wrap(err, "decode body"), errBadRequest)
	}
	return nil
}

func newRequestID() string { return uuid.NewString() }

func requestFields(c fiber.Ctx, reqID string) logrus.Fields {
	return logging.RequestFields(reqID, c.Method(), c.Path(), c.Response().StatusCode(), c.Query("token"))
}
