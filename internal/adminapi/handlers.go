package adminapi

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/m3rciful/cargobot/core/logger"
	"github.com/m3rciful/cargobot/internal/service"
	"github.com/m3rciful/cargobot/internal/shipment"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Message   string `json:"message"`
	Code      string `json:"code"`
	RequestID string `json:"request_id"`
}

type handler struct {
	svc *service.Service
}

type statusRequest struct {
	Status string `json:"status"`
}

type commentRequest struct {
	Comment string `json:"comment"`
}

func (h *handler) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *handler) listShipments(c *fiber.Ctx) error {
	q := service.SearchQuery{
		Search: strings.TrimSpace(c.Query("search")),
		Page:   c.QueryInt("page", 1),
	}
	if raw := c.Query("status"); raw != "" {
		st, err := shipment.ParseStatus(raw)
		if err != nil {
			return h.fail(c, err)
		}
		q.Status = st
	}
	if raw := c.Query("type"); raw != "" {
		ot, err := shipment.ParseOperationType(raw)
		if err != nil {
			return h.fail(c, err)
		}
		q.Type = ot
	}
	page, err := h.svc.Search(c.UserContext(), q)
	if err != nil {
		return h.fail(c, err)
	}
	if page.Items == nil {
		page.Items = []shipment.Shipment{}
	}
	return c.JSON(fiber.Map{
		"items":     page.Items,
		"page":      page.Page,
		"page_size": page.PageSize,
		"pages":     page.Pages(),
		"total":     page.Total,
	})
}

func (h *handler) getShipment(c *fiber.Ctx) error {
	sh, err := h.svc.Shipment(c.UserContext(), shipment.SystemActor, c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(sh)
}

func (h *handler) history(c *fiber.Ctx) error {
	entries, err := h.svc.History(c.UserContext(), shipment.SystemActor, c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"items": entries})
}

func (h *handler) setStatus(c *fiber.Ctx) error {
	var req statusRequest
	if err := c.BodyParser(&req); err != nil {
		return h.fail(c, shipment.Invalid("body", "malformed JSON"))
	}
	to, err := shipment.ParseStatus(req.Status)
	if err != nil {
		return h.fail(c, err)
	}
	sh, err := h.svc.UpdateStatus(c.UserContext(), c.Params("id"), to, shipment.SystemActor)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(sh)
}

func (h *handler) setComment(c *fiber.Ctx) error {
	var req commentRequest
	if err := c.BodyParser(&req); err != nil {
		return h.fail(c, shipment.Invalid("body", "malformed JSON"))
	}
	sh, err := h.svc.SetComment(c.UserContext(), shipment.SystemActor, c.Params("id"), req.Comment)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(sh)
}

func (h *handler) stats(c *fiber.Ctx) error {
	st, err := h.svc.Stats(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(st)
}

func (h *handler) export(c *fiber.Ctx) error {
	var buf bytes.Buffer
	if err := h.svc.ExportCSV(c.UserContext(), &buf); err != nil {
		return h.fail(c, err)
	}
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="shipments.csv"`)
	return c.Send(buf.Bytes())
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, shipment.ErrInvalidTransition):
		return fiber.StatusConflict
	case errors.Is(err, shipment.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, shipment.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, shipment.ErrPermission):
		return fiber.StatusForbidden
	}
	return fiber.StatusInternalServerError
}

func (h *handler) fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		logger.HTTP.LogAttrs(c.UserContext(), slog.LevelError, "request failed",
			slog.String("event", "http.error"),
			slog.String("path", c.Path()),
			slog.String("request_id", requestID(c)),
			slog.String("err", err.Error()),
		)
		msg = "Internal Server Error"
	}
	return c.Status(status).JSON(ErrorResponse{
		Message:   msg,
		Code:      shipment.Code(err),
		RequestID: requestID(c),
	})
}
