package instrument

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// EventHandler exposes the read-only event surface the dashboard
// collaborator polls for state transitions and error rates.
type EventHandler struct {
	querier EventQuerier
}

func NewEventHandler(querier EventQuerier) *EventHandler {
	return &EventHandler{querier: querier}
}

// List handles GET /api/pipeline/events.
func (h *EventHandler) List(c *fiber.Ctx) error {
	f := EventFilter{
		EventType: c.Query("event_type"),
		Source:    c.Query("source"),
		Action:    c.Query("action"),
		Entity:    c.Query("entity"),
		RecordID:  c.Query("record_id"),
		Limit:     100,
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			return c.Status(400).JSON(fiber.Map{"error": fiber.Map{
				"code": "INVALID_PARAM", "message": "limit must be an integer between 1 and 1000",
			}})
		}
		f.Limit = n
	}

	events, err := h.querier.QueryEvents(c.UserContext(), f)
	if err != nil {
		return err
	}
	if events == nil {
		events = []Event{}
	}
	return c.JSON(fiber.Map{"data": events})
}

func RegisterEventRoutes(app *fiber.App, h *EventHandler) {
	app.Get("/api/pipeline/events", h.List)
}
