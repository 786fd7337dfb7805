package api

import "github.com/gofiber/fiber/v2"

func RegisterRoutes(app *fiber.App, h *Handler) {
	rulesets := app.Group("/api/rulesets")
	rulesets.Post("/", h.PublishRuleSet)
	rulesets.Get("/active", h.GetActiveRuleSet)

	reports := app.Group("/api/reports")
	reports.Post("/run", h.RunReport)
	reports.Post("/validate", h.ValidateReport)
	reports.Get("/:id", h.GetReport)
	reports.Get("/:id/revisions", h.ListRevisions)
}
