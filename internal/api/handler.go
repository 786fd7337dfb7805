// Package api is the HTTP boundary of the compliance core: rule set
// ingestion, report runs, compiled-report retrieval for the submission
// gateway, and read-only snapshots for the dashboard collaborator.
// Transport concerns end here; the pipeline packages never see fiber.
package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"compliance-core/internal/archive"
	"compliance-core/internal/compiler"
	"compliance-core/internal/pipeline"
	"compliance-core/internal/ruleset"
	"compliance-core/internal/rulestore"
)

type Handler struct {
	rules      *rulestore.Store
	engine     *pipeline.Engine
	compiler   *compiler.Compiler
	archive    *archive.Store
	maxRecords int
}

func NewHandler(rules *rulestore.Store, engine *pipeline.Engine, comp *compiler.Compiler, arc *archive.Store, maxRecords int) *Handler {
	return &Handler{
		rules:      rules,
		engine:     engine,
		compiler:   comp,
		archive:    arc,
		maxRecords: maxRecords,
	}
}

// PublishRuleSet handles POST /api/rulesets: the rule-ingestion
// collaborator hands over an already-structured rule set.
func (h *Handler) PublishRuleSet(c *fiber.Ctx) error {
	var rs ruleset.RuleSet
	if err := c.BodyParser(&rs); err != nil {
		return pipeline.NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body")
	}

	if err := h.rules.Publish(&rs); err != nil {
		if errors.Is(err, rulestore.ErrOverlappingRuleSet) {
			return pipeline.OverlappingRuleSetError(err.Error())
		}
		return pipeline.NewAppError("VALIDATION_FAILED", 422, err.Error())
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": fiber.Map{
		"id":             rs.ID,
		"regulator":      rs.Regulator,
		"report_type":    rs.ReportType,
		"effective_from": rs.EffectiveFrom,
		"effective_to":   rs.EffectiveTo,
		"rules":          len(rs.Rules),
	}})
}

// GetActiveRuleSet handles GET /api/rulesets/active.
func (h *Handler) GetActiveRuleSet(c *fiber.Ctx) error {
	regulator := c.Query("regulator")
	reportType := c.Query("report_type")
	if regulator == "" || reportType == "" {
		return pipeline.NewAppError("INVALID_PARAM", 400, "regulator and report_type are required")
	}

	asOf := time.Now().UTC()
	if v := c.Query("as_of"); v != "" {
		t, err := time.Parse(pipeline.DateLayout, v)
		if err != nil {
			return pipeline.NewAppError("INVALID_PARAM", 400,
				fmt.Sprintf("as_of must be a %s date", pipeline.DateLayout))
		}
		asOf = t
	}

	rs, err := h.rules.Active(regulator, reportType, asOf)
	if err != nil {
		if errors.Is(err, rulestore.ErrRuleSetNotFound) {
			return pipeline.RuleSetNotFoundError(regulator, reportType)
		}
		return err
	}
	return c.JSON(fiber.Map{"data": rs})
}

type runRequest struct {
	Regulator  string                `json:"regulator"`
	ReportType string                `json:"report_type"`
	Period     string                `json:"period"`   // reporting period date, selects the rule set
	Encoding   string                `json:"encoding"` // target encoding
	ReportID   string                `json:"report_id"`
	Records    []pipeline.DataRecord `json:"records"`
}

func (h *Handler) resolveRun(c *fiber.Ctx) (*runRequest, *ruleset.RuleSet, time.Time, error) {
	var req runRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, nil, time.Time{}, pipeline.NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body")
	}
	if req.Regulator == "" || req.ReportType == "" {
		return nil, nil, time.Time{}, pipeline.NewAppError("INVALID_PARAM", 400, "regulator and report_type are required")
	}
	if len(req.Records) == 0 {
		return nil, nil, time.Time{}, pipeline.NewAppError("INVALID_PARAM", 400, "records must not be empty")
	}
	if h.maxRecords > 0 && len(req.Records) > h.maxRecords {
		return nil, nil, time.Time{}, pipeline.NewAppError("INVALID_PARAM", 413,
			fmt.Sprintf("too many records in one run (max %d)", h.maxRecords))
	}

	period := time.Now().UTC()
	if req.Period != "" {
		t, err := time.Parse(pipeline.DateLayout, req.Period)
		if err != nil {
			return nil, nil, time.Time{}, pipeline.NewAppError("INVALID_PARAM", 400,
				fmt.Sprintf("period must be a %s date", pipeline.DateLayout))
		}
		period = t
	}

	rs, err := h.rules.Active(req.Regulator, req.ReportType, period)
	if err != nil {
		if errors.Is(err, rulestore.ErrRuleSetNotFound) {
			return nil, nil, time.Time{}, pipeline.RuleSetNotFoundError(req.Regulator, req.ReportType)
		}
		return nil, nil, time.Time{}, err
	}
	return &req, rs, period, nil
}

// RunReport handles POST /api/reports/run: the full pipeline pass plus
// compilation and archival. A blocked run returns 422 with the
// complete blocking-failure list.
func (h *Handler) RunReport(c *fiber.Ctx) error {
	req, rs, period, err := h.resolveRun(c)
	if err != nil {
		return err
	}
	if req.Encoding == "" {
		return pipeline.NewAppError("INVALID_PARAM", 400, "encoding is required")
	}

	run, err := h.engine.Execute(c.UserContext(), rs, req.Records)
	if err != nil {
		return err
	}
	run.Period = period

	report, err := h.compiler.Compile(c.UserContext(), run, req.ReportID, req.Encoding)
	if err != nil {
		return err
	}

	if h.archive != nil {
		if err := h.archive.SaveReport(c.UserContext(), report); err != nil {
			return fmt.Errorf("archive report: %w", err)
		}
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": report})
}

// ValidateReport handles POST /api/reports/validate: the pipeline pass
// without compilation. Returns the full validation result either way;
// useful for pre-submission checks and the dashboard.
func (h *Handler) ValidateReport(c *fiber.Ctx) error {
	req, rs, period, err := h.resolveRun(c)
	if err != nil {
		return err
	}

	run, err := h.engine.Execute(c.UserContext(), rs, req.Records)
	if err != nil {
		return err
	}
	run.Period = period

	return c.JSON(fiber.Map{"data": fiber.Map{
		"run_id":     run.ID,
		"state":      run.State(),
		"ruleset_id": rs.ID,
		"validation": run.Result,
		"lineage":    run.Lineage.Entries(),
	}})
}

// GetReport handles GET /api/reports/:id — the submission gateway
// pulls compiled artifacts from here.
func (h *Handler) GetReport(c *fiber.Ctx) error {
	if h.archive == nil {
		return pipeline.NewAppError("NOT_FOUND", 404, "report archive is not configured")
	}
	revision := c.QueryInt("revision", 0)
	report, err := h.archive.GetReport(c.UserContext(), c.Params("id"), revision)
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			return pipeline.NewAppError("NOT_FOUND", 404,
				fmt.Sprintf("report %s not found", c.Params("id")))
		}
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}

// ListRevisions handles GET /api/reports/:id/revisions.
func (h *Handler) ListRevisions(c *fiber.Ctx) error {
	if h.archive == nil {
		return pipeline.NewAppError("NOT_FOUND", 404, "report archive is not configured")
	}
	revisions, err := h.archive.ListRevisions(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if revisions == nil {
		revisions = []archive.ReportMeta{}
	}
	return c.JSON(fiber.Map{"data": revisions})
}
