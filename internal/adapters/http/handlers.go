package http

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/aitzolm/basomap/internal/core/domain"
	"github.com/aitzolm/basomap/internal/core/ports"
	"github.com/aitzolm/basomap/internal/core/usecases"
)

// parseViewport reads the viewport bounds from query parameters. All
// four edges are required; an inverted box is rejected rather than
// silently normalized.
func parseViewport(c *fiber.Ctx) (domain.Bounds, error) {
	for _, p := range []string{"min_lat", "min_lon", "max_lat", "max_lon"} {
		if c.Query(p) == "" {
			return domain.Bounds{}, fiber.NewError(400, p+" is required")
		}
	}

	b := domain.Bounds{
		MinLat: c.QueryFloat("min_lat", 0),
		MinLon: c.QueryFloat("min_lon", 0),
		MaxLat: c.QueryFloat("max_lat", 0),
		MaxLon: c.QueryFloat("max_lon", 0),
	}
	if b.MinLat > b.MaxLat || b.MinLon > b.MaxLon {
		return domain.Bounds{}, fiber.NewError(400, "viewport min edges must not exceed max edges")
	}
	return b, nil
}

// parseFilter reads the optional attribute filter from query
// parameters. species is comma-separated; absent bounds stay nil so
// the filter treats them as inactive.
func parseFilter(c *fiber.Ctx) domain.AttributeFilter {
	var f domain.AttributeFilter

	if raw := c.Query("species"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				f.Species = append(f.Species, trimmed)
			}
		}
	}

	readBound := func(param string) *float64 {
		if c.Query(param) == "" {
			return nil
		}
		v := c.QueryFloat(param, 0)
		return &v
	}

	f.MinHeightM = readBound("min_height_m")
	f.MaxHeightM = readBound("max_height_m")
	f.MinDiameterCm = readBound("min_diameter_cm")
	f.MaxDiameterCm = readBound("max_diameter_cm")
	return f
}

// InventoryHandler returns the rendered record set for a viewport and
// filter. When the backing store is unreachable but a stale working
// set exists, the stale set is served with a notice instead of an
// error.
func InventoryHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		viewport, err := parseViewport(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		filter := parseFilter(c)

		vs, loadErr := deps.Dataset.RecomputeVisibleSet(c.Context(), viewport, filter)
		if loadErr != nil && len(vs.Rendered) == 0 && vs.VisibleCount == 0 && deps.Dataset.RecordCount() == 0 {
			return errInternal(c, loadErr.Error())
		}

		resp := fiber.Map{
			"records":        vs.Rendered,
			"rendered_count": len(vs.Rendered),
			"visible_count":  vs.VisibleCount,
		}
		if loadErr != nil {
			resp["notice"] = "inventory refresh failed, showing last known data"
		}
		return c.JSON(resp)
	}
}

// areaStatsRequest is the body for draw-aggregation: the viewport and
// filter that produced the rendered set, plus the drawn shape.
type areaStatsRequest struct {
	Viewport domain.Bounds          `json:"viewport"`
	Filter   domain.AttributeFilter `json:"filter"`
	Shape    domain.DrawnShape      `json:"shape"`
}

// AreaStatsHandler aggregates the rendered subset contained in a drawn
// rectangle or polygon.
func AreaStatsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req areaStatsRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.Viewport.MinLat > req.Viewport.MaxLat || req.Viewport.MinLon > req.Viewport.MaxLon {
			return errBadRequest(c, "viewport min edges must not exceed max edges")
		}

		vs, loadErr := deps.Dataset.RecomputeVisibleSet(c.Context(), req.Viewport, req.Filter)
		if loadErr != nil && deps.Dataset.RecordCount() == 0 {
			return errInternal(c, loadErr.Error())
		}

		stats := domain.ComputeAreaStats(req.Shape, vs.Rendered)
		return c.JSON(stats.Rounded())
	}
}

// ExportCSVHandler streams the rendered set as a spreadsheet-friendly
// CSV download.
func ExportCSVHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		viewport, err := parseViewport(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		filter := parseFilter(c)

		vs, loadErr := deps.Dataset.RecomputeVisibleSet(c.Context(), viewport, filter)
		if loadErr != nil && deps.Dataset.RecordCount() == 0 {
			return errInternal(c, loadErr.Error())
		}

		csv := usecases.ExportCSV(vs.Rendered, usecases.ExportColumns)
		c.Set("Content-Type", "text/csv; charset=utf-8")
		c.Set("Content-Disposition", `attachment; filename="inventory.csv"`)
		return c.SendString(csv)
	}
}

// NearbyHandler returns records within a radius of a point, nearest
// first.
func NearbyHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Query("lat") == "" || c.Query("lon") == "" {
			return errBadRequest(c, "lat and lon are required")
		}
		center := domain.GeoPoint{
			Lat: c.QueryFloat("lat", 0),
			Lon: c.QueryFloat("lon", 0),
		}
		if !center.Valid() {
			return errBadRequest(c, "lat and lon out of range")
		}

		radius := c.QueryFloat("radius_m", 500)
		if radius <= 0 {
			return errBadRequest(c, "radius_m must be a positive number")
		}
		limit := c.QueryInt("limit", 0)

		nearby, loadErr := deps.Dataset.NearbyRecords(c.Context(), center, radius, limit)
		if loadErr != nil && deps.Dataset.RecordCount() == 0 {
			return errInternal(c, loadErr.Error())
		}

		return c.JSON(fiber.Map{
			"records": nearby,
			"count":   len(nearby),
		})
	}
}

// RefreshInventoryHandler invalidates the working set and refetches it.
func RefreshInventoryHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		deps.Dataset.Invalidate()
		if err := deps.Dataset.Load(c.Context()); err != nil {
			return errInternal(c, err.Error())
		}
		return c.JSON(fiber.Map{
			"status":       "refreshed",
			"record_count": deps.Dataset.RecordCount(),
		})
	}
}

// InventoryStatusHandler reports working-set and store sizes.
func InventoryStatusHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Inventory == nil {
			return errInternal(c, "inventory store not available")
		}
		stored, err := deps.Inventory.Count(c.Context())
		if err != nil {
			return errInternal(c, err.Error())
		}
		c.Set("Cache-Control", "public, max-age=60")
		return c.JSON(fiber.Map{
			"loaded_records": deps.Dataset.RecordCount(),
			"stored_records": stored,
		})
	}
}

// ListPlansHandler returns work plans with offset/limit pagination.
func ListPlansHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		plans, err := deps.Plans.List(c.Context())
		if err != nil {
			return errInternal(c, err.Error())
		}

		offset := c.QueryInt("offset", 0)
		limit := c.QueryInt("limit", 100)
		if offset < 0 {
			offset = 0
		}
		if limit <= 0 || limit > 200 {
			limit = 100
		}

		total := len(plans)
		if offset >= total {
			plans = nil
		} else {
			end := offset + limit
			if end > total {
				end = total
			}
			plans = plans[offset:end]
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: plans, Pagination: pg})
	}
}

// CreatePlanHandler creates a work plan.
func CreatePlanHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var plan domain.WorkPlan
		if err := c.BodyParser(&plan); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if err := deps.Plans.Create(c.Context(), &plan); err != nil {
			return errBadRequest(c, err.Error())
		}
		return c.Status(201).JSON(plan)
	}
}

// GetPlanHandler returns a single work plan by ID.
func GetPlanHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "plan id is required")
		}
		plan, err := deps.Plans.GetByID(c.Context(), id)
		if err != nil {
			return errNotFound(c, "plan not found")
		}
		return c.JSON(plan)
	}
}

// UpdatePlanHandler updates an existing work plan.
func UpdatePlanHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "plan id is required")
		}
		var plan domain.WorkPlan
		if err := c.BodyParser(&plan); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		plan.ID = id
		if err := deps.Plans.Update(c.Context(), &plan); err != nil {
			return errBadRequest(c, err.Error())
		}
		return c.JSON(plan)
	}
}

// DeletePlanHandler removes a work plan.
func DeletePlanHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "plan id is required")
		}
		if err := deps.Plans.Delete(c.Context(), id); err != nil {
			return errNotFound(c, "plan not found")
		}
		return c.SendStatus(204)
	}
}

// PlanReportsHandler lists the reports filed against a plan.
func PlanReportsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "plan id is required")
		}
		reports, err := deps.Reports.ListByPlan(c.Context(), id)
		if err != nil {
			return errInternal(c, err.Error())
		}
		return c.JSON(reports)
	}
}

// CreateReportHandler stores a work report without submitting it.
func CreateReportHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var report domain.WorkReport
		if err := c.BodyParser(&report); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if err := deps.Reports.Create(c.Context(), &report); err != nil {
			return errBadRequest(c, err.Error())
		}
		return c.Status(201).JSON(report)
	}
}

// GetReportHandler returns a single work report by ID.
func GetReportHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "report id is required")
		}
		report, err := deps.Reports.GetByID(c.Context(), id)
		if err != nil {
			return errNotFound(c, "report not found")
		}
		return c.JSON(report)
	}
}

// DeleteReportHandler removes a work report.
func DeleteReportHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "report id is required")
		}
		if err := deps.Reports.DeleteReport(c.Context(), id); err != nil {
			return errNotFound(c, "report not found")
		}
		return c.SendStatus(204)
	}
}

// SubmitReportHandler submits a report to the external endpoint,
// falling back to the durable outbox when it cannot be delivered.
func SubmitReportHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		body := c.Body()
		if len(body) == 0 {
			return errBadRequest(c, "request body is required")
		}

		payload := make([]byte, len(body))
		copy(payload, body)

		status, err := deps.Reports.SubmitReport(c.Context(), payload)
		if err != nil {
			if errors.Is(err, ports.ErrUnauthenticated) {
				return errUnauthorized(c, "submission requires a signed-in user")
			}
			return errInternal(c, err.Error())
		}

		code := 200
		if status == usecases.StatusQueued {
			code = 202
		}
		return c.Status(code).JSON(fiber.Map{"status": string(status)})
	}
}

// FlushOutboxHandler retries every queued submission now.
func FlushOutboxHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sent, err := deps.Reports.FlushOutbox(c.Context())
		if err != nil {
			return c.Status(207).JSON(fiber.Map{
				"sent":  sent,
				"error": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"sent": sent})
	}
}

// ListOutboxHandler returns queued submissions, oldest first.
func ListOutboxHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		entries, err := deps.Reports.PendingEntries(c.Context())
		if err != nil {
			return errInternal(c, err.Error())
		}
		return c.JSON(fiber.Map{
			"entries": entries,
			"count":   len(entries),
		})
	}
}
