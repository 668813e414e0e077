package server

import (
	"strings"
	"time"

	"gamelend/internal/models"

	"github.com/gofiber/fiber/v2"
)

// UpdateLendingStatusInput is the body of PATCH /api/lending-records/:id/status.
type UpdateLendingStatusInput struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// ReturnInput is the optional body of POST /api/lending-records/:id/return.
type ReturnInput struct {
	Reason string `json:"reason"`
}

// CloseInput is the body of POST /api/lending-records/:id/close.
type CloseInput struct {
	IsDamaged      bool   `json:"is_damaged"`
	DamageNotes    string `json:"damage_notes"`
	DamageSeverity *int   `json:"damage_severity"`
	Reason         string `json:"reason"`
}

// UpdateEndDateInput is the body of PATCH /api/lending-records/:id/end-date.
type UpdateEndDateInput struct {
	EndDate time.Time `json:"end_date"`
}

// ListLendingRecords handles GET /api/lending-records
func (s *Server) ListLendingRecords(c *fiber.Ctx) error {
	ctx, cancel, caller := requestContext(c)
	defer cancel()

	records, err := s.records.ListAll(ctx, caller)
	if records == nil {
		records = []models.LendingRecord{}
	}
	return respond(c, fiber.StatusOK, records, err)
}

// ListOverdueLendingRecords handles GET /api/lending-records/overdue
func (s *Server) ListOverdueLendingRecords(c *fiber.Ctx) error {
	ctx, cancel, caller := requestContext(c)
	defer cancel()

	records, err := s.records.ListOverdue(ctx, caller)
	if records == nil {
		records = []models.LendingRecord{}
	}
	return respond(c, fiber.StatusOK, records, err)
}

// GetLendingRecord handles GET /api/lending-records/:id
func (s *Server) GetLendingRecord(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	ctx, cancel, caller := requestContext(c)
	defer cancel()

	record, err := s.records.GetByID(ctx, id, caller)
	return respond(c, fiber.StatusOK, record, err)
}

// GetLendingRecordHistory handles GET /api/lending-records/:id/history
func (s *Server) GetLendingRecordHistory(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	ctx, cancel, caller := requestContext(c)
	defer cancel()

	history, err := s.records.History(ctx, id, caller)
	if history == nil {
		history = []models.LendingStatusChange{}
	}
	return respond(c, fiber.StatusOK, history, err)
}

// UpdateLendingRecordStatus handles PATCH /api/lending-records/:id/status
func (s *Server) UpdateLendingRecordStatus(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var input UpdateLendingStatusInput
	if err := parseBody(c, &input, false); err != nil {
		return nil
	}
	status := models.LendingStatus(strings.ToUpper(strings.TrimSpace(input.Status)))

	ctx, cancel, caller := requestContext(c)
	defer cancel()

	record, err := s.records.UpdateStatus(ctx, id, status, caller, input.Reason)
	return respond(c, fiber.StatusOK, record, err)
}

// MarkLendingRecordReturned handles POST /api/lending-records/:id/return
func (s *Server) MarkLendingRecordReturned(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var input ReturnInput
	if err := parseBody(c, &input, true); err != nil {
		return nil
	}

	ctx, cancel, caller := requestContext(c)
	defer cancel()

	record, err := s.records.MarkReturned(ctx, id, caller, input.Reason)
	return respond(c, fiber.StatusOK, record, err)
}

// CloseLendingRecord handles POST /api/lending-records/:id/close
func (s *Server) CloseLendingRecord(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var input CloseInput
	if err := parseBody(c, &input, true); err != nil {
		return nil
	}

	ctx, cancel, caller := requestContext(c)
	defer cancel()

	damage := models.DamageAssessment{
		IsDamaged: input.IsDamaged,
		Notes:     input.DamageNotes,
		Severity:  input.DamageSeverity,
	}
	record, err := s.records.CloseWithDamageAssessment(ctx, id, damage, caller, input.Reason)
	return respond(c, fiber.StatusOK, record, err)
}

// UpdateLendingRecordEndDate handles PATCH /api/lending-records/:id/end-date
func (s *Server) UpdateLendingRecordEndDate(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var input UpdateEndDateInput
	if err := parseBody(c, &input, false); err != nil {
		return nil
	}
	if input.EndDate.IsZero() {
		return models.RespondWithAppError(c, models.NewValidationError("end_date is required"))
	}

	ctx, cancel, caller := requestContext(c)
	defer cancel()

	record, err := s.records.UpdateEndDate(ctx, id, input.EndDate.UTC(), caller)
	return respond(c, fiber.StatusOK, record, err)
}

// DeleteLendingRecord handles DELETE /api/lending-records/:id
func (s *Server) DeleteLendingRecord(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	ctx, cancel, caller := requestContext(c)
	defer cancel()

	return respond(c, fiber.StatusNoContent, nil, s.records.Delete(ctx, id, caller))
}
