package server

import (
	"strings"
	"time"

	"gamelend/internal/models"

	"github.com/gofiber/fiber/v2"
)

// CreateBorrowRequestInput is the body of POST /api/borrow-requests.
type CreateBorrowRequestInput struct {
	GameID    uint      `json:"game_id"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// UpdateBorrowRequestStatusInput is the body of PATCH /api/borrow-requests/:id/status.
type UpdateBorrowRequestStatusInput struct {
	Status string `json:"status"`
}

// CreateBorrowRequest handles POST /api/borrow-requests
func (s *Server) CreateBorrowRequest(c *fiber.Ctx) error {
	var input CreateBorrowRequestInput
	if err := parseBody(c, &input, false); err != nil {
		return nil
	}
	if input.GameID == 0 {
		return models.RespondWithAppError(c, models.NewValidationError("game_id is required"))
	}

	ctx, cancel, caller := requestContext(c)
	defer cancel()

	request, err := s.requests.Create(ctx, caller, input.GameID, input.StartDate, input.EndDate)
	return respond(c, fiber.StatusCreated, request, err)
}

// ListBorrowRequests handles GET /api/borrow-requests
func (s *Server) ListBorrowRequests(c *fiber.Ctx) error {
	ctx, cancel, caller := requestContext(c)
	defer cancel()

	requests, err := s.requests.ListAll(ctx, caller)
	if requests == nil {
		requests = []models.BorrowRequest{}
	}
	return respond(c, fiber.StatusOK, requests, err)
}

// GetBorrowRequest handles GET /api/borrow-requests/:id
func (s *Server) GetBorrowRequest(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	ctx, cancel, caller := requestContext(c)
	defer cancel()

	request, err := s.requests.GetByID(ctx, id, caller)
	return respond(c, fiber.StatusOK, request, err)
}

// UpdateBorrowRequestStatus handles PATCH /api/borrow-requests/:id/status
func (s *Server) UpdateBorrowRequestStatus(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var input UpdateBorrowRequestStatusInput
	if err := parseBody(c, &input, false); err != nil {
		return nil
	}
	status, ok := models.ParseBorrowRequestStatus(strings.ToUpper(strings.TrimSpace(input.Status)))
	if !ok {
		return models.RespondWithAppError(c, models.NewValidationError("Invalid status"))
	}

	ctx, cancel, caller := requestContext(c)
	defer cancel()

	request, err := s.requests.UpdateStatus(ctx, id, status, caller)
	return respond(c, fiber.StatusOK, request, err)
}

// DeleteBorrowRequest handles DELETE /api/borrow-requests/:id
func (s *Server) DeleteBorrowRequest(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	ctx, cancel, caller := requestContext(c)
	defer cancel()

	return respond(c, fiber.StatusNoContent, nil, s.requests.Delete(ctx, id, caller))
}

// GetApprovedPeriods handles GET /api/games/:id/approved-periods
func (s *Server) GetApprovedPeriods(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	ctx, cancel, caller := requestContext(c)
	defer cancel()

	requests, err := s.requests.ListForGame(ctx, id, caller)
	if err != nil {
		return respond(c, 0, nil, err)
	}

	periods := make([]fiber.Map, 0, len(requests))
	for _, r := range requests {
		periods = append(periods, fiber.Map{
			"request_id": r.ID,
			"start_date": r.StartDate,
			"end_date":   r.EndDate,
		})
	}
	return c.JSON(fiber.Map{"game_id": id, "periods": periods})
}
