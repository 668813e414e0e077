package service

import (
	"context"
	"fmt"
	"time"

	"gamelend/internal/cache"
	"gamelend/internal/models"
	"gamelend/internal/observability"
	"gamelend/internal/repository"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// BorrowRequestService validates, stores and resolves borrow requests.
type BorrowRequestService struct {
	db       *gorm.DB
	requests repository.BorrowRequestRepository
	games    repository.GameRepository
	accounts AccountDirectory
	lending  *LendingRecordService
	guard    *Guard
	clock    Clock
	logger   *observability.StructuredLogger
}

// NewBorrowRequestService returns a new BorrowRequestService.
func NewBorrowRequestService(
	db *gorm.DB,
	requests repository.BorrowRequestRepository,
	games repository.GameRepository,
	accounts AccountDirectory,
	lending *LendingRecordService,
	guard *Guard,
	clock Clock,
) *BorrowRequestService {
	if clock == nil {
		clock = SystemClock{}
	}
	return &BorrowRequestService{
		db:       db,
		requests: requests,
		games:    games,
		accounts: accounts,
		lending:  lending,
		guard:    guard,
		clock:    clock,
		logger:   observability.NewStructuredLogger(),
	}
}

// Create stores a PENDING request by caller to borrow a game for [start, end].
func (s *BorrowRequestService) Create(ctx context.Context, caller models.Identity, gameID uint, start, end time.Time) (request *models.BorrowRequest, err error) {
	span, ctx := observability.NewSpan(ctx, "BorrowRequestService.Create")
	span.AddAttributes(attribute.Int("game.id", int(gameID)))
	defer func() { finishSpan(span, "create", err) }()

	s.logger.LogServiceCall(ctx, "BorrowRequestService", "Create", map[string]interface{}{
		"game_id":    gameID,
		"account_id": caller.AccountID,
	})

	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if start.IsZero() || end.IsZero() {
		return nil, models.NewValidationError("start and end dates are required")
	}
	if !start.Before(end) {
		return nil, models.NewValidationError("start date must be before end date")
	}
	start, end = start.UTC(), end.UTC()

	game, err := s.games.FindGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if _, err := s.accounts.GetByID(ctx, caller.AccountID); err != nil {
		return nil, err
	}
	if game.OwnerID == caller.AccountID {
		return nil, models.NewValidationError("owners cannot request their own game")
	}

	request = &models.BorrowRequest{
		RequestedGameID: gameID,
		RequesterID:     caller.AccountID,
		StartDate:       start,
		EndDate:         end,
		RequestDate:     s.clock.Now(),
		Status:          models.BorrowRequestStatusPending,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.games.WithTx(tx).LockForUpdate(ctx, gameID); err != nil {
			return err
		}
		if err := s.ensureAvailable(ctx, tx, gameID, start, end, 0); err != nil {
			return err
		}
		return s.requests.WithTx(tx).Create(ctx, request)
	})
	if err != nil {
		return nil, err
	}

	return s.requests.GetByID(ctx, request.ID)
}

// GetByID returns a request visible to its requester, the game owner or an admin.
func (s *BorrowRequestService) GetByID(ctx context.Context, id uint, caller models.Identity) (request *models.BorrowRequest, err error) {
	span, ctx := observability.NewSpan(ctx, "BorrowRequestService.GetByID")
	defer func() { finishSpan(span, "get", err) }()

	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	request, err = s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.guard.IsOwnerOrRequester(ctx, id, caller) {
		return nil, models.NewForbiddenError("not allowed to view this borrow request")
	}
	return request, nil
}

// ListAll returns every request for admins, otherwise the requests the
// caller made or received.
func (s *BorrowRequestService) ListAll(ctx context.Context, caller models.Identity) (requests []models.BorrowRequest, err error) {
	span, ctx := observability.NewSpan(ctx, "BorrowRequestService.ListAll")
	defer func() { finishSpan(span, "list", err) }()

	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if s.guard.SeesAll(caller) {
		return s.requests.List(ctx)
	}
	return s.requests.ListForAccount(ctx, caller.AccountID)
}

// ListForGame returns the approved periods of a game.
func (s *BorrowRequestService) ListForGame(ctx context.Context, gameID uint, caller models.Identity) (requests []models.BorrowRequest, err error) {
	span, ctx := observability.NewSpan(ctx, "BorrowRequestService.ListForGame")
	span.AddAttributes(attribute.Int("game.id", int(gameID)))
	defer func() { finishSpan(span, "list_for_game", err) }()

	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if _, err := s.games.FindGame(ctx, gameID); err != nil {
		return nil, err
	}
	return s.requests.ListApprovedForGame(ctx, gameID)
}

// UpdateStatus approves or declines a PENDING request. Approval creates the
// lending record in the same transaction as the status change.
func (s *BorrowRequestService) UpdateStatus(ctx context.Context, id uint, status models.BorrowRequestStatus, caller models.Identity) (request *models.BorrowRequest, err error) {
	span, ctx := observability.NewSpan(ctx, "BorrowRequestService.UpdateStatus")
	span.AddAttributes(attribute.Int("request.id", int(id)), attribute.String("request.to", string(status)))
	defer func() { finishSpan(span, "update_status", err) }()

	s.logger.LogServiceCall(ctx, "BorrowRequestService", "UpdateStatus", map[string]interface{}{
		"request_id": id,
		"status":     status,
		"account_id": caller.AccountID,
	})

	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if status != models.BorrowRequestStatusApproved && status != models.BorrowRequestStatusDeclined {
		return nil, models.NewValidationError(fmt.Sprintf("status must be %s or %s", models.BorrowRequestStatusApproved, models.BorrowRequestStatusDeclined))
	}
	current, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.guard.IsGameOwner(ctx, id, caller) {
		return nil, models.NewForbiddenError("only the game owner can respond to this request")
	}
	if current.Status != models.BorrowRequestStatusPending {
		return nil, models.NewStateError("borrow request has already been resolved")
	}

	if status == models.BorrowRequestStatusDeclined {
		resolved, err := s.requests.Resolve(ctx, id, models.BorrowRequestStatusPending, status, caller.AccountID)
		if err != nil {
			return nil, err
		}
		if !resolved {
			return nil, models.NewStateError("borrow request has already been resolved")
		}
		return s.requests.GetByID(ctx, id)
	}

	if err := s.approve(ctx, current, caller); err != nil {
		return nil, err
	}
	cache.InvalidateApprovedPeriods(ctx, current.RequestedGameID)
	return s.requests.GetByID(ctx, id)
}

func (s *BorrowRequestService) approve(ctx context.Context, request *models.BorrowRequest, caller models.Identity) error {
	owner, err := s.accounts.GetByID(ctx, caller.AccountID)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		game, err := s.games.WithTx(tx).LockForUpdate(ctx, request.RequestedGameID)
		if err != nil {
			return err
		}
		request.RequestedGame = *game

		if err := s.ensureAvailable(ctx, tx, game.ID, request.StartDate, request.EndDate, request.ID); err != nil {
			return err
		}
		if _, err := s.lending.create(ctx, tx, request.StartDate, request.EndDate, request, owner); err != nil {
			return err
		}

		resolved, err := s.requests.WithTx(tx).Resolve(ctx, request.ID, models.BorrowRequestStatusPending, models.BorrowRequestStatusApproved, caller.AccountID)
		if err != nil {
			return err
		}
		if !resolved {
			return models.NewStateError("borrow request has already been resolved")
		}
		return nil
	})
}

// Delete removes a request on behalf of its requester or the game owner.
// A lending record that is no longer ACTIVE is removed with it; an ACTIVE
// record blocks.
func (s *BorrowRequestService) Delete(ctx context.Context, id uint, caller models.Identity) (err error) {
	span, ctx := observability.NewSpan(ctx, "BorrowRequestService.Delete")
	defer func() { finishSpan(span, "delete", err) }()

	if err := requireCaller(caller); err != nil {
		return err
	}
	current, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !s.guard.IsRequestParty(ctx, id, caller) {
		return models.NewForbiddenError("only the requester or the game owner can delete this request")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.lending.removeForRequest(ctx, tx, id); err != nil {
			return err
		}
		return s.requests.WithTx(tx).Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	if current.Status == models.BorrowRequestStatusApproved {
		cache.InvalidateApprovedPeriods(ctx, current.RequestedGameID)
	}
	return nil
}

// ensureAvailable fails with CONFLICT when an APPROVED request other than
// excludeID already covers part of [start, end].
func (s *BorrowRequestService) ensureAvailable(ctx context.Context, tx *gorm.DB, gameID uint, start, end time.Time, excludeID uint) error {
	overlapping, err := s.requests.WithTx(tx).FindApprovedOverlapping(ctx, gameID, start, end, excludeID)
	if err != nil {
		return err
	}
	if len(overlapping) > 0 {
		return models.NewConflictError("game unavailable for requested period")
	}
	return nil
}
