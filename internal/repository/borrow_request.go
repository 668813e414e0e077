package repository

import (
	"context"
	"time"

	"gamelend/internal/cache"
	"gamelend/internal/database"
	"gamelend/internal/models"
	"gamelend/internal/observability"

	"gorm.io/gorm"
)

// BorrowRequestRepository defines the interface for borrow request data operations
type BorrowRequestRepository interface {
	Create(ctx context.Context, request *models.BorrowRequest) error
	GetByID(ctx context.Context, id uint) (*models.BorrowRequest, error)
	List(ctx context.Context) ([]models.BorrowRequest, error)
	// ListForAccount returns requests the account made or received as game owner.
	ListForAccount(ctx context.Context, accountID uint) ([]models.BorrowRequest, error)
	ListApprovedForGame(ctx context.Context, gameID uint) ([]models.BorrowRequest, error)
	// FindApprovedOverlapping returns APPROVED requests for the game whose
	// period intersects [start, end], ignoring excludeID when non-zero.
	FindApprovedOverlapping(ctx context.Context, gameID uint, start, end time.Time, excludeID uint) ([]models.BorrowRequest, error)
	// Resolve moves a request from one status to another and records the
	// responder. It reports false when the request was not in status from.
	Resolve(ctx context.Context, id uint, from, to models.BorrowRequestStatus, responderID uint) (bool, error)
	Delete(ctx context.Context, id uint) error
	WithTx(tx *gorm.DB) BorrowRequestRepository
}

type borrowRequestRepository struct {
	db     *gorm.DB
	logger *observability.RepoLogger
}

// NewBorrowRequestRepository creates a new borrow request repository
func NewBorrowRequestRepository(db *gorm.DB) BorrowRequestRepository {
	return &borrowRequestRepository{db: db, logger: observability.NewRepoLogger("borrow_requests")}
}

func (r *borrowRequestRepository) WithTx(tx *gorm.DB) BorrowRequestRepository {
	return &borrowRequestRepository{db: tx, logger: r.logger}
}

func (r *borrowRequestRepository) withRelations(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("RequestedGame").
		Preload("Requester").
		Preload("Responder")
}

func (r *borrowRequestRepository) Create(ctx context.Context, request *models.BorrowRequest) error {
	defer observability.TrackQuery("insert", "borrow_requests")()

	if err := r.db.WithContext(ctx).Omit("RequestedGame", "Requester", "Responder").Create(request).Error; err != nil {
		r.logger.LogError(ctx, err, "create")
		return database.MapError(err, "Borrow request")
	}
	r.logger.LogCreate(ctx, map[string]interface{}{
		"request_id":   request.ID,
		"game_id":      request.RequestedGameID,
		"requester_id": request.RequesterID,
	})
	return nil
}

func (r *borrowRequestRepository) GetByID(ctx context.Context, id uint) (*models.BorrowRequest, error) {
	defer observability.TrackQuery("select", "borrow_requests")()

	var request models.BorrowRequest
	if err := r.withRelations(ctx).First(&request, id).Error; err != nil {
		return nil, notFoundOr(err, "Borrow request", id)
	}
	return &request, nil
}

func (r *borrowRequestRepository) List(ctx context.Context) ([]models.BorrowRequest, error) {
	var requests []models.BorrowRequest
	if err := r.withRelations(ctx).Order("start_date ASC, id ASC").Find(&requests).Error; err != nil {
		return nil, database.MapError(err, "Borrow request")
	}
	return requests, nil
}

func (r *borrowRequestRepository) ListForAccount(ctx context.Context, accountID uint) ([]models.BorrowRequest, error) {
	ownedGames := r.db.WithContext(ctx).Model(&models.Game{}).Select("id").Where("owner_id = ?", accountID)

	var requests []models.BorrowRequest
	if err := r.withRelations(ctx).
		Where("requester_id = ? OR requested_game_id IN (?)", accountID, ownedGames).
		Order("start_date ASC, id ASC").
		Find(&requests).Error; err != nil {
		return nil, database.MapError(err, "Borrow request")
	}
	return requests, nil
}

func (r *borrowRequestRepository) ListApprovedForGame(ctx context.Context, gameID uint) ([]models.BorrowRequest, error) {
	var requests []models.BorrowRequest
	err := cache.Aside(ctx, cache.ApprovedPeriodsKey(gameID), &requests, cache.ApprovedPeriodsTTL, func() error {
		if err := r.db.WithContext(ctx).
			Where("requested_game_id = ? AND status = ?", gameID, models.BorrowRequestStatusApproved).
			Order("start_date ASC").
			Find(&requests).Error; err != nil {
			return database.MapError(err, "Borrow request")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *borrowRequestRepository) FindApprovedOverlapping(ctx context.Context, gameID uint, start, end time.Time, excludeID uint) ([]models.BorrowRequest, error) {
	defer observability.TrackQuery("overlap", "borrow_requests")()

	query := r.db.WithContext(ctx).
		Where("requested_game_id = ? AND status = ?", gameID, models.BorrowRequestStatusApproved).
		Where("start_date <= ? AND end_date >= ?", end, start)
	if excludeID != 0 {
		query = query.Where("id <> ?", excludeID)
	}

	var requests []models.BorrowRequest
	if err := query.Find(&requests).Error; err != nil {
		return nil, database.MapError(err, "Borrow request")
	}
	return requests, nil
}

func (r *borrowRequestRepository) Resolve(ctx context.Context, id uint, from, to models.BorrowRequestStatus, responderID uint) (bool, error) {
	defer observability.TrackQuery("update", "borrow_requests")()

	result := r.db.WithContext(ctx).
		Model(&models.BorrowRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":       to,
			"responder_id": responderID,
		})
	if result.Error != nil {
		r.logger.LogError(ctx, result.Error, "update")
		return false, database.MapError(result.Error, "Borrow request")
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	r.logger.LogUpdate(ctx, map[string]interface{}{
		"request_id":   id,
		"from":         from,
		"to":           to,
		"responder_id": responderID,
	})
	return true, nil
}

func (r *borrowRequestRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.BorrowRequest{}, id)
	if result.Error != nil {
		r.logger.LogError(ctx, result.Error, "delete")
		return database.MapError(result.Error, "Borrow request")
	}
	if result.RowsAffected == 0 {
		return models.NewNotFoundError("Borrow request", id)
	}
	r.logger.LogDelete(ctx, map[string]interface{}{"request_id": id})
	return nil
}
