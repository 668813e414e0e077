package repository

import (
	"context"
	"errors"
	"time"

	"gamelend/internal/database"
	"gamelend/internal/models"
	"gamelend/internal/observability"

	"gorm.io/gorm"
)

// StatusUpdate carries the columns written together with a status change.
type StatusUpdate struct {
	ActorID  uint
	Reason   string
	ClosedAt *time.Time
	Damage   *models.DamageAssessment
}

// LendingRecordRepository defines the interface for lending record data operations
type LendingRecordRepository interface {
	Create(ctx context.Context, record *models.LendingRecord) error
	GetByID(ctx context.Context, id uint) (*models.LendingRecord, error)
	// GetByRequestID returns nil without error when the request has no record.
	GetByRequestID(ctx context.Context, requestID uint) (*models.LendingRecord, error)
	List(ctx context.Context) ([]models.LendingRecord, error)
	ListForAccount(ctx context.Context, accountID uint) ([]models.LendingRecord, error)
	FindOverdue(ctx context.Context, now time.Time) ([]models.LendingRecord, error)
	// TransitionStatus writes to only if the record is still in status from.
	TransitionStatus(ctx context.Context, id uint, from, to models.LendingStatus, update StatusUpdate) (bool, error)
	// UpdateEndDate changes the end date of a record that is not CLOSED.
	UpdateEndDate(ctx context.Context, id uint, end time.Time, actorID uint) (bool, error)
	// Delete removes a record that is not ACTIVE together with its history.
	Delete(ctx context.Context, id uint) (bool, error)
	AddStatusChange(ctx context.Context, change *models.LendingStatusChange) error
	History(ctx context.Context, recordID uint) ([]models.LendingStatusChange, error)
	WithTx(tx *gorm.DB) LendingRecordRepository
}

type lendingRecordRepository struct {
	db     *gorm.DB
	logger *observability.RepoLogger
}

// NewLendingRecordRepository creates a new lending record repository
func NewLendingRecordRepository(db *gorm.DB) LendingRecordRepository {
	return &lendingRecordRepository{db: db, logger: observability.NewRepoLogger("lending_records")}
}

func (r *lendingRecordRepository) WithTx(tx *gorm.DB) LendingRecordRepository {
	return &lendingRecordRepository{db: tx, logger: r.logger}
}

func (r *lendingRecordRepository) withRelations(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Request").
		Preload("Request.RequestedGame").
		Preload("RecordOwner")
}

func (r *lendingRecordRepository) Create(ctx context.Context, record *models.LendingRecord) error {
	defer observability.TrackQuery("insert", "lending_records")()

	if err := r.db.WithContext(ctx).Omit("Request", "RecordOwner").Create(record).Error; err != nil {
		r.logger.LogError(ctx, err, "create")
		return database.MapError(err, "Lending record")
	}
	r.logger.LogCreate(ctx, map[string]interface{}{
		"record_id":  record.ID,
		"reference":  record.Reference,
		"request_id": record.RequestID,
	})
	return nil
}

func (r *lendingRecordRepository) GetByID(ctx context.Context, id uint) (*models.LendingRecord, error) {
	defer observability.TrackQuery("select", "lending_records")()

	var record models.LendingRecord
	if err := r.withRelations(ctx).First(&record, id).Error; err != nil {
		return nil, notFoundOr(err, "Lending record", id)
	}
	return &record, nil
}

func (r *lendingRecordRepository) GetByRequestID(ctx context.Context, requestID uint) (*models.LendingRecord, error) {
	var record models.LendingRecord
	if err := r.db.WithContext(ctx).Where("request_id = ?", requestID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, database.MapError(err, "Lending record")
	}
	return &record, nil
}

func (r *lendingRecordRepository) List(ctx context.Context) ([]models.LendingRecord, error) {
	var records []models.LendingRecord
	if err := r.withRelations(ctx).Order("end_date ASC, id ASC").Find(&records).Error; err != nil {
		return nil, database.MapError(err, "Lending record")
	}
	return records, nil
}

func (r *lendingRecordRepository) ListForAccount(ctx context.Context, accountID uint) ([]models.LendingRecord, error) {
	var records []models.LendingRecord
	if err := r.withRelations(ctx).
		Where("record_owner_id = ? OR borrower_id = ?", accountID, accountID).
		Order("end_date ASC, id ASC").
		Find(&records).Error; err != nil {
		return nil, database.MapError(err, "Lending record")
	}
	return records, nil
}

func (r *lendingRecordRepository) FindOverdue(ctx context.Context, now time.Time) ([]models.LendingRecord, error) {
	defer observability.TrackQuery("overdue", "lending_records")()

	var records []models.LendingRecord
	if err := r.db.WithContext(ctx).
		Where("status = ? AND end_date < ?", models.LendingStatusActive, now).
		Order("end_date ASC").
		Find(&records).Error; err != nil {
		return nil, database.MapError(err, "Lending record")
	}
	return records, nil
}

func (r *lendingRecordRepository) TransitionStatus(ctx context.Context, id uint, from, to models.LendingStatus, update StatusUpdate) (bool, error) {
	defer observability.TrackQuery("update", "lending_records")()

	values := map[string]interface{}{
		"status":             to,
		"last_status_reason": update.Reason,
	}
	if update.ActorID != 0 {
		values["last_modified_by_id"] = update.ActorID
	}
	if update.ClosedAt != nil {
		values["closed_at"] = *update.ClosedAt
	}
	if update.Damage != nil {
		values["is_damaged"] = update.Damage.IsDamaged
		values["damage_notes"] = update.Damage.Notes
		values["damage_severity"] = update.Damage.Severity
	}

	result := r.db.WithContext(ctx).
		Model(&models.LendingRecord{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if result.Error != nil {
		r.logger.LogError(ctx, result.Error, "update")
		return false, database.MapError(result.Error, "Lending record")
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	r.logger.LogUpdate(ctx, map[string]interface{}{
		"record_id": id,
		"from":      from,
		"to":        to,
		"actor_id":  update.ActorID,
	})
	return true, nil
}

func (r *lendingRecordRepository) UpdateEndDate(ctx context.Context, id uint, end time.Time, actorID uint) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.LendingRecord{}).
		Where("id = ? AND status <> ?", id, models.LendingStatusClosed).
		Updates(map[string]interface{}{
			"end_date":            end,
			"last_modified_by_id": actorID,
		})
	if result.Error != nil {
		r.logger.LogError(ctx, result.Error, "update")
		return false, database.MapError(result.Error, "Lending record")
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	r.logger.LogUpdate(ctx, map[string]interface{}{"record_id": id, "end_date": end})
	return true, nil
}

func (r *lendingRecordRepository) Delete(ctx context.Context, id uint) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("id = ? AND status <> ?", id, models.LendingStatusActive).
		Delete(&models.LendingRecord{})
	if result.Error != nil {
		r.logger.LogError(ctx, result.Error, "delete")
		return false, database.MapError(result.Error, "Lending record")
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	if err := r.db.WithContext(ctx).Where("record_id = ?", id).Delete(&models.LendingStatusChange{}).Error; err != nil {
		r.logger.LogError(ctx, err, "delete")
		return false, database.MapError(err, "Lending status change")
	}
	r.logger.LogDelete(ctx, map[string]interface{}{"record_id": id})
	return true, nil
}

func (r *lendingRecordRepository) AddStatusChange(ctx context.Context, change *models.LendingStatusChange) error {
	if err := r.db.WithContext(ctx).Create(change).Error; err != nil {
		r.logger.LogError(ctx, err, "create")
		return database.MapError(err, "Lending status change")
	}
	return nil
}

func (r *lendingRecordRepository) History(ctx context.Context, recordID uint) ([]models.LendingStatusChange, error) {
	var changes []models.LendingStatusChange
	if err := r.db.WithContext(ctx).
		Where("record_id = ?", recordID).
		Order("created_at ASC, id ASC").
		Find(&changes).Error; err != nil {
		return nil, database.MapError(err, "Lending status change")
	}
	return changes, nil
}
