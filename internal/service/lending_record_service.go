package service

import (
	"context"
	"fmt"
	"time"

	"gamelend/internal/models"
	"gamelend/internal/observability"
	"gamelend/internal/repository"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// SystemActorID marks transitions made by the service itself.
const SystemActorID uint = 0

// LendingRecordService drives lending records through ACTIVE, OVERDUE and CLOSED.
type LendingRecordService struct {
	db      *gorm.DB
	records repository.LendingRecordRepository
	guard   *Guard
	clock   Clock
	ids     IDGen
	logger  *observability.StructuredLogger
}

// NewLendingRecordService returns a new LendingRecordService. A nil clock or
// ids falls back to the system clock and a ULID generator.
func NewLendingRecordService(db *gorm.DB, records repository.LendingRecordRepository, guard *Guard, clock Clock, ids IDGen) *LendingRecordService {
	if clock == nil {
		clock = SystemClock{}
	}
	if ids == nil {
		ids = NewULIDGen()
	}
	return &LendingRecordService{
		db:      db,
		records: records,
		guard:   guard,
		clock:   clock,
		ids:     ids,
		logger:  observability.NewStructuredLogger(),
	}
}

// create materializes an approved request. It only runs inside the
// approval transaction tx.
func (s *LendingRecordService) create(ctx context.Context, tx *gorm.DB, start, end time.Time, request *models.BorrowRequest, owner *models.Account) (*models.LendingRecord, error) {
	if request == nil || owner == nil {
		return nil, models.NewValidationError("request and owner are required")
	}
	if start.IsZero() || end.IsZero() {
		return nil, models.NewValidationError("start and end dates are required")
	}
	if end.Before(start) {
		return nil, models.NewValidationError("end date must not be before start date")
	}
	now := s.clock.Now()
	if start.Before(now) {
		return nil, models.NewValidationError("start date must not be in the past")
	}
	if owner.ID != request.RequestedGame.OwnerID {
		return nil, models.NewValidationError("record owner must own the game")
	}

	record := &models.LendingRecord{
		Reference:        s.ids.NewULID(now),
		RequestID:        request.ID,
		RecordOwnerID:    owner.ID,
		BorrowerID:       request.RequesterID,
		StartDate:        start.UTC(),
		EndDate:          end.UTC(),
		Status:           models.LendingStatusActive,
		LastModifiedByID: &owner.ID,
	}

	records := s.records.WithTx(tx)
	if err := records.Create(ctx, record); err != nil {
		return nil, err
	}
	if err := records.AddStatusChange(ctx, &models.LendingStatusChange{
		RecordID: record.ID,
		ToStatus: models.LendingStatusActive,
		ActorID:  owner.ID,
		Reason:   "request approved",
	}); err != nil {
		return nil, err
	}
	return record, nil
}

// removeForRequest deletes the record of a request being deleted. An ACTIVE
// record blocks the deletion.
func (s *LendingRecordService) removeForRequest(ctx context.Context, tx *gorm.DB, requestID uint) error {
	records := s.records.WithTx(tx)
	record, err := records.GetByRequestID(ctx, requestID)
	if err != nil {
		return err
	}
	if record == nil {
		return nil
	}
	if record.Status == models.LendingStatusActive {
		return models.NewStateError("request has an active lending record")
	}
	deleted, err := records.Delete(ctx, record.ID)
	if err != nil {
		return err
	}
	if !deleted {
		return models.NewStateError("lending record changed concurrently")
	}
	return nil
}

// GetByID returns a record visible to its owner, its borrower or an admin.
func (s *LendingRecordService) GetByID(ctx context.Context, id uint, caller models.Identity) (record *models.LendingRecord, err error) {
	span, ctx := observability.NewSpan(ctx, "LendingRecordService.GetByID")
	defer func() { finishSpan(span, "record_get", err) }()

	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	record, err = s.records.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.guard.IsRecordParticipant(ctx, id, caller) {
		return nil, models.NewForbiddenError("not allowed to view this lending record")
	}
	return record, nil
}

// ListAll returns every record for admins, otherwise the caller's own records.
func (s *LendingRecordService) ListAll(ctx context.Context, caller models.Identity) (records []models.LendingRecord, err error) {
	span, ctx := observability.NewSpan(ctx, "LendingRecordService.ListAll")
	defer func() { finishSpan(span, "record_list", err) }()

	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if s.guard.SeesAll(caller) {
		return s.records.List(ctx)
	}
	return s.records.ListForAccount(ctx, caller.AccountID)
}

// UpdateStatus moves a record forward. Only the record owner may do this.
func (s *LendingRecordService) UpdateStatus(ctx context.Context, id uint, status models.LendingStatus, caller models.Identity, reason string) (record *models.LendingRecord, err error) {
	span, ctx := observability.NewSpan(ctx, "LendingRecordService.UpdateStatus")
	span.AddAttributes(attribute.Int("record.id", int(id)), attribute.String("record.to", string(status)))
	defer func() { finishSpan(span, "record_status", err) }()

	s.logger.LogServiceCall(ctx, "LendingRecordService", "UpdateStatus", map[string]interface{}{
		"record_id":  id,
		"status":     status,
		"account_id": caller.AccountID,
	})

	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if _, ok := models.ParseLendingStatus(string(status)); !ok {
		return nil, models.NewValidationError(fmt.Sprintf("unknown lending status %q", status))
	}
	current, err := s.ownedRecord(ctx, id, caller)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(current.Status, status); err != nil {
		return nil, err
	}

	update := repository.StatusUpdate{ActorID: caller.AccountID, Reason: reason}
	if status == models.LendingStatusClosed {
		closedAt := s.clock.Now()
		update.ClosedAt = &closedAt
	}
	if err := s.transition(ctx, current, status, update); err != nil {
		return nil, err
	}
	return s.records.GetByID(ctx, id)
}

// MarkReturned lets the borrower report the game as handed back. The record
// goes OVERDUE until the owner confirms by closing it.
func (s *LendingRecordService) MarkReturned(ctx context.Context, id uint, caller models.Identity, reason string) (record *models.LendingRecord, err error) {
	span, ctx := observability.NewSpan(ctx, "LendingRecordService.MarkReturned")
	defer func() { finishSpan(span, "record_return", err) }()

	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	current, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.guard.IsRecordBorrower(ctx, id, caller) {
		return nil, models.NewForbiddenError("only the borrower can report a return")
	}
	if current.Status == models.LendingStatusClosed {
		return nil, models.NewStateError("cannot update a closed record")
	}
	if reason == "" {
		reason = "borrower reported return"
	}
	record, _, err = s.MarkOverdue(ctx, id, caller.AccountID, reason)
	return record, err
}

// MarkOverdue moves a record from ACTIVE to OVERDUE. It is a no-op for a
// record in any other status; changed reports whether this call moved it.
func (s *LendingRecordService) MarkOverdue(ctx context.Context, id uint, actorID uint, reason string) (*models.LendingRecord, bool, error) {
	current, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if current.Status != models.LendingStatusActive {
		return current, false, nil
	}

	err = s.transition(ctx, current, models.LendingStatusOverdue, repository.StatusUpdate{ActorID: actorID, Reason: reason})
	if models.IsCode(err, models.CodeState) {
		// lost the race to another writer
		current, err = s.records.GetByID(ctx, id)
		return current, false, err
	}
	if err != nil {
		return nil, false, err
	}

	record, err := s.records.GetByID(ctx, id)
	return record, true, err
}

// CloseWithDamageAssessment closes a record and stores the condition of the
// returned game in the same update.
func (s *LendingRecordService) CloseWithDamageAssessment(ctx context.Context, id uint, damage models.DamageAssessment, caller models.Identity, reason string) (record *models.LendingRecord, err error) {
	span, ctx := observability.NewSpan(ctx, "LendingRecordService.CloseWithDamageAssessment")
	span.AddAttributes(attribute.Int("record.id", int(id)), attribute.Bool("record.damaged", damage.IsDamaged))
	defer func() { finishSpan(span, "record_close", err) }()

	s.logger.LogServiceCall(ctx, "LendingRecordService", "CloseWithDamageAssessment", map[string]interface{}{
		"record_id":  id,
		"is_damaged": damage.IsDamaged,
		"account_id": caller.AccountID,
	})

	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if damage.Severity != nil && (*damage.Severity < 0 || *damage.Severity > models.MaxDamageSeverity) {
		return nil, models.NewValidationError(fmt.Sprintf("damage severity must be between 0 and %d", models.MaxDamageSeverity))
	}
	current, err := s.ownedRecord(ctx, id, caller)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(current.Status, models.LendingStatusClosed); err != nil {
		return nil, err
	}

	closedAt := s.clock.Now()
	if err := s.transition(ctx, current, models.LendingStatusClosed, repository.StatusUpdate{
		ActorID:  caller.AccountID,
		Reason:   reason,
		ClosedAt: &closedAt,
		Damage:   &damage,
	}); err != nil {
		return nil, err
	}
	return s.records.GetByID(ctx, id)
}

// UpdateEndDate moves the end of the loan. The new end may not precede the start.
func (s *LendingRecordService) UpdateEndDate(ctx context.Context, id uint, end time.Time, caller models.Identity) (record *models.LendingRecord, err error) {
	span, ctx := observability.NewSpan(ctx, "LendingRecordService.UpdateEndDate")
	defer func() { finishSpan(span, "record_end_date", err) }()

	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if end.IsZero() {
		return nil, models.NewValidationError("end date is required")
	}
	current, err := s.ownedRecord(ctx, id, caller)
	if err != nil {
		return nil, err
	}
	if current.Status == models.LendingStatusClosed {
		return nil, models.NewStateError("cannot update a closed record")
	}
	if end.Before(current.StartDate) {
		return nil, models.NewValidationError("end date must not be before start date")
	}

	updated, err := s.records.UpdateEndDate(ctx, id, end.UTC(), caller.AccountID)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, models.NewStateError("cannot update a closed record")
	}
	return s.records.GetByID(ctx, id)
}

// Delete removes a record that is no longer ACTIVE.
func (s *LendingRecordService) Delete(ctx context.Context, id uint, caller models.Identity) (err error) {
	span, ctx := observability.NewSpan(ctx, "LendingRecordService.Delete")
	defer func() { finishSpan(span, "record_delete", err) }()

	if err := requireCaller(caller); err != nil {
		return err
	}
	current, err := s.ownedRecord(ctx, id, caller)
	if err != nil {
		return err
	}
	if current.Status == models.LendingStatusActive {
		return models.NewStateError("cannot delete an active record")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deleted, err := s.records.WithTx(tx).Delete(ctx, id)
		if err != nil {
			return err
		}
		if !deleted {
			return models.NewStateError("cannot delete an active record")
		}
		return nil
	})
}

// FindOverdue lists ACTIVE records whose end date has passed.
func (s *LendingRecordService) FindOverdue(ctx context.Context) (records []models.LendingRecord, err error) {
	span, ctx := observability.NewSpan(ctx, "LendingRecordService.FindOverdue")
	defer func() { finishSpan(span, "record_find_overdue", err) }()

	return s.records.FindOverdue(ctx, s.clock.Now())
}

// ListOverdue is FindOverdue narrowed to the records the caller may see.
func (s *LendingRecordService) ListOverdue(ctx context.Context, caller models.Identity) (records []models.LendingRecord, err error) {
	span, ctx := observability.NewSpan(ctx, "LendingRecordService.ListOverdue")
	defer func() { finishSpan(span, "record_list_overdue", err) }()

	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	overdue, err := s.records.FindOverdue(ctx, s.clock.Now())
	if err != nil {
		return nil, err
	}
	return s.guard.VisibleRecords(caller, overdue), nil
}

// History returns the status changes of a record, oldest first.
func (s *LendingRecordService) History(ctx context.Context, id uint, caller models.Identity) (history []models.LendingStatusChange, err error) {
	span, ctx := observability.NewSpan(ctx, "LendingRecordService.History")
	span.AddAttributes(attribute.Int("record.id", int(id)))
	defer func() { finishSpan(span, "record_history", err) }()

	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if _, err := s.records.GetByID(ctx, id); err != nil {
		return nil, err
	}
	if !s.guard.IsRecordParticipant(ctx, id, caller) {
		return nil, models.NewForbiddenError("not allowed to view this lending record")
	}
	return s.records.History(ctx, id)
}

func (s *LendingRecordService) ownedRecord(ctx context.Context, id uint, caller models.Identity) (*models.LendingRecord, error) {
	record, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.guard.IsRecordOwner(ctx, id, caller) {
		return nil, models.NewForbiddenError("only the game owner can change this lending record")
	}
	return record, nil
}

// transition writes the new status only if the record still holds the
// status it was read with, and appends the audit row in the same transaction.
func (s *LendingRecordService) transition(ctx context.Context, current *models.LendingRecord, to models.LendingStatus, update repository.StatusUpdate) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		records := s.records.WithTx(tx)
		changed, err := records.TransitionStatus(ctx, current.ID, current.Status, to, update)
		if err != nil {
			return err
		}
		if !changed {
			return models.NewStateError("lending record status changed concurrently")
		}
		return records.AddStatusChange(ctx, &models.LendingStatusChange{
			RecordID:   current.ID,
			FromStatus: current.Status,
			ToStatus:   to,
			ActorID:    update.ActorID,
			Reason:     update.Reason,
		})
	})
	if err != nil {
		return err
	}
	observability.LendingTransitions.WithLabelValues(string(current.Status), string(to)).Inc()
	return nil
}

func checkTransition(from, to models.LendingStatus) error {
	if from == models.LendingStatusClosed {
		return models.NewStateError("cannot update a closed record")
	}
	if !from.CanTransition(to) {
		return models.NewStateError(fmt.Sprintf("cannot move a lending record from %s to %s", from, to))
	}
	return nil
}
