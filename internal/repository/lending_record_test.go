package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"gamelend/internal/models"
	"gamelend/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)
	return gormDB, mock
}

func seedRecord(t *testing.T, db *gorm.DB, status models.LendingStatus, endDay int) (*models.LendingRecord, *models.Account, *models.Account) {
	t.Helper()
	owner := testutil.CreateAccount(t, db, "owner", models.RoleMember)
	borrower := testutil.CreateAccount(t, db, "borrower", models.RoleMember)
	game := testutil.CreateGame(t, db, owner, "Azul")

	request := &models.BorrowRequest{
		RequestedGameID: game.ID,
		RequesterID:     borrower.ID,
		StartDate:       testutil.Day(0),
		EndDate:         testutil.Day(endDay),
		RequestDate:     testutil.Day(-1),
		Status:          models.BorrowRequestStatusApproved,
	}
	require.NoError(t, db.Omit("RequestedGame", "Requester", "Responder").Create(request).Error)

	record := &models.LendingRecord{
		Reference:     fmt.Sprintf("REF%023d", request.ID),
		RequestID:     request.ID,
		RecordOwnerID: owner.ID,
		BorrowerID:    borrower.ID,
		StartDate:     request.StartDate,
		EndDate:       request.EndDate,
		Status:        status,
	}
	require.NoError(t, NewLendingRecordRepository(db).Create(context.Background(), record))
	return record, owner, borrower
}

func TestLendingRecordRepository_Integration(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewLendingRecordRepository(db)
	ctx := context.Background()

	record, owner, borrower := seedRecord(t, db, models.LendingStatusActive, 3)

	t.Run("GetByID preloads the request", func(t *testing.T) {
		got, err := repo.GetByID(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, record.RequestID, got.Request.ID)
		assert.Equal(t, owner.ID, got.Request.RequestedGame.OwnerID)
		assert.Equal(t, owner.Username, got.RecordOwner.Username)
	})

	t.Run("GetByRequestID", func(t *testing.T) {
		got, err := repo.GetByRequestID(ctx, record.RequestID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, record.ID, got.ID)

		none, err := repo.GetByRequestID(ctx, 4242)
		require.NoError(t, err)
		assert.Nil(t, none)
	})

	t.Run("ListForAccount", func(t *testing.T) {
		for _, id := range []uint{owner.ID, borrower.ID} {
			records, err := repo.ListForAccount(ctx, id)
			require.NoError(t, err)
			assert.Len(t, records, 1)
		}
	})

	t.Run("FindOverdue", func(t *testing.T) {
		overdue, err := repo.FindOverdue(ctx, testutil.Day(2))
		require.NoError(t, err)
		assert.Empty(t, overdue)

		overdue, err = repo.FindOverdue(ctx, testutil.Day(4))
		require.NoError(t, err)
		assert.Len(t, overdue, 1)
	})

	t.Run("UpdateEndDate", func(t *testing.T) {
		ok, err := repo.UpdateEndDate(ctx, record.ID, testutil.Day(6), owner.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := repo.GetByID(ctx, record.ID)
		require.NoError(t, err)
		assert.True(t, got.EndDate.Equal(testutil.Day(6)))
	})

	t.Run("Delete refuses ACTIVE", func(t *testing.T) {
		ok, err := repo.Delete(ctx, record.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("TransitionStatus closes with damage", func(t *testing.T) {
		closedAt := testutil.Day(6)
		severity := 2
		ok, err := repo.TransitionStatus(ctx, record.ID, models.LendingStatusActive, models.LendingStatusClosed, StatusUpdate{
			ActorID:  owner.ID,
			Reason:   "returned",
			ClosedAt: &closedAt,
			Damage:   &models.DamageAssessment{IsDamaged: true, Notes: "scratched box", Severity: &severity},
		})
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := repo.GetByID(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, models.LendingStatusClosed, got.Status)
		assert.True(t, got.IsDamaged)
		assert.Equal(t, "scratched box", got.DamageNotes)
		require.NotNil(t, got.DamageSeverity)
		assert.Equal(t, 2, *got.DamageSeverity)
		require.NotNil(t, got.LastModifiedByID)
		assert.Equal(t, owner.ID, *got.LastModifiedByID)

		ok, err = repo.TransitionStatus(ctx, record.ID, models.LendingStatusActive, models.LendingStatusOverdue, StatusUpdate{})
		require.NoError(t, err)
		assert.False(t, ok, "stale from-status must not match")
	})

	t.Run("UpdateEndDate refuses CLOSED", func(t *testing.T) {
		ok, err := repo.UpdateEndDate(ctx, record.ID, testutil.Day(9), owner.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("History and Delete", func(t *testing.T) {
		require.NoError(t, repo.AddStatusChange(ctx, &models.LendingStatusChange{
			RecordID:   record.ID,
			FromStatus: models.LendingStatusActive,
			ToStatus:   models.LendingStatusClosed,
			ActorID:    owner.ID,
			Reason:     "returned",
		}))
		history, err := repo.History(ctx, record.ID)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, models.LendingStatusClosed, history[0].ToStatus)

		ok, err := repo.Delete(ctx, record.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		_, err = repo.GetByID(ctx, record.ID)
		assert.True(t, models.IsCode(err, models.CodeNotFound))
		history, err = repo.History(ctx, record.ID)
		require.NoError(t, err)
		assert.Empty(t, history)
	})
}

func TestLendingRecordRepository_TransitionStatusSQL(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewLendingRecordRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "lending_records" SET .*"status"=.* WHERE .*id = \$\d+ AND status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	ok, err := repo.TransitionStatus(context.Background(), 7, models.LendingStatusActive, models.LendingStatusOverdue, StatusUpdate{Reason: "sweep"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGameRepository_LockForUpdate(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewGameRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "games" WHERE "games"."id" = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "owner_id", "created_at"}).AddRow(3, "Azul", 1, time.Now()))

	game, err := repo.LockForUpdate(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, uint(1), game.OwnerID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
