package service

import (
	"context"
	"testing"
	"time"

	"gamelend/internal/models"
	"gamelend/internal/repository"
	"gamelend/internal/testutil"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

type fixture struct {
	db       *gorm.DB
	clock    *fixedClock
	requests *BorrowRequestService
	records  *LendingRecordService
	owner    *models.Account
	borrower *models.Account
	other    *models.Account
	admin    *models.Account
	game     *models.Game
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	clock := &fixedClock{now: testutil.Day(0)}

	requestRepo := repository.NewBorrowRequestRepository(db)
	recordRepo := repository.NewLendingRecordRepository(db)
	guard := NewGuard(requestRepo, recordRepo)
	records := NewLendingRecordService(db, recordRepo, guard, clock, NewULIDGen())
	requests := NewBorrowRequestService(db, requestRepo, repository.NewGameRepository(db),
		repository.NewAccountRepository(db), records, guard, clock)

	owner := testutil.CreateAccount(t, db, "owner", models.RoleMember)
	return &fixture{
		db:       db,
		clock:    clock,
		requests: requests,
		records:  records,
		owner:    owner,
		borrower: testutil.CreateAccount(t, db, "borrower", models.RoleMember),
		other:    testutil.CreateAccount(t, db, "other", models.RoleMember),
		admin:    testutil.CreateAccount(t, db, "admin", models.RoleAdmin),
		game:     testutil.CreateGame(t, db, owner, "Terraforming Mars"),
	}
}

// request creates a PENDING request by borrower for days [from, to].
func (f *fixture) request(t *testing.T, borrower *models.Account, from, to int) *models.BorrowRequest {
	t.Helper()
	request, err := f.requests.Create(context.Background(), testutil.Identity(borrower), f.game.ID, testutil.Day(from), testutil.Day(to))
	require.NoError(t, err)
	return request
}

// approved creates and approves a request, returning its lending record.
func (f *fixture) approved(t *testing.T, from, to int) *models.LendingRecord {
	t.Helper()
	ctx := context.Background()
	request := f.request(t, f.borrower, from, to)
	_, err := f.requests.UpdateStatus(ctx, request.ID, models.BorrowRequestStatusApproved, testutil.Identity(f.owner))
	require.NoError(t, err)

	var record models.LendingRecord
	require.NoError(t, f.db.Where("request_id = ?", request.ID).First(&record).Error)
	return &record
}

func (f *fixture) id(account *models.Account) models.Identity {
	return testutil.Identity(account)
}
