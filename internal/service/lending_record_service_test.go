package service

import (
	"context"
	"testing"

	"gamelend/internal/models"
	"gamelend/internal/observability"
	"gamelend/internal/testutil"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLendingRecordServiceTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	record := f.approved(t, 1, 4)

	_, err := f.records.UpdateStatus(ctx, record.ID, models.LendingStatusOverdue, f.id(f.borrower), "")
	assert.True(t, models.IsCode(err, models.CodeForbidden), "borrowers cannot drive the record")

	_, err = f.records.UpdateStatus(ctx, record.ID, models.LendingStatus("LOST"), f.id(f.owner), "")
	assert.True(t, models.IsCode(err, models.CodeValidation))

	_, err = f.records.UpdateStatus(ctx, record.ID, models.LendingStatusActive, f.id(f.owner), "")
	assert.True(t, models.IsCode(err, models.CodeState), "no self transition")

	overdue, err := f.records.UpdateStatus(ctx, record.ID, models.LendingStatusOverdue, f.id(f.owner), "late")
	require.NoError(t, err)
	assert.Equal(t, models.LendingStatusOverdue, overdue.Status)
	assert.Equal(t, "late", overdue.LastStatusReason)

	_, err = f.records.UpdateStatus(ctx, record.ID, models.LendingStatusActive, f.id(f.owner), "")
	assert.True(t, models.IsCode(err, models.CodeState), "no backward transition")

	closed, err := f.records.UpdateStatus(ctx, record.ID, models.LendingStatusClosed, f.id(f.owner), "returned")
	require.NoError(t, err)
	assert.Equal(t, models.LendingStatusClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)

	history, err := f.records.History(ctx, record.ID, f.id(f.borrower))
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, models.LendingStatusActive, history[0].ToStatus)
	assert.Equal(t, models.LendingStatusOverdue, history[1].ToStatus)
	assert.Equal(t, models.LendingStatusClosed, history[2].ToStatus)
	assert.Equal(t, f.owner.ID, history[2].ActorID)
}

func TestLendingRecordServiceClosedIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	record := f.approved(t, 1, 4)
	owner := f.id(f.owner)

	_, err := f.records.CloseWithDamageAssessment(ctx, record.ID, models.DamageAssessment{}, owner, "returned")
	require.NoError(t, err)

	_, err = f.records.UpdateStatus(ctx, record.ID, models.LendingStatusOverdue, owner, "")
	assert.True(t, models.IsCode(err, models.CodeState))

	_, err = f.records.UpdateStatus(ctx, record.ID, models.LendingStatusClosed, owner, "")
	assert.True(t, models.IsCode(err, models.CodeState))

	_, err = f.records.CloseWithDamageAssessment(ctx, record.ID, models.DamageAssessment{IsDamaged: true}, owner, "")
	assert.True(t, models.IsCode(err, models.CodeState))

	_, err = f.records.UpdateEndDate(ctx, record.ID, testutil.Day(9), owner)
	assert.True(t, models.IsCode(err, models.CodeState))

	_, err = f.records.MarkReturned(ctx, record.ID, f.id(f.borrower), "")
	assert.True(t, models.IsCode(err, models.CodeState))

	got, changed, err := f.records.MarkOverdue(ctx, record.ID, SystemActorID, "sweep")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, models.LendingStatusClosed, got.Status)
}

func TestLendingRecordServiceCloseWithDamageAssessment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	record := f.approved(t, 1, 4)
	severity := 2

	closed, err := f.records.CloseWithDamageAssessment(ctx, record.ID, models.DamageAssessment{
		IsDamaged: true,
		Notes:     "scratched box",
		Severity:  &severity,
	}, f.id(f.owner), "returned with damage")
	require.NoError(t, err)

	assert.Equal(t, models.LendingStatusClosed, closed.Status)
	assert.True(t, closed.IsDamaged)
	assert.Equal(t, "scratched box", closed.DamageNotes)
	require.NotNil(t, closed.DamageSeverity)
	assert.Equal(t, 2, *closed.DamageSeverity)
	require.NotNil(t, closed.ClosedAt)
	assert.True(t, closed.ClosedAt.Equal(testutil.Day(0)))
	require.NotNil(t, closed.LastModifiedByID)
	assert.Equal(t, f.owner.ID, *closed.LastModifiedByID)
}

func TestLendingRecordServiceCloseRejectsSeverity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	record := f.approved(t, 1, 4)

	for _, severity := range []int{-1, models.MaxDamageSeverity + 1} {
		s := severity
		_, err := f.records.CloseWithDamageAssessment(ctx, record.ID, models.DamageAssessment{IsDamaged: true, Severity: &s}, f.id(f.owner), "")
		assert.True(t, models.IsCode(err, models.CodeValidation), "severity %d", severity)
	}

	_, err := f.records.CloseWithDamageAssessment(ctx, record.ID, models.DamageAssessment{}, f.id(f.borrower), "")
	assert.True(t, models.IsCode(err, models.CodeForbidden))
}

func TestLendingRecordServiceUpdateEndDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	record := f.approved(t, 2, 4)

	updated, err := f.records.UpdateEndDate(ctx, record.ID, testutil.Day(7), f.id(f.owner))
	require.NoError(t, err)
	assert.True(t, updated.EndDate.Equal(testutil.Day(7)))

	_, err = f.records.UpdateEndDate(ctx, record.ID, testutil.Day(1), f.id(f.owner))
	assert.True(t, models.IsCode(err, models.CodeValidation))

	_, err = f.records.UpdateEndDate(ctx, record.ID, testutil.Day(8), f.id(f.borrower))
	assert.True(t, models.IsCode(err, models.CodeForbidden))
}

func TestLendingRecordServiceApproveCloseThenExtend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	record := f.approved(t, 1, 3)

	_, err := f.records.UpdateStatus(ctx, record.ID, models.LendingStatusClosed, f.id(f.owner), "returned")
	require.NoError(t, err)

	_, err = f.records.UpdateEndDate(ctx, record.ID, testutil.Day(5), f.id(f.owner))
	require.Error(t, err)
	assert.Equal(t, models.CodeState, models.ErrorCode(err))
}

func TestLendingRecordServiceDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	record := f.approved(t, 1, 3)

	err := f.records.Delete(ctx, record.ID, f.id(f.owner))
	assert.True(t, models.IsCode(err, models.CodeState), "active records cannot be deleted")

	_, err = f.records.UpdateStatus(ctx, record.ID, models.LendingStatusClosed, f.id(f.owner), "")
	require.NoError(t, err)

	err = f.records.Delete(ctx, record.ID, f.id(f.borrower))
	assert.True(t, models.IsCode(err, models.CodeForbidden))

	require.NoError(t, f.records.Delete(ctx, record.ID, f.id(f.owner)))

	_, err = f.records.GetByID(ctx, record.ID, f.id(f.owner))
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func TestLendingRecordServiceMarkReturned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	record := f.approved(t, 1, 3)

	_, err := f.records.MarkReturned(ctx, record.ID, f.id(f.owner), "")
	assert.True(t, models.IsCode(err, models.CodeForbidden))

	returned, err := f.records.MarkReturned(ctx, record.ID, f.id(f.borrower), "")
	require.NoError(t, err)
	assert.Equal(t, models.LendingStatusOverdue, returned.Status)
	assert.Equal(t, "borrower reported return", returned.LastStatusReason)

	again, err := f.records.MarkReturned(ctx, record.ID, f.id(f.borrower), "")
	require.NoError(t, err)
	assert.Equal(t, models.LendingStatusOverdue, again.Status)

	history, err := f.records.History(ctx, record.ID, f.id(f.owner))
	require.NoError(t, err)
	assert.Len(t, history, 2, "the repeated report is not audited")
}

func TestLendingRecordServiceOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	late := f.approved(t, 1, 3)

	overdue, err := f.records.FindOverdue(ctx)
	require.NoError(t, err)
	assert.Empty(t, overdue)

	f.clock.now = testutil.Day(4)
	overdue, err = f.records.FindOverdue(ctx)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, late.ID, overdue[0].ID)

	visible, err := f.records.ListOverdue(ctx, f.id(f.other))
	require.NoError(t, err)
	assert.Empty(t, visible)

	visible, err = f.records.ListOverdue(ctx, f.id(f.borrower))
	require.NoError(t, err)
	assert.Len(t, visible, 1)

	visible, err = f.records.ListOverdue(ctx, f.id(f.admin))
	require.NoError(t, err)
	assert.Len(t, visible, 1)

	_, err = f.records.ListOverdue(ctx, models.Identity{})
	assert.True(t, models.IsCode(err, models.CodeUnauthenticated))

	record, changed, err := f.records.MarkOverdue(ctx, late.ID, SystemActorID, "end date passed")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.LendingStatusOverdue, record.Status)
	assert.Equal(t, "end date passed", record.LastStatusReason)
	require.NotNil(t, record.LastModifiedByID)
	assert.Equal(t, f.owner.ID, *record.LastModifiedByID, "system transitions leave the last modifier untouched")

	_, changed, err = f.records.MarkOverdue(ctx, late.ID, SystemActorID, "end date passed")
	require.NoError(t, err)
	assert.False(t, changed)

	overdue, err = f.records.FindOverdue(ctx)
	require.NoError(t, err)
	assert.Empty(t, overdue)
}

func TestLendingRecordServiceVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	record := f.approved(t, 1, 3)

	for _, caller := range []*models.Account{f.owner, f.borrower, f.admin} {
		_, err := f.records.GetByID(ctx, record.ID, f.id(caller))
		assert.NoError(t, err, caller.Username)
	}

	_, err := f.records.GetByID(ctx, record.ID, f.id(f.other))
	require.Error(t, err)
	assert.Equal(t, models.CodeForbidden, models.ErrorCode(err))

	_, err = f.records.History(ctx, record.ID, f.id(f.other))
	assert.True(t, models.IsCode(err, models.CodeForbidden))

	mine, err := f.records.ListAll(ctx, f.id(f.borrower))
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	none, err := f.records.ListAll(ctx, f.id(f.other))
	require.NoError(t, err)
	assert.Empty(t, none)

	all, err := f.records.ListAll(ctx, f.id(f.admin))
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestLendingRecordServiceCreateRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	request := f.request(t, f.borrower, 1, 3)
	loaded, err := f.requests.GetByID(ctx, request.ID, f.id(f.owner))
	require.NoError(t, err)

	tests := []struct {
		name  string
		start int
		end   int
		owner *models.Account
	}{
		{"end before start", 3, 1, f.owner},
		{"start in the past", -1, 3, f.owner},
		{"owner does not own the game", 1, 3, f.other},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.records.create(ctx, f.db, testutil.Day(tt.start), testutil.Day(tt.end), loaded, tt.owner)
			assert.True(t, models.IsCode(err, models.CodeValidation))
		})
	}

	_, err = f.records.create(ctx, f.db, testutil.Day(1), testutil.Day(3), nil, f.owner)
	assert.True(t, models.IsCode(err, models.CodeValidation))
}

func TestLendingRecordServiceReadsCountOutcomes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	record := f.approved(t, 1, 3)

	count := func(operation, result string) float64 {
		return promtest.ToFloat64(observability.BorrowRequestOutcomes.WithLabelValues(operation, result))
	}

	before := count("record_history", "ok")
	_, err := f.records.History(ctx, record.ID, f.id(f.admin))
	require.NoError(t, err)
	assert.Equal(t, before+1, count("record_history", "ok"))

	before = count("record_history", models.CodeForbidden)
	_, err = f.records.History(ctx, record.ID, f.id(f.other))
	require.Error(t, err)
	assert.Equal(t, before+1, count("record_history", models.CodeForbidden))

	before = count("record_list_overdue", "ok")
	_, err = f.records.ListOverdue(ctx, f.id(f.owner))
	require.NoError(t, err)
	assert.Equal(t, before+1, count("record_list_overdue", "ok"))

	before = count("list_for_game", "ok")
	_, err = f.requests.ListForGame(ctx, f.game.ID, f.id(f.other))
	require.NoError(t, err)
	assert.Equal(t, before+1, count("list_for_game", "ok"))
}
