package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLendingStatusCanTransition(t *testing.T) {
	tests := []struct {
		from LendingStatus
		to   LendingStatus
		want bool
	}{
		{LendingStatusActive, LendingStatusOverdue, true},
		{LendingStatusActive, LendingStatusClosed, true},
		{LendingStatusOverdue, LendingStatusClosed, true},
		{LendingStatusActive, LendingStatusActive, false},
		{LendingStatusOverdue, LendingStatusActive, false},
		{LendingStatusOverdue, LendingStatusOverdue, false},
		{LendingStatusClosed, LendingStatusActive, false},
		{LendingStatusClosed, LendingStatusOverdue, false},
		{LendingStatusClosed, LendingStatusClosed, false},
		{LendingStatusActive, LendingStatus("LOST"), false},
		{LendingStatus("LOST"), LendingStatusClosed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestParseStatuses(t *testing.T) {
	s, ok := ParseLendingStatus("OVERDUE")
	assert.True(t, ok)
	assert.Equal(t, LendingStatusOverdue, s)

	_, ok = ParseLendingStatus("overdue")
	assert.False(t, ok)

	r, ok := ParseBorrowRequestStatus("DECLINED")
	assert.True(t, ok)
	assert.Equal(t, BorrowRequestStatusDeclined, r)

	_, ok = ParseBorrowRequestStatus("CANCELLED")
	assert.False(t, ok)
}

func TestPeriodsOverlap(t *testing.T) {
	d1 := time.Date(2030, 5, 1, 10, 0, 0, 0, time.UTC)
	d2 := d1.Add(48 * time.Hour)

	tests := []struct {
		name       string
		start, end time.Time
		want       bool
	}{
		{"identical", d1, d2, true},
		{"shifted by an hour", d1.Add(time.Hour), d2.Add(time.Hour), true},
		{"contained", d1.Add(time.Hour), d2.Add(-time.Hour), true},
		{"containing", d1.Add(-time.Hour), d2.Add(time.Hour), true},
		{"touching at end", d2, d2.Add(time.Hour), true},
		{"touching at start", d1.Add(-time.Hour), d1, true},
		{"strictly after", d2.Add(time.Second), d2.Add(time.Hour), false},
		{"strictly before", d1.Add(-2 * time.Hour), d1.Add(-time.Second), false},
	}

	req := &BorrowRequest{StartDate: d1, EndDate: d2}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, req.Overlaps(tt.start, tt.end))
		})
	}
}

func TestIdentityRoles(t *testing.T) {
	assert.False(t, Identity{}.Authenticated())
	assert.True(t, Identity{AccountID: 4}.Authenticated())
	assert.True(t, Identity{AccountID: 1, Roles: []Role{RoleMember, RoleAdmin}}.IsAdmin())
	assert.False(t, Identity{AccountID: 1, Roles: []Role{RoleMember}}.IsAdmin())
}
