// Package service contains the borrowing and lending business logic.
package service

import (
	"context"

	"gamelend/internal/models"
	"gamelend/internal/observability"
)

type requestLookup interface {
	GetByID(ctx context.Context, id uint) (*models.BorrowRequest, error)
}

type recordLookup interface {
	GetByID(ctx context.Context, id uint) (*models.LendingRecord, error)
}

// Guard is where role and ownership rules live. Every predicate denies
// when the entity cannot be loaded. Admins pass the read predicates
// (IsOwnerOrRequester, IsRecordParticipant, SeesAll, VisibleRecords) but
// never the owner-only ones.
type Guard struct {
	requests requestLookup
	records  recordLookup
	logger   *observability.StructuredLogger
}

// NewGuard returns a Guard reading through the given repositories.
func NewGuard(requests requestLookup, records recordLookup) *Guard {
	return &Guard{
		requests: requests,
		records:  records,
		logger:   observability.NewStructuredLogger(),
	}
}

// SeesAll reports whether caller may read every request and record.
func (g *Guard) SeesAll(caller models.Identity) bool {
	return caller.Authenticated() && caller.IsAdmin()
}

// IsOwnerOrRequester reports whether caller may read the request: its
// requester, the owner of the requested game or an admin.
func (g *Guard) IsOwnerOrRequester(ctx context.Context, requestID uint, caller models.Identity) bool {
	request, ok := g.loadRequest(ctx, "IsOwnerOrRequester", requestID, caller)
	if !ok {
		return false
	}
	if g.SeesAll(caller) || requestParty(request, caller) {
		return true
	}
	g.deny(ctx, "IsOwnerOrRequester", "request_id", requestID, caller, nil)
	return false
}

// IsRequestParty reports whether caller made the request or owns the
// requested game. Admins do not pass.
func (g *Guard) IsRequestParty(ctx context.Context, requestID uint, caller models.Identity) bool {
	request, ok := g.loadRequest(ctx, "IsRequestParty", requestID, caller)
	if !ok {
		return false
	}
	if requestParty(request, caller) {
		return true
	}
	g.deny(ctx, "IsRequestParty", "request_id", requestID, caller, nil)
	return false
}

// IsGameOwner reports whether caller owns the game the request is for.
func (g *Guard) IsGameOwner(ctx context.Context, requestID uint, caller models.Identity) bool {
	request, ok := g.loadRequest(ctx, "IsGameOwner", requestID, caller)
	if !ok {
		return false
	}
	if request.RequestedGame.OwnerID == caller.AccountID {
		return true
	}
	g.deny(ctx, "IsGameOwner", "request_id", requestID, caller, nil)
	return false
}

// IsRecordOwner reports whether caller is the owner named on the lending record.
func (g *Guard) IsRecordOwner(ctx context.Context, recordID uint, caller models.Identity) bool {
	record, ok := g.loadRecord(ctx, "IsRecordOwner", recordID, caller)
	if !ok {
		return false
	}
	if record.RecordOwnerID == caller.AccountID {
		return true
	}
	g.deny(ctx, "IsRecordOwner", "record_id", recordID, caller, nil)
	return false
}

// IsRecordBorrower reports whether caller borrowed the game of the lending record.
func (g *Guard) IsRecordBorrower(ctx context.Context, recordID uint, caller models.Identity) bool {
	record, ok := g.loadRecord(ctx, "IsRecordBorrower", recordID, caller)
	if !ok {
		return false
	}
	if record.BorrowerID == caller.AccountID {
		return true
	}
	g.deny(ctx, "IsRecordBorrower", "record_id", recordID, caller, nil)
	return false
}

// IsRecordParticipant reports whether caller may read the lending record:
// its owner, its borrower or an admin.
func (g *Guard) IsRecordParticipant(ctx context.Context, recordID uint, caller models.Identity) bool {
	record, ok := g.loadRecord(ctx, "IsRecordParticipant", recordID, caller)
	if !ok {
		return false
	}
	if g.SeesAll(caller) || recordParty(record, caller) {
		return true
	}
	g.deny(ctx, "IsRecordParticipant", "record_id", recordID, caller, nil)
	return false
}

// VisibleRecords keeps the already loaded records caller may read.
func (g *Guard) VisibleRecords(caller models.Identity, records []models.LendingRecord) []models.LendingRecord {
	if !caller.Authenticated() {
		return nil
	}
	if g.SeesAll(caller) {
		return records
	}
	visible := make([]models.LendingRecord, 0, len(records))
	for _, record := range records {
		if recordParty(&record, caller) {
			visible = append(visible, record)
		}
	}
	return visible
}

func requestParty(request *models.BorrowRequest, caller models.Identity) bool {
	return request.RequesterID == caller.AccountID || request.RequestedGame.OwnerID == caller.AccountID
}

func recordParty(record *models.LendingRecord, caller models.Identity) bool {
	return record.RecordOwnerID == caller.AccountID || record.BorrowerID == caller.AccountID
}

func (g *Guard) loadRequest(ctx context.Context, check string, id uint, caller models.Identity) (*models.BorrowRequest, bool) {
	if !caller.Authenticated() {
		g.deny(ctx, check, "request_id", id, caller, nil)
		return nil, false
	}
	request, err := g.requests.GetByID(ctx, id)
	if err != nil || request == nil {
		g.deny(ctx, check, "request_id", id, caller, err)
		return nil, false
	}
	return request, true
}

func (g *Guard) loadRecord(ctx context.Context, check string, id uint, caller models.Identity) (*models.LendingRecord, bool) {
	if !caller.Authenticated() {
		g.deny(ctx, check, "record_id", id, caller, nil)
		return nil, false
	}
	record, err := g.records.GetByID(ctx, id)
	if err != nil || record == nil {
		g.deny(ctx, check, "record_id", id, caller, err)
		return nil, false
	}
	return record, true
}

func (g *Guard) deny(ctx context.Context, check, key string, id uint, caller models.Identity, err error) {
	fields := map[string]interface{}{
		key:          id,
		"account_id": caller.AccountID,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	g.logger.LogDenied(ctx, check, fields)
}
