package models

import "time"

// BorrowRequestStatus defines lifecycle states for borrow requests.
type BorrowRequestStatus string

const (
	// BorrowRequestStatusPending indicates the request awaits the owner's decision.
	BorrowRequestStatusPending BorrowRequestStatus = "PENDING"
	// BorrowRequestStatusApproved indicates the owner lent the game for the period.
	BorrowRequestStatusApproved BorrowRequestStatus = "APPROVED"
	// BorrowRequestStatusDeclined indicates the owner refused the request.
	BorrowRequestStatusDeclined BorrowRequestStatus = "DECLINED"
)

// ParseBorrowRequestStatus converts raw input into a known status.
func ParseBorrowRequestStatus(raw string) (BorrowRequestStatus, bool) {
	switch s := BorrowRequestStatus(raw); s {
	case BorrowRequestStatusPending, BorrowRequestStatusApproved, BorrowRequestStatusDeclined:
		return s, true
	}
	return "", false
}

// BorrowRequest is a proposal by one account to borrow another account's game.
type BorrowRequest struct {
	ID              uint                `gorm:"primaryKey" json:"id"`
	RequestedGameID uint                `gorm:"not null;index:idx_borrow_requests_game_status" json:"requested_game_id"`
	RequestedGame   Game                `gorm:"foreignKey:RequestedGameID" json:"requested_game"`
	RequesterID     uint                `gorm:"not null;index" json:"requester_id"`
	Requester       Account             `gorm:"foreignKey:RequesterID" json:"requester"`
	ResponderID     *uint               `json:"responder_id,omitempty"`
	Responder       *Account            `gorm:"foreignKey:ResponderID" json:"responder,omitempty"`
	StartDate       time.Time           `gorm:"not null" json:"start_date"`
	EndDate         time.Time           `gorm:"not null" json:"end_date"`
	RequestDate     time.Time           `gorm:"not null" json:"request_date"`
	Status          BorrowRequestStatus `gorm:"type:varchar(20);not null;default:'PENDING';index:idx_borrow_requests_game_status" json:"status"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (BorrowRequest) TableName() string {
	return "borrow_requests"
}

// Overlaps reports whether [start, end] intersects the request's period.
// Both ends are inclusive, so periods touching at one instant overlap.
func (r *BorrowRequest) Overlaps(start, end time.Time) bool {
	return PeriodsOverlap(r.StartDate, r.EndDate, start, end)
}

// PeriodsOverlap reports whether two closed intervals share an instant.
func PeriodsOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aStart.After(bEnd) && !aEnd.Before(bStart)
}
