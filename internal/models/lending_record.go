package models

import "time"

// LendingStatus is the state of a physical loan.
type LendingStatus string

const (
	// LendingStatusActive indicates the game is out with the borrower.
	LendingStatusActive LendingStatus = "ACTIVE"
	// LendingStatusOverdue indicates the end date passed or the borrower reported a return.
	LendingStatusOverdue LendingStatus = "OVERDUE"
	// LendingStatusClosed indicates the owner confirmed the return. Terminal.
	LendingStatusClosed LendingStatus = "CLOSED"
)

// MaxDamageSeverity is the top of the damage severity scale.
const MaxDamageSeverity = 5

var lendingStatusRank = map[LendingStatus]int{
	LendingStatusActive:  0,
	LendingStatusOverdue: 1,
	LendingStatusClosed:  2,
}

// ParseLendingStatus converts raw input into a known status.
func ParseLendingStatus(raw string) (LendingStatus, bool) {
	s := LendingStatus(raw)
	_, ok := lendingStatusRank[s]
	return s, ok
}

// CanTransition reports whether a record may move from one status to another.
// Only strictly forward moves are legal and nothing leaves CLOSED.
func (from LendingStatus) CanTransition(to LendingStatus) bool {
	fromRank, ok := lendingStatusRank[from]
	if !ok || from == LendingStatusClosed {
		return false
	}
	toRank, ok := lendingStatusRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

// LendingRecord is the loan materialized from an approved borrow request.
type LendingRecord struct {
	ID               uint          `gorm:"primaryKey" json:"id"`
	Reference        string        `gorm:"size:26;uniqueIndex;not null" json:"reference"`
	RequestID        uint          `gorm:"not null;uniqueIndex" json:"request_id"`
	Request          BorrowRequest `gorm:"foreignKey:RequestID" json:"request"`
	RecordOwnerID    uint          `gorm:"not null;index" json:"record_owner_id"`
	RecordOwner      Account       `gorm:"foreignKey:RecordOwnerID" json:"record_owner"`
	BorrowerID       uint          `gorm:"not null;index" json:"borrower_id"`
	StartDate        time.Time     `gorm:"not null" json:"start_date"`
	EndDate          time.Time     `gorm:"not null;index:idx_lending_records_status_end" json:"end_date"`
	Status           LendingStatus `gorm:"type:varchar(20);not null;default:'ACTIVE';index:idx_lending_records_status_end" json:"status"`
	IsDamaged        bool          `gorm:"not null;default:false" json:"is_damaged"`
	DamageNotes      string        `gorm:"type:text" json:"damage_notes,omitempty"`
	DamageSeverity   *int          `json:"damage_severity,omitempty"`
	ClosedAt         *time.Time    `json:"closed_at,omitempty"`
	LastModifiedByID *uint         `json:"last_modified_by_id,omitempty"`
	LastStatusReason string        `gorm:"type:text" json:"last_status_reason,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (LendingRecord) TableName() string {
	return "lending_records"
}

// DamageAssessment is the condition recorded when a loan is closed.
type DamageAssessment struct {
	IsDamaged bool
	Notes     string
	Severity  *int
}

// LendingStatusChange is one audited transition of a lending record.
// ActorID 0 marks a system actor such as the overdue sweep.
type LendingStatusChange struct {
	ID         uint          `gorm:"primaryKey" json:"id"`
	RecordID   uint          `gorm:"not null;index" json:"record_id"`
	FromStatus LendingStatus `gorm:"type:varchar(20);not null" json:"from_status"`
	ToStatus   LendingStatus `gorm:"type:varchar(20);not null" json:"to_status"`
	ActorID    uint          `gorm:"not null" json:"actor_id"`
	Reason     string        `gorm:"type:text" json:"reason"`
	CreatedAt  time.Time     `json:"created_at"`
}

// TableName specifies the table name for GORM
func (LendingStatusChange) TableName() string {
	return "lending_status_changes"
}
