package models

import "time"

// Game is a physical game listed by its owner. Owned by the game directory.
type Game struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:200;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	OwnerID     uint      `gorm:"not null;index" json:"owner_id"`
	Owner       Account   `gorm:"foreignKey:OwnerID" json:"owner"`
	MinPlayers  int       `gorm:"not null;default:1" json:"min_players"`
	MaxPlayers  int       `gorm:"not null;default:1" json:"max_players"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Game) TableName() string {
	return "games"
}
