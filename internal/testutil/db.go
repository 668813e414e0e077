// Package testutil provides shared fixtures for tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"gamelend/internal/database"
	"gamelend/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a migrated in-memory SQLite database. The pool is capped at
// one connection so every handle sees the same database and concurrent
// transactions queue behind each other.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// SQLite ignores FOR UPDATE; with one connection transactions run one
	// after another, so tests see the overlap re-check and not the row lock.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// CreateAccount inserts an account with a unique username.
func CreateAccount(t *testing.T, db *gorm.DB, name string, role models.Role) *models.Account {
	t.Helper()
	if role == "" {
		role = models.RoleMember
	}
	ts := time.Now().UnixNano()
	account := &models.Account{
		Username: fmt.Sprintf("%s_%d", name, ts),
		Email:    fmt.Sprintf("%s_%d@example.com", name, ts),
		Role:     role,
	}
	require.NoError(t, db.Create(account).Error)
	return account
}

// CreateGame inserts a game owned by owner.
func CreateGame(t *testing.T, db *gorm.DB, owner *models.Account, name string) *models.Game {
	t.Helper()
	game := &models.Game{
		Name:       name,
		OwnerID:    owner.ID,
		MinPlayers: 2,
		MaxPlayers: 4,
	}
	require.NoError(t, db.Omit("Owner").Create(game).Error)
	return game
}

// Identity returns the caller identity of account.
func Identity(account *models.Account) models.Identity {
	return models.Identity{
		AccountID: account.ID,
		Email:     account.Email,
		Roles:     []models.Role{account.Role},
	}
}

// Day returns midnight UTC n days after a fixed reference date.
func Day(n int) time.Time {
	return time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}
