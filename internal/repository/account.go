// Package repository provides data access layer implementations for the application.
package repository

import (
	"context"

	"gamelend/internal/cache"
	"gamelend/internal/database"
	"gamelend/internal/models"
	"gamelend/internal/observability"

	"gorm.io/gorm"
)

// AccountRepository defines read access to community accounts.
type AccountRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Account, error)
	Create(ctx context.Context, account *models.Account) error
}

type accountRepository struct {
	db     *gorm.DB
	logger *observability.RepoLogger
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db, logger: observability.NewRepoLogger("accounts")}
}

func (r *accountRepository) GetByID(ctx context.Context, id uint) (*models.Account, error) {
	defer observability.TrackQuery("select", "accounts")()

	var account models.Account
	err := cache.Aside(ctx, cache.AccountKey(id), &account, cache.AccountTTL, func() error {
		if err := r.db.WithContext(ctx).First(&account, id).Error; err != nil {
			return notFoundOr(err, "Account", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) Create(ctx context.Context, account *models.Account) error {
	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		r.logger.LogError(ctx, err, "create")
		return database.MapError(err, "Account")
	}
	r.logger.LogCreate(ctx, map[string]interface{}{"account_id": account.ID})
	return nil
}
