package repository

import (
	"context"

	"gamelend/internal/database"
	"gamelend/internal/models"
	"gamelend/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GameRepository reads games listed in the game directory.
type GameRepository interface {
	FindGame(ctx context.Context, id uint) (*models.Game, error)
	Create(ctx context.Context, game *models.Game) error
	// LockForUpdate reads the game holding a row lock until the
	// surrounding transaction ends. Only meaningful on a tx handle.
	LockForUpdate(ctx context.Context, id uint) (*models.Game, error)
	WithTx(tx *gorm.DB) GameRepository
}

type gameRepository struct {
	db     *gorm.DB
	logger *observability.RepoLogger
}

// NewGameRepository creates and returns a new GameRepository instance.
func NewGameRepository(db *gorm.DB) GameRepository {
	return &gameRepository{db: db, logger: observability.NewRepoLogger("games")}
}

func (r *gameRepository) WithTx(tx *gorm.DB) GameRepository {
	return &gameRepository{db: tx, logger: r.logger}
}

func (r *gameRepository) FindGame(ctx context.Context, id uint) (*models.Game, error) {
	defer observability.TrackQuery("select", "games")()

	var game models.Game
	if err := r.db.WithContext(ctx).Preload("Owner").First(&game, id).Error; err != nil {
		return nil, notFoundOr(err, "Game", id)
	}
	return &game, nil
}

func (r *gameRepository) Create(ctx context.Context, game *models.Game) error {
	if err := r.db.WithContext(ctx).Create(game).Error; err != nil {
		r.logger.LogError(ctx, err, "create")
		return database.MapError(err, "Game")
	}
	r.logger.LogCreate(ctx, map[string]interface{}{"game_id": game.ID, "owner_id": game.OwnerID})
	return nil
}

func (r *gameRepository) LockForUpdate(ctx context.Context, id uint) (*models.Game, error) {
	defer observability.TrackQuery("lock", "games")()

	var game models.Game
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&game, id).Error; err != nil {
		return nil, notFoundOr(err, "Game", id)
	}
	return &game, nil
}
