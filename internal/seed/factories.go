// Package seed creates demo data for development databases.
package seed

import (
	"fmt"
	"strings"

	"gamelend/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

var boardGames = []string{
	"Catan", "Carcassonne", "Azul", "Wingspan", "Ticket to Ride", "Pandemic",
	"Cascadia", "Terraforming Mars", "Splendor", "Codenames", "Dixit", "7 Wonders",
	"Brass: Birmingham", "Everdell", "Root", "Spirit Island", "Patchwork", "Hanabi",
}

// Factory builds accounts and games and persists them.
type Factory struct {
	db    *gorm.DB
	faker *gofakeit.Faker
}

// NewFactory returns a Factory. A zero seed picks a random one.
func NewFactory(db *gorm.DB, seed int64) *Factory {
	return &Factory{db: db, faker: gofakeit.New(seed)}
}

// BuildAccount returns an unsaved account with a unique username and email.
func (f *Factory) BuildAccount(role models.Role) *models.Account {
	first := f.faker.FirstName()
	last := f.faker.LastName()
	suffix := f.faker.Numerify("####")
	username := strings.ToLower(fmt.Sprintf("%s_%s%s", first, last, suffix))
	return &models.Account{
		Username: username,
		Email:    fmt.Sprintf("%s@%s", username, f.faker.DomainName()),
		Role:     role,
	}
}

// CreateAccount persists a new account.
func (f *Factory) CreateAccount(role models.Role) (*models.Account, error) {
	account := f.BuildAccount(role)
	if err := f.db.Create(account).Error; err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	return account, nil
}

// BuildGame returns an unsaved game owned by owner.
func (f *Factory) BuildGame(owner *models.Account) *models.Game {
	minPlayers := f.faker.Number(1, 3)
	return &models.Game{
		Name:        boardGames[f.faker.Number(0, len(boardGames)-1)],
		Description: f.faker.Sentence(12),
		OwnerID:     owner.ID,
		MinPlayers:  minPlayers,
		MaxPlayers:  minPlayers + f.faker.Number(1, 4),
	}
}

// CreateGame persists a new game owned by owner.
func (f *Factory) CreateGame(owner *models.Account) (*models.Game, error) {
	game := f.BuildGame(owner)
	if err := f.db.Omit("Owner").Create(game).Error; err != nil {
		return nil, fmt.Errorf("create game: %w", err)
	}
	return game, nil
}

// LoanDays returns a loan length between one and two weeks.
func (f *Factory) LoanDays() int {
	return f.faker.Number(7, 14)
}

// Reason returns a short free-text reason for a status change.
func (f *Factory) Reason() string {
	return f.faker.Sentence(6)
}
