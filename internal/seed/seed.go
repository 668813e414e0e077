package seed

import (
	"context"
	"fmt"
	"log"
	"time"

	"gamelend/internal/models"
	"gamelend/internal/repository"
	"gamelend/internal/service"

	"gorm.io/gorm"
)

// Options configures a seeding run.
type Options struct {
	Members         int
	GamesPerMember  int
	Requests        int
	ApproveFraction float64
	Seed            int64
}

// Summary counts what a run created.
type Summary struct {
	Accounts int
	Games    int
	Requests int
	Approved int
	// Conflicts counts requests rejected because an approved loan covers them.
	Conflicts int
	// ApprovalConflicts counts created requests that could not be approved.
	ApprovalConflicts int
}

// Seeder fills a database with accounts, games and borrow traffic. Requests
// and approvals go through the services so the stored data obeys the same
// rules as live traffic.
type Seeder struct {
	db       *gorm.DB
	factory  *Factory
	requests *service.BorrowRequestService
	clock    service.Clock
}

// NewSeeder returns a Seeder bound to db.
func NewSeeder(db *gorm.DB, opts Options) *Seeder {
	clock := service.SystemClock{}
	requestRepo := repository.NewBorrowRequestRepository(db)
	recordRepo := repository.NewLendingRecordRepository(db)
	guard := service.NewGuard(requestRepo, recordRepo)
	records := service.NewLendingRecordService(db, recordRepo, guard, clock, service.NewULIDGen())

	return &Seeder{
		db:      db,
		factory: NewFactory(db, opts.Seed),
		requests: service.NewBorrowRequestService(db, requestRepo, repository.NewGameRepository(db),
			repository.NewAccountRepository(db), records, guard, clock),
		clock: clock,
	}
}

// ClearAll deletes every row the service owns, children first.
func (s *Seeder) ClearAll() error {
	tables := []interface{}{
		&models.LendingStatusChange{},
		&models.LendingRecord{},
		&models.BorrowRequest{},
		&models.Game{},
		&models.Account{},
	}
	for _, table := range tables {
		if err := s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(table).Error; err != nil {
			return fmt.Errorf("clear %T: %w", table, err)
		}
	}
	log.Println("Cleared existing data")
	return nil
}

// Run creates one admin, opts.Members members with their games and
// opts.Requests borrow requests, approving about opts.ApproveFraction of them.
// Requests that collide with an approved loan are counted and skipped.
func (s *Seeder) Run(ctx context.Context, opts Options) (Summary, error) {
	var summary Summary
	if opts.Members < 2 {
		return summary, fmt.Errorf("at least two members are required, got %d", opts.Members)
	}

	if _, err := s.factory.CreateAccount(models.RoleAdmin); err != nil {
		return summary, err
	}
	summary.Accounts++

	members := make([]*models.Account, 0, opts.Members)
	var games []*models.Game
	for i := 0; i < opts.Members; i++ {
		member, err := s.factory.CreateAccount(models.RoleMember)
		if err != nil {
			return summary, err
		}
		members = append(members, member)
		summary.Accounts++

		for j := 0; j < opts.GamesPerMember; j++ {
			game, err := s.factory.CreateGame(member)
			if err != nil {
				return summary, err
			}
			games = append(games, game)
			summary.Games++
		}
	}
	if len(games) == 0 {
		return summary, nil
	}

	owners := make(map[uint]*models.Account, len(members))
	for _, m := range members {
		owners[m.ID] = m
	}

	start := s.clock.Now().Add(24 * time.Hour).Truncate(24 * time.Hour)
	for i := 0; i < opts.Requests; i++ {
		game := games[i%len(games)]
		borrower := members[(i+1)%len(members)]
		if borrower.ID == game.OwnerID {
			borrower = members[(i+2)%len(members)]
		}

		from := start.AddDate(0, 0, s.factory.faker.Number(0, 60))
		to := from.AddDate(0, 0, s.factory.LoanDays())

		request, err := s.requests.Create(ctx, identityOf(borrower), game.ID, from, to)
		if models.IsCode(err, models.CodeConflict) {
			summary.Conflicts++
			continue
		}
		if err != nil {
			return summary, err
		}
		summary.Requests++

		if s.factory.faker.Float64Range(0, 1) >= opts.ApproveFraction {
			continue
		}
		_, err = s.requests.UpdateStatus(ctx, request.ID, models.BorrowRequestStatusApproved, identityOf(owners[game.OwnerID]))
		if models.IsCode(err, models.CodeConflict) {
			summary.ApprovalConflicts++
			continue
		}
		if err != nil {
			return summary, err
		}
		summary.Approved++
	}

	return summary, nil
}

func identityOf(account *models.Account) models.Identity {
	return models.Identity{
		AccountID: account.ID,
		Email:     account.Email,
		Roles:     []models.Role{account.Role},
	}
}
