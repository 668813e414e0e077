// Command main seeds a development database with demo lending data.
package main

import (
	"context"
	"flag"
	"log"

	"gamelend/internal/config"
	"gamelend/internal/database"
	"gamelend/internal/middleware"
	"gamelend/internal/seed"
)

func main() {
	members := flag.Int("members", 20, "Number of member accounts to create")
	games := flag.Int("games", 2, "Games per member")
	requests := flag.Int("requests", 60, "Borrow requests to attempt")
	approve := flag.Float64("approve", 0.4, "Fraction of requests to approve")
	fakerSeed := flag.Int64("seed", 0, "Faker seed, 0 for random")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed a production database")
	}
	middleware.InitMiddleware(cfg)

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	opts := seed.Options{
		Members:         *members,
		GamesPerMember:  *games,
		Requests:        *requests,
		ApproveFraction: *approve,
		Seed:            *fakerSeed,
	}
	s := seed.NewSeeder(db, opts)

	if *shouldClean {
		if err := s.ClearAll(); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
	}

	summary, err := s.Run(context.Background(), opts)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	log.Printf("Seeded %d accounts, %d games, %d requests (%d approved, %d conflicts, %d approval conflicts)",
		summary.Accounts, summary.Games, summary.Requests, summary.Approved, summary.Conflicts, summary.ApprovalConflicts)
}
