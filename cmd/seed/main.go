package main

import (
	"flag"
	"log"

	"github.com/oggyb/swap-market/internal/config"
	"github.com/oggyb/swap-market/internal/db"
)

func main() {
	minimal := flag.Bool("minimal", false, "seed the small deterministic dataset instead of the demo data")
	flag.Parse()

	// Load configuration
	cfg := config.New()

	database, err := db.NewDB(cfg)
	if err != nil {
		log.Fatalf("failed to init db: %v", err)
	}

	seed := db.SeedTestData
	if *minimal {
		seed = db.SeedMinimalTestData
	}
	if err := seed(database); err != nil {
		log.Fatalf("failed to seed: %v", err)
	}

	log.Println("Seeding completed.")
}
