// Command main runs the demo-data seeder for Parley.
package main

import (
	"context"
	"flag"
	"log"

	"parley/internal/bootstrap"
	"parley/internal/config"
	"parley/internal/seed"
)

func main() {
	numProfiles := flag.Int("profiles", 50, "Number of profiles to create")
	numConversations := flag.Int("conversations", 100, "Number of conversations to create")
	shouldClean := flag.Bool("clean", true, "Clean stores before seeding")
	flag.Parse()

	log.Println("Demo Data Seeder")
	log.Printf("Target: %d profiles, %d conversations, clean=%v\n", *numProfiles, *numConversations, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, mongoDB, _, err := bootstrap.InitRuntime(cfg, bootstrap.Options{Migrate: true})
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}

	ctx := context.Background()
	s := seed.NewSeeder(db, mongoDB)

	if *shouldClean {
		if err := s.ClearAll(ctx); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
	}

	profiles, err := s.SeedProfiles(ctx, *numProfiles)
	if err != nil {
		log.Fatalf("Profile seeding failed: %v", err)
	}
	if err := s.SeedConversations(ctx, profiles, *numConversations); err != nil {
		log.Fatalf("Conversation seeding failed: %v", err)
	}

	log.Println("All done! The stores are populated with demo data.")
}
