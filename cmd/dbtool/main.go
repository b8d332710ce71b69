package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"strings"
	"time"

	"driver-nav-service/internal/adapters/cache"
	"driver-nav-service/internal/config"
	"driver-nav-service/internal/platform/db"

	"github.com/joho/godotenv"
)

// dbtool prepares the Postgres road cell table and optionally prunes cells
// older than -prune.
func main() {
	prune := flag.Duration("prune", 0, "delete road cells fetched longer ago than this (0 keeps all)")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	databaseURL := config.Get("DATABASE_URL", "")
	if strings.TrimSpace(databaseURL) == "" {
		log.Fatal("DATABASE_URL is required")
	}

	conn, err := db.Open(databaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := initAndPrune(ctx, conn, *prune); err != nil {
		log.Fatal(err)
	}
}

func initAndPrune(ctx context.Context, conn *sql.DB, prune time.Duration) error {
	log.Println("Initializing database schema...")
	if err := cache.InitSchema(ctx, conn); err != nil {
		return err
	}
	log.Println("Schema ready.")

	if prune <= 0 {
		return nil
	}

	log.Printf("Pruning road cells older than %s...", prune)
	n, err := cache.NewSQLRoadCellStore(conn, nil).PruneBefore(ctx, time.Now().Add(-prune))
	if err != nil {
		return err
	}
	log.Printf("Pruned %d road cells.", n)

	return nil
}
