package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/tiendaluna/pos_backend/config"
	"github.com/tiendaluna/pos_backend/models"
)

// One-shot sweep of stale reservations, for cron setups where the in-process
// sweeper is disabled.
func main() {
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall run timeout.")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	logger := config.GetLogger()
	cache := models.NewRedisInventoryCache(logger)
	ledger := models.NewInventoryLedger(db, cache, logger)

	expired, err := ledger.ExpireStaleReservations(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sweep failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("expired %d reservations\n", expired)
}
