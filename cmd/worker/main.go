package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kiosk/internal/attendance"
	"kiosk/internal/config"
	"kiosk/internal/directory"
	"kiosk/internal/queue"
	"kiosk/internal/store"
	"kiosk/internal/timekey"
)

// Worker consumes tap messages to keep the tapped month's cache warm and
// runs the end-of-day forced checkout sweep.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.TapQueue
	if cfg.QueueBackend == "memory" {
		q = queue.NewMemory(64)
	} else {
		q = queue.NewRedis(redisClient.Client, "")
	}

	dir := directory.NewPostgres(db.Client)
	logs := attendance.NewTieredLogStore(
		attendance.NewPostgresShard(db.Client),
		attendance.NewPostgresLegacy(db.Client),
	)
	var cache attendance.CacheStore
	if cfg.CacheBackend == "memory" {
		cache = attendance.NewMemoryCache()
	} else {
		cache = attendance.NewRedisCache(redisClient.Client)
	}
	daily := attendance.NewDailyAggregator(logs, dir)
	monthly := attendance.NewMonthlyCacheManager(logs, dir, daily, cache)
	sweep := attendance.NewForcedCheckout(dir, logs)

	if cfg.ForcedCheckoutAt != "" {
		go runSweepSchedule(ctx, cfg.ForcedCheckoutAt, sweep, monthly)
	}

	events, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for tap events...")
	for ev := range events {
		date, err := timekey.ParseDateKey(ev.DateKey)
		if err != nil {
			log.Printf("bad date key %q: %v", ev.DateKey, err)
			continue
		}

		// A tap changed the month's log population; recompute now so the
		// next dashboard view hits a fresh cache.
		if _, err := monthly.MonthStats(ctx, date.Year(), date.Month()); err != nil {
			log.Printf("cache warm for %s failed: %v", ev.DateKey, err)
			continue
		}
		log.Printf("cache warmed for %04d-%02d", date.Year(), int(date.Month()))
	}

	log.Println("worker stopped")
}

// runSweepSchedule fires the forced checkout once per day at the configured
// local wall-clock time.
func runSweepSchedule(ctx context.Context, at string, sweep *attendance.ForcedCheckout, monthly *attendance.MonthlyCacheManager) {
	target, err := time.Parse("15:04", at)
	if err != nil {
		log.Printf("invalid FORCED_CHECKOUT_AT %q: %v", at, err)
		return
	}
	for {
		now := time.Now()
		next := time.Date(now.Year(), now.Month(), now.Day(), target.Hour(), target.Minute(), 0, 0, now.Location())
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		select {
		case <-time.After(next.Sub(now)):
		case <-ctx.Done():
			return
		}

		res, err := sweep.Run(ctx)
		if err != nil {
			log.Printf("forced checkout failed: %v", err)
			continue
		}
		log.Printf("forced checkout done: swept=%d no_action=%d failed=%d", res.Swept, res.NoAction, res.Failed)

		if res.Swept > 0 {
			if _, err := monthly.MonthStats(ctx, next.Year(), next.Month()); err != nil {
				log.Printf("post-sweep cache warm failed: %v", err)
			}
		}
	}
}
