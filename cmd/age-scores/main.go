// age-scores runs one score aging pass and exits. Meant for external
// cron; the lease lock keeps it from overlapping the in-server worker.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/claimtech/dialler/internal/aging"
	"github.com/claimtech/dialler/pkg/env"
	"github.com/claimtech/dialler/pkg/logger"
	"github.com/claimtech/dialler/pkg/mongo"
)

func main() {
	cfg, err := env.Load(".env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := logger.Init(cfg.LogLevel, cfg.AppEnv); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Log.Fatal("Failed to parse Redis URL", zap.Error(err))
	}
	redisClient := redis.NewClient(opt)

	mongoClient, err := mongo.NewClient(cfg.MongoURI, cfg.DBName)
	if err != nil {
		logger.Log.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()

	scheduler := aging.NewScheduler(
		aging.NewMongoStore(mongoClient),
		aging.NewRedisLock(redisClient),
		aging.Config{
			Step:          cfg.AgingIncrement,
			BatchSize:     int64(cfg.AgingBatchSize),
			MinAge:        time.Duration(cfg.AgingMinRecordAgeDays) * 24 * time.Hour,
			SafetyAge:     time.Duration(cfg.AgingSafetyMinAgeHours * float64(time.Hour)),
			WallBudget:    time.Duration(cfg.AgingWallBudgetMin) * time.Minute,
			WindowHour:    cfg.AgingWindowHour,
			EnforceWindow: cfg.AgingWindowEnforced,
		},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	summary, err := scheduler.Run(ctx)
	if err != nil {
		logger.Log.Error("Aging run failed", zap.Error(err))
	}

	// The summary carries partial progress even on failure; cron
	// operators need those counts either way.
	if summary != nil {
		out, _ := json.MarshalIndent(summary, "", "  ")
		os.Stdout.Write(out)
		os.Stdout.WriteString("\n")
	}

	if err != nil || summary == nil || summary.Aborted {
		os.Exit(1)
	}
}
