// check-call prints everything the platform knows about one call SID:
// the session, its queue entries and recorded outcomes. An operator
// debugging tool.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/claimtech/dialler/internal/agents"
	"github.com/claimtech/dialler/internal/queue"
	"github.com/claimtech/dialler/internal/sessions"
	"github.com/claimtech/dialler/pkg/env"
	"github.com/claimtech/dialler/pkg/logger"
	"github.com/claimtech/dialler/pkg/mongo"
)

func main() {
	sid := flag.String("sid", "", "provider call SID to inspect")
	flag.Parse()
	if *sid == "" {
		log.Fatal("usage: check-call -sid CAxxxxxxxx")
	}

	cfg, err := env.Load(".env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := logger.Init("error", cfg.AppEnv); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	mongoClient, err := mongo.NewClient(cfg.MongoURI, cfg.DBName)
	if err != nil {
		logger.Log.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sessionStore := sessions.NewMongoStore(mongoClient,
		time.Duration(cfg.SessionLookupWindowMin)*time.Minute, agents.NewMongoStore(mongoClient))

	session, err := sessionStore.FindBySID(ctx, *sid)
	if err != nil {
		logger.Log.Fatal("Session lookup failed", zap.Error(err))
	}
	if session == nil {
		log.Fatalf("no session found for SID %s", *sid)
	}

	report := map[string]interface{}{"session": session}

	var outcomes []queue.Outcome
	if err := mongoClient.NewQuery("call_outcomes").
		Eq("call_session_id", session.ID).
		Sort("created_at", false).
		FindInto(ctx, &outcomes); err == nil && len(outcomes) > 0 {
		report["outcomes"] = outcomes
	}

	if session.UserID != 0 {
		var entries []queue.Entry
		if err := mongoClient.NewQuery("call_queue").
			Eq("user_id", session.UserID).
			Sort("created_at", false).
			Limit(10).
			FindInto(ctx, &entries); err == nil && len(entries) > 0 {
			report["queue_entries"] = entries
		}

		queueStore := queue.NewMongoStore(mongoClient)
		if score, err := queueStore.ScoreForUser(ctx, session.UserID); err == nil && score != nil {
			report["user_score"] = score
		}
	}

	out, _ := json.MarshalIndent(report, "", "  ")
	os.Stdout.Write(out)
	os.Stdout.WriteString("\n")
}
