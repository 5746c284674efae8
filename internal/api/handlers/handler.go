package handlers

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/claimtech/dialler/internal/agents"
	"github.com/claimtech/dialler/internal/aging"
	"github.com/claimtech/dialler/internal/aibridge"
	"github.com/claimtech/dialler/internal/queue"
	"github.com/claimtech/dialler/internal/replica"
	"github.com/claimtech/dialler/internal/routing"
	"github.com/claimtech/dialler/internal/sessions"
	"github.com/claimtech/dialler/pkg/env"
	"github.com/claimtech/dialler/pkg/logger"
	"github.com/claimtech/dialler/pkg/mongo"
	"github.com/claimtech/dialler/pkg/storage"
	"github.com/claimtech/dialler/pkg/twilio"
)

type Handler struct {
	cfg         *env.Config
	redisClient *redis.Client
	mongoClient *mongo.Client
	logger      *zap.Logger
	replica     *replica.PG
	router      *routing.Router
	bridge      *aibridge.Bridge
	sessions    *sessions.MongoStore
	queue       *queue.MongoStore
	agents      *agents.MongoStore
	aging       *aging.Scheduler
	storage     storage.Driver
	twilio      *twilio.Client
}

func NewHandler(
	cfg *env.Config,
	redisClient *redis.Client,
	mongoClient *mongo.Client,
	rep *replica.PG,
	router *routing.Router,
	bridge *aibridge.Bridge,
	sessionStore *sessions.MongoStore,
	queueStore *queue.MongoStore,
	agentStore *agents.MongoStore,
	agingScheduler *aging.Scheduler,
	storageDriver storage.Driver,
	twilioClient *twilio.Client,
) *Handler {
	return &Handler{
		cfg:         cfg,
		redisClient: redisClient,
		mongoClient: mongoClient,
		logger:      logger.Log,
		replica:     rep,
		router:      router,
		bridge:      bridge,
		sessions:    sessionStore,
		queue:       queueStore,
		agents:      agentStore,
		aging:       agingScheduler,
		storage:     storageDriver,
		twilio:      twilioClient,
	}
}
