package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"go.uber.org/zap"

	"github.com/claimtech/dialler/internal/agents"
	"github.com/claimtech/dialler/internal/aging"
	"github.com/claimtech/dialler/internal/aibridge"
	"github.com/claimtech/dialler/internal/api/handlers"
	"github.com/claimtech/dialler/internal/lookup"
	"github.com/claimtech/dialler/internal/queue"
	"github.com/claimtech/dialler/internal/replica"
	"github.com/claimtech/dialler/internal/routing"
	"github.com/claimtech/dialler/internal/sessions"
	"github.com/claimtech/dialler/pkg/env"
	"github.com/claimtech/dialler/pkg/logger"
	"github.com/claimtech/dialler/pkg/messaging"
	"github.com/claimtech/dialler/pkg/middleware"
	"github.com/claimtech/dialler/pkg/mongo"
	"github.com/claimtech/dialler/pkg/otel"
	"github.com/claimtech/dialler/pkg/storage"
	"github.com/claimtech/dialler/pkg/twilio"
)

// DiallerServer combines the webhook boundary, the dashboard API and
// the background aging worker in one process.
type DiallerServer struct {
	cfg         *env.Config
	mongoClient *mongo.Client
	redisClient *redis.Client
	handler     *handlers.Handler
	aging       *aging.Scheduler
}

func main() {
	cfg, err := env.Load(".env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.LogLevel, cfg.AppEnv); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.OTELEnabled {
		shutdown, err := otel.InitTracing("dialler-server", "1.0.0", cfg.OTELEndpoint)
		if err != nil {
			logger.Log.Warn("Failed to initialize OpenTelemetry", zap.Error(err))
		} else {
			defer shutdown()
			logger.Log.Info("OpenTelemetry tracing enabled", zap.String("endpoint", cfg.OTELEndpoint))
		}
	}

	logger.Log.Info("Starting Dialler Server",
		zap.String("env", cfg.AppEnv),
		zap.String("port", cfg.AppPort),
	)

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Log.Fatal("Failed to parse Redis URL", zap.Error(err))
	}
	redisClient := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Log.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	mongoClient, err := mongo.NewClient(cfg.MongoURI, cfg.DBName)
	if err != nil {
		logger.Log.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoClient.Disconnect(ctx); err != nil {
			logger.Log.Warn("Failed to disconnect MongoDB", zap.Error(err))
		}
	}()

	rep, err := replica.Connect(context.Background(), cfg.ReplicaDatabaseURL)
	if err != nil {
		logger.Log.Fatal("Failed to connect to CRM replica", zap.Error(err))
	}
	defer rep.Close()

	twilioClient := twilio.NewClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken)

	storageDriver, err := storage.NewDriver(cfg.StorageDriver, cfg.TwilioAccountSID, cfg.LocalStoragePath)
	if err != nil {
		logger.Log.Fatal("Failed to create storage driver", zap.Error(err))
	}

	// Stores
	agentStore := agents.NewMongoStore(mongoClient)
	sessionStore := sessions.NewMongoStore(mongoClient,
		time.Duration(cfg.SessionLookupWindowMin)*time.Minute, agentStore)
	queueStore := queue.NewMongoStore(mongoClient)

	if err := queueStore.EnsureIndexes(context.Background()); err != nil {
		logger.Log.Fatal("Failed to ensure indexes", zap.Error(err))
	}
	if err := agentStore.EnsureSystemAgent(context.Background(), sessions.SystemAgentID); err != nil {
		logger.Log.Fatal("Failed to seed system agent", zap.Error(err))
	}

	// Routing pipeline
	lookupService := lookup.NewService(rep, sessionStore)
	resolver := agents.NewResolver(agentStore)
	streamURL := wsBaseURL(cfg.PublicBaseURL) + "/webhooks/voice/stream"
	router := routing.NewRouter(lookupService, resolver, sessionStore, queueStore, routing.Config{
		PublicBaseURL:  cfg.PublicBaseURL,
		PlatformNumber: cfg.TwilioCallerID,
		DialTimeoutSec: cfg.DialTimeoutSec,
		StreamURL:      streamURL,
		AIEnabled:      cfg.FeatureAIRouting,
		AIFirst:        cfg.AIRouteFirst,
	})

	// AI bridge
	linkService := messaging.NewMagicLinkService(mongoClient,
		smsSender{twilioClient, cfg.TwilioCallerID}, cfg.PortalBaseURL, cfg.MagicLinkTTLMin)
	dispatcher := aibridge.NewDispatcher(
		rep,
		queueStore,
		aibridge.MagicLinkSender{Service: linkService},
		aibridge.TwilioTransfer{Client: twilioClient},
		cfg.PublicBaseURL+"/webhooks/voice/transfer",
	)
	bridge := aibridge.NewBridge(dispatcher, sessionStore)

	// Aging
	agingScheduler := aging.NewScheduler(
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

	apiHandler := handlers.NewHandler(cfg, redisClient, mongoClient, rep,
		router, bridge, sessionStore, queueStore, agentStore, agingScheduler, storageDriver, twilioClient)

	server := &DiallerServer{
		cfg:         cfg,
		mongoClient: mongoClient,
		redisClient: redisClient,
		handler:     apiHandler,
		aging:       agingScheduler,
	}

	engine := server.setupRouter()

	workerCtx, stopWorker := context.WithCancel(context.Background())
	go server.startAgingWorker(workerCtx)

	srv := &http.Server{
		Addr:         ":" + cfg.AppPort,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Log.Info("Dialler Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down server...")
	stopWorker()

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Log.Info("Server exited")
}

func (s *DiallerServer) setupRouter() *gin.Engine {
	if s.cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.TraceMiddleware())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(1 << 20)) // 1 MB limit
	router.Use(middleware.MetricsMiddleware())

	if s.cfg.OTELEnabled {
		router.Use(otel.GinMiddleware())
	}

	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("[%s] %s %s %d %s\n",
			param.TimeStamp.Format(time.RFC3339),
			param.Method,
			param.Path,
			param.StatusCode,
			param.Latency,
		)
	}))

	corsConfig := cors.DefaultConfig()
	if s.cfg.CORSAllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = []string{s.cfg.CORSAllowedOrigins}
	}
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key"}
	router.Use(cors.New(corsConfig))

	rateLimiter := middleware.NewRateLimiter(s.redisClient, s.cfg.APIRateLimitRPM)

	router.GET("/health", s.handler.HealthCheck)
	router.GET("/ready", s.handler.ReadyCheck)
	router.GET("/metrics", s.handler.Metrics)
	router.GET("/metrics/prometheus", s.handler.PrometheusMetrics)

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", s.handler.Login)
	}

	// Dashboard API (protected)
	api := router.Group("/api")
	api.Use(middleware.AuthMiddleware(s.cfg.JWTSecret))
	api.Use(middleware.IdempotencyMiddleware(s.redisClient))
	api.Use(rateLimiter.Middleware())
	{
		agentSessions := api.Group("/agent-sessions")
		{
			agentSessions.POST("", s.handler.StartAgentSession)
			agentSessions.DELETE("/:id", s.handler.EndAgentSession)
			agentSessions.POST("/:id/heartbeat", s.handler.Heartbeat)
			agentSessions.PATCH("/:id/status", s.handler.UpdateSessionStatus)
		}

		api.GET("/queue", s.handler.ListQueue)
		api.POST("/queue/:id/assign", s.handler.AssignQueueEntry)

		calls := api.Group("/calls")
		{
			calls.GET("", s.handler.ListCalls)
			calls.POST("", s.handler.InitiateCall)
			calls.GET("/sid/:sid", middleware.ValidateSIDParam("sid"), s.handler.GetCallBySID)
			calls.POST("/:id/disposition", s.handler.RecordDisposition)
		}

		api.POST("/callbacks", s.handler.ScheduleCallback)
		api.GET("/recordings/:sid", middleware.ValidateSIDParam("sid"), s.handler.RecordingRedirect)

		api.POST("/jobs/aging/run", middleware.RoleMiddleware("admin", "manager"), s.handler.RunAging)
	}

	// Telephony webhooks (public, HMAC verified in the handlers)
	webhooks := router.Group("/webhooks/voice")
	{
		webhooks.POST("", s.handler.VoiceWebhook)
		webhooks.POST("/dial-result", s.handler.DialResultWebhook)
		webhooks.POST("/status", s.handler.StatusWebhook)
		webhooks.POST("/recording", s.handler.RecordingWebhook)
		webhooks.POST("/outbound", s.handler.OutboundWebhook)
		webhooks.POST("/transfer", s.handler.TransferWebhook)
		webhooks.GET("/transfer", s.handler.TransferWebhook)
		webhooks.GET("/stream", s.handler.AIStream)
	}

	return router
}

// startAgingWorker runs the aging job on an interval. Cron can hit the
// admin endpoint or run cmd/age-scores as well; the lease lock keeps
// those from overlapping with this ticker.
func (s *DiallerServer) startAgingWorker(ctx context.Context) {
	interval := time.Duration(s.cfg.AgingIntervalMin) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}
	logger.Log.Info("Aging worker started", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
			if _, err := s.aging.Run(runCtx); err != nil {
				logger.Log.Error("Aging run failed", zap.Error(err))
			}
			cancel()
		case <-ctx.Done():
			logger.Log.Info("Aging worker stopped")
			return
		}
	}
}

// smsSender adapts the provider client to the messaging interface
type smsSender struct {
	client *twilio.Client
	from   string
}

func (s smsSender) Send(ctx context.Context, to, body string) (string, error) {
	msg, err := s.client.SendSMS(ctx, s.from, to, body)
	if err != nil {
		return "", err
	}
	return msg.Sid, nil
}

// wsBaseURL rewrites the public https base for websocket connects
func wsBaseURL(base string) string {
	switch {
	case len(base) > 8 && base[:8] == "https://":
		return "wss://" + base[8:]
	case len(base) > 7 && base[:7] == "http://":
		return "ws://" + base[7:]
	default:
		return base
	}
}
