package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"realtime-chat/internal/auth"
	"realtime-chat/internal/config"
	"realtime-chat/internal/db"
	"realtime-chat/internal/handlers"
	"realtime-chat/internal/media"
	"realtime-chat/internal/middleware"
	"realtime-chat/internal/observability"
	"realtime-chat/internal/presence"
	"realtime-chat/internal/rabbitmq"
	"realtime-chat/internal/ratelimit"
	"realtime-chat/internal/repositories"
	"realtime-chat/internal/telemetry"
	"realtime-chat/internal/ws"
)

const serviceName = "realtime-chat"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	observability.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	shutdownTracing, err := observability.InitTracing(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(rabbitmq.Config{
		URL:            cfg.AMQPURL,
		Exchange:       cfg.AMQPExchange,
		ConnectionName: serviceName,
	})
	slog.Info("event publisher ready", "mode", rabbitmq.PublisherMode(publisher), "reason", rabbitmq.PublisherNoopReason(publisher))
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, "chat.audit", serviceName, cfg.Environment)

	verifier, err := auth.NewVerifier(auth.Config{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		Leeway:   cfg.JWTLeeway,
	})
	if err != nil {
		return err
	}

	convRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	userRepo := repositories.NewUserRepo(database)
	presenceRepo := repositories.NewPresenceRepo(database)

	registry := ws.NewRegistry()
	tracker := presence.NewTracker(presenceRepo, registry)
	if err := tracker.Reset(ctx); err != nil {
		slog.Warn("presence reset failed", "error", err)
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer redisClient.Close()
	}
	sendLimiter := ratelimit.New(redisClient, "chat:send", cfg.SendRateLimitPerMinute, time.Minute)
	connectLimiter := ratelimit.New(redisClient, "chat:connect", cfg.ConnectRateLimitPerMinute, time.Minute)

	var ingestor handlers.MediaIngestor
	if cfg.Media.Enabled() {
		store, err := media.NewMinioStore(ctx, media.MinioConfig{
			Endpoint:  cfg.Media.Endpoint,
			AccessKey: cfg.Media.AccessKey,
			SecretKey: cfg.Media.SecretKey,
			Bucket:    cfg.Media.Bucket,
			UseSSL:    cfg.Media.UseSSL,
			PublicURL: cfg.Media.PublicURL,
		})
		if err != nil {
			return err
		}
		ingestor = media.NewIngestor(store, cfg.Media.MaxBytes, cfg.Media.AllowedTypes)
	} else {
		slog.Warn("media storage not configured, attachments disabled")
	}

	gateway := ws.NewGateway(ws.GatewayDeps{
		Registry:      registry,
		Presence:      tracker,
		Conversations: convRepo,
		Messages:      messageRepo,
		Users:         userRepo,
		Verifier:      verifier,
		SendLimiter:   sendLimiter,
	})
	wsHandler := ws.NewHandler(gateway, ws.HandlerConfig{
		AuthTimeout:    cfg.AuthTimeout,
		ConnectLimiter: connectLimiter,
		Audit:          audit,
	})
	conversationHandler := handlers.NewConversationHandler(handlers.ConversationHandlerDeps{
		Conversations: convRepo,
		Messages:      messageRepo,
		Live:          gateway,
		Media:         ingestor,
		SendLimiter:   sendLimiter,
		Audit:         audit,
	})
	presenceHandler := handlers.NewPresenceHandler(userRepo, tracker, registry)

	if cfg.Environment != "local" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.RequestLogger())
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", wsHandler.Handle)

	api := router.Group("/", middleware.AuthMiddleware(verifier))
	api.GET("/conversations", conversationHandler.ListConversations)
	api.POST("/conversations", conversationHandler.StartConversation)
	api.POST("/conversations/group", conversationHandler.CreateGroup)
	api.GET("/conversations/:conversation_id/messages", conversationHandler.GetMessages)
	api.POST("/conversations/:conversation_id/messages", conversationHandler.PostMessage)
	api.POST("/messages", conversationHandler.SendToUser)
	api.DELETE("/messages/:message_id", conversationHandler.DeleteMessage)
	api.POST("/messages/:message_id/read", conversationHandler.MarkRead)
	api.GET("/users/online", presenceHandler.ListOnline)
	api.GET("/users/:user_id/presence", presenceHandler.GetPresence)
	handlers.RegisterDebugRoutes(api, audit, registry, cfg.DebugRoutes)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		if tErr := shutdownTracing(shutdownCtx); tErr != nil {
			slog.Warn("tracer shutdown failed", "error", tErr)
		}
		if pErr := publisher.Close(); pErr != nil {
			slog.Warn("publisher close failed", "error", pErr)
		}
		return err
	})
	return g.Wait()
}
