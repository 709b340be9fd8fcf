package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/aether-labs/aether/internal/api"
	"github.com/aether-labs/aether/internal/audit"
	"github.com/aether-labs/aether/internal/auth"
	"github.com/aether-labs/aether/internal/billing"
	"github.com/aether-labs/aether/internal/config"
	"github.com/aether-labs/aether/internal/conversation"
	"github.com/aether-labs/aether/internal/database"
	"github.com/aether-labs/aether/internal/events"
	"github.com/aether-labs/aether/internal/insight"
	"github.com/aether-labs/aether/internal/llm"
	"github.com/aether-labs/aether/internal/middleware"
	iredis "github.com/aether-labs/aether/internal/redis"
	"github.com/aether-labs/aether/internal/server"
	"github.com/aether-labs/aether/internal/tier"
	"github.com/aether-labs/aether/internal/users"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	ctx := context.Background()

	// PostgreSQL
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.RunMigrations(cfg.DB.DSN(), "migrations"); err != nil {
		slog.Error("running migrations", "error", err)
		os.Exit(1)
	}

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// NATS (optional)
	var natsClient *events.Client
	var publisher *events.Publisher
	if cfg.NATS.Enabled {
		natsClient, err = events.NewClient(ctx, cfg.NATS)
		if err != nil {
			slog.Error("connecting to NATS", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()
		publisher = events.NewPublisher(natsClient.JetStream())
	} else {
		slog.Info("NATS disabled, events will not be published")
	}

	// Auth
	jwtManager := auth.NewJWTManager(
		cfg.JWT.AccessSecret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)
	authSvc := auth.NewService(jwtManager, redisClient)
	userRepo := users.NewRepository(pool)
	userSvc := users.NewService(userRepo)
	authHandler := auth.NewHandler(authSvc, userSvc)

	// Usage
	usageSvc := tier.NewService(tier.NewRepository(pool), tier.PolicyFromConfig(cfg.Usage))
	usageHandler := tier.NewHandler(usageSvc)

	// LLM
	llmClient := llm.NewOpenRouter(cfg.OpenRouter)
	models := llm.Models{
		Chat:      cfg.OpenRouter.ChatModel,
		Premium:   cfg.OpenRouter.PremiumModel,
		Vision:    cfg.OpenRouter.VisionModel,
		Embedding: cfg.OpenRouter.EmbeddingModel,
	}

	// Conversations
	shortTerm := conversation.NewShortTermStore(redisClient,
		cfg.Chat.MaxContextMessages, time.Duration(cfg.Chat.ContextTTLSec)*time.Second)
	convSvc := conversation.NewService(
		conversation.NewPostgresRepository(pool), shortTerm, llmClient, models, usageSvc, publisher)
	convHandler := conversation.NewHandler(convSvc)

	// Insights
	generator := insight.NewGenerator(llmClient, cfg.OpenRouter.ChatModel,
		cfg.Insights.MaxAttempts, cfg.Insights.BaseDelay, cfg.Insights.AttemptTimeout)
	insightSvc := insight.NewService(insight.NewRepository(pool), usageSvc, generator,
		convSvc, publisher, cfg.Insights.Cooldown, cfg.Insights.CategoryCooldown)
	insightHandler := insight.NewHandler(insightSvc)

	// Billing
	billingSvc := billing.NewService(userSvc, cfg.Stripe, publisher)
	billingHandler := billing.NewHandler(billingSvc)

	// Audit
	auditRepo := audit.NewRepository(pool)
	auditHandler := audit.NewHandler(auditRepo)

	if natsClient != nil {
		consumerMgr := events.NewConsumerManager(natsClient.JetStream())
		auditConsumer := audit.NewConsumer(auditRepo, consumerMgr)
		consumerCtx, cancelConsumer := context.WithCancel(ctx)
		defer cancelConsumer()
		go func() {
			if err := auditConsumer.Start(consumerCtx); err != nil {
				slog.Error("audit consumer stopped", "error", err)
			}
		}()
	}

	// Router
	router := api.NewRouter(pool, natsClient, api.RouterConfig{
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
		AuthRateLimiter:    middleware.NewRateLimiter(redisClient, "auth", 10, 60).Middleware,
		ChatRateLimiter:    middleware.NewRateLimiter(redisClient, "chat", 30, 60).Middleware,
	}, api.HandlerSet{
		Register: authHandler.Register,
		Login:    authHandler.Login,
		Refresh:  authHandler.Refresh,
		Logout:   authHandler.Logout,
		Me:       authHandler.Me,

		GetUsage: usageHandler.GetUsage,

		CreateConversation: convHandler.Create,
		ListConversations:  convHandler.List,
		GetConversation:    convHandler.Get,
		RenameConversation: convHandler.Rename,
		DeleteConversation: convHandler.Delete,
		ListMessages:       convHandler.ListMessages,
		SendMessage:        convHandler.SendMessage,
		SearchMessages:     convHandler.Search,

		GenerateInsight:  insightHandler.Generate,
		InsightCooldowns: insightHandler.Cooldowns,

		BillingCheckout: billingHandler.Checkout,
		BillingPortal:   billingHandler.Portal,
		BillingWebhook:  billingHandler.Webhook,

		ListAuditLogs: auditHandler.List,

		AuthMiddleware: auth.Middleware(authSvc),
	})

	// Start server
	srv := server.New(cfg.Server, router)
	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
