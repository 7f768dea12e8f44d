package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"clips-service/internal/auth"
	"clips-service/internal/config"
	"clips-service/internal/db"
	"clips-service/internal/gql"
	"clips-service/internal/handlers"
	"clips-service/internal/middleware"
	"clips-service/internal/observability"
	"clips-service/internal/pubsub"
	"clips-service/internal/rabbitmq"
	"clips-service/internal/repositories"
	"clips-service/internal/telemetry"
	"clips-service/internal/ws"
)

func main() {
	cfg := config.Load()

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(context.Background(), cfg.OTLPEndpoint, cfg.Environment)
		if err != nil {
			log.Fatalf("failed to init tracing: %v", err)
		}
		defer func() {
			_ = shutdown(context.Background())
		}()
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, "clips-service", cfg.Environment)

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)

	userRepo := repositories.NewUserRepo(database)
	clipRepo := repositories.NewClipRepo(database)
	voteRepo := repositories.NewVoteRepo(database)

	registry := pubsub.NewRegistry()
	dispatcher := pubsub.NewDispatcher(registry)
	go dispatcher.Run(context.Background())

	executor, err := gql.NewExecutor(&gql.Resolver{
		Users:      userRepo,
		Clips:      clipRepo,
		Votes:      voteRepo,
		Tokens:     tokens,
		Dispatcher: dispatcher,
		Audit:      audit,
	})
	if err != nil {
		log.Fatalf("failed to build schema: %v", err)
	}

	graphqlHandler := handlers.NewGraphQLHandler(executor)
	wsHandler := ws.NewGraphQLWSHandler(executor, registry, tokens, audit, cfg.WSOutboundBuffer, cfg.KeepAliveInterval)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("clips-service"))
	router.Use(observability.HTTPMetricsMiddleware())

	identityMiddleware := middleware.IdentityMiddleware(tokens)

	router.POST("/graphql", identityMiddleware, graphqlHandler.Post)
	router.GET("/graphql", wsHandler.Handle)
	router.GET("/healthz", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterDebugRoutes(router, audit, cfg.DebugRoutes)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
