package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"rtchat-service/internal/auth"
	"rtchat-service/internal/chatlist"
	"rtchat-service/internal/config"
	"rtchat-service/internal/db"
	"rtchat-service/internal/handlers"
	"rtchat-service/internal/middleware"
	"rtchat-service/internal/observability"
	"rtchat-service/internal/rabbitmq"
	"rtchat-service/internal/repositories"
	"rtchat-service/internal/telemetry"
	"rtchat-service/internal/ws"
)

const serviceName = "rtchat-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	shutdownTracing, err := observability.InitTracing(context.Background(), serviceName, cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}
	if shutdownTracing != nil {
		defer shutdownTracing(context.Background())
	}

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AuditExchange)
	defer auditPublisher.Close()
	audit := telemetry.NewAuditEmitter(auditPublisher, "audit_log.chat", serviceName, cfg.Environment)

	if cfg.AMQPURL != "" {
		eventsPublisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.EventsExchange)
		if err != nil {
			log.Printf("ws event publishing disabled: %v", err)
		} else {
			defer eventsPublisher.Close()
			observability.SetEventBus(eventsPublisher)
		}
	}

	roomRepo := repositories.NewRoomRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	readStateRepo := repositories.NewReadStateRepo(database)
	userRepo := repositories.NewUserRepo(database)

	verifier := auth.NewVerifier(cfg.JWTSecret)
	hub := ws.NewHub()
	publisher := ws.NewPublisher(hub, messageRepo)
	aggregator := chatlist.NewAggregator(roomRepo, messageRepo, userRepo)

	gateway := ws.NewGateway(hub, publisher, roomRepo, userRepo, readStateRepo, verifier)
	chatHandler := handlers.NewChatHandler(roomRepo, messageRepo, readStateRepo, userRepo, aggregator, publisher, audit)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.GET("/chats", authMiddleware, chatHandler.ListChats)
	router.GET("/chats/filter/:filter_type", authMiddleware, chatHandler.FilterChats)
	router.POST("/chats/read", authMiddleware, chatHandler.MarkRead)
	router.POST("/chats/private", authMiddleware, chatHandler.StartPrivateChat)
	router.POST("/chats/group", authMiddleware, chatHandler.CreateGroupChat)
	router.GET("/chats/:room_type/:room_id/messages", authMiddleware, chatHandler.GetRoomMessages)
	router.POST("/chats/:room_type/:room_id/messages", authMiddleware, chatHandler.PostRoomMessage)
	router.DELETE("/chats/:room_type/:room_id/messages/:message_id", authMiddleware, chatHandler.DeleteMessage)
	router.POST("/chats/:room_type/:room_id/messages/:message_id/pin", authMiddleware, chatHandler.TogglePin)
	router.GET("/users/search", authMiddleware, chatHandler.SearchUsers)

	router.GET("/ws/chat/:room_type/:room_id", gateway.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDebugRoutes(router, audit, cfg.DebugRoutes)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
