package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"dinepay/internal/handlers"
	"dinepay/internal/middleware"
	"dinepay/internal/models"
	"dinepay/internal/services"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	// Initialize Firebase
	credPath := os.Getenv("FIREBASE_CREDENTIALS_PATH")
	if credPath == "" {
		credPath = "./firebase-service-account.json"
	}

	authClient, err := services.InitFirebase(credPath)
	if err != nil {
		log.Printf("Warning: Firebase initialization failed: %v", err)
		log.Println("Staff endpoints will reject requests until valid credentials are provided")
	}

	// Initialize Database
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	db, err := services.InitDB(databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := services.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Redis is optional; caching and webhook fast-path dedup degrade
	// gracefully without it.
	var cache *services.RedisCache
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cache, err = services.NewRedisCache(redisURL)
		if err != nil {
			log.Printf("Warning: Redis connection failed: %v", err)
			cache = nil
		}
	}

	// Gateway adapters and services
	gateways := services.NewGatewayRegistryFromEnv()
	emailService := services.NewEmailService()
	paymentService := services.NewPaymentService(db, gateways)
	methodService := services.NewPaymentMethodService(db, gateways, cache)
	splitService := services.NewBillSplitService(db, emailService)
	webhookService := services.NewWebhookService(db, gateways, paymentService, cache)
	webhookService.AttachSplits(splitService)
	tipService := services.NewTipService(db)
	refundRequestService := services.NewRefundRequestService(db, paymentService, emailService, models.DefaultRefundPolicy())
	configService := services.NewConfigService(gateways, cache)

	// Create Echo instance
	e := echo.New()
	e.HTTPErrorHandler = middleware.CustomErrorHandler

	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())

	// Initialize handlers
	orderHandler := handlers.NewOrderHandler(db)
	paymentHandler := handlers.NewPaymentHandler(paymentService)
	methodHandler := handlers.NewPaymentMethodHandler(methodService)
	splitHandler := handlers.NewBillSplitHandler(splitService, paymentService)
	webhookHandler := handlers.NewWebhookHandler(webhookService)
	tipHandler := handlers.NewTipHandler(tipService)
	refundRequestHandler := handlers.NewRefundRequestHandler(refundRequestService)
	configHandler := handlers.NewConfigHandler(configService)

	// Gateway callbacks, verified by signature rather than auth
	e.POST("/webhooks/:gateway", webhookHandler.HandleWebhook)

	// Public split pages behind per-participant access tokens
	e.GET("/p/:token", splitHandler.ShowParticipant)
	e.POST("/p/:token/respond", splitHandler.RespondToInvitation)
	e.POST("/p/:token/pay", splitHandler.PayShare)

	// Staff API
	api := e.Group("/api")
	api.Use(middleware.RequireAuth(authClient))

	api.POST("/orders", orderHandler.CreateOrder)
	api.GET("/orders", orderHandler.ListOrders)
	api.GET("/orders/:id", orderHandler.GetOrder)

	api.POST("/orders/:id/payments", paymentHandler.CreatePayment)
	api.GET("/orders/:id/payments", paymentHandler.ListOrderPayments)
	api.GET("/payments/:id", paymentHandler.GetPayment)
	api.POST("/payments/:id/capture", paymentHandler.CapturePayment)
	api.POST("/payments/:id/cancel", paymentHandler.CancelPayment)
	api.POST("/payments/:id/sync", paymentHandler.SyncPayment)
	api.POST("/payments/:id/refunds", paymentHandler.CreateRefund)

	api.POST("/customers/:customerId/methods", methodHandler.SaveMethod)
	api.GET("/customers/:customerId/methods", methodHandler.ListMethods)
	api.POST("/customers/:customerId/methods/:methodId/default", methodHandler.SetDefault)
	api.DELETE("/customers/:customerId/methods/:methodId", methodHandler.DeleteMethod)

	api.POST("/orders/:id/splits", splitHandler.CreateSplit)
	api.GET("/splits/:id", splitHandler.GetSplit)
	api.POST("/splits/:id/cancel", splitHandler.CancelSplit)

	api.POST("/refund-requests", refundRequestHandler.CreateRequest)
	api.GET("/refund-requests", refundRequestHandler.ListPending)
	api.GET("/refund-requests/:id", refundRequestHandler.GetRequest)
	api.POST("/refund-requests/:id/review", refundRequestHandler.ReviewRequest)

	api.POST("/orders/:id/tips/distribute", tipHandler.DistributeTip)
	api.GET("/orders/:id/tips", tipHandler.ListDistributions)

	api.GET("/config/gateways", configHandler.GatewayConfig)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on port %s", port)
	e.Logger.Fatal(e.Start(":" + port))
}
