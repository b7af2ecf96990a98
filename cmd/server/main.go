package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/skulbus/skulbus-backend/internal/config"
	"github.com/skulbus/skulbus-backend/internal/database"
	"github.com/skulbus/skulbus-backend/internal/handlers"
	"github.com/skulbus/skulbus-backend/internal/middleware"
	"github.com/skulbus/skulbus-backend/internal/policy"
	"github.com/skulbus/skulbus-backend/internal/services"
	"github.com/skulbus/skulbus-backend/pkg/events"
	"github.com/skulbus/skulbus-backend/pkg/jwt"
	"github.com/skulbus/skulbus-backend/pkg/mpesa"
	"github.com/skulbus/skulbus-backend/pkg/obs"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting SkulBus booking backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	shutdownTracer, err := obs.InitTracer(context.Background(), obs.TracerConfig{
		ServiceName: cfg.Tracing.ServiceName,
		Version:     version,
		Environment: cfg.Server.Environment,
		Endpoint:    cfg.Tracing.Endpoint,
	})
	if err != nil {
		logger.Fatalf("Failed to initialize tracing: %v", err)
	}

	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Repositories
	tripRepository := database.NewTripRepository(db, cfg.Database.LockTimeout)
	bookingRepository := database.NewBookingRepository(db, tripRepository)
	paymentRepository := database.NewPaymentRepository(db, bookingRepository)
	studentRepository := database.NewStudentRepository(db)
	fleetRepository := database.NewFleetRepository(db)
	auditRepository := database.NewAuditLogRepository(db)

	// Event bus
	var publisher events.Publisher
	if cfg.Rabbit.URL != "" {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.Rabbit.URL, cfg.Rabbit.Exchange)
		if err != nil {
			logger.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		publisher = amqpPublisher
		logger.WithField("exchange", cfg.Rabbit.Exchange).Info("Publishing events to RabbitMQ")
	} else {
		publisher = events.NewLogPublisher(logger)
		logger.Info("RABBIT_URL not set, events will be logged only")
	}
	defer publisher.Close()

	// Payment gateway
	var gateway mpesa.Gateway
	if cfg.Payment.Mode == "production" {
		logger.Info("Initializing Daraja payment gateway in production mode...")
		gateway = mpesa.NewDarajaGateway(mpesa.DarajaConfig{
			BaseURL:        cfg.Payment.APIURL,
			ConsumerKey:    cfg.Payment.APIKey,
			ConsumerSecret: cfg.Payment.APISecret,
			Shortcode:      cfg.Payment.Shortcode,
			Passkey:        cfg.Payment.Passkey,
			CallbackURL:    cfg.Payment.CallbackURL,
			Timeout:        cfg.Payment.Timeout,
		})
	} else {
		logger.Info("Payment gateway running in dev mode (simulated charges)")
		gateway = mpesa.NewSimulatedGateway(cfg.Payment.FailNumbers, 0)
	}

	// Services
	retry := services.RetryPolicy{
		Attempts: cfg.Booking.RetryAttempts,
		Backoff:  cfg.Booking.RetryBackoff,
	}
	auditService := services.NewAuditService(auditRepository, logger)
	bookingService := services.NewBookingService(tripRepository, bookingRepository, studentRepository, publisher, retry, logger)
	paymentService := services.NewPaymentService(bookingRepository, paymentRepository, gateway, publisher, retry, logger)
	receiptService := services.NewReceiptService(paymentRepository)
	tripService := services.NewTripService(tripRepository, bookingRepository, fleetRepository, publisher, retry, logger)
	fleetService := services.NewFleetService(fleetRepository, logger)

	authorizer, err := policy.NewAuthorizer(context.Background())
	if err != nil {
		logger.Fatalf("Failed to compile authorization policy: %v", err)
	}
	jwtService := jwt.NewService(
		cfg.JWT.Secret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessTokenExpiry,
		cfg.JWT.RefreshTokenExpiry,
	)

	// Background jobs
	expirationService := services.NewExpirationService(
		bookingService,
		auditService,
		logger,
		cfg.Booking.PendingTimeout,
		cfg.Booking.ExpirySweepInterval,
	)
	expirationService.Start()
	logger.WithField("timeout", cfg.Booking.PendingTimeout.String()).Info("✓ Pending booking expiry started")

	cronService := services.NewCronService(tripRepository, cfg.Booking.OrphanTimeout, logger)
	if err := cronService.Start(cfg.Booking.OrphanSweepCron); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}
	logger.Info("✓ Cron service started - orphan reservation sweep enabled")

	// Handlers
	bookingHandler := handlers.NewBookingHandler(bookingService, paymentService, receiptService, auditService)
	tripHandler := handlers.NewTripHandler(tripService, auditService)
	fleetHandler := handlers.NewFleetHandler(fleetService, auditService)
	studentHandler := handlers.NewStudentHandler(studentRepository)
	adminHandler := handlers.NewAdminHandler(expirationService, cronService, auditService)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORS.AllowedOrigins) == 1 && cfg.CORS.AllowedOrigins[0] == "*" {
		corsConfig.AllowOrigins = nil
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", healthCheckHandler(db))

	authed := router.Group("/api/v1")
	authed.Use(middleware.AuthMiddleware(jwtService))
	{
		can := func(permission string) gin.HandlerFunc {
			return middleware.RequirePermission(authorizer, permission)
		}

		// Parent routes
		authed.POST("/students", can(policy.PermStudentsManage), studentHandler.CreateStudent)
		authed.GET("/students", can(policy.PermStudentsManage), studentHandler.ListStudents)
		authed.GET("/trips/bookable", can(policy.PermTripsBrowse), tripHandler.ListBookable)
		authed.POST("/bookings", can(policy.PermBookingsCreate), bookingHandler.CreateBooking)
		authed.GET("/bookings", can(policy.PermBookingsRead), bookingHandler.ListMyBookings)
		authed.GET("/bookings/:id", can(policy.PermBookingsRead), bookingHandler.GetBooking)
		authed.POST("/bookings/:id/cancel", can(policy.PermBookingsCancel), bookingHandler.CancelBooking)
		authed.POST("/bookings/:id/pay", can(policy.PermPaymentsCreate), bookingHandler.PayBooking)
		authed.GET("/bookings/:id/payments", can(policy.PermBookingsRead), bookingHandler.ListBookingPayments)
		authed.GET("/payments/:id/receipt", can(policy.PermPaymentsReceipt), bookingHandler.GetReceipt)

		sacco := authed.Group("/sacco")
		{
			sacco.POST("/vehicles", can(policy.PermFleetManage), fleetHandler.RegisterVehicle)
			sacco.POST("/drivers", can(policy.PermFleetManage), fleetHandler.RegisterDriver)

			trips := sacco.Group("/trips", can(policy.PermTripsManage))
			trips.POST("", tripHandler.CreateTrip)
			trips.GET("", tripHandler.ListSaccoTrips)
			trips.GET("/:id/bookings", tripHandler.ListTripBookings)
			trips.POST("/:id/start", tripHandler.StartTrip)
			trips.POST("/:id/complete", tripHandler.CompleteTrip)
			trips.POST("/:id/cancel", tripHandler.CancelTrip)
		}

		admin := authed.Group("/admin", can(policy.PermAdmin))
		{
			admin.GET("/approvals/pending", fleetHandler.PendingApprovals)
			admin.POST("/vehicles/:id/approve", fleetHandler.ApproveVehicle)
			admin.POST("/vehicles/:id/reject", fleetHandler.RejectVehicle)
			admin.POST("/drivers/:id/verify", fleetHandler.VerifyDriver)
			admin.POST("/bookings/expire", adminHandler.ExpireBookings)
			admin.POST("/bookings/:id/cancel", bookingHandler.CancelBooking)
			admin.GET("/bookings/:id/payments", bookingHandler.ListBookingPayments)
			admin.POST("/reservations/release-orphans", adminHandler.ReleaseOrphans)
			admin.GET("/cron/status", adminHandler.CronStatus)
			admin.GET("/audit/:entity_type/:entity_id", adminHandler.AuditTrail)
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Stopping background jobs...")
	expirationService.Stop()
	cronService.Stop()

	if err := shutdownTracer(ctx); err != nil {
		logger.Warnf("Failed to flush traces: %v", err)
	}

	logger.Info("Server exited successfully")
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"ip":         c.ClientIP(),
			"latency_ms": time.Since(start).Milliseconds(),
			"user_agent": c.Request.UserAgent(),
			"has_auth":   c.GetHeader("Authorization") != "",
		}

		if actor, ok := middleware.GetActor(c); ok {
			fields["user_id"] = actor.UserID.String()
			fields["role"] = string(actor.Role)
		}

		entry := logger.WithFields(fields)

		if len(c.Errors) > 0 {
			for i, err := range c.Errors {
				entry = entry.WithField(fmt.Sprintf("error_%d", i), err.Error())
			}
			entry.Error("Request failed with errors")
			return
		}

		status := c.Writer.Status()
		switch {
		case status >= 500:
			entry.Error("Request completed with server error")
		case status >= 400:
			entry.Warn("Request completed with client error")
		default:
			entry.Info("Request completed successfully")
		}
	}
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db database.Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
