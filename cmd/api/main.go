package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"urbansprout/internal/cache"
	"urbansprout/internal/config"
	"urbansprout/internal/database"
	"urbansprout/internal/handler"
	"urbansprout/internal/middleware"
	"urbansprout/internal/monitor"
	"urbansprout/internal/redis"
	"urbansprout/internal/repository"
	"urbansprout/internal/service/auth"
	"urbansprout/internal/service/discount"
	"urbansprout/internal/service/notify"
	"urbansprout/internal/utils"
	"urbansprout/internal/ws"
	"urbansprout/pkg/lock"
	"urbansprout/pkg/log"
)

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to load config")
	}

	logConfig := log.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxAge:     cfg.Log.MaxAge,
		MaxBackups: cfg.Log.MaxBackups,
		Compress:   cfg.Log.Compress,
	}
	log.Init(logConfig)

	if err := database.Init(cfg); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to initialize database")
	}
	defer database.Close()

	if err := database.AutoMigrate(); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to run migrations")
	}

	if err := redis.Init(cfg); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to initialize redis")
	}
	defer redis.Close()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	db := database.GetDB()
	redisClient := redis.GetClient()

	metrics := monitor.NewMetricsCollector()

	tracer, err := monitor.NewTracer(&monitor.TracerConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: "1.0.0",
		Environment:    cfg.Server.Mode,
		JaegerEndpoint: cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
	})
	if err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to create tracer")
	}

	// Repositories
	userRepo := repository.NewUserRepository(db)
	notifRepo := repository.NewNotificationRepository(db)
	productRepo := repository.NewProductRepository(db)
	discountRepo := repository.NewDiscountRepository(db)

	// Product cache
	productCache, err := cache.NewProductCache(cfg.Cache.Product.Enabled, cfg.Cache.Product.TTL)
	if err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to create product cache")
	}

	// JWT
	jwtManager := utils.NewJWTManager(
		cfg.Security.JWT.Secret,
		cfg.Security.JWT.Issuer,
		cfg.Security.JWT.Expire,
		cfg.Security.JWT.RefreshTTL,
	)

	// Services
	authService := auth.NewAuthService(userRepo, jwtManager, redisClient, cfg.Security.JWT.Expire)

	hub := ws.NewHub(metrics)
	dispatcher := notify.NewDispatcher(notifRepo, hub, redisClient, metrics, tracer, cfg.Notify.UnreadCacheTTL)

	applicator := discount.NewApplicator(discountRepo, productRepo, productCache, dispatcher, metrics)

	scanLock := lock.NewRedisLock(redisClient, "discount:scan:lock", cfg.Discount.LockTTL)
	scheduler := discount.NewScheduler(discountRepo, applicator, scanLock, metrics, tracer,
		cfg.Discount.ScanInterval, cfg.Discount.ItemTimeout)

	// Shared token validator for REST and websocket
	tokenValidator := func(token string) (*middleware.UserInfo, error) {
		user, err := authService.ValidateToken(context.Background(), token)
		if err != nil {
			return nil, err
		}
		return &middleware.UserInfo{
			ID:       user.ID,
			Username: user.Username,
			Role:     user.Role,
		}, nil
	}

	router := setupRouter(cfg, tokenValidator, hub, dispatcher, applicator,
		productRepo, discountRepo, productCache, authService, metrics)

	schedulerCtx, schedulerCancel := context.WithCancel(context.Background())
	scheduler.Start(schedulerCtx)

	metricsCtx, metricsCancel := context.WithCancel(context.Background())
	go metrics.StartSystemMetricsCollection(metricsCtx)

	config.WatchConfig(func() {
		log.Info("configuration reloaded")
	})

	server := &http.Server{
		Addr:           cfg.Server.GetAddr(),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.WithFields(map[string]interface{}{
			"addr": server.Addr,
			"mode": cfg.Server.Mode,
		}).Info("Starting HTTP server")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithFields(map[string]interface{}{
				"error": err.Error(),
			}).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	schedulerCancel()
	scheduler.Stop()
	metricsCancel()
	hub.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Server forced to shutdown")
	}

	if err := tracer.Shutdown(ctx); err != nil {
		log.Warn("tracer shutdown failed", "error", err)
	}

	log.Info("Server exited")
}

func setupRouter(
	cfg *config.Config,
	tokenValidator middleware.TokenValidator,
	hub *ws.Hub,
	dispatcher notify.Dispatcher,
	applicator discount.Applicator,
	productRepo repository.ProductRepository,
	discountRepo repository.DiscountRepository,
	productCache *cache.ProductCache,
	authService auth.AuthService,
	metrics *monitor.MetricsCollector,
) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS())

	if cfg.Metrics.Enabled {
		router.Use(middleware.Metrics(metrics))
	}

	if cfg.Security.RateLimit.Enabled {
		router.Use(middleware.RateLimit(cfg.Security.RateLimit.RPS, cfg.Security.RateLimit.Burst))
	}

	router.GET("/health", healthCheck)

	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	// Handlers
	authHandler := handler.NewAuthHandler(authService)
	notificationHandler := handler.NewNotificationHandler(dispatcher)
	productHandler := handler.NewProductHandler(productRepo, productCache)
	discountHandler := handler.NewDiscountHandler(discountRepo, applicator, dispatcher)
	wsHandler := ws.NewHandler(hub, dispatcher, dispatcher, tokenValidator, cfg.Notify.SendBuffer)

	router.GET("/ws", wsHandler.ServeWS)

	// The websocket route stays outside the timeout group: its
	// connections are long lived.
	api := router.Group("/api")
	api.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	{
		v1 := api.Group("/v1")
		{
			authGroup := v1.Group("/auth")
			{
				authGroup.POST("/register", authHandler.Register)
				authGroup.POST("/login", authHandler.Login)
				authGroup.POST("/refresh", authHandler.RefreshToken)
			}

			v1.GET("/products", productHandler.List)
			v1.GET("/products/:id", productHandler.Get)

			protected := v1.Group("")
			protected.Use(middleware.Auth(tokenValidator))
			{
				protected.POST("/auth/logout", authHandler.Logout)

				notifications := protected.Group("/notifications")
				{
					notifications.GET("", notificationHandler.List)
					notifications.GET("/unread-count", notificationHandler.UnreadCount)
					notifications.PUT("/read-all", notificationHandler.MarkAllRead)
					notifications.PUT("/:id/read", notificationHandler.MarkRead)
					notifications.DELETE("/clear-all", notificationHandler.ClearAll)
					notifications.DELETE("/:id", notificationHandler.Delete)
				}
			}

			admin := v1.Group("/admin")
			admin.Use(middleware.RequireRole(tokenValidator, "admin"))
			{
				discounts := admin.Group("/discounts")
				{
					discounts.GET("", discountHandler.List)
					discounts.POST("", discountHandler.Create)
					discounts.GET("/upcoming", discountHandler.Upcoming)
					discounts.PUT("/:id", discountHandler.Update)
					discounts.DELETE("/:id", discountHandler.Delete)
					discounts.POST("/:id/apply-to-category", discountHandler.ApplyToCategory)
				}

				admin.POST("/products/:id/discount", discountHandler.ApplyToProduct)
				admin.DELETE("/products/:id/discount/:discountID", discountHandler.RemoveFromProduct)
			}
		}
	}

	return router
}

func healthCheck(c *gin.Context) {
	status := "ok"
	services := gin.H{
		"database": "ok",
		"redis":    "ok",
	}

	if err := database.Health(); err != nil {
		status = "degraded"
		services["database"] = err.Error()
	}
	if err := redis.Health(); err != nil {
		status = "degraded"
		services["redis"] = err.Error()
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().Unix(),
		"services":  services,
	})
}
