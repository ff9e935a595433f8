package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/velsoria/argus/internal/camera"
	"github.com/velsoria/argus/internal/clients/worker"
	"github.com/velsoria/argus/internal/config"
	"github.com/velsoria/argus/internal/events"
	"github.com/velsoria/argus/internal/http/handlers"
	"github.com/velsoria/argus/internal/http/middleware"
	"github.com/velsoria/argus/internal/realtime"
	"github.com/velsoria/argus/internal/storage"
	"github.com/velsoria/argus/lib/logger/slogpretty"
)

func main() {
	dotenvErr := godotenv.Load(".env")
	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)
	log.Info("starting argus api server")
	if dotenvErr != nil {
		log.Warn(".env not loaded", slog.String("err", dotenvErr.Error()))
	}

	if cfg.AppSecret == "" {
		log.Error("APP_SECRET is not configured (set app_secret in config or APP_SECRET env)")
		os.Exit(1)
	}
	if cfg.InternalAPIKey == "" {
		log.Error("INTERNAL_API_KEY is not configured")
		os.Exit(1)
	}
	if cfg.TokenTTL <= 0 {
		log.Error("token_ttl must be greater than zero")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(cfg.Storage.Path)
	if err != nil {
		log.Error("failed to open storage", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	workerClient, err := worker.New(cfg.Worker.BaseURL, cfg.InternalAPIKey, cfg.Worker.Timeout)
	if err != nil {
		log.Error("failed to init worker client", slog.String("err", err.Error()))
		os.Exit(1)
	}

	registry := events.NewRegistry()
	hub := events.NewHub(registry, log)
	coordinator := camera.New(log, store, workerClient, hub, cfg.Worker.Timeout)
	gateway := realtime.New(log, registry, cfg.AppSecret,
		cfg.Realtime.SendBuffer, cfg.Realtime.PingInterval, cfg.Realtime.AllowedOrigins)

	authHandler := handlers.NewAuthHandler(log, store, cfg.AppSecret, cfg.TokenTTL)
	cameraHandler := handlers.NewCameraHandler(log, store, coordinator)
	alertHandler := handlers.NewAlertHandler(log, coordinator)
	authMiddleware := middleware.AuthMiddleware(cfg.AppSecret)
	internalMiddleware := middleware.InternalKeyMiddleware(cfg.InternalAPIKey)

	router := setupRouter(cfg.Env, log, authHandler, cameraHandler, alertHandler, gateway, authMiddleware, internalMiddleware)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown error", slog.String("err", err.Error()))
		}
	}()

	log.Info("http server listening", slog.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server stopped", slog.String("err", err.Error()))
	}

	coordinator.Wait()
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		status := c.Writer.Status()
		msg := "request completed"
		if status >= http.StatusBadRequest {
			log.Warn(msg,
				slog.String("method", c.Request.Method),
				slog.String("path", c.Request.URL.Path),
				slog.Int("status", status),
				slog.Duration("duration", duration),
				slog.String("client", c.ClientIP()),
				slog.String("error", c.Errors.String()),
			)
			return
		}
		log.Info(msg,
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			slog.Duration("duration", duration),
			slog.String("client", c.ClientIP()),
		)
	}
}

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}

func setupRouter(
	env string,
	log *slog.Logger,
	authHandler *handlers.AuthHandler,
	cameraHandler *handlers.CameraHandler,
	alertHandler *handlers.AlertHandler,
	gateway *realtime.Gateway,
	authMiddleware gin.HandlerFunc,
	internalMiddleware gin.HandlerFunc,
) *gin.Engine {
	mode := gin.ReleaseMode
	if env == envLocal {
		mode = gin.DebugMode
	}
	gin.SetMode(mode)

	router := gin.New()
	config := cors.DefaultConfig()
	config.AllowOrigins = []string{
		"http://localhost:3000",
	}
	config.AllowCredentials = true
	config.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"Origin",
		"Accept",
		"X-Internal-Key",
	}
	config.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	router.Use(cors.New(config))
	router.Use(gin.Recovery())
	router.Use(requestLogger(log))

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	router.GET("/ws", gateway.Handle)

	auth := router.Group("/api/auth")
	{
		auth.POST("/login", authHandler.Login)
	}

	cameras := router.Group("/api/cameras")
	cameras.Use(authMiddleware)
	{
		cameras.GET("", cameraHandler.ListCameras)
		cameras.POST("", cameraHandler.CreateCamera)
		cameras.GET("/:id", cameraHandler.GetCamera)
		cameras.PUT("/:id", cameraHandler.UpdateCamera)
		cameras.DELETE("/:id", cameraHandler.DeleteCamera)
		cameras.POST("/:id/start", cameraHandler.StartCamera)
		cameras.POST("/:id/stop", cameraHandler.StopCamera)
		cameras.GET("/:id/alerts", cameraHandler.ListAlerts)
	}

	alerts := router.Group("/api/alerts")
	alerts.Use(internalMiddleware)
	{
		alerts.POST("", alertHandler.IngestAlert)
	}

	return router
}
