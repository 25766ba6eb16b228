package main

import (
	"log"
	"net/http"
	"time"

	"kcb-payments-workbench/internal/app"
	"kcb-payments-workbench/internal/config"
	"kcb-payments-workbench/internal/logging"
	"kcb-payments-workbench/internal/routes"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on system env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer logger.Sync()

	backend, err := app.NewBackend(cfg, logger)
	if err != nil {
		logger.Fatal("backend", zap.Error(err))
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), logging.Middleware(logger))
	// CORS config
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Signature"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, routes.Deps{
		Client:         backend.Client,
		DefaultCompany: cfg.DefaultCompany,
		Sandbox:        backend.Sandbox,
		Log:            logger,
	})

	logger.Info("listening", zap.String("port", cfg.Port), zap.String("backend", cfg.Backend))
	if err := r.Run(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
