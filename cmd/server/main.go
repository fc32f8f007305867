package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/pedrohba/store-api/internal/config"
	"github.com/pedrohba/store-api/internal/es"
	"github.com/pedrohba/store-api/internal/events"
	"github.com/pedrohba/store-api/internal/httpserver"
	"github.com/pedrohba/store-api/internal/logging"
	loggingmw "github.com/pedrohba/store-api/internal/middleware/logging"
	"github.com/pedrohba/store-api/internal/repo"
	"github.com/pedrohba/store-api/internal/service"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	e := echo.New()
	e.HideBanner = true

	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second

	e.Use(loggingmw.RequestLogger(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := config.InitDB(initCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}

	var publisher events.Publisher
	var kafkaPub *events.KafkaPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPub = events.NewKafkaPublisher(cfg.KafkaBrokers)
		publisher = kafkaPub
	} else {
		logger.Warn("KAFKA_BROKERS not set, event publishing disabled")
	}

	gormRepo := &repo.GormRepo{DB: db}

	authService := &service.AuthService{
		Repo:          gormRepo,
		JWTSecret:     cfg.JWTSecret,
		RefreshSecret: cfg.RefreshSecret,
		Events:        publisher,
	}
	userService := &service.UserService{Repo: gormRepo}
	categoryService := &service.CategoryService{Repo: gormRepo}
	catalogService := &service.CatalogService{Repo: gormRepo, Events: publisher}
	cartService := service.NewCartService(gormRepo, gormRepo, publisher)

	if cfg.ESURL != "" {
		client, err := es.NewClient(cfg.ESURL, cfg.ESUser, cfg.ESPassword)
		if err != nil {
			log.Fatalf("elasticsearch init error: %v", err)
		}
		catalogService.ES = client
	} else {
		logger.Warn("ES_URL not set, product search disabled")
	}

	httpserver.Register(e, &httpserver.Deps{
		AuthHandler:     &httpserver.AuthHTTP{Svc: authService},
		UserHandler:     &httpserver.UserHTTP{Svc: userService},
		ProductHandler:  &httpserver.ProductHTTP{Svc: catalogService, ES: catalogService.ES},
		CategoryHandler: &httpserver.CategoryHTTP{Svc: categoryService, Catalog: catalogService},
		CartHandler:     &httpserver.CartHTTP{Svc: cartService},
		JWTSecret:       cfg.JWTSecret,
	})

	go func() {
		logger.Info("starting server", "port", cfg.Port)
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("echo start: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("echo shutdown", "error", err)
	}

	if kafkaPub != nil {
		if err := kafkaPub.Close(); err != nil {
			logger.Error("kafka close", "error", err)
		}
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	logger.Info("server stopped")
}
