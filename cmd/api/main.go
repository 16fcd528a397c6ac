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

	"github.com/SergeiKhy/shortlink/internal/config"
	"github.com/SergeiKhy/shortlink/internal/container"
	"github.com/SergeiKhy/shortlink/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/samber/do"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Загрузка конфига
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zl.Sync()

	if err := run(cfg, zl); err != nil {
		zl.Error("Server exited with error", zap.Error(err))
		_ = zl.Sync()
		os.Exit(1)
	}

	zl.Info("Server exited")
}

func run(cfg *config.Config, zl *zap.Logger) error {
	gin.SetMode(gin.ReleaseMode)

	injector, err := container.New(cfg, zl)
	if err != nil {
		return err
	}
	defer func() {
		if err := injector.Shutdown(); err != nil {
			zl.Error("Failed to release resources", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Подключения к хранилищам, схема и фоновая очистка
	startCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	err = container.Start(startCtx, injector)
	cancel()
	if err != nil {
		return err
	}

	router, err := do.Invoke[*gin.Engine](injector)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zl.Info("Server starting",
			zap.String("port", cfg.App.Port),
			zap.String("base_url", cfg.App.BaseURL),
			zap.String("record_store", cfg.RecordStore.Driver()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Graceful Shutdown
	g.Go(func() error {
		<-gctx.Done()
		zl.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
