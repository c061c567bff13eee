package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"piiquante/internal/config"
	"piiquante/internal/db"
	"piiquante/internal/router"
	"piiquante/internal/services"
	"piiquante/internal/store"
	"piiquante/internal/utils"
	"strconv"
	"syscall"

	"github.com/gin-gonic/gin"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := utils.NewLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
	gin.SetMode(cfg.Server.Mode)

	// Initialize Database
	conn, err := db.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() {
		if err := db.Close(conn); err != nil {
			logger.Error("database close failed", "error", err)
		}
	}()

	if err := db.AutoMigrate(conn); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	logger.Info("database ready", "type", cfg.Database.Type)

	auth, err := services.NewAuthService(store.NewUserStore(conn, logger), cfg.JWT.Secret, cfg.TokenTTL(), cfg.Security.BcryptCost, logger)
	if err != nil {
		return fmt.Errorf("init auth service: %w", err)
	}
	images, err := services.NewImageStore(cfg.Images.Dir, cfg.Images.MaxBytes, logger)
	if err != nil {
		return fmt.Errorf("init image store: %w", err)
	}
	catalog, err := services.NewSauceCatalog(store.NewSauceStore(conn, logger), images, cfg.Vote, cfg.Cache, logger)
	if err != nil {
		return fmt.Errorf("init sauce catalog: %w", err)
	}

	r := router.New(router.Deps{
		Config:  cfg,
		Auth:    auth,
		Catalog: catalog,
		Images:  images,
		Logger:  logger,
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// signal.Notify requires the channel to be buffered
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		if _, ok := <-stop; !ok {
			return
		}
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
			server.Close()
		}
	}()

	logger.Info("piiquante server starting", "port", cfg.Server.Port, "sessions", cfg.Session.Secret != "")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		signal.Stop(stop)
		close(stop)
		<-drained
		return fmt.Errorf("serve: %w", err)
	}
	<-drained
	logger.Info("server closed")
	return nil
}
