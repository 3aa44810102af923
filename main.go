package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/linesmerrill/sos-dispatch-api/api/handlers"
	"github.com/linesmerrill/sos-dispatch-api/api/scheduler"
	"github.com/linesmerrill/sos-dispatch-api/config"
)

func main() {
	conf, err := config.New()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := handlers.App{Config: *conf}
	if err := a.Initialize(ctx); err != nil { //initialize database and router
		zap.S().Fatalw("failed to initialize", "error", err)
	}

	go a.Hub.Run(ctx)

	s := scheduler.NewScheduler(conf.Dispatch, a.Engine, a.Tracker, a.Store.Locks, a.Hub)
	if err := s.Start(); err != nil {
		zap.S().Fatalw("failed to start scheduler", "error", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%v", conf.Port),
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		s.Stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.S().Errorw("failed to shut down server", "error", err)
		}
		if err := a.Close(shutdownCtx); err != nil {
			zap.S().Errorw("failed to disconnect from database", "error", err)
		}
	}()

	zap.S().Infow("sos-dispatch-api is up and running",
		"port", conf.Port,
		"url", conf.BaseURL,
		"driver", conf.Driver,
		"autoAssign", conf.Dispatch.AutoAssignEnabled,
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		zap.S().Fatalw("server stopped", "error", err)
	}
	zap.S().Info("sos-dispatch-api stopped")
}
