package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/EliorMigdal/kaplat-ex7/api"
	"github.com/EliorMigdal/kaplat-ex7/config"
	"github.com/EliorMigdal/kaplat-ex7/domain"
	"github.com/EliorMigdal/kaplat-ex7/logging"
	"github.com/EliorMigdal/kaplat-ex7/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	cfg, err := config.Load(os.Getenv("TODO_CONFIG_FILE"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	registry, err := logging.Open(cfg.Log.Dir, os.Stdout)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer registry.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	if err := st.Ping(ctx); err != nil {
		log.Warnf("storage ping: %v", err)
	}

	todoLogger := registry.MustLogger(logging.TodoLogger)
	repair := storage.NewRepairQueue(cfg.RepairConfig(), todoLogger)
	svc := domain.NewService(st.Relational(), st.Document(), repair, st.Reserver(), todoLogger)

	e := echo.New()
	e.HideBanner = true
	e.JSONSerializer = api.JSONSerializer{}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderXRequestID},
	}))
	requests := &api.RequestCounter{}
	e.Use(api.RequestMiddleware(registry.MustLogger(logging.RequestLogger), requests))
	e.Use(api.GzipRequestMiddleware())
	api.Register(e, svc, registry, todoLogger)

	go func() {
		log.Infof("listening on %s", cfg.Addr())
		if err := e.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Errorf("server shutdown: %v", err)
	}
	if err := repair.Shutdown(shutdownCtx); err != nil {
		log.Errorf("repair queue shutdown: %v", err)
	}
	repaired, dropped := repair.Stats()
	log.WithFields(log.Fields{"repaired": repaired, "dropped": dropped}).Info("repair queue stopped")
	log.Infof("served %d requests", requests.Current())
	if err := st.Close(shutdownCtx); err != nil {
		log.Errorf("storage close: %v", err)
	}
}
