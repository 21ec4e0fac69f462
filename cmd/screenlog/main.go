package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/screenlogapp/screenlog/internal/controller/activity"
	"github.com/screenlogapp/screenlog/internal/controller/comments"
	"github.com/screenlogapp/screenlog/internal/controller/ledger"
	"github.com/screenlogapp/screenlog/internal/controller/lists"
	"github.com/screenlogapp/screenlog/internal/controller/notification"
	"github.com/screenlogapp/screenlog/internal/controller/profile"
	"github.com/screenlogapp/screenlog/internal/controller/recommend"
	"github.com/screenlogapp/screenlog/internal/controller/social"
	catalogateway "github.com/screenlogapp/screenlog/internal/gateway/catalog/http"
	httphandler "github.com/screenlogapp/screenlog/internal/handler/http"
	"github.com/screenlogapp/screenlog/internal/store"
	"github.com/screenlogapp/screenlog/internal/store/memory"
	"github.com/screenlogapp/screenlog/internal/store/mysql"
	"github.com/screenlogapp/screenlog/pkg/tracing"
	"github.com/uber-go/tally/v4"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const serviceName = "screenlog"

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	f, err := os.Open("configs/default.yaml")
	if err != nil {
		logger.Fatal("Failed to open configuration", zap.Error(err))
	}
	var cfg config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		logger.Fatal("Failed to parse configuration", zap.Error(err))
	}
	f.Close()
	port := cfg.API.Port
	logger.Info("Starting the screenlog service", zap.Int("port", port))

	tracer, tracerCloser, err := tracing.New(serviceName, cfg.Jaeger.Host, cfg.Jaeger.Port, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Jaeger tracer", zap.Error(err))
	}
	defer tracerCloser.Close()
	opentracing.SetGlobalTracer(tracer)

	scope, scopeCloser := tally.NewRootScope(tally.ScopeOptions{
		Prefix:   serviceName,
		Reporter: tally.NullStatsReporter,
	}, time.Second)
	defer scopeCloser.Close()

	var st store.Store
	switch cfg.Store.Backend {
	case "mysql":
		mysqlStore, err := mysql.New(cfg.Store.MySQLDSN)
		if err != nil {
			logger.Fatal("Failed to open MySQL store", zap.Error(err))
		}
		defer mysqlStore.Close()
		st = mysqlStore
	default:
		st = memory.New()
	}

	catalog := catalogateway.New(cfg.Catalog.BaseURL, cfg.Catalog.APIKey, cfg.Catalog.RequestsPerSecond)
	activityCtrl := activity.New(st, scope)
	notificationCtrl := notification.New(st, scope)
	ledgerCtrl := ledger.New(st, activityCtrl, logger)
	socialCtrl := social.New(st, notificationCtrl, logger)
	listsCtrl := lists.New(st)
	commentsCtrl := comments.New(st, notificationCtrl, logger)
	profileCtrl := profile.New(st)
	recommendEngine := recommend.New(catalog)

	secret := func() []byte { return []byte(cfg.Session.Secret) }
	h := httphandler.New(ledgerCtrl, socialCtrl, notificationCtrl, activityCtrl,
		listsCtrl, recommendEngine, commentsCtrl, profileCtrl, secret, logger)
	mux := http.NewServeMux()
	h.Register(mux)
	srv := &http.Server{
		Addr:    fmt.Sprintf("localhost:%d", port),
		Handler: mux,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s := <-sigChan
		logger.Info("Received signal, attempting graceful shutdown", zap.Any("signal", s))
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", zap.Error(err))
		}
		logger.Info("Gracefully stopped the HTTP server")
	}()

	logger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("Failed to serve HTTP server", zap.Error(err))
	}

	wg.Wait()
}
