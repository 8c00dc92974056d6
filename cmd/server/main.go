package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"github.com/storeforge/storeforge-backend/internal/api/middleware"
	"github.com/storeforge/storeforge-backend/internal/api/rest"
	"github.com/storeforge/storeforge-backend/internal/config"
	"github.com/storeforge/storeforge-backend/internal/k8s"
	"github.com/storeforge/storeforge-backend/internal/pkg/logger"
	"github.com/storeforge/storeforge-backend/internal/queue"
	"github.com/storeforge/storeforge-backend/internal/repository"
	"github.com/storeforge/storeforge-backend/migrations"
)

func main() {
	log := logger.StdLogger()

	cfg, err := config.Load()
	if err != nil {
		log.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	log.Info("starting_api", "port", cfg.Port)

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURL)
	if err != nil {
		log.Error("database_connect_failed", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	if err := repo.RunMigrations(migrations.FS); err != nil {
		log.Error("migrations_failed", "error", err)
		os.Exit(1)
	}
	log.Info("migrations_applied")

	rdb, err := queue.NewClient(cfg.RedisURL)
	if err != nil {
		log.Error("redis_connect_failed", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()
	taskQueue := queue.New(rdb)

	cluster, err := k8s.NewClient(cfg.KubeconfigPath)
	if err != nil {
		log.Error("kubernetes_connect_failed", "error", err)
		os.Exit(1)
	}
	if cfg.K8sAPIRPS > 0 {
		cluster.SetLimiter(rate.NewLimiter(rate.Limit(cfg.K8sAPIRPS), int(cfg.K8sAPIRPS)*2))
	}

	router := mux.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.StructuredLog)
	router.Use(middleware.Auth(cfg.JWTSecret))

	handler := rest.NewHandler(cfg, repo, taskQueue, cluster)
	rest.SetupRoutes(router, handler)
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOriginList(),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	}).Handler(router)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      corsHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("api_listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Info("shutting_down", "signal", sig.String())
	case err := <-errCh:
		log.Error("server_failed", "error", err)
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.ShutdownTimeoutSec)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown_failed", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown_complete")
}
