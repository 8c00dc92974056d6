package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/storeforge/storeforge-backend/internal/config"
	"github.com/storeforge/storeforge-backend/internal/helm"
	"github.com/storeforge/storeforge-backend/internal/k8s"
	"github.com/storeforge/storeforge-backend/internal/pkg/logger"
	"github.com/storeforge/storeforge-backend/internal/queue"
	"github.com/storeforge/storeforge-backend/internal/repository"
	"github.com/storeforge/storeforge-backend/internal/values"
	"github.com/storeforge/storeforge-backend/internal/worker"
	"github.com/storeforge/storeforge-backend/migrations"
)

// workerID identifies this consumer's processing list. Stable across restarts
// on the same host so crash redelivery finds the orphans.
func workerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "worker-" + uuid.New().String()
	}
	return "worker-" + host
}

func main() {
	log := logger.StdLogger()

	cfg, err := config.Load()
	if err != nil {
		log.Error("config_load_failed", "error", err)
		os.Exit(1)
	}

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

	rdb, err := queue.NewClient(cfg.RedisURL)
	if err != nil {
		log.Error("redis_connect_failed", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	cluster, err := k8s.NewClient(cfg.KubeconfigPath)
	if err != nil {
		log.Error("kubernetes_connect_failed", "error", err)
		os.Exit(1)
	}
	if cfg.K8sAPIRPS > 0 {
		cluster.SetLimiter(rate.NewLimiter(rate.Limit(cfg.K8sAPIRPS), int(cfg.K8sAPIRPS)*2))
	}

	assembler := &values.Assembler{
		ChartPath:    cfg.HelmChartPath,
		Profile:      cfg.ValuesProfile,
		IngressClass: cfg.IngressClassName,
		TLSEnabled:   cfg.TLSEnabled,
		StorageClass: cfg.StorageClassName,
	}
	engine := worker.NewEngine(repo, helm.New(log), cluster, worker.AssemblerAdapter{Assembler: assembler}, cfg.HelmChartPath, log)

	id := workerID()
	consumer := queue.NewConsumer(rdb, id, engine.Handle, engine.OnExhausted, log)

	ctx, cancel := context.WithCancel(context.Background())
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-stop
		log.Info("shutting_down", "signal", sig.String())
		cancel()
	}()

	log.Info("worker_started", "worker_id", id)
	if err := consumer.Run(ctx); err != nil && err != context.Canceled {
		log.Error("worker_stopped", "error", err)
		os.Exit(1)
	}
	log.Info("worker_stopped")
}
