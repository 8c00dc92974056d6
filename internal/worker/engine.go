// Package worker runs the provisioning lifecycle: it turns a Pending row into
// a running WooCommerce release and a Deleting row into nothing.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/storeforge/storeforge-backend/internal/models"
	"github.com/storeforge/storeforge-backend/internal/queue"
	"github.com/storeforge/storeforge-backend/internal/repository"
)

const (
	installJobName = "woocommerce-install"

	installJobTimeout = 900 * time.Second
	podReadyDeadline  = 600 * time.Second
)

// HelmDriver is the release surface the engine needs.
type HelmDriver interface {
	Install(ctx context.Context, release, chartPath, namespace, valuesPath string) error
	Uninstall(ctx context.Context, release, namespace string) error
}

// ClusterDriver is the Kubernetes surface the engine needs.
type ClusterDriver interface {
	EnsureNamespace(ctx context.Context, name string) error
	DeleteNamespace(ctx context.Context, name string) error
	WaitForNamespaceDeletion(ctx context.Context, name string) error
	WaitForJob(ctx context.Context, namespace, name string, timeout time.Duration) error
	AnyReady(ctx context.Context, namespace, selector string) (bool, error)
}

// ValuesAssembler renders the values file for one store.
type ValuesAssembler interface {
	Assemble(storeID, storeName, domain, namespace string) (*ValuesResult, error)
}

// ValuesResult mirrors values.Result without importing the package, so tests
// stub the assembler without touching the chart directory.
type ValuesResult struct {
	Path          string
	AdminPassword string
}

// Engine executes provisioning tasks against the drivers.
type Engine struct {
	repo      repository.Registry
	helm      HelmDriver
	cluster   ClusterDriver
	values    ValuesAssembler
	chartPath string
	logger    *slog.Logger

	// PodPollInterval paces the post-install readiness loop.
	PodPollInterval time.Duration
	JobTimeout      time.Duration
	PodDeadline     time.Duration
}

func NewEngine(repo repository.Registry, helm HelmDriver, cluster ClusterDriver, values ValuesAssembler, chartPath string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		repo:            repo,
		helm:            helm,
		cluster:         cluster,
		values:          values,
		chartPath:       chartPath,
		logger:          logger,
		PodPollInterval: 10 * time.Second,
		JobTimeout:      installJobTimeout,
		PodDeadline:     podReadyDeadline,
	}
}

// Handle dispatches a queue delivery to the matching lifecycle step.
func (e *Engine) Handle(ctx context.Context, t queue.Task) error {
	switch t.Task {
	case queue.TaskProvision:
		return e.Provision(ctx, t.StoreID)
	case queue.TaskDelete:
		return e.Delete(ctx, t.StoreID)
	default:
		e.logger.Error("unknown_task", "task", t.Task)
		return nil
	}
}

// Provision drives a store from Pending to Ready. Reruns are safe: an absent
// or already Ready store is a no-op, and the install is helm upgrade
// --install against a fixed release name.
func (e *Engine) Provision(ctx context.Context, storeID string) error {
	store, err := e.repo.FindStoreByID(ctx, storeID)
	if errors.Is(err, repository.ErrNotFound) {
		e.logger.Info("provision_store_gone", "store_id", storeID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load store %s: %w", storeID, err)
	}
	if store.Status == models.StatusReady {
		e.logger.Info("provision_already_ready", "store_id", storeID)
		return nil
	}

	namespace := store.Namespace
	release := store.HelmReleaseName
	if namespace == "" || release == "" {
		canonical := models.CanonicalNamespace(store.ID)
		if namespace == "" {
			namespace = canonical
		}
		if release == "" {
			release = canonical
		}
		if err := e.repo.UpdateStoreFields(ctx, store.ID, map[string]interface{}{
			"namespace":         namespace,
			"helm_release_name": release,
		}); err != nil {
			return fmt.Errorf("record namespace for %s: %w", storeID, err)
		}
	}

	res, err := e.values.Assemble(store.ID, store.Name, store.Domain, namespace)
	if err != nil {
		return fmt.Errorf("assemble values for %s: %w", storeID, err)
	}
	defer os.Remove(res.Path)

	if err := e.cluster.EnsureNamespace(ctx, namespace); err != nil {
		return err
	}

	e.logger.Info("provision_helm_install_start", "store_id", storeID, "release", release, "namespace", namespace)
	if err := e.helm.Install(ctx, release, e.chartPath, namespace, res.Path); err != nil {
		return err
	}

	e.logger.Info("provision_wait_install_job", "store_id", storeID, "namespace", namespace)
	if err := e.cluster.WaitForJob(ctx, namespace, installJobName, e.JobTimeout); err != nil {
		return err
	}

	if err := e.waitForPods(ctx, namespace); err != nil {
		return err
	}

	adminUser := "admin"
	now := time.Now().UTC()
	if err := e.repo.UpdateStoreFields(ctx, store.ID, map[string]interface{}{
		"status":         models.StatusReady,
		"admin_username": adminUser,
		"admin_password": res.AdminPassword,
		"error_message":  nil,
		"ready_at":       now,
	}); err != nil {
		return fmt.Errorf("commit ready for %s: %w", storeID, err)
	}
	e.logger.Info("provision_ready", "store_id", storeID, "domain", store.Domain)
	return nil
}

// waitForPods polls until both application tiers have at least one running
// ready pod, or the deadline passes.
func (e *Engine) waitForPods(ctx context.Context, namespace string) error {
	deadline := time.Now().Add(e.PodDeadline)
	for {
		wpReady, err := e.cluster.AnyReady(ctx, namespace, "app=wordpress")
		if err != nil {
			return err
		}
		dbReady, err := e.cluster.AnyReady(ctx, namespace, "app=mysql")
		if err != nil {
			return err
		}
		if wpReady && dbReady {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("pods in %s not ready after %s (wordpress=%v mysql=%v)", namespace, e.PodDeadline, wpReady, dbReady)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.PodPollInterval):
		}
	}
}

// Delete tears a store down: uninstall the release, remove the namespace,
// wait it out, drop the row. An absent row is a no-op. On failure the row
// stays in Deleting so the operator can retry.
func (e *Engine) Delete(ctx context.Context, storeID string) error {
	store, err := e.repo.FindStoreByID(ctx, storeID)
	if errors.Is(err, repository.ErrNotFound) {
		e.logger.Info("delete_store_gone", "store_id", storeID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load store %s: %w", storeID, err)
	}

	namespace := store.Namespace
	release := store.HelmReleaseName
	if namespace == "" {
		namespace = models.CanonicalNamespace(store.ID)
	}
	if release == "" {
		release = models.CanonicalNamespace(store.ID)
	}

	if err := e.helm.Uninstall(ctx, release, namespace); err != nil {
		if !isReleaseNotFound(err) {
			return err
		}
		e.logger.Info("delete_release_already_gone", "store_id", storeID, "release", release)
	}
	if err := e.cluster.DeleteNamespace(ctx, namespace); err != nil {
		return err
	}
	if err := e.cluster.WaitForNamespaceDeletion(ctx, namespace); err != nil {
		return err
	}
	if err := e.repo.DeleteStore(ctx, storeID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("drop store row %s: %w", storeID, err)
	}
	e.logger.Info("delete_complete", "store_id", storeID)
	return nil
}

// OnExhausted is the terminal-failure hook for the queue: it records Error on
// the store in its own write, after the failing attempt's work is done.
func (e *Engine) OnExhausted(ctx context.Context, t queue.Task, taskErr error) {
	if t.Task != queue.TaskProvision {
		// Failed deletes leave the row in Deleting for operator retry.
		return
	}
	msg := taskErr.Error()
	if len(msg) > 1000 {
		msg = msg[:1000]
	}
	if err := e.repo.UpdateStoreFields(ctx, t.StoreID, map[string]interface{}{
		"status":        models.StatusError,
		"error_message": msg,
	}); err != nil && !errors.Is(err, repository.ErrNotFound) {
		e.logger.Error("error_status_write_failed", "store_id", t.StoreID, "error", err)
	}
}

func isReleaseNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "not found")
}
