// Package helm drives the external helm binary. Commands run in their own
// process group so that a timeout can kill helm together with the watcher
// children `helm --wait` forks.
package helm

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/storeforge/storeforge-backend/internal/pkg/metrics"
)

// ErrTimeout marks a command killed by the driver's wall-clock timeout.
var ErrTimeout = errors.New("helm command timed out")

const (
	defaultInstallTimeout   = 1300 * time.Second
	defaultUninstallTimeout = 300 * time.Second
	defaultListTimeout      = 60 * time.Second
	defaultKillGrace        = 5 * time.Second

	// stderrLogLines is how many stderr lines are logged as they arrive;
	// the full body is retained for error text.
	stderrLogLines = 5
)

// Release is one entry of `helm list -o json`.
type Release struct {
	Name       string `json:"name"`
	Namespace  string `json:"namespace"`
	Revision   string `json:"revision"`
	Status     string `json:"status"`
	Chart      string `json:"chart"`
	AppVersion string `json:"app_version"`
}

// Driver invokes the helm binary. The zero value is not usable; call New.
type Driver struct {
	Bin              string
	InstallTimeout   time.Duration
	UninstallTimeout time.Duration
	ListTimeout      time.Duration
	KillGrace        time.Duration

	logger *slog.Logger
}

func New(logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		Bin:              "helm",
		InstallTimeout:   defaultInstallTimeout,
		UninstallTimeout: defaultUninstallTimeout,
		ListTimeout:      defaultListTimeout,
		KillGrace:        defaultKillGrace,
		logger:           logger,
	}
}

// Install runs `helm upgrade --install` with --wait. The wall-clock timeout
// is enforced independently of helm's own --timeout.
func (d *Driver) Install(ctx context.Context, release, chartPath, namespace, valuesPath string) error {
	args := []string{
		"upgrade", "--install", release, chartPath,
		"-n", namespace,
		"-f", valuesPath,
		"--wait", "--timeout", "20m",
	}
	_, err := d.run(ctx, "install", args, d.InstallTimeout)
	return err
}

// Uninstall removes the release. "release not found" stderr is surfaced as
// an error here; the worker decides whether that is fatal.
func (d *Driver) Uninstall(ctx context.Context, release, namespace string) error {
	_, err := d.run(ctx, "uninstall", []string{"uninstall", release, "-n", namespace}, d.UninstallTimeout)
	return err
}

// ListReleases returns the releases in the namespace. Malformed JSON from
// helm yields an empty list rather than an error.
func (d *Driver) ListReleases(ctx context.Context, namespace string) ([]Release, error) {
	out, err := d.run(ctx, "list", []string{"list", "-n", namespace, "-o", "json"}, d.ListTimeout)
	if err != nil {
		return nil, err
	}
	var releases []Release
	if err := json.Unmarshal([]byte(out), &releases); err != nil {
		return []Release{}, nil
	}
	return releases, nil
}

// run spawns the command in a new process group, discards stdout (except for
// list, which captures it), drains stderr on a dedicated goroutine, and
// enforces the wall-clock timeout with a group SIGTERM then SIGKILL.
func (d *Driver) run(ctx context.Context, command string, args []string, timeout time.Duration) (string, error) {
	start := time.Now()
	d.logger.Info("helm_command_start", "command", command, "args", strings.Join(args, " "))

	cmd := exec.Command(d.Bin, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout strings.Builder
	if command == "list" {
		cmd.Stdout = &stdout
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		metrics.HelmCommandsTotal.WithLabelValues(command, "error").Inc()
		return "", fmt.Errorf("start helm: %w", err)
	}
	pid := cmd.Process.Pid
	d.logger.Info("helm_subprocess_spawned", "pid", pid)

	// Drain stderr as it arrives so pipe-buffer backpressure never blocks
	// the child. The full body is kept for error text.
	var stderr strings.Builder
	var drained sync.WaitGroup
	drained.Add(1)
	go func() {
		defer drained.Done()
		scanner := bufio.NewScanner(stderrPipe)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		lines := 0
		for scanner.Scan() {
			line := scanner.Text()
			stderr.WriteString(line)
			stderr.WriteString("\n")
			lines++
			if lines <= stderrLogLines {
				d.logger.Info("helm_stderr", "line", truncate(line, 200))
			}
		}
	}()

	// Wait only after the drain goroutine finishes; Wait closes the pipe.
	done := make(chan error, 1)
	go func() {
		drained.Wait()
		done <- cmd.Wait()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var waitErr error
	var timedOut bool
	select {
	case waitErr = <-done:
	case <-timer.C:
		timedOut = true
		d.killGroup(pid)
		waitErr = <-done
	case <-ctx.Done():
		d.killGroup(pid)
		<-done
		metrics.HelmCommandsTotal.WithLabelValues(command, "error").Inc()
		return "", ctx.Err()
	}

	elapsed := time.Since(start)
	if timedOut {
		d.logger.Error("helm_command_timeout", "command", command, "elapsed", elapsed.Seconds(), "pid", pid)
		metrics.HelmCommandsTotal.WithLabelValues(command, "timeout").Inc()
		return "", fmt.Errorf("%w after %.0fs", ErrTimeout, elapsed.Seconds())
	}
	if waitErr != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = waitErr.Error()
		}
		d.logger.Error("helm_command_failed", "command", command, "stderr", truncate(detail, 500))
		metrics.HelmCommandsTotal.WithLabelValues(command, "error").Inc()
		return "", fmt.Errorf("helm %s failed: %s", command, detail)
	}
	d.logger.Info("helm_command_success", "command", command, "elapsed", elapsed.Seconds())
	metrics.HelmCommandsTotal.WithLabelValues(command, "ok").Inc()
	return stdout.String(), nil
}

// killGroup terminates the whole process group: SIGTERM, a grace window,
// then SIGKILL. Killing only the parent leaves `helm --wait` watchers behind.
func (d *Driver) killGroup(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	deadline := time.After(d.KillGrace)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-deadline:
			_ = syscall.Kill(-pid, syscall.SIGKILL)
			return
		case <-tick.C:
			// Signal 0 probes whether the group is already gone.
			if err := syscall.Kill(-pid, 0); err != nil {
				return
			}
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
