package k8s

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const jobFailureThreshold = 5

// WaitForJob polls a job until it succeeds, accumulates too many failed pods,
// or the timeout passes. Two absence signals count as success: the job
// disappearing after it was observed (hook cleanup deletes completed jobs),
// and the job never appearing while the application pod is already serving.
func (c *Client) WaitForJob(ctx context.Context, namespace, name string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	start := time.Now()
	seen := false

	for {
		if err := c.wait(ctx); err != nil {
			return err
		}
		job, err := c.Clientset.BatchV1().Jobs(namespace).Get(ctx, name, metav1.GetOptions{})
		switch {
		case err == nil:
			seen = true
			if job.Status.Succeeded >= 1 {
				return nil
			}
			if job.Status.Failed >= jobFailureThreshold {
				return fmt.Errorf("job %s/%s failed %d times", namespace, name, job.Status.Failed)
			}
		case apierrors.IsNotFound(err):
			if seen {
				// Completed jobs get cleaned up; absence after observation
				// means it finished.
				return nil
			}
			if time.Since(start) > c.AbsentProbeAfter {
				ready, probeErr := c.AnyReady(ctx, namespace, "app=wordpress")
				if probeErr != nil {
					// A transient pod-list failure must not end the wait;
					// the deadline still bounds it.
					slog.Warn("job_absent_probe_failed", "namespace", namespace, "job", name, "error", probeErr)
				} else if ready {
					return nil
				}
			}
		default:
			return fmt.Errorf("get job %s/%s: %w", namespace, name, err)
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("job %s/%s not complete after %s", namespace, name, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.PollInterval):
		}
	}
}
