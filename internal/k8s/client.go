// Package k8s wraps client-go for the namespace, pod and job operations the
// provisioning worker needs.
package k8s

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Client wraps Kubernetes client-go.
type Client struct {
	Clientset kubernetes.Interface
	// Limiter optionally rate-limits outbound API calls. Nil = no limit.
	limiter *rate.Limiter

	// Poll cadence and deadlines; fields so tests can shrink them.
	PollInterval      time.Duration
	DeletePollEvery   time.Duration
	DeleteWaitTimeout time.Duration
	// AbsentProbeAfter is how long a job may be absent before the pod-level
	// fallback probe decides the outcome.
	AbsentProbeAfter time.Duration
}

// NewClient builds a client: explicit kubeconfig path if given, else
// in-cluster config, else the default kubeconfig.
func NewClient(kubeconfigPath string) (*Client, error) {
	var config *rest.Config
	var err error

	if kubeconfigPath == "" {
		config, err = rest.InClusterConfig()
		if err != nil {
			homeDir, _ := os.UserHomeDir()
			if homeDir != "" {
				kubeconfigPath = filepath.Join(homeDir, ".kube", "config")
			}
		}
	}
	if config == nil {
		config, err = clientcmd.BuildConfigFromFlags("", kubeconfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to build config: %w", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}
	return newWithClientset(clientset), nil
}

// NewWithClientset wraps an existing clientset. Tests use this with the fake.
func NewWithClientset(cs kubernetes.Interface) *Client {
	return newWithClientset(cs)
}

func newWithClientset(cs kubernetes.Interface) *Client {
	return &Client{
		Clientset:         cs,
		PollInterval:      10 * time.Second,
		DeletePollEvery:   5 * time.Second,
		DeleteWaitTimeout: 600 * time.Second,
		AbsentProbeAfter:  180 * time.Second,
	}
}

// SetLimiter sets a token-bucket rate limiter for outbound API calls.
func (c *Client) SetLimiter(l *rate.Limiter) {
	c.limiter = l
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// EnsureNamespace creates the namespace if it does not exist.
func (c *Client) EnsureNamespace(ctx context.Context, name string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	ns := &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: name}}
	_, err := c.Clientset.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create namespace %s: %w", name, err)
	}
	return nil
}

// DeleteNamespace deletes the namespace; an absent namespace is a no-op.
func (c *Client) DeleteNamespace(ctx context.Context, name string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	err := c.Clientset.CoreV1().Namespaces().Delete(ctx, name, metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete namespace %s: %w", name, err)
	}
	return nil
}

// WaitForNamespaceDeletion polls until the namespace is gone or the deadline
// passes.
func (c *Client) WaitForNamespaceDeletion(ctx context.Context, name string) error {
	deadline := time.Now().Add(c.DeleteWaitTimeout)
	for {
		if err := c.wait(ctx); err != nil {
			return err
		}
		_, err := c.Clientset.CoreV1().Namespaces().Get(ctx, name, metav1.GetOptions{})
		if apierrors.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get namespace %s: %w", name, err)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("namespace %s still terminating after %s", name, c.DeleteWaitTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.DeletePollEvery):
		}
	}
}

// PodStatus is a condensed view of one pod.
type PodStatus struct {
	Name  string
	Phase string
	Ready bool
}

// PodStatuses lists pods matching the label selector. Ready means every
// container status reports ready.
func (c *Client) PodStatuses(ctx context.Context, namespace, selector string) ([]PodStatus, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	pods, err := c.Clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return nil, fmt.Errorf("list pods in %s: %w", namespace, err)
	}
	statuses := make([]PodStatus, 0, len(pods.Items))
	for _, pod := range pods.Items {
		ready := len(pod.Status.ContainerStatuses) > 0
		for _, cs := range pod.Status.ContainerStatuses {
			if !cs.Ready {
				ready = false
				break
			}
		}
		statuses = append(statuses, PodStatus{
			Name:  pod.Name,
			Phase: string(pod.Status.Phase),
			Ready: ready,
		})
	}
	return statuses, nil
}

// AnyReady reports whether at least one pod matching the selector is running
// and ready.
func (c *Client) AnyReady(ctx context.Context, namespace, selector string) (bool, error) {
	statuses, err := c.PodStatuses(ctx, namespace, selector)
	if err != nil {
		return false, err
	}
	for _, s := range statuses {
		if s.Ready && s.Phase == string(corev1.PodRunning) {
			return true, nil
		}
	}
	return false, nil
}
