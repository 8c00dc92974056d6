package k8s

import (
	"context"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func fastClient(cs *fake.Clientset) *Client {
	c := NewWithClientset(cs)
	c.PollInterval = 5 * time.Millisecond
	c.DeletePollEvery = 5 * time.Millisecond
	c.DeleteWaitTimeout = 200 * time.Millisecond
	c.AbsentProbeAfter = 30 * time.Millisecond
	return c
}

func TestEnsureNamespace_CreatesAndIdempotent(t *testing.T) {
	cs := fake.NewSimpleClientset()
	c := fastClient(cs)
	ctx := context.Background()

	if err := c.EnsureNamespace(ctx, "store-abc"); err != nil {
		t.Fatalf("EnsureNamespace failed: %v", err)
	}
	if _, err := cs.CoreV1().Namespaces().Get(ctx, "store-abc", metav1.GetOptions{}); err != nil {
		t.Fatalf("Namespace not created: %v", err)
	}
	if err := c.EnsureNamespace(ctx, "store-abc"); err != nil {
		t.Errorf("Second EnsureNamespace should be a no-op, got %v", err)
	}
}

func TestDeleteNamespace_AbsentIsNoop(t *testing.T) {
	c := fastClient(fake.NewSimpleClientset())
	if err := c.DeleteNamespace(context.Background(), "missing"); err != nil {
		t.Errorf("Deleting an absent namespace should succeed, got %v", err)
	}
}

func TestWaitForNamespaceDeletion(t *testing.T) {
	ns := &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "store-abc"}}
	cs := fake.NewSimpleClientset(ns)
	c := fastClient(cs)
	ctx := context.Background()

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = cs.CoreV1().Namespaces().Delete(ctx, "store-abc", metav1.DeleteOptions{})
	}()
	if err := c.WaitForNamespaceDeletion(ctx, "store-abc"); err != nil {
		t.Fatalf("WaitForNamespaceDeletion failed: %v", err)
	}
}

func TestWaitForNamespaceDeletion_Timeout(t *testing.T) {
	ns := &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "stuck"}}
	c := fastClient(fake.NewSimpleClientset(ns))
	if err := c.WaitForNamespaceDeletion(context.Background(), "stuck"); err == nil {
		t.Fatal("Expected timeout error for a namespace that never goes away")
	}
}

func pod(ns, name, app, phase string, ready bool) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: ns,
			Labels:    map[string]string{"app": app},
		},
		Status: corev1.PodStatus{
			Phase: corev1.PodPhase(phase),
			ContainerStatuses: []corev1.ContainerStatus{
				{Name: "main", Ready: ready},
			},
		},
	}
}

func TestPodStatuses_ReadyRequiresAllContainers(t *testing.T) {
	mixed := pod("ns1", "wp-0", "wordpress", "Running", true)
	mixed.Status.ContainerStatuses = append(mixed.Status.ContainerStatuses,
		corev1.ContainerStatus{Name: "sidecar", Ready: false})
	cs := fake.NewSimpleClientset(
		mixed,
		pod("ns1", "wp-1", "wordpress", "Running", true),
		pod("ns1", "db-0", "mysql", "Running", true),
	)
	c := fastClient(cs)

	statuses, err := c.PodStatuses(context.Background(), "ns1", "app=wordpress")
	if err != nil {
		t.Fatalf("PodStatuses failed: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("Expected 2 wordpress pods, got %d", len(statuses))
	}
	byName := map[string]PodStatus{}
	for _, s := range statuses {
		byName[s.Name] = s
	}
	if byName["wp-0"].Ready {
		t.Error("Pod with a non-ready container must not be ready")
	}
	if !byName["wp-1"].Ready {
		t.Error("Pod with all containers ready must be ready")
	}
}

func TestPodStatuses_NoContainersNotReady(t *testing.T) {
	p := pod("ns1", "wp-0", "wordpress", "Pending", true)
	p.Status.ContainerStatuses = nil
	c := fastClient(fake.NewSimpleClientset(p))
	statuses, err := c.PodStatuses(context.Background(), "ns1", "app=wordpress")
	if err != nil {
		t.Fatalf("PodStatuses failed: %v", err)
	}
	if statuses[0].Ready {
		t.Error("Pod with no container statuses must not be ready")
	}
}
