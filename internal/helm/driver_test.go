package helm

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeStub writes an executable shell script standing in for the helm binary.
func writeStub(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "helm")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func testDriver(bin string) *Driver {
	d := New(nil)
	d.Bin = bin
	return d
}

func TestInstall_Success(t *testing.T) {
	d := testDriver(writeStub(t, `exit 0`))
	err := d.Install(context.Background(), "store-abc", "/charts/woo", "store-abc", "/tmp/values.json")
	if err != nil {
		t.Fatalf("Install failed: %v", err)
	}
}

func TestInstall_PassesExpectedArguments(t *testing.T) {
	out := filepath.Join(t.TempDir(), "args")
	d := testDriver(writeStub(t, `echo "$@" > `+out))
	if err := d.Install(context.Background(), "store-abc", "/charts/woo", "store-abc", "/tmp/v.json"); err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	want := "upgrade --install store-abc /charts/woo -n store-abc -f /tmp/v.json --wait --timeout 20m"
	if strings.TrimSpace(string(got)) != want {
		t.Errorf("Expected args %q, got %q", want, strings.TrimSpace(string(got)))
	}
}

func TestInstall_NonZeroExitCarriesStderr(t *testing.T) {
	d := testDriver(writeStub(t, `echo "Error: chart not found" >&2; exit 1`))
	err := d.Install(context.Background(), "r", "/c", "ns", "/v")
	if err == nil {
		t.Fatal("Expected error for non-zero exit")
	}
	if !strings.Contains(err.Error(), "chart not found") {
		t.Errorf("Expected stderr in error text, got %v", err)
	}
}

func TestInstall_TimeoutKillsProcessGroup(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "child-ran-too-long")
	// Parent and a backgrounded child both sleep past the timeout; the group
	// kill must take the child down before it writes the marker.
	d := testDriver(writeStub(t, `( sleep 30 && touch `+marker+` ) & sleep 30`))
	d.InstallTimeout = 500 * time.Millisecond
	d.KillGrace = 500 * time.Millisecond

	start := time.Now()
	err := d.Install(context.Background(), "r", "/c", "ns", "/v")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Expected ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Kill took too long: %v", elapsed)
	}
	time.Sleep(200 * time.Millisecond)
	if _, statErr := os.Stat(marker); statErr == nil {
		t.Error("Background child survived the group kill")
	}
}

func TestUninstall_Success(t *testing.T) {
	d := testDriver(writeStub(t, `exit 0`))
	if err := d.Uninstall(context.Background(), "store-abc", "store-abc"); err != nil {
		t.Fatalf("Uninstall failed: %v", err)
	}
}

func TestUninstall_ReleaseNotFoundSurfacesStderr(t *testing.T) {
	d := testDriver(writeStub(t, `echo "Error: uninstall: Release not loaded: store-abc: release: not found" >&2; exit 1`))
	err := d.Uninstall(context.Background(), "store-abc", "store-abc")
	if err == nil {
		t.Fatal("Expected error")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("Expected 'not found' in error, got %v", err)
	}
}

func TestListReleases_ParsesJSON(t *testing.T) {
	d := testDriver(writeStub(t, `echo '[{"name":"store-abc","namespace":"store-abc","status":"deployed","chart":"woocommerce-1.0.0"}]'`))
	releases, err := d.ListReleases(context.Background(), "store-abc")
	if err != nil {
		t.Fatalf("ListReleases failed: %v", err)
	}
	if len(releases) != 1 {
		t.Fatalf("Expected 1 release, got %d", len(releases))
	}
	if releases[0].Name != "store-abc" || releases[0].Status != "deployed" {
		t.Errorf("Unexpected release: %+v", releases[0])
	}
}

func TestListReleases_MalformedJSONYieldsEmptyList(t *testing.T) {
	d := testDriver(writeStub(t, `echo 'WARNING: not json at all'`))
	releases, err := d.ListReleases(context.Background(), "ns")
	if err != nil {
		t.Fatalf("ListReleases failed: %v", err)
	}
	if len(releases) != 0 {
		t.Errorf("Expected empty list for malformed output, got %d entries", len(releases))
	}
}

func TestRun_ContextCancellation(t *testing.T) {
	d := testDriver(writeStub(t, `sleep 30`))
	d.KillGrace = 500 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()
	err := d.Install(ctx, "r", "/c", "ns", "/v")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}
