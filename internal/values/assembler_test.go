package values

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func readValues(t *testing.T, path string) map[string]interface{} {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read values file: %v", err)
	}
	var v map[string]interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("parse values file: %v", err)
	}
	return v
}

func nested(t *testing.T, v map[string]interface{}, keys ...string) interface{} {
	t.Helper()
	var cur interface{} = v
	for _, k := range keys {
		m, ok := cur.(map[string]interface{})
		if !ok {
			t.Fatalf("not a map at %q", k)
		}
		cur = m[k]
	}
	return cur
}

func TestAssemble_OverlayKeys(t *testing.T) {
	a := &Assembler{ChartPath: t.TempDir(), Profile: "dev", IngressClass: "traefik", TLSEnabled: true}
	res, err := a.Assemble("id-1", "My Shop", "myshop.203-0-113-9.example.com", "store-id-1")
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	defer os.Remove(res.Path)
	v := readValues(t, res.Path)

	if v["storeName"] != "My Shop" || v["storeId"] != "id-1" {
		t.Errorf("Store identity keys wrong: %v %v", v["storeName"], v["storeId"])
	}
	if nested(t, v, "namespace", "name") != "store-id-1" {
		t.Error("namespace.name missing")
	}
	if nested(t, v, "mysql", "database") != "woocommerce" || nested(t, v, "mysql", "user") != "woocommerce" {
		t.Error("mysql database/user must be woocommerce")
	}
	if nested(t, v, "wordpress", "adminUser") != "admin" {
		t.Error("wordpress.adminUser must be admin")
	}
	if nested(t, v, "wordpress", "adminPassword") != res.AdminPassword {
		t.Error("Returned admin password must match the rendered values")
	}
	if nested(t, v, "wordpress", "siteUrl") != "https://myshop.203-0-113-9.example.com" {
		t.Errorf("siteUrl wrong: %v", nested(t, v, "wordpress", "siteUrl"))
	}
	if nested(t, v, "ingress", "className") != "traefik" {
		t.Error("ingress.className wrong")
	}
	if nested(t, v, "ingress", "tls", "enabled") != true {
		t.Error("TLS should stay enabled for a public domain")
	}
	salts, ok := nested(t, v, "wordpress", "salts").(map[string]interface{})
	if !ok || len(salts) != 8 {
		t.Fatalf("Expected 8 salts, got %v", salts)
	}
	for k, s := range salts {
		if len(s.(string)) != 64 {
			t.Errorf("Salt %s should be 64 chars, got %d", k, len(s.(string)))
		}
	}
}

func TestAssemble_TLSForcedOffForLocalDomains(t *testing.T) {
	for _, domain := range []string{
		"shop.127-0-0-1.nip.io",
		"shop.localtest.me",
		"shop.localhost",
		"shop.10-0-0-1.sslip.io",
	} {
		a := &Assembler{ChartPath: t.TempDir(), Profile: "dev", IngressClass: "nginx", TLSEnabled: true}
		res, err := a.Assemble("id", "Shop", domain, "store-id")
		if err != nil {
			t.Fatalf("Assemble(%s) failed: %v", domain, err)
		}
		v := readValues(t, res.Path)
		os.Remove(res.Path)
		if nested(t, v, "ingress", "tls", "enabled") != false {
			t.Errorf("TLS must be forced off for %s", domain)
		}
		if !strings.HasPrefix(nested(t, v, "wordpress", "siteUrl").(string), "http://") {
			t.Errorf("siteUrl must be http for %s", domain)
		}
	}
}

func TestAssemble_ProfileBaseAndFallback(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "values-dev.yaml"), []byte("replicas: 1\nmysql:\n  storageSize: 1Gi\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "values.yaml"), []byte("replicas: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	a := &Assembler{ChartPath: dir, Profile: "dev", IngressClass: "nginx"}
	res, err := a.Assemble("id", "Shop", "shop.example.com", "store-id")
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	v := readValues(t, res.Path)
	os.Remove(res.Path)
	if v["replicas"] != float64(1) {
		t.Errorf("Profile file must win over values.yaml, got replicas=%v", v["replicas"])
	}
	if nested(t, v, "mysql", "storageSize") != "1Gi" {
		t.Error("Base mysql keys must survive the overlay merge")
	}
	if nested(t, v, "mysql", "database") != "woocommerce" {
		t.Error("Overlay mysql keys must be merged in")
	}

	// Unknown profile falls back to values.yaml.
	a.Profile = "prod"
	res, err = a.Assemble("id", "Shop", "shop.example.com", "store-id")
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	v = readValues(t, res.Path)
	os.Remove(res.Path)
	if v["replicas"] != float64(3) {
		t.Errorf("Expected fallback to values.yaml, got replicas=%v", v["replicas"])
	}
}

func TestAssemble_MissingBaseFilesYieldOverlayOnly(t *testing.T) {
	a := &Assembler{ChartPath: t.TempDir(), Profile: "dev", IngressClass: "nginx"}
	res, err := a.Assemble("id", "Shop", "shop.example.com", "store-id")
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	defer os.Remove(res.Path)
	v := readValues(t, res.Path)
	if v["storeId"] != "id" {
		t.Error("Overlay must be present even with no base file")
	}
}

func TestRandString_AlphabetAndLength(t *testing.T) {
	s, err := randString(256)
	if err != nil {
		t.Fatalf("randString failed: %v", err)
	}
	if len(s) != 256 {
		t.Fatalf("Expected 256 chars, got %d", len(s))
	}
	for _, r := range s {
		if !strings.ContainsRune(secretAlphabet, r) {
			t.Fatalf("Character %q outside [a-zA-Z0-9]", r)
		}
	}
	s2, _ := randString(256)
	if s == s2 {
		t.Error("Two draws should not collide")
	}
}

func TestAssemble_StorageClassOverride(t *testing.T) {
	a := &Assembler{ChartPath: t.TempDir(), Profile: "dev", IngressClass: "nginx", StorageClass: "local-path"}
	res, err := a.Assemble("id", "Shop", "shop.example.com", "store-id")
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	defer os.Remove(res.Path)
	v := readValues(t, res.Path)
	if nested(t, v, "mysql", "persistence", "storageClass") != "local-path" {
		t.Error("Storage class override missing")
	}

	a.StorageClass = ""
	res, err = a.Assemble("id2", "Shop", "shop.example.com", "store-id2")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(res.Path)
	v = readValues(t, res.Path)
	if _, ok := nested(t, v, "mysql").(map[string]interface{})["persistence"]; ok {
		t.Error("No persistence key expected without a storage class")
	}
}

func TestMerge(t *testing.T) {
	cases := []struct {
		name     string
		base     map[string]interface{}
		override map[string]interface{}
		want     map[string]interface{}
	}{
		{
			name:     "override wins at leaves",
			base:     map[string]interface{}{"a": map[string]interface{}{"x": 1, "y": 2}, "b": "keep"},
			override: map[string]interface{}{"a": map[string]interface{}{"y": 3}},
			want:     map[string]interface{}{"a": map[string]interface{}{"x": 1, "y": 3}, "b": "keep"},
		},
		{
			name:     "map replaces scalar",
			base:     map[string]interface{}{"a": "scalar"},
			override: map[string]interface{}{"a": map[string]interface{}{"x": 1}},
			want:     map[string]interface{}{"a": map[string]interface{}{"x": 1}},
		},
		{
			name:     "nil base",
			base:     nil,
			override: map[string]interface{}{"a": 1},
			want:     map[string]interface{}{"a": 1},
		},
		{
			name:     "nil override",
			base:     map[string]interface{}{"a": 1},
			override: nil,
			want:     map[string]interface{}{"a": 1},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Merge(tc.base, tc.override))
		})
	}
}
