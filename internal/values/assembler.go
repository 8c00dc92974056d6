// Package values assembles the chart values for one storefront: a profile
// base file from the chart directory deep-merged with a generated overlay of
// per-store identifiers and secrets.
package values

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	sigyaml "sigs.k8s.io/yaml"
)

const secretAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// localSuffixes are domains that resolve without public DNS; TLS issuance is
// impossible for them, so TLS is forced off.
var localSuffixes = []string{".localtest.me", ".localhost", ".nip.io", ".sslip.io"}

// Assembler builds the values file for a store release.
type Assembler struct {
	ChartPath    string
	Profile      string
	IngressClass string
	TLSEnabled   bool
	// StorageClass, when set, overrides the chart's MySQL volume class.
	StorageClass string
}

// Result carries the rendered values file and the secrets the caller must
// persist or return.
type Result struct {
	Path          string
	AdminPassword string
}

// Assemble merges the profile base with the dynamic overlay and writes the
// result to a temp JSON file (JSON is valid YAML for helm -f).
func (a *Assembler) Assemble(storeID, storeName, domain, namespace string) (*Result, error) {
	base, err := a.loadBase()
	if err != nil {
		return nil, err
	}

	adminPassword, err := randString(32)
	if err != nil {
		return nil, err
	}
	rootPassword, err := randString(32)
	if err != nil {
		return nil, err
	}
	dbPassword, err := randString(32)
	if err != nil {
		return nil, err
	}
	salts, err := generateSalts()
	if err != nil {
		return nil, err
	}

	tlsEnabled := a.TLSEnabled
	if isLocalDomain(domain) {
		tlsEnabled = false
	}
	scheme := "https"
	if !tlsEnabled {
		scheme = "http"
	}

	overlay := map[string]interface{}{
		"storeName": storeName,
		"storeId":   storeID,
		"domain":    domain,
		"namespace": map[string]interface{}{
			"name": namespace,
		},
		"mysql": mysqlValues(rootPassword, dbPassword, a.StorageClass),
		"wordpress": map[string]interface{}{
			"adminUser":     "admin",
			"adminPassword": adminPassword,
			"adminEmail":    "admin@example.com",
			"siteTitle":     storeName,
			"siteUrl":       fmt.Sprintf("%s://%s", scheme, domain),
			"salts":         salts,
		},
		"ingress": map[string]interface{}{
			"className": a.IngressClass,
			"tls": map[string]interface{}{
				"enabled": tlsEnabled,
			},
		},
	}

	merged := Merge(base, overlay)
	data, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("marshal values: %w", err)
	}

	f, err := os.CreateTemp("", "store-values-*.json")
	if err != nil {
		return nil, fmt.Errorf("create values file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("write values file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, err
	}
	return &Result{Path: f.Name(), AdminPassword: adminPassword}, nil
}

// loadBase reads values-<profile>.yaml from the chart directory, falling back
// to values.yaml. A missing or empty file yields an empty map.
func (a *Assembler) loadBase() (map[string]interface{}, error) {
	candidates := []string{
		filepath.Join(a.ChartPath, fmt.Sprintf("values-%s.yaml", a.Profile)),
		filepath.Join(a.ChartPath, "values.yaml"),
	}
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		var base map[string]interface{}
		if err := sigyaml.Unmarshal(data, &base); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if base == nil {
			base = map[string]interface{}{}
		}
		return base, nil
	}
	return map[string]interface{}{}, nil
}

// Merge deep-merges override into base; override wins. Nested maps are merged
// recursively.
func Merge(base, override map[string]interface{}) map[string]interface{} {
	if base == nil {
		base = make(map[string]interface{})
	}
	if override == nil {
		return base
	}
	out := make(map[string]interface{}, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		if vMap, ok := v.(map[string]interface{}); ok {
			if bVal, exists := out[k]; exists {
				if bMap, ok := bVal.(map[string]interface{}); ok {
					out[k] = Merge(bMap, vMap)
					continue
				}
			}
		}
		out[k] = v
	}
	return out
}

func mysqlValues(rootPassword, dbPassword, storageClass string) map[string]interface{} {
	out := map[string]interface{}{
		"rootPassword": rootPassword,
		"database":     "woocommerce",
		"user":         "woocommerce",
		"password":     dbPassword,
	}
	if storageClass != "" {
		out["persistence"] = map[string]interface{}{
			"storageClass": storageClass,
		}
	}
	return out
}

func isLocalDomain(domain string) bool {
	for _, suffix := range localSuffixes {
		if strings.HasSuffix(domain, suffix) {
			return true
		}
	}
	return false
}

func generateSalts() (map[string]interface{}, error) {
	keys := []string{
		"authKey", "secureAuthKey", "loggedInKey", "nonceKey",
		"authSalt", "secureAuthSalt", "loggedInSalt", "nonceSalt",
	}
	salts := make(map[string]interface{}, len(keys))
	for _, k := range keys {
		s, err := randString(64)
		if err != nil {
			return nil, err
		}
		salts[k] = s
	}
	return salts, nil
}

func randString(n int) (string, error) {
	max := big.NewInt(int64(len(secretAlphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("random source: %w", err)
		}
		b[i] = secretAlphabet[idx.Int64()]
	}
	return string(b), nil
}
