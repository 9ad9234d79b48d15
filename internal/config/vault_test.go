package config

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func vaultServer(t *testing.T, secrets map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/secret/data/pgxray" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("X-Vault-Token") != "test-token" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		inner := make(map[string]interface{}, len(secrets))
		for k, v := range secrets {
			inner[k] = v
		}
		resp := map[string]interface{}{
			"data": map[string]interface{}{"data": inner},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestResolveVault_Success(t *testing.T) {
	server := vaultServer(t, map[string]string{"conn": "postgres://auditor:pw@db/shop"})
	defer server.Close()

	t.Setenv("VAULT_ADDR", server.URL)
	t.Setenv("VAULT_TOKEN", "test-token")

	val, err := resolveVault("secret/data/pgxray#conn")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "postgres://auditor:pw@db/shop" {
		t.Errorf("got %q", val)
	}
}

func TestResolveVault_MissingKey(t *testing.T) {
	server := vaultServer(t, map[string]string{"other": "x"})
	defer server.Close()

	t.Setenv("VAULT_ADDR", server.URL)
	t.Setenv("VAULT_TOKEN", "test-token")

	if _, err := resolveVault("secret/data/pgxray#conn"); err == nil {
		t.Error("expected error for missing key")
	}
}

func TestResolveVault_InvalidFormat(t *testing.T) {
	t.Setenv("VAULT_ADDR", "http://localhost:8200")
	t.Setenv("VAULT_TOKEN", "test-token")

	if _, err := resolveVault("no-hash-separator"); err == nil {
		t.Error("expected error for invalid reference format")
	}
}

func TestResolveVault_MissingEnv(t *testing.T) {
	t.Setenv("VAULT_ADDR", "")
	t.Setenv("VAULT_TOKEN", "")

	if _, err := resolveVault("secret/data/pgxray#conn"); err == nil {
		t.Error("expected error when VAULT_ADDR not set")
	}
}

func TestResolveValue_Vault(t *testing.T) {
	server := vaultServer(t, map[string]string{"pass": "hunter2"})
	defer server.Close()

	t.Setenv("VAULT_ADDR", server.URL)
	t.Setenv("VAULT_TOKEN", "test-token")

	val, err := ResolveValue("postgres://auditor:${VAULT:secret/data/pgxray#pass}@db/shop")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "postgres://auditor:hunter2@db/shop" {
		t.Errorf("got %q", val)
	}
}
