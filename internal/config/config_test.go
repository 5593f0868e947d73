package config

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ghgate/ghgate/internal/safe"
)

func writeTestKey(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "app.pem")
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	return path
}

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GITHUB_APP_ID", "42")
	t.Setenv("GITHUB_INSTALLATION_ID", "7")
	t.Setenv("GITHUB_PRIVATE_KEY_PATH", writeTestKey(t))
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.AppID != 42 || cfg.App.InstallationID != 7 {
		t.Fatalf("unexpected identity: %+v", cfg.App)
	}
	if cfg.Limits.MaxAttempts != 4 || cfg.Limits.TotalTimeout != 30*time.Second {
		t.Fatalf("unexpected limit defaults: %+v", cfg.Limits)
	}
	if len(cfg.Policy.AllowedRepositories) != 0 || len(cfg.Policy.AllowedProjects) != 0 {
		t.Fatalf("expected empty allowlists by default: %+v", cfg.Policy)
	}
}

func TestLoadAllowlistsFromEnv(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("REPO_ALLOWLIST", "acme/widgets, acme/gadgets")
	t.Setenv("PROJECT_ALLOWLIST", "acme/3")
	t.Setenv("PROTECTED_BRANCH_PATTERNS", "main,release/*")
	t.Setenv("PR_ONLY", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Policy.AllowedRepositories) != 2 {
		t.Fatalf("expected 2 repos, got %v", cfg.Policy.AllowedRepositories)
	}
	if !cfg.Policy.PROnly {
		t.Fatal("expected PR-only mode on")
	}
	if len(cfg.Policy.ProtectedBranchPatterns) != 2 {
		t.Fatalf("expected 2 patterns, got %v", cfg.Policy.ProtectedBranchPatterns)
	}
}

func TestLoadPolicyFileEnvWins(t *testing.T) {
	setBaseEnv(t)

	policyPath := filepath.Join(t.TempDir(), "policy.yaml")
	yaml := "allowed_repositories: [file/repo]\nallowed_projects: [file/1]\npr_only: true\n"
	if err := os.WriteFile(policyPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write policy file: %v", err)
	}
	t.Setenv("GHGATE_POLICY_FILE", policyPath)
	t.Setenv("REPO_ALLOWLIST", "env/repo")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Policy.AllowedRepositories) != 1 || cfg.Policy.AllowedRepositories[0] != "env/repo" {
		t.Fatalf("env should override file: %v", cfg.Policy.AllowedRepositories)
	}
	if len(cfg.Policy.AllowedProjects) != 1 || cfg.Policy.AllowedProjects[0] != "file/1" {
		t.Fatalf("file value should survive where env is unset: %v", cfg.Policy.AllowedProjects)
	}
	if !cfg.Policy.PROnly {
		t.Fatal("pr_only from file should apply")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"bad app id", "GITHUB_APP_ID", "zero"},
		{"bad attempt count", "MAX_ATTEMPTS", "0"},
		{"bad repo entry", "REPO_ALLOWLIST", "not-a-repo"},
		{"bad project entry", "PROJECT_ALLOWLIST", "acme/three"},
		{"bad pr flag", "PR_ONLY", "maybe"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setBaseEnv(t)
			t.Setenv(tc.key, tc.value)

			_, err := Load()
			if err == nil {
				t.Fatal("expected config error")
			}
			se := safe.From(err)
			if se.Code != safe.CodeConfig {
				t.Fatalf("expected config code, got %s", se.Code)
			}
		})
	}
}

func TestLoadMissingKeyFailsFast(t *testing.T) {
	t.Setenv("GITHUB_APP_ID", "42")
	t.Setenv("GITHUB_INSTALLATION_ID", "7")
	t.Setenv("GITHUB_PRIVATE_KEY_PATH", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when private key path is missing")
	}
}

func TestStringElidesKeyMaterial(t *testing.T) {
	setBaseEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.String()
	if s == "" || strings.Contains(s, "PRIVATE KEY") || strings.Contains(s, "BEGIN") {
		t.Fatalf("config string should be short and key-free: %q", s)
	}
}
