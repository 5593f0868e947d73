// Package config loads the process configuration once at startup and turns it
// into the immutable typed inputs the rest of the gateway consumes. Values
// come from environment variables, with an optional YAML policy file for the
// allowlist block; explicit env vars win over the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ghgate/ghgate/internal/safe"
)

// AppIdentity is the GitHub App installation identity. The key material is
// held only here and in the token provider; it is never serialized.
type AppIdentity struct {
	AppID          int64
	InstallationID int64
	PrivateKeyPEM  []byte
}

// PolicyConfig is the immutable authorization input. An empty repository
// allowlist allows all repositories; an empty project allowlist denies all
// project operations.
type PolicyConfig struct {
	AllowedRepositories     []string `yaml:"allowed_repositories"`
	AllowedProjects         []string `yaml:"allowed_projects"`
	PROnly                  bool     `yaml:"pr_only"`
	ProtectedBranchPatterns []string `yaml:"protected_branch_patterns"`
}

// RequestLimits bounds every outbound request.
type RequestLimits struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	TotalTimeout   time.Duration
	MaxAttempts    int
	MaxBackoff     time.Duration
	MaxBodyBytes   int64
}

// AuditConfig locates the best-effort file sink. An empty Path disables the
// file sink; the control stream is always written.
type AuditConfig struct {
	Path       string
	MaxBytes   int64
	MaxBackups int
}

type Config struct {
	App    AppIdentity
	Policy PolicyConfig
	Limits RequestLimits
	Audit  AuditConfig
}

// Load reads the environment exactly once. Invalid values fail fast with a
// config-class error before any tool executes.
func Load() (*Config, error) {
	cfg := &Config{
		Limits: RequestLimits{
			ConnectTimeout: 5 * time.Second,
			ReadTimeout:    10 * time.Second,
			TotalTimeout:   30 * time.Second,
			MaxAttempts:    4,
			MaxBackoff:     8 * time.Second,
			MaxBodyBytes:   1 << 20,
		},
		Audit: AuditConfig{
			MaxBytes:   1 << 20,
			MaxBackups: 3,
		},
	}

	appID, err := requireInt64("GITHUB_APP_ID")
	if err != nil {
		return nil, err
	}
	installationID, err := requireInt64("GITHUB_INSTALLATION_ID")
	if err != nil {
		return nil, err
	}
	keyPath := strings.TrimSpace(os.Getenv("GITHUB_PRIVATE_KEY_PATH"))
	if keyPath == "" {
		return nil, safe.Config("required env var GITHUB_PRIVATE_KEY_PATH is missing")
	}
	pem, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, safe.Config("read private key: %v", err)
	}
	cfg.App = AppIdentity{AppID: appID, InstallationID: installationID, PrivateKeyPEM: pem}

	if path := strings.TrimSpace(os.Getenv("GHGATE_POLICY_FILE")); path != "" {
		pol, err := loadPolicyFile(path)
		if err != nil {
			return nil, err
		}
		cfg.Policy = *pol
	}
	if v, ok := os.LookupEnv("REPO_ALLOWLIST"); ok {
		cfg.Policy.AllowedRepositories = splitCSV(v)
	}
	if v, ok := os.LookupEnv("PROJECT_ALLOWLIST"); ok {
		cfg.Policy.AllowedProjects = splitCSV(v)
	}
	if v, ok := os.LookupEnv("PROTECTED_BRANCH_PATTERNS"); ok {
		cfg.Policy.ProtectedBranchPatterns = splitCSV(v)
	}
	if v, ok := os.LookupEnv("PR_ONLY"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil, safe.Config("invalid PR_ONLY %q", v)
		}
		cfg.Policy.PROnly = b
	}

	cfg.Audit.Path = strings.TrimSpace(os.Getenv("AUDIT_LOG_PATH"))
	if err := overrideInt64(&cfg.Audit.MaxBytes, "AUDIT_MAX_BYTES", 1); err != nil {
		return nil, err
	}
	if err := overrideInt(&cfg.Audit.MaxBackups, "AUDIT_MAX_BACKUPS", 0); err != nil {
		return nil, err
	}

	if err := overrideSeconds(&cfg.Limits.ConnectTimeout, "CONNECT_TIMEOUT_SECONDS"); err != nil {
		return nil, err
	}
	if err := overrideSeconds(&cfg.Limits.ReadTimeout, "READ_TIMEOUT_SECONDS"); err != nil {
		return nil, err
	}
	if err := overrideSeconds(&cfg.Limits.TotalTimeout, "TOTAL_TIMEOUT_SECONDS"); err != nil {
		return nil, err
	}
	if err := overrideSeconds(&cfg.Limits.MaxBackoff, "MAX_BACKOFF_SECONDS"); err != nil {
		return nil, err
	}
	if err := overrideInt(&cfg.Limits.MaxAttempts, "MAX_ATTEMPTS", 1); err != nil {
		return nil, err
	}
	if err := overrideInt64(&cfg.Limits.MaxBodyBytes, "MAX_BODY_BYTES", 1); err != nil {
		return nil, err
	}

	for _, repo := range cfg.Policy.AllowedRepositories {
		if !strings.Contains(repo, "/") {
			return nil, safe.Config("REPO_ALLOWLIST entry %q is not owner/repo", repo)
		}
	}
	for _, proj := range cfg.Policy.AllowedProjects {
		if err := validateProjectKey(proj); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func loadPolicyFile(path string) (*PolicyConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, safe.Config("read policy file: %v", err)
	}
	var pol PolicyConfig
	if err := yaml.Unmarshal(raw, &pol); err != nil {
		return nil, safe.Config("parse policy file %s: %v", path, err)
	}
	return &pol, nil
}

func validateProjectKey(key string) error {
	parts := strings.SplitN(key, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		return safe.Config("PROJECT_ALLOWLIST entry %q is not owner/number", key)
	}
	if _, err := strconv.Atoi(parts[1]); err != nil {
		return safe.Config("PROJECT_ALLOWLIST entry %q has a non-numeric project number", key)
	}
	return nil
}

func requireInt64(key string) (int64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, safe.Config("required env var %s is missing", key)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, safe.Config("invalid %s %q", key, raw)
	}
	return v, nil
}

func overrideInt(dst *int, key string, min int) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min {
		return safe.Config("invalid %s %q", key, raw)
	}
	*dst = v
	return nil
}

func overrideInt64(dst *int64, key string, min int64) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < min {
		return safe.Config("invalid %s %q", key, raw)
	}
	*dst = v
	return nil
}

func overrideSeconds(dst *time.Duration, key string) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return safe.Config("invalid %s %q", key, raw)
	}
	*dst = time.Duration(secs) * time.Second
	return nil
}

func splitCSV(raw string) []string {
	out := make([]string, 0)
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// String renders the effective configuration for startup logging with the key
// material elided.
func (c *Config) String() string {
	return fmt.Sprintf("app_id=%d installation_id=%d repos=%d projects=%d pr_only=%v patterns=%d audit=%q",
		c.App.AppID, c.App.InstallationID,
		len(c.Policy.AllowedRepositories), len(c.Policy.AllowedProjects),
		c.Policy.PROnly, len(c.Policy.ProtectedBranchPatterns), c.Audit.Path)
}
