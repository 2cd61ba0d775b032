package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmp, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := tmp.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := tmp.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	return tmp.Name()
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Connection.Port != 3306 {
		t.Fatalf("unexpected port: %d", cfg.Connection.Port)
	}
	if cfg.Workers != 1 {
		t.Fatalf("unexpected workers: %d", cfg.Workers)
	}
	if cfg.QueryTimeout() != 30*time.Second {
		t.Fatalf("unexpected query timeout: %v", cfg.QueryTimeout())
	}
	if cfg.Output.Separator != "," {
		t.Fatalf("unexpected separator: %q", cfg.Output.Separator)
	}
	if !strings.HasSuffix(cfg.Output.Dir, resultsDirName) {
		t.Fatalf("unexpected output dir: %s", cfg.Output.Dir)
	}
	if cfg.Annotation.Enabled {
		t.Fatalf("expected annotation disabled by default")
	}
	if cfg.Annotation.Summary.MaxTokens != 800 || cfg.Annotation.Explain.MaxTokens != 300 {
		t.Fatalf("unexpected sampling defaults: %+v %+v", cfg.Annotation.Summary, cfg.Annotation.Explain)
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Connection.Host != "127.0.0.1" {
		t.Fatalf("unexpected host: %s", cfg.Connection.Host)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `connection:
  host: " db.internal "
  port: 3307
  user: perf
workers: 4
query_timeout_seconds: 5
output:
  dir: /tmp/perf-out
  separator: ";"
annotation:
  enabled: true
  endpoint: https://example.openai.azure.com/
  deployment: gpt
storage:
  s3:
    prefix: /runs/
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Connection.Host != "db.internal" {
		t.Fatalf("unexpected host: %q", cfg.Connection.Host)
	}
	if cfg.Workers != 4 {
		t.Fatalf("unexpected workers: %d", cfg.Workers)
	}
	if cfg.QueryTimeout() != 5*time.Second {
		t.Fatalf("unexpected query timeout: %v", cfg.QueryTimeout())
	}
	if cfg.Annotation.Endpoint != "https://example.openai.azure.com" {
		t.Fatalf("unexpected endpoint: %s", cfg.Annotation.Endpoint)
	}
	if cfg.Storage.S3.Prefix != "runs" {
		t.Fatalf("unexpected s3 prefix: %s", cfg.Storage.S3.Prefix)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestNormalizeNonPositiveValues(t *testing.T) {
	path := writeConfig(t, `workers: -3
query_timeout_seconds: 0
connect_timeout_seconds: -1
annotation:
  timeout_seconds: 0
output:
  dir: "  "
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Workers != workersDefault {
		t.Fatalf("unexpected workers: %d", cfg.Workers)
	}
	if cfg.QueryTimeoutSeconds != queryTimeoutSecondsDefault {
		t.Fatalf("unexpected query timeout: %d", cfg.QueryTimeoutSeconds)
	}
	if cfg.ConnectTimeoutSeconds != connectTimeoutSecondsDefault {
		t.Fatalf("unexpected connect timeout: %d", cfg.ConnectTimeoutSeconds)
	}
	if cfg.Annotation.TimeoutSeconds != annotationTimeoutDefault {
		t.Fatalf("unexpected annotation timeout: %d", cfg.Annotation.TimeoutSeconds)
	}
	if filepath.Base(cfg.Output.Dir) != resultsDirName {
		t.Fatalf("unexpected output dir: %s", cfg.Output.Dir)
	}
}

func TestLoadSecretsFromEnv(t *testing.T) {
	t.Setenv(EnvPassword, "s3cret")
	t.Setenv(EnvAnnotationAPIKey, "key-123")
	cfg, err := Load(writeConfig(t, "connection:\n  password: from-file\n"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Connection.Password != "s3cret" {
		t.Fatalf("expected env password to win, got %s", cfg.Connection.Password)
	}
	if cfg.Annotation.APIKey != "key-123" {
		t.Fatalf("unexpected api key: %s", cfg.Annotation.APIKey)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing config")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing host", func(c *Config) { c.Connection.Host = "" }, "connection.host"},
		{"missing user", func(c *Config) { c.Connection.User = "" }, "connection.user"},
		{"long separator", func(c *Config) { c.Output.Separator = ",," }, "single character"},
		{"quote separator", func(c *Config) { c.Output.Separator = `"` }, "conflicts"},
		{"annotation endpoint", func(c *Config) { c.Annotation.Enabled = true }, "annotation.endpoint"},
		{"s3 bucket", func(c *Config) { c.Storage.S3.Enabled = true }, "storage.s3.bucket"},
		{"gcs bucket", func(c *Config) { c.Storage.GCS.Enabled = true }, "storage.gcs.bucket"},
		{"bad dsn", func(c *Config) { c.Connection.DSN = "not a dsn" }, "connection.dsn"},
	}
	for _, c := range cases {
		cfg := Default()
		c.mutate(&cfg)
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("%s: expected error", c.name)
		}
		if !strings.Contains(err.Error(), c.want) {
			t.Fatalf("%s: expected %q in %v", c.name, c.want, err)
		}
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestDSNFromFields(t *testing.T) {
	cfg := Default()
	cfg.Connection.Host = "db.example.com"
	cfg.Connection.Port = 3307
	cfg.Connection.User = "perf"
	cfg.Connection.Password = "p@ss"
	dsn, err := cfg.DSN()
	if err != nil {
		t.Fatalf("dsn: %v", err)
	}
	if !strings.HasPrefix(dsn, "perf:p@ss@tcp(db.example.com:3307)/") {
		t.Fatalf("unexpected dsn: %s", dsn)
	}
	if !strings.Contains(dsn, "timeout=10s") {
		t.Fatalf("expected connect timeout in dsn: %s", dsn)
	}
	if got := cfg.SafeAddress(); got != "perf@tcp(db.example.com:3307)" {
		t.Fatalf("unexpected safe address: %s", got)
	}
}

func TestDSNOverride(t *testing.T) {
	cfg := Default()
	cfg.Connection.DSN = "u:pw@tcp(10.0.0.1:3306)/?timeout=3s"
	dsn, err := cfg.DSN()
	if err != nil {
		t.Fatalf("dsn: %v", err)
	}
	if !strings.Contains(dsn, "10.0.0.1:3306") || !strings.Contains(dsn, "timeout=3s") {
		t.Fatalf("unexpected dsn: %s", dsn)
	}
}

func TestMaskedHidesSecrets(t *testing.T) {
	cfg := Default()
	cfg.Connection.Password = "pw"
	cfg.Annotation.APIKey = "key"
	cfg.Storage.S3.SecretAccessKey = "aws"
	data, err := yaml.Marshal(cfg.Masked())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out := string(data)
	for _, secret := range []string{"password: pw", "api_key: key", "secret_access_key: aws"} {
		if strings.Contains(out, secret) {
			t.Fatalf("secret leaked (%s) in:\n%s", secret, out)
		}
	}
	if cfg.Connection.Password != "pw" {
		t.Fatalf("Masked must not mutate the receiver")
	}
}

func TestSeparatorRuneAndReportInterval(t *testing.T) {
	path := writeConfig(t, "output:\n  separator: \";\"\nlogging:\n  report_interval_seconds: -4\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Output.SeparatorRune() != ';' {
		t.Fatalf("unexpected separator %q", cfg.Output.SeparatorRune())
	}
	if cfg.Logging.ReportInterval() != 0 {
		t.Fatalf("expected negative interval to disable progress logging")
	}
	if (OutputConfig{}).SeparatorRune() != ',' {
		t.Fatalf("expected default separator")
	}
}

func TestStorageCloudEnabled(t *testing.T) {
	if Default().Storage.CloudEnabled() {
		t.Fatalf("expected no storage backend by default")
	}
	path := writeConfig(t, "storage:\n  gcs:\n    enabled: true\n    bucket: diag\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Storage.CloudEnabled() {
		t.Fatalf("expected gcs to enable cloud storage")
	}
}
