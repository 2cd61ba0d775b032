package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Environment variables that carry secrets. They override the config file.
const (
	EnvPassword         = "MYPERF_PASSWORD"
	EnvAnnotationAPIKey = "MYPERF_ANNOTATION_API_KEY"
	EnvAnnotationURL    = "MYPERF_ANNOTATION_ENDPOINT"
)

const maskedSecret = "******"

// Config captures all runtime options for one diagnostic run.
type Config struct {
	Connection            Connection       `yaml:"connection"`
	Workers               int              `yaml:"workers"`
	QueryTimeoutSeconds   int              `yaml:"query_timeout_seconds"`
	ConnectTimeoutSeconds int              `yaml:"connect_timeout_seconds"`
	Output                OutputConfig     `yaml:"output"`
	Annotation            AnnotationConfig `yaml:"annotation"`
	Storage               StorageConfig    `yaml:"storage"`
	Logging               Logging          `yaml:"logging"`
}

// Connection describes how to reach the server. DSN, when set, wins over the
// individual fields.
type Connection struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	TLS      string `yaml:"tls"`
	DSN      string `yaml:"dsn"`
}

// OutputConfig controls where and how results are persisted.
type OutputConfig struct {
	Dir           string `yaml:"dir"`
	Separator     string `yaml:"separator"`
	NullText      string `yaml:"null_text"`
	LegacyQuoting bool   `yaml:"legacy_quoting"`
	Archive       bool   `yaml:"archive"`
	Console       bool   `yaml:"console"`
}

// SeparatorRune returns the field separator, ',' when unset.
func (o OutputConfig) SeparatorRune() rune {
	for _, r := range o.Separator {
		return r
	}
	return ','
}

// AnnotationConfig configures the optional completion service.
type AnnotationConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Endpoint       string   `yaml:"endpoint"`
	Deployment     string   `yaml:"deployment"`
	APIVersion     string   `yaml:"api_version"`
	APIKey         string   `yaml:"api_key"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Summary        Sampling `yaml:"summary"`
	Explain        Sampling `yaml:"explain"`
}

// Sampling holds completion parameters for one prompt kind.
type Sampling struct {
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	TopP        float64 `yaml:"top_p"`
}

// Logging controls log output.
type Logging struct {
	Verbose bool   `yaml:"verbose"`
	LogFile string `yaml:"log_file"`
	// ReportIntervalSeconds enables periodic progress lines; 0 disables them.
	ReportIntervalSeconds int `yaml:"report_interval_seconds"`
}

// ReportInterval returns the progress logging interval.
func (l Logging) ReportInterval() time.Duration {
	return time.Duration(l.ReportIntervalSeconds) * time.Second
}

// StorageConfig holds external storage settings.
type StorageConfig struct {
	S3  S3Config  `yaml:"s3"`
	GCS GCSConfig `yaml:"gcs"`
}

// CloudEnabled reports whether any cloud storage backend is enabled.
func (s StorageConfig) CloudEnabled() bool {
	return s.GCS.Enabled || s.S3.Enabled
}

// S3Config configures S3 uploads (legacy and S3-compatible endpoints).
type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// GCSConfig configures GCS uploads.
type GCSConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	CredentialsFile string `yaml:"credentials_file"`
}

const (
	workersDefault               = 1
	queryTimeoutSecondsDefault   = 30
	connectTimeoutSecondsDefault = 10
	annotationTimeoutDefault     = 60
	portDefault                  = 3306
	resultsDirName               = "MySQLPerfCheckerResults"
)

// Load reads configuration from a YAML file. An empty path yields defaults.
// Secrets from the environment are applied last.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parse config %s", path)
		}
	}
	applyEnv(&cfg)
	normalizeConfig(&cfg)
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Connection: Connection{
			Host: "127.0.0.1",
			Port: portDefault,
			User: "root",
		},
		Workers:               workersDefault,
		QueryTimeoutSeconds:   queryTimeoutSecondsDefault,
		ConnectTimeoutSeconds: connectTimeoutSecondsDefault,
		Output: OutputConfig{
			Dir:       filepath.Join(os.TempDir(), resultsDirName),
			Separator: ",",
			Console:   true,
		},
		Annotation: AnnotationConfig{
			APIVersion:     "2023-05-15",
			TimeoutSeconds: annotationTimeoutDefault,
			Summary:        Sampling{Temperature: 0.7, MaxTokens: 800, TopP: 0.95},
			Explain:        Sampling{Temperature: 0.75, MaxTokens: 300, TopP: 0.95},
		},
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvPassword); v != "" {
		cfg.Connection.Password = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAnnotationAPIKey)); v != "" {
		cfg.Annotation.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAnnotationURL)); v != "" {
		cfg.Annotation.Endpoint = v
	}
}

func normalizeConfig(cfg *Config) {
	cfg.Connection.Host = strings.TrimSpace(cfg.Connection.Host)
	cfg.Connection.User = strings.TrimSpace(cfg.Connection.User)
	cfg.Connection.DSN = strings.TrimSpace(cfg.Connection.DSN)
	if cfg.Connection.Port <= 0 {
		cfg.Connection.Port = portDefault
	}
	if cfg.Workers <= 0 {
		cfg.Workers = workersDefault
	}
	if cfg.QueryTimeoutSeconds <= 0 {
		cfg.QueryTimeoutSeconds = queryTimeoutSecondsDefault
	}
	if cfg.ConnectTimeoutSeconds <= 0 {
		cfg.ConnectTimeoutSeconds = connectTimeoutSecondsDefault
	}
	if cfg.Annotation.TimeoutSeconds <= 0 {
		cfg.Annotation.TimeoutSeconds = annotationTimeoutDefault
	}
	if strings.TrimSpace(cfg.Output.Dir) == "" {
		cfg.Output.Dir = filepath.Join(os.TempDir(), resultsDirName)
	}
	if cfg.Logging.ReportIntervalSeconds < 0 {
		cfg.Logging.ReportIntervalSeconds = 0
	}
	if cfg.Output.Separator == "" {
		cfg.Output.Separator = ","
	}
	cfg.Annotation.Endpoint = strings.TrimRight(strings.TrimSpace(cfg.Annotation.Endpoint), "/")
	cfg.Storage.S3.Prefix = strings.Trim(cfg.Storage.S3.Prefix, "/")
	cfg.Storage.GCS.Prefix = strings.Trim(cfg.Storage.GCS.Prefix, "/")
}

// Validate reports configuration errors that make a run impossible.
func (c Config) Validate() error {
	if c.Connection.DSN == "" {
		if c.Connection.Host == "" {
			return errors.New("connection.host is required")
		}
		if c.Connection.User == "" {
			return errors.New("connection.user is required")
		}
	} else if _, err := mysql.ParseDSN(c.Connection.DSN); err != nil {
		return errors.Wrap(err, "connection.dsn")
	}
	if len([]rune(c.Output.Separator)) != 1 {
		return errors.Errorf("output.separator must be a single character, got %q", c.Output.Separator)
	}
	if c.Output.Separator == `"` || c.Output.Separator == "\n" {
		return errors.Errorf("output.separator %q conflicts with quoting", c.Output.Separator)
	}
	if c.Annotation.Enabled {
		if c.Annotation.Endpoint == "" {
			return errors.New("annotation.endpoint is required when annotation is enabled")
		}
		if c.Annotation.Deployment == "" {
			return errors.New("annotation.deployment is required when annotation is enabled")
		}
	}
	if c.Storage.S3.Enabled && c.Storage.S3.Bucket == "" {
		return errors.New("storage.s3.bucket is required when s3 is enabled")
	}
	if c.Storage.GCS.Enabled && c.Storage.GCS.Bucket == "" {
		return errors.New("storage.gcs.bucket is required when gcs is enabled")
	}
	return nil
}

// QueryTimeout returns the per-query deadline.
func (c Config) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSeconds) * time.Second
}

// ConnectTimeout returns the driver dial timeout.
func (c Config) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSeconds) * time.Second
}

// Timeout returns the per-call annotation deadline.
func (a AnnotationConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// DSN builds a driver DSN for the connection descriptor. No database is
// selected; every catalog query is schema-qualified.
func (c Config) DSN() (string, error) {
	if c.Connection.DSN != "" {
		parsed, err := mysql.ParseDSN(c.Connection.DSN)
		if err != nil {
			return "", errors.Wrap(err, "parse dsn")
		}
		if parsed.Timeout == 0 {
			parsed.Timeout = c.ConnectTimeout()
		}
		return parsed.FormatDSN(), nil
	}
	mc := mysql.NewConfig()
	mc.User = c.Connection.User
	mc.Passwd = c.Connection.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(c.Connection.Host, strconv.Itoa(c.Connection.Port))
	mc.Timeout = c.ConnectTimeout()
	mc.TLSConfig = c.Connection.TLS
	return mc.FormatDSN(), nil
}

// SafeAddress describes the target without credentials, for logs.
func (c Config) SafeAddress() string {
	if c.Connection.DSN != "" {
		parsed, err := mysql.ParseDSN(c.Connection.DSN)
		if err != nil {
			return "<invalid dsn>"
		}
		return fmt.Sprintf("%s@%s(%s)", parsed.User, parsed.Net, parsed.Addr)
	}
	return fmt.Sprintf("%s@tcp(%s)", c.Connection.User, net.JoinHostPort(c.Connection.Host, strconv.Itoa(c.Connection.Port)))
}

// Masked returns a copy with every secret replaced, suitable for printing.
func (c Config) Masked() Config {
	out := c
	out.Connection.Password = mask(out.Connection.Password)
	if out.Connection.DSN != "" {
		if parsed, err := mysql.ParseDSN(out.Connection.DSN); err == nil {
			parsed.Passwd = mask(parsed.Passwd)
			out.Connection.DSN = parsed.FormatDSN()
		} else {
			out.Connection.DSN = maskedSecret
		}
	}
	out.Annotation.APIKey = mask(out.Annotation.APIKey)
	out.Storage.S3.SecretAccessKey = mask(out.Storage.S3.SecretAccessKey)
	out.Storage.S3.SessionToken = mask(out.Storage.S3.SessionToken)
	return out
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return maskedSecret
}
