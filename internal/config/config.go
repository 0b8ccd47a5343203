package config

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config" yaml:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases" yaml:"databases"`
	Redis       RedisConfig               `json:"redis" yaml:"redis"`
	Dashboard   DashboardConfig           `json:"dashboard" yaml:"dashboard"`
	ObjectStore ObjectStoreConfig         `json:"object_store" yaml:"object_store"`
	Identity    IdentityConfig            `json:"identity" yaml:"identity"`
	Logging     LoggingConfig             `json:"logging" yaml:"logging"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address" yaml:"server_address"`
	Database      string `json:"database" yaml:"database"`
	MaxUploadMB   int    `json:"max_upload_mb" yaml:"max_upload_mb"`
	// AllowedOrigins enables CORS for browser clients served from elsewhere.
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`

	// Dashboard API summary calls run on a bounded worker pool.
	MinWorkers        int `json:"min_workers" yaml:"min_workers"`
	MaxWorkers        int `json:"max_workers" yaml:"max_workers"`
	QueueSize         int `json:"queue_size" yaml:"queue_size"`
	WorkerIdleTimeout int `json:"worker_idle_timeout" yaml:"worker_idle_timeout"` // minutes
}

type DatabaseConfig struct {
	DSN      string `json:"dsn" yaml:"dsn"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DBName   string `json:"db_name" yaml:"db_name"`
	Params   string `json:"params" yaml:"params"`
}

type RedisConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

// Enabled reports whether a redis server was configured.
func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

// DashboardConfig points at the remote analysis backend.
type DashboardConfig struct {
	BaseURL        string `json:"base_url" yaml:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

func (d DashboardConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutSeconds) * time.Second
}

type ObjectStoreConfig struct {
	// Driver is one of "s3", "azure" or "local".
	Driver string `json:"driver" yaml:"driver"`
	Bucket string `json:"bucket" yaml:"bucket"`

	Region          string `json:"region" yaml:"region"`
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
	UsePathStyle    bool   `json:"use_path_style" yaml:"use_path_style"`

	AzureAccount string `json:"azure_account" yaml:"azure_account"`
	AzureKey     string `json:"azure_key" yaml:"azure_key"`

	LocalDir      string `json:"local_dir" yaml:"local_dir"`
	PublicBaseURL string `json:"public_base_url" yaml:"public_base_url"`

	SignedURLTTLMinutes int `json:"signed_url_ttl_minutes" yaml:"signed_url_ttl_minutes"`
}

func (o ObjectStoreConfig) SignedURLTTL() time.Duration {
	return time.Duration(o.SignedURLTTLMinutes) * time.Minute
}

// IdentityConfig carries the credential used to sign and verify bearer tokens.
type IdentityConfig struct {
	Credential    string `json:"credential" yaml:"credential"`
	TokenTTLHours int    `json:"token_ttl_hours" yaml:"token_ttl_hours"`
}

func (i IdentityConfig) TokenTTL() time.Duration {
	return time.Duration(i.TokenTTLHours) * time.Hour
}

// Secret decodes the credential. Base64 input is decoded, anything else is used verbatim.
func (i IdentityConfig) Secret() ([]byte, error) {
	raw := strings.TrimSpace(i.Credential)
	if raw == "" {
		return nil, ErrMissingIdentityCredential
	}
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil && len(decoded) >= 16 {
		return decoded, nil
	}
	return []byte(raw), nil
}

type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

const (
	DefaultServerAddress = ":8090"
	DefaultDatabase      = "sqlite3"
	DefaultSQLitePath    = "./data/foresight.db"
	DefaultLocalDir      = "./data/uploads"
)

var ErrMissingIdentityCredential = errors.New("identity credential must be configured")

// Load reads configuration from the provided path (defaults to config.json).
// A missing default file is not an error so the service can run from the environment alone.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	var cfg Config
	data, err := os.ReadFile(absPath)
	switch {
	case err == nil:
		if err := decode(absPath, data, &cfg); err != nil {
			return nil, err
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults(filepath.Dir(absPath))
	return &cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
	}
	return nil
}

func (c *Config) applyEnv() {
	setString(&c.BasicConfig.ServerAddress, "SERVER_ADDRESS")
	setString(&c.BasicConfig.Database, "FORESIGHT_DB")
	setString(&c.Dashboard.BaseURL, "DASHBOARD_API_URL")
	setString(&c.ObjectStore.Driver, "OBJECT_STORE_DRIVER")
	setString(&c.ObjectStore.Bucket, "OBJECT_STORE_BUCKET")
	setString(&c.ObjectStore.Region, "S3_REGION")
	setString(&c.ObjectStore.Endpoint, "S3_ENDPOINT")
	setString(&c.ObjectStore.AccessKeyID, "S3_ACCESS_KEY_ID")
	setString(&c.ObjectStore.SecretAccessKey, "S3_SECRET_ACCESS_KEY")
	setString(&c.ObjectStore.AzureAccount, "AZURE_STORAGE_ACCOUNT")
	setString(&c.ObjectStore.AzureKey, "AZURE_STORAGE_KEY")
	setString(&c.ObjectStore.LocalDir, "OBJECT_STORE_LOCAL_DIR")
	setString(&c.ObjectStore.PublicBaseURL, "PUBLIC_BASE_URL")
	setString(&c.Identity.Credential, "IDENTITY_CREDENTIAL")
	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.Logging.Format, "LOG_FORMAT")

	if origins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS")); origins != "" {
		c.BasicConfig.AllowedOrigins = nil
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.BasicConfig.AllowedOrigins = append(c.BasicConfig.AllowedOrigins, o)
			}
		}
	}

	if dsn := os.Getenv("FORESIGHT_DB_DSN"); dsn != "" {
		driver := c.BasicConfig.Database
		if driver == "" {
			driver = DefaultDatabase
		}
		if c.Databases == nil {
			c.Databases = make(map[string]DatabaseConfig)
		}
		dbCfg := c.Databases[driver]
		dbCfg.DSN = dsn
		c.Databases[driver] = dbCfg
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		if host, portStr, err := net.SplitHostPort(addr); err == nil {
			c.Redis.Host = host
			if port, err := strconv.Atoi(portStr); err == nil {
				c.Redis.Port = port
			}
		} else {
			c.Redis.Host = addr
		}
	}
}

func (c *Config) applyDefaults(baseDir string) {
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = DefaultServerAddress
	}
	if c.BasicConfig.Database == "" {
		c.BasicConfig.Database = DefaultDatabase
	}
	if c.BasicConfig.MaxUploadMB <= 0 {
		c.BasicConfig.MaxUploadMB = 32
	}
	if c.BasicConfig.MaxWorkers <= 0 {
		c.BasicConfig.MaxWorkers = 8
	}
	if c.BasicConfig.MinWorkers < 0 || c.BasicConfig.MinWorkers > c.BasicConfig.MaxWorkers {
		c.BasicConfig.MinWorkers = 0
	}
	if c.BasicConfig.QueueSize <= 0 {
		c.BasicConfig.QueueSize = 64
	}
	if c.BasicConfig.WorkerIdleTimeout <= 0 {
		c.BasicConfig.WorkerIdleTimeout = 5
	}
	if c.Databases == nil {
		c.Databases = make(map[string]DatabaseConfig)
	}
	if sqliteCfg, ok := c.Databases["sqlite3"]; ok || c.BasicConfig.Database == "sqlite3" {
		if sqliteCfg.DSN == "" {
			sqliteCfg.DSN = DefaultSQLitePath
		}
		if sqliteCfg.DSN != ":memory:" && !strings.HasPrefix(sqliteCfg.DSN, "file:") && !filepath.IsAbs(sqliteCfg.DSN) {
			sqliteCfg.DSN = filepath.Join(baseDir, sqliteCfg.DSN)
		}
		c.Databases["sqlite3"] = sqliteCfg
	}
	if c.Dashboard.TimeoutSeconds <= 0 {
		c.Dashboard.TimeoutSeconds = 120
	}
	c.Dashboard.BaseURL = strings.TrimRight(c.Dashboard.BaseURL, "/")
	if c.ObjectStore.Driver == "" {
		c.ObjectStore.Driver = "s3"
	}
	c.ObjectStore.Driver = strings.ToLower(c.ObjectStore.Driver)
	if c.ObjectStore.Driver == "local" && c.ObjectStore.LocalDir == "" {
		c.ObjectStore.LocalDir = DefaultLocalDir
	}
	if c.ObjectStore.SignedURLTTLMinutes <= 0 {
		c.ObjectStore.SignedURLTTLMinutes = 15
	}
	if c.Identity.TokenTTLHours <= 0 {
		c.Identity.TokenTTLHours = 24
	}
	if c.Redis.Host != "" && c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks the settings that must be present before the server starts.
func (c *Config) Validate() error {
	if _, err := c.Identity.Secret(); err != nil {
		return err
	}
	if c.Dashboard.BaseURL == "" {
		return errors.New("dashboard base_url must be configured")
	}
	switch c.ObjectStore.Driver {
	case "s3", "azure":
		if c.ObjectStore.Bucket == "" {
			return fmt.Errorf("object_store bucket must be configured for driver %s", c.ObjectStore.Driver)
		}
	case "local":
	default:
		return fmt.Errorf("unsupported object store driver: %s", c.ObjectStore.Driver)
	}
	if _, ok := c.Databases[c.BasicConfig.Database]; !ok {
		return fmt.Errorf("database config for %s not found", c.BasicConfig.Database)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}
