package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabaseURL string
	OpsDBPath   string
	LogLevel    string
	LogFile     string

	Server    ServerConfig
	Scheduler SchedulerConfig
	Queue     QueueConfig
	Monitor   MonitorConfig
	Search    SearchConfig
	Blob      BlobConfig

	Sites map[string]*SiteProfile
}

type ServerConfig struct {
	Addr        string
	MetricsAddr string
	APIToken    string
}

type SchedulerConfig struct {
	Cron     string
	Interval time.Duration
}

type QueueConfig struct {
	LeaseDuration time.Duration
	MaxAttempts   int
	RetryBackoff  time.Duration
}

type MonitorConfig struct {
	BatchSize        int
	Concurrency      int
	DefaultCadence   time.Duration
	FailureThreshold int
	FetchTimeout     time.Duration
}

type SearchConfig struct {
	BaseURL string
	AppID   string
	AppKey  string
	Country string
}

type BlobConfig struct {
	Bucket          string
	Region          string
	Endpoint        string // optional, for R2/Spaces
	AccessKeyID     string
	SecretAccessKey string
}

// SiteProfile is an immutable per-site extraction descriptor, loaded from
// config/sites/*.yaml at startup and never mutated at runtime.
type SiteProfile struct {
	ID            string    `yaml:"id"`
	Name          string    `yaml:"name"`
	BaseURL       string    `yaml:"base_url"`
	SearchURL     string    `yaml:"search_url"`
	JobURLPattern string    `yaml:"job_url_pattern"`
	RequiresAuth  bool      `yaml:"requires_auth"`
	RateLimitMS   int       `yaml:"rate_limit_ms"`
	Selectors     Selectors `yaml:"selectors"`
}

// Selectors names the CSS selectors for each monitored field. A selector that
// matches nothing leaves the field absent; an empty selector disables it.
type Selectors struct {
	Title       string `yaml:"title"`
	Company     string `yaml:"company"`
	Location    string `yaml:"location"`
	Salary      string `yaml:"salary"`
	Description string `yaml:"description"`
	PostedDate  string `yaml:"posted_date"`
	Pagination  string `yaml:"pagination"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		OpsDBPath:   getEnv("OPS_DB_PATH", "jobscout.db"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFile:     getEnv("LOG_FILE", "logs/jobscout.log"),
		Server: ServerConfig{
			Addr:        getEnv("API_ADDR", ":8787"),
			MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
			APIToken:    os.Getenv("API_TOKEN"),
		},
		Scheduler: SchedulerConfig{
			Cron: os.Getenv("MONITOR_CRON"),
		},
		Queue: QueueConfig{
			LeaseDuration: getEnvDuration("QUEUE_LEASE", 30*time.Minute),
			MaxAttempts:   getEnvInt("QUEUE_MAX_ATTEMPTS", 3),
			RetryBackoff:  getEnvDuration("QUEUE_RETRY_BACKOFF", 5*time.Minute),
		},
		Monitor: MonitorConfig{
			BatchSize:        getEnvInt("MONITOR_BATCH_SIZE", 20),
			Concurrency:      getEnvInt("MONITOR_CONCURRENCY", 4),
			DefaultCadence:   getEnvDuration("MONITOR_DEFAULT_CADENCE", 24*time.Hour),
			FailureThreshold: getEnvInt("MONITOR_FAILURE_THRESHOLD", 3),
			FetchTimeout:     getEnvDuration("MONITOR_FETCH_TIMEOUT", 90*time.Second),
		},
		Search: SearchConfig{
			BaseURL: getEnv("SEARCH_API_URL", "https://api.adzuna.com/v1/api/jobs"),
			AppID:   os.Getenv("SEARCH_APP_ID"),
			AppKey:  os.Getenv("SEARCH_APP_KEY"),
			Country: getEnv("SEARCH_COUNTRY", "us"),
		},
		Blob: BlobConfig{
			Bucket:          os.Getenv("BLOB_BUCKET"),
			Region:          getEnv("BLOB_REGION", "auto"),
			Endpoint:        os.Getenv("BLOB_ENDPOINT"),
			AccessKeyID:     os.Getenv("BLOB_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("BLOB_SECRET_ACCESS_KEY"),
		},
		Sites: make(map[string]*SiteProfile),
	}

	if interval := os.Getenv("MONITOR_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			cfg.Scheduler.Interval = d
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL not set")
	}

	if err := cfg.loadSiteProfiles(getEnv("SITES_DIR", "config/sites")); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadSiteProfiles(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return err
		}

		var site SiteProfile
		if err := yaml.Unmarshal(data, &site); err != nil {
			return fmt.Errorf("parse %s: %w", entry.Name(), err)
		}
		if site.ID == "" {
			return fmt.Errorf("site profile %s has no id", entry.Name())
		}

		c.Sites[site.ID] = &site
	}

	return nil
}

// Profile returns the profile for a site id, or nil if unknown.
func (c *Config) Profile(siteID string) *SiteProfile {
	return c.Sites[siteID]
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
