package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Scheduler   SchedulerConfig
	Scraper     ScraperConfig
	Proxy       ProxyConfig
	S3          S3Config
	DBPath      string
	DatabaseURL string
	LogLevel    string
	LogFormat   string
	LogFile     string
	SitesDir    string
	SearchesDir string
	Sources     map[string]*SourceSchema
	Searches    []*SavedSearch
}

type SchedulerConfig struct {
	Interval time.Duration
	Cron     string
	// Stored properties unseen for StaleAfter are marked inactive every
	// HealthcheckInterval.
	StaleAfter          time.Duration
	HealthcheckInterval time.Duration
}

type ScraperConfig struct {
	UserAgent       string
	BrowserHeadless bool
	DefaultLimit    int
}

type ProxyConfig struct {
	URL string
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Scheduler: SchedulerConfig{
			Cron:     os.Getenv("SCRAPE_CRON"),
			Interval: getEnvDuration("SCRAPE_INTERVAL", 0),

			StaleAfter:          getEnvDuration("STALE_AFTER", 14*24*time.Hour),
			HealthcheckInterval: getEnvDuration("HEALTHCHECK_INTERVAL", 6*time.Hour),
		},
		Scraper: ScraperConfig{
			UserAgent:       os.Getenv("USER_AGENT"),
			BrowserHeadless: getEnvBool("BROWSER_HEADLESS", true),
			DefaultLimit:    getEnvInt("SEARCH_LIMIT", 20),
		},
		Proxy: ProxyConfig{
			URL: os.Getenv("PROXY_URL"),
		},
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		},
		DBPath:      getEnv("DB_PATH", "scrooper.db"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),
		LogFile:     getEnv("LOG_FILE", "scrooper.log"),
		SitesDir:    getEnv("SITES_DIR", "config/sites"),
		SearchesDir: getEnv("SEARCHES_DIR", "config/searches"),
	}

	sources, err := LoadSources(cfg.SitesDir)
	if err != nil {
		return nil, err
	}
	cfg.Sources = sources

	searches, err := LoadSearches(cfg.SearchesDir)
	if err != nil {
		return nil, err
	}
	cfg.Searches = searches

	return cfg, nil
}

// LoadSources reads every *.yaml schema in dir. A missing directory yields
// no sources.
func LoadSources(dir string) (map[string]*SourceSchema, error) {
	sources := make(map[string]*SourceSchema)

	files, err := yamlFiles(dir)
	if err != nil {
		return nil, err
	}

	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		schema, err := ParseSourceSchema(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if _, dup := sources[schema.ID]; dup {
			return nil, fmt.Errorf("%s: duplicate source id %q", path, schema.ID)
		}
		sources[schema.ID] = schema
	}

	return sources, nil
}

func yamlFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	return files, nil
}

func decodeStrict(data []byte, out interface{}) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(out)
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

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
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
