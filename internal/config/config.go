package config

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/face-search/internal/constants"
	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var modelsYAML []byte

type Config struct {
	Database  DatabaseConfig
	Storage   StorageConfig
	Extractor ExtractorConfig
	Ingest    IngestConfig
	Search    SearchConfig
	Web       WebConfig
	Models    ModelsConfig
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type StorageConfig struct {
	Backend   string // s3 or inline
	Fallback  string // inline or empty (no fallback)
	Endpoint  string // S3/MinIO endpoint, e.g. localhost:9000
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Secure    bool
	URLExpiry time.Duration // lifetime of presigned URLs (default 24h)
	Timeout   time.Duration // per-call timeout for blob store round trips
}

type ExtractorConfig struct {
	Backend   string // http or dlib
	URL       string // embedding server base URL for the http backend
	Model     string // key into models.yaml
	ModelsDir string // dlib model files
	Timeout   time.Duration
	CNN       bool // use the dlib CNN detector instead of HOG
}

type IngestConfig struct {
	Mode              string // inline or deferred
	Workers           int
	PollInterval      time.Duration
	MaxAttempts       int
	VisibilityTimeout time.Duration // a running job older than this is reclaimed
}

type SearchConfig struct {
	Metric           string // cosine or euclidean
	DefaultTolerance float64
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
	MaxImageSize   int64
	ThumbnailSize  int
}

type ModelsConfig struct {
	Models map[string]ModelSpec `yaml:"models"`
}

// ModelSpec describes one descriptor extraction method.
type ModelSpec struct {
	Version          string  `yaml:"version"`
	Dim              int     `yaml:"dim"`
	Metric           string  `yaml:"metric"`
	DefaultTolerance float64 `yaml:"default_tolerance"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a positive float, falling back to the default on bad input.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

// envDuration accepts Go duration strings ("30s") or plain seconds ("30").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return defaultVal
}

func envList(key, defaultVal string) []string {
	var out []string
	for item := range strings.SplitSeq(envString(key, defaultVal), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func Load() *Config {
	var models ModelsConfig
	if err := yaml.Unmarshal(modelsYAML, &models); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded models.yaml: " + err.Error())
	}

	return &Config{
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Storage: StorageConfig{
			Backend:   strings.ToLower(envString("STORAGE_BACKEND", "s3")),
			Fallback:  strings.ToLower(os.Getenv("STORAGE_FALLBACK")),
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
			Bucket:    envString("S3_BUCKET", "event-images"),
			Region:    envString("S3_REGION", "us-east-1"),
			Secure:    envBool("S3_SECURE", false),
			URLExpiry: envDuration("S3_URL_EXPIRY", 24*time.Hour),
			Timeout:   envDuration("STORAGE_TIMEOUT", 15*time.Second),
		},
		Extractor: ExtractorConfig{
			Backend:   strings.ToLower(envString("EXTRACTOR_BACKEND", "http")),
			URL:       envString("EXTRACTOR_URL", "http://localhost:8000"),
			Model:     envString("EXTRACTOR_MODEL", "dlib_resnet_v1"),
			ModelsDir: envString("EXTRACTOR_MODELS_DIR", "./models"),
			Timeout:   envDuration("EXTRACTOR_TIMEOUT", 30*time.Second),
			CNN:       envBool("EXTRACTOR_CNN", false),
		},
		Ingest: IngestConfig{
			Mode:              strings.ToLower(envString("INGEST_MODE", "inline")),
			Workers:           envInt("INGEST_WORKERS", constants.WorkerPoolSize),
			PollInterval:      envDuration("INGEST_POLL_INTERVAL", 5*time.Second),
			MaxAttempts:       envInt("INGEST_MAX_ATTEMPTS", 3),
			VisibilityTimeout: envDuration("INGEST_VISIBILITY_TIMEOUT", 5*time.Minute),
		},
		Search: SearchConfig{
			Metric:           strings.ToLower(envString("SEARCH_METRIC", "cosine")),
			DefaultTolerance: envFloat("SEARCH_DEFAULT_TOLERANCE", constants.DefaultTolerance),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8000),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS", "http://localhost:3000"),
			MaxImageSize:   int64(envInt("MAX_IMAGE_SIZE", constants.MaxUploadBytes)),
			ThumbnailSize:  envInt("THUMBNAIL_SIZE", constants.ThumbnailSize),
		},
		Models: models,
	}
}

// Model returns the configured extraction model.
func (c *Config) Model() (ModelSpec, error) {
	model, ok := c.Models.Models[c.Extractor.Model]
	if !ok {
		return ModelSpec{}, fmt.Errorf("unknown extractor model %q (known: %s)",
			c.Extractor.Model, strings.Join(c.Models.Names(), ", "))
	}
	return model, nil
}

// Method returns the "<name>@<version>" tag stamped on stored descriptors.
func (c *Config) Method() string {
	model := c.Models.Models[c.Extractor.Model]
	return c.Extractor.Model + "@" + model.Version
}

// Names returns the registered model names, sorted.
func (m ModelsConfig) Names() []string {
	names := make([]string, 0, len(m.Models))
	for name := range m.Models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the enumerated settings.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "s3", "inline":
	default:
		return fmt.Errorf("STORAGE_BACKEND must be s3 or inline, got %q", c.Storage.Backend)
	}
	switch c.Storage.Fallback {
	case "", "inline":
	default:
		return fmt.Errorf("STORAGE_FALLBACK must be inline or empty, got %q", c.Storage.Fallback)
	}
	switch c.Extractor.Backend {
	case "http", "dlib":
	default:
		return fmt.Errorf("EXTRACTOR_BACKEND must be http or dlib, got %q", c.Extractor.Backend)
	}
	switch c.Ingest.Mode {
	case "inline", "deferred":
	default:
		return fmt.Errorf("INGEST_MODE must be inline or deferred, got %q", c.Ingest.Mode)
	}
	switch c.Search.Metric {
	case "cosine", "euclidean":
	default:
		return fmt.Errorf("SEARCH_METRIC must be cosine or euclidean, got %q", c.Search.Metric)
	}
	if t := c.Search.DefaultTolerance; t < constants.MinTolerance || t > constants.MaxTolerance {
		return fmt.Errorf("SEARCH_DEFAULT_TOLERANCE must be within [%.1f, %.1f], got %v",
			constants.MinTolerance, constants.MaxTolerance, t)
	}
	if _, err := c.Model(); err != nil {
		return err
	}
	return nil
}
