// Package config loads the configuration of the arXiv and MongoDB MCP servers.
//
// Values are resolved in this order, later sources winning:
// built-in defaults, an optional YAML file, environment variables and
// finally command line flags (applied by the cli package).
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/morikuni/failure/v2"
	"gopkg.in/yaml.v3"
)

// ErrorCode defines error types for configuration loading
type ErrorCode string

const (
	ErrInvalidConfig ErrorCode = "InvalidConfig"
	ErrReadConfig    ErrorCode = "ReadConfig"
)

const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

var validate = validator.New()

// Server holds the transport settings shared by both servers
type Server struct {
	Transport string `yaml:"transport" validate:"oneof=stdio http"`
	HTTPAddr  string `yaml:"http_addr" validate:"required_if=Transport http"`
	// Metrics exposes Prometheus metrics on /metrics when serving over HTTP
	Metrics bool `yaml:"metrics"`
}

// Arxiv is the configuration of arxiv-mcp-server
type Arxiv struct {
	Server `yaml:",inline"`

	StoragePath string `yaml:"storage_path" validate:"required"`
	APIURL      string `yaml:"api_url" validate:"required,url"`
	HTMLURL     string `yaml:"html_url" validate:"required,url"`

	// RequestInterval is the minimum delay between two arXiv API calls
	RequestInterval time.Duration `yaml:"request_interval" validate:"gte=0"`

	CacheTTL time.Duration `yaml:"cache_ttl" validate:"gte=0"`
	CacheDir string        `yaml:"cache_dir"`
	// RedisURL switches the response cache from files to Redis
	RedisURL string `yaml:"redis_url" validate:"omitempty,url"`

	MaxResults          int `yaml:"max_results" validate:"gte=1,lte=2000"`
	DownloadConcurrency int `yaml:"download_concurrency" validate:"gte=1,lte=32"`
}

// Mongo is the configuration of mongo-mcp
type Mongo struct {
	Server `yaml:",inline"`

	URI      string `yaml:"uri" validate:"required,startswith=mongodb"`
	AppName  string `yaml:"app_name"`
	ReadOnly bool   `yaml:"read_only"`

	ConnectTimeout         time.Duration `yaml:"connect_timeout" validate:"gte=0"`
	ServerSelectionTimeout time.Duration `yaml:"server_selection_timeout" validate:"gte=0"`
	MaxPoolSize            uint64        `yaml:"max_pool_size"`

	DefaultLimit int64 `yaml:"default_limit" validate:"gte=1"`
	MaxLimit     int64 `yaml:"max_limit" validate:"gtefield=DefaultLimit"`
}

// DefaultArxiv returns the built-in arXiv server configuration
func DefaultArxiv() *Arxiv {
	return &Arxiv{
		Server:              Server{Transport: TransportStdio, HTTPAddr: ":8080"},
		StoragePath:         defaultStoragePath(),
		APIURL:              "https://export.arxiv.org/api/query",
		HTMLURL:             "https://arxiv.org/html/",
		RequestInterval:     3 * time.Second,
		CacheTTL:            time.Hour,
		CacheDir:            defaultCacheDir(),
		MaxResults:          50,
		DownloadConcurrency: 4,
	}
}

// DefaultMongo returns the built-in MongoDB server configuration
func DefaultMongo() *Mongo {
	return &Mongo{
		Server:                 Server{Transport: TransportStdio, HTTPAddr: ":8081"},
		URI:                    "mongodb://localhost:27017",
		AppName:                "mongo-mcp",
		ConnectTimeout:         10 * time.Second,
		ServerSelectionTimeout: 5 * time.Second,
		MaxPoolSize:            10,
		DefaultLimit:           20,
		MaxLimit:               1000,
	}
}

func defaultStoragePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "arxiv-mcp-server", "papers")
	}
	return filepath.Join(home, ".arxiv-mcp-server", "papers")
}

func defaultCacheDir() string {
	cacheHome, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "mcp-servers", "arxiv")
	}
	return filepath.Join(cacheHome, "mcp-servers", "arxiv")
}

// LoadArxiv loads the arXiv configuration from defaults, the YAML file at
// path (optional, may be empty) and ARXIV_* environment variables.
func LoadArxiv(path string) (*Arxiv, error) {
	cfg := DefaultArxiv()
	if err := loadFile(path, cfg); err != nil {
		return nil, err
	}
	if err := applyEnv(arxivEnv(cfg)); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadMongo loads the MongoDB configuration from defaults, the YAML file at
// path (optional, may be empty) and MONGODB_* environment variables.
func LoadMongo(path string) (*Mongo, error) {
	cfg := DefaultMongo()
	if err := loadFile(path, cfg); err != nil {
		return nil, err
	}
	if err := applyEnv(mongoEnv(cfg)); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration after all sources have been applied
func (c *Arxiv) Validate() error {
	return validateStruct(c)
}

// Validate checks the configuration after all sources have been applied
func (c *Mongo) Validate() error {
	return validateStruct(c)
}

func validateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		return failure.Wrap(err, failure.WithCode(ErrInvalidConfig),
			failure.Message("Invalid configuration: "+err.Error()),
		)
	}
	return nil
}

func loadFile(path string, out any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return failure.Wrap(err, failure.WithCode(ErrReadConfig),
			failure.Message("Failed to read config file"),
			failure.Context{"path": path},
		)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return failure.Wrap(err, failure.WithCode(ErrInvalidConfig),
			failure.Message("Failed to parse config file"),
			failure.Context{"path": path},
		)
	}
	return nil
}

// envVar binds one environment variable to a config field
type envVar struct {
	name string
	set  func(string) error
}

func arxivEnv(c *Arxiv) []envVar {
	return []envVar{
		{"ARXIV_STORAGE_PATH", setString(&c.StoragePath)},
		{"ARXIV_API_URL", setString(&c.APIURL)},
		{"ARXIV_HTML_URL", setString(&c.HTMLURL)},
		{"ARXIV_REQUEST_INTERVAL", setDuration(&c.RequestInterval)},
		{"ARXIV_CACHE_TTL", setDuration(&c.CacheTTL)},
		{"ARXIV_CACHE_DIR", setString(&c.CacheDir)},
		{"ARXIV_REDIS_URL", setString(&c.RedisURL)},
		{"ARXIV_MAX_RESULTS", setInt(&c.MaxResults)},
		{"ARXIV_DOWNLOAD_CONCURRENCY", setInt(&c.DownloadConcurrency)},
		{"ARXIV_TRANSPORT", setString(&c.Transport)},
		{"ARXIV_HTTP_ADDR", setString(&c.HTTPAddr)},
		{"ARXIV_METRICS", setBool(&c.Metrics)},
	}
}

func mongoEnv(c *Mongo) []envVar {
	return []envVar{
		{"MONGODB_URI", setString(&c.URI)},
		{"MONGODB_APP_NAME", setString(&c.AppName)},
		{"MONGODB_READ_ONLY", setBool(&c.ReadOnly)},
		{"MONGODB_CONNECT_TIMEOUT", setDuration(&c.ConnectTimeout)},
		{"MONGODB_SERVER_SELECTION_TIMEOUT", setDuration(&c.ServerSelectionTimeout)},
		{"MONGODB_MAX_POOL_SIZE", setUint(&c.MaxPoolSize)},
		{"MONGODB_DEFAULT_LIMIT", setInt64(&c.DefaultLimit)},
		{"MONGODB_MAX_LIMIT", setInt64(&c.MaxLimit)},
		{"MONGODB_TRANSPORT", setString(&c.Transport)},
		{"MONGODB_HTTP_ADDR", setString(&c.HTTPAddr)},
		{"MONGODB_METRICS", setBool(&c.Metrics)},
	}
}

func applyEnv(vars []envVar) error {
	for _, v := range vars {
		val, ok := os.LookupEnv(v.name)
		if !ok {
			continue
		}
		if err := v.set(val); err != nil {
			return failure.Wrap(err, failure.WithCode(ErrInvalidConfig),
				failure.Message("Invalid value for "+v.name),
				failure.Context{"env": v.name, "value": val},
			)
		}
	}
	return nil
}

func setString(p *string) func(string) error {
	return func(s string) error {
		*p = s
		return nil
	}
}

func setBool(p *bool) func(string) error {
	return func(s string) error {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		*p = b
		return nil
	}
}

func setInt(p *int) func(string) error {
	return func(s string) error {
		n, err := strconv.Atoi(s)
		if err != nil {
			return err
		}
		*p = n
		return nil
	}
}

func setInt64(p *int64) func(string) error {
	return func(s string) error {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		*p = n
		return nil
	}
}

func setUint(p *uint64) func(string) error {
	return func(s string) error {
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return err
		}
		*p = n
		return nil
	}
}

func setDuration(p *time.Duration) func(string) error {
	return func(s string) error {
		d, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*p = d
		return nil
	}
}
