package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config" yaml:"basic_config"`
	Redis       RedisConfig               `json:"redis" yaml:"redis"`
	Databases   map[string]DatabaseConfig `json:"databases" yaml:"databases"`
	Providers   map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Backend     BackendConfig             `json:"backend" yaml:"backend"`
	LLM         LLMConfig                 `json:"llm" yaml:"llm"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
	Model   string `json:"model" yaml:"model"`
	APIKey  string `json:"api_key" yaml:"api_key"`
}

type BasicConfig struct {
	ServerAddress      string `json:"server_address" yaml:"server_address"`
	Database           string `json:"database" yaml:"database"`
	UploadDir          string `json:"upload_dir" yaml:"upload_dir"`
	UploadTTL          int    `json:"upload_ttl_minutes" yaml:"upload_ttl_minutes"`
	UploadCleanEvery   int    `json:"upload_clean_interval_minutes" yaml:"upload_clean_interval_minutes"`
	SessionTTLHours    int    `json:"session_ttl_hours" yaml:"session_ttl_hours"`
	PublicFileBasePath string `json:"public_file_base_path" yaml:"public_file_base_path"`
	MinWorkers         int    `json:"min_workers" yaml:"min_workers"`
	MaxWorkers         int    `json:"max_workers" yaml:"max_workers"`
	QueueSize          int    `json:"queue_size" yaml:"queue_size"`
	WorkerIdleTimeout  int    `json:"worker_idle_timeout_seconds" yaml:"worker_idle_timeout_seconds"`
}

type RedisConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
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

// BackendConfig points at the downstream project/estimation REST API.
type BackendConfig struct {
	BaseURL        string `json:"base_url" yaml:"base_url"`
	APIKey         string `json:"api_key" yaml:"api_key"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// LLMConfig selects the provider and models used for document extraction.
type LLMConfig struct {
	Provider       string `json:"provider" yaml:"provider"`
	Model          string `json:"model" yaml:"model"`
	VisionModel    string `json:"vision_model" yaml:"vision_model"`
	VisionDetail   string `json:"vision_detail" yaml:"vision_detail"`
	MaxTokens      int    `json:"max_tokens" yaml:"max_tokens"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

const (
	defaultServerAddress = ":8090"
	defaultUploadDir     = "./uploads"
	defaultDatabase      = "sqlite3"
	defaultSQLiteDSN     = "./data/firecost.db"
	defaultProvider      = "openai"
	defaultModel         = "gpt-4o-mini"
	defaultVisionModel   = "gpt-4o"
	defaultVisionDetail  = "high"
	defaultMaxTokens     = 4000
	defaultSessionTTL    = 24
	defaultMaxWorkers    = 4
	defaultQueueSize     = 32
)

// Load reads configuration from the provided path (defaults to config.json)
// and applies environment overrides. A missing default file is not an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	cfg := &Config{}
	data, err := os.ReadFile(absPath)
	switch {
	case err == nil:
		if err := decode(absPath, data, cfg); err != nil {
			return nil, err
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	applyEnv(cfg, os.Getenv)
	applyDefaults(cfg)

	if dbCfg, ok := cfg.Databases["sqlite3"]; ok && dbCfg.DSN != "" && dbCfg.DSN != ":memory:" && !filepath.IsAbs(dbCfg.DSN) && explicit {
		dbCfg.DSN = filepath.Join(filepath.Dir(absPath), dbCfg.DSN)
		cfg.Databases["sqlite3"] = dbCfg
	}

	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode yaml config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
	}
	return nil
}

// applyEnv overlays the deployment environment on top of the file values.
func applyEnv(cfg *Config, getenv func(string) string) {
	if v := firstNonEmpty(getenv("BACKEND_URL"), getenv("NEXT_PUBLIC_API_URL")); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := getenv("NEXT_PUBLIC_AGENT_API_KEY"); v != "" {
		cfg.Backend.APIKey = v
	}
	if v := getenv("LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := getenv("OPENAI_API_KEY"); v != "" {
		if cfg.Providers == nil {
			cfg.Providers = make(map[string]ProviderConfig)
		}
		p := cfg.Providers["openai"]
		p.APIKey = v
		cfg.Providers["openai"] = p
	}
	if v := getenv("OPENAI_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := getenv("VISION_MODEL"); v != "" {
		cfg.LLM.VisionModel = v
	}
	if v := getenv("VISION_DETAIL"); v != "" {
		cfg.LLM.VisionDetail = v
	}
	if n, err := strconv.Atoi(getenv("OPENAI_MAX_TOKENS")); err == nil && n > 0 {
		cfg.LLM.MaxTokens = n
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		host, port, found := strings.Cut(v, ":")
		cfg.Redis.Host = host
		if n, err := strconv.Atoi(port); found && err == nil {
			cfg.Redis.Port = n
		}
	}
	if n, err := strconv.Atoi(getenv("SESSION_TTL_HOURS")); err == nil && n > 0 {
		cfg.BasicConfig.SessionTTLHours = n
	}
	if v := getenv("FIRECOST_DB"); v != "" {
		cfg.BasicConfig.Database = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.BasicConfig.ServerAddress == "" {
		cfg.BasicConfig.ServerAddress = defaultServerAddress
	}
	if cfg.BasicConfig.UploadDir == "" {
		cfg.BasicConfig.UploadDir = defaultUploadDir
	}
	if cfg.BasicConfig.Database == "" {
		cfg.BasicConfig.Database = defaultDatabase
	}
	if cfg.BasicConfig.SessionTTLHours <= 0 {
		cfg.BasicConfig.SessionTTLHours = defaultSessionTTL
	}
	if cfg.BasicConfig.PublicFileBasePath == "" {
		cfg.BasicConfig.PublicFileBasePath = "/uploads"
	}
	if cfg.BasicConfig.MaxWorkers <= 0 {
		cfg.BasicConfig.MaxWorkers = defaultMaxWorkers
	}
	if cfg.BasicConfig.MinWorkers <= 0 {
		cfg.BasicConfig.MinWorkers = 1
	}
	if cfg.BasicConfig.QueueSize <= 0 {
		cfg.BasicConfig.QueueSize = defaultQueueSize
	}
	if cfg.Databases == nil {
		cfg.Databases = make(map[string]DatabaseConfig)
	}
	if _, ok := cfg.Databases["sqlite3"]; !ok {
		cfg.Databases["sqlite3"] = DatabaseConfig{DSN: defaultSQLiteDSN}
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = defaultProvider
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = defaultModel
	}
	if cfg.LLM.VisionModel == "" {
		cfg.LLM.VisionModel = defaultVisionModel
	}
	if cfg.LLM.VisionDetail == "" {
		cfg.LLM.VisionDetail = defaultVisionDetail
	}
	if cfg.LLM.MaxTokens <= 0 {
		cfg.LLM.MaxTokens = defaultMaxTokens
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
