package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr  string `yaml:"http_addr"`
	PublicURL string `yaml:"public_url"`

	DBDriver string `yaml:"db_driver"`
	DBDSN    string `yaml:"db_dsn"`

	FilesBasePath string `yaml:"files_base_path"` // course files for src= scripts

	Debug       bool `yaml:"debug"`
	AllowUnsafe bool `yaml:"allow_unsafe"`
	Masking     bool `yaml:"masking"`

	ScriptTimeout time.Duration `yaml:"script_timeout"`

	XQueueURL       string        `yaml:"xqueue_url"`
	XQueueUser      string        `yaml:"xqueue_user"`
	XQueuePassword  string        `yaml:"xqueue_password"`
	XQueueName      string        `yaml:"xqueue_name"`
	CallbackSecret  string        `yaml:"callback_secret"` // HS256 key for grader callbacks
	ExternalTimeout time.Duration `yaml:"external_timeout"`
	MatlabAPIKey    string        `yaml:"matlab_api_key"`

	NodeBinary string `yaml:"node_binary"`
	NodePath   string `yaml:"node_path"`
	JSDir      string `yaml:"js_dir"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	CORSOrigins []string `yaml:"cors_origins"`
	Locale      string   `yaml:"locale"`
	// Translations maps locale to English message to translated message.
	Translations map[string]map[string]string `yaml:"translations"`
}

func defaults() Config {
	return Config{
		HTTPAddr:        ":8080",
		DBDriver:        "sqlite",
		FilesBasePath:   "./data",
		ScriptTimeout:   5 * time.Second,
		XQueueName:      "capa",
		ExternalTimeout: 30 * time.Second,
		NodeBinary:      "node",
		LogLevel:        "info",
		LogJSON:         true,
		CORSOrigins:     []string{"http://localhost:3000"},
		Locale:          "en",
	}
}

// Load reads path (when non-empty) over the defaults and then applies
// environment overrides.
func Load(path string) (Config, error) {
	c := defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &c); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}
	c.applyEnv()
	return c, nil
}

// FromEnv is Load without a file.
func FromEnv() Config {
	c := defaults()
	c.applyEnv()
	return c
}

func (c *Config) applyEnv() {
	c.HTTPAddr = envOr("HTTP_ADDR", c.HTTPAddr)
	c.PublicURL = envOr("PUBLIC_URL", c.PublicURL)
	c.DBDriver = envOr("DB_DRIVER", c.DBDriver)
	c.DBDSN = envOr("DB_DSN", c.DBDSN)
	c.FilesBasePath = envOr("FILES_BASE_PATH", c.FilesBasePath)
	c.Debug = envBool("DEBUG", c.Debug)
	c.AllowUnsafe = envBool("ALLOW_UNSAFE_CODE", c.AllowUnsafe)
	c.Masking = envBool("MASKING", c.Masking)
	c.ScriptTimeout = envDuration("SCRIPT_TIMEOUT", c.ScriptTimeout)
	c.XQueueURL = envOr("XQUEUE_URL", c.XQueueURL)
	c.XQueueUser = envOr("XQUEUE_USER", c.XQueueUser)
	c.XQueuePassword = envOr("XQUEUE_PASSWORD", c.XQueuePassword)
	c.XQueueName = envOr("XQUEUE_NAME", c.XQueueName)
	c.CallbackSecret = envOr("CALLBACK_SECRET", c.CallbackSecret)
	c.ExternalTimeout = envDuration("EXTERNAL_TIMEOUT", c.ExternalTimeout)
	c.MatlabAPIKey = envOr("MATLAB_API_KEY", c.MatlabAPIKey)
	c.NodeBinary = envOr("NODE_BINARY", c.NodeBinary)
	c.NodePath = envOr("NODE_PATH", c.NodePath)
	c.JSDir = envOr("JS_DIR", c.JSDir)
	c.LogLevel = envOr("LOG_LEVEL", c.LogLevel)
	c.LogJSON = envBool("LOG_JSON", c.LogJSON)
	c.CORSOrigins = csvOr("CORS_ORIGINS", strings.Join(c.CORSOrigins, ","))
	c.Locale = envOr("LOCALE", c.Locale)
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}
func envDuration(k string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(k))
	if err != nil {
		return def
	}
	return d
}
func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
