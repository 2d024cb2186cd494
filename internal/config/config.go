package config

import (
	"errors"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 前端默认常量，配置文件未设置时使用
const (
	DefaultBackendURL      = "http://localhost:3456"
	DefaultMaxFileSize     = 50 * 1024 * 1024
	DefaultQueryResults    = 5
	DefaultScrollThreshold = 100
	DefaultSelectScroll    = 100 * time.Millisecond
)

var DefaultQuestions = []string{
	"What are the key findings?",
	"What is the main conclusion?",
	"Can you summarize this?",
	"What are the recommendations?",
}

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Backend     BackendConfig     `mapstructure:"backend"`
	Upload      UploadConfig      `mapstructure:"upload"`
	Suggestions SuggestionsConfig `mapstructure:"suggestions"`
	UI          UIConfig          `mapstructure:"ui"`
	CORS        CORSConfig        `mapstructure:"cors"`
	Log         LogConfig         `mapstructure:"log"`
	Session     SessionConfig     `mapstructure:"session"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
}

type BackendConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	QueryResults int           `mapstructure:"query_results"`
}

type UploadConfig struct {
	AcceptedTypes []string `mapstructure:"accepted_types"`
	MaxFileSize   int64    `mapstructure:"max_file_size"`
}

type SuggestionsConfig struct {
	DefaultQuestions []string `mapstructure:"default_questions"`
}

type UIConfig struct {
	ScrollThreshold float64       `mapstructure:"scroll_threshold"`
	SelectScroll    time.Duration `mapstructure:"select_scroll_delay"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// SessionConfig 浏览器工作区（视图状态）的过期策略
type SessionConfig struct {
	CookieName      string        `mapstructure:"cookie_name"`
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Minute)
	v.SetDefault("server.max_header_bytes", 1<<20)

	v.SetDefault("backend.base_url", DefaultBackendURL)
	v.SetDefault("backend.timeout", 5*time.Minute)
	v.SetDefault("backend.query_results", DefaultQueryResults)

	v.SetDefault("upload.accepted_types", []string{"application/pdf"})
	v.SetDefault("upload.max_file_size", DefaultMaxFileSize)

	v.SetDefault("suggestions.default_questions", DefaultQuestions)

	v.SetDefault("ui.scroll_threshold", DefaultScrollThreshold)
	v.SetDefault("ui.select_scroll_delay", DefaultSelectScroll)

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Origin", "Content-Type", "Accept"})
	v.SetDefault("cors.max_age", 43200)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("session.cookie_name", "docchat_ws")
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("session.cleanup_interval", 10*time.Minute)
}

// Load 读取配置。configPath 为空或文件不存在时只使用默认值与环境变量
func Load(configPath string) (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DOCCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
		}
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server),
		validation.Field(&c.Backend),
		validation.Field(&c.Upload),
		validation.Field(&c.Suggestions),
		validation.Field(&c.Log),
	)
}

func (s ServerConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

func (b BackendConfig) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.BaseURL, validation.Required, is.URL),
		validation.Field(&b.QueryResults, validation.Required, validation.Min(1), validation.Max(10)),
	)
}

func (u UploadConfig) Validate() error {
	return validation.ValidateStruct(&u,
		validation.Field(&u.AcceptedTypes, validation.Required, validation.Each(validation.Required)),
		validation.Field(&u.MaxFileSize, validation.Required, validation.Min(int64(1))),
	)
}

func (s SuggestionsConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.DefaultQuestions, validation.Each(validation.Required)),
	)
}

func (l LogConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.In("debug", "info", "warn", "error")),
		validation.Field(&l.Format, validation.In("text", "json")),
	)
}
