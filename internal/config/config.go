package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NATS      NATSConfig      `mapstructure:"nats"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Import    ImportConfig    `mapstructure:"import"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Version     string `mapstructure:"version"`
	Debug       bool   `mapstructure:"debug"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	HTTPPort        int           `mapstructure:"http_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Schema          string        `mapstructure:"schema"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s&search_path=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode, c.Schema,
	)
}

type RedisConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
	TLS       bool   `mapstructure:"tls"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	URL        string `mapstructure:"url"`
	StreamName string `mapstructure:"stream_name"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	RequestsPerHour   int  `mapstructure:"requests_per_hour"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	TimeFormat string `mapstructure:"time_format"`
}

// UploadConfig controls chunked upload sessions
type UploadConfig struct {
	TempDir       string        `mapstructure:"temp_dir"`
	MaxFileSize   int64         `mapstructure:"max_file_size"`
	ChunkSize     int64         `mapstructure:"chunk_size"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// ImportConfig controls the import pipeline
type ImportConfig struct {
	BatchSize         int           `mapstructure:"batch_size"`
	ProgressInterval  int           `mapstructure:"progress_interval"`
	ParserMaxFileSize int64         `mapstructure:"parser_max_file_size"`
	StageTimeout      time.Duration `mapstructure:"stage_timeout"`
	StatusCacheTTL    time.Duration `mapstructure:"status_cache_ttl"`
}

// Load reads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/chatguard-lab")
	}

	setDefaults(v)

	// Environment variables
	v.SetEnvPrefix("CHATGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind nested env vars explicitly (viper doesn't auto-bind nested struct fields)
	v.BindEnv("redis.host", "CHATGUARD_REDIS_HOST")
	v.BindEnv("redis.port", "CHATGUARD_REDIS_PORT")
	v.BindEnv("redis.password", "CHATGUARD_REDIS_PASSWORD")
	v.BindEnv("database.host", "CHATGUARD_DATABASE_HOST")
	v.BindEnv("database.port", "CHATGUARD_DATABASE_PORT")
	v.BindEnv("database.user", "CHATGUARD_DATABASE_USER")
	v.BindEnv("database.password", "CHATGUARD_DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "CHATGUARD_DATABASE_DBNAME")
	v.BindEnv("database.sslmode", "CHATGUARD_DATABASE_SSLMODE")
	v.BindEnv("nats.enabled", "CHATGUARD_NATS_ENABLED")
	v.BindEnv("nats.url", "CHATGUARD_NATS_URL")
	v.BindEnv("app.environment", "CHATGUARD_APP_ENVIRONMENT")
	v.BindEnv("upload.temp_dir", "CHATGUARD_UPLOAD_TEMP_DIR")

	// Read config file; missing file falls back to defaults + env
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// LoadDefault loads configuration with default path
func LoadDefault() (*Config, error) {
	return Load("")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "chatguard-lab")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.version", "1.0.0")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.schema", "public")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.key_prefix", "chatguard:")

	v.SetDefault("nats.stream_name", "CHATGUARD_IMPORTS")

	v.SetDefault("ratelimit.requests_per_minute", 120)
	v.SetDefault("ratelimit.requests_per_hour", 2000)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")

	v.SetDefault("upload.temp_dir", "/tmp/chatguard-uploads")
	v.SetDefault("upload.max_file_size", 100*1024*1024) // 100MB
	v.SetDefault("upload.chunk_size", 1024*1024)        // 1MB
	v.SetDefault("upload.session_ttl", "24h")
	v.SetDefault("upload.sweep_interval", "60s")

	v.SetDefault("import.batch_size", 1000)
	v.SetDefault("import.progress_interval", 100)
	v.SetDefault("import.parser_max_file_size", 50*1024*1024) // 50MB
	v.SetDefault("import.stage_timeout", "5m")
	v.SetDefault("import.status_cache_ttl", "10s")
}
