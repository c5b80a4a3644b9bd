package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"docregistry/internal/storage"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"Server"`
	Database DatabaseConfig `mapstructure:"Database"`
	Remote   RemoteConfig   `mapstructure:"Remote"`
	S3       storage.Config `mapstructure:"S3"`
	Log      LogConfig      `mapstructure:"Log"`
}

type ServerConfig struct {
	Port     string `mapstructure:"Port"`
	GRPCPort string `mapstructure:"GRPCPort"`
	// HostURL prefixes resource paths when building absolute URLs.
	HostURL string `mapstructure:"HostURL"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"Host"`
	Port     string `mapstructure:"Port"`
	User     string `mapstructure:"User"`
	Password string `mapstructure:"Password"`
	Name     string `mapstructure:"Name"`
	SSLMode  string `mapstructure:"SSLMode"`
}

// RemoteConfig switches the registry onto the remote content repository.
type RemoteConfig struct {
	Enabled            bool          `mapstructure:"Enabled"`
	DeleteIsObliterate bool          `mapstructure:"DeleteIsObliterate"`
	URL                string        `mapstructure:"URL"`
	Timeout            time.Duration `mapstructure:"Timeout"`
}

type LogConfig struct {
	Level       string `mapstructure:"Level"`
	Development bool   `mapstructure:"Development"`
}

var envBindings = map[string]string{
	"Server.Port":               "HTTP_PORT",
	"Server.GRPCPort":           "GRPC_PORT",
	"Server.HostURL":            "HOST_URL",
	"Database.Host":             "DATABASE_HOST",
	"Database.Port":             "DATABASE_PORT",
	"Database.User":             "DATABASE_USER",
	"Database.Password":         "DATABASE_PASSWORD",
	"Database.Name":             "DATABASE_NAME",
	"Database.SSLMode":          "DATABASE_SSLMODE",
	"Remote.Enabled":            "REMOTE_ENABLED",
	"Remote.DeleteIsObliterate": "REMOTE_DELETE_IS_OBLITERATE",
	"Remote.URL":                "REMOTE_URL",
	"Remote.Timeout":            "REMOTE_TIMEOUT",
	"S3.Endpoint":               "S3_ENDPOINT",
	"S3.Region":                 "S3_REGION",
	"S3.AccessKeyID":            "S3_ACCESS_KEY_ID",
	"S3.SecretAccessKey":        "S3_SECRET_ACCESS_KEY",
	"S3.Bucket":                 "S3_BUCKET",
	"S3.UsePathStyle":           "S3_USE_PATH_STYLE",
	"Log.Level":                 "LOG_LEVEL",
	"Log.Development":           "LOG_DEVELOPMENT",
}

// NewConfig reads path and overlays the bound environment variables. A
// missing file is not fatal as long as the environment is complete.
func NewConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	v.SetDefault("Server.Port", "2525")
	v.SetDefault("Server.GRPCPort", "50051")
	v.SetDefault("Server.HostURL", "http://localhost:2525")
	v.SetDefault("Database.SSLMode", "disable")
	v.SetDefault("Remote.Timeout", 30*time.Second)
	v.SetDefault("Log.Level", "info")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Warning: using only environment variables: %v\n", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Database.Host == "" ||
		c.Database.Port == "" ||
		c.Database.User == "" ||
		c.Database.Password == "" ||
		c.Database.Name == "" {
		return fmt.Errorf("database configuration is incomplete: host=%s, port=%s, user=%s, name=%s",
			c.Database.Host, c.Database.Port, c.Database.User, c.Database.Name)
	}
	if c.Remote.Enabled && c.Remote.URL == "" {
		return fmt.Errorf("remote backend is enabled but Remote.URL is empty")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}

// GetURL is the DSN in URL form, as the migration driver wants it.
func (c *DatabaseConfig) GetURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Name,
		c.SSLMode,
	)
}
