// Package config loads server configuration from an optional YAML file and
// APKHUB_-prefixed environment variables. Environment variables win.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the fully resolved server configuration.
type Config struct {
	ListenAddr  string `mapstructure:"listen_addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`

	DatabasePath string `mapstructure:"database_path"`
	StorageRoot  string `mapstructure:"storage_root"`
	StaticDir    string `mapstructure:"static_dir"`

	// MaxUploadSize is the upload ceiling in bytes.
	MaxUploadSize int64 `mapstructure:"max_upload_size"`

	Aapt2Path      string `mapstructure:"aapt2_path"`
	BundletoolPath string `mapstructure:"bundletool_path"`
	JavaPath       string `mapstructure:"java_path"`

	OIDC OIDCConfig `mapstructure:"oidc"`
}

// OIDCConfig configures the token validator. An empty issuer disables
// authentication entirely.
type OIDCConfig struct {
	Issuer        string `mapstructure:"issuer"`
	Audience      string `mapstructure:"audience"`
	RoleClaimPath string `mapstructure:"role_claim_path"`
	AdminRole     string `mapstructure:"admin_role"`
}

var defaults = map[string]any{
	"listen_addr":          ":8080",
	"metrics_addr":         ":9091",
	"database_path":        "data/apkhub.db",
	"storage_root":         "data/storage",
	"static_dir":           "",
	"max_upload_size":      int64(500 * 1024 * 1024),
	"aapt2_path":           "",
	"bundletool_path":      "",
	"java_path":            "",
	"oidc.issuer":          "",
	"oidc.audience":        "apkhub",
	"oidc.role_claim_path": "realm_access.roles",
	"oidc.admin_role":      "apkhub-admin",
}

// Load reads the configuration. configPath may be empty, in which case only
// defaults and environment variables apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("APKHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.MaxUploadSize <= 0 {
		return nil, fmt.Errorf("max_upload_size must be positive, got %d", cfg.MaxUploadSize)
	}

	return &cfg, nil
}

// AuthEnabled reports whether OIDC validation is configured.
func (c *Config) AuthEnabled() bool {
	return c.OIDC.Issuer != ""
}
