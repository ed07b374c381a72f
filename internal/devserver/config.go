package devserver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddr  = "127.0.0.1:5000"
	defaultAPIPrefix   = "/api"
	defaultTokenTTL    = 24 * time.Hour
	defaultAuthRPS     = 5
	defaultAuthBurst   = 10
	defaultFeaturedMax = 6
)

// Config represents the dev server configuration.
type Config struct {
	ListenAddr  string     `yaml:"listen_addr"`
	APIPrefix   string     `yaml:"api_prefix"`
	JWTSecret   string     `yaml:"jwt_secret"`
	TokenTTL    string     `yaml:"token_ttl"`
	ProductsDir string     `yaml:"products_dir"`
	UploadDir   string     `yaml:"upload_dir"`
	LogLevel    string     `yaml:"log_level"`
	AuthRPS     float64    `yaml:"auth_rps"`
	AuthBurst   int        `yaml:"auth_burst"`
	Users       []SeedUser `yaml:"users"`

	tokenTTL time.Duration
}

// SeedUser is an account created at startup.
type SeedUser struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

// LoadConfig loads the server configuration from a yaml file. Relative
// directories are resolved against the directory of the file.
func LoadConfig(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	var cfg Config
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	base := filepath.Dir(configPath)
	cfg.ProductsDir = resolveDir(cfg.ProductsDir, base)
	cfg.UploadDir = resolveDir(cfg.UploadDir, base)
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize fills defaults and validates the configuration.
func (c *Config) Normalize() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		c.ListenAddr = defaultListenAddr
	}
	c.APIPrefix = "/" + strings.Trim(strings.TrimSpace(c.APIPrefix), "/")
	if c.APIPrefix == "/" {
		c.APIPrefix = defaultAPIPrefix
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	c.tokenTTL = defaultTokenTTL
	if v := strings.TrimSpace(c.TokenTTL); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil || ttl <= 0 {
			return fmt.Errorf("invalid token_ttl %q", c.TokenTTL)
		}
		c.tokenTTL = ttl
	}
	if strings.TrimSpace(c.UploadDir) == "" {
		return fmt.Errorf("upload_dir is required")
	}
	if c.AuthRPS <= 0 {
		c.AuthRPS = defaultAuthRPS
	}
	if c.AuthBurst <= 0 {
		c.AuthBurst = defaultAuthBurst
	}
	for i, u := range c.Users {
		if strings.TrimSpace(u.Email) == "" || u.Password == "" {
			return fmt.Errorf("users[%d]: email and password are required", i)
		}
		if !validRole(u.Role) {
			return fmt.Errorf("users[%d]: invalid role %q", i, u.Role)
		}
	}
	return nil
}

// TokenLifetime returns the parsed token_ttl.
func (c *Config) TokenLifetime() time.Duration {
	if c.tokenTTL <= 0 {
		return defaultTokenTTL
	}
	return c.tokenTTL
}

func resolveDir(dir, base string) string {
	dir = strings.TrimSpace(dir)
	if dir == "" || filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(base, dir)
}
