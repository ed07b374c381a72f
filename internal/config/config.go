package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrConfigFailed обозначает любую проблему с чтением или разбором config.yaml.
var ErrConfigFailed = errors.New("config: failed to load")

// DefaultStaticRoot задаёт путь, под которым сервер отдаёт загруженные картинки.
const DefaultStaticRoot = "/static/images/"

const (
	defaultAPIPrefix      = "/api"
	defaultTokenFile      = "session/token"
	defaultRequestTimeout = 15 * time.Second

	envServerURL = "STOREFRONT_SERVER_URL"
	envLogLevel  = "STOREFRONT_LOG_LEVEL"
	envTokenFile = "STOREFRONT_TOKEN_FILE"
)

// Config описывает пользовательские настройки приложения и вычисляемые пути.
type Config struct {
	ServerURL      string `yaml:"server_url"`
	APIPrefix      string `yaml:"api_prefix"`
	StaticRoot     string `yaml:"static_root"`
	TokenFile      string `yaml:"token_file"`
	LogLevel       string `yaml:"log_level"`
	LogFile        string `yaml:"log_file"`
	RequestTimeout string `yaml:"request_timeout"`

	AppDir  string        `yaml:"-"`
	Timeout time.Duration `yaml:"-"`
}

// Error содержит дополнительный контекст при неудачной загрузке конфигурации.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ErrConfigFailed.Error()
	}
	return fmt.Sprintf("%v: %s: %v", ErrConfigFailed, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is позволяет проверять любую ошибку конфигурации через errors.Is(err, ErrConfigFailed).
func (e *Error) Is(target error) bool {
	return target == ErrConfigFailed
}

// DetectAppDir возвращает каталог, в котором находится исполняемый файл.
func DetectAppDir() (string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("detect executable: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(exePath)
	if err == nil {
		exePath = resolved
	}
	return filepath.Dir(exePath), nil
}

// DefaultPath возвращает путь к config.yaml относительно каталога приложения.
func DefaultPath(appDir string) string {
	return filepath.Join(appDir, "config.yaml")
}

// Load читает YAML конфигурации, применяет переопределения из .env и окружения,
// делает относительные пути абсолютными относительно appDir и валидирует результат.
func Load(path string, appDir string) (*Config, error) {
	if path == "" {
		return nil, &Error{Path: path, Err: errors.New("config path is empty")}
	}
	if appDir == "" {
		return nil, &Error{Path: path, Err: errors.New("app directory is empty")}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	if err := loadDotEnv(filepath.Join(appDir, ".env")); err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	cfg.applyEnv()
	cfg.AppDir = appDir
	cfg.applyDefaults()
	cfg.applyAppDir()
	if err := cfg.validate(); err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	if err := cfg.ensureDirectories(); err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	return &cfg, nil
}

// APIBaseURL возвращает корень REST API: server_url + api_prefix.
func (c *Config) APIBaseURL() string {
	return strings.TrimRight(c.ServerURL, "/") + "/" + strings.Trim(c.APIPrefix, "/") + "/"
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(envServerURL)); v != "" {
		c.ServerURL = v
	}
	if v := strings.TrimSpace(os.Getenv(envLogLevel)); v != "" {
		c.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv(envTokenFile)); v != "" {
		c.TokenFile = v
	}
}

func (c *Config) applyDefaults() {
	c.ServerURL = strings.TrimSpace(c.ServerURL)
	c.LogLevel = normalizeLogLevel(c.LogLevel)
	if strings.TrimSpace(c.APIPrefix) == "" {
		c.APIPrefix = defaultAPIPrefix
	}
	if strings.TrimSpace(c.StaticRoot) == "" {
		c.StaticRoot = DefaultStaticRoot
	}
	if !strings.HasSuffix(c.StaticRoot, "/") {
		c.StaticRoot += "/"
	}
	if strings.TrimSpace(c.TokenFile) == "" {
		c.TokenFile = defaultTokenFile
	}
}

func (c *Config) applyAppDir() {
	if c.AppDir == "" {
		return
	}
	c.AppDir = filepath.Clean(c.AppDir)
	c.TokenFile = makeAbsolute(c.TokenFile, c.AppDir)
	c.LogFile = makeAbsolute(c.LogFile, c.AppDir)
}

func (c *Config) validate() error {
	switch {
	case c.ServerURL == "":
		return errors.New("server_url is required")
	case c.AppDir == "":
		return errors.New("app directory is unknown")
	}
	parsed, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("server_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("server_url: unsupported scheme %q", parsed.Scheme)
	}
	if _, ok := allowedLevels[c.LogLevel]; !ok {
		return fmt.Errorf("unsupported log_level %q", c.LogLevel)
	}
	c.Timeout = defaultRequestTimeout
	if raw := strings.TrimSpace(c.RequestTimeout); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("request_timeout: %w", err)
		}
		if timeout <= 0 {
			return fmt.Errorf("request_timeout must be positive, got %s", raw)
		}
		c.Timeout = timeout
	}
	return nil
}

func (c *Config) ensureDirectories() error {
	paths := []string{filepath.Dir(c.TokenFile)}
	if c.LogFile != "" {
		paths = append(paths, filepath.Dir(c.LogFile))
	}
	for _, dir := range paths {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func makeAbsolute(path string, base string) string {
	if path == "" {
		return ""
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	if base == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(base, path)
}

func normalizeLogLevel(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return "info"
	}
	return value
}

var allowedLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}
