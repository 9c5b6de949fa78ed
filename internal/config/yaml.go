package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// File represents the top-level key service configuration file.
type File struct {
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Auth    AuthConfig    `yaml:"auth" mapstructure:"auth"`
	Audit   AuditConfig   `yaml:"audit" mapstructure:"audit"`
	MCP     MCPConfig     `yaml:"mcp" mapstructure:"mcp"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string     `yaml:"host" mapstructure:"host"`
	Port            int        `yaml:"port" mapstructure:"port"`
	RateLimit       int        `yaml:"rate_limit" mapstructure:"rate_limit"`
	AdminRateLimit  int        `yaml:"admin_rate_limit" mapstructure:"admin_rate_limit"`
	MaxBodySize     string     `yaml:"max_body_size" mapstructure:"max_body_size"`
	ShutdownTimeout string     `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	CORS            CORSConfig `yaml:"cors" mapstructure:"cors"`
}

// CORSConfig controls cross-origin resource sharing settings.
type CORSConfig struct {
	Origins []string `yaml:"origins" mapstructure:"origins"`
}

// StoreConfig locates the key document.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// AuthConfig controls client and admin authentication. AdminIDs is decoded
// separately with ParseAdminIDs because it also arrives as a comma
// separated environment variable.
type AuthConfig struct {
	APISecret string  `yaml:"api_secret" mapstructure:"api_secret"`
	JWTSecret string  `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	JWTTTL    string  `yaml:"jwt_ttl" mapstructure:"jwt_ttl"`
	AdminIDs  []int64 `yaml:"admin_ids,omitempty" mapstructure:"-"`
}

// AuditConfig controls the SQLite audit log of key mutations.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// MCPConfig controls the MCP (Model Context Protocol) server.
type MCPConfig struct {
	Transport string `yaml:"transport" mapstructure:"transport"`
	Addr      string `yaml:"addr" mapstructure:"addr"`
	Mount     bool   `yaml:"mount" mapstructure:"mount"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Default returns a File pre-filled with sensible defaults.
func Default() *File {
	return &File{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5000,
			RateLimit:       600,
			AdminRateLimit:  120,
			MaxBodySize:     "64KB",
			ShutdownTimeout: "30s",
			CORS: CORSConfig{
				Origins: []string{"*"},
			},
		},
		Store: StoreConfig{
			Path: "keys.json",
		},
		Auth: AuthConfig{
			JWTTTL: "24h",
		},
		Audit: AuditConfig{
			Enabled: true,
			Path:    "keys_audit.db",
		},
		MCP: MCPConfig{
			Transport: "stdio",
			Addr:      ":3001",
			Mount:     true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFile reads and parses a YAML configuration file over the defaults.
// Environment variables referenced as ${VAR_NAME} in the file are expanded
// before parsing.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	content := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

// WriteDefault writes the default configuration to a YAML file. An existing
// file is only replaced when force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s: %w", path, ErrExists)
		}
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, append([]byte(header), data...), 0644)
}

const header = `# Key service configuration.
# Every setting can be overridden with a KEY_ prefixed environment variable,
# e.g. KEY_SERVER_PORT. KEYS_FILE, API_SECRET, ADMIN_IDS, PORT and HOST are
# also honored.
`

// Validate checks values that cannot be caught by decoding.
func (f *File) Validate() error {
	if f.Store.Path == "" {
		return fmt.Errorf("%w: store.path is required", ErrInvalidConfig)
	}
	if f.Server.Port < 0 || f.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalidConfig, f.Server.Port)
	}
	if f.Server.RateLimit < 0 || f.Server.AdminRateLimit < 0 {
		return fmt.Errorf("%w: rate limits must not be negative", ErrInvalidConfig)
	}
	if _, err := f.Server.BodyLimit(); err != nil {
		return err
	}
	if _, err := f.Server.ShutdownDuration(); err != nil {
		return err
	}
	if _, err := f.Auth.TokenTTL(); err != nil {
		return err
	}
	switch f.MCP.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("%w: mcp.transport must be stdio or http, got %q", ErrInvalidConfig, f.MCP.Transport)
	}
	switch strings.ToLower(f.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: logging.format must be text or json, got %q", ErrInvalidConfig, f.Logging.Format)
	}
	return nil
}

// BodyLimit parses MaxBodySize ("64KB", "1MiB"). Empty means no limit.
func (s ServerConfig) BodyLimit() (int64, error) {
	if s.MaxBodySize == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s.MaxBodySize)
	if err != nil {
		return 0, fmt.Errorf("%w: server.max_body_size: %v", ErrInvalidConfig, err)
	}
	return int64(n), nil
}

// ShutdownDuration parses ShutdownTimeout, defaulting to 30s.
func (s ServerConfig) ShutdownDuration() (time.Duration, error) {
	return parseDuration("server.shutdown_timeout", s.ShutdownTimeout, 30*time.Second)
}

// TokenTTL parses JWTTTL, defaulting to 24h.
func (a AuthConfig) TokenTTL() (time.Duration, error) {
	return parseDuration("auth.jwt_ttl", a.JWTTTL, 24*time.Hour)
}

func parseDuration(name, s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: %s: %q is not a positive duration", ErrInvalidConfig, name, s)
	}
	return d, nil
}

// ParseAdminIDs decodes the admin allowlist from any of the shapes it
// arrives in: a comma or space separated string (the ADMIN_IDS variable), a
// YAML list, or a single number. Empty entries are skipped.
func ParseAdminIDs(v interface{}) ([]int64, error) {
	var parts []string
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		parts = strings.FieldsFunc(t, func(r rune) bool { return r == ',' || r == ' ' || r == ';' })
	case []string:
		parts = t
	case []int64:
		return t, nil
	case []interface{}:
		for _, item := range t {
			parts = append(parts, fmt.Sprint(item))
		}
	case int:
		return []int64{int64(t)}, nil
	case int64:
		return []int64{t}, nil
	default:
		return nil, fmt.Errorf("%w: auth.admin_ids: unsupported value %v", ErrInvalidConfig, v)
	}

	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: auth.admin_ids: %q is not a user id", ErrInvalidConfig, p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
