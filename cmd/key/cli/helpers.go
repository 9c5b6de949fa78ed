package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/maxkornevpro/key/internal/audit"
	"github.com/maxkornevpro/key/internal/config"
	"github.com/maxkornevpro/key/internal/keys"
	"github.com/maxkornevpro/key/internal/model"
	"github.com/maxkornevpro/key/internal/store"
)

// cliActor is the audit identity for changes made from the command line.
const cliActor = "cli"

// displayLayout is how timestamps are shown to people.
const displayLayout = "02.01.2006 15:04"

// setDefaults registers every setting with viper so environment variables
// are seen by Unmarshal even when no config file exists.
func setDefaults() {
	d := config.Default()
	viper.SetDefault("server.host", d.Server.Host)
	viper.SetDefault("server.port", d.Server.Port)
	viper.SetDefault("server.rate_limit", d.Server.RateLimit)
	viper.SetDefault("server.admin_rate_limit", d.Server.AdminRateLimit)
	viper.SetDefault("server.max_body_size", d.Server.MaxBodySize)
	viper.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	viper.SetDefault("server.cors.origins", d.Server.CORS.Origins)
	viper.SetDefault("store.path", d.Store.Path)
	viper.SetDefault("auth.api_secret", d.Auth.APISecret)
	viper.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	viper.SetDefault("auth.jwt_ttl", d.Auth.JWTTTL)
	viper.SetDefault("auth.admin_ids", "")
	viper.SetDefault("audit.enabled", d.Audit.Enabled)
	viper.SetDefault("audit.path", d.Audit.Path)
	viper.SetDefault("mcp.transport", d.MCP.Transport)
	viper.SetDefault("mcp.addr", d.MCP.Addr)
	viper.SetDefault("mcp.mount", d.MCP.Mount)
	viper.SetDefault("logging.level", d.Logging.Level)
	viper.SetDefault("logging.format", d.Logging.Format)
}

// loadSettings resolves the effective configuration from flags, the
// environment, the config file and defaults.
func loadSettings() (*config.File, error) {
	cfg := config.Default()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	ids, err := config.ParseAdminIDs(viper.Get("auth.admin_ids"))
	if err != nil {
		return nil, err
	}
	cfg.Auth.AdminIDs = ids
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger. --dev forces debug level.
func newLogger(cfg *config.File) *slog.Logger {
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
		level = slog.LevelInfo
	}
	if devMode {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Logging.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// app bundles what most commands need.
type app struct {
	cfg    *config.File
	logger *slog.Logger
	store  *store.Store
	keys   *keys.Service
	audit  *audit.Log // nil when disabled
}

// openApp loads settings and opens the key store and, when enabled, the
// audit log. extra options are passed to the keys service. Callers must
// Close the result.
func openApp(extra ...keys.Option) (*app, error) {
	cfg, err := loadSettings()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: newLogger(cfg)}

	a.store, err = store.New(cfg.Store.Path, a.logger)
	if err != nil {
		return nil, fmt.Errorf("open key store: %w", err)
	}

	opts := []keys.Option{keys.WithAdmins(cfg.Auth.AdminIDs...)}
	if cfg.Audit.Enabled {
		a.audit, err = audit.Open(auditPath(cfg))
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		opts = append(opts, keys.WithAuditor(a.audit))
	}
	opts = append(opts, extra...)
	a.keys = keys.New(a.store, a.logger, opts...)
	return a, nil
}

// Close releases the audit log.
func (a *app) Close() {
	if a.audit != nil {
		a.audit.Close()
	}
}

// ctx returns a context carrying the CLI actor for audit records.
func (a *app) ctx() context.Context {
	return keys.WithActor(context.Background(), cliActor)
}

// auditPath places a relative audit database next to the key store.
func auditPath(cfg *config.File) string {
	if cfg.Audit.Path == "" || filepath.IsAbs(cfg.Audit.Path) {
		return cfg.Audit.Path
	}
	return filepath.Join(filepath.Dir(cfg.Store.Path), cfg.Audit.Path)
}

// confirm asks a yes/no question on the terminal. It refuses when stdin is
// not a terminal so scripts must pass --yes explicitly.
func confirm(prompt string) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, errors.New("stdin is not a terminal; pass --yes to confirm")
	}
	return readConfirmation(os.Stdin, os.Stdout, prompt)
}

func readConfirmation(in io.Reader, out io.Writer, prompt string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatExpiry renders an expiry for tables: absolute time plus a relative
// hint, or "never" for perpetual keys.
func formatExpiry(exp *model.Timestamp, now time.Time) string {
	if exp == nil {
		return "never"
	}
	return exp.Local().Format(displayLayout) + " (" + humanize.RelTime(exp.Time, now, "ago", "from now") + ")"
}

// statusLabel summarises a record's state for tables.
func statusLabel(rec *model.KeyRecord, now time.Time) string {
	switch {
	case !rec.Active:
		return "revoked"
	case !keys.IsValid(rec, now):
		return "expired"
	}
	return "valid"
}

// explain maps service errors to messages for the terminal.
func explain(err error) error {
	switch {
	case errors.Is(err, keys.ErrNotFound):
		return errors.New("key not found")
	case errors.Is(err, keys.ErrInvalidDuration):
		return fmt.Errorf("%v (use a number followed by s, m, h, d, w or year, e.g. 30d)", err)
	case errors.Is(err, store.ErrMalformedData):
		return fmt.Errorf("key store is malformed: %w", err)
	case errors.Is(err, store.ErrWriteFailed):
		return fmt.Errorf("key store could not be written: %w", err)
	}
	return err
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
