package cli

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/maxkornevpro/key/internal/keys"
	kmcp "github.com/maxkornevpro/key/internal/mcp"
	"github.com/maxkornevpro/key/internal/server"
	"github.com/maxkornevpro/key/internal/service"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the key validation API server",
		Long: `Start the HTTP server. Client software validates keys at /api/validate;
administrators manage keys under /api/admin with a token from 'key token'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 5000, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe() error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a, err := openApp(keys.WithMetrics(keys.NewMetrics(reg)))
	if err != nil {
		return err
	}
	defer a.Close()
	cfg, logger := a.cfg, a.logger

	ctx := a.ctx()
	if created, err := a.store.CreateIfAbsent(ctx); err != nil {
		return explain(err)
	} else if created {
		logger.Info("created empty key store", "path", a.store.Path())
	}
	if _, err := a.keys.Count(ctx); err != nil {
		return explain(err)
	}

	authSvc := service.NewAuthService(cfg.Auth.APISecret, cfg.Auth.JWTSecret, a.keys)
	if !authSvc.SecretRequired() {
		logger.Warn("auth.api_secret is empty: /api/validate accepts requests without a secret")
	}
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("auth.jwt_secret is empty: admin API and /mcp will reject every request")
	}

	bodyLimit, _ := cfg.Server.BodyLimit()
	shutdown, _ := cfg.Server.ShutdownDuration()
	srvCfg := server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ShutdownTimeout: shutdown,
		CORSOrigins:     cfg.Server.CORS.Origins,
		RateLimit:       cfg.Server.RateLimit,
		AdminRateLimit:  cfg.Server.AdminRateLimit,
		MaxBodySize:     bodyLimit,
		Version:         versionString(),
	}

	deps := server.Deps{
		Keys:     a.keys,
		Auth:     authSvc,
		Registry: reg,
	}
	if a.audit != nil {
		deps.Audit = a.audit
	}
	var mcpHandler http.Handler
	if cfg.MCP.Mount {
		mcpHandler = kmcp.NewMCPServer(a.keys, logger, versionString()).Handler()
		deps.MCP = mcpHandler
	}

	srv := server.New(srvCfg, deps, logger)

	base := fmt.Sprintf("http://%s:%d", displayHost(cfg.Server.Host), cfg.Server.Port)
	fmt.Printf("→ key %s\n", versionString())
	fmt.Printf("→ Listening on %s\n", base)
	fmt.Printf("→ Validate:   %s/api/validate\n", base)
	fmt.Printf("→ OpenAPI:    %s/openapi.json\n", base)
	fmt.Printf("→ Metrics:    %s/metrics\n", base)
	if mcpHandler != nil {
		fmt.Printf("→ MCP:        %s/mcp\n", base)
	}
	fmt.Printf("→ Key store:  %s\n", a.store.Path())
	fmt.Println()

	return srv.ListenAndServe()
}

// displayHost turns a wildcard listen address into one a browser can use.
func displayHost(host string) string {
	if host == "" || host == "0.0.0.0" || host == "::" {
		return "127.0.0.1"
	}
	return host
}
