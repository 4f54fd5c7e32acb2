package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/socketgate/socketgate/internal/adapter/inbound/admin"
	httpadapter "github.com/socketgate/socketgate/internal/adapter/inbound/http"
	"github.com/socketgate/socketgate/internal/adapter/inbound/ws"
	"github.com/socketgate/socketgate/internal/adapter/outbound/inject"
	"github.com/socketgate/socketgate/internal/adapter/outbound/memory"
	"github.com/socketgate/socketgate/internal/adapter/outbound/telemetry"
	"github.com/socketgate/socketgate/internal/config"
	"github.com/socketgate/socketgate/internal/domain/connection"
	"github.com/socketgate/socketgate/internal/port/outbound"
	"github.com/socketgate/socketgate/internal/service"
)

// telemetryFlushTimeout bounds the final export on shutdown.
const telemetryFlushTimeout = 5 * time.Second

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the socketgate server",
	Long: `Start the socketgate server.

The server accepts Sails socket connections on the socket path and injects
every virtual request into the upstream HTTP application. Health, metrics
and the admin API share the same listener.

Examples:
  # Start against an application on port 8080
  SOCKETGATE_UPSTREAM_URL=http://127.0.0.1:8080 socketgate start

  # Start in development mode with the built-in echo application
  socketgate start --dev

  # Start with a specific config file
  socketgate --config /etc/socketgate/socketgate.yaml start`,
	RunE: runStart,
}

var devMode bool

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (debug logging, echo upstream, any origin)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	// Load without validation so CLI flags can override first.
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// stop() restores default signal handling so a second Ctrl+C is a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop()
	}()

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	logger.Debug("log level configured", "level", cfg.Server.LogLevel, "effective", logLevel.String())

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	pidPath := pidFilePath()
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("failed to write PID file", "path", pidPath, "error", err)
	} else {
		defer os.Remove(pidPath)
	}

	return run(ctx, cfg, logger)
}

// run wires every component and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdownTelemetry, err := telemetry.Setup(telemetry.Config{
		Traces:          cfg.Telemetry.Traces,
		Metrics:         cfg.Telemetry.Metrics,
		MetricsInterval: cfg.MetricsInterval(),
		ServiceVersion:  Version,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), telemetryFlushTimeout)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	limiter := memory.NewRateLimiterWithConfig(logger, cfg.CleanupInterval(), cfg.MaxTTL())
	limiter.StartCleanup(ctx)
	defer limiter.Stop()

	registry := memory.NewConnectionRegistry(logger)
	registry.StartCleanup(ctx)
	defer registry.Stop()

	stats := service.NewStatsService()
	promRegistry := httpadapter.NewRegistry()
	metrics := httpadapter.NewMetrics(promRegistry)

	injector, upstream, err := newInjector(cfg, logger)
	if err != nil {
		return err
	}

	gateway := service.NewGateway(injector, registry, cfg.ConnectionSettings(),
		service.WithGatewayLogger(logger),
		service.WithObserver(connection.Observers{stats, metrics}),
		service.WithLimiter(limiter),
		service.WithConnectBudget(cfg.ConnectBudget()),
	)

	// Origins are enforced by the HTTP middleware in front of the upgrade.
	sockets := ws.NewServer(gateway,
		ws.WithLogger(logger),
		ws.WithReadLimit(cfg.Server.ReadLimit),
		ws.WithCheckOrigin(func(*http.Request) bool { return true }),
	)

	opts := []httpadapter.Option{
		httpadapter.WithAddr(cfg.Server.HTTPAddr),
		httpadapter.WithSocketPath(cfg.Server.SocketPath),
		httpadapter.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		httpadapter.WithLogger(logger),
		httpadapter.WithMetrics(promRegistry, metrics),
		httpadapter.WithHealthChecker(httpadapter.NewHealthChecker(registry, limiter, sockets, Version)),
	}
	if cfg.Server.TLSCert != "" && cfg.Server.TLSKey != "" {
		opts = append(opts, httpadapter.WithTLS(cfg.Server.TLSCert, cfg.Server.TLSKey))
	}
	if cfg.Admin.Enabled {
		adminAPI := admin.NewAdminAPIHandler(
			admin.WithConnections(registry),
			admin.WithStatsService(stats),
			admin.WithRateLimiter(limiter, admin.DefaultAPIRateLimit),
			admin.WithToken(cfg.Admin.Token),
			admin.WithTokenHash(cfg.Admin.TokenHash),
			admin.WithAPILogger(logger),
			admin.WithBuildInfo(&admin.BuildInfo{Version: Version, Commit: Commit, BuildDate: BuildDate}),
		)
		opts = append(opts, httpadapter.WithAdminHandler(adminAPI.Routes()))
	}
	transport := httpadapter.NewHTTPTransport(sockets, opts...)

	printBanner(Version, cfg, upstream)

	err = transport.Start(ctx)
	registry.DisconnectAll()
	logger.Info("socketgate stopped")
	return err
}

// newInjector builds the injection target and returns a label for it.
// Dev mode without an upstream serves the built-in echo application.
func newInjector(cfg *config.Config, logger *slog.Logger) (outbound.Injector, string, error) {
	if cfg.Upstream.URL == "" {
		if !cfg.DevMode {
			return nil, "", config.ErrUpstreamRequired
		}
		logger.Warn("no upstream configured, serving the built-in echo application")
		return inject.NewHandlerInjector(inject.EchoHandler(), logger), "built-in echo", nil
	}

	up, err := inject.NewUpstreamInjector(cfg.Upstream.URL,
		inject.WithTimeout(cfg.UpstreamTimeout()),
		inject.WithLogger(logger),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create upstream injector: %w", err)
	}
	return up, up.Base(), nil
}

// parseLogLevel converts a string log level to slog.Level.
// Defaults to Info if the level is unrecognized.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// serverURL turns a listen address into a URL with the given scheme and path.
func serverURL(scheme, addr, path string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return scheme + "://" + addr + path
}

func printBanner(version string, cfg *config.Config, upstream string) {
	const (
		reset  = "\033[0m"
		bold   = "\033[1m"
		cyan   = "\033[36m"
		green  = "\033[32m"
		yellow = "\033[33m"
		dim    = "\033[2m"
	)

	scheme, wsScheme := "http", "ws"
	if cfg.Server.TLSCert != "" {
		scheme, wsScheme = "https", "wss"
	}

	modeStr := green + "production" + reset
	if cfg.DevMode {
		modeStr = yellow + "development" + reset + dim + " (any origin)" + reset
	}
	adminStr := dim + "disabled" + reset
	if cfg.Admin.Enabled {
		adminStr = serverURL(scheme, cfg.Server.HTTPAddr, "/admin/api/")
	}
	cookies := "off"
	if cfg.Connection.Cookies {
		cookies = "on (" + cfg.Connection.CookieURI + ")"
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  %s%s socketgate %s%s\n", bold, cyan, version, reset)
	fmt.Fprintf(os.Stderr, "  %s─────────────────────────────────────%s\n", dim, reset)
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "Socket:", serverURL(wsScheme, cfg.Server.HTTPAddr, cfg.Server.SocketPath))
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "Upstream:", upstream)
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "Admin API:", adminStr)
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "Mode:", modeStr)
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "Cookies:", cookies)
	fmt.Fprintf(os.Stderr, "  %-14s %d sticky / %d stripped\n", "Headers:", len(cfg.Connection.Sticky), len(cfg.Connection.Strip))
	fmt.Fprintf(os.Stderr, "  %s─────────────────────────────────────%s\n", dim, reset)
	fmt.Fprintf(os.Stderr, "\n")
}
