// Package main is the CLI entrypoint for the Tez relay. It provides
// subcommands for running the server (serve), managing database migrations
// (migrate), instance administration (admin), and printing version
// information (version). The serve command loads configuration, connects to
// PostgreSQL, NATS, and the presence cache, runs pending migrations, starts
// the HTTP API server and, when federation is enabled, the outbound
// federation pump, and handles graceful shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tezrelay/relay/internal/acl"
	"github.com/tezrelay/relay/internal/api"
	"github.com/tezrelay/relay/internal/artifacts"
	"github.com/tezrelay/relay/internal/audit"
	"github.com/tezrelay/relay/internal/auth"
	"github.com/tezrelay/relay/internal/config"
	"github.com/tezrelay/relay/internal/contacts"
	"github.com/tezrelay/relay/internal/conversations"
	"github.com/tezrelay/relay/internal/database"
	"github.com/tezrelay/relay/internal/events"
	"github.com/tezrelay/relay/internal/federation"
	"github.com/tezrelay/relay/internal/identity"
	"github.com/tezrelay/relay/internal/messaging"
	"github.com/tezrelay/relay/internal/notifications"
	"github.com/tezrelay/relay/internal/presence"
	"github.com/tezrelay/relay/internal/search"
	"github.com/tezrelay/relay/internal/teams"
	"github.com/tezrelay/relay/internal/trust"
)

// Build-time variables set via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	case "migrate":
		if err := runMigrate(); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	case "admin":
		if err := runAdmin(); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	case "version":
		runVersion()
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// printUsage prints the CLI usage information.
func printUsage() {
	fmt.Println("tezrelay — server-to-server Tez relay")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  tezrelay <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve     Start the relay server")
	fmt.Println("  migrate   Run database migrations")
	fmt.Println("  admin     Manage teams, admins, and federation peers")
	fmt.Println("  version   Print version information")
	fmt.Println("  help      Show this help message")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println("  Config file:  tezrelay.toml (or set TEZRELAY_CONFIG_PATH)")
	fmt.Println("  Env prefix:   TEZ_ (e.g. TEZ_DATABASE_URL)")
}

// runServe starts the full relay server: loads config, connects to all
// services (PostgreSQL, NATS, presence cache), runs migrations, loads the
// relay's federation identity, wires every domain service, starts the HTTP
// API server and, when federation is enabled, the outbound federation pump,
// and handles graceful shutdown on SIGINT/SIGTERM.
func runServe() error {
	logger := setupLogger("info", "json")

	logger.Info("starting tezrelay",
		slog.String("version", version),
		slog.String("commit", commit),
	)

	cfgPath := configPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger = setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("configuration loaded", slog.String("path", cfgPath))

	ctx := context.Background()

	db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConnections, logger)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	if err := database.MigrateUp(cfg.Database.URL, logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	id, err := identity.New(cfg.Instance.DataDir, cfg.Instance.Domain, logger)
	if err != nil {
		return fmt.Errorf("loading relay identity: %w", err)
	}

	bus, err := events.New(cfg.NATS.URL, logger)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer bus.Close()

	if err := bus.EnsureStreams(); err != nil {
		return fmt.Errorf("ensuring NATS streams: %w", err)
	}

	cache, err := presence.New(cfg.Cache.URL)
	if err != nil {
		return fmt.Errorf("connecting to cache: %w", err)
	}
	defer cache.Close()

	authSvc := auth.New(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)

	checker := acl.New(db.Pool)
	auditStore := audit.New(db.Pool, logger)
	trustStore := trust.New(db.Pool, cfg.Federation.Mode, logger)

	teamsSvc := teams.New(db.Pool, checker, auditStore)
	contactsSvc := contacts.New(db.Pool, cfg.Instance.Domain, auditStore)
	conversationsSvc := conversations.New(db.Pool, checker)

	var searchSvc *search.Service
	if cfg.Search.Enabled {
		searchSvc, err = search.New(cfg.Search.URL, cfg.Search.APIKey, logger)
		if err != nil {
			return fmt.Errorf("connecting to search index: %w", err)
		}
	}

	var artifactStore *artifacts.Store
	if cfg.Storage.Endpoint != "" {
		artifactStore, err = artifacts.New(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("connecting to artifact storage: %w", err)
		}
	}

	notifySvc := notifications.New(db.Pool, cfg.Push.VAPIDPublicKey, cfg.Push.VAPIDPrivateKey, cfg.Push.VAPIDContactEmail, logger)
	if notifySvc.Enabled() {
		logger.Info("web push notifications enabled")
	}

	fedQueue := federation.NewQueue(db.Pool)
	fedInbox := federation.NewInbox(db.Pool, auditStore, searchSvc, notifySvc, bus, cfg.Instance.Domain, logger)

	messagingLimits := messaging.Limits{
		MaxSurfaceTextBytes: cfg.Federation.MaxTezSizeBytes,
		MaxContextItems:     cfg.Federation.MaxContextItems,
		MaxRecipients:       cfg.Federation.MaxRecipients,
	}
	messagingSvc := messaging.New(db.Pool, checker, auditStore, fedQueue, searchSvc, artifactStore, notifySvc, bus, cfg.Instance.Domain, messagingLimits, logger)

	srv := api.NewServer(
		db, cfg, authSvc, bus, cache,
		id, trustStore, checker, auditStore,
		teamsSvc, contactsSvc, conversationsSvc, messagingSvc, notifySvc,
		fedInbox, fedQueue,
		id.Current().ServerID, logger,
	)
	srv.Version = version

	backoffCeiling, err := cfg.Federation.BackoffCeilingParsed()
	if err != nil {
		return fmt.Errorf("parsing federation backoff ceiling: %w", err)
	}

	pumpCtx, pumpCancel := context.WithCancel(ctx)
	defer pumpCancel()
	if cfg.Federation.Enabled {
		pump := federation.NewPump(fedQueue, id, logger, backoffCeiling)
		go pump.Run(pumpCtx)
		logger.Info("federation delivery pump started", slog.String("mode", cfg.Federation.Mode))
	} else {
		logger.Info("federation disabled, delivery pump not started")
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case sig := <-shutdownCh:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	pumpCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("tezrelay stopped")
	return nil
}

// runMigrate handles the migrate subcommand with up/down/status operations.
func runMigrate() error {
	logger := setupLogger("info", "text")

	cfgPath := configPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	action := "up"
	if len(os.Args) >= 3 {
		action = os.Args[2]
	}

	switch action {
	case "up":
		return database.MigrateUp(cfg.Database.URL, logger)
	case "down":
		return database.MigrateDown(cfg.Database.URL, logger)
	case "status":
		v, dirty, err := database.MigrateStatus(cfg.Database.URL)
		if err != nil {
			return err
		}
		fmt.Printf("Migration version: %d\n", v)
		fmt.Printf("Dirty: %v\n", dirty)
		return nil
	default:
		return fmt.Errorf("unknown migrate action: %s (use: up, down, status)", action)
	}
}

// runAdmin handles admin subcommands for team, admin-flag, and federation
// peer management.
func runAdmin() error {
	if len(os.Args) < 3 {
		fmt.Println("Usage: tezrelay admin <action>")
		fmt.Println()
		fmt.Println("Actions:")
		fmt.Println("  create-team <name> <actorUserId>   Create a team")
		fmt.Println("  set-admin <userId>                 Print how to add a user to the admin list")
		fmt.Println("  trust-peer <host>                  Transition a peer to trusted")
		fmt.Println("  block-peer <host>                  Transition a peer to blocked")
		fmt.Println("  list-peers                         List known federation peers")
		return nil
	}

	logger := setupLogger("info", "text")

	cfgPath := configPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := context.Background()
	db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConnections, logger)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	checker := acl.New(db.Pool)
	auditStore := audit.New(db.Pool, logger)
	trustStore := trust.New(db.Pool, cfg.Federation.Mode, logger)
	teamsSvc := teams.New(db.Pool, checker, auditStore)

	switch os.Args[2] {
	case "create-team":
		if len(os.Args) < 5 {
			return fmt.Errorf("usage: tezrelay admin create-team <name> <actorUserId>")
		}
		name, actorUserID := os.Args[3], os.Args[4]
		team, err := teamsSvc.Create(ctx, actorUserID, name)
		if err != nil {
			return fmt.Errorf("creating team: %w", err)
		}
		fmt.Printf("Created team %q (ID: %s)\n", team.Name, team.ID)

	case "set-admin":
		if len(os.Args) < 4 {
			return fmt.Errorf("usage: tezrelay admin set-admin <userId>")
		}
		fmt.Printf("Add %q to instance.admin_user_ids in %s and restart the relay.\n", os.Args[3], cfgPath)

	case "trust-peer":
		if len(os.Args) < 4 {
			return fmt.Errorf("usage: tezrelay admin trust-peer <host>")
		}
		if err := trustStore.Transition(ctx, os.Args[3], "trusted"); err != nil {
			return fmt.Errorf("trusting peer: %w", err)
		}
		fmt.Printf("Peer %s now trusted\n", os.Args[3])

	case "block-peer":
		if len(os.Args) < 4 {
			return fmt.Errorf("usage: tezrelay admin block-peer <host>")
		}
		if err := trustStore.Transition(ctx, os.Args[3], "blocked"); err != nil {
			return fmt.Errorf("blocking peer: %w", err)
		}
		fmt.Printf("Peer %s now blocked\n", os.Args[3])

	case "list-peers":
		peers, err := trustStore.List(ctx)
		if err != nil {
			return fmt.Errorf("listing peers: %w", err)
		}
		fmt.Printf("%-32s %-10s %-18s %s\n", "Host", "Trust", "ServerID", "FirstSeen")
		fmt.Println(strings.Repeat("-", 90))
		for _, p := range peers {
			fmt.Printf("%-32s %-10s %-18s %s\n", p.Host, p.TrustLevel, p.ServerID, p.FirstSeenAt.Format(time.RFC3339))
		}

	default:
		return fmt.Errorf("unknown admin action: %s", os.Args[2])
	}

	return nil
}

// runVersion prints version information and exits.
func runVersion() {
	fmt.Printf("tezrelay %s\n", version)
	fmt.Printf("  commit:     %s\n", commit)
	fmt.Printf("  built:      %s\n", buildDate)
}

// configPath returns the config file path from TEZRELAY_CONFIG_PATH env var
// or the default "tezrelay.toml".
func configPath() string {
	if p := os.Getenv("TEZRELAY_CONFIG_PATH"); p != "" {
		return p
	}
	return "tezrelay.toml"
}

// setupLogger creates a slog.Logger with the given level and format.
func setupLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
