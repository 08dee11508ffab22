// Command renew is the unattended CLI entry point: load configuration,
// wire the plugin registry and engine services, and run one scheduler
// sweep per invocation, or, with -daemon, a sweep on every cron_spec tick.
package main

import (
	"context"
	"crypto"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/pelletier/go-toml/v2"
	"github.com/prometheus/client_golang/prometheus"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/renewkit/acme"
	"github.com/renewkit/acme/acmeclient"
	"github.com/renewkit/acme/engine"
	"github.com/renewkit/acme/plugin"
	installnull "github.com/renewkit/acme/plugin/install/null"
	installnotify "github.com/renewkit/acme/plugin/install/notify"
	installscript "github.com/renewkit/acme/plugin/install/script"
	storefilesystem "github.com/renewkit/acme/plugin/store/filesystem"
	storesqlite "github.com/renewkit/acme/plugin/store/sqlite"
	targetstatic "github.com/renewkit/acme/plugin/target"
	validationdns01 "github.com/renewkit/acme/plugin/validation/dns01"
	validationhttp01 "github.com/renewkit/acme/plugin/validation/http01"
	validationtlsalpn01 "github.com/renewkit/acme/plugin/validation/tlsalpn01"
	registrysqlite "github.com/renewkit/acme/registry/sqlite"
	secretage "github.com/renewkit/acme/secret/age"
)

// fileConfig is the TOML-shaped configuration the teacher's config.go
// pattern loads, scoped to exactly what this engine's plugins need.
type fileConfig struct {
	Email          string   `toml:"email"`
	CADirectoryURL string   `toml:"ca_directory_url"`
	Domains        []string `toml:"domains"`

	WebRoot          string `toml:"webroot"`
	CloudflareAPI    string `toml:"cloudflare_api_token_scope"`
	CentralSslStore  string `toml:"central_ssl_store"`
	NotifySMTPHost   string `toml:"notify_smtp_host"`
	NotifySMTPPort   int    `toml:"notify_smtp_port"`
	NotifyFrom       string `toml:"notify_from"`
	NotifyTo         []string `toml:"notify_to"`

	CronSpec string `toml:"cron_spec"`
}

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))

	var configPath, dbPath, secretsDir, identityPath string
	var force, daemon, noTaskScheduler bool
	flag.StringVar(&configPath, "config", "config.toml", "path to config TOML file")
	flag.StringVar(&dbPath, "dbfile", "renewkit.db", "path to SQLite database file")
	flag.StringVar(&secretsDir, "secrets", "secrets", "path to the age-encrypted secrets directory")
	flag.StringVar(&identityPath, "identity", "identity.age", "path to the age identity file decrypting secrets")
	flag.BoolVar(&force, "force", false, "force renewal regardless of due date")
	flag.BoolVar(&daemon, "daemon", false, "run continuously on cron_spec instead of a single sweep")
	flag.BoolVar(&noTaskScheduler, "no-task-scheduler", false, "skip scheduled-task registration on new renewals")
	flag.Parse()
	opts := acme.Options{ForceRenewal: force, NoTaskScheduler: noTaskScheduler}

	logger.Info("loading configuration", "path", configPath)
	raw, err := os.ReadFile(configPath)
	if err != nil {
		logger.Error("read config failed", "error", err)
		os.Exit(1)
	}
	var cfg fileConfig
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		logger.Error("parse config failed", "error", err)
		os.Exit(1)
	}

	secrets, err := secretage.New(secretsDir, identityPath, logger)
	if err != nil {
		logger.Error("open secret store failed", "error", err)
		os.Exit(1)
	}

	pool, err := sqlitex.NewPool(dbPath, sqlitex.PoolOptions{Flags: sqlite.OpenReadWrite | sqlite.OpenCreate, PoolSize: 4})
	if err != nil {
		logger.Error("open database pool failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := applySchema(pool); err != nil {
		logger.Error("apply schema failed", "error", err)
		os.Exit(1)
	}

	services, err := buildServices(context.Background(), cfg, pool, secrets, logger)
	if err != nil {
		logger.Error("build services failed", "error", err)
		os.Exit(1)
	}

	sched := engine.NewScheduler(services, opts)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	if daemon {
		if _, err := sched.StartCron(context.Background(), cfg.CronSpec); err != nil {
			logger.Error("start cron failed", "error", err)
			os.Exit(1)
		}
		logger.Info("running as daemon", "cron_spec", cfg.CronSpec)
		select {}
	}

	if err := sched.Run(ctx, force); err != nil {
		logger.Error("sweep failed", "error", err)
		os.Exit(acme.ExitCodeForError(err))
	}
	logger.Info("sweep complete")
}

func applySchema(pool *sqlitex.Pool) error {
	conn, err := pool.Take(context.Background())
	if err != nil {
		return err
	}
	defer pool.Put(conn)
	if err := sqlitex.ExecScript(conn, storesqlite.Schema); err != nil {
		return err
	}
	return sqlitex.ExecScript(conn, registrysqlite.Schema)
}

func buildServices(ctx context.Context, cfg fileConfig, pool *sqlitex.Pool, secrets acme.SecretStore, logger *slog.Logger) (*engine.Services, error) {
	registryStore := registrysqlite.New(pool)

	plugins := plugin.NewRegistry()
	plugins.RegisterTarget(targetstatic.Factory{Domains: cfg.Domains})
	plugins.RegisterValidation(validationhttp01.Factory{WebRoot: cfg.WebRoot})
	plugins.RegisterValidation(validationtlsalpn01.Factory{})

	if cloudflareToken, err := secrets.Latest(cfg.CloudflareAPI); err == nil && len(cloudflareToken) > 0 {
		plugins.RegisterValidation(validationdns01.Factory{APIToken: string(cloudflareToken)})
	} else {
		logger.Warn("cloudflare API token unavailable, DNS-01 disabled", "error", err)
	}

	plugins.RegisterInstall(installnull.Factory{})
	plugins.RegisterInstall(installscript.Factory{})
	plugins.RegisterInstall(installnotify.Factory{
		SMTPHost: cfg.NotifySMTPHost,
		SMTPPort: cfg.NotifySMTPPort,
		From:     cfg.NotifyFrom,
		To:       cfg.NotifyTo,
	})

	centralStore, err := storefilesystem.New(cfg.CentralSslStore)
	if err != nil {
		return nil, err
	}
	plugins.RegisterStore(centralStore)
	plugins.RegisterStore(storesqlite.New(pool))

	var accountKey crypto.PrivateKey
	if accountKeyPEM, err := secrets.Latest("acme_account_key"); err == nil && len(accountKeyPEM) > 0 {
		accountKey, err = certcrypto.ParsePEMPrivateKey(accountKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("parse persisted ACME account key: %w", err)
		}
	} else {
		logger.Warn("no persisted ACME account key, acmeclient will generate an ephemeral one", "error", err)
	}

	acmeClient, err := acmeclient.NewClient(ctx, cfg.CADirectoryURL, cfg.Email, accountKey)
	if err != nil {
		return nil, err
	}

	certService, err := engine.NewCertificateService(acmeClient)
	if err != nil {
		return nil, err
	}

	metrics := engine.NewMetrics(prometheus.DefaultRegisterer)

	return &engine.Services{
		Registry:      registryStore,
		Plugins:       plugins,
		ACMEClient:    acmeClient,
		CertService:   certService,
		TaskScheduler: engine.LoggingTaskScheduler{Logger: logger},
		Metrics:       metrics,
		Logger:        logger,
	}, nil
}
