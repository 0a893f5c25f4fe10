package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/propelhealth/onboardflow/internal/api"
	"github.com/propelhealth/onboardflow/internal/coordinator"
	"github.com/propelhealth/onboardflow/internal/lockfile"
	"github.com/propelhealth/onboardflow/internal/notify"
	"github.com/propelhealth/onboardflow/internal/refdata"
	"github.com/propelhealth/onboardflow/internal/retention"
	"github.com/propelhealth/onboardflow/internal/store"
	"github.com/propelhealth/onboardflow/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for OnboardFlow state data
	DefaultStateDir = "/var/lib/onboardflow"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "onboardflow.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := os.MkdirAll(*flags.stateDir, 0755); err != nil {
		slog.Error("Failed to create state directory", "error", err, "state_dir", *flags.stateDir)
		os.Exit(1)
	}

	// One instance per state directory; the lock is released on exit.
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	schema, err := refdata.LoadFormSchema(*flags.schemaPath)
	if err != nil {
		slog.Error("Failed to load form schema", "error", err, "path", *flags.schemaPath)
		os.Exit(1)
	}
	slog.Info("Form schema loaded", "form_id", schema.FormID, "version", schema.Version, "steps", len(schema.Steps))

	ref, err := refdata.LoadReferenceData(*flags.refDataPath)
	if err != nil {
		slog.Error("Failed to load reference data", "error", err, "path", *flags.refDataPath)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *flags.registryURL != "" {
		registryCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		ref.OverridePrograms(registryCtx, http.DefaultClient, *flags.registryURL)
		cancel()
	}

	// The local snapshot tier is always SQLite in the state directory. The
	// remote draft tier upgrades to PostgreSQL when a DATABASE_URL is set.
	localStore, err := store.NewSQLiteStore(store.WithDSN(filepath.Join(*flags.stateDir, DefaultDBFileName)))
	if err != nil {
		slog.Error("Failed to open local snapshot store", "error", err)
		os.Exit(1)
	}
	defer localStore.Close()

	var remoteStore store.DraftStore = localStore
	if *flags.dbDSN != "" && isPostgresDSN(*flags.dbDSN) {
		pg, err := store.NewPostgresStore(store.WithDSN(*flags.dbDSN))
		if err != nil {
			slog.Error("Failed to open PostgreSQL draft store", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		remoteStore = pg
		slog.Info("Using PostgreSQL draft store")
	} else {
		slog.Info("Using SQLite draft store", "state_dir", *flags.stateDir)
	}

	notifier := buildNotifier(flags)

	cleaner := retention.NewCleaner(remoteStore,
		retention.WithSchedule(*flags.retentionCron),
		retention.WithMaxAge(config.RetentionAge),
	)
	if err := cleaner.Start(); err != nil {
		slog.Error("Failed to start retention cleaner", "error", err)
		os.Exit(1)
	}
	defer cleaner.Stop()

	server := api.NewServer(schema, ref, localStore, remoteStore, notifier,
		api.WithAddr(*flags.apiAddr),
		api.WithSaveWindow(config.SaveWindow),
	)

	slog.Info("Bootstrapping OnboardFlow", "api_addr", *flags.apiAddr, "state_dir", *flags.stateDir)
	if err := server.Run(ctx); err != nil {
		slog.Error("OnboardFlow failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("OnboardFlow exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL   string
	StateDir      string
	APIAddr       string
	SchemaPath    string
	RefDataPath   string
	RegistryURL   string
	WebhookURL    string
	NotifyPhone   string
	RetentionCron string
	RetentionAge  time.Duration
	SaveWindow    time.Duration
}

// Flags holds command line flag values
type Flags struct {
	stateDir      *string
	dbDSN         *string
	apiAddr       *string
	schemaPath    *string
	refDataPath   *string
	registryURL   *string
	webhookURL    *string
	notifyPhone   *string
	retentionCron *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		StateDir:      os.Getenv("ONBOARDFLOW_STATE_DIR"),
		APIAddr:       os.Getenv("API_ADDR"),
		SchemaPath:    os.Getenv("FORM_SCHEMA_PATH"),
		RefDataPath:   os.Getenv("REFERENCE_DATA_PATH"),
		RegistryURL:   os.Getenv("PROGRAM_REGISTRY_URL"),
		WebhookURL:    os.Getenv("NOTIFY_WEBHOOK_URL"),
		NotifyPhone:   os.Getenv("NOTIFY_PHONE_NUMBER"),
		RetentionCron: os.Getenv("RETENTION_SCHEDULE"),
		RetentionAge:  util.ParseDurationEnv("RETENTION_MAX_AGE", retention.DefaultMaxAge),
		SaveWindow:    util.ParseDurationEnv("AUTOSAVE_WINDOW", coordinator.DefaultSaveWindow),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No ONBOARDFLOW_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.APIAddr == "" {
		config.APIAddr = ":8080"
	}
	if config.SchemaPath == "" {
		config.SchemaPath = "config/form_schema.yaml"
	}
	if config.RefDataPath == "" {
		config.RefDataPath = "config/reference_data.json"
	}
	if config.RetentionCron == "" {
		config.RetentionCron = retention.DefaultSchedule
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"ONBOARDFLOW_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"FORM_SCHEMA_PATH", config.SchemaPath,
		"REFERENCE_DATA_PATH", config.RefDataPath,
		"PROGRAM_REGISTRY_URL_SET", config.RegistryURL != "",
		"NOTIFY_WEBHOOK_URL_SET", config.WebhookURL != "",
		"NOTIFY_PHONE_NUMBER_SET", config.NotifyPhone != "",
		"RETENTION_SCHEDULE", config.RetentionCron)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:      flag.String("state-dir", config.StateDir, "Directory for state data (SQLite database, lock file)"),
		dbDSN:         flag.String("db-dsn", config.DatabaseURL, "Remote draft store DSN (PostgreSQL URL; empty uses SQLite)"),
		apiAddr:       flag.String("api-addr", config.APIAddr, "API listen address"),
		schemaPath:    flag.String("schema", config.SchemaPath, "Path to the form schema file (YAML or JSON)"),
		refDataPath:   flag.String("reference-data", config.RefDataPath, "Path to the reference data file (JSON)"),
		registryURL:   flag.String("program-registry", config.RegistryURL, "Program registry URL for track option override"),
		webhookURL:    flag.String("notify-webhook", config.WebhookURL, "Webhook URL for submission notifications"),
		notifyPhone:   flag.String("notify-phone", config.NotifyPhone, "Phone number for SMS submission notifications"),
		retentionCron: flag.String("retention-schedule", config.RetentionCron, "Cron expression for the draft retention sweep"),
	}
	flag.Parse()
	return flags
}

// buildNotifier assembles the submission notifier chain from configuration.
// With nothing configured, notifications are dropped.
func buildNotifier(flags Flags) notify.Notifier {
	var notifiers notify.MultiNotifier
	if *flags.webhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(*flags.webhookURL))
		slog.Debug("Submission webhook notifier enabled")
	}
	if *flags.notifyPhone != "" {
		sender, err := notify.NewTwilioSMSClient()
		if err != nil {
			slog.Warn("SMS notifier disabled, Twilio client unavailable", "error", err)
		} else {
			notifiers = append(notifiers, notify.NewSMSNotifier(sender, *flags.notifyPhone))
			slog.Debug("Submission SMS notifier enabled", "to", *flags.notifyPhone)
		}
	}
	if len(notifiers) == 0 {
		return notify.NopNotifier{}
	}
	return notifiers
}

func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}
