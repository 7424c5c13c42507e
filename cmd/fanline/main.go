package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/jujuling/fanline/internal/api"
	"github.com/jujuling/fanline/internal/delivery"
	"github.com/jujuling/fanline/internal/drip"
	"github.com/jujuling/fanline/internal/line"
	"github.com/jujuling/fanline/internal/lockfile"
	"github.com/jujuling/fanline/internal/ratelimit"
	"github.com/jujuling/fanline/internal/store"
	"github.com/jujuling/fanline/internal/util"
	"github.com/jujuling/fanline/internal/webhook"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for fanline state data
	DefaultStateDir = "/var/lib/fanline"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "fanline.db"
	// liffBaseURL is the mini-app launcher prefix the game URL is built from
	// when only a LIFF id is configured.
	liffBaseURL = "https://liff.line.me/"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// One instance per state directory. The flock is released on exit,
	// clean or not.
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	st, err := buildStore(flags)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	client := line.NewClient(
		line.WithAccessToken(config.AccessToken),
		line.WithChannelSecret(config.ChannelSecret),
	)

	channel := delivery.NewChannel(client)
	engine := drip.NewEngine(st, channel, drip.DefaultCatalog(), config.GameURL)
	dispatcher := webhook.NewDispatcher(st, engine, channel, client, *flags.campaign)
	limiter := ratelimit.NewLimiter(st, config.RateLimitWindow)

	server := api.NewServer(client, dispatcher, st, limiter, client, buildAPIOptions(flags, config)...)

	slog.Info("Bootstrapping fanline",
		"api_addr", *flags.apiAddr,
		"state_dir", *flags.stateDir,
		"dsn_set", *flags.dbDSN != "",
		"token_set", config.AccessToken != "",
		"secret_set", config.ChannelSecret != "")
	if err := server.Run(); err != nil {
		slog.Error("fanline failed to run", "error", err)
		lock.Release()
		os.Exit(1)
	}
	slog.Info("fanline exited successfully")
}

// Config holds environment configuration
type Config struct {
	ChannelSecret   string
	AccessToken     string
	DatabaseURL     string
	StateDir        string
	APIAddr         string
	GameURL         string
	AssetBaseURL    string
	Campaign        string
	RateLimitWindow time.Duration
}

// Flags holds command line flag values
type Flags struct {
	stateDir *string
	dbDSN    *string
	apiAddr  *string
	campaign *string
}

// initializeLogger sets up structured logging. Debug level is opt-in via
// FANLINE_DEBUG.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("FANLINE_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
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
		ChannelSecret:   os.Getenv("LINE_CHANNEL_SECRET"),
		AccessToken:     os.Getenv("LINE_CHANNEL_ACCESS_TOKEN"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		StateDir:        os.Getenv("FANLINE_STATE_DIR"),
		APIAddr:         os.Getenv("API_ADDR"),
		GameURL:         os.Getenv("GAME_URL"),
		AssetBaseURL:    os.Getenv("GAME_ASSET_BASE_URL"),
		Campaign:        os.Getenv("CAMPAIGN_NAME"),
		RateLimitWindow: util.ParseDurationEnv("RATE_LIMIT_WINDOW", ratelimit.DefaultWindow),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No FANLINE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	// The game URL can be given directly or derived from a LIFF id.
	if config.GameURL == "" {
		if liffID := os.Getenv("LIFF_ID"); liffID != "" {
			config.GameURL = liffBaseURL + liffID
		}
	}

	slog.Debug("environment variables loaded",
		"LINE_CHANNEL_SECRET_SET", config.ChannelSecret != "",
		"LINE_CHANNEL_ACCESS_TOKEN_SET", config.AccessToken != "",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"FANLINE_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"GAME_URL", config.GameURL,
		"GAME_ASSET_BASE_URL", config.AssetBaseURL,
		"RATE_LIMIT_WINDOW", config.RateLimitWindow)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir: flag.String("state-dir", config.StateDir, "state directory for fanline data (overrides $FANLINE_STATE_DIR)"),
		dbDSN:    flag.String("db-dsn", config.DatabaseURL, "database DSN, PostgreSQL or SQLite file path (overrides $DATABASE_URL)"),
		apiAddr:  flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		campaign: flag.String("campaign", config.Campaign, "availability campaign name for the welcome card (overrides $CAMPAIGN_NAME)"),
	}

	flag.Parse()

	// Follow the state directory when the DSN was only defaulted from it.
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated db DSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"campaign", *flags.campaign)

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		dir := filepath.Dir(*flags.dbDSN)
		if err := os.MkdirAll(dir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", dir)
			return err
		}
	}
	return nil
}

// buildStore selects the storage backend from the DSN.
func buildStore(flags Flags) (store.Store, error) {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN))
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags, config Config) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if config.AssetBaseURL != "" {
		apiOpts = append(apiOpts, api.WithAssetBaseURL(config.AssetBaseURL))
	}
	return apiOpts
}
