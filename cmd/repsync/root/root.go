// Package root wires the repsync CLI: the serve daemon plus one-shot
// maintenance commands over the same local draft database.
package root

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"repsync/internal/adapters/api"
	"repsync/internal/adapters/storage"
	draftStore "repsync/internal/adapters/storage/draft"
	"repsync/internal/config"
)

const Version = "0.1.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "repsync",
	Short:         "Offline-first workout draft store and sync daemon",
	Long:          "repsync keeps in-progress workout logs in a local SQLite database and syncs recorded sets to the remote coaching API in the background.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "repsync.yaml", "path to config file")

	rootCmd.AddCommand(
		newServeCmd(),
		newSyncCmd(),
		newDraftsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error: "+err.Error())
		os.Exit(1)
	}
}

// loadConfig reads the config file named by --config and sets up logging.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	setupLogging(cfg.Log.Level)
	return cfg, nil
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// openStore opens the draft database and returns the store with a cleanup.
func openStore(cfg config.Config) (*draftStore.SQLiteStore, func(), error) {
	dsn := cfg.DB.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("database unreachable: %w", err)
	}
	if err := storage.InitDB(db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("initialize schema: %w", err)
	}

	store := draftStore.NewSQLiteStore(storage.NewTimedDB(db))
	return store, func() { db.Close() }, nil
}

// newTransmitter picks the real API client or the noop stand-in.
func newTransmitter(cfg config.Config) api.Transmitter {
	if cfg.API.Token == "" {
		slog.Warn("api_token_missing_using_noop_transmitter")
		return api.NewNoopTransmitter()
	}
	return api.NewClient(cfg.API.BaseURL, cfg.API.Token)
}

func formatAge(t time.Time) string {
	age := time.Since(t)
	switch {
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(age.Hours()/24))
	}
}
