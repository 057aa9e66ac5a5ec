// Package cli implements crewctl, the operator command line for a crew-bus
// store. Commands open the SQLite database directly through the crew engine.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/helmcode/crew-bus/internal/config"
	"github.com/helmcode/crew-bus/internal/crew"
	"github.com/helmcode/crew-bus/internal/logger"
	"github.com/helmcode/crew-bus/internal/models"
)

// version can be overridden at build time via:
// go build -ldflags "-X github.com/helmcode/crew-bus/internal/cli.version=1.2.3"
var version = "0.1.0"

var (
	configPath string
	dbPath     string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:           "crewctl",
	Short:         "Operate a crew-bus message store",
	Long:          color.CyanString("crewctl") + " inspects and drives the crew-bus routing engine.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the crewctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

// Execute runs the root command and prints any error in red.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		color.New(color.FgRed).Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CREWBUS_CONFIG"), "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output machine-readable JSON")

	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the config file and applies the --db override.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	return cfg, nil
}

// withService opens the store, runs fn against a fresh engine and closes the
// database afterwards.
func withService(cmd *cobra.Command, fn func(ctx context.Context, svc *crew.Service) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, closeLog, err := logger.New(config.LogConfig{Level: "warn", Format: "text", Output: "stderr"})
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(log)

	db, err := models.InitDB(cfg.Database.Path)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	svc := crew.New(db,
		crew.WithLogger(log),
		crew.WithSessionDefaults(cfg.Sessions.DefaultChannel, cfg.Sessions.DefaultTimeoutMinutes),
		crew.WithMailboxLimit(cfg.Mailbox.RateLimit, cfg.Mailbox.Window),
	)
	return fn(cmd.Context(), svc)
}

// resolveAgent accepts an agent id or name.
func resolveAgent(ctx context.Context, svc *crew.Service, ref string) (*models.Agent, error) {
	a, err := svc.GetAgent(ctx, ref)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, crew.ErrNotFound) {
		return nil, err
	}
	a, err = svc.GetAgentByName(ctx, ref)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("agent %q not found", ref)
	}
	return a, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var (
	okColor   = color.New(color.FgGreen)
	failColor = color.New(color.FgRed)
	warnColor = color.New(color.FgYellow)
	headColor = color.New(color.Bold)
)

func statusColor(status models.AgentStatus) *color.Color {
	switch status {
	case models.AgentStatusActive:
		return okColor
	case models.AgentStatusQuarantined:
		return warnColor
	default:
		return failColor
	}
}
