package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"maestro/internal/app"
	"maestro/internal/config"

	log "github.com/sirupsen/logrus" // Use logrus
)

var rootCmd = &cobra.Command{
	Use:   "maestro",
	Short: "Maestro job orchestration server",
	Long:  `Maestro queues, guards, and serves audio generation jobs on a single shared inference device.`,
	Run: func(cmd *cobra.Command, args []string) {
		// If no subcommand is given, print help.
		cmd.Help()
	},
	// PersistentPreRunE runs before any subcommand's RunE
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}

		// Load .env before viper reads the environment. Missing file is
		// fine; a malformed one is not worth failing startup over.
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			log.Debugf("no .env loaded: %v", err)
		}

		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// The stats command only talks to a running server; it does not
		// need the full pipeline.
		if cmd.Name() == "stats" {
			ctx := context.WithValue(cmd.Context(), configKey, cfg)
			cmd.SetContext(ctx)
			return nil
		}

		appInstance, err := app.NewApp(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize app: %w", err)
		}

		ctx := context.WithValue(cmd.Context(), appKey, appInstance)
		ctx = context.WithValue(ctx, configKey, cfg)
		cmd.SetContext(ctx)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Define a custom type for the context key to avoid collisions.
type contextKey string

const (
	appKey    contextKey = "app"
	configKey contextKey = "config"
)

// GetAppFromContext retrieves the app instance stored by PersistentPreRunE.
func GetAppFromContext(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application instance not found in context")
	}
	return appInstance, nil
}

// GetConfigFromContext retrieves the loaded configuration.
func GetConfigFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("configuration not found in context")
	}
	return cfg, nil
}
