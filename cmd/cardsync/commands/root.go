package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codyseavey/tcg-tracker/cardsync/internal/app"
	"github.com/codyseavey/tcg-tracker/cardsync/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "cardsync",
	Short:         "cardsync ingests Pokemon card data and reconciles set names across sources.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CARDSYNC_CONFIG"), "Path to a TOML config file.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	return config.Load(configPath)
}

// openApp loads the config, lets adjust tweak it, then wires the services.
func openApp(ctx context.Context, adjust func(*config.Config)) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if adjust != nil {
		adjust(&cfg)
	}
	return app.New(ctx, cfg)
}
