// Command pricehist keeps daily, weekly and monthly price history of a
// product catalog up to date.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"PriceHistory/internal/collector"
	"PriceHistory/internal/common"
	"PriceHistory/internal/config"
	"PriceHistory/internal/notifier"
	"PriceHistory/internal/recorder"
)

var (
	cfg    *config.Config
	logger *common.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "pricehist",
	Short:         "Price history keeper",
	Long:          "pricehist refreshes OHLCV bars of every catalogued product from a tabular-export provider.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		if path == "" {
			path = config.PathFromEnv()
		}
		var err error
		if cfg, err = config.Load(path); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			cfg.LogLevel = lvl
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("config validation: %w", err)
		}
		logger = common.NewLogger(cfg.LogLevel)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: $CONFIG_PATH or ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(exchangeCmd)
	rootCmd.AddCommand(productCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pricehist %s\n", common.Version)
		fmt.Printf("  commit:  %s\n", common.Commit)
		fmt.Printf("  built:   %s\n", common.Date)
	},
}

func openStore(ctx context.Context) (recorder.Store, error) {
	store, err := recorder.Open(ctx, recorder.Options{
		Driver:      cfg.Database.Driver,
		SQLitePath:  cfg.Database.SQLitePath,
		PostgresDSN: cfg.Database.PostgresDSN,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Database.Driver, err)
	}
	return store, nil
}

func newFetcher() collector.Fetcher {
	return collector.NewYahooFetcher(cfg.Proxy,
		collector.WithBaseURL(cfg.Provider.BaseURL),
		collector.WithTimeout(cfg.Provider.Timeout),
		collector.WithRateLimit(cfg.Provider.RateLimit),
		collector.WithUserAgent(cfg.Provider.UserAgent),
	)
}

// newNotifier returns nil when Telegram is not configured.
func newNotifier() *notifier.TelegramNotifier {
	if !cfg.TelegramEnabled() {
		return nil
	}
	return notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, logger)
}
