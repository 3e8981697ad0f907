package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ownerdash/internal/config"
	"ownerdash/internal/logging"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "ownerdash",
		Short: "Live order dashboard for restaurant owners",
		Long: `ownerdash keeps the owner's order screens in sync with the order backend:
each view loads a snapshot, applies live order updates from the feed and
serves the result as a JSON API.`,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}
)

func init() {
	config.SetDefaults(viper.GetViper())

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./ownerdash.yaml or $HOME/.config/ownerdash/ownerdash.yaml)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "log format (console, json)")
	flags.String("backend", "", "order backend base URL")
	flags.String("feed", "", "feed driver (kafka, confluent, none)")

	_ = viper.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", flags.Lookup("log-format"))
	_ = viper.BindPFlag("backend.url", flags.Lookup("backend"))
	_ = viper.BindPFlag("feed.driver", flags.Lookup("feed"))

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(watchCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("ownerdash")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home + "/.config/ownerdash")
		}
	}
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("read config: %w", err)
		}
	}
	if err := logging.Setup(viper.GetString("logging.level"), viper.GetString("logging.format"), os.Stderr); err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	if f := viper.ConfigFileUsed(); f != "" {
		log.Debug().Str("file", f).Msg("config loaded")
	}
	return nil
}
