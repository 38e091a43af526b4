package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/tariff/internal/common"
	"github.com/Veraticus/tariff/internal/config"
)

var (
	cfgFile string
	version = "dev"
	rootCmd = &cobra.Command{
		Use:   "tariff",
		Short: "🚢 Import classification with a human in the loop",
		Long: `tariff classifies imported products into HTS codes, asks follow-up questions
when the classifier is unsure, and routes low-confidence results into an
exception queue for human review.`,
		PersistentPreRunE: initConfig,
		SilenceUsage:      true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.config/tariff/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().String("user", "", "user id (overrides user.id)")
	rootCmd.PersistentFlags().String("metrics-listen", "", "serve Prometheus metrics on this address while the command runs")

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("user.id", rootCmd.PersistentFlags().Lookup("user"))
	_ = viper.BindPFlag("metrics.listen", rootCmd.PersistentFlags().Lookup("metrics-listen"))

	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(exceptionsCmd())
	rootCmd.AddCommand(reviewCmd())
	rootCmd.AddCommand(laterCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(settingsCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(checkpointCmd())
	rootCmd.AddCommand(versionCmd())
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Received interrupt signal, shutting down gracefully...")
		cancel()
	}()

	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, describeError(err))
		os.Exit(exitCode(err))
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		viper.AddConfigPath(fmt.Sprintf("%s/.config/tariff", home))
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	config.SetDefaults(viper.GetViper())
	viper.SetEnvPrefix("TARIFF")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	return setupLogging()
}

func setupLogging() error {
	level, err := common.ParseLevel(viper.GetString("logging.level"))
	if err != nil {
		return err
	}
	return common.SetupLogger(level, viper.GetString("logging.format"))
}

// describeError turns error kinds into the messages users see.
func describeError(err error) string {
	switch common.KindOf(err) {
	case common.KindUnauthenticated:
		return "Not signed in: set user.id in the config file, TARIFF_USER_ID, or pass --user."
	case common.KindClassifierUnavailable:
		return "The classifier is unavailable right now. Your progress is saved; try again with `tariff runs resume`."
	case common.KindForbidden:
		return "That record belongs to another user."
	case common.KindNotFound:
		return "Not found: " + err.Error()
	}
	return err.Error()
}

func exitCode(err error) int {
	switch common.KindOf(err) {
	case common.KindUnauthenticated, common.KindForbidden:
		return 3
	case common.KindClassifierUnavailable:
		return 4
	default:
		return 1
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tariff %s\n", version)
		},
	}
}
