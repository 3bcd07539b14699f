package main

import (
	"fmt"
	"os"

	"mercury-client/internal/api"
	"mercury-client/internal/config"
	"mercury-client/internal/logging"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const Version = "0.3.0"

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "mercury-client",
		Short: "Nostr client core: local cache, deletions, outbox relay selection and feeds",
		Long: fmt.Sprintf(`mercury-client (v%s)

Keeps an in-memory cache of Nostr events, honours deletion requests, picks the
relays to follow authors on and serves bounded, debounced feeds over them.`, Version),
		SilenceUsage: true,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of mercury-client",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mercury-client v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(initEnv)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(genCmd)
	rootCmd.AddCommand(versionCmd)

	api.Version = Version
}

// initEnv loads .env files so they can feed the MERCURY_* overrides
func initEnv() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")
}

// loadConfig loads the configuration and sets up logging
func loadConfig() (*config.Config, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	closer, err := logging.Setup(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	return cfg, func() {
		if err := closer.Close(); err != nil {
			logrus.Warnf("failed to close log file: %v", err)
		}
	}, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
