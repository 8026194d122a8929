package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KevinMoonLab/nexarag/internal/api"
	"github.com/KevinMoonLab/nexarag/internal/config"
	"github.com/KevinMoonLab/nexarag/internal/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool
	apiURL     string
	wsURL      string

	cfg    *config.Config
	logger *zap.Logger
)

var version = "0.3.0"

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "nexarag",
	Short: "Nexarag - literature review knowledge graphs from your terminal",
	Long: `Nexarag builds and explores citation knowledge graphs backed by a
Neo4j-based research backend. It couples a live graph view with an
LLM chat that answers questions grounded in the papers you add.

Run without arguments to start the interactive interface.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = loadConfig()
		if err != nil {
			return err
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		logger, err = logging.New(level, cfg.Logging.File)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractive()
	},
}

// versionCmd prints the build version
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the nexarag version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("nexarag", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ~/.nexarag/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Backend API base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&wsURL, "ws-url", "", "Backend websocket URL (overrides config)")

	rootCmd.AddCommand(kgCmd)
	rootCmd.AddCommand(papersCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// resolvedConfigPath is the config file in effect, flag or default.
func resolvedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultPath()
}

func loadConfig() (*config.Config, error) {
	c, err := config.Load(resolvedConfigPath())
	if err != nil {
		return nil, err
	}
	if apiURL != "" {
		c.Backend.APIBaseURL = apiURL
	}
	if wsURL != "" {
		c.Backend.WebSocketURL = wsURL
	}
	return c, nil
}

// apiClient builds the backend client from the resolved config.
func apiClient() *api.Client {
	return api.NewClient(cfg.Backend.APIBaseURL, cfg.GetRequestTimeout(), logger)
}
