package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"twin_service/internal/config"
	"twin_service/internal/core"
	"twin_service/internal/domain/model"
	"twin_service/internal/domain/repository"
	"twin_service/internal/infrastructure/twinclient"
)

var (
	// Global flags
	verbose    bool
	configPath string
	apiURL     string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "twin",
	Short: "Green neighborhood digital twin client",
	Long: `twin drives the locality digital twin service: pick a locality, adjust
policy actions and a time horizon, and get a debounced prediction with an
overall status. "twin serve" exposes the same workflow as an HTTP gateway.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if apiURL != "" {
			cfg.API.BaseURL = apiURL
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		zc := zap.NewProductionConfig()
		level, err := zapcore.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
		}
		if verbose {
			level = zapcore.DebugLevel
		}
		zc.Level = zap.NewAtomicLevelAt(level)
		logger, err = zc.Build()
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
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Twin API base URL (or set TWIN_API_URL env)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(localitiesCmd)
	rootCmd.AddCommand(baselineCmd)
	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newClient builds the HTTP twin client behind the locality/baseline cache.
func newClient() model.TwinClient {
	httpClient := twinclient.NewHTTPTwinClient(cfg.API.BaseURL,
		twinclient.WithTimeout(cfg.GetRequestTimeout()))
	return twinclient.NewCachedClient(httpClient, cfg.GetLocalitiesCacheTTL(), cfg.GetBaselineCacheTTL())
}

// openRepository connects to Postgres when scenario recording is enabled. The
// returned repository is nil otherwise.
func openRepository(ctx context.Context) (*repository.PostgresRepository, error) {
	if !cfg.Storage.RecordScenarios {
		return nil, nil
	}
	repo, err := repository.NewPostgresRepository(ctx, cfg.Storage.PostgresURL)
	if err != nil {
		return nil, err
	}
	if err := repo.EnsureSchema(ctx); err != nil {
		repo.Close()
		return nil, err
	}
	logger.Info("recording scenarios to postgres")
	return repo, nil
}

func newService(repo *repository.PostgresRepository) *core.Service {
	var recorder repository.ScenarioRecorder
	if repo != nil {
		recorder = repository.NewPostgresScenarioRecorder(repo.DB)
	}
	return core.NewService(newClient(), recorder, logger,
		core.WithDebounce(cfg.GetDebounce()),
		core.WithHorizon(cfg.Scenario.DefaultHorizon))
}
