package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aweris/s3cache"
	"github.com/aweris/s3cache/internal/config"
	"github.com/aweris/s3cache/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:           "s3cache",
	Short:         "Content-addressed artifact cache on object storage",
	Long:          "CLI for storing and loading cache entries in an S3 bucket or a local object store.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: ~/.config/s3cache/config.yaml)")
	flags.String("bucket", "", "bucket name")
	flags.String("prefix", "", "object path prefix")
	flags.String("endpoint", "", "S3 endpoint host[:port], or file:///path for a local store")
	flags.String("region", "", "S3 region")
	flags.String("strategy", "", "store strategy: streaming or buffered")
	flags.String("chunk-size", "", "multipart chunk size, e.g. 8MiB")
	flags.String("log-level", "", "log level")

	viper.BindPFlag("bucket", flags.Lookup("bucket"))
	viper.BindPFlag("prefix", flags.Lookup("prefix"))
	viper.BindPFlag("endpoint", flags.Lookup("endpoint"))
	viper.BindPFlag("region", flags.Lookup("region"))
	viper.BindPFlag("strategy", flags.Lookup("strategy"))
	viper.BindPFlag("chunk_size", flags.Lookup("chunk-size"))
	viper.BindPFlag("log.level", flags.Lookup("log-level"))
}

func initConfig() {
	_ = godotenv.Load()

	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	config.BindEnv(viper.GetViper())
	config.SetDefaults(viper.GetViper())
	viper.SetDefault("spill_dir", defaultSpillDir())

	viper.ReadInConfig()
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "s3cache")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "s3cache")
	}
	return ".s3cache"
}

func defaultSpillDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "s3cache", "spill")
	}
	return ""
}

// app is what every command needs once the configuration is loaded.
type app struct {
	cfg   *config.Config
	log   *logrus.Logger
	cache *s3cache.Cache
}

func openApp() (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	client, err := newClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	strategy, err := s3cache.ParseStrategy(cfg.Strategy)
	if err != nil {
		return nil, err
	}
	if cfg.SpillDir != "" {
		if err := os.MkdirAll(cfg.SpillDir, 0o755); err != nil {
			return nil, fmt.Errorf("create spill dir: %w", err)
		}
	}

	cache, err := s3cache.New(client, cfg.Bucket,
		s3cache.WithPrefix(cfg.Prefix),
		s3cache.WithReducedRedundancy(cfg.ReducedRedundancy),
		s3cache.WithChunkSize(int(cfg.ChunkSize)),
		s3cache.WithStrategy(strategy),
		s3cache.WithSpillDir(cfg.SpillDir),
		s3cache.WithMaxEntrySize(int64(cfg.MaxEntrySize)),
		s3cache.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: logger, cache: cache}, nil
}

func newClient(cfg *config.Config, logger *logrus.Logger) (s3cache.Client, error) {
	var client s3cache.Client

	switch cfg.Backend() {
	case config.BackendLocal:
		root, err := cfg.LocalRoot()
		if err != nil {
			return nil, err
		}
		local, err := s3cache.NewLocal(root, s3cache.LocalOptions{
			Compression:      cfg.Compression,
			CompressionLevel: cfg.CompressionLevel,
		})
		if err != nil {
			return nil, err
		}
		client = local
	default:
		if cfg.Strategy == s3cache.StrategyStreaming && cfg.ChunkSize < config.S3MinPartSize {
			logger.WithField("chunk_size", cfg.ChunkSize.String()).
				Warn("chunk size is below the S3 minimum part size; entries larger than one chunk will fail to complete")
		}
		s3, err := s3cache.NewS3(s3cache.S3Config{
			Endpoint:        cfg.Endpoint,
			Region:          cfg.Region,
			UseSSL:          cfg.UseSSL,
			CredentialsMode: cfg.CredentialsMode,
			AccessKeyID:     cfg.AccessKeyID,
			SecretKey:       cfg.SecretKey,
			SessionToken:    cfg.SessionToken,
			Headers:         cfg.Headers,
		})
		if err != nil {
			return nil, err
		}
		client = s3
	}

	if cfg.Retries > 0 {
		client = s3cache.NewRetrying(client, cfg.Retries+1)
	}
	return client, nil
}

// commandContext returns the command context bounded by the configured timeout.
func (a *app) commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if a.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, a.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

func (a *app) Close() error {
	return a.cache.Close()
}
