package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nao1215/ghcrawl/internal/checkpoint"
	"github.com/nao1215/ghcrawl/internal/config"
	"github.com/nao1215/ghcrawl/internal/crawler"
	"github.com/nao1215/ghcrawl/internal/github"
	"github.com/nao1215/ghcrawl/internal/log"
	"github.com/nao1215/ghcrawl/internal/pipeline"
	"github.com/nao1215/ghcrawl/internal/report"
	"github.com/nao1215/ghcrawl/internal/task"
	"github.com/spf13/cobra"
)

// addRunFlags registers the flags shared by the commands that talk to the API.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .ghcrawl.yaml in current directory or XDG config directory)")

	// API flags
	cmd.Flags().String("token", "",
		"GitHub API token (default: $"+config.TokenEnv+")")
	cmd.Flags().String("endpoint", config.DefaultEndpoint,
		"GraphQL endpoint URL")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each API request")
	cmd.Flags().String("proxy", "",
		"SOCKS5 proxy address (e.g., 127.0.0.1:1080)")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with every request")

	// Crawl behavior flags
	cmd.Flags().IntP("concurrency", "n", config.DefaultConcurrency,
		"Maximum number of API calls in flight")
	cmd.Flags().Float64("stop-percent", config.DefaultRateLimitStopPercent,
		"Pause the run when less than this percent of the rate limit remains")
	cmd.Flags().Float64("rps", config.DefaultRequestsPerSecond,
		"Maximum requests per second (0 disables pacing)")
	cmd.Flags().Int("checkpoint-every", 1,
		"Save the run state after this many handled tasks")

	// Report flags
	cmd.Flags().StringP("format", "f", report.FormatText,
		"Summary format: text, json or markdown")
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	return getPersistentBool(cmd, "verbose")
}

func getPersistentBool(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}

// getCheckpointDir retrieves the checkpoint base directory.
func getCheckpointDir(cmd *cobra.Command) string {
	dir, err := cmd.Flags().GetString("dir")
	if err != nil {
		dir, err = cmd.Root().PersistentFlags().GetString("dir")
		if err != nil {
			return config.DefaultCheckpointDir()
		}
	}
	return dir
}

// buildConfig creates a Config from the config file and the command flags.
// Flags given on the command line win over the file. With requireCrawl the
// file must carry complete crawl settings; otherwise incomplete settings are
// ignored. The loaded file is returned as well, nil when none was found.
func buildConfig(cmd *cobra.Command, requireCrawl bool) (*config.Config, *config.File, error) {
	cfg := config.NewConfig()
	cfg.CheckpointDir = getCheckpointDir(cmd)
	cfg.Verbose = getVerboseFlag(cmd)

	var err error
	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, nil, err
	}

	// If the user named a config file it must exist. Otherwise the lookup
	// is best effort.
	var file *config.File
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		file, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		file.Apply(cfg)
	case cfg.ConfigFilePath != "":
		return nil, nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	if file != nil {
		crawl, crawlErr := file.CrawlConfig()
		switch {
		case crawlErr == nil:
			cfg.Crawl = crawl
		case requireCrawl || cfg.ConfigFilePath != "":
			return nil, nil, fmt.Errorf("config file %s: %w", configPath, crawlErr)
		}
	}
	if requireCrawl && cfg.Crawl == nil {
		return nil, nil, config.ErrNoCrawlConfig
	}

	if err := applyFlags(cmd, cfg); err != nil {
		return nil, nil, err
	}
	return cfg, file, nil
}

// applyFlags overlays the command line flags onto cfg. Flags that can also
// be set in the config file only apply when given explicitly.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	var err error

	cfg.Token, err = flags.GetString("token")
	if err != nil {
		return err
	}
	if cfg.Token == "" {
		cfg.Token = os.Getenv(config.TokenEnv)
	}

	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return err
	}
	if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
		return err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return err
	}

	if flags.Changed("endpoint") {
		if cfg.Endpoint, err = flags.GetString("endpoint"); err != nil {
			return err
		}
	}
	if flags.Changed("concurrency") {
		if cfg.Concurrency, err = flags.GetInt("concurrency"); err != nil {
			return err
		}
	}
	if flags.Changed("stop-percent") {
		if cfg.RateLimitStopPercent, err = flags.GetFloat64("stop-percent"); err != nil {
			return err
		}
	}
	if flags.Changed("rps") {
		if cfg.RequestsPerSecond, err = flags.GetFloat64("rps"); err != nil {
			return err
		}
	}
	if flags.Lookup("kind") != nil && flags.Changed("kind") {
		if cfg.Kind, err = flags.GetString("kind"); err != nil {
			return err
		}
	}
	return nil
}

// setupLogger creates the secure logger selected by the global flags.
func setupLogger(cmd *cobra.Command) *slog.Logger {
	verbose := getVerboseFlag(cmd)
	if getPersistentBool(cmd, "log-json") {
		return log.NewSecureJSONLogger(cmd.ErrOrStderr(), verbose)
	}
	return log.NewSecureLogger(cmd.ErrOrStderr(), verbose)
}

// signalContext returns a context cancelled with crawler.ErrInterrupted on
// SIGINT or SIGTERM. The returned stop function releases the signal handler.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("received shutdown signal, waiting for in-flight tasks...")
			cancel(crawler.ErrInterrupted)
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel(nil)
	}
}

// newClient creates the GraphQL client described by cfg.
func newClient(cfg *config.Config) (*github.Client, error) {
	client, err := github.NewClient(cfg.Endpoint, cfg.Token,
		github.WithUserAgent(cfg.UserAgent),
		github.WithTimeout(cfg.Timeout),
		github.WithRequestsPerSecond(cfg.RequestsPerSecond),
		github.WithProxy(cfg.ProxyAddress),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create GraphQL client: %w", err)
	}
	return client, nil
}

// executeRun runs prepare followed by the crawl step and prints the summary
// of the run. The summary is printed even when the crawl stopped on an
// error, so the operator sees what is left to resume.
func executeRun(cmd *cobra.Command, cfg *config.Config, store *checkpoint.Store, logger *slog.Logger, prepare ...pipeline.Step) error {
	checkpointEvery, err := cmd.Flags().GetInt("checkpoint-every")
	if err != nil {
		return err
	}
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	writer, err := report.NewWriter(format, cmd.OutOrStdout(), cfg.Verbose)
	if err != nil {
		return err
	}

	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	driver := crawler.NewDriver(store,
		crawler.WithConcurrency(cfg.Concurrency),
		crawler.WithCheckpointEvery(checkpointEvery),
		crawler.WithLogger(logger),
	)

	p := pipeline.New(prepare, pipeline.WithLogger(logger))
	p.AddStep(pipeline.NewCrawlStep(store, driver, time.Now))
	logger.Debug("pipeline ready", "steps", p.StepNames())

	ctx, stop := signalContext(cmd.Context(), logger)
	defer stop()

	s := pipeline.NewSession(task.NewContext(client, cfg.RateLimitStopPercent, logger))
	runErr := p.Execute(ctx, s)

	if s.Stats != nil && s.Stats.Paused {
		logger.Warn("run paused on the rate limit stop margin", "run", s.RunID)
	}

	// Nothing to report when the run could not be created or loaded.
	if s.State == nil {
		return runErr
	}
	summary, err := pipeline.Summarize(store, s.RunID, s.State)
	if err != nil {
		return errors.Join(runErr, err)
	}
	if _, err := writer.Write(summary); err != nil {
		return errors.Join(runErr, fmt.Errorf("failed to write summary: %w", err))
	}
	return runErr
}
