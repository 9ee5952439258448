package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/tagfill/internal/config"
	"github.com/conneroisu/tagfill/internal/errors"
	"github.com/conneroisu/tagfill/internal/logging"
	"github.com/conneroisu/tagfill/internal/registry"
	"github.com/conneroisu/tagfill/internal/scanner"
	"github.com/conneroisu/tagfill/internal/store"
)

// app holds what most commands need: the configuration, a logger, and a
// registry filled from the scan paths and, when configured, the store.
type app struct {
	cfg       *config.Config
	logger    logging.Logger
	registry  *registry.TemplateRegistry
	scanner   *scanner.TemplateScanner
	store     *store.TemplateStore
	collector *errors.ErrorCollector
}

type appOptions struct {
	// withStore opens the store when one is configured and loads its
	// templates after the scan.
	withStore bool
}

// loadConfig reports a config file that failed to read before falling back
// to the merged viper configuration.
func loadConfig() (*config.Config, error) {
	if configReadErr != nil {
		return nil, errors.Wrap(configReadErr, errors.ErrorTypeConfig, errors.ErrCodeConfigInvalid, "reading config file")
	}
	return config.Load()
}

// commandContext is the context the command was executed with, or
// context.Background when there is none.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newLogger(cmd *cobra.Command, cfg *config.Config) logging.Logger {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v, using info\n", err)
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	})
}

// newApp loads the configuration and scans every configured path. Scan
// failures do not stop the command; they are kept in the collector.
func newApp(cmd *cobra.Command, opts appOptions) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	ctx := commandContext(cmd)

	a := &app{
		cfg:       cfg,
		logger:    newLogger(cmd, cfg),
		registry:  registry.NewTemplateRegistry(),
		collector: errors.NewErrorCollector(),
	}
	a.scanner = scanner.NewTemplateScanner(a.registry, a.logger,
		scanner.WithExtensions(cfg.Templates.Extensions...),
		scanner.WithExcludePatterns(cfg.Templates.ExcludePatterns...),
		scanner.WithCollector(a.collector),
	)

	for _, dir := range cfg.Templates.ScanPaths {
		if err := a.scanner.ScanPaths(ctx, []string{dir}); err != nil {
			if ctx.Err() != nil {
				a.Close()
				return nil, ctx.Err()
			}
			a.logger.Warn(ctx, err, "Scan finished with errors", "path", dir)
		}
	}

	if opts.withStore && cfg.StoreEnabled() {
		a.store, err = openConfiguredStore(ctx, cfg, a.logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		if _, err := a.store.LoadInto(ctx, a.registry); err != nil {
			a.collector.AddError(err)
			a.logger.Warn(ctx, err, "Some stored templates were not loaded")
		}
	}
	return a, nil
}

// Close releases the scanner workers and the store connection.
func (a *app) Close() {
	_ = a.scanner.Close()
	if a.store != nil {
		a.store.Close()
	}
}
