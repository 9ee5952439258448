package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/tagfill/internal/notify"
	"github.com/conneroisu/tagfill/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch template files and keep the registry current",
	Long: `Watch the scan paths and rescan templates as files change. When
notify.amqp_url is configured every added, updated or removed template is
published to the notify exchange.

Examples:
  tagfill watch                   # Watch all configured paths
  tagfill watch --verbose         # Print every changed file`,
	RunE: runWatch,
}

var watchVerbose bool

// watchDebounce groups the burst of events an editor produces on save.
const watchDebounce = 300 * time.Millisecond

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().BoolVarP(&watchVerbose, "verbose", "v", false, "Verbose output")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cmd, appOptions{withStore: true})
	if err != nil {
		return err
	}
	defer a.Close()

	publisher, err := startNotifier(ctx, a)
	if err != nil {
		return err
	}
	if publisher != nil {
		defer publisher.Close()
	}

	fileWatcher, err := newWatcher(a)
	if err != nil {
		return err
	}
	defer fileWatcher.Stop()

	out := cmd.OutOrStdout()
	fileWatcher.AddHandler(func(_ context.Context, changes []watcher.Change) error {
		if watchVerbose {
			for _, change := range changes {
				fmt.Fprintf(out, "%s: %s\n", change.Kind, change.Path)
			}
		}
		fmt.Fprintf(out, "%d file(s) changed, %d templates registered\n", len(changes), a.registry.Count())
		return nil
	})

	fmt.Fprintf(out, "Watching %d templates in %v. Press Ctrl+C to stop.\n", a.registry.Count(), a.cfg.Templates.ScanPaths)
	if err := fileWatcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}

	<-ctx.Done()
	fmt.Fprintln(out, "Stopping watcher...")
	return nil
}

// newWatcher returns a watcher over the scan paths that rescans changed
// template files into the app's registry. Paths that do not exist are
// skipped with a warning.
func newWatcher(a *app) (*watcher.FileWatcher, error) {
	fileWatcher, err := watcher.NewFileWatcher(watchDebounce, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	fileWatcher.AddFilter(watcher.NoGitFilter)
	fileWatcher.AddFilter(watcher.ScannerFilter(a.scanner))
	fileWatcher.AddHandler(watcher.RescanHandler(a.scanner, a.logger))

	for _, path := range a.cfg.Templates.ScanPaths {
		if err := fileWatcher.AddRecursive(path); err != nil {
			a.logger.Warn(context.Background(), err, "Failed to watch path", "path", path)
		}
	}
	return fileWatcher, nil
}

// startNotifier connects to the broker when one is configured and forwards
// registry events until ctx is done. It returns nil when notifications are
// disabled.
func startNotifier(ctx context.Context, a *app) (*notify.Publisher, error) {
	if !a.cfg.NotifyEnabled() {
		return nil, nil
	}
	publisher, err := notify.Dial(a.cfg.Notify.AmqpURL, a.cfg.Notify.Exchange, a.logger)
	if err != nil {
		return nil, err
	}
	go publisher.Forward(ctx, a.registry)
	return publisher, nil
}
