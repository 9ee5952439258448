package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/tagfill/internal/metrics"
	"github.com/conneroisu/tagfill/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the preview server with live reload",
	Long: `Start the preview server. Every template is listed at / and rendered at
/render/<id> with the configured data file, which is re-read on each request.
Pages reload when a template file changes.

Examples:
  tagfill serve                    # Serve on localhost:8080
  tagfill serve -p 3000            # Serve on another port
  tagfill serve --host 0.0.0.0     # Listen on every interface`,
	RunE: runServe,
}

var serveNoWatch bool

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "Port to serve on")
	serveCmd.Flags().String("host", "localhost", "Host to bind to")
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "Don't rescan templates when files change")

	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))

	AddFlagValidation(serveCmd, "port", ValidatePort)
}

func runServe(cmd *cobra.Command, args []string) error {
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

	if !serveNoWatch {
		fileWatcher, err := newWatcher(a)
		if err != nil {
			return err
		}
		defer fileWatcher.Stop()
		if err := fileWatcher.Start(ctx); err != nil {
			return fmt.Errorf("failed to start file watcher: %w", err)
		}
	}

	srv, err := server.New(server.Dependencies{
		Config:   a.cfg,
		Registry: a.registry,
		Metrics:  metrics.Default(),
		Logger:   a.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Starting tagfill server at http://%s\n", srv.Addr())
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
