package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/conneroisu/tagfill/internal/config"
	"github.com/conneroisu/tagfill/internal/errors"
	"github.com/conneroisu/tagfill/internal/logging"
	"github.com/conneroisu/tagfill/internal/store"
	"github.com/conneroisu/tagfill/internal/validation"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage templates kept in the Postgres template store",
	Long: `Manage templates kept in the Postgres template store named by
store.database_url. Stored templates are loaded after the scanned files; a
file template with the same id takes precedence.

Examples:
  tagfill store push card templates/card.html  # Store card from a file
  tagfill store list                           # List stored templates
  tagfill store show card                      # Print the stored markup
  tagfill store delete card                    # Remove card from the store`,
}

var storePushCmd = &cobra.Command{
	Use:   "push <template-id> <file>",
	Short: "Store the markup in file under template-id",
	Args:  cobra.ExactArgs(2),
	RunE:  runStorePush,
}

var storeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored templates",
	Args:  cobra.NoArgs,
	RunE:  runStoreList,
}

var storeShowCmd = &cobra.Command{
	Use:   "show <template-id>",
	Short: "Print the markup stored under template-id",
	Args:  cobra.ExactArgs(1),
	RunE:  runStoreShow,
}

var storeDeleteCmd = &cobra.Command{
	Use:   "delete <template-id>",
	Short: "Remove a template from the store",
	Args:  cobra.ExactArgs(1),
	RunE:  runStoreDelete,
}

func init() {
	rootCmd.AddCommand(storeCmd)
	storeCmd.AddCommand(storePushCmd, storeListCmd, storeShowCmd, storeDeleteCmd)
}

// openStore connects to the configured store without scanning templates.
func openStore(cmd *cobra.Command) (*store.TemplateStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openConfiguredStore(commandContext(cmd), cfg, newLogger(cmd, cfg))
}

// openConfiguredStore connects to the store in cfg and creates its table
// when missing.
func openConfiguredStore(ctx context.Context, cfg *config.Config, logger logging.Logger) (*store.TemplateStore, error) {
	if !cfg.StoreEnabled() {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid,
			"no template store configured, set store.database_url or TAGFILL_STORE_DATABASE_URL")
	}
	s, err := store.Open(ctx, cfg.Store.DatabaseURL, cfg.Store.Table, logger)
	if err != nil {
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func runStorePush(cmd *cobra.Command, args []string) error {
	id, path := args[0], args[1]
	if err := validation.ValidatePath(path); err != nil {
		return err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Save(commandContext(cmd), id, string(content)); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Stored %s (%d bytes)\n", id, len(content))
	return nil
}

func runStoreList(cmd *cobra.Command, args []string) error {
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	templates, err := s.List(commandContext(cmd))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(templates) == 0 {
		fmt.Fprintln(out, "No stored templates.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUPDATED\tBYTES")
	for _, t := range templates {
		fmt.Fprintf(w, "%s\t%s\t%d\n", t.ID, t.UpdatedAt.UTC().Format("2006-01-02 15:04:05"), len(t.Markup))
	}
	return w.Flush()
}

func runStoreShow(cmd *cobra.Command, args []string) error {
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	t, err := s.Get(commandContext(cmd), args[0])
	if stderrors.Is(err, store.ErrNotFound) {
		return errors.ErrTemplateNotFound(args[0])
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), t.Markup)
	return nil
}

func runStoreDelete(cmd *cobra.Command, args []string) error {
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	err = s.Delete(commandContext(cmd), args[0])
	if stderrors.Is(err, store.ErrNotFound) {
		return errors.ErrTemplateNotFound(args[0])
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
	return nil
}
