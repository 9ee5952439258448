package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/tagfill/internal/registry"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"l"},
	Short:   "List all discovered templates",
	Long: `List every template found in the scan paths, plus stored templates when a
store is configured.

Examples:
  tagfill list                    # List all templates in table format
  tagfill list -o json            # Output as JSON
  tagfill list --with-deps        # Include the templates each one inserts
  tagfill list -o yaml --with-deps`,
	RunE: runList,
}

var (
	listFlags    *StandardFlags
	listWithDeps bool
)

func init() {
	rootCmd.AddCommand(listCmd)

	listFlags = AddStandardFlags(listCmd, "output")
	listCmd.Flags().BoolVar(&listWithDeps, "with-deps", false, "Include inserted templates")

	AddFlagValidation(listCmd, "output", func(format string) error {
		return ValidateFormatWithSuggestion(format, []string{"table", "json", "yaml"})
	})
}

// listEntry is the json and yaml form of one template.
type listEntry struct {
	ID           string    `json:"id" yaml:"id"`
	Source       string    `json:"source" yaml:"source"`
	FilePath     string    `json:"file_path,omitempty" yaml:"file_path,omitempty"`
	Hash         string    `json:"hash" yaml:"hash"`
	LastModified time.Time `json:"last_modified" yaml:"last_modified"`
	Inserts      []string  `json:"inserts,omitempty" yaml:"inserts,omitempty"`
}

func runList(cmd *cobra.Command, args []string) error {
	if err := listFlags.ValidateFlags(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	a, err := newApp(cmd, appOptions{withStore: true})
	if err != nil {
		return err
	}
	defer a.Close()

	templates := a.registry.GetAll()
	out := cmd.OutOrStdout()

	if len(templates) == 0 && listFlags.OutputFormat == "table" {
		if !listFlags.Quiet {
			fmt.Fprintln(out, "No templates found.")
		}
		return nil
	}

	entries := make([]listEntry, 0, len(templates))
	for _, info := range templates {
		entry := listEntry{
			ID:           info.ID,
			Source:       string(info.Source),
			FilePath:     info.FilePath,
			Hash:         info.Hash,
			LastModified: info.LastMod,
		}
		if listWithDeps {
			entry.Inserts = info.Inserts
		}
		entries = append(entries, entry)
	}

	switch strings.ToLower(listFlags.OutputFormat) {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(entries)
	case "yaml":
		encoder := yaml.NewEncoder(out)
		defer encoder.Close()
		return encoder.Encode(entries)
	case "table":
		return outputTable(out, templates)
	default:
		return fmt.Errorf("unsupported format: %s", listFlags.OutputFormat)
	}
}

func outputTable(out io.Writer, templates []*registry.TemplateInfo) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	header := "ID\tSOURCE\tLOCATION"
	separator := "--\t------\t--------"
	if listWithDeps {
		header += "\tINSERTS"
		separator += "\t-------"
	}
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, separator)

	for _, info := range templates {
		location := info.FilePath
		if location == "" {
			location = "-"
		}
		row := fmt.Sprintf("%s\t%s\t%s", info.ID, info.Source, location)
		if listWithDeps {
			row += "\t" + strings.Join(info.Inserts, ", ")
		}
		fmt.Fprintln(w, row)
	}

	if !listFlags.Quiet {
		fmt.Fprintf(w, "\nTotal: %d templates\n", len(templates))
	}
	return w.Flush()
}
