package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/conneroisu/tagfill/internal/engine"
	"github.com/conneroisu/tagfill/internal/errors"
	"github.com/conneroisu/tagfill/internal/logging"
	"github.com/conneroisu/tagfill/internal/markup"
	"github.com/conneroisu/tagfill/internal/metrics"
	"github.com/conneroisu/tagfill/internal/validation"
)

var renderCmd = &cobra.Command{
	Use:   "render <template-id>",
	Short: "Render one template and print the resulting HTML",
	Long: `Render a template against JSON or YAML data and write the HTML.

Data comes from --json, then --data, then data.file in the configuration.
Without any of them the template renders against an empty context.

Examples:
  tagfill render page                         # Render with data.file
  tagfill render page --data page.yml         # Render with a data file
  tagfill render card --json '{"title":"Hi"}' # Render with inline JSON
  tagfill render page -d page.json --output page.html`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

var (
	renderFlags  *StandardFlags
	renderOutput string
)

func init() {
	rootCmd.AddCommand(renderCmd)

	renderFlags = AddStandardFlags(renderCmd, "data")
	renderCmd.Flags().StringVar(&renderOutput, "output", "", "write the HTML to this file instead of stdout")
}

func runRender(cmd *cobra.Command, args []string) error {
	id := args[0]
	if err := validation.ValidateTemplateID(id); err != nil {
		return err
	}
	if err := renderFlags.ValidateFlags(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	a, err := newApp(cmd, appOptions{withStore: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if _, ok := a.registry.Get(id); !ok {
		return errors.ErrTemplateNotFound(id)
	}

	data, err := renderFlags.LoadData(a.cfg.Data.File)
	if err != nil {
		return fmt.Errorf("failed to load data: %w", err)
	}

	out := cmd.OutOrStdout()
	if renderOutput != "" {
		if err := validation.ValidatePath(renderOutput); err != nil {
			return err
		}
		f, err := os.Create(renderOutput)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	ctx := commandContext(cmd)
	op := logging.StartOperation(a.logger, "render")
	if err := renderTo(out, engine.New(a.registry, a.cfg.EngineOptions()...), metrics.Default(), id, data); err != nil {
		op.EndWithError(ctx, err)
		return err
	}
	op.End(ctx, "template", id)
	return nil
}

// renderTo renders id into w. Nothing is written when rendering fails.
func renderTo(w io.Writer, eng *engine.Engine, m *metrics.Metrics, id string, data any) error {
	buf := bufio.NewWriter(w)
	err := m.ObserveRender(func() error {
		out, err := eng.RenderTemplate(id, data)
		if err != nil {
			return err
		}
		return markup.Render(buf, out)
	})
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(buf); err != nil {
		return err
	}
	return buf.Flush()
}
