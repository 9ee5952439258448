package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/tagfill/internal/config"
	"github.com/conneroisu/tagfill/internal/engine"
	"github.com/conneroisu/tagfill/internal/errors"
	"github.com/conneroisu/tagfill/internal/registry"
)

var (
	validateFlags  *StandardFlags
	validateFormat string
)

// validateCmd represents the validate command.
var validateCmd = &cobra.Command{
	Use:   "validate [template...]",
	Short: "Check templates for directive, reference and insert problems",
	Long: `Validate templates without rendering them:

- repeat elements without a well-formed for="item of items"
- if elements whose cond is missing or outside the condition grammar
- else elements that do not directly follow an if
- inserts of templates that do not exist
- insert cycles between templates

With --data or --json every template is also rendered against that data and
render failures are reported grouped by kind.

Examples:
  tagfill validate                    # Check all templates
  tagfill validate page card          # Check specific templates
  tagfill validate --data data.yml    # Also render every template
  tagfill validate --format json      # Output results as JSON`,
	RunE: runValidateCommand,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateFlags = AddStandardFlags(validateCmd, "data")
	validateCmd.Flags().
		StringVarP(&validateFormat, "format", "f", "text", "Output format (text, json)")

	AddFlagValidation(validateCmd, "format", func(format string) error {
		return ValidateFormatWithSuggestion(format, []string{"text", "json"})
	})
}

type ValidationResult struct {
	Template string   `json:"template"`
	File     string   `json:"file,omitempty"`
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
}

type ValidationSummary struct {
	Total          int                `json:"total"`
	Valid          int                `json:"valid"`
	Invalid        int                `json:"invalid"`
	Rendered       bool               `json:"rendered"`
	CircularCycles [][]string         `json:"circular_cycles,omitempty"`
	ByKind         map[string]int     `json:"by_kind"`
	ConfigWarnings []string           `json:"config_warnings,omitempty"`
	Results        []ValidationResult `json:"results"`
	// Other holds problems not tied to a checked template, such as files
	// that failed to scan.
	Other []string `json:"other,omitempty"`
}

func runValidateCommand(cmd *cobra.Command, args []string) error {
	if err := validateFlags.ValidateFlags(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	a, err := newApp(cmd, appOptions{withStore: true})
	if err != nil {
		return err
	}
	defer a.Close()

	toCheck, err := selectTemplates(a.registry, args)
	if err != nil {
		return err
	}

	render := validateFlags.DataFile != "" || validateFlags.DataInline != ""
	summary := ValidationSummary{Rendered: render}

	for _, w := range config.ValidateConfigWithDetails(a.cfg).Warnings {
		summary.ConfigWarnings = append(summary.ConfigWarnings, w.Error())
	}

	checkTemplates(a, toCheck, &summary)

	if render {
		ctx, err := validateFlags.LoadData("")
		if err != nil {
			return fmt.Errorf("failed to load data: %w", err)
		}
		eng := engine.New(a.registry, a.cfg.EngineOptions()...)
		for _, info := range toCheck {
			// Lint problems already explain why these would fail.
			if len(a.collector.GetProblemsByTemplate(info.ID)) > 0 {
				continue
			}
			if _, err := eng.RenderTemplate(info.ID, ctx); err != nil {
				a.collector.Add(errors.ProblemFromError(info.ID, info.FilePath, err))
			}
		}
	}

	summarize(a.collector, toCheck, &summary)

	out := cmd.OutOrStdout()
	switch validateFormat {
	case "json":
		if err := outputValidationJSON(out, summary); err != nil {
			return err
		}
	case "text":
		outputValidationText(out, a.collector, summary)
	default:
		return fmt.Errorf("unsupported format: %s", validateFormat)
	}

	if summary.Invalid > 0 || len(summary.Other) > 0 {
		return fmt.Errorf("validation failed: %d invalid templates", summary.Invalid)
	}
	return nil
}

// selectTemplates returns the named templates, or every template when ids is
// empty.
func selectTemplates(reg *registry.TemplateRegistry, ids []string) ([]*registry.TemplateInfo, error) {
	if len(ids) == 0 {
		return reg.GetAll(), nil
	}
	var out []*registry.TemplateInfo
	for _, id := range ids {
		info, ok := reg.Get(id)
		if !ok {
			return nil, errors.ErrTemplateNotFound(id)
		}
		out = append(out, info)
	}
	return out, nil
}

// checkTemplates lints each template and reports insert cycles through any
// of them.
func checkTemplates(a *app, templates []*registry.TemplateInfo, summary *ValidationSummary) {
	checked := make(map[string]bool, len(templates))
	for _, info := range templates {
		checked[info.ID] = true
		for _, problem := range engine.Lint(info.Root, a.registry) {
			a.collector.Add(errors.ProblemFromError(info.ID, info.FilePath, withTemplate(problem, info.ID)))
		}
	}

	for _, cycle := range registry.NewDependencyAnalyzer(a.registry).DetectCircularDependencies() {
		summary.CircularCycles = append(summary.CircularCycles, cycle)
		chain := strings.Join(cycle, " -> ")
		for _, id := range slices.Compact(slices.Sorted(slices.Values(cycle))) {
			if !checked[id] {
				continue
			}
			info, _ := a.registry.Get(id)
			err := errors.NewStructuralError(errors.ErrCodeInsertCycle, "insert cycle: "+chain).
				WithDirective(engine.TagInsert).
				WithTemplate(id)
			a.collector.Add(errors.ProblemFromError(id, info.FilePath, err))
		}
	}
}

func withTemplate(err error, id string) error {
	if fe, ok := err.(*errors.FillError); ok && fe.Template == "" {
		return fe.WithTemplate(id)
	}
	return err
}

func summarize(collector *errors.ErrorCollector, templates []*registry.TemplateInfo, summary *ValidationSummary) {
	summary.Total = len(templates)
	summary.ByKind = collector.CountByType()

	known := make(map[string]bool, len(templates))
	for _, info := range templates {
		known[info.ID] = true
		result := ValidationResult{Template: info.ID, File: info.FilePath, Valid: true, Errors: []string{}}
		for _, p := range collector.GetProblemsByTemplate(info.ID) {
			result.Valid = false
			result.Errors = append(result.Errors, p.Message)
		}
		if result.Valid {
			summary.Valid++
		} else {
			summary.Invalid++
		}
		summary.Results = append(summary.Results, result)
	}

	for _, err := range collector.GetAllErrors() {
		if p, ok := err.(*errors.TemplateProblem); ok && known[p.Template] {
			continue
		}
		summary.Other = append(summary.Other, err.Error())
	}
}

func outputValidationText(out io.Writer, collector *errors.ErrorCollector, summary ValidationSummary) {
	fmt.Fprintf(out, "Validation Summary:\n")
	fmt.Fprintf(out, "  Total templates: %d\n", summary.Total)
	fmt.Fprintf(out, "  Valid: %d\n", summary.Valid)
	fmt.Fprintf(out, "  Invalid: %d\n", summary.Invalid)
	if summary.Rendered {
		fmt.Fprintf(out, "  Rendered with data: yes\n")
	}
	if len(summary.CircularCycles) > 0 {
		fmt.Fprintf(out, "  Insert cycles: %d\n", len(summary.CircularCycles))
	}
	fmt.Fprintln(out)

	for _, w := range summary.ConfigWarnings {
		fmt.Fprintf(out, "Config warning: %s\n", w)
	}
	if len(summary.ConfigWarnings) > 0 {
		fmt.Fprintln(out)
	}

	// Problems grouped by kind, kinds in a stable order.
	title := cases.Title(language.English)
	byKind := make(map[string][]errors.TemplateProblem)
	for _, p := range collector.GetProblems() {
		kind := string(errors.TypeOf(p.Err))
		if kind == "" {
			kind = "other"
		}
		byKind[kind] = append(byKind[kind], p)
	}
	kinds := make([]string, 0, len(byKind))
	for kind := range byKind {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)

	for _, kind := range kinds {
		fmt.Fprintf(out, "%s errors (%d):\n", title.String(kind), len(byKind[kind]))
		for _, p := range byKind[kind] {
			location := p.Template
			if location == "" {
				location = p.File
			}
			fmt.Fprintf(out, "  %s: %s\n", location, p.Message)
		}
		fmt.Fprintln(out)
	}

	// Errors not tied to a file or template, such as a store that failed
	// to load.
	for _, err := range collector.GetAllErrors() {
		if _, ok := err.(*errors.TemplateProblem); !ok {
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	}

	if summary.Invalid == 0 && len(summary.Other) == 0 {
		fmt.Fprintln(out, "All templates are valid.")
	}
}

func outputValidationJSON(out io.Writer, summary ValidationSummary) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(summary)
}
