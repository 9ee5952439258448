package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/conneroisu/tagfill/internal/data"
	"github.com/conneroisu/tagfill/internal/value"
)

// StandardFlags provides consistent flag definitions across commands
type StandardFlags struct {
	// Data flags
	DataFile   string
	DataInline string

	// Output flags
	OutputFormat string
	OutputFile   string
	Quiet        bool
	Verbose      bool
}

// AddStandardFlags adds the named flag groups ("data", "output") to a command.
func AddStandardFlags(cmd *cobra.Command, flagTypes ...string) *StandardFlags {
	flags := &StandardFlags{}

	for _, flagType := range flagTypes {
		switch flagType {
		case "data":
			addDataFlags(cmd, flags)
		case "output":
			addOutputFlags(cmd, flags)
		}
	}

	return flags
}

func addDataFlags(cmd *cobra.Command, flags *StandardFlags) {
	cmd.Flags().StringVarP(&flags.DataFile, "data", "d", "", "data file (.json, .yaml or .yml), defaults to data.file from the config")
	cmd.Flags().StringVar(&flags.DataInline, "json", "", "inline JSON object used as the render data")
}

func addOutputFlags(cmd *cobra.Command, flags *StandardFlags) {
	cmd.Flags().StringVarP(&flags.OutputFormat, "output", "o", "table", "Output format (table|json|yaml)")
	cmd.Flags().BoolVarP(&flags.Verbose, "verbose", "v", false, "Enable verbose output")
	cmd.Flags().BoolVarP(&flags.Quiet, "quiet", "q", false, "Suppress output")
}

// LoadData returns the render context named by the flags. --json wins over
// --data, which wins over fallback. With none of them the context is empty.
func (f *StandardFlags) LoadData(fallback string) (value.Context, error) {
	if f.DataInline != "" {
		return data.Parse([]byte(f.DataInline), data.FormatJSON)
	}
	path := f.DataFile
	if path == "" {
		path = fallback
	}
	if path == "" {
		return value.Context{}, nil
	}
	return data.LoadFile(path)
}

// ValidateFlags validates flag combinations and values
func (f *StandardFlags) ValidateFlags() error {
	if f.DataInline != "" && f.DataFile != "" {
		return fmt.Errorf("cannot specify both --data and --json")
	}
	if f.Quiet && f.Verbose {
		return fmt.Errorf("cannot specify both --quiet and --verbose")
	}
	return nil
}

// AddFlagValidation adds validation for a specific flag
func AddFlagValidation(cmd *cobra.Command, flagName string, validator func(string) error) {
	flag := cmd.Flags().Lookup(flagName)
	if flag == nil {
		return
	}

	flag.Value = &validatingValue{
		Value:     flag.Value,
		validator: validator,
	}
}

type validatingValue struct {
	pflag.Value
	validator func(string) error
}

func (v *validatingValue) Set(val string) error {
	if v.validator != nil {
		if err := v.validator(val); err != nil {
			return err
		}
	}
	return v.Value.Set(val)
}

// ValidatePort rejects values outside 1-65535.
func ValidatePort(portStr string) error {
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port number: %s", portStr)
	}

	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}

	return nil
}

// ValidateFormatWithSuggestion rejects formats outside valid and suggests the
// closest one when the input looks like a typo.
func ValidateFormatWithSuggestion(format string, valid []string) error {
	lower := strings.ToLower(format)
	for _, v := range valid {
		if lower == v {
			return nil
		}
	}

	best, bestDistance := "", 3
	for _, v := range valid {
		if d := levenshtein(lower, v); d < bestDistance {
			best, bestDistance = v, d
		}
	}
	if best != "" {
		return fmt.Errorf("invalid format %q, did you mean %q? (valid: %s)", format, best, strings.Join(valid, ", "))
	}
	return fmt.Errorf("invalid format %q (valid: %s)", format, strings.Join(valid, ", "))
}

func levenshtein(a, b string) int {
	prev := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur := make([]int, len(b)+1)
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev = cur
	}
	return prev[len(b)]
}
