package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/roster/internal/config"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Pairs  []string          `json:"pairs,omitempty"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError is one rejected part of a pipeline definition.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [pipeline]",
		Short: "Validate a pipeline definition",
		Long: `Compile a CUE pipeline definition and report every error with its position.

The pipeline defaults to --pipeline. Nothing is read from sources or
directories.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.Pipeline
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(rootOpts, path, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	if err := checkFormat(opts); err != nil {
		return err
	}
	formatter := opts.formatter(cmd)

	p, errs := loadPipeline(path)
	if len(errs) > 0 && p == nil && isNotFound(errs[0]) {
		return outputValidateError(formatter, ErrCodeNotFound, errs[0].Error(), nil)
	}
	if len(errs) > 0 {
		return outputValidationErrors(formatter, toValidationErrors(errs))
	}

	formatter.VerboseLog("Compiled %d pair(s) from %s", len(p.Pairs), path)
	for _, pr := range p.Pairs {
		formatter.VerboseLog("  %s: %s -> %s (%s)", pr.Name, pr.Source.Path, pr.Directory.Name, pr.Directory.Kind)
	}
	return outputValidateSuccess(formatter, p.Names())
}

func toValidationErrors(errs []error) []ValidationError {
	out := make([]ValidationError, 0, len(errs))
	for _, err := range errs {
		var ce *config.CompileError
		if !errors.As(err, &ce) {
			out = append(out, ValidationError{Field: "pipeline", Message: err.Error()})
			continue
		}
		ve := ValidationError{Field: ce.Field, Message: ce.Message}
		if ce.Pos.IsValid() {
			ve.File = ce.Pos.Filename()
			ve.Line = ce.Pos.Line()
			ve.Column = ce.Pos.Column()
		}
		out = append(out, ve)
	}
	return out
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, pairs []string) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Pairs: pairs})
	}

	fmt.Fprintf(formatter.Writer, "✓ Pipeline valid: %d pair(s)\n", len(pairs))
	return nil
}

// outputValidateError outputs a single command-level error.
func outputValidateError(formatter *OutputFormatter, code, message string, details interface{}) error {
	_ = formatter.Error(code, message, details)
	// Missing files are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    ErrCodeInvalidPipeline,
				Message: errs[0].Message,
			},
		}
		if err := formatter.encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n", err.File, err.Line, err.Column)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Field, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
