package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/workset/internal/entity"
	"github.com/roach88/workset/internal/errs"
)

// ValidationError is one problem found in a mapping file.
type ValidationError struct {
	File    string `json:"file"`
	Entity  string `json:"entity,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Files    int               `json:"files"`
	Entities []string          `json:"entities,omitempty"`
	Errors   []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [mapping-path]",
		Short: "Validate entity mappings without touching a database",
		Long: `Validate YAML and CUE entity mapping files.

Every file is checked, not just the first broken one: syntax, identifier
strategy, duplicate columns and duplicate entity names across files.
Defaults to the --mapping path when no argument is given.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.Mapping
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(rootOpts, path, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(cmd, opts)

	if path == "" {
		return formatter.Fail("validate", errs.Configuration("no mapping path given"))
	}
	files, err := mappingFiles(path)
	if err != nil {
		return formatter.Fail("validate", err)
	}
	formatter.VerboseLog("Found %d mapping file(s) in %s", len(files), path)

	result := validateFiles(files, formatter)
	if len(result.Errors) > 0 {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

func mappingFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errs.Configuration("stat mapping path %s: %v", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	files, err := entity.FindMappingFiles(path)
	if err != nil {
		return nil, errs.Configuration("scan mapping directory %s: %v", path, err)
	}
	if len(files) == 0 {
		return nil, errs.Configuration("no mapping files found in %s", path)
	}
	return files, nil
}

// validateFiles checks every file and collects all problems.
func validateFiles(files []string, formatter *OutputFormatter) ValidationResult {
	result := ValidationResult{Files: len(files)}
	seen := make(map[string]string)

	for _, file := range files {
		formatter.VerboseLog("Validating %s", file)
		mf, err := entity.ParseMappingFile(file)
		if err != nil {
			result.Errors = append(result.Errors, validationError(file, "", err))
			continue
		}
		if len(mf.Entities) == 0 {
			result.Errors = append(result.Errors, ValidationError{
				File: file, Code: string(errs.CodeConfiguration), Message: "no entities declared",
			})
		}
		for _, m := range mf.Entities {
			if prev, ok := seen[m.Name]; ok {
				result.Errors = append(result.Errors, ValidationError{
					File:    file,
					Entity:  m.Name,
					Code:    string(errs.CodeConfiguration),
					Message: fmt.Sprintf("entity already declared in %s", prev),
				})
				continue
			}
			if _, err := entity.FromMapping(m); err != nil {
				result.Errors = append(result.Errors, validationError(file, m.Name, err))
				continue
			}
			seen[m.Name] = file
			result.Entities = append(result.Entities, m.Name)
		}
	}
	result.Valid = len(result.Errors) == 0
	return result
}

func validationError(file, name string, err error) ValidationError {
	code := string(errs.CodeOf(err))
	if code == "" {
		code = ErrCodeGeneric
	}
	msg := err.Error()
	if e, ok := err.(*errs.Error); ok {
		msg = e.Message
	}
	return ValidationError{File: file, Entity: name, Code: code, Message: msg}
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ All mappings valid (%d entities in %d file(s))\n", len(result.Entities), result.Files)
	return nil
}

// outputValidationErrors outputs every validation error.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    result.Errors[0].Code,
				Message: result.Errors[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, e := range result.Errors {
		fmt.Fprintln(formatter.Writer, e.File)
		if e.Entity != "" {
			fmt.Fprintf(formatter.Writer, "  %s %s: %s\n\n", e.Code, e.Entity, e.Message)
		} else {
			fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", e.Code, e.Message)
		}
	}

	// Validation failures = exit code 1
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
}
