package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/factdb/internal/ir"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation or scenario failure (transaction rejected, query failed, scenarios failed)
	ExitCommandError = 2 // Command error (bad flags, bad configuration, database not found)
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)

	// Reported marks errors whose output the command already wrote.
	Reported bool
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// reported marks err as already written to the output.
func reported(err *ExitError) *ExitError {
	err.Reported = true
	return err
}

// GetExitCode extracts the exit code from an error.
//
// An ExitError carries its own code. Database errors map by category:
// configuration, parse, lookup and context failures are command errors,
// everything else is an operation failure. Any other error comes from
// argument handling and is a command error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	switch ir.CodeOf(err) {
	case "":
		return ExitCommandError
	case ir.CodeConfig, ir.CodeParse, ir.CodeNotFound, ir.CodeInvalidContext, ir.CodeInitialization:
		return ExitCommandError
	default:
		return ExitFailure
	}
}

// OutputFormatter writes command results and errors.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for errors and verbose output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the JSON envelope for errors and test reports.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // ir.Code, or E_* for CLI-level failures
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success writes result text exactly as the database rendered it.
func (f *OutputFormatter) Success(text string) error {
	_, err := fmt.Fprintln(f.Writer, text)
	return err
}

// Error reports err. In json format the error is a CLIResponse on Writer,
// so scripts parse one stream; otherwise it is a line on ErrWriter.
func (f *OutputFormatter) Error(err error) error {
	code := string(ir.CodeOf(err))
	message := err.Error()
	var details any
	var irErr *ir.Error
	if errors.As(err, &irErr) {
		message = irErr.Message
		if irErr.Err != nil {
			message += ": " + irErr.Err.Error()
		}
		if len(irErr.Details) > 0 {
			details = irErr.Details
		}
	}
	if code == "" {
		code = "E_COMMAND"
	}

	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	w := f.GetErrWriter()
	fmt.Fprintf(w, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(w, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
