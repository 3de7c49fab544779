// Package errors provides structured CLI error types for qkdctl.
//
// CLIError wraps errors with user-facing messages, hints, and exit codes
// to provide consistent, actionable error output across all commands.
package errors

import (
	"errors"
	"fmt"
)

// Exit codes for CLI errors.
const (
	ExitSuccess    = 0  // Successful execution
	ExitGeneral    = 1  // General error
	ExitAuth       = 2  // Authentication error
	ExitNetwork    = 3  // Network/API error
	ExitConfig     = 4  // Configuration error
	ExitTimeout    = 5  // Simulation timeout
	ExitSimulation = 6  // Simulation failure
	ExitUsage      = 64 // Command line usage error (BSD convention)
)

// CLIError represents a user-facing CLI error with actionable guidance.
type CLIError struct {
	// Message is the primary error message shown to the user.
	Message string

	// Hint provides actionable guidance on how to fix the error.
	Hint string

	// Cause is the underlying error, if any.
	Cause error

	// Code is the exit code for the CLI.
	Code int
}

// Error implements the error interface.
func (e *CLIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}

	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CLIError) Unwrap() error {
	return e.Cause
}

// New creates a new CLIError with the given message and exit code.
func New(code int, message string) *CLIError {
	return &CLIError{
		Message: message,
		Code:    code,
	}
}

// Wrap wraps an existing error with a CLIError.
func Wrap(code int, message string, cause error) *CLIError {
	return &CLIError{
		Message: message,
		Cause:   cause,
		Code:    code,
	}
}

// WithHint adds a hint to the error.
func (e *CLIError) WithHint(hint string) *CLIError {
	e.Hint = hint
	return e
}

// As is a convenience function for errors.As with CLIError.
func As(err error, target **CLIError) bool {
	return errors.As(err, target)
}

// --- Common error constructors ---

// NotAuthenticated returns an error indicating missing credentials.
func NotAuthenticated() *CLIError {
	return &CLIError{
		Message: "Not authenticated",
		Hint:    "Run 'qkdctl auth login' to authenticate",
		Code:    ExitAuth,
	}
}

// AuthFailed returns an error for failed authentication.
func AuthFailed(cause error) *CLIError {
	return &CLIError{
		Message: "Authentication failed",
		Hint:    "Check your identity token or run 'qkdctl auth login'",
		Cause:   cause,
		Code:    ExitAuth,
	}
}

// CredentialsInvalid returns an error for invalid stored credentials.
func CredentialsInvalid(cause error) *CLIError {
	return &CLIError{
		Message: "Session expired or invalid",
		Hint:    "Run 'qkdctl auth login' to re-authenticate",
		Cause:   cause,
		Code:    ExitAuth,
	}
}

// TokenEmpty returns an error for an empty token input.
func TokenEmpty() *CLIError {
	return &CLIError{
		Message: "Identity token cannot be empty",
		Hint:    "Paste the ID token from your identity provider",
		Code:    ExitUsage,
	}
}

// CannotPrompt returns an error when interactive prompts are unavailable.
func CannotPrompt(envVar string) *CLIError {
	return &CLIError{
		Message: "Cannot prompt in non-interactive mode",
		Hint:    fmt.Sprintf("Set %s environment variable instead", envVar),
		Code:    ExitUsage,
	}
}

// APIUnreachable returns an error for connection failures.
func APIUnreachable(url string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Cannot reach the simulation API at %s", url),
		Hint:    "Check your network connection and the api.url config value",
		Cause:   cause,
		Code:    ExitNetwork,
	}
}

// SubmitFailed returns an error for a rejected simulation submission.
func SubmitFailed(cause error) *CLIError {
	return &CLIError{
		Message: "Simulation submission failed",
		Hint:    "Check the simulation parameters and try again",
		Cause:   cause,
		Code:    ExitSimulation,
	}
}

// SimulationFailed returns an error for a simulation that reached a failed state.
func SimulationFailed(reason string) *CLIError {
	if reason == "" {
		reason = "unknown reason"
	}

	return &CLIError{
		Message: fmt.Sprintf("Simulation failed: %s", reason),
		Hint:    "Run 'qkdctl simulate history' to inspect previous runs",
		Code:    ExitSimulation,
	}
}

// ConfigFailed returns an error for configuration operations.
func ConfigFailed(action string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Failed to %s", action),
		Cause:   cause,
		Code:    ExitConfig,
	}
}

// InvalidArgument returns a usage error for a bad argument value.
func InvalidArgument(detail string) *CLIError {
	return &CLIError{
		Message: detail,
		Code:    ExitUsage,
	}
}
