package cli

import "fmt"

// ConfigError reports a problem with the effective configuration. Field is
// the dotted configuration path ("audit.retention.prune_schedule") when one
// is known, empty when the whole file failed to load.
type ConfigError struct {
	Field   string
	Message string
}

// NewConfigError creates a ConfigError for the given configuration field.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Message
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// CommandError wraps a failure from a bastion subcommand so the root command
// prints which operation failed alongside the cause.
type CommandError struct {
	Command string
	Err     error
}

// NewCommandError wraps err as a failure of the named subcommand.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{Command: command, Err: err}
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("bastion %s: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
