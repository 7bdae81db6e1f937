package tools

import "fmt"

// ErrToolUnavailable is reported when the model calls a tool that is
// not registered.
type ErrToolUnavailable struct {
	ToolName string
}

// Error implements the error interface. The text is shown to the model.
func (e *ErrToolUnavailable) Error() string {
	return fmt.Sprintf("Unknown tool: %s", e.ToolName)
}

// ArgError is a missing or mistyped tool argument. Message is shown to
// the model as is.
type ArgError struct {
	Message string
}

func (e *ArgError) Error() string { return e.Message }

func argErrorf(format string, a ...any) error {
	return &ArgError{Message: fmt.Sprintf(format, a...)}
}
