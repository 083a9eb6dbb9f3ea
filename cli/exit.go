package cli

import (
	"fmt"

	"github.com/samerGMTM22/RealTime-Agent-LiveKit/tool"
)

// Process exit codes.
const (
	exitValidation = 1
	exitRuntime    = 2
	exitNotFound   = 3
	exitInputParse = 4
	exitTimeout    = 10
)

// ExitError is an error that carries a specific process exit code.
// Cobra's RunE returns this to signal the desired exit code to main.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// exitError creates a new ExitError with the given code and formatted message.
func exitError(code int, format string, args ...any) *ExitError {
	return &ExitError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// toolExitError maps a tool call failure onto an exit code.
func toolExitError(name string, err error) *ExitError {
	switch tool.ErrorCode(err) {
	case tool.ErrorCodeNotFound:
		return exitError(exitNotFound, "tool %q is not registered", name)
	case tool.ErrorCodeTimeout:
		return exitError(exitTimeout, "%v", err)
	case tool.ErrorCodeInvalidRequest, tool.ErrorCodeConfiguration:
		return exitError(exitValidation, "%v", err)
	default:
		return exitError(exitRuntime, "%v", err)
	}
}
