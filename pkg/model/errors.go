package model

import "fmt"

// ErrorCode classifies scheduler configuration errors.
type ErrorCode string

const (
	// ErrUnregisteredDependency — a task requires a context type that is
	// not registered, stored, or produced by any known task.
	ErrUnregisteredDependency ErrorCode = "UNREGISTERED_DEPENDENCY"

	// ErrAmbiguousFanOut — a task depends on two or more any-mode types
	// that each have multiple providers, so its per-frame multiplicity is
	// ambiguous.
	ErrAmbiguousFanOut ErrorCode = "AMBIGUOUS_FAN_OUT"

	// ErrProviderCycle — provider counting found a dependency cycle
	// through any-mode fan-out.
	ErrProviderCycle ErrorCode = "PROVIDER_CYCLE"

	// ErrUnknownTask — an operation referenced a task identity that is not
	// in the pool.
	ErrUnknownTask ErrorCode = "UNKNOWN_TASK"

	// ErrShuttingDown — the manager has been shut down and accepts no
	// further commands.
	ErrShuttingDown ErrorCode = "SHUTTING_DOWN"
)

// ConfigError is a typed scheduler configuration error. Configuration
// problems are reported at registration or graph-build time rather than
// panicking at consumption time.
type ConfigError struct {
	Code    ErrorCode
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewConfigError builds a ConfigError with a formatted message.
func NewConfigError(code ErrorCode, format string, args ...any) *ConfigError {
	return &ConfigError{Code: code, Message: fmt.Sprintf(format, args...)}
}
