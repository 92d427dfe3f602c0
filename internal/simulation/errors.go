package simulation

import (
	"fmt"

	"github.com/xkilldash9x/ringsim/internal/barrier"
)

// ConfigError reports a configuration field outside its allowed range.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid simulation config: %s %s", e.Field, e.Reason)
}

func configErr(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// DegenerateGeometryError is recorded as a Diagnostic event when a shrink target has
// to be floored. It is never returned from Tick.
type DegenerateGeometryError = barrier.DegenerateGeometryError

// ErrDegenerateGeometry is wrapped by every DegenerateGeometryError.
var ErrDegenerateGeometry = barrier.ErrDegenerateGeometry
