package bridge

import (
	"github.com/tphakala/rtbridge/internal/errors"
)

// ComponentBridge identifies bridge errors
const ComponentBridge = "bridge"

// Sentinel errors
var (
	// ErrInvalidHandle is returned for handle 0, unknown handles and
	// handles whose context has been released.
	ErrInvalidHandle = errors.NewStd("invalid rendezvous handle")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.NewStd("bridge already started")

	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.NewStd("bridge closed")
)

// errorType returns the label recorded for err in the errors metric.
func errorType(err error) string {
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		return string(ee.Category)
	}
	return string(errors.CategoryGeneric)
}
