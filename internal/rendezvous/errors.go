package rendezvous

import (
	"github.com/tphakala/rtbridge/internal/errors"
)

// ComponentRendezvous identifies rendezvous errors
const ComponentRendezvous = "rendezvous"

// Sentinel errors, matched with errors.Is
var (
	// ErrReleased is returned by every operation on a released context.
	ErrReleased = errors.NewStd("rendezvous context released")

	// ErrNoCycle is returned when output is written without a cycle having
	// been received by ReadInput.
	ErrNoCycle = errors.NewStd("no cycle in progress")

	// ErrInvalidConfig is returned by Configure for unusable sizes.
	ErrInvalidConfig = errors.NewStd("invalid rendezvous configuration")

	// ErrAdapterConstruction is returned by Configure when the buffer
	// adapter could not be created.
	ErrAdapterConstruction = errors.NewStd("buffer adapter construction failed")
)

func stateError(sentinel error, c *Context, operation string) error {
	return errors.New(sentinel).
		Component(ComponentRendezvous).
		Category(errors.CategoryRendezvous).
		Context("context_id", c.id).
		Context("state", c.State().String()).
		Context("operation", operation).
		Build()
}
