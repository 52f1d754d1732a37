package replica

import (
	"errors"

	"github.com/bft-labs/walfollow/internal/puller"
)

// Configuration errors returned synchronously by Start and Stop.
var (
	ErrAlreadyAttached = errors.New("replica: remote session already attached")
	ErrNotAttached     = errors.New("replica: no remote session attached")
	ErrInvalidAddress  = errors.New("replica: invalid master address")
	ErrNoApplier       = errors.New("replica: recovery has no applier")
)

// Errors a session can end with.
var (
	ErrIncompatibleFormat = puller.ErrIncompatibleFormat
	ErrUnexpectedTag      = puller.ErrUnexpectedTag
	ErrLSNGap             = puller.ErrLSNGap
	ErrApplyFailed        = puller.ErrApplyFailed
)

// FatalError ends a session; see errors.As.
type FatalError = puller.FatalError

// IsFatal reports whether err contains a *FatalError.
func IsFatal(err error) bool {
	return puller.IsFatal(err)
}
