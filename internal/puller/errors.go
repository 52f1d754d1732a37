package puller

import (
	"errors"
	"fmt"

	"github.com/bft-labs/walfollow/pkg/wire"
)

// Protocol and semantic errors.
var (
	// ErrIncompatibleFormat means the master speaks a different log format.
	ErrIncompatibleFormat = errors.New("incompatible log format")

	// ErrUnexpectedTag means the master sent something other than a WAL row.
	ErrUnexpectedTag = errors.New("unexpected record tag")

	// ErrLSNGap means the record does not directly follow the confirmed LSN.
	ErrLSNGap = errors.New("lsn gap")

	// ErrApplyFailed wraps an error returned by the applier.
	ErrApplyFailed = errors.New("apply failed")
)

// FatalError is returned by Run when replication cannot continue safely.
type FatalError struct {
	LSN int64
	Tag wire.Tag
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("replica: fatal at lsn %d (%s): %v", e.LSN, e.Tag, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err contains a *FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
