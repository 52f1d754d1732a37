// Package walfollow follows a WAL master over TCP and applies its records,
// in order, into a local store.
//
// Example usage:
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//	if err := walfollow.Run(ctx, "/var/lib/walfollow", "10.0.0.5:3301"); err != nil {
//	    log.Fatal(err)
//	}
package walfollow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bft-labs/walfollow/internal/store"
	"github.com/bft-labs/walfollow/pkg/replica"
)

// Recovery is the replica-side recovery context a session attaches to.
type Recovery = replica.Recovery

// Session is a running remote replication session.
type Session = replica.Session

// Option configures a session.
type Option = replica.Option

// Store is the Pebble-backed local replica store.
type Store = store.Store

// NewRecovery creates a recovery context that resumes after confirmedLSN.
func NewRecovery(confirmedLSN int64, applier replica.Applier) *Recovery {
	return replica.NewRecovery(confirmedLSN, applier)
}

// Start attaches a session to rc following the master at address.
func Start(rc *Recovery, address string, opts ...Option) (*Session, error) {
	return replica.Start(rc, address, opts...)
}

// Stop detaches rc's session.
func Stop(rc *Recovery) error {
	return replica.Stop(rc)
}

// OpenStore opens or creates the local store under dataDir.
func OpenStore(dataDir string, syncWrites bool) (*Store, error) {
	return store.Open(dataDir, store.WithSyncWrites(syncWrites))
}

// Run follows master into the store under dataDir. It blocks until ctx is
// cancelled, returning nil, or replication fails, returning the fatal error.
// A fatal handler passed in opts is replaced.
func Run(ctx context.Context, dataDir, master string, opts ...Option) (err error) {
	st, err := OpenStore(dataDir, true)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	fatal := make(chan error, 1)
	opts = append(opts, replica.WithFatalHandler(func(err error) {
		select {
		case fatal <- err:
		default:
		}
	}))

	rc := NewRecovery(st.ConfirmedLSN(), st)
	s, err := Start(rc, master, opts...)
	if err != nil {
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-fatal:
	}

	if err := Stop(rc); err != nil {
		return errors.Join(runErr, err)
	}
	if err := s.Wait(5 * time.Second); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}
