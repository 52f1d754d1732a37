package state

import "context"

// Repository persists replica status snapshots.
type Repository interface {
	// Load retrieves the last saved snapshot.
	// Returns an empty state and nil error if none exists.
	Load(ctx context.Context) (State, error)

	// Save persists the snapshot atomically so readers never see a torn file.
	Save(ctx context.Context, state State) error
}
