// Package state persists replica status snapshots for operators.
//
// The snapshot (source, status string, puller state, confirmed LSN, lag) is
// written to status.json in the state directory. Writes are atomic: the file
// is written to a temp path and renamed into place.
//
// # Usage
//
//	repo := state.NewFileRepository("/var/lib/walfollow")
//
//	if err := repo.Save(ctx, snapshot); err != nil {
//	    return err
//	}
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
//
// See version.go for version constants that can be used programmatically.
package state
