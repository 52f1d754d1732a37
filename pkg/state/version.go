package state

// The snapshot schema changed to the replica status in 2.0.0.
const (
	Version              = "2.0.0"
	MinCompatibleVersion = "2.0.0"
)
