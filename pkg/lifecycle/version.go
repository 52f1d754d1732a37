package lifecycle

// Replica connection states replaced the agent states in 2.0.0.
const (
	Version              = "2.0.0"
	MinCompatibleVersion = "2.0.0"
)
