package engine

// Mode is the storage mode the engine is operating in. It is derived from
// the connection lifecycle, never set directly by callers.
type Mode int

const (
	// ModeDetecting: a connection attempt is in flight or scheduled.
	ModeDetecting Mode = iota
	// ModeCloud: joined a space, pushes go straight to the server.
	ModeCloud
	// ModeLocal: offline or retries exhausted, mutations queue locally.
	ModeLocal
	// ModeError: the server explicitly rejected the join.
	ModeError
)

func (m Mode) String() string {
	switch m {
	case ModeDetecting:
		return "detecting"
	case ModeCloud:
		return "cloud"
	case ModeLocal:
		return "local"
	case ModeError:
		return "error"
	default:
		return "unknown"
	}
}
