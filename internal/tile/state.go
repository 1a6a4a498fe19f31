// Package tile defines tile load states, change notification, and the
// plain raster tile backed by an asynchronous image fetch.
package tile

// State is a tile's position in its load lifecycle.
type State uint8

const (
	// Idle tiles have not started loading.
	Idle State = iota
	// Loading tiles have a fetch in flight.
	Loading
	// Loaded tiles hold a decoded image.
	Loaded
	// Error tiles failed to load. Callers may Reset them to retry.
	Error
	// Empty tiles have nothing to render, by construction or because
	// the source has no data there. Not an error.
	Empty
	// Abort tiles were abandoned by their owner before or during load.
	Abort
)

// Settled reports whether the state is final for scheduling purposes:
// the load either finished, failed, proved empty, or was abandoned.
func (s State) Settled() bool {
	switch s {
	case Loaded, Error, Empty, Abort:
		return true
	}
	return false
}

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Error:
		return "error"
	case Empty:
		return "empty"
	case Abort:
		return "abort"
	}
	return "unknown"
}
