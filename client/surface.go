package client

// State is the lifecycle of one feature surface. Ready is re-entered on
// every poll tick, every relevant push event and every local optimistic
// mutation.
type State int32

const (
	Idle State = iota
	Loading
	Ready
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	}
	return "unknown"
}
