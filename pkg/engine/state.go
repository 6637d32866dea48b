package engine

// State tracks the phase a backup run is in.
type State int

const (
	Idle State = iota
	Loading
	Scanning
	Writing
	Pruning
	Done
	Failed
)

var stateNames = map[State]string{
	Idle:     "idle",
	Loading:  "loading",
	Scanning: "scanning",
	Writing:  "writing",
	Pruning:  "pruning",
	Done:     "done",
	Failed:   "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}
