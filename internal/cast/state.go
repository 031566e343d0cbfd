package cast

// State is a phase of a screen session.
type State int

const (
	StateIdle State = iota
	StateAwaitingDevice
	StateStartingServer
	StateStartingEncoder
	StatePlaying
	StateStopping
	StateTerminated
)

var stateNames = [...]string{
	StateIdle:            "idle",
	StateAwaitingDevice:  "awaiting_device",
	StateStartingServer:  "starting_server",
	StateStartingEncoder: "starting_encoder",
	StatePlaying:         "playing",
	StateStopping:        "stopping",
	StateTerminated:      "terminated",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
