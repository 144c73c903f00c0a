package conveyor

// State identifies one of the possible states a stage can be in.
type State int32

const (
	// Idle means that stage was never activated.
	Idle State = iota
	// Active means that stage loop is running.
	Active
	// StopRequested means that stage finishes the current item and exits.
	StopRequested
	// Terminated means that stage loop has exited. It can be activated
	// again only with new queues.
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case StopRequested:
		return "stop requested"
	case Terminated:
		return "terminated"
	}
	return "unknown"
}
