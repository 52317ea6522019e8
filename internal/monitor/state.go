package monitor

// ConnState is the subscription state of one watched exchange.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateSubscribed
	StateReconnecting
	StateShuttingDown
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateReconnecting:
		return "reconnecting"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// validTransitions encodes the subscription lifecycle. Shutdown is reachable
// from every state.
var validTransitions = map[ConnState][]ConnState{
	StateDisconnected: {StateConnecting, StateShuttingDown},
	StateConnecting:   {StateSubscribed, StateReconnecting, StateShuttingDown},
	StateSubscribed:   {StateReconnecting, StateShuttingDown},
	StateReconnecting: {StateConnecting, StateSubscribed, StateShuttingDown},
	StateShuttingDown: {StateDisconnected},
}

// canTransition reports whether moving from to next is a legal lifecycle step.
func canTransition(from, next ConnState) bool {
	for _, s := range validTransitions[from] {
		if s == next {
			return true
		}
	}
	return false
}
