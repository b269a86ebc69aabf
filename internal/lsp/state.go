package lsp

// State is the lifecycle of a session.
//
//	Uninitialized -> Negotiating -> Ready <-> Degraded -> Closed
//
// A failed handshake also lands in Degraded so the reconnect policy applies.
type State int

const (
	Uninitialized State = iota
	Negotiating
	Ready
	Degraded
	Closed
)

var stateNames = []string{"uninitialized", "negotiating", "ready", "degraded", "closed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// StateNames lists every state label, for metrics.
func StateNames() []string {
	return append([]string(nil), stateNames...)
}

func (s State) canTransition(to State) bool {
	switch s {
	case Uninitialized:
		return to == Negotiating || to == Closed
	case Negotiating:
		return to == Ready || to == Degraded || to == Closed
	case Ready:
		return to == Degraded || to == Closed
	case Degraded:
		return to == Negotiating || to == Closed
	}
	return false
}
