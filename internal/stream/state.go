package stream

// State is the connection state of a Manager.
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
	StateReconnecting State = "RECONNECTING"
	StateError        State = "ERROR"
)

// States lists every connection state in display order.
func States() []State {
	return []State{StateDisconnected, StateConnecting, StateConnected, StateReconnecting, StateError}
}

func stateNames() []string {
	all := States()
	out := make([]string, len(all))
	for i, s := range all {
		out[i] = string(s)
	}
	return out
}
