package session

// State is the lifecycle state of a Coordinator.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateExpired      State = "expired"
)

// String implements fmt.Stringer.
func (s State) String() string {
	return string(s)
}
