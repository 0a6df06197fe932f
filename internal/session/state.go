// ABOUTME: Session lifecycle states and the forward-only transition rule
// ABOUTME: Failed and Closed are terminal

package session

import "fmt"

// State is a session's position in the handshake state machine.
type State int

const (
	StateConnecting State = iota
	StateAwaitingInitResult
	StateAwaitingInitializedAck
	StateReady
	StateFailed
	StateClosed
)

var stateNames = [...]string{
	StateConnecting:             "Connecting",
	StateAwaitingInitResult:     "AwaitingInitResult",
	StateAwaitingInitializedAck: "AwaitingInitializedAck",
	StateReady:                  "Ready",
	StateFailed:                 "Failed",
	StateClosed:                 "Closed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText renders the state by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name written by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateFailed || s == StateClosed
}

// canTransition reports whether the machine may move from s to next.
func (s State) canTransition(next State) bool {
	return !s.Terminal() && next > s
}
