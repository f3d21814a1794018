package transcription

import "fmt"

// State is the lifecycle state of a transcription session. A key with
// no session at all is "absent" and never materializes a State.
type State int

const (
	// StateStarting - the upstream connection is being opened.
	StateStarting State = iota
	// StateActive - audio is flowing and segments accumulate.
	StateActive
	// StateStopped - the upstream connection is gone. Captured
	// segments remain retrievable until the session is cleared.
	StateStopped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "STARTING"
	case StateActive:
		return "ACTIVE"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}
