package session

import "fmt"

// State is a step of the RMA session lifecycle
type State int

const (
	Idle State = iota
	AwaitingMainMenu
	QueryingRMA
	IteratingSerials
	ProcessingSerial
	AwaitingUserAdvance
	Finished
	Aborted
)

var stateNames = map[State]string{
	Idle:                "Idle",
	AwaitingMainMenu:    "AwaitingMainMenu",
	QueryingRMA:         "QueryingRMA",
	IteratingSerials:    "IteratingSerials",
	ProcessingSerial:    "ProcessingSerial",
	AwaitingUserAdvance: "AwaitingUserAdvance",
	Finished:            "Finished",
	Aborted:             "Aborted",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText renders the state by name in JSON
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether the session can no longer be advanced
func (s State) Terminal() bool {
	return s == Finished || s == Aborted
}

// UnmarshalText parses a state name
func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}
