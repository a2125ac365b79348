package convert

import (
	"fmt"
)

// State is where a file stands in the check/apply cycle.
type State int

const (
	Init State = iota
	IoError
	NoXmpData
	NoAcdData
	ContainerError
	XmpRewriteError
	InvalidAcdseeData
	Ready
	RewriteError
	Complete
	ApplyError
	BackupError
)

var stateNames = [...]string{
	Init:              "Init",
	IoError:           "IoError",
	NoXmpData:         "NoXmpData",
	NoAcdData:         "NoAcdData",
	ContainerError:    "ContainerError",
	XmpRewriteError:   "XmpRewriteError",
	InvalidAcdseeData: "InvalidAcdseeData",
	Ready:             "Ready",
	RewriteError:      "RewriteError",
	Complete:          "Complete",
	ApplyError:        "ApplyError",
	BackupError:       "BackupError",
}

var stateDescriptions = [...]string{
	Init:              "waiting",
	IoError:           "I/O error",
	NoXmpData:         "no XMP data present",
	NoAcdData:         "no ACDSee data present",
	ContainerError:    "read error",
	XmpRewriteError:   "metadata rewrite error",
	InvalidAcdseeData: "invalid ACDSee data",
	Ready:             "ready to rewrite",
	RewriteError:      "cannot prepare rewrite",
	Complete:          "done",
	ApplyError:        "write error",
	BackupError:       "cannot back up",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Description is a short human readable label.
func (s State) Description() string {
	if s < 0 || int(s) >= len(stateDescriptions) {
		return s.String()
	}
	return stateDescriptions[s]
}

// Terminal reports whether no further action applies to the file. Init and
// Ready are the only non-terminal states.
func (s State) Terminal() bool {
	return s != Init && s != Ready
}

// Failed reports whether the state records an error.
func (s State) Failed() bool {
	switch s {
	case IoError, ContainerError, XmpRewriteError, InvalidAcdseeData, RewriteError, ApplyError, BackupError:
		return true
	}
	return false
}

func ParseState(s string) (State, error) {
	for i, name := range stateNames {
		if name == s {
			return State(i), nil
		}
	}
	return Init, fmt.Errorf("unknown state %q", s)
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	v, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
