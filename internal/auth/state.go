package auth

import (
	"fmt"

	"github.com/ghaggin/courier/internal/model"
)

type State int

const (
	Uninitialized State = iota
	Restoring
	Authenticated
	Anonymous
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Restoring:
		return "restoring"
	case Authenticated:
		return "authenticated"
	case Anonymous:
		return "anonymous"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Change is published on every state transition and whenever the session
// is replaced. Session is nil when there is none.
type Change struct {
	From    State
	To      State
	Session *model.Session
}
