package conversation

import (
	"fmt"

	rderrors "github.com/relaydesk/relaydesk/internal/errors"
)

type Status string

const (
	StatusNew             Status = "new"
	StatusInProgress      Status = "in_progress"
	StatusPendingCustomer Status = "pending_customer"
	StatusEscalated       Status = "escalated"
	StatusResolved        Status = "resolved"
	StatusClosed          Status = "closed"
)

// transitions is the full status state machine. Anything absent is invalid.
var transitions = map[Status][]Status{
	StatusNew:             {StatusInProgress},
	StatusInProgress:      {StatusPendingCustomer, StatusEscalated, StatusResolved},
	StatusPendingCustomer: {StatusInProgress},
	StatusEscalated:       {StatusInProgress, StatusResolved},
	StatusResolved:        {StatusClosed},
	StatusClosed:          {},
}

// CanTransition reports whether from → to is a legal status transition.
// Self-transitions are allowed; a turn may leave the status unchanged.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the state to the target status, rejecting anything outside
// the table. A rejected transition leaves the state untouched.
func (s *State) Transition(to Status) error {
	if !CanTransition(s.Status, to) {
		return rderrors.InvalidTransition(fmt.Sprintf("status %s -> %s", s.Status, to))
	}
	s.Status = to
	return nil
}

// Terminal reports whether no further transitions are possible.
func (st Status) Terminal() bool {
	return st == StatusClosed
}
