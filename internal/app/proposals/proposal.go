// Package proposals coordinates two-party, time-bounded requests to bring a
// user into a room: invitations and join requests.
//
// A proposal is Pending until its counterparty answers or it expires. An
// accepted proposal whose mover is not connected anywhere waits, for a
// bounded window, for the mover's next connection and is then consumed by
// the TriggerFeed. Resolved proposals are dropped from the table at once.
package proposals

import (
	"time"

	"github.com/dkeye/tempvoice/internal/domain"
)

type ID string

type Kind int

const (
	KindInvitation Kind = iota + 1
	KindJoinRequest
)

func (k Kind) String() string {
	switch k {
	case KindInvitation:
		return "invitation"
	case KindJoinRequest:
		return "join_request"
	default:
		return "unknown"
	}
}

type State int

const (
	StatePending State = iota + 1
	StateAwaitingMove
	StateResolved
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateAwaitingMove:
		return "ACCEPTED_AWAITING_MOVE"
	case StateResolved:
		return "RESOLVED"
	default:
		return "UNSPECIFIED"
	}
}

// Handle cancels a scheduled action. *clock.Timer satisfies it.
type Handle interface {
	Stop() bool
}

type Proposal struct {
	ID             ID
	Kind           Kind
	ProposerID     domain.UserID
	CounterpartyID domain.UserID
	TargetRoomID   domain.RoomID
	CreatedAt      time.Time
	State          State

	expiry   Handle
	autoMove Handle
}

// Mover is the user who gets the connect grant and is moved into the room:
// the invitee of an invitation, the requester of a join request.
func (p *Proposal) Mover() domain.UserID {
	if p.Kind == KindInvitation {
		return p.CounterpartyID
	}
	return p.ProposerID
}

// Other is whichever party is not the mover.
func (p *Proposal) Other() domain.UserID {
	if p.Kind == KindInvitation {
		return p.ProposerID
	}
	return p.CounterpartyID
}

// Request asks the coordinator for a new proposal. TargetRoomID is ignored
// for join requests, which always target the counterparty's current room;
// an empty target on an invitation means the proposer's current room.
type Request struct {
	Kind           Kind
	ProposerID     domain.UserID
	CounterpartyID domain.UserID
	TargetRoomID   domain.RoomID
}

// Outcome tells the accepting user what happened.
type Outcome int

const (
	OutcomeMoved Outcome = iota + 1
	OutcomeAlreadyThere
	OutcomeAwaitingMove
)

type pairKey struct {
	proposer domain.UserID
	room     domain.RoomID
}
