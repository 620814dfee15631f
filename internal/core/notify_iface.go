package core

import (
	"context"
	"time"

	"github.com/dkeye/tempvoice/internal/domain"
)

type Choice string

const (
	ChoiceAccept  Choice = "accept"
	ChoiceDecline Choice = "decline"
)

// Prompt asks a user to pick one of Choices for a pending proposal.
type Prompt struct {
	ProposalID string          `json:"proposal"`
	Kind       string          `json:"kind"`
	From       domain.UserID   `json:"from"`
	FromName   string          `json:"from_name"`
	RoomID     domain.RoomID   `json:"room"`
	RoomName   domain.RoomName `json:"room_name"`
	Text       string          `json:"text"`
	Choices    []Choice        `json:"choices"`
	ExpiresAt  time.Time       `json:"expires_at"`
}

// Outcome replaces a prompt once its proposal is resolved.
type Outcome struct {
	ProposalID string `json:"proposal"`
	Text       string `json:"text"`
}

// Notifier renders prompts and outcomes to users.
//
// Prompt and Outcome may fail; callers log and carry on without rolling back
// state. Direct is best-effort and has no error to return.
type Notifier interface {
	Prompt(ctx context.Context, to domain.UserID, p Prompt) error
	Outcome(ctx context.Context, to domain.UserID, o Outcome) error
	Direct(ctx context.Context, to domain.UserID, text string)
}
