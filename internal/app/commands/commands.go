// Package commands turns user intents from the signal and REST layers into
// coordinator calls on the event loop, and the results into short,
// human-readable replies.
package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/tempvoice/internal/app/events"
	"github.com/dkeye/tempvoice/internal/app/proposals"
	"github.com/dkeye/tempvoice/internal/core"
	"github.com/dkeye/tempvoice/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	msgGeneric  = "Something went wrong, please try again."
	msgShutdown = "The server is shutting down."
)

type Directory interface {
	ResolveUser(ref string) (domain.User, bool)
	ResolveRoom(ref string) (domain.RoomID, bool)
}

type Commands struct {
	loop   *events.Loop
	coord  *proposals.Coordinator
	dir    Directory
	tracer trace.Tracer
	log    zerolog.Logger
}

func New(loop *events.Loop, coord *proposals.Coordinator, dir Directory) *Commands {
	return &Commands{
		loop:   loop,
		coord:  coord,
		dir:    dir,
		tracer: otel.Tracer("github.com/dkeye/tempvoice/internal/app/commands"),
		log:    log.With().Str("module", "app.commands").Logger(),
	}
}

// RequestCreateInvitation invites counterpartyRef into roomRef, or into the
// proposer's current room when roomRef is empty.
func (c *Commands) RequestCreateInvitation(ctx context.Context, proposer domain.UserID, counterpartyRef, roomRef string) string {
	ctx, span := c.tracer.Start(ctx, "commands.invite", trace.WithAttributes(
		attribute.String("proposer", string(proposer)),
	))
	defer span.End()

	target, ok := c.dir.ResolveUser(counterpartyRef)
	if !ok {
		return fmt.Sprintf("I don't know who %q is.", counterpartyRef)
	}
	var room domain.RoomID
	if roomRef != "" {
		if room, ok = c.dir.ResolveRoom(roomRef); !ok {
			return fmt.Sprintf("There is no room called %q.", roomRef)
		}
	}
	req := proposals.Request{
		Kind:           proposals.KindInvitation,
		ProposerID:     proposer,
		CounterpartyID: target.ID,
		TargetRoomID:   room,
	}
	if _, err := c.create(ctx, span, req); err != nil {
		return c.explain(span, err)
	}
	return fmt.Sprintf("Invitation sent to %s.", target.DisplayName())
}

// RequestCreateJoinRequest asks counterpartyRef to let the proposer into
// the room they are in.
func (c *Commands) RequestCreateJoinRequest(ctx context.Context, proposer domain.UserID, counterpartyRef string) string {
	ctx, span := c.tracer.Start(ctx, "commands.request_join", trace.WithAttributes(
		attribute.String("proposer", string(proposer)),
	))
	defer span.End()

	target, ok := c.dir.ResolveUser(counterpartyRef)
	if !ok {
		return fmt.Sprintf("I don't know who %q is.", counterpartyRef)
	}
	req := proposals.Request{
		Kind:           proposals.KindJoinRequest,
		ProposerID:     proposer,
		CounterpartyID: target.ID,
	}
	if _, err := c.create(ctx, span, req); err != nil {
		return c.explain(span, err)
	}
	return fmt.Sprintf("Asked %s to let you in.", target.DisplayName())
}

// Respond activates one of a prompt's affordances.
func (c *Commands) Respond(ctx context.Context, proposalID string, actor domain.UserID, choice core.Choice) string {
	ctx, span := c.tracer.Start(ctx, "commands.respond", trace.WithAttributes(
		attribute.String("proposal", proposalID),
		attribute.String("actor", string(actor)),
		attribute.String("choice", string(choice)),
	))
	defer span.End()

	id := proposals.ID(proposalID)
	var (
		out proposals.Outcome
		err error
	)
	var job events.Job
	switch choice {
	case core.ChoiceAccept:
		job = func(ctx context.Context) { out, err = c.coord.Accept(ctx, id, actor) }
	case core.ChoiceDecline:
		job = func(ctx context.Context) { err = c.coord.Decline(ctx, id, actor) }
	default:
		return "Choose accept or decline."
	}
	if derr := c.loop.Do(ctx, job); derr != nil {
		return c.explain(span, derr)
	}
	if err != nil {
		return c.explain(span, err)
	}
	if choice == core.ChoiceDecline {
		return "Declined."
	}
	switch out {
	case proposals.OutcomeMoved:
		return "Accepted, the move is done."
	case proposals.OutcomeAwaitingMove:
		return "Accepted. The move happens on the next voice connection."
	default:
		return "Accepted."
	}
}

func (c *Commands) create(ctx context.Context, span trace.Span, req proposals.Request) (proposals.ID, error) {
	var (
		id  proposals.ID
		err error
	)
	if derr := c.loop.Do(ctx, func(ctx context.Context) { id, err = c.coord.CreateProposal(ctx, req) }); derr != nil {
		return "", derr
	}
	if err == nil {
		span.SetAttributes(attribute.String("proposal", string(id)))
	}
	return id, err
}

// explain maps err to the reply the acting user sees. Rejections are the
// user's doing and are not logged as errors.
func (c *Commands) explain(span trace.Span, err error) string {
	if r, ok := core.AsRejection(err); ok {
		span.SetAttributes(attribute.String("rejection", string(r.Code)))
		c.log.Debug().Str("code", string(r.Code)).Msg(r.Message)
		return r.Message
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if errors.Is(err, events.ErrLoopClosed) || errors.Is(err, context.Canceled) {
		return msgShutdown
	}
	c.log.Error().Err(err).Msg("command failed")
	return msgGeneric
}
