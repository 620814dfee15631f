package proposals

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/tempvoice/internal/app/events"
	"github.com/dkeye/tempvoice/internal/app/rooms"
	"github.com/dkeye/tempvoice/internal/clock"
	"github.com/dkeye/tempvoice/internal/core"
	"github.com/dkeye/tempvoice/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultInviteTTL      = 5 * time.Minute
	DefaultAutoMoveWindow = 10 * time.Minute
)

// GrantOnAccept is what the mover gets on the target room once accepted.
const GrantOnAccept = domain.PermView | domain.PermConnect | domain.PermSpeak

type Config struct {
	InviteTTL      time.Duration
	AutoMoveWindow time.Duration
}

// Coordinator owns the live proposal table. Every mutating method must run
// on the event loop; the read-only accessors are safe from any goroutine.
type Coordinator struct {
	cfg       Config
	rooms     *rooms.Registry
	platform  core.Platform
	authority core.Authority
	notifier  core.Notifier
	clock     clock.Clock
	loop      *events.Loop
	newID     func() ID
	log       zerolog.Logger

	mu       sync.RWMutex
	live     map[ID]*Proposal
	pending  map[pairKey]ID
	awaiting map[domain.UserID]ID
}

func NewCoordinator(
	cfg Config,
	registry *rooms.Registry,
	platform core.Platform,
	authority core.Authority,
	notifier core.Notifier,
	clk clock.Clock,
	loop *events.Loop,
) *Coordinator {
	if cfg.InviteTTL <= 0 {
		cfg.InviteTTL = DefaultInviteTTL
	}
	if cfg.AutoMoveWindow <= 0 {
		cfg.AutoMoveWindow = DefaultAutoMoveWindow
	}
	return &Coordinator{
		cfg:       cfg,
		rooms:     registry,
		platform:  platform,
		authority: authority,
		notifier:  notifier,
		clock:     clk,
		loop:      loop,
		newID:     func() ID { return ID(uuid.NewString()) },
		log:       log.With().Str("module", "app.proposals").Logger(),
		live:      make(map[ID]*Proposal),
		pending:   make(map[pairKey]ID),
		awaiting:  make(map[domain.UserID]ID),
	}
}

// CreateProposal validates req, prompts the counterparty and stores the
// proposal as Pending with its expiry armed.
func (c *Coordinator) CreateProposal(ctx context.Context, req Request) (ID, error) {
	if req.Kind != KindInvitation && req.Kind != KindJoinRequest {
		return "", core.Invariant("unknown proposal kind %d", req.Kind)
	}
	if req.ProposerID == req.CounterpartyID {
		return "", core.Reject(core.RejectSelfTarget, "You can't send that to yourself.")
	}
	counterparty, ok := c.platform.User(req.CounterpartyID)
	if !ok {
		return "", core.Reject(core.RejectUnknownUser, "I don't know that user.")
	}
	if counterparty.Bot {
		return "", core.Reject(core.RejectBot, "%s is a bot.", counterparty.DisplayName())
	}
	if c.authority.IsExcludedFromRooms(counterparty.ID) {
		return "", core.Reject(core.RejectExcluded, "%s can't take part in voice rooms.", counterparty.DisplayName())
	}
	if c.authority.IsExcludedFromRooms(req.ProposerID) {
		return "", core.Reject(core.RejectExcluded, "You can't take part in voice rooms.")
	}

	target, err := c.resolveTarget(req, counterparty)
	if err != nil {
		return "", err
	}
	req.TargetRoomID = target

	room, ok := c.platform.Room(target)
	if !ok || !room.Joinable() {
		return "", core.Reject(core.RejectRoomNotFound, "That room doesn't exist.")
	}
	p := &Proposal{
		Kind:           req.Kind,
		ProposerID:     req.ProposerID,
		CounterpartyID: req.CounterpartyID,
		TargetRoomID:   target,
	}
	if cur, ok := c.platform.CurrentRoom(p.Mover()); ok && cur == target {
		return "", core.Reject(core.RejectAlreadyInRoom, "Already in %s.", room.Name)
	}
	key := pairKey{proposer: req.ProposerID, room: target}
	if c.hasPending(key) {
		return "", core.Reject(core.RejectDuplicate, "You already have a pending request for %s.", room.Name)
	}
	if !c.hasAuthority(req) {
		return "", core.Reject(core.RejectNoAuthority, "You can't invite people to %s.", room.Name)
	}

	p.ID = c.newID()
	p.CreatedAt = c.clock.Now()
	p.State = StatePending
	logger := c.log.With().Str("proposal", string(p.ID)).Str("kind", p.Kind.String()).Logger()

	proposer, _ := c.platform.User(req.ProposerID)
	prompt := core.Prompt{
		ProposalID: string(p.ID),
		Kind:       p.Kind.String(),
		From:       proposer.ID,
		FromName:   proposer.DisplayName(),
		RoomID:     room.ID,
		RoomName:   room.Name,
		Text:       promptText(p.Kind, proposer.DisplayName(), room.Name),
		Choices:    []core.Choice{core.ChoiceAccept, core.ChoiceDecline},
		ExpiresAt:  p.CreatedAt.Add(c.cfg.InviteTTL),
	}
	if err := c.notifier.Prompt(ctx, counterparty.ID, prompt); err != nil {
		logger.Warn().Err(err).Msg("render prompt")
		return "", err
	}

	id := p.ID
	var timer *clock.Timer
	timer = c.clock.AfterFunc(c.cfg.InviteTTL, func() {
		c.loop.Post(func(ctx context.Context) { c.expiryDue(ctx, id, timer) })
	})
	p.expiry = timer

	c.mu.Lock()
	c.live[id] = p
	c.pending[key] = id
	c.mu.Unlock()

	logger.Info().
		Str("proposer", string(p.ProposerID)).
		Str("counterparty", string(p.CounterpartyID)).
		Str("room", string(target)).
		Msg("proposal created")
	return id, nil
}

func (c *Coordinator) resolveTarget(req Request, counterparty domain.User) (domain.RoomID, error) {
	switch req.Kind {
	case KindJoinRequest:
		cur, ok := c.platform.CurrentRoom(counterparty.ID)
		if !ok {
			return "", core.Reject(core.RejectNotConnected, "%s is not in a voice room.", counterparty.DisplayName())
		}
		if _, managed := c.rooms.Get(cur); !managed {
			return "", core.Reject(core.RejectNotManaged, "%s's room is open, just join it.", counterparty.DisplayName())
		}
		return cur, nil
	default:
		if req.TargetRoomID != "" {
			return req.TargetRoomID, nil
		}
		cur, ok := c.platform.CurrentRoom(req.ProposerID)
		if !ok {
			return "", core.Reject(core.RejectNotConnected, "Join your room first, or name the room.")
		}
		return cur, nil
	}
}

// hasAuthority: the proposer created the target, holds an elevated role, or
// (join requests) is asking someone who sits in it.
func (c *Coordinator) hasAuthority(req Request) bool {
	if c.authority.HasElevatedRoomAuthority(req.ProposerID) {
		return true
	}
	if creator, ok := c.rooms.CreatorOf(req.TargetRoomID); ok && creator == req.ProposerID {
		return true
	}
	if req.Kind == KindJoinRequest {
		cur, ok := c.platform.CurrentRoom(req.CounterpartyID)
		return ok && cur == req.TargetRoomID
	}
	return false
}

// mayAnswer: the counterparty always may; for join requests so may anyone in
// the room, its creator, or an elevated user. Never the requester.
func (c *Coordinator) mayAnswer(p *Proposal, actor domain.UserID) bool {
	if actor == p.CounterpartyID {
		return true
	}
	if p.Kind != KindJoinRequest || actor == p.ProposerID {
		return false
	}
	if c.authority.HasElevatedRoomAuthority(actor) {
		return true
	}
	if creator, ok := c.rooms.CreatorOf(p.TargetRoomID); ok && creator == actor {
		return true
	}
	cur, ok := c.platform.CurrentRoom(actor)
	return ok && cur == p.TargetRoomID
}

// Accept grants the mover access to the target room and moves them there,
// now or on their next connection.
func (c *Coordinator) Accept(ctx context.Context, id ID, actor domain.UserID) (Outcome, error) {
	p, err := c.answerable(id, actor)
	if err != nil {
		return 0, err
	}
	logger := c.log.With().Str("proposal", string(id)).Str("actor", string(actor)).Logger()

	room, ok := c.platform.Room(p.TargetRoomID)
	if !ok {
		c.resolve(p)
		return 0, core.Reject(core.RejectRoomNotFound, "That room doesn't exist anymore.")
	}
	mover := p.Mover()
	grant := domain.Overwrite{Allow: GrantOnAccept}
	if err := c.platform.SetOverwrite(ctx, p.TargetRoomID, mover, grant); err != nil {
		logger.Error().Err(err).Msg("grant connect permission")
		return 0, err
	}
	if p, err = c.answerable(id, actor); err != nil {
		return 0, err
	}
	c.stopExpiry(p)

	cur, connected := c.platform.CurrentRoom(mover)
	switch {
	case connected && cur == p.TargetRoomID:
		c.resolve(p)
		c.tell(ctx, p, "Accepted.", fmt.Sprintf("You now have access to %s.", room.Name))
		logger.Info().Msg("proposal accepted, mover already in room")
		return OutcomeAlreadyThere, nil
	case connected:
		err := c.platform.Relocate(ctx, mover, p.TargetRoomID)
		if err == nil {
			c.resolve(p)
			c.tell(ctx, p, "Accepted.", fmt.Sprintf("Accepted, moved into %s.", room.Name))
			logger.Info().Msg("proposal accepted, mover relocated")
			return OutcomeMoved, nil
		}
		logger.Warn().Err(err).Msg("relocate mover, falling back to auto-move")
	}

	if p, err = c.live1(id); err != nil {
		return 0, err
	}
	c.awaitMove(p)
	c.tell(ctx, p, "Accepted.", fmt.Sprintf("Accepted. You'll be moved into %s the next time you connect.", room.Name))
	logger.Info().Dur("window", c.cfg.AutoMoveWindow).Msg("proposal accepted, awaiting move")
	return OutcomeAwaitingMove, nil
}

// Decline resolves a pending proposal without granting anything.
func (c *Coordinator) Decline(ctx context.Context, id ID, actor domain.UserID) error {
	p, err := c.answerable(id, actor)
	if err != nil {
		return err
	}
	c.resolve(p)
	c.tell(ctx, p, "Declined.", "Your request was declined.")
	c.log.Info().Str("proposal", string(id)).Str("actor", string(actor)).Msg("proposal declined")
	return nil
}

// Expire resolves id when it is still Pending. Anything else is a no-op
// rejection, which is how accept/decline racing the timer is settled.
func (c *Coordinator) Expire(ctx context.Context, id ID) error {
	p, err := c.live1(id)
	if err != nil {
		return err
	}
	if p.State != StatePending {
		return core.Reject(core.RejectNotPending, "That request was already answered.")
	}
	c.resolve(p)
	c.tell(ctx, p, "This request expired.", "Your request expired without an answer.")
	c.log.Info().Str("proposal", string(id)).Msg("proposal expired")
	return nil
}

func (c *Coordinator) expiryDue(ctx context.Context, id ID, h Handle) {
	p, err := c.live1(id)
	if err != nil || p.expiry != h {
		return
	}
	_ = c.Expire(ctx, id)
}

func (c *Coordinator) autoMoveDue(id ID, h Handle) {
	p, err := c.live1(id)
	if err != nil || p.State != StateAwaitingMove || p.autoMove != h {
		return
	}
	c.resolve(p)
	c.log.Info().Str("proposal", string(id)).Str("mover", string(p.Mover())).Msg("auto-move window closed")
}

// ConsumeOnConnect moves user into the target of their accepted proposal,
// if they have one. It reports whether a relocation happened.
func (c *Coordinator) ConsumeOnConnect(ctx context.Context, user domain.UserID, room domain.RoomID) bool {
	c.mu.RLock()
	id, ok := c.awaiting[user]
	c.mu.RUnlock()
	if !ok {
		return false
	}
	p, err := c.live1(id)
	if err != nil || p.State != StateAwaitingMove {
		return false
	}
	logger := c.log.With().Str("proposal", string(id)).Str("user", string(user)).Logger()
	if cur, ok := c.platform.CurrentRoom(user); !ok || cur != room {
		logger.Debug().Str("event_room", string(room)).Msg("stale connect event, user moved on")
		return false
	}

	if p.TargetRoomID == room {
		c.resolve(p)
		logger.Info().Msg("mover joined target directly")
		return false
	}
	target, other := p.TargetRoomID, p.Other()
	if err := c.platform.Relocate(ctx, user, target); err != nil {
		logger.Warn().Err(err).Msg("auto-move relocation")
		return false
	}
	if p, err := c.live1(id); err == nil && p.State == StateAwaitingMove {
		c.resolve(p)
	}
	name := string(target)
	if r, ok := c.platform.Room(target); ok {
		name = string(r.Name)
	}
	who := string(user)
	if u, ok := c.platform.User(user); ok {
		who = u.DisplayName()
	}
	if err := c.notifier.Outcome(ctx, user, core.Outcome{ProposalID: string(id), Text: "Moved you into " + name + "."}); err != nil {
		logger.Warn().Err(err).Msg("notify mover")
	}
	c.notifier.Direct(ctx, other, fmt.Sprintf("%s was moved into %s.", who, name))
	logger.Info().Str("room", string(target)).Msg("auto-moved")
	return true
}

// AwaitingMove reports whether user has an accepted proposal waiting for
// them to connect.
func (c *Coordinator) AwaitingMove(user domain.UserID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.awaiting[user]
	return ok
}

// RoomDeleted drops every proposal that targets roomID.
func (c *Coordinator) RoomDeleted(ctx context.Context, roomID domain.RoomID) {
	c.mu.RLock()
	var doomed []*Proposal
	for _, p := range c.live {
		if p.TargetRoomID == roomID {
			doomed = append(doomed, p)
		}
	}
	c.mu.RUnlock()

	for _, p := range doomed {
		wasPending := p.State == StatePending
		c.resolve(p)
		if wasPending {
			if err := c.notifier.Outcome(ctx, p.CounterpartyID, core.Outcome{ProposalID: string(p.ID), Text: "The room was closed."}); err != nil {
				c.log.Warn().Err(err).Str("proposal", string(p.ID)).Msg("notify counterparty")
			}
		}
		c.log.Info().Str("proposal", string(p.ID)).Str("room", string(roomID)).Msg("proposal dropped with its room")
	}
}

// Get returns a copy of a live proposal.
func (c *Coordinator) Get(id ID) (Proposal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.live[id]
	if !ok {
		return Proposal{}, false
	}
	return *p, true
}

// List returns copies of all live proposals, oldest first.
func (c *Coordinator) List() []Proposal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Proposal, 0, len(c.live))
	for _, p := range c.live {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ForUser lists live proposals where user is either party.
func (c *Coordinator) ForUser(user domain.UserID) []Proposal {
	var out []Proposal
	for _, p := range c.List() {
		if p.ProposerID == user || p.CounterpartyID == user {
			out = append(out, p)
		}
	}
	return out
}

func (c *Coordinator) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.live)
}

func (c *Coordinator) hasPending(key pairKey) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.pending[key]
	return ok
}

func (c *Coordinator) live1(id ID) (*Proposal, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.live[id]
	if !ok {
		return nil, core.Reject(core.RejectNotFound, "That request no longer exists.")
	}
	return p, nil
}

func (c *Coordinator) answerable(id ID, actor domain.UserID) (*Proposal, error) {
	p, err := c.live1(id)
	if err != nil {
		return nil, err
	}
	if p.State != StatePending {
		return nil, core.Reject(core.RejectNotPending, "That request was already answered.")
	}
	if !c.mayAnswer(p, actor) {
		return nil, core.Reject(core.RejectUnauthorized, "That request isn't yours to answer.")
	}
	return p, nil
}

func (c *Coordinator) stopExpiry(p *Proposal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.expiry != nil {
		p.expiry.Stop()
		p.expiry = nil
	}
	key := pairKey{proposer: p.ProposerID, room: p.TargetRoomID}
	if c.pending[key] == p.ID {
		delete(c.pending, key)
	}
}

// awaitMove parks p until the mover's next connection. A mover holds at
// most one such proposal; an older one is superseded.
func (c *Coordinator) awaitMove(p *Proposal) {
	mover := p.Mover()
	c.mu.RLock()
	prevID, hadPrev := c.awaiting[mover]
	prev := c.live[prevID]
	c.mu.RUnlock()
	if hadPrev && prevID != p.ID && prev != nil {
		c.resolve(prev)
		c.log.Info().Str("proposal", string(prevID)).Str("by", string(p.ID)).Msg("awaiting proposal superseded")
	}

	id := p.ID
	var timer *clock.Timer
	timer = c.clock.AfterFunc(c.cfg.AutoMoveWindow, func() {
		c.loop.Post(func(context.Context) { c.autoMoveDue(id, timer) })
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	p.State = StateAwaitingMove
	p.autoMove = timer
	c.awaiting[mover] = id
}

// resolve removes p from every index and stops its timers.
func (c *Coordinator) resolve(p *Proposal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.State == StateResolved {
		c.log.Error().Err(core.Invariant("proposal %s resolved twice", p.ID)).Msg("resolve")
		return
	}
	if p.expiry != nil {
		p.expiry.Stop()
		p.expiry = nil
	}
	if p.autoMove != nil {
		p.autoMove.Stop()
		p.autoMove = nil
	}
	key := pairKey{proposer: p.ProposerID, room: p.TargetRoomID}
	if c.pending[key] == p.ID {
		delete(c.pending, key)
	}
	if c.awaiting[p.Mover()] == p.ID {
		delete(c.awaiting, p.Mover())
	}
	delete(c.live, p.ID)
	p.State = StateResolved
}

// tell replaces the counterparty's prompt with an outcome and drops the
// proposer a line. Delivery failures are logged and otherwise ignored.
func (c *Coordinator) tell(ctx context.Context, p *Proposal, toCounterparty, toProposer string) {
	if err := c.notifier.Outcome(ctx, p.CounterpartyID, core.Outcome{ProposalID: string(p.ID), Text: toCounterparty}); err != nil {
		c.log.Warn().Err(err).Str("proposal", string(p.ID)).Msg("render outcome")
	}
	c.notifier.Direct(ctx, p.ProposerID, toProposer)
}

func promptText(kind Kind, from string, room domain.RoomName) string {
	if kind == KindJoinRequest {
		return fmt.Sprintf("%s asks to join %s.", from, room)
	}
	return fmt.Sprintf("%s invited you to %s.", from, room)
}
