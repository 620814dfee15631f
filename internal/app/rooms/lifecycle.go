package rooms

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/tempvoice/internal/app/events"
	"github.com/dkeye/tempvoice/internal/clock"
	"github.com/dkeye/tempvoice/internal/core"
	"github.com/dkeye/tempvoice/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const maxRoomNameLen = 64

type Config struct {
	TriggerRoomID domain.RoomID
	// WaitingRoomID, when set and sharing ParentID with the trigger room,
	// makes new rooms slot in between the two.
	WaitingRoomID domain.RoomID
	ParentID      domain.RoomID
	NameFormat    string
	// DeletionDelay keeps an empty room around for a grace period. Zero
	// deletes on the spot.
	DeletionDelay time.Duration
}

// Observer is told after a room has been torn down.
type Observer interface {
	RoomDeleted(ctx context.Context, roomID domain.RoomID)
}

// MoveClaims reports users whose next connection is already promised to
// another room, such as the mover of an accepted invitation.
type MoveClaims interface {
	AwaitingMove(user domain.UserID) bool
}

// Lifecycle reacts to membership changes: it provisions a room when a user
// enters the trigger room and deletes it once its creator leaves or it runs
// empty. All methods run on the event loop.
type Lifecycle struct {
	cfg       Config
	registry  *Registry
	platform  core.Platform
	authority core.Authority
	notifier  core.Notifier
	clock     clock.Clock
	loop      *events.Loop
	observers []Observer
	claims    MoveClaims
	log       zerolog.Logger
}

func NewLifecycle(
	cfg Config,
	registry *Registry,
	platform core.Platform,
	authority core.Authority,
	notifier core.Notifier,
	clk clock.Clock,
	loop *events.Loop,
) *Lifecycle {
	if cfg.NameFormat == "" {
		cfg.NameFormat = "%s's room"
	}
	return &Lifecycle{
		cfg:       cfg,
		registry:  registry,
		platform:  platform,
		authority: authority,
		notifier:  notifier,
		clock:     clk,
		loop:      loop,
		log:       log.With().Str("module", "app.rooms").Logger(),
	}
}

func (l *Lifecycle) AddObserver(o Observer) { l.observers = append(l.observers, o) }

// SetMoveClaims makes trigger joins by a claimed user skip provisioning.
func (l *Lifecycle) SetMoveClaims(c MoveClaims) { l.claims = c }

func (l *Lifecycle) Name() string { return "rooms.lifecycle" }

func (l *Lifecycle) OnMembershipChange(ctx context.Context, ev domain.MembershipChange) {
	if ev.Left() {
		l.memberLeft(ctx, ev.UserID, ev.Previous)
	}
	if !ev.Connected() {
		return
	}
	if l.cfg.TriggerRoomID != "" && ev.Current == l.cfg.TriggerRoomID {
		l.provision(ctx, ev.UserID)
		return
	}
	l.memberJoined(ev.Current)
}

func (l *Lifecycle) provision(ctx context.Context, uid domain.UserID) {
	logger := l.log.With().Str("user", string(uid)).Logger()

	user, ok := l.platform.User(uid)
	if !ok {
		logger.Warn().Msg("trigger join from unknown user")
		return
	}
	// The event may be stale: the user could have moved on already.
	if cur, ok := l.platform.CurrentRoom(uid); !ok || cur != l.cfg.TriggerRoomID {
		logger.Debug().Msg("user left the trigger room before provisioning")
		return
	}
	if l.claims != nil && l.claims.AwaitingMove(uid) {
		logger.Debug().Msg("user has an accepted move pending, not provisioning")
		return
	}
	if !l.authority.IsEligibleForTriggerRoom(uid) {
		logger.Info().Msg("user not eligible for a room, disconnecting")
		if err := l.platform.Disconnect(ctx, uid); err != nil {
			logger.Warn().Err(err).Msg("disconnect ineligible user")
		}
		l.notifier.Direct(ctx, uid, "You don't have a role that lets you create a voice room.")
		return
	}

	req := core.RoomRequest{
		Name:     roomName(l.cfg.NameFormat, user.DisplayName()),
		ParentID: l.cfg.ParentID,
		Kind:     domain.RoomEphemeral,
		Position: l.position(),
		Everyone: domain.Overwrite{Deny: domain.PermConnect},
		Overwrites: map[domain.UserID]domain.Overwrite{
			uid:                 {Allow: domain.PermAll},
			domain.ServiceActor: {Allow: domain.PermManage | domain.PermMove | domain.PermConnect | domain.PermView},
		},
	}
	roomID, err := l.platform.CreateRoom(ctx, req)
	if err != nil {
		logger.Error().Err(err).Msg("create room")
		l.notifier.Direct(ctx, uid, "Something went wrong while creating your room.")
		return
	}
	logger = logger.With().Str("room", string(roomID)).Logger()

	if err := l.registry.Register(roomID, uid, l.clock.Now()); err != nil {
		logger.Error().Err(err).Msg("register room")
		return
	}
	if err := l.platform.Relocate(ctx, uid, roomID); err != nil {
		logger.Warn().Err(err).Msg("move creator into new room")
		l.teardown(ctx, roomID, "creator never arrived")
		return
	}
	logger.Info().Str("name", string(req.Name)).Int("position", req.Position).Msg("room provisioned")
}

// position returns the sibling index right below the trigger room, or -1
// when the layout does not call for it.
func (l *Lifecycle) position() int {
	if l.cfg.WaitingRoomID == "" {
		return -1
	}
	trigger, ok := l.platform.Room(l.cfg.TriggerRoomID)
	if !ok || trigger.ParentID != l.cfg.ParentID {
		return -1
	}
	waiting, ok := l.platform.Room(l.cfg.WaitingRoomID)
	if !ok || waiting.ParentID != l.cfg.ParentID {
		return -1
	}
	return trigger.Position + 1
}

func (l *Lifecycle) memberLeft(ctx context.Context, uid domain.UserID, roomID domain.RoomID) {
	rec, ok := l.registry.Get(roomID)
	if !ok {
		return
	}
	if rec.CreatorID == uid {
		l.teardown(ctx, roomID, "creator left")
		return
	}

	if err := l.platform.ClearOverwrite(ctx, roomID, uid); err != nil {
		l.log.Warn().Err(err).Str("room", string(roomID)).Str("user", string(uid)).Msg("revoke connect grant")
	}
	if _, ok := l.registry.Get(roomID); !ok {
		return
	}
	if len(l.platform.Occupants(roomID)) > 0 {
		return
	}
	if l.cfg.DeletionDelay <= 0 {
		l.teardown(ctx, roomID, "room empty")
		return
	}
	l.scheduleDeletion(roomID)
}

func (l *Lifecycle) memberJoined(roomID domain.RoomID) {
	h, ok := l.registry.DisarmPendingDeletion(roomID)
	if !ok {
		return
	}
	h.Stop()
	l.log.Info().Str("room", string(roomID)).Msg("room re-occupied, deletion cancelled")
}

func (l *Lifecycle) scheduleDeletion(roomID domain.RoomID) {
	if rec, ok := l.registry.Get(roomID); !ok || rec.PendingDeletion != nil {
		return
	}
	var timer *clock.Timer
	timer = l.clock.AfterFunc(l.cfg.DeletionDelay, func() {
		l.loop.Post(func(ctx context.Context) { l.deletionDue(ctx, roomID, timer) })
	})
	if err := l.registry.ArmPendingDeletion(roomID, timer); err != nil {
		timer.Stop()
		l.log.Error().Err(err).Str("room", string(roomID)).Msg("arm pending deletion")
		return
	}
	l.log.Info().Str("room", string(roomID)).Dur("delay", l.cfg.DeletionDelay).Msg("room empty, deletion scheduled")
}

func (l *Lifecycle) deletionDue(ctx context.Context, roomID domain.RoomID, h Handle) {
	rec, ok := l.registry.Get(roomID)
	if !ok || rec.PendingDeletion != h {
		return
	}
	l.registry.DisarmPendingDeletion(roomID)
	if len(l.platform.Occupants(roomID)) > 0 {
		return
	}
	l.teardown(ctx, roomID, "grace period over")
}

// teardown retires the record before touching the platform so that events
// arriving for the id while the delete is in flight find nothing.
func (l *Lifecycle) teardown(ctx context.Context, roomID domain.RoomID, reason string) {
	rec, ok := l.registry.Unregister(roomID)
	if !ok {
		return
	}
	if rec.PendingDeletion != nil {
		rec.PendingDeletion.Stop()
	}
	if err := l.platform.DeleteRoom(ctx, roomID); err != nil {
		l.log.Error().Err(err).Str("room", string(roomID)).Msg("delete room")
	}
	for _, o := range l.observers {
		o.RoomDeleted(ctx, roomID)
	}
	l.log.Info().Str("room", string(roomID)).Str("creator", string(rec.CreatorID)).Str("reason", reason).Msg("room deleted")
}

// Shutdown deletes every room this process provisioned.
func (l *Lifecycle) Shutdown(ctx context.Context) {
	for _, rec := range l.registry.List() {
		l.teardown(ctx, rec.RoomID, "shutdown")
	}
}

func roomName(format, display string) domain.RoomName {
	name := []rune(fmt.Sprintf(format, display))
	if len(name) > maxRoomNameLen {
		name = name[:maxRoomNameLen]
	}
	return domain.RoomName(name)
}
