// Package orch is the voice server's room and membership authority. It
// moves sessions between rooms, keeps media subscriptions in step with
// membership, and reports every transition to its listeners exactly once.
package orch

import (
	"sync"

	"github.com/dkeye/tempvoice/internal/app"
	"github.com/dkeye/tempvoice/internal/app/sfu"
	"github.com/dkeye/tempvoice/internal/clock"
	"github.com/dkeye/tempvoice/internal/core"
	"github.com/dkeye/tempvoice/internal/domain"
	"github.com/rs/zerolog/log"
)

// Listener receives membership changes. Publish is called with the
// orchestrator's transition lock held and must not block or call back in.
type Listener interface {
	Publish(ev domain.MembershipChange)
}

type Orchestrator struct {
	Registry  *app.Registry
	Rooms     core.RoomManager
	Policy    app.Policy
	Media     *sfu.Hub
	Authority core.Authority
	Clock     clock.Clock

	mu        sync.Mutex
	listeners []Listener
}

// AddListener must be called before the server starts serving.
func (o *Orchestrator) AddListener(l Listener) {
	o.listeners = append(o.listeners, l)
}

func (o *Orchestrator) publish(ev domain.MembershipChange) {
	for _, l := range o.listeners {
		l.Publish(ev)
	}
}

// BroadcastRoom sends data to everyone in room except from and applies the
// backpressure policy to members that could not keep up.
func (o *Orchestrator) BroadcastRoom(roomID domain.RoomID, from core.SessionID, data core.Frame) {
	room, ok := o.Rooms.GetRoom(roomID)
	if !ok {
		return
	}
	res := room.Broadcast(from, data)
	if o.Policy == nil {
		return
	}
	for _, m := range res.Delivered {
		o.Policy.OnDelivered(m)
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			sid := core.SessionOf(slow.Meta().User.ID)
			log.Warn().Str("module", "orch").Str("sid", string(sid)).Str("room", string(roomID)).Msg("kicking slow member")
			o.KickBySID(sid)
		case app.MarkSlow, app.DropFrame, app.NoAction:
		}
	}
}
