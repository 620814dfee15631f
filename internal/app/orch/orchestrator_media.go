package orch

import (
	"context"

	"github.com/dkeye/tempvoice/internal/core"
	"github.com/dkeye/tempvoice/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) BindMediaHandlers(mc core.MediaConnection, sid core.SessionID) {
	mc.OnTrack(func(trackCtx context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		o.OnTrack(trackCtx, sid, track)
	})
	mc.OnClosed(func() { o.OnMediaDisconnect(sid) })
}

func (o *Orchestrator) OnMediaDisconnect(sid core.SessionID) {
	if o.Media != nil {
		o.Media.Unpublish(sid)
	}
}

func (o *Orchestrator) cleanupMedia(sid core.SessionID) {
	if o.Media != nil {
		o.Media.Unpublish(sid)
		if room, _, ok := o.Registry.RoomOf(sid); ok {
			o.detachMedia(sid, room)
		}
	}
	if sess, ok := o.Registry.GetSession(sid); ok {
		if mc := sess.Media(); mc != nil && !mc.IsClosed() {
			mc.Close()
		}
	}
}

// OnTrack starts forwarding sid's new track to everyone in its room.
func (o *Orchestrator) OnTrack(ctx context.Context, sid core.SessionID, track *webrtc.TrackRemote) {
	if o.Media == nil {
		return
	}
	if sess, ok := o.Registry.GetSession(sid); !ok || sess.Media() == nil {
		return
	}
	o.Media.Publish(ctx, sid, track)
	if sess, ok := o.Registry.GetSession(sid); ok && sess.Meta().Mute {
		o.Media.Mute(sid, true)
	}

	if _, _, ok := o.Registry.RoomOf(sid); !ok {
		log.Info().Str("module", "sfu").Str("sid", string(sid)).Msg("track published outside a room")
		return
	}
	for _, snap := range o.Registry.RoomMates(sid) {
		if mc := snap.Session.Media(); mc != nil {
			o.subscribe(sid, snap.SID, mc)
		}
	}
}

// OnMediaReady subscribes sid to every speaker already in its room.
func (o *Orchestrator) OnMediaReady(sid core.SessionID) {
	room, sess, ok := o.Registry.RoomOf(sid)
	if !ok || o.Media == nil {
		return
	}
	mc := sess.Media()
	if mc == nil {
		return
	}
	for _, snap := range o.Registry.MembersOfRoom(room) {
		if snap.SID != sid && o.Media.Publishing(snap.SID) {
			o.subscribe(snap.SID, sid, mc)
		}
	}
}

// SetMute toggles whether sid's audio reaches the room.
func (o *Orchestrator) SetMute(sid core.SessionID, muted bool) bool {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return false
	}
	sess.Meta().Mute = muted
	if o.Media != nil {
		o.Media.Mute(sid, muted)
	}
	return true
}

func (o *Orchestrator) attachMedia(sid core.SessionID, room domain.RoomID) {
	if o.Media == nil {
		return
	}
	o.OnMediaReady(sid)
	if !o.Media.Publishing(sid) {
		return
	}
	for _, snap := range o.Registry.MembersOfRoom(room) {
		if snap.SID == sid {
			continue
		}
		if mc := snap.Session.Media(); mc != nil {
			o.subscribe(sid, snap.SID, mc)
		}
	}
}

func (o *Orchestrator) detachMedia(sid core.SessionID, room domain.RoomID) {
	if o.Media == nil {
		return
	}
	for _, snap := range o.Registry.MembersOfRoom(room) {
		if snap.SID == sid {
			continue
		}
		o.Media.Unsubscribe(snap.SID, sid)
		o.Media.Unsubscribe(sid, snap.SID)
	}
}

func (o *Orchestrator) subscribe(speaker, listener core.SessionID, mc core.MediaConnection) {
	if err := o.Media.Subscribe(speaker, listener, mc); err != nil {
		log.Warn().Err(err).Str("module", "sfu").Str("sid", string(speaker)).Str("dst_sid", string(listener)).Msg("subscribe")
	}
}
