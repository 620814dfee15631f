package signal

import (
	"context"

	"github.com/dkeye/tempvoice/internal/core"
)

const msgSlowDown = "You're sending requests too fast, wait a moment."

func (ctl *Controller) handleInvite(ctx context.Context, sid core.SessionID, c *Conn, data []byte) {
	var p struct {
		User string `json:"user"`
		Room string `json:"room,omitempty"`
	}
	if !decode(c, data, &p) {
		return
	}
	if !ctl.limiter.Allow(sid.UserID()) {
		sendNotice(c, msgSlowDown)
		return
	}
	sendNotice(c, ctl.Commands.RequestCreateInvitation(ctx, sid.UserID(), p.User, p.Room))
}

func (ctl *Controller) handleRequestJoin(ctx context.Context, sid core.SessionID, c *Conn, data []byte) {
	var p struct {
		User string `json:"user"`
	}
	if !decode(c, data, &p) {
		return
	}
	if !ctl.limiter.Allow(sid.UserID()) {
		sendNotice(c, msgSlowDown)
		return
	}
	sendNotice(c, ctl.Commands.RequestCreateJoinRequest(ctx, sid.UserID(), p.User))
}

func (ctl *Controller) handleRespond(ctx context.Context, sid core.SessionID, c *Conn, data []byte) {
	var p struct {
		Proposal string      `json:"proposal"`
		Choice   core.Choice `json:"choice"`
	}
	if !decode(c, data, &p) {
		return
	}
	sendNotice(c, ctl.Commands.Respond(ctx, p.Proposal, sid.UserID(), p.Choice))
}
