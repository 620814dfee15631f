package signal

import (
	"context"

	"github.com/dkeye/tempvoice/internal/adapters/rtc"
	"github.com/dkeye/tempvoice/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type candidateMsg struct {
	Type          string  `json:"type"`
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

func (ctl *Controller) handleOffer(ctx context.Context, sid core.SessionID, c *Conn, data []byte) {
	var p struct {
		SDP string `json:"sdp"`
	}
	if !decode(c, data, &p) {
		return
	}
	sess, ok := ctl.Orch.Registry.GetSession(sid)
	if !ok {
		return
	}
	// Renegotiation replaces the peer connection.
	if old := sess.Media(); old != nil && !old.IsClosed() {
		old.Close()
	}

	pc, err := rtc.NewPeerConn(ctl.opts.RTC, sid)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc new pc")
		sendError(c, "media_unavailable")
		return
	}
	pc.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		_ = sendJSON(c, candidateMsg{Type: "candidate", Candidate: ci.Candidate, SDPMid: ci.SDPMid, SDPMLineIndex: ci.SDPMLineIndex})
	})
	ctl.Orch.BindMediaHandlers(pc, sid)

	if err := pc.Start(ctx); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc start")
		pc.Close()
		return
	}
	answer, err := pc.ApplyOfferAndCreateAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: p.SDP})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc apply offer")
		pc.Close()
		sendError(c, "bad_offer")
		return
	}

	sess.UpdateMedia(pc)
	ctl.Orch.OnMediaReady(sid)

	_ = sendJSON(c, map[string]string{"type": "answer", "sdp": answer.SDP})
}

func (ctl *Controller) handleCandidate(sid core.SessionID, c *Conn, data []byte) {
	var p candidateMsg
	if !decode(c, data, &p) {
		return
	}
	sess, ok := ctl.Orch.Registry.GetSession(sid)
	if !ok {
		return
	}
	mc := sess.Media()
	if mc == nil {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("candidate before offer")
		return
	}
	if err := mc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     p.Candidate,
		SDPMid:        p.SDPMid,
		SDPMLineIndex: p.SDPMLineIndex,
	}); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("add ice candidate")
	}
}

func (ctl *Controller) handleMute(sid core.SessionID, c *Conn, data []byte) {
	var p struct {
		Muted bool `json:"muted"`
	}
	if !decode(c, data, &p) {
		return
	}
	if ctl.Orch.SetMute(sid, p.Muted) {
		ctl.announce(sid)
	}
}
