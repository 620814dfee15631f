package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// MediaConnection is a member's WebRTC peer. The browser always offers and
// the server always answers.
type MediaConnection interface {
	// Start wires state callbacks. Cancelling ctx tears the peer down.
	Start(ctx context.Context) error
	Close()
	IsClosed() bool
	AddICECandidate(webrtc.ICECandidateInit) error
	ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack fires per inbound track; ctx ends with the peer.
	OnTrack(func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))
	AddLocalTrack(track *webrtc.TrackLocalStaticRTP) (*webrtc.RTPSender, error)
	// OnClosed runs once after Close.
	OnClosed(func())
}
