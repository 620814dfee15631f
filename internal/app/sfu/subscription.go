package sfu

import (
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

type SubState int32

const (
	SubLive SubState = iota
	SubPaused
	SubClosed
)

func (s SubState) String() string {
	switch s {
	case SubLive:
		return "live"
	case SubPaused:
		return "paused"
	default:
		return "closed"
	}
}

// Subscription is one listener's copy of a speaker's track.
type Subscription struct {
	Track  *webrtc.TrackLocalStaticRTP
	Sender *webrtc.RTPSender
	state  atomic.Int32
}

func NewSubscription(track *webrtc.TrackLocalStaticRTP, sender *webrtc.RTPSender) *Subscription {
	return &Subscription{Track: track, Sender: sender}
}

func (s *Subscription) State() SubState { return SubState(s.state.Load()) }

// Pause stops forwarding without tearing the track down. No-op once closed.
func (s *Subscription) Pause() { s.state.CompareAndSwap(int32(SubLive), int32(SubPaused)) }

func (s *Subscription) Resume() { s.state.CompareAndSwap(int32(SubPaused), int32(SubLive)) }

// Close is final; the forwarder drops closed subscriptions on its next packet.
func (s *Subscription) Close() { s.state.Store(int32(SubClosed)) }
