// Package rtc wraps a pion PeerConnection as a core.MediaConnection.
package rtc

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dkeye/tempvoice/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config builds a PeerConnection configuration from STUN/TURN urls. An
// empty list falls back to a public STUN server.
func Config(iceURLs []string) webrtc.Configuration {
	if len(iceURLs) == 0 {
		iceURLs = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{ICEServers: []webrtc.ICEServer{{URLs: iceURLs}}}
}

type PeerConn struct {
	pc  *webrtc.PeerConnection
	log zerolog.Logger

	closed    atomic.Bool
	closeOnce sync.Once
	cancel    context.CancelFunc

	mu       sync.RWMutex
	onICE    func(webrtc.ICECandidateInit)
	onTrack  func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
	onClosed func()
}

func NewPeerConn(cfg webrtc.Configuration, sid core.SessionID) (*PeerConn, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &PeerConn{
		pc:  pc,
		log: log.With().Str("module", "rtc").Str("sid", string(sid)).Logger(),
	}, nil
}

// Start wires the PeerConnection callbacks. Track contexts end when the ICE
// transport drops or Close is called.
func (c *PeerConn) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.log.Debug().Str("ice_state", s.String()).Msg("ICE state")
		switch s {
		case webrtc.ICEConnectionStateDisconnected, webrtc.ICEConnectionStateFailed, webrtc.ICEConnectionStateClosed:
			cancel()
		}
	})
	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.log.Info().Str("peer_state", s.String()).Msg("peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			c.Close()
		}
	})
	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		c.mu.RLock()
		fn := c.onICE
		c.mu.RUnlock()
		if cand != nil && fn != nil {
			fn(cand.ToJSON())
		}
	})
	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		c.log.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("remote track")
		c.mu.RLock()
		fn := c.onTrack
		c.mu.RUnlock()
		if fn != nil {
			fn(ctx, track, receiver)
		}
	})
	return nil
}

func (c *PeerConn) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}
	gathered := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	<-gathered
	return c.pc.LocalDescription(), nil
}

// Close tears the connection down once and then runs the OnClosed callback.
func (c *PeerConn) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if c.cancel != nil {
			c.cancel()
		}
		if err := c.pc.Close(); err != nil {
			c.log.Error().Err(err).Msg("close")
		} else {
			c.log.Info().Msg("closed")
		}
		c.mu.RLock()
		fn := c.onClosed
		c.mu.RUnlock()
		if fn != nil {
			fn()
		}
	})
}

func (c *PeerConn) IsClosed() bool { return c.closed.Load() }

func (c *PeerConn) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *PeerConn) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	c.onICE = fn
	c.mu.Unlock()
}

func (c *PeerConn) OnTrack(fn func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

func (c *PeerConn) OnClosed(fn func()) {
	c.mu.Lock()
	c.onClosed = fn
	c.mu.Unlock()
}

func (c *PeerConn) AddLocalTrack(track *webrtc.TrackLocalStaticRTP) (*webrtc.RTPSender, error) {
	return c.pc.AddTrack(track)
}

var _ core.MediaConnection = (*PeerConn)(nil)
