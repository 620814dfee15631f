package sfu

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/tempvoice/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrNoSource = errors.New("speaker has no published track")

// Hub owns one Forwarder per speaking session.
type Hub struct {
	mu         sync.RWMutex
	forwarders map[core.SessionID]*Forwarder
}

func NewHub() *Hub {
	return &Hub{forwarders: make(map[core.SessionID]*Forwarder)}
}

// Publish starts forwarding speaker's track, replacing any previous one.
func (h *Hub) Publish(ctx context.Context, speaker core.SessionID, track *webrtc.TrackRemote) {
	logger := log.With().Str("module", "sfu").Str("sid", string(speaker)).Logger()

	fctx, cancel := context.WithCancel(ctx)
	fw := newForwarder(track, cancel)

	h.mu.Lock()
	if old, ok := h.forwarders[speaker]; ok {
		logger.Info().Msg("replacing forwarder")
		old.cancel()
		old.closeAll()
	}
	h.forwarders[speaker] = fw
	h.mu.Unlock()

	logger.Info().Str("track_id", track.ID()).Msg("forwarder started")
	go fw.run(fctx, logger)
}

// Unpublish stops speaker's forwarder and closes all its subscriptions.
func (h *Hub) Unpublish(speaker core.SessionID) {
	h.mu.Lock()
	fw, ok := h.forwarders[speaker]
	delete(h.forwarders, speaker)
	h.mu.Unlock()
	if !ok {
		return
	}
	fw.cancel()
	fw.closeAll()
}

// Subscribe adds a copy of speaker's track to listener's peer connection.
func (h *Hub) Subscribe(speaker, listener core.SessionID, mc core.MediaConnection) error {
	h.mu.RLock()
	fw, ok := h.forwarders[speaker]
	h.mu.RUnlock()
	if !ok {
		return ErrNoSource
	}
	if sub, ok := fw.get(listener); ok && sub.State() != SubClosed {
		sub.Resume()
		return nil
	}

	src := fw.Src
	local, err := webrtc.NewTrackLocalStaticRTP(src.Codec().RTPCodecCapability, src.ID(), string(speaker))
	if err != nil {
		return err
	}
	sender, err := mc.AddLocalTrack(local)
	if err != nil {
		return err
	}
	go drainRTCP(sender)

	fw.add(listener, NewSubscription(local, sender))
	log.Info().Str("module", "sfu").Str("sid", string(speaker)).Str("dst_sid", string(listener)).Msg("subscribed")
	return nil
}

// Unsubscribe closes listener's copy of speaker's track.
func (h *Hub) Unsubscribe(speaker, listener core.SessionID) {
	h.mu.RLock()
	fw, ok := h.forwarders[speaker]
	h.mu.RUnlock()
	if !ok {
		return
	}
	if sub, ok := fw.get(listener); ok {
		sub.Close()
	}
}

// Mute stops forwarding speaker's packets while keeping every subscription.
func (h *Hub) Mute(speaker core.SessionID, muted bool) bool {
	h.mu.RLock()
	fw, ok := h.forwarders[speaker]
	h.mu.RUnlock()
	if ok {
		fw.muted.Store(muted)
	}
	return ok
}

func (h *Hub) Publishing(speaker core.SessionID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.forwarders[speaker]
	return ok
}

// Listeners counts speaker's subscriptions, closed ones not yet pruned
// included.
func (h *Hub) Listeners(speaker core.SessionID) int {
	h.mu.RLock()
	fw, ok := h.forwarders[speaker]
	h.mu.RUnlock()
	if !ok {
		return 0
	}
	return fw.listeners()
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
