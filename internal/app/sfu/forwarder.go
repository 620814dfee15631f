package sfu

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/dkeye/tempvoice/internal/core"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// Forwarder fans one speaker's packets out to every live subscription.
type Forwarder struct {
	Src *webrtc.TrackRemote

	mu    sync.RWMutex
	subs  map[core.SessionID]*Subscription
	muted atomic.Bool

	cancel context.CancelFunc
}

func newForwarder(src *webrtc.TrackRemote, cancel context.CancelFunc) *Forwarder {
	return &Forwarder{
		Src:    src,
		subs:   make(map[core.SessionID]*Subscription),
		cancel: cancel,
	}
}

func (f *Forwarder) run(ctx context.Context, logger zerolog.Logger) {
	defer f.closeAll()
	for {
		if ctx.Err() != nil {
			logger.Info().Msg("forwarder stopped")
			return
		}
		pkt, _, err := f.Src.ReadRTP()
		if err != nil {
			logger.Info().Err(err).Msg("source ended")
			return
		}
		f.forward(pkt, logger)
	}
}

func (f *Forwarder) forward(pkt *rtp.Packet, logger zerolog.Logger) int {
	if f.muted.Load() {
		return 0
	}
	f.mu.RLock()
	snapshot := maps.Clone(f.subs)
	f.mu.RUnlock()

	sent := 0
	var closed []core.SessionID
	for dst, sub := range snapshot {
		switch sub.State() {
		case SubClosed:
			closed = append(closed, dst)
		case SubPaused:
		case SubLive:
			if err := sub.Track.WriteRTP(pkt); err != nil {
				logger.Warn().Err(err).Str("dst_sid", string(dst)).Msg("write RTP, closing subscription")
				sub.Close()
				closed = append(closed, dst)
				continue
			}
			sent++
		}
	}
	if len(closed) > 0 {
		f.prune(closed)
	}
	return sent
}

func (f *Forwarder) prune(ids []core.SessionID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		if sub, ok := f.subs[id]; ok && sub.State() == SubClosed {
			delete(f.subs, id)
		}
	}
}

func (f *Forwarder) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs {
		sub.Close()
	}
}

func (f *Forwarder) add(dst core.SessionID, sub *Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if old, ok := f.subs[dst]; ok {
		old.Close()
	}
	f.subs[dst] = sub
}

func (f *Forwarder) get(dst core.SessionID) (*Subscription, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	sub, ok := f.subs[dst]
	return sub, ok
}

func (f *Forwarder) listeners() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
