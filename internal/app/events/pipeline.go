package events

import (
	"context"
	"sync"

	"github.com/dkeye/tempvoice/internal/domain"
	"github.com/rs/zerolog/log"
)

// Handler reacts to one membership change. Handlers must be idempotent and
// must not assume anything about the order of other handlers.
type Handler interface {
	Name() string
	OnMembershipChange(ctx context.Context, ev domain.MembershipChange)
}

// Pipeline fans every published membership change out to its handlers, in
// subscription order, as a single job on the loop.
type Pipeline struct {
	loop *Loop

	mu       sync.RWMutex
	handlers []Handler
}

func NewPipeline(loop *Loop) *Pipeline {
	return &Pipeline{loop: loop}
}

func (p *Pipeline) Subscribe(h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, h)
	log.Info().Str("module", "app.events").Str("handler", h.Name()).Msg("membership handler subscribed")
}

// Publish queues ev. Safe to call from any goroutine, including loop jobs.
func (p *Pipeline) Publish(ev domain.MembershipChange) {
	if ev.Previous == ev.Current {
		return
	}
	if !p.loop.Post(func(ctx context.Context) { p.dispatch(ctx, ev) }) {
		log.Warn().Str("module", "app.events").Str("user", string(ev.UserID)).Msg("membership change dropped, loop closed")
	}
}

func (p *Pipeline) dispatch(ctx context.Context, ev domain.MembershipChange) {
	p.mu.RLock()
	handlers := append([]Handler(nil), p.handlers...)
	p.mu.RUnlock()

	log.Debug().
		Str("module", "app.events").
		Str("user", string(ev.UserID)).
		Str("from", string(ev.Previous)).
		Str("to", string(ev.Current)).
		Msg("membership change")
	for _, h := range handlers {
		p.call(ctx, h, ev)
	}
}

func (p *Pipeline) call(ctx context.Context, h Handler, ev domain.MembershipChange) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("module", "app.events").
				Str("handler", h.Name()).
				Str("user", string(ev.UserID)).
				Interface("panic", r).
				Msg("membership handler panicked")
		}
	}()
	h.OnMembershipChange(ctx, ev)
}
