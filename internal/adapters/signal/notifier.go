package signal

import (
	"context"

	"github.com/dkeye/tempvoice/internal/core"
	"github.com/dkeye/tempvoice/internal/domain"
	"github.com/rs/zerolog/log"
)

// Controller renders prompts, outcomes and notices on the recipient's
// signal socket. A user without one cannot be prompted.
var _ core.Notifier = (*Controller)(nil)

func (ctl *Controller) Prompt(_ context.Context, to domain.UserID, p core.Prompt) error {
	msg := struct {
		Type string `json:"type"`
		core.Prompt
	}{"prompt", p}
	return ctl.deliver("prompt", to, msg)
}

func (ctl *Controller) Outcome(_ context.Context, to domain.UserID, o core.Outcome) error {
	msg := struct {
		Type string `json:"type"`
		core.Outcome
	}{"outcome", o}
	return ctl.deliver("outcome", to, msg)
}

func (ctl *Controller) Direct(_ context.Context, to domain.UserID, text string) {
	if err := ctl.deliver("notice", to, map[string]string{"type": "notice", "text": text}); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("user", string(to)).Msg("notice dropped")
	}
}

func (ctl *Controller) deliver(op string, to domain.UserID, v any) error {
	sess, ok := ctl.Orch.Registry.GetSession(core.SessionOf(to))
	if !ok {
		return core.PlatformFailure(op, core.ErrNotConnected)
	}
	if err := sendJSON(sess.Signal(), v); err != nil {
		return core.PlatformFailure(op, err)
	}
	return nil
}
