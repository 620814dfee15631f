package proposals

import (
	"context"

	"github.com/dkeye/tempvoice/internal/app/rooms"
	"github.com/dkeye/tempvoice/internal/domain"
)

// TriggerFeed consumes accepted proposals when their mover connects to a
// room other than the target.
type TriggerFeed struct {
	coord *Coordinator
}

func NewTriggerFeed(coord *Coordinator) *TriggerFeed {
	return &TriggerFeed{coord: coord}
}

func (f *TriggerFeed) Name() string { return "proposals.trigger_feed" }

func (f *TriggerFeed) OnMembershipChange(ctx context.Context, ev domain.MembershipChange) {
	if !ev.Connected() {
		return
	}
	f.coord.ConsumeOnConnect(ctx, ev.UserID, ev.Current)
}

var _ rooms.MoveClaims = (*Coordinator)(nil)
