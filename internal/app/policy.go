package app

import (
	"sync"

	"github.com/dkeye/tempvoice/internal/core"
	"github.com/dkeye/tempvoice/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

// Policy decides what happens to a member whose signal queue is full.
type Policy interface {
	OnBackPressure(room core.RoomService, member core.MemberSession) BackpressureAction
	OnDelivered(member core.MemberSession)
}

// StrikePolicy drops frames for a slow member and kicks them once they
// have missed Limit frames in a row.
type StrikePolicy struct {
	Limit int

	mu      sync.Mutex
	strikes map[domain.UserID]int
}

func NewStrikePolicy(limit int) *StrikePolicy {
	if limit <= 0 {
		limit = 1
	}
	return &StrikePolicy{Limit: limit, strikes: make(map[domain.UserID]int)}
}

func (p *StrikePolicy) OnBackPressure(_ core.RoomService, member core.MemberSession) BackpressureAction {
	id := member.Meta().User.ID
	p.mu.Lock()
	defer p.mu.Unlock()
	p.strikes[id]++
	if p.strikes[id] >= p.Limit {
		delete(p.strikes, id)
		return KickMember
	}
	return DropFrame
}

func (p *StrikePolicy) OnDelivered(member core.MemberSession) {
	id := member.Meta().User.ID
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.strikes, id)
}
