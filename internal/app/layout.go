package app

import (
	"github.com/dkeye/tempvoice/internal/core"
	"github.com/dkeye/tempvoice/internal/domain"
)

// LayoutConfig names the fixed rooms created at startup. Empty Trigger or
// Waiting skips that room.
type LayoutConfig struct {
	Category string   `mapstructure:"category"`
	Static   []string `mapstructure:"static"`
	Trigger  string   `mapstructure:"trigger"`
	Waiting  string   `mapstructure:"waiting"`
}

// Layout holds the ids of the seeded rooms.
type Layout struct {
	CategoryID domain.RoomID
	StaticIDs  []domain.RoomID
	TriggerID  domain.RoomID
	WaitingID  domain.RoomID
}

// SeedLayout creates the category and its fixed rooms in order: statics,
// then the trigger room, then the waiting room.
func SeedLayout(m core.RoomManager, cfg LayoutConfig) Layout {
	var l Layout
	name := cfg.Category
	if name == "" {
		name = "Voice"
	}
	l.CategoryID = m.CreateRoom(domain.Room{Name: domain.RoomName(name), Kind: domain.RoomCategory}, -1).Room().ID

	add := func(name string, kind domain.RoomKind) domain.RoomID {
		r := domain.Room{Name: domain.RoomName(name), ParentID: l.CategoryID, Kind: kind}
		return m.CreateRoom(r, -1).Room().ID
	}
	for _, s := range cfg.Static {
		l.StaticIDs = append(l.StaticIDs, add(s, domain.RoomStatic))
	}
	if cfg.Trigger != "" {
		l.TriggerID = add(cfg.Trigger, domain.RoomTrigger)
	}
	if cfg.Waiting != "" {
		l.WaitingID = add(cfg.Waiting, domain.RoomWaiting)
	}
	return l
}
