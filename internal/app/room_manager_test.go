package app

import (
	"slices"
	"testing"

	"github.com/dkeye/tempvoice/internal/domain"
)

func TestSeedLayoutOrder(t *testing.T) {
	m := NewRoomManager()
	l := SeedLayout(m, LayoutConfig{Category: "Voice", Static: []string{"Lobby"}, Trigger: "+ New room", Waiting: "Waiting"})

	var got []domain.RoomID
	for _, info := range m.List() {
		got = append(got, info.ID)
	}
	want := []domain.RoomID{l.CategoryID, l.StaticIDs[0], l.TriggerID, l.WaitingID}
	if !slices.Equal(got, want) {
		t.Fatalf("List() = %v, want %v", got, want)
	}
	trigger, _ := m.GetRoom(l.TriggerID)
	if trigger.Room().Kind != domain.RoomTrigger || trigger.Room().Position != 1 {
		t.Fatalf("trigger = %+v", trigger.Room())
	}
}

func TestCreateRoomShiftsSiblings(t *testing.T) {
	m := NewRoomManager()
	l := SeedLayout(m, LayoutConfig{Trigger: "trigger", Waiting: "waiting"})

	r := m.CreateRoom(domain.Room{Name: "new", ParentID: l.CategoryID, Kind: domain.RoomEphemeral}, 1)
	waiting, _ := m.GetRoom(l.WaitingID)
	if r.Room().Position != 1 || waiting.Room().Position != 2 {
		t.Fatalf("positions new=%d waiting=%d, want 1, 2", r.Room().Position, waiting.Room().Position)
	}
	if found, ok := m.FindByName("new"); !ok || found.Room().ID != r.Room().ID {
		t.Fatal("FindByName(new) did not find the room")
	}
	if !m.StopRoom(r.Room().ID) || m.StopRoom(r.Room().ID) {
		t.Fatal("StopRoom() should succeed exactly once")
	}
}
