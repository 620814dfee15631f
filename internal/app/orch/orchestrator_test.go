package orch

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/dkeye/tempvoice/internal/app"
	"github.com/dkeye/tempvoice/internal/app/apptest"
	"github.com/dkeye/tempvoice/internal/core"
	"github.com/dkeye/tempvoice/internal/domain"
)

type recorder struct {
	mu  sync.Mutex
	evs []domain.MembershipChange
}

func (r *recorder) Publish(ev domain.MembershipChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evs = append(r.evs, ev)
}

func (r *recorder) events() []domain.MembershipChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.evs)
}

type stubSignal struct {
	full bool
	sent int
}

func (s *stubSignal) TrySend(core.Frame) error {
	if s.full {
		return errors.New("queue full")
	}
	s.sent++
	return nil
}

func (s *stubSignal) Close() {}

type fixture struct {
	orch   *Orchestrator
	auth   *apptest.StaticAuthority
	events *recorder
	lobby  domain.RoomID
	closed domain.RoomID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	rooms := app.NewRoomManager()
	f := &fixture{
		auth:   apptest.NewStaticAuthority(),
		events: &recorder{},
	}
	f.orch = &Orchestrator{
		Registry:  app.NewRegistry(),
		Rooms:     rooms,
		Policy:    app.NewStrikePolicy(2),
		Authority: f.auth,
	}
	f.orch.AddListener(f.events)
	layout := app.SeedLayout(rooms, app.LayoutConfig{Category: "Voice", Static: []string{"Lobby", "Private"}})
	f.lobby, f.closed = layout.StaticIDs[0], layout.StaticIDs[1]
	priv, _ := rooms.GetRoom(f.closed)
	priv.SetEveryone(domain.Overwrite{Deny: domain.PermConnect})
	return f
}

func (f *fixture) connect(sid core.SessionID) *stubSignal {
	u, _ := f.orch.Registry.GetOrCreateUser(sid)
	sig := &stubSignal{}
	sess := core.NewMemberSession(domain.NewMember(u, apptest.Epoch)).UpdateSignal(sig)
	f.orch.Registry.BindSignal(sid, sess, nil)
	return sig
}

func TestJoinPublishesOneChangePerTransition(t *testing.T) {
	f := newFixture(t)
	f.connect("a")

	if err := f.orch.Join("a", f.lobby); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if err := f.orch.Join("a", f.lobby); err != nil {
		t.Fatalf("second Join() error = %v", err)
	}
	f.orch.Leave("a")
	f.orch.Leave("a")

	want := []domain.MembershipChange{
		{UserID: "a", Current: f.lobby},
		{UserID: "a", Previous: f.lobby},
	}
	if got := f.events.events(); !slices.Equal(got, want) {
		t.Fatalf("events = %+v, want %+v", got, want)
	}
}

func TestJoinHonoursPermissions(t *testing.T) {
	f := newFixture(t)
	f.connect("a")
	f.connect("b")
	f.connect("c")
	f.auth.Elevated["b"] = true
	f.auth.Excluded["c"] = true

	if err := f.orch.Join("a", f.closed); !errors.Is(err, core.ErrForbidden) {
		t.Fatalf("Join() error = %v, want forbidden", err)
	}
	if err := f.orch.Join("b", f.closed); err != nil {
		t.Fatalf("elevated Join() error = %v", err)
	}
	if err := f.orch.Join("c", f.lobby); !errors.Is(err, core.ErrForbidden) {
		t.Fatalf("excluded Join() error = %v, want forbidden", err)
	}

	ctx := context.Background()
	if err := f.orch.SetOverwrite(ctx, f.closed, "a", domain.Overwrite{Allow: domain.PermConnect}); err != nil {
		t.Fatalf("SetOverwrite() error = %v", err)
	}
	if err := f.orch.Join("a", f.closed); err != nil {
		t.Fatalf("Join() with grant error = %v", err)
	}
	if got := f.orch.Occupants(f.closed); !slices.Equal(got, []domain.UserID{"a", "b"}) {
		t.Fatalf("Occupants() = %v, want [a b]", got)
	}
}

func TestJoinCategoryFails(t *testing.T) {
	f := newFixture(t)
	f.connect("a")
	cat, _ := f.orch.Room(f.lobby)
	if err := f.orch.Join("a", cat.ParentID); !errors.Is(err, core.ErrRoomNotFound) {
		t.Fatalf("Join(category) error = %v, want not found", err)
	}
}

func TestRelocateRequiresConnection(t *testing.T) {
	f := newFixture(t)
	f.connect("a")
	ctx := context.Background()

	err := f.orch.Relocate(ctx, "a", f.closed)
	if !errors.Is(err, core.ErrPlatform) || !errors.Is(err, core.ErrNotConnected) {
		t.Fatalf("Relocate() error = %v, want platform not-connected", err)
	}

	if err := f.orch.Join("a", f.lobby); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if err := f.orch.Relocate(ctx, "a", f.closed); err != nil {
		t.Fatalf("Relocate() error = %v", err)
	}
	if cur, _ := f.orch.CurrentRoom("a"); cur != f.closed {
		t.Fatalf("CurrentRoom() = %q, want %q", cur, f.closed)
	}
	last := f.events.events()[1]
	if last.Previous != f.lobby || last.Current != f.closed {
		t.Fatalf("relocation event = %+v", last)
	}
}

func TestCreateAndDeleteRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	parent, _ := f.orch.Room(f.lobby)

	id, err := f.orch.CreateRoom(ctx, core.RoomRequest{
		Name:       "a's room",
		ParentID:   parent.ParentID,
		Kind:       domain.RoomEphemeral,
		Position:   1,
		Everyone:   domain.Overwrite{Deny: domain.PermConnect},
		Overwrites: map[domain.UserID]domain.Overwrite{"a": {Allow: domain.PermAll}},
	})
	if err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}
	var order []domain.RoomID
	for _, info := range f.orch.Rooms.List() {
		if info.ParentID == parent.ParentID {
			order = append(order, info.ID)
		}
	}
	if want := []domain.RoomID{f.lobby, id, f.closed}; !slices.Equal(order, want) {
		t.Fatalf("order = %v, want %v", order, want)
	}

	f.connect("a")
	if err := f.orch.Join("a", id); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if err := f.orch.DeleteRoom(ctx, id); err != nil {
		t.Fatalf("DeleteRoom() error = %v", err)
	}
	if _, ok := f.orch.CurrentRoom("a"); ok {
		t.Fatal("a still in deleted room")
	}
	if err := f.orch.DeleteRoom(ctx, id); !errors.Is(err, core.ErrRoomNotFound) {
		t.Fatalf("second DeleteRoom() error = %v, want not found", err)
	}
	if _, err := f.orch.CreateRoom(ctx, core.RoomRequest{Name: "x", ParentID: "missing"}); !errors.Is(err, core.ErrPlatform) {
		t.Fatalf("CreateRoom(missing parent) error = %v, want platform failure", err)
	}
}

func TestStaleDisconnectIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.connect("a")
	old, _ := f.orch.Registry.GetSession("a")
	f.connect("a")
	if err := f.orch.Join("a", f.lobby); err != nil {
		t.Fatalf("Join() error = %v", err)
	}

	f.orch.OnDisconnect("a", old)
	if cur, _ := f.orch.CurrentRoom("a"); cur != f.lobby {
		t.Fatalf("stale disconnect moved a out (room=%q)", cur)
	}

	cur, _ := f.orch.Registry.GetSession("a")
	f.orch.OnDisconnect("a", cur)
	if _, ok := f.orch.Registry.GetSession("a"); ok {
		t.Fatal("session still bound after disconnect")
	}
}

func TestSlowMemberIsKicked(t *testing.T) {
	f := newFixture(t)
	f.connect("a")
	slow := f.connect("b")
	slow.full = true
	for _, sid := range []core.SessionID{"a", "b"} {
		if err := f.orch.Join(sid, f.lobby); err != nil {
			t.Fatalf("Join(%s) error = %v", sid, err)
		}
	}

	f.orch.BroadcastRoom(f.lobby, "a", core.Frame("1"))
	if _, ok := f.orch.CurrentRoom("b"); !ok {
		t.Fatal("b kicked after a single drop")
	}
	f.orch.BroadcastRoom(f.lobby, "a", core.Frame("2"))
	if _, ok := f.orch.CurrentRoom("b"); ok {
		t.Fatal("b still in room after reaching the strike limit")
	}
}
