package rooms

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/dkeye/tempvoice/internal/app/apptest"
	"github.com/dkeye/tempvoice/internal/app/events"
	"github.com/dkeye/tempvoice/internal/clock"
	"github.com/dkeye/tempvoice/internal/core"
	"github.com/dkeye/tempvoice/internal/domain"
)

type deletions struct{ ids []domain.RoomID }

func (d *deletions) RoomDeleted(_ context.Context, id domain.RoomID) { d.ids = append(d.ids, id) }

type harness struct {
	run      *apptest.Runner
	platform *apptest.FakePlatform
	notifier *apptest.FakeNotifier
	auth     *apptest.StaticAuthority
	clock    *clock.FakeClock
	registry *Registry
	life     *Lifecycle
	observed *deletions
}

func newHarness(t *testing.T, delay time.Duration) *harness {
	t.Helper()
	run := apptest.StartLoop(t)
	pipe := events.NewPipeline(run.Loop)
	h := &harness{
		run:      run,
		platform: apptest.NewFakePlatform(pipe.Publish),
		notifier: &apptest.FakeNotifier{},
		auth:     apptest.NewStaticAuthority(),
		clock:    clock.Fake(apptest.Epoch),
		registry: NewRegistry(),
		observed: &deletions{},
	}
	h.platform.AddRoom(domain.Room{ID: "cat", Name: "Voice", Kind: domain.RoomCategory})
	h.platform.AddRoom(domain.Room{ID: "lobby", Name: "Lobby", ParentID: "cat", Position: 0})
	h.platform.AddRoom(domain.Room{ID: "trigger", Name: "Create room", ParentID: "cat", Position: 1, Kind: domain.RoomTrigger})
	h.platform.AddRoom(domain.Room{ID: "waiting", Name: "Waiting", ParentID: "cat", Position: 2, Kind: domain.RoomWaiting})
	for _, id := range []domain.UserID{"a", "b", "c"} {
		h.platform.AddUser(domain.User{ID: id, Username: "user-" + string(id)})
	}
	h.life = NewLifecycle(Config{
		TriggerRoomID: "trigger",
		WaitingRoomID: "waiting",
		ParentID:      "cat",
		NameFormat:    "%s's room",
		DeletionDelay: delay,
	}, h.registry, h.platform, h.auth, h.notifier, h.clock, run.Loop)
	h.life.AddObserver(h.observed)
	pipe.Subscribe(h.life)
	return h
}

// provision has user join the trigger room and returns the room they end up in.
func (h *harness) provision(t *testing.T, user domain.UserID) domain.RoomID {
	t.Helper()
	h.platform.Connect(user, "trigger")
	h.run.Settle()
	room, ok := h.platform.CurrentRoom(user)
	if !ok || room == "trigger" {
		t.Fatalf("%s not moved out of trigger room (room=%q ok=%v)", user, room, ok)
	}
	return room
}

func TestTriggerJoinProvisionsRoom(t *testing.T) {
	h := newHarness(t, 0)
	room := h.provision(t, "a")

	rec, ok := h.registry.Get(room)
	if !ok || rec.CreatorID != "a" {
		t.Fatalf("registry.Get(%s) = %+v, %v, want creator a", room, rec, ok)
	}
	if !rec.CreatedAt.Equal(apptest.Epoch) {
		t.Fatalf("CreatedAt = %v, want %v", rec.CreatedAt, apptest.Epoch)
	}
	info, _ := h.platform.Room(room)
	if info.Name != "user-a's room" || info.ParentID != "cat" || info.Kind != domain.RoomEphemeral {
		t.Fatalf("room = %+v", info)
	}
	if ev := h.platform.EveryoneOf(room); !ev.Deny.Has(domain.PermConnect) {
		t.Fatalf("everyone overwrite = %+v, want connect denied", ev)
	}
	if ow, _ := h.platform.OverwriteOf(room, "a"); ow.Allow != domain.PermAll {
		t.Fatalf("creator overwrite = %+v, want all", ow)
	}
	if ow, _ := h.platform.OverwriteOf(room, domain.ServiceActor); !ow.Allow.Has(domain.PermManage) {
		t.Fatalf("service overwrite = %+v, want manage", ow)
	}
}

func TestProvisionedRoomsSitBetweenTriggerAndWaiting(t *testing.T) {
	h := newHarness(t, 0)
	first := h.provision(t, "a")
	second := h.provision(t, "b")

	var order []domain.RoomID
	for _, r := range h.platform.RoomsUnder("cat") {
		order = append(order, r.ID)
	}
	want := []domain.RoomID{"lobby", "trigger", second, first, "waiting"}
	if !slices.Equal(order, want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
}

func TestIneligibleUserIsDisconnected(t *testing.T) {
	h := newHarness(t, 0)
	h.auth.Ineligible["a"] = true

	h.platform.Connect("a", "trigger")
	h.run.Settle()

	if _, ok := h.platform.CurrentRoom("a"); ok {
		t.Fatal("ineligible user still connected")
	}
	if h.registry.Len() != 0 {
		t.Fatalf("registry has %d rooms, want 0", h.registry.Len())
	}
	if d := h.notifier.Directs(); len(d) != 1 || d[0].To != "a" {
		t.Fatalf("directs = %+v, want one explanation to a", d)
	}
}

func TestCreatorLeavingDeletesRoomRegardlessOfOccupants(t *testing.T) {
	h := newHarness(t, 0)
	room := h.provision(t, "a")
	h.platform.Connect("b", room)
	h.run.Settle()

	h.platform.Connect("a", "lobby")
	h.run.Settle()

	if _, ok := h.registry.Get(room); ok {
		t.Fatal("room still registered after creator left")
	}
	if h.platform.Exists(room) {
		t.Fatal("room still exists on platform")
	}
	if _, ok := h.platform.CurrentRoom("b"); ok {
		t.Fatal("b still connected to deleted room")
	}
	if !slices.Equal(h.observed.ids, []domain.RoomID{room}) {
		t.Fatalf("observed deletions = %v, want [%s]", h.observed.ids, room)
	}
}

func TestMemberLeavingRevokesGrant(t *testing.T) {
	h := newHarness(t, 0)
	room := h.provision(t, "a")
	h.run.Do(func(ctx context.Context) {
		_ = h.platform.SetOverwrite(ctx, room, "b", domain.Overwrite{Allow: domain.PermConnect})
	})
	h.platform.Connect("b", room)
	h.run.Settle()

	h.platform.Hangup("b")
	h.run.Settle()

	if _, ok := h.platform.OverwriteOf(room, "b"); ok {
		t.Fatal("b kept its connect grant after leaving")
	}
	if _, ok := h.registry.Get(room); !ok {
		t.Fatal("room deleted although creator is still inside")
	}
}

// orphan registers a room whose creator is not inside, the only way a room
// can run empty without its creator leaving.
func (h *harness) orphan(t *testing.T, room domain.RoomID) {
	t.Helper()
	h.platform.AddRoom(domain.Room{ID: room, ParentID: "cat", Kind: domain.RoomEphemeral})
	if err := h.registry.Register(room, "ghost", apptest.Epoch); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
}

func TestEmptyRoomIsDeletedImmediately(t *testing.T) {
	h := newHarness(t, 0)
	h.orphan(t, "r9")
	h.platform.Connect("b", "r9")
	h.run.Settle()
	h.platform.Hangup("b")
	h.run.Settle()

	if _, ok := h.registry.Get("r9"); ok {
		t.Fatal("empty room still registered")
	}
	if h.clock.PendingCount() != 0 {
		t.Fatalf("PendingCount() = %d, want 0", h.clock.PendingCount())
	}
}

func TestReoccupancyCancelsPendingDeletion(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.orphan(t, "r9")

	h.platform.Connect("b", "r9")
	h.run.Settle()
	h.platform.Hangup("b")
	h.run.Settle()

	rec, _ := h.registry.Get("r9")
	if rec.PendingDeletion == nil {
		t.Fatal("no pending deletion armed for empty room")
	}

	h.platform.Connect("c", "r9")
	h.run.Settle()
	if rec, _ := h.registry.Get("r9"); rec.PendingDeletion != nil {
		t.Fatal("pending deletion still armed after re-occupancy")
	}

	h.clock.Advance(2 * time.Minute)
	h.run.Settle()
	if _, ok := h.registry.Get("r9"); !ok {
		t.Fatal("re-occupied room deleted by stale timer")
	}
}

func TestPendingDeletionFires(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.orphan(t, "r9")
	h.platform.Connect("b", "r9")
	h.run.Settle()
	h.platform.Hangup("b")
	h.run.Settle()

	h.clock.Advance(59 * time.Second)
	h.run.Settle()
	if _, ok := h.registry.Get("r9"); !ok {
		t.Fatal("room deleted before grace period")
	}
	h.clock.Advance(time.Second)
	h.run.Settle()
	if _, ok := h.registry.Get("r9"); ok {
		t.Fatal("room survived its grace period")
	}
	if h.platform.Exists("r9") {
		t.Fatal("room not deleted on platform")
	}
}

func TestStaleDeletionTimerIsIgnored(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.orphan(t, "r9")
	h.platform.Connect("b", "r9")
	h.run.Settle()

	// Arm and immediately replace the handle the way a cancel/re-arm race would.
	stale := &stubHandle{}
	h.run.Do(func(ctx context.Context) {
		_ = h.registry.ArmPendingDeletion("r9", stale)
		h.registry.DisarmPendingDeletion("r9")
		h.life.deletionDue(ctx, "r9", stale)
	})
	if _, ok := h.registry.Get("r9"); !ok {
		t.Fatal("stale handle deleted the room")
	}
}

func TestRelocationFailureTearsRoomDown(t *testing.T) {
	h := newHarness(t, 0)
	h.platform.FailRelocate = apptest.ErrInjected

	h.platform.Connect("a", "trigger")
	h.run.Settle()

	if h.registry.Len() != 0 {
		t.Fatalf("registry has %d rooms after failed move", h.registry.Len())
	}
	if len(h.platform.Deleted()) != 1 {
		t.Fatalf("deleted = %v, want the half-built room", h.platform.Deleted())
	}
}

func TestCreateFailureNotifiesUser(t *testing.T) {
	h := newHarness(t, 0)
	h.platform.FailCreate = apptest.ErrInjected

	h.platform.Connect("a", "trigger")
	h.run.Settle()

	if h.registry.Len() != 0 {
		t.Fatal("room registered although create failed")
	}
	if len(h.notifier.Directs()) != 1 {
		t.Fatalf("directs = %+v, want one", h.notifier.Directs())
	}
}

func TestEventsForDeletedRoomAreIgnored(t *testing.T) {
	h := newHarness(t, 0)
	room := h.provision(t, "a")
	h.platform.Hangup("a")
	h.run.Settle()

	h.run.Do(func(ctx context.Context) {
		h.life.OnMembershipChange(ctx, domain.MembershipChange{UserID: "b", Current: room})
		h.life.OnMembershipChange(ctx, domain.MembershipChange{UserID: "b", Previous: room})
	})
	if h.registry.Len() != 0 {
		t.Fatal("deleted room resurrected")
	}
	if len(h.platform.Deleted()) != 1 {
		t.Fatalf("deleted = %v, want exactly one delete", h.platform.Deleted())
	}
}

func TestShutdownDeletesEveryRoom(t *testing.T) {
	h := newHarness(t, 0)
	h.provision(t, "a")
	h.provision(t, "b")

	h.run.Do(h.life.Shutdown)

	if h.registry.Len() != 0 {
		t.Fatalf("registry has %d rooms after shutdown", h.registry.Len())
	}
	if len(h.platform.Deleted()) != 2 {
		t.Fatalf("deleted = %v, want 2", h.platform.Deleted())
	}
}

func TestDoubleRegisterDoesNotClobber(t *testing.T) {
	h := newHarness(t, 0)
	room := h.provision(t, "a")
	err := h.registry.Register(room, "b", apptest.Epoch)
	if !errors.Is(err, core.ErrInvariant) {
		t.Fatalf("Register() error = %v, want ErrInvariant", err)
	}
}

func TestStaleTriggerJoinLeavesIneligibleUserAlone(t *testing.T) {
	h := newHarness(t, 0)
	h.auth.Ineligible["a"] = true

	release := make(chan struct{})
	h.run.Loop.Post(func(context.Context) { <-release })
	h.platform.Connect("a", "trigger")
	h.platform.Connect("a", "lobby")
	close(release)
	h.run.Settle()

	if cur, ok := h.platform.CurrentRoom("a"); !ok || cur != "lobby" {
		t.Fatalf("CurrentRoom(a) = %q, %v, want lobby", cur, ok)
	}
	if d := h.notifier.Directs(); len(d) != 0 {
		t.Fatalf("directs = %+v, want none", d)
	}
}

type claimSet map[domain.UserID]bool

func (c claimSet) AwaitingMove(u domain.UserID) bool { return c[u] }

func TestClaimedUserIsNotProvisioned(t *testing.T) {
	h := newHarness(t, 0)
	h.life.SetMoveClaims(claimSet{"a": true})

	h.platform.Connect("a", "trigger")
	h.run.Settle()

	if cur, _ := h.platform.CurrentRoom("a"); cur != "trigger" {
		t.Fatalf("CurrentRoom(a) = %q, want trigger", cur)
	}
	if h.registry.Len() != 0 || len(h.platform.Relocations()) != 0 {
		t.Fatalf("registry has %d rooms, %d relocations, want none", h.registry.Len(), len(h.platform.Relocations()))
	}
}
