// Package apptest holds in-memory fakes of the platform, notifier and
// authority for tests of the ephemeral-room subsystem.
package apptest

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/tempvoice/internal/app/events"
	"github.com/dkeye/tempvoice/internal/domain"
)

// Epoch is the start time of every fake clock in tests.
var Epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// Runner drives an events.Loop for the lifetime of a test.
type Runner struct {
	t    *testing.T
	Loop *events.Loop
	Ctx  context.Context
}

// StartLoop runs a loop until the test ends.
func StartLoop(t *testing.T) *Runner {
	t.Helper()
	loop := events.NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &Runner{t: t, Loop: loop, Ctx: ctx}
}

// Settle waits until the loop has nothing left to do.
func (r *Runner) Settle() {
	r.t.Helper()
	if err := r.Loop.Flush(r.Ctx); err != nil {
		r.t.Fatalf("Flush() error = %v", err)
	}
}

// Do runs fn on the loop, waits for it and then settles.
func (r *Runner) Do(fn func(ctx context.Context)) {
	r.t.Helper()
	if err := r.Loop.Do(r.Ctx, fn); err != nil {
		r.t.Fatalf("Do() error = %v", err)
	}
	r.Settle()
}

// StaticAuthority answers from fixed sets.
type StaticAuthority struct {
	Ineligible map[domain.UserID]bool
	Excluded   map[domain.UserID]bool
	Elevated   map[domain.UserID]bool
}

func NewStaticAuthority() *StaticAuthority {
	return &StaticAuthority{
		Ineligible: make(map[domain.UserID]bool),
		Excluded:   make(map[domain.UserID]bool),
		Elevated:   make(map[domain.UserID]bool),
	}
}

func (a *StaticAuthority) IsEligibleForTriggerRoom(u domain.UserID) bool { return !a.Ineligible[u] }
func (a *StaticAuthority) IsExcludedFromRooms(u domain.UserID) bool      { return a.Excluded[u] }
func (a *StaticAuthority) HasElevatedRoomAuthority(u domain.UserID) bool { return a.Elevated[u] }
