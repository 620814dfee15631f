// Package rooms provisions ephemeral voice rooms and tears them down again.
package rooms

import (
	"sort"
	"sync"
	"time"

	"github.com/dkeye/tempvoice/internal/core"
	"github.com/dkeye/tempvoice/internal/domain"
)

// Handle cancels a scheduled action. *clock.Timer satisfies it.
type Handle interface {
	Stop() bool
}

// Record is the registry's view of one live ephemeral room.
type Record struct {
	RoomID          domain.RoomID
	CreatorID       domain.UserID
	CreatedAt       time.Time
	PendingDeletion Handle
}

// Registry is the table of live ephemeral rooms. It does no I/O and owns no
// timers; callers arm and stop the handles they store here.
type Registry struct {
	mu      sync.RWMutex
	records map[domain.RoomID]*Record
}

func NewRegistry() *Registry {
	return &Registry{records: make(map[domain.RoomID]*Record)}
}

func (r *Registry) Register(roomID domain.RoomID, creatorID domain.UserID, createdAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[roomID]; ok {
		return core.Invariant("room %s registered twice", roomID)
	}
	r.records[roomID] = &Record{RoomID: roomID, CreatorID: creatorID, CreatedAt: createdAt}
	return nil
}

// Get returns a copy of the record.
func (r *Registry) Get(roomID domain.RoomID) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[roomID]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

func (r *Registry) CreatorOf(roomID domain.RoomID) (domain.UserID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[roomID]
	if !ok {
		return "", false
	}
	return rec.CreatorID, true
}

// Unregister removes the record and returns it so the caller can stop any
// handle still stored on it.
func (r *Registry) Unregister(roomID domain.RoomID) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[roomID]
	if !ok {
		return Record{}, false
	}
	delete(r.records, roomID)
	return *rec, true
}

// ArmPendingDeletion stores h on the record. An already armed handle is an
// invariant violation: callers disarm before re-arming.
func (r *Registry) ArmPendingDeletion(roomID domain.RoomID, h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[roomID]
	if !ok {
		return core.Invariant("arm deletion on unregistered room %s", roomID)
	}
	if rec.PendingDeletion != nil {
		return core.Invariant("room %s already has a pending deletion", roomID)
	}
	rec.PendingDeletion = h
	return nil
}

// DisarmPendingDeletion clears and returns the stored handle, if any.
func (r *Registry) DisarmPendingDeletion(roomID domain.RoomID) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[roomID]
	if !ok || rec.PendingDeletion == nil {
		return nil, false
	}
	h := rec.PendingDeletion
	rec.PendingDeletion = nil
	return h, true
}

// List returns copies of all records, oldest first.
func (r *Registry) List() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
