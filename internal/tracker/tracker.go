package tracker

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/mickamy/gaudit"
	"github.com/mickamy/gaudit/record"
)

var ErrNotTracked = errors.New("tracker: entity is not tracked")

// Change is a pending entity change, with the entity pointer the store writes from.
type Change struct {
	gaudit.Mutation
	Value any
}

type entry struct {
	value    any
	name     string
	state    gaudit.EntityState
	original *record.Row // as attached or last accepted
	flushed  *record.Row // as last persisted without acceptance
	dirty    bool
}

// Tracker records entity states between persists. Entities are tracked by pointer.
type Tracker struct {
	mu      sync.Mutex
	entries []*entry
	byPtr   map[any]*entry
}

func New() *Tracker {
	return &Tracker{byPtr: make(map[any]*entry)}
}

// Add tracks entity as a new row.
func (t *Tracker) Add(entity any) error {
	return t.track(entity, gaudit.Added)
}

// Attach tracks entity as already persisted and unchanged.
func (t *Tracker) Attach(entity any) error {
	return t.track(entity, gaudit.Unchanged)
}

// Update marks entity modified, attaching it first when needed.
func (t *Tracker) Update(entity any) error {
	t.mu.Lock()
	e, ok := t.byPtr[entity]
	if !ok {
		t.mu.Unlock()
		return t.track(entity, gaudit.Modified)
	}
	defer t.mu.Unlock()
	if e.state != gaudit.Added {
		e.state = gaudit.Modified
		e.dirty = true
	}
	return nil
}

// Remove marks entity deleted. A never persisted entity is simply forgotten.
func (t *Tracker) Remove(entity any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byPtr[entity]
	if !ok {
		return fmt.Errorf("%w: %T", ErrNotTracked, entity)
	}
	if e.state == gaudit.Added && e.flushed == nil {
		t.drop(e)
		return nil
	}
	e.state = gaudit.Deleted
	e.dirty = true
	return nil
}

// Detach stops tracking entity.
func (t *Tracker) Detach(entity any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.byPtr[entity]; ok {
		t.drop(e)
	}
}

// State reports the tracked state of entity, Detached when untracked.
func (t *Tracker) State(entity any) gaudit.EntityState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.byPtr[entity]; ok {
		return e.state
	}
	return gaudit.Detached
}

// DetectChanges compares tracked entities with their snapshots and marks the
// changed ones.
func (t *Tracker) DetectChanges() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.detect()
}

func (t *Tracker) detect() error {
	for _, e := range t.entries {
		if e.state == gaudit.Deleted {
			continue
		}
		cur, err := record.Snapshot(e.value)
		if err != nil {
			return fmt.Errorf("tracker: %s: %w", e.name, err)
		}
		switch {
		case e.state == gaudit.Unchanged && !cur.Equal(e.original):
			e.state = gaudit.Modified
			e.dirty = true
		case !e.dirty && e.flushed != nil && !cur.Equal(e.flushed):
			e.dirty = true
		}
	}
	return nil
}

// Changes detects changes and returns the entries not yet persisted, in tracking order.
func (t *Tracker) Changes() ([]Change, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.detect(); err != nil {
		return nil, err
	}
	var out []Change
	for _, e := range t.entries {
		if !e.dirty || e.state == gaudit.Unchanged {
			continue
		}
		cur, err := record.Snapshot(e.value)
		if err != nil {
			return nil, fmt.Errorf("tracker: %s: %w", e.name, err)
		}
		m := gaudit.Mutation{Entity: e.name, State: e.state, Current: cur}
		switch {
		case e.flushed != nil:
			// written but not accepted: the row exists as last flushed
			m.Original = e.flushed.Clone()
			if e.state == gaudit.Added {
				m.State = gaudit.Modified
			}
		case e.state != gaudit.Added:
			m.Original = e.original.Clone()
		}
		out = append(out, Change{Mutation: m, Value: e.value})
	}
	return out, nil
}

// PendingMutations implements gaudit.ChangeSource. Entities whose snapshot fails are
// left out; Changes reports the error.
func (t *Tracker) PendingMutations() []gaudit.Mutation {
	changes, _ := t.Changes()
	out := make([]gaudit.Mutation, len(changes))
	for i, c := range changes {
		out[i] = c.Mutation
	}
	return out
}

// Flushed records that changes were written. With acceptAll, every entry is
// accepted as well.
func (t *Tracker) Flushed(changes []Change, acceptAll bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range changes {
		e, ok := t.byPtr[c.Value]
		if !ok {
			continue
		}
		e.dirty = false
		// the store may have written generated keys back into the entity
		if cur, err := record.Snapshot(e.value); err == nil {
			e.flushed = cur
		} else {
			e.flushed = c.Current
		}
	}
	if acceptAll {
		t.accept()
	}
}

// AcceptAllChanges makes the current values the new originals: added and modified
// entities become unchanged and deleted ones are forgotten.
func (t *Tracker) AcceptAllChanges() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.accept()
}

func (t *Tracker) accept() {
	for _, e := range append([]*entry(nil), t.entries...) {
		switch e.state {
		case gaudit.Deleted:
			t.drop(e)
		case gaudit.Added, gaudit.Modified:
			if cur, err := record.Snapshot(e.value); err == nil {
				e.original = cur
			}
			e.state = gaudit.Unchanged
			e.flushed = nil
			e.dirty = false
		}
	}
}

func (t *Tracker) track(entity any, state gaudit.EntityState) error {
	rv := reflect.ValueOf(entity)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("tracker: %T is not a pointer to struct", entity)
	}
	snap, err := record.Snapshot(entity)
	if err != nil {
		return fmt.Errorf("tracker: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byPtr[entity]; ok {
		return fmt.Errorf("tracker: %T already tracked", entity)
	}
	e := &entry{
		value:    entity,
		name:     gaudit.EntityName(rv.Type()),
		state:    state,
		original: snap,
		dirty:    state != gaudit.Unchanged,
	}
	t.entries = append(t.entries, e)
	t.byPtr[entity] = e
	return nil
}

func (t *Tracker) drop(e *entry) {
	delete(t.byPtr, e.value)
	for i, x := range t.entries {
		if x == e {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			break
		}
	}
}
