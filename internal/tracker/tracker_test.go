package tracker_test

import (
	"errors"
	"testing"

	"github.com/mickamy/gaudit"
	"github.com/mickamy/gaudit/internal/tracker"
)

type account struct {
	ID      int64
	Owner   string
	Balance float64
}

func states(changes []tracker.Change) []gaudit.EntityState {
	out := make([]gaudit.EntityState, len(changes))
	for i, c := range changes {
		out[i] = c.State
	}
	return out
}

func mustChanges(t *testing.T, tr *tracker.Tracker) []tracker.Change {
	t.Helper()
	changes, err := tr.Changes()
	if err != nil {
		t.Fatalf("Changes() error = %v", err)
	}
	return changes
}

func TestTracker_States(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		name string
		run  func(tr *tracker.Tracker, a *account) error
		want gaudit.EntityState
	}{
		{name: "added", run: func(tr *tracker.Tracker, a *account) error { return tr.Add(a) }, want: gaudit.Added},
		{name: "attached", run: func(tr *tracker.Tracker, a *account) error { return tr.Attach(a) }, want: gaudit.Unchanged},
		{name: "untracked", run: func(*tracker.Tracker, *account) error { return nil }, want: gaudit.Detached},
		{
			name: "attached then edited",
			run: func(tr *tracker.Tracker, a *account) error {
				if err := tr.Attach(a); err != nil {
					return err
				}
				a.Balance = 10
				return tr.DetectChanges()
			},
			want: gaudit.Modified,
		},
		{name: "update attaches", run: func(tr *tracker.Tracker, a *account) error { return tr.Update(a) }, want: gaudit.Modified},
		{
			name: "update keeps added",
			run: func(tr *tracker.Tracker, a *account) error {
				if err := tr.Add(a); err != nil {
					return err
				}
				return tr.Update(a)
			},
			want: gaudit.Added,
		},
		{
			name: "removed",
			run: func(tr *tracker.Tracker, a *account) error {
				if err := tr.Attach(a); err != nil {
					return err
				}
				return tr.Remove(a)
			},
			want: gaudit.Deleted,
		},
		{
			name: "removed before insert is forgotten",
			run: func(tr *tracker.Tracker, a *account) error {
				if err := tr.Add(a); err != nil {
					return err
				}
				return tr.Remove(a)
			},
			want: gaudit.Detached,
		},
		{
			name: "detached",
			run: func(tr *tracker.Tracker, a *account) error {
				if err := tr.Attach(a); err != nil {
					return err
				}
				tr.Detach(a)
				return nil
			},
			want: gaudit.Detached,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			tr := tracker.New()
			a := &account{ID: 1, Owner: "ann"}
			if err := tc.run(tr, a); err != nil {
				t.Fatalf("run error = %v", err)
			}
			if got := tr.State(a); got != tc.want {
				t.Fatalf("State() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestTracker_Errors(t *testing.T) {
	t.Parallel()

	tr := tracker.New()
	a := &account{}
	if err := tr.Remove(a); !errors.Is(err, tracker.ErrNotTracked) {
		t.Fatalf("Remove(untracked) error = %v, want %v", err, tracker.ErrNotTracked)
	}
	if err := tr.Add(*a); err == nil {
		t.Fatal("Add(struct value) error = nil, want error")
	}
	if err := tr.Add((*account)(nil)); err == nil {
		t.Fatal("Add(nil) error = nil, want error")
	}
	if err := tr.Add(a); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := tr.Attach(a); err == nil {
		t.Fatal("Attach(tracked) error = nil, want error")
	}
}

func TestTracker_Changes(t *testing.T) {
	t.Parallel()

	tr := tracker.New()
	added := &account{Owner: "new"}
	edited := &account{ID: 2, Owner: "bob", Balance: 5}
	untouched := &account{ID: 3, Owner: "cid"}
	removed := &account{ID: 4, Owner: "dee"}

	for _, err := range []error{tr.Add(added), tr.Attach(edited), tr.Attach(untouched), tr.Attach(removed)} {
		if err != nil {
			t.Fatalf("track error = %v", err)
		}
	}
	edited.Balance = 8
	if err := tr.Remove(removed); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	changes := mustChanges(t, tr)
	want := []gaudit.EntityState{gaudit.Added, gaudit.Modified, gaudit.Deleted}
	if got := states(changes); len(got) != len(want) || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Fatalf("Changes() states = %v, want %v", got, want)
	}
	if changes[0].Original != nil {
		t.Fatalf("added Original = %v, want nil", changes[0].Original)
	}
	if v, _ := changes[1].Original.Get("Balance"); v.Float() != 5 {
		t.Fatalf("modified Original Balance = %v, want 5", v)
	}
	if v, _ := changes[1].Current.Get("Balance"); v.Float() != 8 {
		t.Fatalf("modified Current Balance = %v, want 8", v)
	}
	if changes[0].Entity != "account" || changes[0].Value != any(added) {
		t.Fatalf("change = %+v, want entity account bound to the added pointer", changes[0])
	}

	mutations := tr.PendingMutations()
	if len(mutations) != 3 {
		t.Fatalf("PendingMutations() len = %d, want 3", len(mutations))
	}
}

func TestTracker_FlushedWithoutAccept(t *testing.T) {
	t.Parallel()

	tr := tracker.New()
	a := &account{Owner: "eve"}
	if err := tr.Add(a); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	changes := mustChanges(t, tr)
	a.ID = 42 // store-generated key written back
	tr.Flushed(changes, false)

	if got := mustChanges(t, tr); len(got) != 0 {
		t.Fatalf("Changes() after flush = %d entries, want 0", len(got))
	}
	if got := tr.State(a); got != gaudit.Added {
		t.Fatalf("State() = %v, want %v", got, gaudit.Added)
	}

	a.Balance = 3
	got := mustChanges(t, tr)
	if len(got) != 1 || got[0].State != gaudit.Modified {
		t.Fatalf("Changes() after edit = %v, want one Modified", states(got))
	}
	if v, _ := got[0].Original.Get("ID"); v.Int64() != 42 {
		t.Fatalf("Original ID = %v, want 42", v)
	}

	tr.AcceptAllChanges()
	if got := tr.State(a); got != gaudit.Unchanged {
		t.Fatalf("State() after accept = %v, want %v", got, gaudit.Unchanged)
	}
	if got := mustChanges(t, tr); len(got) != 0 {
		t.Fatalf("Changes() after accept = %d entries, want 0", len(got))
	}
}

func TestTracker_FlushedWithAccept(t *testing.T) {
	t.Parallel()

	tr := tracker.New()
	kept := &account{ID: 1, Owner: "fay"}
	gone := &account{ID: 2, Owner: "gus"}
	if err := tr.Attach(kept); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if err := tr.Attach(gone); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	kept.Owner = "faye"
	if err := tr.Remove(gone); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	tr.Flushed(mustChanges(t, tr), true)

	if got := tr.State(kept); got != gaudit.Unchanged {
		t.Fatalf("State(kept) = %v, want %v", got, gaudit.Unchanged)
	}
	if got := tr.State(gone); got != gaudit.Detached {
		t.Fatalf("State(gone) = %v, want %v", got, gaudit.Detached)
	}

	kept.Owner = "fae"
	got := mustChanges(t, tr)
	if len(got) != 1 {
		t.Fatalf("Changes() = %d entries, want 1", len(got))
	}
	if v, _ := got[0].Original.Get("Owner"); v.Str() != "faye" {
		t.Fatalf("Original Owner = %q, want %q", v.Str(), "faye")
	}
}
