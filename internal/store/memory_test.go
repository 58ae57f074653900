package store

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Create And Get", func(t *testing.T) {
		m := NewMemory()

		s, err := m.Create(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(s.ID) != 8 {
			t.Errorf("expected 8-character session id, got %q", s.ID)
		}

		got, err := m.Get(ctx, s.ID)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got == nil || got.ID != s.ID {
			t.Fatal("expected created session to be retrievable")
		}
		if got.State() != Empty {
			t.Errorf("expected fresh session to be Empty, got %s", got.State())
		}
	})

	t.Run("Get Absent", func(t *testing.T) {
		m := NewMemory()

		got, err := m.Get(ctx, "missing1")
		if err != nil {
			t.Fatalf("absent session must not be an error, got %v", err)
		}
		if got != nil {
			t.Error("expected nil session for unknown id")
		}
	})

	t.Run("MergeParty Absent", func(t *testing.T) {
		m := NewMemory()

		got, err := m.MergeParty(ctx, "missing1", RoleOwner, Party{CodeVerifier: "v"})
		if err != nil || got != nil {
			t.Errorf("expected (nil, nil) for unknown id, got (%v, %v)", got, err)
		}
	})

	t.Run("Merge Preserves Sibling Slot", func(t *testing.T) {
		m := NewMemory()
		s, _ := m.Create(ctx)

		if _, err := m.MergeParty(ctx, s.ID, RoleOwner, Party{TrackIDs: []string{"1"}}); err != nil {
			t.Fatalf("owner merge failed: %v", err)
		}
		updated, err := m.MergeParty(ctx, s.ID, RoleGuest, Party{TrackIDs: []string{"2"}})
		if err != nil {
			t.Fatalf("guest merge failed: %v", err)
		}

		if !updated.HasTracks(RoleOwner) || !updated.HasTracks(RoleGuest) {
			t.Error("merge dropped a previously written slot")
		}
	})

	t.Run("Concurrent Merges Never Lose Updates", func(t *testing.T) {
		m := NewMemory()
		s, _ := m.Create(ctx)

		var wg sync.WaitGroup
		for _, role := range []Role{RoleOwner, RoleGuest} {
			wg.Add(1)
			go func(role Role) {
				defer wg.Done()
				if _, err := m.MergeParty(ctx, s.ID, role, Party{TrackIDs: []string{string(role)}}); err != nil {
					t.Errorf("%s merge failed: %v", role, err)
				}
			}(role)
		}
		wg.Wait()

		got, _ := m.Get(ctx, s.ID)
		if !got.HasTracks(RoleOwner) || !got.HasTracks(RoleGuest) {
			t.Fatal("a concurrently written slot was lost")
		}
	})

	t.Run("SetCommon", func(t *testing.T) {
		m := NewMemory()
		s, _ := m.Create(ctx)

		updated, err := m.SetCommon(ctx, s.ID, Intersection{IDs: []string{"2", "3"}, Names: []string{"a", "b"}})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if updated.Common == nil || len(updated.Common.IDs) != 2 {
			t.Fatal("expected common to be stored")
		}
		if updated.State() != Resolved {
			t.Errorf("expected Resolved, got %s", updated.State())
		}
	})

	t.Run("TTL Expiry", func(t *testing.T) {
		m := NewMemory()
		now := time.Now()
		m.now = func() time.Time { return now }

		s, _ := m.Create(ctx)

		now = now.Add(TTL - time.Second)
		if got, _ := m.Get(ctx, s.ID); got == nil {
			t.Fatal("session expired before its TTL")
		}

		now = now.Add(2 * time.Second)
		if got, _ := m.Get(ctx, s.ID); got != nil {
			t.Fatal("session survived past its TTL")
		}
	})

	t.Run("Write Renews TTL", func(t *testing.T) {
		m := NewMemory()
		now := time.Now()
		m.now = func() time.Time { return now }

		s, _ := m.Create(ctx)

		now = now.Add(TTL - time.Second)
		if _, err := m.MergeParty(ctx, s.ID, RoleOwner, Party{CodeVerifier: "v"}); err != nil {
			t.Fatalf("merge failed: %v", err)
		}

		now = now.Add(TTL - time.Second)
		if got, _ := m.Get(ctx, s.ID); got == nil {
			t.Fatal("merge should have renewed the TTL")
		}
	})

	t.Run("Returned Sessions Do Not Alias Store State", func(t *testing.T) {
		m := NewMemory()
		s, _ := m.Create(ctx)

		updated, _ := m.MergeParty(ctx, s.ID, RoleOwner, Party{TrackIDs: []string{"1"}})
		updated.Owner.TrackIDs[0] = "mutated"

		got, _ := m.Get(ctx, s.ID)
		if got.Owner.TrackIDs[0] != "1" {
			t.Error("caller mutation leaked into the store")
		}
	})
}
