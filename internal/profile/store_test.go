package profile

import (
	"sync"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func sample(id string) domain.UserProfile {
	return domain.UserProfile{
		ID:              id,
		Name:            "Test User",
		AverageAmount:   100,
		CommonLocations: []string{"New York"},
		UsualTimeRange:  domain.HourRange{Start: 9, End: 18},
	}
}

func TestStore(t *testing.T) {
	t.Run("get unknown user", func(t *testing.T) {
		s := NewStore()
		if _, ok := s.Get("nobody"); ok {
			t.Error("expected unknown user to be absent")
		}
	})

	t.Run("get returns a snapshot", func(t *testing.T) {
		s := NewStore()
		s.Upsert(sample("user001"))

		p, ok := s.Get("user001")
		if !ok {
			t.Fatal("expected profile")
		}
		p.CommonLocations[0] = "Mutated"
		p.AverageAmount = 0

		again, _ := s.Get("user001")
		if again.CommonLocations[0] != "New York" || again.AverageAmount != 100 {
			t.Error("mutating a returned snapshot leaked into the store")
		}
	})

	t.Run("upsert clones its input", func(t *testing.T) {
		s := NewStore()
		p := sample("user001")
		s.Upsert(p)
		p.CommonLocations[0] = "Mutated"

		stored, _ := s.Get("user001")
		if stored.CommonLocations[0] != "New York" {
			t.Error("mutating the inserted profile leaked into the store")
		}
	})

	t.Run("list is sorted by user id", func(t *testing.T) {
		s := NewStore()
		s.Upsert(sample("user003"))
		s.Upsert(sample("user001"))
		s.Upsert(sample("user002"))

		all := s.List()
		if len(all) != 3 {
			t.Fatalf("expected 3 profiles, got %d", len(all))
		}
		for i, want := range []string{"user001", "user002", "user003"} {
			if all[i].ID != want {
				t.Errorf("position %d: expected %s, got %s", i, want, all[i].ID)
			}
		}
	})

	t.Run("update unknown user returns false", func(t *testing.T) {
		s := NewStore()
		called := false
		ok := s.Update("nobody", func(p domain.UserProfile) domain.UserProfile {
			called = true
			return p
		})
		if ok {
			t.Error("expected update of unknown user to report false")
		}
		if called {
			t.Error("update fn must not run for unknown users")
		}
	})

	t.Run("concurrent updates do not lose increments", func(t *testing.T) {
		s := NewStore()
		s.Upsert(sample("user001"))

		const n = 100
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.Update("user001", func(p domain.UserProfile) domain.UserProfile {
					p.AverageAmount++
					return p
				})
			}()
		}
		wg.Wait()

		p, _ := s.Get("user001")
		if p.AverageAmount != 100+n {
			t.Errorf("expected average %d, got %v", 100+n, p.AverageAmount)
		}
	})

	t.Run("len", func(t *testing.T) {
		s := NewStore()
		if s.Len() != 0 {
			t.Errorf("expected empty store, got %d", s.Len())
		}
		s.Upsert(sample("user001"))
		s.Upsert(sample("user001"))
		if s.Len() != 1 {
			t.Errorf("expected 1 after duplicate upsert, got %d", s.Len())
		}
	})
}
