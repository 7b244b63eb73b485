package pcat

import (
	"sync"
	"testing"
	"time"
)

func next(t *testing.T, s *Subscription) Change {
	t.Helper()
	select {
	case c, ok := <-s.C:
		if !ok {
			t.Fatal("subscription closed")
		}
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change")
	}
	return Change{}
}

func TestBroadcaster_Publish(t *testing.T) {
	t.Run("every subscriber sees every change in order", func(t *testing.T) {
		b := NewBroadcaster()
		defer b.Close()
		s1 := b.Subscribe()
		s2 := b.Subscribe()

		for range 100 {
			b.Publish()
		}
		for _, s := range []*Subscription{s1, s2} {
			for want := uint64(1); want <= 100; want++ {
				if got := next(t, s); got.Seq != want {
					t.Fatalf("Seq = %d, want %d", got.Seq, want)
				}
			}
		}
	})

	t.Run("publish does not block on a slow reader", func(t *testing.T) {
		b := NewBroadcaster()
		defer b.Close()
		s := b.Subscribe()

		done := make(chan struct{})
		go func() {
			for range 10000 {
				b.Publish()
			}
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("Publish blocked")
		}
		if got := next(t, s); got.Seq != 1 {
			t.Errorf("first Seq = %d, want 1", got.Seq)
		}
	})

	t.Run("late subscriber misses earlier changes", func(t *testing.T) {
		b := NewBroadcaster()
		defer b.Close()
		b.Publish()
		s := b.Subscribe()
		b.Publish()

		if got := next(t, s); got.Seq != 2 {
			t.Errorf("Seq = %d, want 2", got.Seq)
		}
	})

	t.Run("concurrent publishers", func(t *testing.T) {
		b := NewBroadcaster()
		defer b.Close()
		s := b.Subscribe()

		var wg sync.WaitGroup
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 10 {
					b.Publish()
				}
			}()
		}
		wg.Wait()
		for want := uint64(1); want <= 200; want++ {
			if got := next(t, s); got.Seq != want {
				t.Fatalf("Seq = %d, want %d", got.Seq, want)
			}
		}
	})
}

func TestSubscription_Close(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()
	s := b.Subscribe()
	other := b.Subscribe()

	s.Close()
	s.Close()
	b.Publish()

	if _, ok := <-s.C; ok {
		t.Error("closed subscription delivered a change")
	}
	if got := next(t, other); got.Seq != 1 {
		t.Errorf("other subscriber Seq = %d, want 1", got.Seq)
	}
}

func TestBroadcaster_Close(t *testing.T) {
	b := NewBroadcaster()
	s := b.Subscribe()

	b.Close()
	b.Close()
	if _, ok := <-s.C; ok {
		t.Error("subscription open after Broadcaster.Close")
	}

	late := b.Subscribe()
	if _, ok := <-late.C; ok {
		t.Error("subscription on closed Broadcaster is open")
	}
	late.Close()
	b.Publish()
}
