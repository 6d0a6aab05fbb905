package ringbuf

import (
	"sync"
	"testing"
	"time"

	"papertrade-backend/internal/model"
)

func TestRing_BasicPushPop(t *testing.T) {
	r := New(4) // rounds to 4

	q1 := model.Quote{Symbol: "NIFTY", Price: 24500}
	q2 := model.Quote{Symbol: "GOLD", Price: 62000}

	if !r.Push(q1) {
		t.Fatal("push q1 should succeed")
	}
	if !r.Push(q2) {
		t.Fatal("push q2 should succeed")
	}

	if r.Len() != 2 {
		t.Fatalf("expected len=2, got %d", r.Len())
	}

	got, ok := r.Pop()
	if !ok || got.Symbol != "NIFTY" {
		t.Fatalf("expected NIFTY, got %v ok=%v", got.Symbol, ok)
	}

	got, ok = r.Pop()
	if !ok || got.Symbol != "GOLD" {
		t.Fatalf("expected GOLD, got %v ok=%v", got.Symbol, ok)
	}

	_, ok = r.Pop()
	if ok {
		t.Fatal("pop from empty should return false")
	}
}

func TestRing_Overflow(t *testing.T) {
	r := New(2) // capacity = 2

	r.Push(model.Quote{Symbol: "A"})
	r.Push(model.Quote{Symbol: "B"})

	// Buffer is full
	ok := r.Push(model.Quote{Symbol: "C"})
	if ok {
		t.Fatal("push to full buffer should return false")
	}
	if r.Overflow() != 1 {
		t.Fatalf("expected overflow=1, got %d", r.Overflow())
	}
}

func TestRing_Wraparound(t *testing.T) {
	r := New(4)

	// Fill and drain multiple times to test wraparound
	for round := 0; round < 5; round++ {
		for i := 0; i < 4; i++ {
			if !r.Push(model.Quote{Symbol: "X", Price: float64(round*10 + i)}) {
				t.Fatalf("round %d push %d failed", round, i)
			}
		}
		for i := 0; i < 4; i++ {
			q, ok := r.Pop()
			if !ok {
				t.Fatalf("round %d pop %d failed", round, i)
			}
			if q.Price != float64(round*10+i) {
				t.Fatalf("round %d pop %d: expected price=%d, got %v", round, i, round*10+i, q.Price)
			}
		}
	}
}

func TestRing_SPSC_Concurrent(t *testing.T) {
	const count = 100_000
	r := New(1024)

	var wg sync.WaitGroup
	wg.Add(2)

	// Producer
	go func() {
		defer wg.Done()
		for i := 0; i < count; i++ {
			for !r.Push(model.Quote{Price: float64(i)}) {
				// spin-wait (busy loop for test only)
			}
		}
	}()

	// Consumer
	received := make([]float64, 0, count)
	go func() {
		defer wg.Done()
		for len(received) < count {
			q, ok := r.Pop()
			if ok {
				received = append(received, q.Price)
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("SPSC test timed out")
	}

	// Verify ordering
	for i, v := range received {
		if v != float64(i) {
			t.Fatalf("at index %d: expected %d, got %v", i, i, v)
		}
	}
}

func TestRing_NextPow2(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {5, 8}, {7, 8}, {8, 8}, {9, 16}, {1023, 1024},
	}
	for _, tc := range cases {
		got := nextPow2(tc.in)
		if got != tc.want {
			t.Errorf("nextPow2(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestHistory_SnapshotOrderAndLimit(t *testing.T) {
	h := NewHistory(4)

	for i := 1; i <= 3; i++ {
		h.Record(model.Quote{Symbol: "NIFTY", Price: float64(i)})
	}

	all := h.Snapshot("NIFTY", 0)
	if len(all) != 3 || all[0].Price != 1 || all[2].Price != 3 {
		t.Fatalf("expected [1 2 3], got %v", all)
	}

	last2 := h.Snapshot("NIFTY", 2)
	if len(last2) != 2 || last2[0].Price != 2 || last2[1].Price != 3 {
		t.Fatalf("expected [2 3], got %v", last2)
	}

	if got := h.Snapshot("GOLD", 0); got != nil {
		t.Fatalf("unknown symbol should return nil, got %v", got)
	}
}

func TestHistory_OverwritesOldest(t *testing.T) {
	h := NewHistory(3)

	for i := 1; i <= 5; i++ {
		h.Record(model.Quote{Symbol: "GOLD", Price: float64(i)})
	}

	got := h.Snapshot("GOLD", 0)
	if len(got) != 3 {
		t.Fatalf("expected 3 retained quotes, got %d", len(got))
	}
	for i, want := range []float64{3, 4, 5} {
		if got[i].Price != want {
			t.Errorf("index %d: expected %v, got %v", i, want, got[i].Price)
		}
	}
}
