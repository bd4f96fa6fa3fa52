package throttle

import "testing"

func TestPushRespectsMaxLen(t *testing.T) {
	q := New[string](1, 1, 0, 2)
	if err := q.Push("a"); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := q.Push("b"); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := q.Push("c"); err != ErrFull {
		t.Fatalf("expected ErrFull, got %v", err)
	}
}

func TestNextDrainsAtConfiguredRate(t *testing.T) {
	// 1 item per second, no burst: the first item releases immediately,
	// the second must wait a full second.
	q := New[int](1, 1, 0, 10)
	q.Push(1)
	q.Push(2)

	if _, ok := q.Next(0); !ok {
		t.Fatalf("expected first item to release at t=0")
	}
	if _, ok := q.Next(0); ok {
		t.Fatalf("expected second item to be throttled at t=0")
	}
	if _, ok := q.Next(1); !ok {
		t.Fatalf("expected second item to release at t=1")
	}
}

func TestNextAbsorbsBurst(t *testing.T) {
	q := New[int](1, 1, 3, 10)
	for i := 0; i < 4; i++ {
		q.Push(i)
	}
	released := 0
	for {
		if _, ok := q.Next(0); !ok {
			break
		}
		released++
	}
	if released != 4 {
		t.Fatalf("expected burst to release all 4 items at once, got %d", released)
	}
}

func TestNextOnEmptyQueue(t *testing.T) {
	q := New[int](1, 1, 0, 10)
	if _, ok := q.Next(0); ok {
		t.Fatalf("expected Next on empty queue to report not ok")
	}
}
