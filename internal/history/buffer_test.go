package history_test

import (
	"sync"
	"testing"

	"github.com/plantbox/plantbox-api/internal/history"
)

func TestBuffer_EvictsOldestFirst(t *testing.T) {
	const capacity = 5
	buf := history.New[int](capacity)

	for i := 1; i <= capacity+3; i++ {
		buf.Append(i)
	}

	if buf.Len() != capacity {
		t.Fatalf("Expected %d items, got %d", capacity, buf.Len())
	}

	got := buf.Recent(0)
	want := []int{4, 5, 6, 7, 8}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, got)
			break
		}
	}
}

func TestBuffer_RecentLimit(t *testing.T) {
	buf := history.New[string](10)
	buf.Append("a")
	buf.Append("b")
	buf.Append("c")

	got := buf.Recent(2)
	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Errorf("Expected [b c], got %v", got)
	}

	if got := buf.Recent(50); len(got) != 3 {
		t.Errorf("Expected limit larger than size to return 3 items, got %d", len(got))
	}
}

func TestBuffer_RecentReturnsCopy(t *testing.T) {
	buf := history.New[int](3)
	buf.Append(1)
	buf.Append(2)

	snapshot := buf.Recent(0)
	snapshot[0] = 99

	if again := buf.Recent(0); again[0] != 1 {
		t.Errorf("Expected buffer contents to be unaffected by caller mutation, got %v", again)
	}
}

func TestBuffer_LatestEmpty(t *testing.T) {
	buf := history.New[int](3)

	if _, ok := buf.Latest(); ok {
		t.Error("Expected Latest on empty buffer to report not found")
	}

	buf.Append(7)
	buf.Append(8)
	if v, ok := buf.Latest(); !ok || v != 8 {
		t.Errorf("Expected latest 8, got %d (ok=%v)", v, ok)
	}
}

func TestBuffer_Filter(t *testing.T) {
	buf := history.New[int](6)
	for i := 1; i <= 9; i++ {
		buf.Append(i)
	}

	even := func(v int) bool { return v%2 == 0 }
	got := buf.Filter(even, 2)
	if len(got) != 2 || got[0] != 6 || got[1] != 8 {
		t.Errorf("Expected [6 8], got %v", got)
	}

	if all := buf.Filter(even, 0); len(all) != 3 {
		t.Errorf("Expected 3 even items within the window, got %v", all)
	}
}

func TestBuffer_CapacityCoerced(t *testing.T) {
	buf := history.New[int](0)
	buf.Append(1)
	buf.Append(2)

	if buf.Cap() != 1 || buf.Len() != 1 {
		t.Fatalf("Expected capacity 1 buffer holding 1 item, got cap=%d len=%d", buf.Cap(), buf.Len())
	}
	if v, _ := buf.Latest(); v != 2 {
		t.Errorf("Expected latest 2, got %d", v)
	}
}

func TestBuffer_ConcurrentAppend(t *testing.T) {
	buf := history.New[int](history.NotificationCapacity)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				buf.Append(w*1000 + i)
				_ = buf.Recent(10)
			}
		}(w)
	}
	wg.Wait()

	if buf.Len() != history.NotificationCapacity {
		t.Errorf("Expected buffer to be full at %d, got %d", history.NotificationCapacity, buf.Len())
	}

	seen := make(map[int]bool)
	for _, v := range buf.Recent(0) {
		if seen[v] {
			t.Fatalf("Value %d appears twice in snapshot", v)
		}
		seen[v] = true
	}
}
