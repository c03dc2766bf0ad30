package mirror

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestQueue(t *testing.T) *queue {
	db, err := newMemDB()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return newQueue(db)
}

func TestQueue_FIFO(t *testing.T) {
	q := newTestQueue(t)

	var added []bool
	for _, s := range []string{"https://x.test/a", "https://x.test/b", "https://x.test/a", "https://x.test/c"} {
		ok, err := q.Add(mustParseURL(s))
		if err != nil {
			t.Fatal(err)
		}
		added = append(added, ok)
	}
	if diff := cmp.Diff([]bool{true, true, false, true}, added); diff != "" {
		t.Errorf("unexpected Add results:\n%s", diff)
	}
	if q.Len() != 3 || q.Seen() != 3 {
		t.Errorf("Len=%d Seen=%d, want 3 and 3", q.Len(), q.Seen())
	}

	var popped []string
	for {
		u, ok, err := q.Pop()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		popped = append(popped, u.String())
	}
	want := []string{"https://x.test/a", "https://x.test/b", "https://x.test/c"}
	if diff := cmp.Diff(want, popped); diff != "" {
		t.Errorf("unexpected queue order:\n%s", diff)
	}

	// Seen URLs stay seen once popped.
	if ok, _ := q.Add(mustParseURL("https://x.test/b")); ok {
		t.Error("a popped URL was added again")
	}
	if !q.HasSeen(mustParseURL("https://x.test/c")) {
		t.Error("HasSeen returned false for a popped URL")
	}
	if q.HasSeen(mustParseURL("https://x.test/d")) {
		t.Error("HasSeen returned true for a new URL")
	}
}

func TestQueue_ConcurrentAdd(t *testing.T) {
	q := newTestQueue(t)

	var wg sync.WaitGroup
	var added atomic.Int64
	for w := 0; w < 20; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				ok, err := q.Add(mustParseURL(fmt.Sprintf("https://x.test/%d", i)))
				if err != nil {
					t.Error(err)
					return
				}
				if ok {
					added.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	if n := added.Load(); n != 50 {
		t.Errorf("%d successful Add calls, want 50", n)
	}
	if q.Len() != 50 {
		t.Errorf("Len=%d, want 50", q.Len())
	}
}
