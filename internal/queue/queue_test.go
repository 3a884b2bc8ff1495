package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	domerrors "github.com/hermod-chat/hermod/internal/errors"
	"github.com/hermod-chat/hermod/internal/storage"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()

	db, err := storage.NewTestDB()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return New(db)
}

func TestKey(t *testing.T) {
	got := Key("pizzabot", "12345", KindMessage)
	want := "pizzabot:users:12345:messages"
	if got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}

	if Key("pizzabot", "12345", KindMessage) == Key("pizzabot", "12345", KindPostback) {
		t.Error("message and postback keys for the same user must differ")
	}
	if Key("pizzabot", "1", KindMessage) == Key("pizzabot", "2", KindMessage) {
		t.Error("keys for different users must differ")
	}
	if Key("pizzabot", "1", KindMessage) == Key("weatherbot", "1", KindMessage) {
		t.Error("keys for different namespaces must differ")
	}
}

func TestPushPopFIFO(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	key := Key("pizzabot", "100", KindMessage)

	var pushed [][]byte
	for i := 0; i < 10; i++ {
		entry := []byte(fmt.Sprintf(`{"seq":%d}`, i))
		pushed = append(pushed, entry)
		if err := q.Push(ctx, key, entry); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}

	for i, want := range pushed {
		got, err := q.Pop(ctx, key)
		if err != nil {
			t.Fatalf("pop %d: %v", i, err)
		}
		if string(got) != string(want) {
			t.Errorf("pop %d = %s, want %s", i, got, want)
		}
	}
}

func TestPopEmpty(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	key := Key("pizzabot", "100", KindMessage)

	_, err := q.Pop(ctx, key)
	if !errors.Is(err, domerrors.ErrQueueEmpty) {
		t.Fatalf("pop on empty queue: err = %v, want ErrQueueEmpty", err)
	}

	// Popping again stays a no-op.
	_, err = q.Pop(ctx, key)
	if !errors.Is(err, domerrors.ErrQueueEmpty) {
		t.Fatalf("second pop on empty queue: err = %v, want ErrQueueEmpty", err)
	}
}

func TestKeyIsolation(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	keyA := Key("pizzabot", "1", KindMessage)
	keyB := Key("pizzabot", "2", KindMessage)
	keyC := Key("pizzabot", "1", KindPostback)

	if err := q.Push(ctx, keyA, []byte("a")); err != nil {
		t.Fatal(err)
	}
	if err := q.Push(ctx, keyC, []byte("c")); err != nil {
		t.Fatal(err)
	}

	if _, err := q.Pop(ctx, keyB); !errors.Is(err, domerrors.ErrQueueEmpty) {
		t.Errorf("pop other user's queue: err = %v, want ErrQueueEmpty", err)
	}

	got, err := q.Pop(ctx, keyA)
	if err != nil || string(got) != "a" {
		t.Errorf("pop keyA = %s, %v, want a", got, err)
	}
	got, err = q.Pop(ctx, keyC)
	if err != nil || string(got) != "c" {
		t.Errorf("pop keyC = %s, %v, want c", got, err)
	}
}

func TestConcurrentPopExclusive(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	key := Key("pizzabot", "100", KindMessage)

	const n = 50
	for i := 0; i < n; i++ {
		if err := q.Push(ctx, key, []byte(fmt.Sprintf("%d", i))); err != nil {
			t.Fatal(err)
		}
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				entry, err := q.Pop(ctx, key)
				if errors.Is(err, domerrors.ErrQueueEmpty) {
					return
				}
				if err != nil {
					t.Errorf("pop: %v", err)
					return
				}
				mu.Lock()
				seen[string(entry)]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Fatalf("drained %d distinct entries, want %d", len(seen), n)
	}
	for entry, count := range seen {
		if count != 1 {
			t.Errorf("entry %s popped %d times, want exactly once", entry, count)
		}
	}
}

func TestDepth(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	key := Key("pizzabot", "100", KindMessage)

	d, err := q.Depth(ctx, key)
	if err != nil || d != 0 {
		t.Fatalf("depth = %d, %v, want 0", d, err)
	}

	for i := 0; i < 3; i++ {
		if err := q.Push(ctx, key, []byte("x")); err != nil {
			t.Fatal(err)
		}
	}
	d, err = q.Depth(ctx, key)
	if err != nil || d != 3 {
		t.Fatalf("depth = %d, %v, want 3", d, err)
	}

	if _, err := q.Pop(ctx, key); err != nil {
		t.Fatal(err)
	}
	d, err = q.Depth(ctx, key)
	if err != nil || d != 2 {
		t.Fatalf("depth after pop = %d, %v, want 2", d, err)
	}
}
