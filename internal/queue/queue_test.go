package queue

import (
	"context"
	"testing"
	"time"
)

func TestDropOldestOverflow(t *testing.T) {
	q := New[int](3)
	for i := 1; i <= 5; i++ {
		q.Push(i)
	}
	if got := q.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}
	if got := q.Dropped(); got != 2 {
		t.Fatalf("Dropped() = %d, want 2", got)
	}

	want := []int{3, 4, 5}
	for _, w := range want {
		v, ok := q.TryPop()
		if !ok || v != w {
			t.Fatalf("TryPop() = %d, %v; want %d, true", v, ok, w)
		}
	}
	if _, ok := q.TryPop(); ok {
		t.Fatalf("TryPop() on empty queue returned ok=true")
	}
}

func TestPopBlocksUntilPush(t *testing.T) {
	q := New[string](4)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan string, 1)
	go func() {
		v, ok := q.Pop(ctx)
		if ok {
			done <- v
		} else {
			done <- ""
		}
	}()

	time.Sleep(20 * time.Millisecond)
	q.Push("hello")

	select {
	case v := <-done:
		if v != "hello" {
			t.Fatalf("Pop() = %q, want %q", v, "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("Pop() did not return after Push")
	}
}

func TestPopRespectsCancellation(t *testing.T) {
	q := New[int](1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, ok := q.Pop(ctx); ok {
		t.Fatal("Pop() on cancelled context returned ok=true")
	}
}
