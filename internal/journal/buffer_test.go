package journal

import (
	"sync"
	"testing"
)

func TestBuffer_PushDrainFIFO(t *testing.T) {
	buf := NewBuffer[int](10)

	for i := 0; i < 5; i++ {
		if !buf.Push(i) {
			t.Fatalf("Push(%d) returned false", i)
		}
	}

	if buf.Len() != 5 {
		t.Errorf("Len() = %d, want 5", buf.Len())
	}

	got := buf.Drain(0)
	if len(got) != 5 {
		t.Fatalf("Drain(0) returned %d items, want 5", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Errorf("item %d = %d, want %d", i, v, i)
		}
	}

	if buf.Len() != 0 {
		t.Errorf("Len() = %d, want 0", buf.Len())
	}
	if got := buf.Drain(0); got != nil {
		t.Errorf("Drain(0) on empty = %v, want nil", got)
	}
}

func TestBuffer_GrowAt70Percent(t *testing.T) {
	buf := NewBuffer[int](10)

	for i := 0; i < 7; i++ {
		buf.Push(i)
	}

	stats := buf.Stats()
	if stats.Capacity != 20 {
		t.Errorf("Capacity = %d, want 20", stats.Capacity)
	}
	if stats.Resizes != 1 {
		t.Errorf("Resizes = %d, want 1", stats.Resizes)
	}

	got := buf.Drain(0)
	for i := 0; i < 7; i++ {
		if got[i] != i {
			t.Errorf("item %d = %d, want %d", i, got[i], i)
		}
	}
}

func TestBuffer_DrainLimit(t *testing.T) {
	buf := NewBuffer[int](100)
	for i := 0; i < 10; i++ {
		buf.Push(i)
	}

	first := buf.Drain(4)
	if len(first) != 4 {
		t.Fatalf("Drain(4) returned %d items, want 4", len(first))
	}
	if first[0] != 0 || first[3] != 3 {
		t.Errorf("Drain(4) = %v, want [0 1 2 3]", first)
	}
	if buf.Len() != 6 {
		t.Errorf("Len() = %d, want 6", buf.Len())
	}

	// Items remain, so the ready token is re-armed.
	select {
	case <-buf.Ready():
	default:
		t.Error("Ready() not signalled with items still queued")
	}
}

func TestBuffer_WrapAroundThenGrow(t *testing.T) {
	buf := NewBuffer[int](10)

	// Move head forward so the next pushes wrap.
	for i := 0; i < 5; i++ {
		buf.Push(i)
	}
	buf.Drain(5)

	for i := 100; i < 110; i++ {
		buf.Push(i)
	}

	got := buf.Drain(0)
	if len(got) != 10 {
		t.Fatalf("Drain(0) returned %d items, want 10", len(got))
	}
	for i, v := range got {
		if v != 100+i {
			t.Errorf("item %d = %d, want %d", i, v, 100+i)
		}
	}
}

func TestBuffer_Close(t *testing.T) {
	buf := NewBuffer[int](10)
	buf.Push(1)
	buf.Close()

	if buf.Push(2) {
		t.Error("Push() after Close returned true")
	}

	got := buf.Drain(0)
	if len(got) != 1 || got[0] != 1 {
		t.Errorf("Drain(0) after Close = %v, want [1]", got)
	}
}

func TestBuffer_ReadySignalledOnPush(t *testing.T) {
	buf := NewBuffer[string](4)

	select {
	case <-buf.Ready():
		t.Fatal("Ready() signalled on empty buffer")
	default:
	}

	buf.Push("a")
	buf.Push("b")

	select {
	case <-buf.Ready():
	default:
		t.Fatal("Ready() not signalled after Push")
	}
}

func TestBuffer_ConcurrentPushDrain(t *testing.T) {
	buf := NewBuffer[int](10)
	const numItems = 1000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < numItems; i++ {
			buf.Push(i)
		}
	}()

	received := make([]int, 0, numItems)
	for len(received) < numItems {
		<-buf.Ready()
		received = append(received, buf.Drain(0)...)
	}
	wg.Wait()

	for i, v := range received {
		if v != i {
			t.Fatalf("item %d = %d, want %d", i, v, i)
		}
	}

	stats := buf.Stats()
	if stats.Pushed != numItems || stats.Popped != numItems {
		t.Errorf("Pushed/Popped = %d/%d, want %d/%d", stats.Pushed, stats.Popped, numItems, numItems)
	}
}

func TestNewBuffer_MinCapacity(t *testing.T) {
	buf := NewBuffer[int](0)
	if buf.Cap() != 1 {
		t.Errorf("Cap() = %d, want 1", buf.Cap())
	}
	buf.Push(1)
	buf.Push(2)
	if buf.Len() != 2 {
		t.Errorf("Len() = %d, want 2", buf.Len())
	}
}
