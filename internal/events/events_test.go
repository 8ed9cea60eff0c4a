package events

import (
	"sync"
	"testing"
)

func TestBusSince(t *testing.T) {
	bus := NewBus(3)
	bus.Publish(Event{Type: TypeStatus, Message: "1"})
	bus.Publish(Event{Type: TypeStatus, Message: "2"})
	bus.Publish(Event{Type: TypeStatus, Message: "3"})

	events := bus.Since(1)
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Seq != 2 || events[1].Seq != 3 {
		t.Fatalf("unexpected seqs: %+v", events)
	}
	if events[0].Timestamp.IsZero() {
		t.Error("timestamp not assigned")
	}
	if bus.Last() != 3 {
		t.Errorf("Last() = %d, want 3", bus.Last())
	}
}

func TestBusCapsHistory(t *testing.T) {
	bus := NewBus(2)
	bus.Publish(Event{Message: "1"})
	bus.Publish(Event{Message: "2"})
	bus.Publish(Event{Message: "3"})

	events := bus.Since(0)
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Message != "2" || events[1].Message != "3" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestBusEmpty(t *testing.T) {
	if got := NewBus(0).Since(0); got != nil {
		t.Errorf("Since() on empty bus = %v, want nil", got)
	}
}

func TestBusSubscribe(t *testing.T) {
	bus := NewBus(10)
	var mu sync.Mutex
	var seen []int64
	bus.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.Seq)
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(Event{Type: TypeProgress})
		}()
	}
	wg.Wait()

	if len(seen) != 5 {
		t.Errorf("listener saw %d events, want 5", len(seen))
	}
	if bus.Last() != 5 {
		t.Errorf("Last() = %d, want 5", bus.Last())
	}
}

func TestBusKeepsLatestProgressPerFile(t *testing.T) {
	bus := NewBus(10)
	bus.Publish(Event{Type: TypeStatus, FileID: "a"})
	bus.Publish(Event{Type: TypeProgress, FileID: "a", Percent: 10})
	bus.Publish(Event{Type: TypeProgress, FileID: "b", Percent: 50})
	bus.Publish(Event{Type: TypeProgress, FileID: "a", Percent: 60})
	bus.Publish(Event{Type: TypeStatus, FileID: "a"})

	events := bus.Since(0)
	if len(events) != 4 {
		t.Fatalf("len = %d, want 4: %+v", len(events), events)
	}
	var percents []int
	for _, e := range events {
		if e.Type == TypeProgress {
			percents = append(percents, e.Percent)
		}
	}
	if len(percents) != 2 || percents[0] != 50 || percents[1] != 60 {
		t.Errorf("progress percents = %v, want [50 60]", percents)
	}
	if bus.Last() != 5 {
		t.Errorf("Last() = %d, want 5", bus.Last())
	}
}

func TestBusEnsureCapacity(t *testing.T) {
	bus := NewBus(2)
	bus.EnsureCapacity(1)
	if bus.Capacity() != 2 {
		t.Errorf("Capacity() = %d, want 2", bus.Capacity())
	}
	bus.EnsureCapacity(4)
	for i := 0; i < 4; i++ {
		bus.Publish(Event{Type: TypeStatus})
	}
	if got := len(bus.Since(0)); got != 4 {
		t.Errorf("len = %d, want 4", got)
	}
}
