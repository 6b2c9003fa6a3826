package updates_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"vidscribe/internal/tasks"
	"vidscribe/internal/updates"
)

func TestPublishDeliversInOrder(t *testing.T) {
	bus := updates.New()
	sub := bus.Subscribe("T1")
	defer sub.Close()

	for _, p := range []int{10, 30, 45} {
		bus.Publish("T1", tasks.Task{ID: "T1", Progress: p})
	}

	ctx := context.Background()
	last := -1
	for range 3 {
		evt, err := sub.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if evt.Type != updates.EventSnapshot {
			t.Fatalf("expected snapshot, got %s", evt.Type)
		}
		if evt.Task.Progress <= last {
			t.Fatalf("progress not increasing: %d after %d", evt.Task.Progress, last)
		}
		last = evt.Task.Progress
	}
}

func TestSlowSubscriberIsDroppedWithoutAffectingOthers(t *testing.T) {
	bus := updates.New(updates.WithBuffer(1))
	slow := bus.Subscribe("T1")
	fast := bus.Subscribe("T1")

	bus.Publish("T1", tasks.Task{Progress: 10})
	<-fast.C()
	delivered := bus.Publish("T1", tasks.Task{Progress: 20})

	if delivered != 1 {
		t.Fatalf("expected one delivery, got %d", delivered)
	}
	if bus.Count("T1") != 1 {
		t.Fatalf("expected slow subscriber removed, count=%d", bus.Count("T1"))
	}
	if got := <-fast.C(); got.Progress != 20 {
		t.Fatalf("fast subscriber got %d", got.Progress)
	}

	// slow still holds its buffered snapshot, then sees the close
	if evt, err := slow.Next(context.Background()); err != nil || evt.Task.Progress != 10 {
		t.Fatalf("expected buffered snapshot, got %+v %v", evt, err)
	}
	if _, err := slow.Next(context.Background()); !errors.Is(err, updates.ErrDropped) {
		t.Fatalf("expected ErrDropped, got %v", err)
	}
}

func TestUnsubscribeRemovesEmptyTaskEntry(t *testing.T) {
	bus := updates.New()
	a := bus.Subscribe("T1")
	b := bus.Subscribe("T1")
	a.Close()
	a.Close()
	if bus.Tasks() != 1 {
		t.Fatalf("expected task entry to remain, got %d", bus.Tasks())
	}
	b.Close()
	if bus.Tasks() != 0 {
		t.Fatalf("expected task entry removed, got %d", bus.Tasks())
	}
	if n := bus.Publish("T1", tasks.Task{}); n != 0 {
		t.Fatalf("publish without subscribers delivered %d", n)
	}
}

func TestNextProducesHeartbeatWhenIdle(t *testing.T) {
	bus := updates.New(updates.WithHeartbeat(10 * time.Millisecond))
	sub := bus.Subscribe("T1")
	defer sub.Close()

	evt, err := sub.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if evt.Type != updates.EventHeartbeat || evt.Task != nil {
		t.Fatalf("expected heartbeat, got %+v", evt)
	}
}

func TestNextHonorsContext(t *testing.T) {
	bus := updates.New()
	sub := bus.Subscribe("T1")
	defer sub.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := sub.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPublishIsolatesTasks(t *testing.T) {
	bus := updates.New()
	a := bus.Subscribe("A")
	defer a.Close()
	bus.Publish("B", tasks.Task{ID: "B"})
	select {
	case got := <-a.C():
		t.Fatalf("unexpected delivery %+v", got)
	default:
	}
}

func TestDropClosesAllSubscriptions(t *testing.T) {
	bus := updates.New()
	a := bus.Subscribe("T1")
	b := bus.Subscribe("T1")
	if n := bus.Drop("T1"); n != 2 {
		t.Fatalf("expected 2 dropped, got %d", n)
	}
	for _, sub := range []*updates.Subscription{a, b} {
		if _, err := sub.Next(context.Background()); !errors.Is(err, updates.ErrDropped) {
			t.Fatalf("expected ErrDropped, got %v", err)
		}
		sub.Close()
	}
	if bus.Tasks() != 0 {
		t.Fatalf("expected no tasks, got %d", bus.Tasks())
	}
}

func TestNextSkipsSnapshotsAlreadySeen(t *testing.T) {
	bus := updates.New(updates.WithHeartbeat(20 * time.Millisecond))
	sub := bus.Subscribe("T1")
	defer sub.Close()

	bus.Publish("T1", tasks.Task{ID: "T1", Version: 1, Progress: 5})
	bus.Publish("T1", tasks.Task{ID: "T1", Version: 2, Progress: 10})
	bus.Publish("T1", tasks.Task{ID: "T1", Version: 3, Progress: 30})
	bus.Publish("T1", tasks.Task{ID: "T1", Version: 2, Progress: 10})
	sub.SkipThrough(2)

	ctx := context.Background()
	evt, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if evt.Type != updates.EventSnapshot || evt.Task.Version != 3 || evt.Task.Progress != 30 {
		t.Fatalf("expected version 3 at 30%%, got %+v", evt)
	}
	evt, err = sub.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if evt.Type != updates.EventHeartbeat {
		t.Fatalf("stale snapshot delivered: %+v", evt.Task)
	}
}
