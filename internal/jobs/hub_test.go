package jobs

import (
	"testing"
	"time"
)

func TestHubDeliversInOrder(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("job-1")
	defer cancel()

	for i := 1; i <= 3; i++ {
		hub.Publish("job-1", StatusRunning, Progress{Percent: float64(i * 10)})
	}

	for i := 1; i <= 3; i++ {
		select {
		case event := <-ch:
			if event.Seq != int64(i) {
				t.Fatalf("event %d has seq %d", i, event.Seq)
			}
			if event.Progress.Percent != float64(i*10) {
				t.Fatalf("event %d percent %v", i, event.Progress.Percent)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestHubLateSubscriberGetsSnapshotFirst(t *testing.T) {
	hub := NewHub()
	hub.Publish("job-1", StatusRunning, Progress{Phase: "render", Percent: 40})
	hub.Publish("job-1", StatusRunning, Progress{Phase: "render", Percent: 55})

	ch, cancel := hub.Subscribe("job-1")
	defer cancel()

	select {
	case event := <-ch:
		if event.Progress.Percent != 55 {
			t.Fatalf("snapshot percent = %v, want latest 55", event.Progress.Percent)
		}
	case <-time.After(time.Second):
		t.Fatal("snapshot not delivered immediately")
	}

	hub.Publish("job-1", StatusRunning, Progress{Phase: "render", Percent: 60})
	select {
	case event := <-ch:
		if event.Progress.Percent != 60 {
			t.Fatalf("live event percent = %v, want 60", event.Progress.Percent)
		}
		if event.Seq != 3 {
			t.Fatalf("live event seq = %d", event.Seq)
		}
	case <-time.After(time.Second):
		t.Fatal("live event not delivered after snapshot")
	}
}

func TestHubSnapshotWithoutSubscription(t *testing.T) {
	hub := NewHub()
	if _, ok := hub.Snapshot("nope"); ok {
		t.Fatal("unknown job should have no snapshot")
	}
	hub.Publish("job-1", StatusCompleted, Progress{Percent: 100})
	event, ok := hub.Snapshot("job-1")
	if !ok || event.Status != StatusCompleted {
		t.Fatalf("snapshot = %+v ok=%v", event, ok)
	}
}

func TestHubIsolatesJobs(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("job-a")
	defer cancel()

	hub.Publish("job-b", StatusRunning, Progress{Percent: 10})
	select {
	case event := <-ch:
		t.Fatalf("received event for wrong job: %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubForgetDisconnects(t *testing.T) {
	hub := NewHub()
	hub.Publish("job-1", StatusRunning, Progress{})
	ch, cancel := hub.Subscribe("job-1")
	defer cancel()
	<-ch // drain snapshot

	hub.Forget("job-1")
	if _, ok := hub.Snapshot("job-1"); ok {
		t.Fatal("snapshot should be gone after Forget")
	}
	if _, open := <-ch; open {
		t.Fatal("subscriber channel should close on Forget")
	}
}
