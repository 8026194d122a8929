package toast

import (
	"testing"
	"time"
)

func TestSink_ShowAndAutoClear(t *testing.T) {
	s := NewSinkWithDuration(30 * time.Millisecond)
	s.Show("saved")

	n, ok := s.Current()
	if !ok || n.Message != "saved" || n.Kind != Info {
		t.Fatalf("got %+v ok=%v", n, ok)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := s.Current(); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("toast never cleared")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSink_ReplacementRestartsTimer(t *testing.T) {
	s := NewSinkWithDuration(60 * time.Millisecond)
	s.Show("first")
	time.Sleep(40 * time.Millisecond)
	s.ShowError("second")

	// The first toast's timer fires now; the second must survive it.
	time.Sleep(30 * time.Millisecond)
	n, ok := s.Current()
	if !ok || n.Message != "second" || n.Kind != Error {
		t.Fatalf("replacement did not reset the timer: %+v ok=%v", n, ok)
	}
}

func TestSink_SingleSlot(t *testing.T) {
	s := NewSinkWithDuration(time.Minute)
	s.Show("one")
	s.Show("two")

	n, _ := s.Current()
	if n.Message != "two" {
		t.Errorf("newest toast should replace, got %q", n.Message)
	}
}

func TestSink_SubscribeNotifies(t *testing.T) {
	s := NewSinkWithDuration(time.Minute)
	ch, unsub := s.Subscribe()
	defer unsub()

	s.Show("ping")
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no notification tick")
	}
}
