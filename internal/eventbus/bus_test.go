package eventbus

import (
	"errors"
	"testing"
)

func TestInbox_DrainInOrder(t *testing.T) {
	in := New()

	in.Post(BridgeFound("10.0.0.2"))
	in.Post(UserRegistered("10.0.0.2", "user"))
	in.Post(Failed(errors.New("boom")))

	events := in.Drain()
	if len(events) != 3 {
		t.Fatalf("Drain() returned %d events, want 3", len(events))
	}

	want := []EventType{EventBridgeFound, EventUserRegistered, EventError}
	for i, e := range events {
		if e.Type != want[i] {
			t.Errorf("event %d type = %s, want %s", i, e.Type, want[i])
		}
		if e.ID == "" {
			t.Errorf("event %d has no id", i)
		}
	}
	if events[1].Username != "user" || events[1].Address != "10.0.0.2" {
		t.Errorf("registered event = %+v", events[1])
	}

	if again := in.Drain(); len(again) != 0 {
		t.Errorf("second Drain() returned %d events, want 0", len(again))
	}
}

func TestInbox_DropsWhenFull(t *testing.T) {
	in := NewWithSize(2)

	if !in.Post(BridgeFound("a")) || !in.Post(BridgeFound("b")) {
		t.Fatal("Post() dropped an event below capacity")
	}
	if in.Post(BridgeFound("c")) {
		t.Error("Post() on a full inbox should drop")
	}
	if got := len(in.Drain()); got != 2 {
		t.Errorf("Drain() returned %d events, want 2", got)
	}
}

func TestInbox_CloseDropsNewEvents(t *testing.T) {
	in := New()
	in.Post(BridgeFound("a"))
	in.Close()
	in.Close()

	if in.Post(BridgeFound("b")) {
		t.Error("Post() after Close should drop")
	}
	if events := in.Drain(); len(events) != 1 {
		t.Errorf("Drain() after Close returned %d events, want 1", len(events))
	}
}
