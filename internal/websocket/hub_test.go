package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/parsey/docpreview/internal/model"
	"github.com/parsey/docpreview/internal/progress"
)

func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case msg, ok := <-c.Send:
		if !ok {
			t.Fatal("client channel closed")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return nil
}

func waitSubscribers(t *testing.T, h *Hub, runID string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Subscribers(runID) != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d subscribers for %s, got %d", n, runID, h.Subscribers(runID))
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHub_BroadcastReachesRunSubscribersOnly(t *testing.T) {
	h := NewHub()
	go h.Run()
	defer h.Stop()

	a := NewClient("run-a")
	b := NewClient("run-b")
	h.Register(a)
	h.Register(b)
	waitSubscribers(t, h, "run-a", 1)
	waitSubscribers(t, h, "run-b", 1)

	h.BroadcastProgress("run-a", progress.State{PhaseID: "paragraphs", OverallPercent: 40})

	var msg model.WSProgressMessage
	if err := json.Unmarshal(receive(t, a), &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != model.WSMessageTypeProgress || msg.RunID != "run-a" || msg.Progress.PhaseID != "paragraphs" {
		t.Errorf("unexpected message %+v", msg)
	}

	select {
	case m := <-b.Send:
		t.Errorf("run-b received a message for run-a: %s", m)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHub_ErrorMessage(t *testing.T) {
	h := NewHub()
	go h.Run()
	defer h.Stop()

	c := NewClient("run-1")
	h.Register(c)
	waitSubscribers(t, h, "run-1", 1)

	h.BroadcastError("run-1", model.RunErrorBackend, "request timed out")

	var msg model.WSErrorMessage
	if err := json.Unmarshal(receive(t, c), &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Error.Code != model.RunErrorBackend || msg.Error.Message != "request timed out" {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestHub_UnregisterClosesClient(t *testing.T) {
	h := NewHub()
	go h.Run()
	defer h.Stop()

	c := NewClient("run-1")
	h.Register(c)
	waitSubscribers(t, h, "run-1", 1)
	h.Unregister(c)
	waitSubscribers(t, h, "run-1", 0)

	if _, ok := <-c.Send; ok {
		t.Error("expected closed channel after unregister")
	}
	// A second unregister is a no-op.
	h.Unregister(c)
}

func TestHub_StopReleasesBroadcasters(t *testing.T) {
	h := NewHub()
	go h.Run()

	c := NewClient("run-1")
	h.Register(c)
	waitSubscribers(t, h, "run-1", 1)
	h.Stop()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			h.BroadcastUpload("run-1", progress.RunUploading, i%100)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked after Stop")
	}
}

func TestHub_SubscribeSeesEventsDuringSnapshot(t *testing.T) {
	h := NewHub()
	go h.Run()
	defer h.Stop()

	// The run completes while the subscriber is reading its status.
	c := h.Subscribe("run-1", func() []byte {
		h.BroadcastComplete("run-1", map[string]string{"state": "completed"})
		return []byte(`{"type":"status"}`)
	})

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		var msg model.WSMessage
		if err := json.Unmarshal(receive(t, c), &msg); err != nil {
			t.Fatal(err)
		}
		got[msg.Type] = true
	}
	if !got[model.WSMessageTypeComplete] || !got[model.WSMessageTypeStatus] {
		t.Errorf("expected complete and status messages, got %v", got)
	}
}

func TestHub_SendToUnregisteredClientIsDropped(t *testing.T) {
	h := NewHub()
	go h.Run()
	defer h.Stop()

	c := NewClient("run-1")
	h.SendTo(c, []byte(`{"type":"status"}`))

	select {
	case m := <-c.Send:
		t.Errorf("unregistered client received %s", m)
	case <-time.After(20 * time.Millisecond):
	}
}
