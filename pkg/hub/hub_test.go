package hub

import (
	"context"
	"testing"
	"time"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New("test")
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.Done()
	})
	return h, cancel
}

func register(t *testing.T, h *Hub, buffer int) *Client {
	t.Helper()
	c := &Client{hub: h, send: make(chan Message, buffer)}
	select {
	case h.register <- c:
	case <-time.After(time.Second):
		t.Fatal("hub did not accept the client")
	}
	return c
}

func receive(t *testing.T, c *Client) (Message, bool) {
	t.Helper()
	select {
	case m, ok := <-c.send:
		return m, ok
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
		return Message{}, false
	}
}

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	h, _ := startHub(t)
	a, b := register(t, h, 4), register(t, h, 4)

	if err := h.BroadcastJSON(map[string]string{"tier": "npu"}); err != nil {
		t.Fatal(err)
	}
	for _, c := range []*Client{a, b} {
		m, ok := receive(t, c)
		if !ok || m.Binary() || string(m.Data) != `{"tier":"npu"}` {
			t.Errorf("got %+v, %v", m, ok)
		}
	}

	h.BroadcastBinary([]byte{0xff, 0xd8})
	if m, _ := receive(t, a); !m.Binary() || len(m.Data) != 2 {
		t.Errorf("binary message = %+v", m)
	}
	if got := h.ClientCount(); got != 2 {
		t.Errorf("ClientCount = %d, want 2", got)
	}
}

func TestHub_DropsSlowClient(t *testing.T) {
	h, _ := startHub(t)
	slow := register(t, h, 1)
	fast := register(t, h, 8)

	h.BroadcastBinary([]byte{1})
	h.BroadcastBinary([]byte{2})
	receive(t, fast)
	receive(t, fast)

	if _, ok := receive(t, slow); !ok {
		t.Fatal("slow client lost the first message")
	}
	if _, ok := receive(t, slow); ok {
		t.Error("slow client channel still open after overflow")
	}
	if got := h.ClientCount(); got != 1 {
		t.Errorf("ClientCount = %d, want 1", got)
	}
}

func TestHub_UnregisterAndShutdown(t *testing.T) {
	h, cancel := startHub(t)
	a := register(t, h, 1)
	b := register(t, h, 1)

	h.unregister <- a
	if _, ok := receive(t, a); ok {
		t.Error("unregistered client channel still open")
	}

	if !h.IsRunning() {
		t.Error("IsRunning = false while running")
	}
	cancel()
	<-h.Done()
	if _, ok := receive(t, b); ok {
		t.Error("client channel still open after shutdown")
	}
	if h.IsRunning() {
		t.Error("IsRunning = true after shutdown")
	}
	if c := NewClient(h, nil); c != nil {
		t.Error("NewClient succeeded on a stopped hub")
	}
}

func TestMessages(t *testing.T) {
	if m := ResultFrame([]byte{0xff, 0xd8}); !m.Binary() || m.Payload != ResultPayload {
		t.Errorf("ResultFrame = %+v", m)
	}

	m, err := StatusDocument(map[string]int{"crop": 96})
	if err != nil {
		t.Fatalf("StatusDocument: %v", err)
	}
	if m.Binary() || string(m.Data) != `{"crop":96}` {
		t.Errorf("StatusDocument = %+v", m)
	}

	if _, err := StatusDocument(make(chan int)); err == nil {
		t.Error("StatusDocument accepted an unencodable value")
	}
	h, _ := startHub(t)
	if err := h.BroadcastJSON(func() {}); err == nil {
		t.Error("BroadcastJSON accepted an unencodable value")
	}
}
