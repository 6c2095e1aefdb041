package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu     sync.Mutex
	msgs   chan []byte
	closed bool
}

func newFakeConn() *fakeConn { return &fakeConn{msgs: make(chan []byte, 8)} }

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.msgs <- data
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func startHub(t *testing.T) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := NewHub()
	go h.Run(ctx)
	return h
}

func receive(t *testing.T, f *fakeConn) Event {
	t.Helper()
	select {
	case raw := <-f.msgs:
		var ev Event
		require.NoError(t, json.Unmarshal(raw, &ev))
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return Event{}
	}
}

func TestNotifyReachesOnlyTargetUser(t *testing.T) {
	h := startHub(t)

	alice, bob := newFakeConn(), newFakeConn()
	ca, cb := NewClient(1, alice), NewClient(2, bob)
	h.Register(ca)
	h.Register(cb)
	go ca.WritePump()
	go cb.WritePump()
	require.Equal(t, 1, h.Connected(1))

	h.Notify(1, Event{Type: EventFriendRequest, Data: map[string]int64{"from": 2}})

	ev := receive(t, alice)
	assert.Equal(t, EventFriendRequest, ev.Type)
	select {
	case <-bob.msgs:
		t.Fatal("bob should not receive alice's event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnregisterClosesConnection(t *testing.T) {
	h := startHub(t)
	conn := newFakeConn()
	c := NewClient(7, conn)
	h.Register(c)
	done := make(chan struct{})
	go func() {
		c.WritePump()
		close(done)
	}()

	h.Unregister(c)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("write pump did not stop")
	}
	assert.True(t, conn.isClosed())
	assert.Equal(t, 0, h.Connected(7))

	// sending to a user without connections is a no-op
	h.Notify(7, Event{Type: EventTaskAssigned})
	assert.Equal(t, 0, h.Connected(7))
}

func TestNilHubNotify(t *testing.T) {
	var h *Hub
	assert.NotPanics(t, func() { h.Notify(1, Event{Type: EventTaskAssigned}) })
}

func TestHubCallsReturnAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub()
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	conn := newFakeConn()
	c := NewClient(3, conn)
	h.Register(c)
	pumpDone := make(chan struct{})
	go func() {
		c.WritePump()
		close(pumpDone)
	}()

	cancel()
	<-stopped

	returned := make(chan struct{})
	go func() {
		h.Unregister(c)
		assert.Equal(t, 0, h.Connected(3))
		late := NewClient(4, newFakeConn())
		h.Register(late)
		late.WritePump()
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("hub call blocked after shutdown")
	}
	<-pumpDone
	assert.True(t, conn.isClosed())
}
