package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/agentflow/common/logger"
)

func testClient(workflowID string) *Client {
	return &Client{
		workflowID: workflowID,
		username:   "alice",
		send:       make(chan []byte, 4),
	}
}

func recvFrame(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case data := <-c.send:
		return data
	case <-time.After(time.Second):
		t.Fatal("no frame received")
		return nil
	}
}

func TestBroadcastReachesWorkflowSubscribersOnly(t *testing.T) {
	hub := NewHub(logger.New("error", "json"))
	go hub.Run()

	a := testClient("wf-1")
	b := testClient("wf-1")
	other := testClient("wf-2")

	hub.registerClient(a)
	hub.registerClient(b)
	hub.registerClient(other)

	hub.broadcastToWorkflow(&Message{WorkflowID: "wf-1", Data: []byte(`{"event_type":"node_started"}`)})

	assert.Equal(t, `{"event_type":"node_started"}`, string(recvFrame(t, a)))
	assert.Equal(t, `{"event_type":"node_started"}`, string(recvFrame(t, b)))

	select {
	case <-other.send:
		t.Fatal("subscriber of another workflow received the frame")
	default:
	}
}

func TestUnregisterRemovesClient(t *testing.T) {
	hub := NewHub(logger.New("error", "json"))

	a := testClient("wf-1")
	hub.registerClient(a)
	require.Equal(t, 1, hub.ConnectionCount())

	hub.unregisterClient(a)
	assert.Equal(t, 0, hub.ConnectionCount())

	// send channel is closed exactly once, even if the slow-consumer
	// path races the unregister
	_, open := <-a.send
	assert.False(t, open)
	a.closeSend()
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	hub := NewHub(logger.New("error", "json"))

	slow := testClient("wf-1")
	hub.registerClient(slow)

	frame := []byte("x")
	for i := 0; i < cap(slow.send); i++ {
		slow.send <- frame
	}

	hub.broadcastToWorkflow(&Message{WorkflowID: "wf-1", Data: frame})

	// buffer was full, so the hub closed the channel instead of blocking
	for i := 0; i < cap(slow.send); i++ {
		<-slow.send
	}
	_, open := <-slow.send
	assert.False(t, open)
}

func TestWorkflowIDFromPath(t *testing.T) {
	id, err := workflowIDFromPath("/api/ws/workflows/0b9f6a70-1111-2222-3333-444455556666")
	require.NoError(t, err)
	assert.Equal(t, "0b9f6a70-1111-2222-3333-444455556666", id.String())

	_, err = workflowIDFromPath("/api/ws/workflows/")
	assert.Error(t, err)

	_, err = workflowIDFromPath("/api/ws/workflows/not-a-uuid")
	assert.Error(t, err)
}
