package websocket

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emicli/internal/shared/testutil"
)

func TestWritePumpDeliversFramesInOrder(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	conn := newFakeConn()
	client := NewClientWithConnection(NewHub(logger), conn, logger)

	client.send <- []byte("one")
	client.send <- []byte("two")
	client.send <- []byte("three")
	close(client.send)

	// Runs to completion: the closed channel ends the pump after the queue
	// drains.
	client.WritePump()

	writes := conn.written()
	require.Len(t, writes, 4)
	assert.Equal(t, "one", string(writes[0]))
	assert.Equal(t, "two", string(writes[1]))
	assert.Equal(t, "three", string(writes[2]))

	types := conn.frameTypes()
	assert.Equal(t, []int{
		websocket.TextMessage,
		websocket.TextMessage,
		websocket.TextMessage,
		websocket.CloseMessage,
	}, types)
	assert.True(t, conn.isClosed())
}

func TestReadPumpUnregistersOnClose(t *testing.T) {
	hub := startHub(t)
	logger, _ := testutil.NewTestLogger(t)

	conn := newFakeConn()
	client := NewClientWithConnection(hub, conn, logger)
	hub.Register(client)
	receive(t, client)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	go client.ReadPump()

	conn.reads <- []byte(`{"type":"heartbeat"}`)
	close(conn.reads)

	require.Eventually(t, func() bool { return hub.ClientCount() == 0 },
		2*time.Second, 10*time.Millisecond)
	require.Eventually(t, conn.isClosed, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), client.messagesReceived)
}
