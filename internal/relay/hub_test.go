package relay

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHub sets up a Hub with a test HTTP server that upgrades connections.
// Returns the hub and a dial function yielding the connection and its id.
func testHub(t *testing.T) (*Hub, func() (*ws.Conn, uuid.UUID)) {
	t.Helper()

	hub := NewHub(clockwork.NewRealClock())
	t.Cleanup(func() { hub.Stop() })

	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	idCh := make(chan uuid.UUID, 16)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		id, err := hub.Register(conn)
		if err != nil {
			t.Errorf("register failed: %v", err)
			return
		}
		idCh <- id

		// Read loop to detect disconnects
		go func() {
			defer hub.Unregister(id)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					break
				}
			}
		}()
	}))
	t.Cleanup(func() { server.Close() })

	dial := func() (*ws.Conn, uuid.UUID) {
		t.Helper()
		url := "ws" + strings.TrimPrefix(server.URL, "http")
		conn, _, err := ws.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		id := <-idCh
		return conn, id
	}

	return hub, dial
}

// waitForClientCount polls until the hub reports the expected count.
func waitForClientCount(hub *Hub, expected int) bool {
	for iter := 0; iter < 100; iter++ {
		if hub.ClientCount() == expected {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

func waitForAdminCount(hub *Hub, expected int) bool {
	for iter := 0; iter < 100; iter++ {
		if hub.AdminCount() == expected {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

func readFrame(t *testing.T, conn *ws.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	return msg
}

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	hub, dial := testHub(t)

	conn1, _ := dial()
	conn2, _ := dial()
	conn3, _ := dial()
	require.True(t, waitForClientCount(hub, 3))

	frame := []byte(`{"event":"task-created","payload":{"id":1}}`)
	hub.Broadcast(KindTaskCreated, frame)

	for _, conn := range []*ws.Conn{conn1, conn2, conn3} {
		assert.Equal(t, frame, readFrame(t, conn))
	}
}

func TestHub_LateConnectionMissesEarlierBroadcast(t *testing.T) {
	hub, dial := testHub(t)

	conn1, _ := dial()
	require.True(t, waitForClientCount(hub, 1))

	frame := []byte(`{"event":"task-deleted","payload":{"id":9}}`)
	hub.Broadcast(KindTaskDeleted, frame)
	// The count query is a barrier: by the time it answers, the broadcast
	// command queued before it has been handled.
	require.Equal(t, 1, hub.ClientCount())

	late, _ := dial()
	require.True(t, waitForClientCount(hub, 2))

	assert.Equal(t, frame, readFrame(t, conn1))

	require.NoError(t, late.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := late.ReadMessage()
	assert.Error(t, err, "late connection must not receive the earlier broadcast")
}

func TestHub_DisconnectCleanup(t *testing.T) {
	hub, dial := testHub(t)

	conn1, id1 := dial()
	conn2, _ := dial()
	require.True(t, waitForClientCount(hub, 2))

	hub.JoinAdmin(id1)
	require.True(t, waitForAdminCount(hub, 1))

	conn1.Close()
	require.True(t, waitForClientCount(hub, 1))
	require.True(t, waitForAdminCount(hub, 0), "disconnect must clear group membership")

	frame := []byte(`{"event":"task-updated-data","payload":{"id":3}}`)
	hub.Broadcast(KindTaskUpdatedData, frame)

	assert.Equal(t, frame, readFrame(t, conn2))
}

func TestHub_UnregisterIdempotent(t *testing.T) {
	hub, dial := testHub(t)

	_, id := dial()
	require.True(t, waitForClientCount(hub, 1))

	hub.Unregister(id)
	require.True(t, waitForClientCount(hub, 0))

	// Second unregister for the same id is a no-op.
	hub.Unregister(id)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_JoinAdminIdempotent(t *testing.T) {
	hub, dial := testHub(t)

	_, id := dial()
	require.True(t, waitForClientCount(hub, 1))

	hub.JoinAdmin(id)
	hub.JoinAdmin(id)
	require.True(t, waitForAdminCount(hub, 1))
	assert.Equal(t, 1, hub.AdminCount())
}

func TestHub_JoinAdminUnknownConnection(t *testing.T) {
	hub, dial := testHub(t)

	dial()
	require.True(t, waitForClientCount(hub, 1))

	hub.JoinAdmin(uuid.New())
	require.Equal(t, 1, hub.ClientCount()) // barrier
	assert.Equal(t, 0, hub.AdminCount())
}

func TestHub_OrderPreserved(t *testing.T) {
	hub, dial := testHub(t)

	conn, _ := dial()
	require.True(t, waitForClientCount(hub, 1))

	first := []byte(`{"event":"task-created","payload":{"seq":1}}`)
	second := []byte(`{"event":"task-created","payload":{"seq":2}}`)
	hub.Broadcast(KindTaskCreated, first)
	hub.Broadcast(KindTaskCreated, second)

	assert.Equal(t, first, readFrame(t, conn))
	assert.Equal(t, second, readFrame(t, conn))
}

func TestHub_PartialFailureIsolation(t *testing.T) {
	hub, dial := testHub(t)

	conn1, _ := dial()
	conn2, _ := dial()
	conn3, _ := dial()
	require.True(t, waitForClientCount(hub, 3))

	// Force-close one connection immediately before the broadcast.
	conn3.Close()

	frame := []byte(`{"event":"task-status-updated","payload":{"id":5,"status":"done"}}`)
	hub.Broadcast(KindTaskStatusUpdated, frame)

	// The two surviving connections still receive the event.
	assert.Equal(t, frame, readFrame(t, conn1))
	assert.Equal(t, frame, readFrame(t, conn2))
}

func TestHub_PayloadPassthroughByteForByte(t *testing.T) {
	hub, dial := testHub(t)

	conn, _ := dial()
	require.True(t, waitForClientCount(hub, 1))

	// Unusual spacing, key order, and unicode must survive unchanged.
	frame := []byte(`{"event":"task-updated-data","payload":{ "z":1 ,"a" : "müller ✓" }}`)
	hub.Broadcast(KindTaskUpdatedData, frame)

	assert.Equal(t, frame, readFrame(t, conn))
}

func TestHub_Stop(t *testing.T) {
	hub := NewHub(clockwork.NewRealClock())
	hub.Stop()

	_, err := hub.Register(nil)
	assert.ErrorIs(t, err, ErrHubStopped)
	assert.Equal(t, -1, hub.ClientCount())
	assert.Equal(t, -1, hub.AdminCount())

	// Idempotent
	hub.Stop()
}

func TestHub_StopClosesClients(t *testing.T) {
	hub, dial := testHub(t)

	conn, _ := dial()
	require.True(t, waitForClientCount(hub, 1))

	hub.Stop()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "connection must be closed after hub stop")
}
