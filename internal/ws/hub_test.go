package ws_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"race-telemetry/internal/models"
	"race-telemetry/internal/store"
	"race-telemetry/internal/ws"

	gwebsocket "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHub(t *testing.T) (*ws.Hub, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "sensor_data.csv"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	hub := ws.NewHub(st)
	go hub.Run()
	return hub, st
}

func newWSServer(t *testing.T, hub *ws.Hub) *httptest.Server {
	t.Helper()
	upgrader := gwebsocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)

		client := ws.NewClient(hub, conn)
		hub.Register(client)
		go client.WritePump()
		go client.ReadPump()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *gwebsocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := gwebsocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *gwebsocket.Conn) ws.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var env ws.Envelope
	require.NoError(t, json.Unmarshal(msg, &env))
	return env
}

func TestPublishWithoutSubscribers(t *testing.T) {
	hub, _ := newHub(t)

	// Must neither error nor block; nothing is buffered for later.
	hub.Publish(models.Payload{DeviceID: "esp32-01"})
	assert.Equal(t, 0, hub.ClientCount())
}

func TestPublishReachesEverySubscriber(t *testing.T) {
	hub, _ := newHub(t)
	srv := newWSServer(t, hub)

	conn1 := dial(t, srv)
	conn2 := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 },
		2*time.Second, 10*time.Millisecond)

	hub.Publish(models.Payload{
		DeviceID: "esp32-01",
		Sensors:  &models.Sensors{RPM: 8500},
	})

	for _, conn := range []*gwebsocket.Conn{conn1, conn2} {
		env := readEnvelope(t, conn)
		assert.Equal(t, ws.EventTelemetryUpdate, env.Type)

		var p models.Payload
		require.NoError(t, json.Unmarshal(env.Payload, &p))
		assert.Equal(t, "esp32-01", p.DeviceID)
		require.NotNil(t, p.Sensors)
		assert.Equal(t, 8500.0, p.Sensors.RPM)
	}
}

func TestLateSubscriberGetsNoReplay(t *testing.T) {
	hub, _ := newHub(t)
	srv := newWSServer(t, hub)

	hub.Publish(models.Payload{DeviceID: "before-connect"})

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	hub.Publish(models.Payload{DeviceID: "after-connect"})

	env := readEnvelope(t, conn)
	assert.Equal(t, ws.EventTelemetryUpdate, env.Type)

	var p models.Payload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, "after-connect", p.DeviceID)
}

func TestRequestHistory(t *testing.T) {
	hub, st := newHub(t)
	srv := newWSServer(t, hub)

	for _, rpm := range []float64{1000, 2000, 3000} {
		p := models.Payload{
			Timestamp: time.Now().UTC().Format(models.TimestampLayout),
			Sensors:   &models.Sensors{RPM: rpm},
		}
		require.NoError(t, st.Append(p.Flatten()))
	}

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(ws.Envelope{
		Type:    ws.EventRequestHistory,
		Payload: json.RawMessage("2"),
	}))

	env := readEnvelope(t, conn)
	require.Equal(t, ws.EventHistoryData, env.Type)

	var rows []models.Row
	require.NoError(t, json.Unmarshal(env.Payload, &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "2000", rows[0].RPM)
	assert.Equal(t, "3000", rows[1].RPM)
}

func TestRequestHistoryDefaultLimit(t *testing.T) {
	hub, st := newHub(t)
	srv := newWSServer(t, hub)

	for i := 0; i < 3; i++ {
		require.NoError(t, st.Append((&models.Payload{}).Flatten()))
	}

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	// No payload: the default window of 50 applies.
	require.NoError(t, conn.WriteJSON(ws.Envelope{Type: ws.EventRequestHistory}))

	env := readEnvelope(t, conn)
	require.Equal(t, ws.EventHistoryData, env.Type)

	var rows []models.Row
	require.NoError(t, json.Unmarshal(env.Payload, &rows))
	assert.Len(t, rows, 3)
}
