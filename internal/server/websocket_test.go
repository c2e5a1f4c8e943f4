package server

import (
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostpulse/hostpulse/pkg/types"
)

func wsDial(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws/live"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLiveSocketStreamsUpdates(t *testing.T) {
	env := newTestEnv(t)
	env.tick(t, 1)

	first := wsDial(t, env)
	second := wsDial(t, env)
	waitFor(t, func() bool { return env.srv.hub.ClientCount() == 2 })

	env.srv.hub.Publish(env.mon.Latest())

	for _, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var upd types.LiveUpdate
		require.NoError(t, conn.ReadJSON(&upd))
		assert.Equal(t, types.MessageTypeUpdate, upd.Type)
		require.NotNil(t, upd.System)
		assert.InDelta(t, 43, upd.System.CPUPercent, 0.01)
		assert.Equal(t, 1, upd.RecordCount)
		assert.Greater(t, upd.HealthScore, 0)
	}
}

func TestLiveSocketRejectsUnknownOrigin(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws/live"
	header := map[string][]string{"Origin": {"https://evil.example.com"}}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if conn != nil {
		conn.Close()
	}
	if resp != nil {
		resp.Body.Close()
	}
	require.Error(t, err, "handshake should be refused")
	assert.Equal(t, 0, env.srv.hub.ClientCount())
}

func TestCloseAllDisconnectsClients(t *testing.T) {
	env := newTestEnv(t)

	conn := wsDial(t, env)
	waitFor(t, func() bool { return env.srv.hub.ClientCount() == 1 })

	env.srv.hub.closeAll()
	assert.Equal(t, 0, env.srv.hub.ClientCount())

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "server side should have closed the connection")

	// The hub refuses connections after shutdown.
	late, resp, dialErr := websocket.DefaultDialer.Dial(
		"ws"+strings.TrimPrefix(env.ts.URL, "http")+"/ws/live", nil)
	if resp != nil {
		resp.Body.Close()
	}
	if dialErr == nil {
		late.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, _, readErr := late.ReadMessage()
		assert.Error(t, readErr)
		late.Close()
	}
	assert.Equal(t, 0, env.srv.hub.ClientCount())
}
