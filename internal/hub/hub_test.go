package hub

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketMirror/internal/app"
)

type received struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func newTestHub(t *testing.T, onControl func(app.Command)) (*Hub, *websocket.Conn) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	h := New(onControl, log)
	h.Notify(app.TabsLoaded{Active: 3})
	h.Notify(app.Countdown{Remaining: 42})
	h.Notify(app.Notice{Level: "warn", Text: "not replayed"})

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return h.Clients() == 1 }, time.Second, 10*time.Millisecond)
	return h, conn
}

func readMsg(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m received
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func TestHub_ReplaysLatestStateOnConnect(t *testing.T) {
	_, conn := newTestHub(t, nil)

	first := readMsg(t, conn)
	assert.Equal(t, "tabs", first.Type)
	assert.JSONEq(t, `{"tabs":null,"active":3}`, string(first.Data))

	second := readMsg(t, conn)
	assert.Equal(t, "countdown", second.Type)
	assert.JSONEq(t, `{"remaining":42}`, string(second.Data))
}

func TestHub_BroadcastsLiveEvents(t *testing.T) {
	h, conn := newTestHub(t, nil)
	readMsg(t, conn)
	readMsg(t, conn)

	h.Notify(app.RefreshState{Refreshing: true})

	m := readMsg(t, conn)
	assert.Equal(t, "refresh", m.Type)
	assert.JSONEq(t, `{"refreshing":true}`, string(m.Data))
}

func TestHub_ForwardsControlMessages(t *testing.T) {
	got := make(chan app.Command, 1)
	_, conn := newTestHub(t, func(c app.Command) { got <- c })

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "control", "action": "SELECT", "value": "AAPL"}))

	select {
	case c := <-got:
		assert.Equal(t, "select", c.Action)
		assert.JSONEq(t, `"AAPL"`, string(c.Value))
	case <-time.After(2 * time.Second):
		t.Fatal("control message not forwarded")
	}
}

func TestHub_IgnoresNonControlMessages(t *testing.T) {
	got := make(chan app.Command, 2)
	_, conn := newTestHub(t, func(c app.Command) { got <- c })

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "hello"}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "control", "action": "refresh"}))

	select {
	case c := <-got:
		assert.Equal(t, "refresh", c.Action)
	case <-time.After(2 * time.Second):
		t.Fatal("control message not forwarded")
	}
	assert.Empty(t, got)
}

func TestHub_ClientRemovedOnDisconnect(t *testing.T) {
	h, conn := newTestHub(t, nil)

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool { return h.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_ConnectDuringBroadcastsMissesNothing(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	h := New(nil, log)
	const start = 200
	h.Notify(app.Countdown{Remaining: start})

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	go func() {
		for n := start - 1; n >= 0; n-- {
			h.Notify(app.Countdown{Remaining: n})
			time.Sleep(100 * time.Microsecond)
		}
	}()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var c app.Countdown
	first := readMsg(t, conn)
	require.Equal(t, "countdown", first.Type)
	require.NoError(t, json.Unmarshal(first.Data, &c))
	for prev := c.Remaining; prev > 0; prev = c.Remaining {
		m := readMsg(t, conn)
		require.Equal(t, "countdown", m.Type)
		require.NoError(t, json.Unmarshal(m.Data, &c))
		require.Equal(t, prev-1, c.Remaining, "countdown skipped or repeated")
	}
	assert.Zero(t, h.Dropped())
}
