package channel

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// wsPeer is the service end of one test connection.
type wsPeer struct {
	conn     *websocket.Conn
	received chan message

	mu sync.Mutex
}

func (p *wsPeer) send(t *testing.T, event string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	p.mu.Lock()
	defer p.mu.Unlock()
	require.NoError(t, p.conn.WriteJSON(&message{Type: event, Payload: raw}))
}

func dialTestPeer(t *testing.T) (*Client, *wsPeer) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	peerCh := make(chan *wsPeer, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)

		peer := &wsPeer{conn: conn, received: make(chan message, 16)}
		peerCh <- peer

		for {
			var msg message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			peer.received <- msg
		}
	}))
	t.Cleanup(ts.Close)

	endpoint := "ws" + strings.TrimPrefix(ts.URL, "http")
	client, err := Dial(context.Background(), endpoint, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	peer := <-peerCh
	return client, peer
}

func TestEmitWritesEventFrame(t *testing.T) {
	client, peer := dialTestPeer(t)

	require.NoError(t, client.Emit(EventJoinLobby, &JoinLobbyPayload{
		LobbyId:    "ABCD",
		PlayerName: "Ada",
		IsHost:     true,
	}))

	select {
	case msg := <-peer.received:
		assert.Equal(t, EventJoinLobby, msg.Type)
		var payload JoinLobbyPayload
		require.NoError(t, json.Unmarshal(msg.Payload, &payload))
		assert.Equal(t, "ABCD", payload.LobbyId)
		assert.Equal(t, "Ada", payload.PlayerName)
		assert.True(t, payload.IsHost)
	case <-time.After(time.Second):
		t.Fatal("service never received the frame")
	}
}

func TestOnDispatchesEveryFrame(t *testing.T) {
	client, peer := dialTestPeer(t)

	got := make(chan ErrorPayload, 4)
	client.On(EventError, func(raw json.RawMessage) {
		var payload ErrorPayload
		require.NoError(t, json.Unmarshal(raw, &payload))
		got <- payload
	})

	peer.send(t, EventError, &ErrorPayload{Message: "first"})
	peer.send(t, EventError, &ErrorPayload{Message: "second"})

	assert.Equal(t, "first", (<-got).Message)
	assert.Equal(t, "second", (<-got).Message)
}

func TestOnceFiresOnce(t *testing.T) {
	client, peer := dialTestPeer(t)

	var fired int
	done := make(chan struct{}, 2)
	client.Once(EventGameStateUpdate, func(json.RawMessage) {
		fired++
	})
	client.On(EventGameStateUpdate, func(json.RawMessage) {
		done <- struct{}{}
	})

	peer.send(t, EventGameStateUpdate, &GameStateUpdatePayload{GameId: "g-1"})
	peer.send(t, EventGameStateUpdate, &GameStateUpdatePayload{GameId: "g-2"})

	<-done
	<-done
	assert.Equal(t, 1, fired)
}

func TestOffRemovesHandler(t *testing.T) {
	client, peer := dialTestPeer(t)

	fired := make(chan struct{}, 2)
	sub := client.On(EventLobbyUpdate, func(json.RawMessage) {
		fired <- struct{}{}
	})
	sentinel := make(chan struct{}, 2)
	client.On(EventGameStart, func(json.RawMessage) {
		sentinel <- struct{}{}
	})

	client.Off(sub)
	// cancelling twice, or cancelling a once that already fired, is a no-op
	client.Off(sub)
	client.Off(nil)

	peer.send(t, EventLobbyUpdate, &LobbyUpdatePayload{})
	peer.send(t, EventGameStart, &GameStartPayload{Id: "g-1"})

	<-sentinel
	select {
	case <-fired:
		t.Fatal("cancelled handler must not fire")
	default:
	}
}

func TestDisconnectMarksNotConnected(t *testing.T) {
	client, peer := dialTestPeer(t)
	require.True(t, client.Connected())

	peer.conn.Close()

	require.Eventually(t, func() bool { return !client.Connected() }, time.Second, 5*time.Millisecond)

	err := client.Emit(EventToggleReady, &ToggleReadyPayload{LobbyId: "ABCD"})
	require.ErrorIs(t, err, ErrNotConnected)
}
