package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunequiz/lobby/internal/catalog"
	"github.com/tunequiz/lobby/internal/channel"
	"github.com/tunequiz/lobby/internal/channel/channeltest"
	"github.com/tunequiz/lobby/internal/lobby"
)

type recordingUI struct {
	mu       sync.Mutex
	state    lobby.State
	handoffs []lobby.GameHandoff
	alerts   []string
	exits    int
}

func (u *recordingUI) RenderLobby(state lobby.State) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.state = state
}

func (u *recordingUI) Alert(message string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.alerts = append(u.alerts, message)
}

func (u *recordingUI) EnterGame(handoff lobby.GameHandoff) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.handoffs = append(u.handoffs, handoff)
}

func (u *recordingUI) ExitToHome() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.exits++
}

func (u *recordingUI) snapshot() lobby.State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

func (u *recordingUI) handoff() (lobby.GameHandoff, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.handoffs) == 0 {
		return lobby.GameHandoff{}, false
	}
	return u.handoffs[0], true
}

func TestLobbyFlow(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	coordinator := channeltest.New(logger)
	ts := httptest.NewServer(coordinator.Router())
	defer ts.Close()
	endpoint := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	catalogTs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items": [
			{"id": "pl-1", "name": "Road Trip", "tracks": {"total": 42}, "images": [{"url": "https://img/1"}]},
			{"id": "pl-2", "name": "Podcast Feed"},
			{"id": "pl-3", "name": "Focus", "tracks": {"total": 7}}
		]}`)
	}))
	defer catalogTs.Close()

	ctx := context.Background()

	// host joins and implicitly creates the lobby
	hostCh, err := channel.Dial(ctx, endpoint, logger)
	require.NoError(t, err)
	defer hostCh.Close()

	hostUI := &recordingUI{}
	host := lobby.NewSession(hostCh, hostUI, &lobby.Params{
		LobbyId:     "ABCD",
		PlayerName:  "Ada",
		IsHost:      true,
		AccessToken: "token-123",
	}, logger)
	defer host.Close()
	require.NoError(t, host.Join())
	t.Log("host joined")

	require.Eventually(t, func() bool {
		return len(hostUI.snapshot().Players) == 1
	}, time.Second, 5*time.Millisecond)

	// guest joins the existing lobby
	guestCh, err := channel.Dial(ctx, endpoint, logger)
	require.NoError(t, err)
	defer guestCh.Close()

	guestUI := &recordingUI{}
	guest := lobby.NewSession(guestCh, guestUI, &lobby.Params{
		LobbyId:    "ABCD",
		PlayerName: "Grace",
	}, logger)
	defer guest.Close()
	require.NoError(t, guest.Join())

	require.Eventually(t, func() bool {
		return len(hostUI.snapshot().Players) == 2 && len(guestUI.snapshot().Players) == 2
	}, time.Second, 5*time.Millisecond)
	t.Log("guest joined")

	assert.False(t, host.CanStart(), "start must stay disabled before readiness and selection")

	// guest readies up, both sides converge on the snapshot
	require.NoError(t, guest.ToggleReady())
	require.Eventually(t, func() bool {
		players := hostUI.snapshot().Players
		for _, p := range players {
			if p.Name == "Grace" && p.IsReady {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
	t.Log("guest ready")

	// host fetches the catalog and picks a playlist
	playlists, err := catalog.NewClient(catalogTs.URL, logger).MyPlaylists(ctx, "token-123")
	require.NoError(t, err)
	require.Len(t, playlists, 2, "the item without track metadata is dropped")
	host.SetPlaylists(playlists)
	require.NoError(t, host.SelectPlaylist(playlists[0]))

	require.Eventually(t, func() bool {
		selected := guestUI.snapshot().SelectedPlaylist
		return selected != nil && selected.Id == "pl-1"
	}, time.Second, 5*time.Millisecond)
	t.Log("playlist selected")

	require.Eventually(t, host.CanStart, time.Second, 5*time.Millisecond)

	// host starts the round; both screens navigate exactly once
	require.NoError(t, host.StartGame(ctx))

	hostHandoff, ok := hostUI.handoff()
	require.True(t, ok)
	assert.NotEmpty(t, hostHandoff.GameId)
	assert.Equal(t, "pl-1", hostHandoff.PlaylistId)
	assert.Equal(t, "token-123", hostHandoff.AccessToken)

	require.Eventually(t, func() bool {
		_, ok := guestUI.handoff()
		return ok
	}, time.Second, 5*time.Millisecond)
	guestHandoff, _ := guestUI.handoff()
	assert.Equal(t, hostHandoff.GameId, guestHandoff.GameId)
	assert.Empty(t, guestHandoff.AccessToken)
	t.Log("game started")

	assert.Zero(t, hostUI.exits)
	assert.Zero(t, guestUI.exits)
}

func TestGuestCannotJoinMissingLobby(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	coordinator := channeltest.New(logger)
	ts := httptest.NewServer(coordinator.Router())
	defer ts.Close()
	endpoint := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	ctx := context.Background()
	ch, err := channel.Dial(ctx, endpoint, logger)
	require.NoError(t, err)
	defer ch.Close()

	ui := &recordingUI{}
	session := lobby.NewSession(ch, ui, &lobby.Params{
		LobbyId:    "NOPE",
		PlayerName: "Grace",
	}, logger)
	defer session.Close()
	require.NoError(t, session.Join())

	// the coordination service answers with a fatal error event
	require.Eventually(t, func() bool {
		ui.mu.Lock()
		defer ui.mu.Unlock()
		return ui.exits == 1 && len(ui.alerts) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSecondHostIsRejected(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	coordinator := channeltest.New(logger)
	ts := httptest.NewServer(coordinator.Router())
	defer ts.Close()
	endpoint := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	ctx := context.Background()

	hostCh, err := channel.Dial(ctx, endpoint, logger)
	require.NoError(t, err)
	defer hostCh.Close()

	hostUI := &recordingUI{}
	host := lobby.NewSession(hostCh, hostUI, &lobby.Params{
		LobbyId:     "ABCD",
		PlayerName:  "Ada",
		IsHost:      true,
		AccessToken: "token-123",
	}, logger)
	defer host.Close()
	require.NoError(t, host.Join())

	require.Eventually(t, func() bool {
		return len(hostUI.snapshot().Players) == 1
	}, time.Second, 5*time.Millisecond)

	// a second claimed host violates the one-host invariant and is bounced
	imposterCh, err := channel.Dial(ctx, endpoint, logger)
	require.NoError(t, err)
	defer imposterCh.Close()

	imposterUI := &recordingUI{}
	imposter := lobby.NewSession(imposterCh, imposterUI, &lobby.Params{
		LobbyId:     "ABCD",
		PlayerName:  "Eve",
		IsHost:      true,
		AccessToken: "token-456",
	}, logger)
	defer imposter.Close()
	require.NoError(t, imposter.Join())

	require.Eventually(t, func() bool {
		imposterUI.mu.Lock()
		defer imposterUI.mu.Unlock()
		return imposterUI.exits == 1
	}, time.Second, 5*time.Millisecond)

	// the original lobby is untouched
	assert.Len(t, hostUI.snapshot().Players, 1)
	assert.Zero(t, hostUI.exits)
}
