// Package lobby holds the view model of the pre-game lobby screen: a
// read-mostly projection of the coordination service's state, reconciled
// against full-snapshot broadcasts, plus the user intents that mutate it.
package lobby

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tunequiz/lobby/internal/channel"
	"github.com/tunequiz/lobby/internal/domain"
)

var (
	ErrHostOnly        = errors.New("only the host can do this")
	ErrStartNotAllowed = errors.New("game is not ready to start")
	ErrStartTimeout    = errors.New("no response to start request")
	ErrSessionClosed   = errors.New("lobby session is closed")
)

// DefaultStartTimeout bounds how long a start request may stay unanswered
// before it is reported as failed.
const DefaultStartTimeout = 5 * time.Second

const startFailedMessage = "Could not start the game. Please try again."

type iChannel interface {
	Emit(event string, payload any) error
	On(event string, fn channel.HandlerFunc) *channel.Subscription
	Once(event string, fn channel.HandlerFunc) *channel.Subscription
	Off(sub *channel.Subscription)
	Connected() bool
}

// UI is what the session needs from the presentation layer. RenderLobby and
// the navigation calls may be invoked from the channel's read-loop goroutine.
type UI interface {
	RenderLobby(state State)
	Alert(message string)
	EnterGame(handoff GameHandoff)
	ExitToHome()
}

type Params struct {
	LobbyId      string
	PlayerName   string
	IsHost       bool
	AccessToken  string
	StartTimeout time.Duration
}

type Session struct {
	channel iChannel
	ui      UI
	logger  *slog.Logger

	lobbyId      string
	playerName   string
	isHost       bool
	accessToken  string
	startTimeout time.Duration

	mu         sync.Mutex
	players    []domain.Player
	isReady    bool
	selected   *domain.Playlist
	playlists  []domain.Playlist
	isStarting bool
	joined     bool
	closed     bool
	// non-nil only while a start is in flight; inbound events that belong
	// to the start race are routed here instead of their session-level path
	startReady   chan channel.GameStateUpdatePayload
	startFailure chan string

	subs []*channel.Subscription
}

func NewSession(ch iChannel, ui UI, params *Params, logger *slog.Logger) *Session {
	s := &Session{
		channel:      ch,
		ui:           ui,
		logger:       logger,
		lobbyId:      params.LobbyId,
		playerName:   params.PlayerName,
		isHost:       params.IsHost,
		accessToken:  params.AccessToken,
		startTimeout: params.StartTimeout,
	}
	if s.startTimeout <= 0 {
		s.startTimeout = DefaultStartTimeout
	}

	s.subs = []*channel.Subscription{
		ch.On(channel.EventLobbyUpdate, s.handleLobbyUpdate),
		ch.On(channel.EventGameStart, s.handleGameStart),
		ch.On(channel.EventError, s.handleError),
	}

	return s
}

// Join announces this player to the coordination service. Idempotent: the
// join event is emitted at most once per session, so re-invocations from
// re-renders or reconnect plumbing cannot produce duplicate players.
func (s *Session) Join() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.joined {
		s.mu.Unlock()
		return nil
	}
	if !s.channel.Connected() {
		s.mu.Unlock()
		return channel.ErrNotConnected
	}
	s.joined = true
	s.mu.Unlock()

	if err := s.channel.Emit(channel.EventJoinLobby, &channel.JoinLobbyPayload{
		LobbyId:    s.lobbyId,
		PlayerName: s.playerName,
		IsHost:     s.isHost,
	}); err != nil {
		s.mu.Lock()
		s.joined = false
		s.mu.Unlock()
		return fmt.Errorf("failed to join lobby: %w", err)
	}

	return nil
}

// ToggleReady emits exactly one toggle intent and flips the local mirror
// exactly once. The flip is optimistic; the next snapshot is authoritative
// and may correct it.
func (s *Session) ToggleReady() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.isReady = !s.isReady
	state := s.stateLocked()
	s.mu.Unlock()

	s.ui.RenderLobby(state)

	if err := s.channel.Emit(channel.EventToggleReady, &channel.ToggleReadyPayload{LobbyId: s.lobbyId}); err != nil {
		return fmt.Errorf("failed to toggle ready: %w", err)
	}

	return nil
}

// SetPlaylists stores the candidate list for the selection dialog after a
// catalog fetch.
func (s *Session) SetPlaylists(playlists []domain.Playlist) {
	s.mu.Lock()
	s.playlists = playlists
	state := s.stateLocked()
	s.mu.Unlock()

	s.ui.RenderLobby(state)
}

// SelectPlaylist sets the lobby's playlist. Host only. The local copy keeps
// the fetched track count and artwork; only the {id, name} tuple propagates,
// other viewers rebuild their view from subsequent snapshots.
func (s *Session) SelectPlaylist(playlist domain.Playlist) error {
	if !s.isHost {
		return ErrHostOnly
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	selected := playlist
	s.selected = &selected
	// selection closes the dialog
	s.playlists = nil
	state := s.stateLocked()
	s.mu.Unlock()

	s.ui.RenderLobby(state)

	if err := s.channel.Emit(channel.EventUpdatePlaylist, &channel.UpdatePlaylistPayload{
		LobbyId:  s.lobbyId,
		Playlist: playlist.Ref(),
	}); err != nil {
		return fmt.Errorf("failed to update playlist: %w", err)
	}

	return nil
}

// StartGame emits the start intent and blocks until one of three outcomes
// resolves: the service acknowledges, the service reports an error, or the
// timeout elapses. The losers are cancelled once a winner resolves, so a
// late-arriving outcome cannot trigger a second UI transition.
func (s *Session) StartGame(ctx context.Context) error {
	if !s.isHost {
		return ErrHostOnly
	}

	s.mu.Lock()
	if !s.canStartLocked() {
		s.mu.Unlock()
		return ErrStartNotAllowed
	}
	s.isStarting = true
	ready := make(chan channel.GameStateUpdatePayload, 1)
	failure := make(chan string, 1)
	s.startReady = ready
	s.startFailure = failure
	playlistId := s.selected.Id
	state := s.stateLocked()
	s.mu.Unlock()

	s.ui.RenderLobby(state)

	ackSub := s.channel.Once(channel.EventGameStateUpdate, func(raw json.RawMessage) {
		var payload channel.GameStateUpdatePayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			s.logger.Warn("failed to unmarshal game state update", "error", err)
		}
		select {
		case ready <- payload:
		default:
		}
	})

	if err := s.channel.Emit(channel.EventStartGame, &channel.StartGamePayload{
		LobbyId:     s.lobbyId,
		AccessToken: s.accessToken,
	}); err != nil {
		s.channel.Off(ackSub)
		s.resetStarting()
		return fmt.Errorf("failed to emit start game: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.startTimeout)
	defer cancel()

	select {
	case payload := <-ready:
		s.channel.Off(ackSub)
		s.mu.Lock()
		s.isStarting = false
		s.startReady = nil
		s.startFailure = nil
		s.closed = true
		s.mu.Unlock()

		s.teardown()
		s.ui.EnterGame(GameHandoff{
			GameId:      payload.GameId,
			PlaylistId:  playlistId,
			AccessToken: s.accessToken,
		})
		return nil

	case message := <-failure:
		s.channel.Off(ackSub)
		s.resetStarting()
		s.ui.Alert(startFailedMessage)
		return fmt.Errorf("start game rejected: %s", message)

	case <-ctx.Done():
		s.channel.Off(ackSub)
		s.resetStarting()
		s.ui.Alert(startFailedMessage)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrStartTimeout
		}
		return ctx.Err()
	}
}

// CanStart mirrors the start guard for the presentation layer.
func (s *Session) CanStart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.canStartLocked()
}

func (s *Session) canStartLocked() bool {
	return !s.closed &&
		!s.isStarting &&
		s.selected != nil &&
		s.accessToken != "" &&
		domain.AllGuestsReady(s.players)
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stateLocked()
}

// Close tears down every channel subscription. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.teardown()
}

func (s *Session) handleLobbyUpdate(raw json.RawMessage) {
	var snapshot channel.LobbyUpdatePayload
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		s.logger.Warn("failed to unmarshal lobby update", "error", err)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	// wholesale replacement, never a merge
	s.players = snapshot.Players

	if ref := snapshot.SpotifyPlaylist; ref != nil {
		// keep the locally fetched detail when the snapshot echoes our own
		// selection; the broadcast ref carries only id and name
		if s.selected == nil || s.selected.Id != ref.Id {
			selected := ref.Playlist()
			s.selected = &selected
		}
	}

	// the snapshot is authoritative for our own readiness too
	if me, err := domain.FindPlayer(snapshot.Players, s.playerName, s.isHost); err == nil {
		s.isReady = me.IsReady
	}

	state := s.stateLocked()
	s.mu.Unlock()

	s.ui.RenderLobby(state)
}

func (s *Session) handleGameStart(raw json.RawMessage) {
	var payload channel.GameStartPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.logger.Warn("failed to unmarshal game start", "error", err)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.startReady != nil {
		// our own start race owns the transition; feed it in case the
		// explicit acknowledgment frame was lost
		ready := s.startReady
		s.mu.Unlock()
		select {
		case ready <- channel.GameStateUpdatePayload{GameId: payload.Id}:
		default:
		}
		return
	}
	s.closed = true
	playlistId := ""
	if s.selected != nil {
		playlistId = s.selected.Id
	}
	s.mu.Unlock()

	s.teardown()
	s.ui.EnterGame(GameHandoff{GameId: payload.Id, PlaylistId: playlistId})
}

func (s *Session) handleError(raw json.RawMessage) {
	var payload channel.ErrorPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.logger.Warn("failed to unmarshal error event", "error", err)
	}

	s.mu.Lock()
	if s.startFailure != nil {
		// an error during an in-flight start is a transient start failure,
		// not the end of the session
		failure := s.startFailure
		s.startReady = nil
		s.startFailure = nil
		s.mu.Unlock()
		select {
		case failure <- payload.Message:
		default:
		}
		return
	}
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.logger.Warn("fatal lobby error", "message", payload.Message)
	s.teardown()
	s.ui.Alert(payload.Message)
	s.ui.ExitToHome()
}

func (s *Session) resetStarting() {
	s.mu.Lock()
	s.isStarting = false
	s.startReady = nil
	s.startFailure = nil
	state := s.stateLocked()
	s.mu.Unlock()

	s.ui.RenderLobby(state)
}

func (s *Session) teardown() {
	for _, sub := range s.subs {
		s.channel.Off(sub)
	}
}

func (s *Session) stateLocked() State {
	players := make([]domain.Player, len(s.players))
	copy(players, s.players)

	var selected *domain.Playlist
	if s.selected != nil {
		p := *s.selected
		selected = &p
	}

	playlists := make([]domain.Playlist, len(s.playlists))
	copy(playlists, s.playlists)

	return State{
		LobbyId:          s.lobbyId,
		Players:          players,
		IsReady:          s.isReady,
		SelectedPlaylist: selected,
		Playlists:        playlists,
		IsStarting:       s.isStarting,
		CanStart:         s.canStartLocked(),
	}
}
