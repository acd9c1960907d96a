// Package channeltest provides an in-memory lobby coordination service
// speaking the session channel protocol. It backs the integration tests and
// doubles as a local development peer; it is not a production server.
package channeltest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/exp/maps"

	"github.com/tunequiz/lobby/internal/channel"
	"github.com/tunequiz/lobby/internal/domain"
	"github.com/tunequiz/lobby/pkg/randstr"
	"github.com/tunequiz/lobby/pkg/validator"
)

type output struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type input struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// conn wraps one websocket with a write lock: broadcasts originate from
// other connections' read goroutines.
type conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *conn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.ws.WriteJSON(v)
}

type player struct {
	domain.Player
	conn *conn
	seq  int
}

type lobbyState struct {
	players  map[string]*player
	playlist *domain.PlaylistRef
	nextSeq  int
}

type Service struct {
	logger    *slog.Logger
	upgrader  websocket.Upgrader
	validate  *validator.Validator
	generator *randstr.Generator

	mu      sync.Mutex
	lobbies map[string]*lobbyState
	conns   map[*conn]connInfo
}

type connInfo struct {
	lobbyId  string
	playerId string
}

func New(logger *slog.Logger) *Service {
	return &Service{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		validate:  validator.New(),
		generator: randstr.New([]byte("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")),
		lobbies:   make(map[string]*lobbyState),
		conns:     make(map[*conn]connInfo),
	}
}

func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Get("/ws", s.serveWs)

	return r
}

func (s *Service) serveWs(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade to websocket", "error", err)
		return
	}

	c := &conn{ws: ws}
	defer s.disconnect(c)
	defer ws.Close()

	for {
		var msg input
		if err := ws.ReadJSON(&msg); err != nil {
			s.logger.Debug("connection read stopped", "error", err)
			return
		}

		s.handle(c, &msg)
	}
}

func (s *Service) handle(c *conn, msg *input) {
	var err error
	switch msg.Type {
	case channel.EventJoinLobby:
		err = s.handleJoinLobby(c, msg.Payload)
	case channel.EventToggleReady:
		err = s.handleToggleReady(c, msg.Payload)
	case channel.EventUpdatePlaylist:
		err = s.handleUpdatePlaylist(c, msg.Payload)
	case channel.EventStartGame:
		err = s.handleStartGame(c, msg.Payload)
	default:
		err = fmt.Errorf("unknown event %q", msg.Type)
	}

	if err != nil {
		s.logger.Debug("event rejected", "event", msg.Type, "error", err)
		s.writeError(c, err)
	}
}

func (s *Service) handleJoinLobby(c *conn, raw json.RawMessage) error {
	var payload channel.JoinLobbyPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("malformed joinLobby payload: %w", err)
	}
	if fieldErrs, ok := s.validate.Validate(&payload); !ok {
		return fmt.Errorf("invalid joinLobby payload: %s", fieldErrs[0].Message)
	}

	s.mu.Lock()
	lobby, exists := s.lobbies[payload.LobbyId]
	if !exists {
		if !payload.IsHost {
			s.mu.Unlock()
			return fmt.Errorf("lobby %s not found", payload.LobbyId)
		}
		lobby = &lobbyState{players: make(map[string]*player)}
		s.lobbies[payload.LobbyId] = lobby
	} else if payload.IsHost {
		for _, p := range lobby.players {
			if p.IsHost {
				s.mu.Unlock()
				return fmt.Errorf("lobby %s already has a host", payload.LobbyId)
			}
		}
	}

	playerId := uuid.NewString()
	lobby.players[playerId] = &player{
		Player: domain.Player{
			Id:     playerId,
			Name:   payload.PlayerName,
			IsHost: payload.IsHost,
		},
		conn: c,
		seq:  lobby.nextSeq,
	}
	lobby.nextSeq++
	s.conns[c] = connInfo{lobbyId: payload.LobbyId, playerId: playerId}
	s.mu.Unlock()

	s.broadcastSnapshot(payload.LobbyId)
	return nil
}

func (s *Service) handleToggleReady(c *conn, raw json.RawMessage) error {
	var payload channel.ToggleReadyPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("malformed toggleReady payload: %w", err)
	}

	s.mu.Lock()
	p, _, err := s.senderLocked(c)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	p.IsReady = !p.IsReady
	lobbyId := s.conns[c].lobbyId
	s.mu.Unlock()

	s.broadcastSnapshot(lobbyId)
	return nil
}

func (s *Service) handleUpdatePlaylist(c *conn, raw json.RawMessage) error {
	var payload channel.UpdatePlaylistPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("malformed updatePlaylist payload: %w", err)
	}

	s.mu.Lock()
	p, lobby, err := s.senderLocked(c)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if !p.IsHost {
		s.mu.Unlock()
		return fmt.Errorf("only the host may update the playlist")
	}
	ref := payload.Playlist
	lobby.playlist = &ref
	lobbyId := s.conns[c].lobbyId
	s.mu.Unlock()

	s.broadcastSnapshot(lobbyId)
	return nil
}

func (s *Service) handleStartGame(c *conn, raw json.RawMessage) error {
	var payload channel.StartGamePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("malformed startGame payload: %w", err)
	}

	s.mu.Lock()
	p, lobby, err := s.senderLocked(c)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if !p.IsHost {
		s.mu.Unlock()
		return fmt.Errorf("only the host may start the game")
	}
	if payload.AccessToken == "" {
		s.mu.Unlock()
		return fmt.Errorf("missing access token")
	}
	if lobby.playlist == nil {
		s.mu.Unlock()
		return fmt.Errorf("no playlist selected")
	}
	if !domain.AllGuestsReady(playersOfLocked(lobby)) {
		s.mu.Unlock()
		return fmt.Errorf("not all players are ready")
	}
	conns := connsOfLocked(lobby)
	s.mu.Unlock()

	gameId := s.generator.GenerateRandomString(8)

	if err := c.writeJSON(&output{
		Type:    channel.EventGameStateUpdate,
		Payload: &channel.GameStateUpdatePayload{GameId: gameId, State: "loading"},
	}); err != nil {
		s.logger.Warn("failed to write game state update", "error", err)
	}

	for _, peer := range conns {
		if err := peer.writeJSON(&output{
			Type:    channel.EventGameStart,
			Payload: &channel.GameStartPayload{Id: gameId},
		}); err != nil {
			s.logger.Warn("failed to broadcast game start", "error", err)
		}
	}

	return nil
}

func (s *Service) disconnect(c *conn) {
	s.mu.Lock()
	info, ok := s.conns[c]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.conns, c)

	lobby, ok := s.lobbies[info.lobbyId]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(lobby.players, info.playerId)
	empty := len(lobby.players) == 0
	if empty {
		delete(s.lobbies, info.lobbyId)
	}
	s.mu.Unlock()

	if !empty {
		s.broadcastSnapshot(info.lobbyId)
	}
}

func (s *Service) senderLocked(c *conn) (*player, *lobbyState, error) {
	info, ok := s.conns[c]
	if !ok {
		return nil, nil, fmt.Errorf("connection has not joined a lobby")
	}

	lobby, ok := s.lobbies[info.lobbyId]
	if !ok {
		return nil, nil, fmt.Errorf("lobby %s not found", info.lobbyId)
	}

	p, ok := lobby.players[info.playerId]
	if !ok {
		return nil, nil, fmt.Errorf("player %s not found", info.playerId)
	}

	return p, lobby, nil
}

func (s *Service) broadcastSnapshot(lobbyId string) {
	s.mu.Lock()
	lobby, ok := s.lobbies[lobbyId]
	if !ok {
		s.mu.Unlock()
		return
	}
	snapshot := &channel.LobbyUpdatePayload{
		Players:         playersOfLocked(lobby),
		SpotifyPlaylist: lobby.playlist,
	}
	conns := connsOfLocked(lobby)
	s.mu.Unlock()

	for _, peer := range conns {
		if err := peer.writeJSON(&output{Type: channel.EventLobbyUpdate, Payload: snapshot}); err != nil {
			s.logger.Warn("failed to broadcast lobby update", "error", err)
		}
	}
}

func playersOfLocked(lobby *lobbyState) []domain.Player {
	list := maps.Values(lobby.players)
	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })

	players := make([]domain.Player, 0, len(list))
	for _, p := range list {
		players = append(players, p.Player)
	}

	return players
}

func connsOfLocked(lobby *lobbyState) []*conn {
	conns := make([]*conn, 0, len(lobby.players))
	for _, p := range lobby.players {
		conns = append(conns, p.conn)
	}

	return conns
}

func (s *Service) writeError(c *conn, err error) {
	if werr := c.writeJSON(&output{
		Type:    channel.EventError,
		Payload: &channel.ErrorPayload{Message: err.Error()},
	}); werr != nil {
		s.logger.Warn("failed to write error event", "error", werr)
	}
}
