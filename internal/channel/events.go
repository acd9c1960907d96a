package channel

import (
	"encoding/json"

	"github.com/tunequiz/lobby/internal/domain"
)

// Event names of the lobby coordination protocol. Client to service:
const (
	EventJoinLobby      = "joinLobby"
	EventToggleReady    = "toggleReady"
	EventUpdatePlaylist = "updatePlaylist"
	EventStartGame      = "startGame"
)

// Service to client:
const (
	EventLobbyUpdate     = "lobbyUpdate"
	EventGameStart       = "gameStart"
	EventGameStateUpdate = "gameStateUpdate"
	EventError           = "error"
)

type JoinLobbyPayload struct {
	LobbyId    string `json:"lobbyId" validate:"required"`
	PlayerName string `json:"playerName" validate:"required,max=32"`
	IsHost     bool   `json:"isHost"`
}

type ToggleReadyPayload struct {
	LobbyId string `json:"lobbyId" validate:"required"`
}

type UpdatePlaylistPayload struct {
	LobbyId  string             `json:"lobbyId" validate:"required"`
	Playlist domain.PlaylistRef `json:"playlist"`
}

type StartGamePayload struct {
	LobbyId     string `json:"lobbyId" validate:"required"`
	AccessToken string `json:"accessToken" validate:"required"`
}

// LobbyUpdatePayload is a full-state snapshot. It replaces whatever the
// client holds, never patches it.
type LobbyUpdatePayload struct {
	Players         []domain.Player     `json:"players"`
	SpotifyPlaylist *domain.PlaylistRef `json:"spotifyPlaylist,omitempty"`
}

type GameStartPayload struct {
	Id string `json:"id"`
}

type GameStateUpdatePayload struct {
	GameId string `json:"gameId,omitempty"`
	State  string `json:"state,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// message is the wire frame. Every event travels as one JSON object.
type message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}
