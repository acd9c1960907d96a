package lobby

import "github.com/tunequiz/lobby/internal/domain"

// State is an immutable snapshot of the view model handed to the
// presentation layer on every change.
type State struct {
	LobbyId          string
	Players          []domain.Player
	IsReady          bool
	SelectedPlaylist *domain.Playlist
	Playlists        []domain.Playlist
	IsStarting       bool
	// CanStart drives the start control: the presentation disables it
	// instead of surfacing a validation error.
	CanStart bool
}

// GameHandoff carries everything the game screen needs. Guests only get the
// game id; the host additionally hands over the playlist and its credential.
type GameHandoff struct {
	GameId      string
	PlaylistId  string
	AccessToken string
}
