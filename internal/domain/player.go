package domain

import "errors"

var (
	ErrPlayerNotFound = errors.New("player not found")
	ErrHostNotFound   = errors.New("host not found")
)

// Player is the coordination service's view of one connected client. IsReady
// carries no meaning for the host.
type Player struct {
	Id      string `json:"id"`
	Name    string `json:"name"`
	IsReady bool   `json:"isReady"`
	IsHost  bool   `json:"isHost"`
}

// AllGuestsReady reports whether every non-host player marked themselves
// ready. True for a lobby with no guests.
func AllGuestsReady(players []Player) bool {
	for _, p := range players {
		if !p.IsHost && !p.IsReady {
			return false
		}
	}

	return true
}

func HostOf(players []Player) (Player, error) {
	for _, p := range players {
		if p.IsHost {
			return p, nil
		}
	}

	return Player{}, ErrHostNotFound
}

func FindPlayer(players []Player, name string, isHost bool) (Player, error) {
	for _, p := range players {
		if p.Name == name && p.IsHost == isHost {
			return p, nil
		}
	}

	return Player{}, ErrPlayerNotFound
}
