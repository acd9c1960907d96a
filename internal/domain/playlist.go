package domain

// Playlist is the detailed catalog view the host fetches from Spotify.
type Playlist struct {
	Id       string `json:"id"`
	Name     string `json:"name"`
	Tracks   int    `json:"tracks"`
	ImageUrl string `json:"imageUrl,omitempty"`
}

// PlaylistRef is the minimal tuple the coordination service persists and
// rebroadcasts. Track count and artwork do not propagate; viewers other than
// the host only ever see this shape.
type PlaylistRef struct {
	Id   string `json:"id"`
	Name string `json:"name"`
}

func (p Playlist) Ref() PlaylistRef {
	return PlaylistRef{Id: p.Id, Name: p.Name}
}

func (r PlaylistRef) Playlist() Playlist {
	return Playlist{Id: r.Id, Name: r.Name}
}
