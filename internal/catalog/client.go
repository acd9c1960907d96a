// Package catalog reads the host's playlists from the Spotify Web API.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tunequiz/lobby/internal/domain"
)

const (
	DefaultBaseUrl = "https://api.spotify.com"

	// pageLimit caps a single read. Pagination is deliberately absent: the
	// selection dialog shows at most one page.
	pageLimit = 50

	placeholderName = "Untitled Playlist"
)

// Error reports a failed catalog read. StatusCode is zero for transport
// failures.
type Error struct {
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("catalog request failed: %v", e.Err)
	}

	return fmt.Sprintf("catalog request failed: unexpected status %d", e.StatusCode)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Client struct {
	httpClient *http.Client
	baseUrl    string
	logger     *slog.Logger
}

func NewClient(baseUrl string, logger *slog.Logger) *Client {
	if baseUrl == "" {
		baseUrl = DefaultBaseUrl
	}

	return &Client{
		httpClient: &http.Client{},
		baseUrl:    baseUrl,
		logger:     logger,
	}
}

type playlistsResponse struct {
	Items []struct {
		Id     string `json:"id"`
		Name   string `json:"name"`
		Tracks *struct {
			Total int `json:"total"`
		} `json:"tracks"`
		Images []struct {
			Url string `json:"url"`
		} `json:"images"`
	} `json:"items"`
}

// MyPlaylists performs one authenticated read of the caller's playlists.
// Items without track metadata are dropped; missing names get a placeholder;
// input order is preserved. The caller decides whether to retry.
func (c *Client) MyPlaylists(ctx context.Context, accessToken string) ([]domain.Playlist, error) {
	url := fmt.Sprintf("%s/v1/me/playlists?limit=%d", c.baseUrl, pageLimit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build playlists request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{StatusCode: resp.StatusCode}
	}

	var body playlistsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &Error{Err: fmt.Errorf("failed to decode playlists response: %w", err)}
	}

	playlists := make([]domain.Playlist, 0, len(body.Items))
	for _, item := range body.Items {
		if item.Tracks == nil {
			c.logger.Debug("skipping playlist without track metadata", "id", item.Id)
			continue
		}

		name := item.Name
		if name == "" {
			name = placeholderName
		}

		imageUrl := ""
		if len(item.Images) > 0 {
			imageUrl = item.Images[0].Url
		}

		playlists = append(playlists, domain.Playlist{
			Id:       item.Id,
			Name:     name,
			Tracks:   item.Tracks.Total,
			ImageUrl: imageUrl,
		})
	}

	return playlists, nil
}
