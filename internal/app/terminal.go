package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/tunequiz/lobby/internal/domain"
	"github.com/tunequiz/lobby/internal/lobby"
)

type iCatalog interface {
	MyPlaylists(ctx context.Context, accessToken string) ([]domain.Playlist, error)
}

// Terminal is the presentation layer: it renders view-model state to a
// writer and turns typed commands into session intents.
type Terminal struct {
	in     io.Reader
	out    io.Writer
	logger *slog.Logger

	mu       sync.Mutex
	done     chan struct{}
	doneOnce sync.Once
}

func NewTerminal(in io.Reader, out io.Writer, logger *slog.Logger) *Terminal {
	return &Terminal{
		in:     in,
		out:    out,
		logger: logger,
		done:   make(chan struct{}),
	}
}

func (t *Terminal) RenderLobby(state lobby.State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(t.out, "\n=== lobby %s ===\n", state.LobbyId)
	for _, p := range state.Players {
		role := "guest"
		if p.IsHost {
			role = "host"
		}
		ready := ""
		if !p.IsHost && p.IsReady {
			ready = " [ready]"
		}
		fmt.Fprintf(t.out, "  %s (%s)%s\n", p.Name, role, ready)
	}
	if state.SelectedPlaylist != nil {
		fmt.Fprintf(t.out, "playlist: %s\n", state.SelectedPlaylist.Name)
	}
	for i, p := range state.Playlists {
		fmt.Fprintf(t.out, "  %d) %s (%d tracks)\n", i+1, p.Name, p.Tracks)
	}
	if state.IsStarting {
		fmt.Fprintln(t.out, "starting...")
	} else if state.CanStart {
		fmt.Fprintln(t.out, "ready to start")
	}
}

func (t *Terminal) Alert(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(t.out, "\n!! %s\n", message)
}

func (t *Terminal) EnterGame(handoff lobby.GameHandoff) {
	t.mu.Lock()
	fmt.Fprintf(t.out, "\ngame %s is starting\n", handoff.GameId)
	t.mu.Unlock()

	t.doneOnce.Do(func() { close(t.done) })
}

func (t *Terminal) ExitToHome() {
	t.mu.Lock()
	fmt.Fprintln(t.out, "\nleaving lobby")
	t.mu.Unlock()

	t.doneOnce.Do(func() { close(t.done) })
}

// RunCommands reads commands until the session navigates away or ctx is
// cancelled. Commands: ready, playlists, select <n>, start, quit.
func (t *Terminal) RunCommands(ctx context.Context, session *lobby.Session, catalogClient iCatalog, accessToken string) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(t.in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			case <-t.done:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.done:
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			t.runCommand(ctx, line, session, catalogClient, accessToken)
		}
	}
}

func (t *Terminal) runCommand(ctx context.Context, line string, session *lobby.Session, catalogClient iCatalog, accessToken string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}

	switch fields[0] {
	case "ready":
		if err := session.ToggleReady(); err != nil {
			t.Alert(err.Error())
		}

	case "playlists":
		playlists, err := catalogClient.MyPlaylists(ctx, accessToken)
		if err != nil {
			t.logger.Warn("failed to fetch playlists", "error", err)
			t.Alert("Could not load your playlists. Please try again.")
			return
		}
		session.SetPlaylists(playlists)

	case "select":
		if len(fields) < 2 {
			t.Alert("usage: select <number>")
			return
		}
		n, err := strconv.Atoi(fields[1])
		state := session.State()
		if err != nil || n < 1 || n > len(state.Playlists) {
			t.Alert("no such playlist")
			return
		}
		if err := session.SelectPlaylist(state.Playlists[n-1]); err != nil {
			t.Alert(err.Error())
		}

	case "start":
		// blocks until the start race resolves; run aside so the command
		// loop stays responsive
		go func() {
			if err := session.StartGame(ctx); err != nil {
				t.logger.Warn("start game failed", "error", err)
			}
		}()

	case "quit":
		t.doneOnce.Do(func() { close(t.done) })

	default:
		t.Alert(fmt.Sprintf("unknown command %q", fields[0]))
	}
}
