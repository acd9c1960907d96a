package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tunequiz/lobby/internal/catalog"
	"github.com/tunequiz/lobby/internal/channel"
	"github.com/tunequiz/lobby/internal/lobby"
	"github.com/tunequiz/lobby/pkg/ctxlogger"
	"github.com/tunequiz/lobby/pkg/validator"
)

type AppConfig struct {
	Endpoint     string        `json:"endpoint" validate:"required"`
	CatalogUrl   string        `json:"catalog_url"`
	LobbyId      string        `json:"lobby_id" validate:"required"`
	PlayerName   string        `json:"player_name" validate:"required,max=32"`
	IsHost       bool          `json:"is_host"`
	AccessToken  string        `json:"-"`
	LogLevel     string        `json:"log_level"`
	StartTimeout time.Duration `json:"start_timeout"`
}

func Run(ctx context.Context, cfg *AppConfig) error {
	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		log.Fatal(err)
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		}),
	}
	logger := slog.New(&h)

	if fieldErrs, ok := validator.New().Validate(cfg); !ok {
		return fmt.Errorf("invalid config: %s", fieldErrs[0].Message)
	}

	ctx = ctxlogger.AppendCtx(ctx, slog.String("lobby_id", cfg.LobbyId))

	ch, err := channel.Dial(ctx, cfg.Endpoint, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to lobby service: %w", err)
	}
	defer ch.Close()

	catalogClient := catalog.NewClient(cfg.CatalogUrl, logger)

	terminal := NewTerminal(os.Stdin, os.Stdout, logger)
	session := lobby.NewSession(ch, terminal, &lobby.Params{
		LobbyId:      cfg.LobbyId,
		PlayerName:   cfg.PlayerName,
		IsHost:       cfg.IsHost,
		AccessToken:  cfg.AccessToken,
		StartTimeout: cfg.StartTimeout,
	}, logger)
	defer session.Close()

	if err := session.Join(); err != nil {
		return fmt.Errorf("failed to join lobby: %w", err)
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig
		stop()
	}()

	logger.InfoContext(runCtx, "joined lobby", "player", cfg.PlayerName, "is_host", cfg.IsHost)

	return terminal.RunCommands(runCtx, session, catalogClient, cfg.AccessToken)
}
