package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tunequiz/lobby/internal/app"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
}

var (
	endpoint = configVar[string]{
		envKey:       "LOBBY_ENDPOINT",
		flagKey:      "endpoint",
		defaultValue: "ws://localhost:4000/ws",
	}
	catalogUrl = configVar[string]{
		envKey:       "LOBBY_CATALOG_URL",
		flagKey:      "catalog-url",
		defaultValue: "https://api.spotify.com",
	}
	lobbyId = configVar[string]{
		envKey:       "LOBBY_ID",
		flagKey:      "lobby-id",
		defaultValue: "",
	}
	playerName = configVar[string]{
		envKey:       "LOBBY_PLAYER_NAME",
		flagKey:      "player-name",
		defaultValue: "",
	}
	isHost = configVar[bool]{
		envKey:       "LOBBY_IS_HOST",
		flagKey:      "host",
		defaultValue: false,
	}
	accessToken = configVar[string]{
		envKey:       "SPOTIFY_ACCESS_TOKEN",
		flagKey:      "access-token",
		defaultValue: "",
	}
	logLevel = configVar[string]{
		envKey:       "LOBBY_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
	}
	startTimeout = configVar[time.Duration]{
		envKey:       "LOBBY_START_TIMEOUT",
		flagKey:      "start-timeout",
		defaultValue: 5 * time.Second,
	}
)

func loadAppConfig() *app.AppConfig {
	pflag.String(endpoint.flagKey, endpoint.defaultValue, "Lobby service websocket endpoint")
	pflag.String(catalogUrl.flagKey, catalogUrl.defaultValue, "Music catalog base url")
	pflag.String(lobbyId.flagKey, lobbyId.defaultValue, "Lobby identifier")
	pflag.String(playerName.flagKey, playerName.defaultValue, "Display name")
	pflag.Bool(isHost.flagKey, isHost.defaultValue, "Join as the lobby host")
	pflag.String(accessToken.flagKey, accessToken.defaultValue, "Spotify access token (host only)")
	pflag.String(logLevel.flagKey, logLevel.defaultValue, "Logging level")
	pflag.Duration(startTimeout.flagKey, startTimeout.defaultValue, "How long to wait for a start acknowledgment")
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)

	viper.BindEnv(endpoint.flagKey, endpoint.envKey)
	viper.BindEnv(catalogUrl.flagKey, catalogUrl.envKey)
	viper.BindEnv(lobbyId.flagKey, lobbyId.envKey)
	viper.BindEnv(playerName.flagKey, playerName.envKey)
	viper.BindEnv(isHost.flagKey, isHost.envKey)
	viper.BindEnv(accessToken.flagKey, accessToken.envKey)
	viper.BindEnv(logLevel.flagKey, logLevel.envKey)
	viper.BindEnv(startTimeout.flagKey, startTimeout.envKey)

	viper.SetDefault(endpoint.flagKey, endpoint.defaultValue)
	viper.SetDefault(catalogUrl.flagKey, catalogUrl.defaultValue)
	viper.SetDefault(lobbyId.flagKey, lobbyId.defaultValue)
	viper.SetDefault(playerName.flagKey, playerName.defaultValue)
	viper.SetDefault(isHost.flagKey, isHost.defaultValue)
	viper.SetDefault(accessToken.flagKey, accessToken.defaultValue)
	viper.SetDefault(logLevel.flagKey, logLevel.defaultValue)
	viper.SetDefault(startTimeout.flagKey, startTimeout.defaultValue)

	return &app.AppConfig{
		Endpoint:     viper.GetString(endpoint.flagKey),
		CatalogUrl:   viper.GetString(catalogUrl.flagKey),
		LobbyId:      viper.GetString(lobbyId.flagKey),
		PlayerName:   viper.GetString(playerName.flagKey),
		IsHost:       viper.GetBool(isHost.flagKey),
		AccessToken:  viper.GetString(accessToken.flagKey),
		LogLevel:     viper.GetString(logLevel.flagKey),
		StartTimeout: viper.GetDuration(startTimeout.flagKey),
	}
}

func main() {
	ctx := context.Background()

	godotenv.Load()

	appConfig := loadAppConfig()

	jsonConfig, _ := json.MarshalIndent(appConfig, "", "  ")
	fmt.Printf("starting lobby client with config: %s\n", jsonConfig)

	log.Fatal(app.Run(ctx, appConfig))
}
