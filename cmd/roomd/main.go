// Package main provides the room server binary: a dedicated relay that
// hosts a single multiplayer room over framed TCP and WebSocket.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ldnlab/roomd/internal/auth"
	"github.com/ldnlab/roomd/internal/chat"
	"github.com/ldnlab/roomd/internal/config"
	"github.com/ldnlab/roomd/internal/directory"
	"github.com/ldnlab/roomd/internal/moderation"
	"github.com/ldnlab/roomd/internal/observability"
	"github.com/ldnlab/roomd/internal/room"
	"github.com/ldnlab/roomd/internal/server"
	"github.com/ldnlab/roomd/internal/transport/tcp"
	"github.com/ldnlab/roomd/internal/transport/ws"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/roomd.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting room server",
		zap.String("room", cfg.Room.Name),
		zap.String("tcp_addr", cfg.TCP.Addr()),
	)

	store, err := moderation.Open(cfg.Moderation.Path, logger)
	if err != nil {
		logger.Fatal("opening moderation store", zap.Error(err))
	}
	logger.Info("moderation store opened",
		zap.String("path", cfg.Moderation.Path),
		zap.Int("bans", len(store.Bans())),
		zap.Int("reports", len(store.Reports())),
	)

	httpClient := &http.Client{Timeout: 10 * time.Second}
	verifier := auth.FetchVerifier(ctx, cfg.Auth.KeyURL, httpClient, logger)

	r := room.New(room.Options{
		Name:              cfg.Room.Name,
		Description:       cfg.Room.Description,
		MaxPlayers:        cfg.Room.MaxPlayers,
		Port:              cfg.TCP.Port,
		PreferredGameName: cfg.Room.PreferredGameName,
		HostName:          cfg.Room.HostName,
		GreetMessage:      cfg.Room.GreetMessage,
		ByeMessage:        cfg.Room.ByeMessage,
		AnnounceDelay:     cfg.Room.AnnounceDelay,
	}, logger)

	commands := chat.BuiltinCommands(store)
	if cfg.Chat.ScriptDir != "" {
		scripted, err := chat.LoadScriptCommands(cfg.Chat.ScriptDir, logger)
		if err != nil {
			logger.Fatal("loading command scripts",
				zap.String("dir", cfg.Chat.ScriptDir), zap.Error(err))
		}
		logger.Info("command scripts loaded",
			zap.String("dir", cfg.Chat.ScriptDir),
			zap.Int("count", len(scripted)),
		)
		commands = append(commands, scripted...)
	}
	table, err := chat.NewTable(commands)
	if err != nil {
		logger.Fatal("building command table", zap.Error(err))
	}

	dispatcher := room.NewDispatcher(r, verifier, table, rune(cfg.Chat.CommandPrefix[0]), logger)
	guarded := room.NewBanGuard(dispatcher, store, logger)

	acceptor := tcp.NewAcceptor(cfg.TCP, guarded, logger)

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("tcp", &server.FuncService{
		StartFn: func() error {
			return acceptor.Start()
		},
		StopFn: func() {
			acceptor.Stop()
		},
	})

	if cfg.WebSocket.Enabled {
		wsAcceptor := ws.NewAcceptor(cfg.WebSocket, guarded, logger)
		lifecycle.Add("websocket", &server.FuncService{
			StartFn: func() error {
				return wsAcceptor.Start()
			},
			StopFn: func() {
				wsAcceptor.Stop()
			},
		})
	}

	if cfg.Directory.APIURL != "" {
		client := directory.NewClient(cfg.Directory.APIURL, cfg.Directory.Token, httpClient, logger)
		go registerRoom(ctx, client, r, logger)
	}

	logger.Info("room server initialized",
		zap.Duration("startup", time.Since(start)),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("room server exited", zap.Error(err))
	}
}

// registerRoom lists the room with the lobby directory. Failure leaves
// the room unlisted but otherwise running.
func registerRoom(ctx context.Context, client *directory.Client, r *room.Room, logger *zap.Logger) {
	opts := r.Options()
	snapshot := r.Snapshot()

	listing := directory.Listing{
		Name:              opts.Name,
		Description:       opts.Description,
		MaxPlayers:        opts.MaxPlayers,
		Port:              opts.Port,
		PreferredGameName: opts.PreferredGameName,
		HostName:          opts.HostName,
		Members:           make([]directory.MemberListing, 0, len(snapshot.Members)),
	}
	for _, m := range snapshot.Members {
		listing.Members = append(listing.Members, directory.MemberListing{
			Nickname:    m.Nickname,
			GameName:    m.GameName,
			GameID:      directory.FormatGameID(m.GameID),
			GameVersion: m.GameVersion,
		})
	}

	if _, err := client.Register(ctx, listing); err != nil {
		logger.Warn(fmt.Sprintf("lobby directory registration failed, room is unlisted: %v", err))
	}
}
