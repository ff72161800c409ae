// Package main provides the Mancala Telnet server. Every connected client
// plays on one shared board ring; the process exits when the game ends.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/mancala/internal/config"
	"github.com/cory-johannsen/mancala/internal/frontend/telnet"
	"github.com/cory-johannsen/mancala/internal/game/messages"
	"github.com/cory-johannsen/mancala/internal/gameserver"
	"github.com/cory-johannsen/mancala/internal/observability"
	"github.com/cory-johannsen/mancala/internal/server"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "", "path to configuration file")
	port := flag.Int("p", -1, "listen port, overriding telnet.port")
	messagesPath := flag.String("messages", "", "path to a YAML file overriding client messages")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if *port >= 0 {
		cfg.Telnet.Port = *port
	}
	if *messagesPath != "" {
		cfg.Game.MessagesFile = *messagesPath
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid flags: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	text := messages.Default()
	if cfg.Game.MessagesFile != "" {
		text, err = messages.Load(cfg.Game.MessagesFile)
		if err != nil {
			logger.Fatal("loading messages", zap.Error(err))
		}
		logger.Info("messages loaded", zap.String("path", cfg.Game.MessagesFile))
	}

	logger.Info("starting Mancala server",
		zap.String("telnet_addr", cfg.Telnet.Addr()),
		zap.Int("pits", cfg.Game.Pits),
		zap.Int("pebbles", cfg.Game.Pebbles),
	)

	game := gameserver.NewGame(cfg.Game, text, logger)
	loop := gameserver.NewLoop(game, logger)
	telnetAcceptor := telnet.NewAcceptor(cfg.Telnet, loop, logger)

	// Wire lifecycle
	lifecycle := server.NewLifecycle(logger)
	ctx := context.Background()
	gameCtx, cancelGame := context.WithCancel(ctx)

	lifecycle.Add("game", &server.FuncService{
		StartFn: func() error {
			return loop.Run(gameCtx)
		},
		StopFn: func() {
			cancelGame()
			<-loop.Done()
		},
	})

	lifecycle.Add("telnet", &server.FuncService{
		StartFn: func() error {
			return telnetAcceptor.ListenAndServe()
		},
		StopFn: func() {
			telnetAcceptor.Stop()
		},
	})

	logger.Info("server initialized",
		zap.Duration("startup", time.Since(start)),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
