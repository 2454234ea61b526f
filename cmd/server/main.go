package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openlan/campuschat/internal/files"
	"github.com/openlan/campuschat/internal/relay"
	"github.com/openlan/campuschat/internal/server"
	"github.com/openlan/campuschat/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := server.NewConfigFromEnv()
	if err != nil {
		return err
	}
	server.SetConfig(cfg)

	transport, err := relay.NewMulticast(cfg.MulticastGroup, cfg.MulticastPort)
	if err != nil {
		return err
	}

	broadcaster := relay.NewBroadcaster(cfg.InboxCapacity, nil)
	ingress := relay.NewIngress(broadcaster, transport, nil)

	listener := relay.NewListener(transport, broadcaster, cfg.ListenerBackoff, nil)
	if err := listener.Start(); err != nil {
		return err
	}
	slog.Info("relaying on multicast group", "group", transport.Group())

	opts := server.ChatServerOptions{}

	var recorder *store.Recorder
	db, err := store.Open(context.Background(), cfg.DatabaseDSN, nil)
	if err != nil {
		// The relay runs without persistence; accounts and history are off.
		slog.Warn("persistence unavailable, continuing without it", "error", err)
	} else {
		defer db.Close()
		opts.Users = store.NewUsers(db)
		opts.Messages = store.NewMessages(db)
		opts.Sessions = store.NewSessions()
		recorder = store.NewRecorder(broadcaster, opts.Messages, nil)
		recorder.Start()
	}

	images, err := files.New(cfg.UploadDir, cfg.MaxUploadBytes)
	if err != nil {
		slog.Warn("image storage unavailable, continuing without it", "error", err)
	} else {
		opts.Images = images
	}

	chat := server.NewChatServer(broadcaster, ingress, opts)
	httpServer := server.CreateServer(cfg.Port, chat.Routes())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.StartServer(httpServer)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		slog.Info("received signal, shutting down", "signal", sig)
	case err := <-listener.Err():
		// A dead listener means this instance silently stops relaying
		// peer events; treat it as a process-level failure.
		slog.Error("multicast listener failed", "error", err)
		runErr = err
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			runErr = err
		}
	}

	// Stop relaying first: closing the broadcaster ends every stream
	// session, so the HTTP drain below can finish instead of waiting out
	// its timeout on held-open connections.
	listener.Stop()
	broadcaster.Close()
	if recorder != nil {
		recorder.Stop()
	}
	_ = server.ShutdownServer(httpServer, shutdownTimeout)
	return runErr
}
