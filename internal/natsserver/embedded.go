package natsserver

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// EmbeddedServer is an in-process NATS server. It opens no listening
// socket; clients reach it through InProcessConn.
type EmbeddedServer struct {
	ns  *server.Server
	log *slog.Logger
}

// Start creates and starts the embedded server.
func Start(log *slog.Logger) (*EmbeddedServer, error) {
	opts := &server.Options{
		ServerName: "loqa-converse",
		DontListen: true,
		JetStream:  false,
		NoLog:      true,
		NoSigs:     true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS server failed to start within 5 seconds")
	}

	log.Info("embedded NATS server started", slog.Bool("in_process", true))

	return &EmbeddedServer{
		ns:  ns,
		log: log,
	}, nil
}

// Server exposes the underlying server, e.g. for nats.InProcessServer.
func (e *EmbeddedServer) Server() *server.Server {
	return e.ns
}

// Shutdown stops the embedded server and waits for it to exit.
func (e *EmbeddedServer) Shutdown() {
	if e == nil || e.ns == nil {
		return
	}
	e.log.Info("shutting down embedded NATS server")
	e.ns.Shutdown()
	e.ns.WaitForShutdown()
}
