package bus

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/loqalabs/loqa-converse/internal/config"
	"github.com/loqalabs/loqa-converse/internal/natsserver"
	"github.com/loqalabs/loqa-converse/internal/protocol"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestPublishTurnInProcess(t *testing.T) {
	log := newLogger()
	ns, err := natsserver.Start(log)
	if err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(ns.Shutdown)

	client, err := Connect(context.Background(), config.Default().Bus, ns.Server(), log)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)
	if !client.Healthy() {
		t.Fatalf("expected healthy client")
	}

	received := make(chan protocol.TurnEvent, 1)
	sub, err := client.SubscribeTurns(func(evt protocol.TurnEvent) { received <- evt })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	t.Cleanup(func() { _ = sub.Unsubscribe() })
	if err := client.Conn().Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if err := client.PublishTurn(protocol.TurnEvent{TurnID: "t1", Stage: protocol.StageReplied, Text: "晴天，25度"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case evt := <-received:
		if evt.TurnID != "t1" || evt.Stage != protocol.StageReplied || evt.Text != "晴天，25度" {
			t.Fatalf("unexpected event %+v", evt)
		}
		if evt.Timestamp.IsZero() {
			t.Fatalf("expected timestamp to be set")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for turn event")
	}
}

func TestTurnSubject(t *testing.T) {
	if got := protocol.TurnSubject("converse", protocol.StagePlayed); got != "converse.turn.played" {
		t.Fatalf("unexpected subject %q", got)
	}
	if got := protocol.TurnWildcard(""); got != "turn.>" {
		t.Fatalf("unexpected wildcard %q", got)
	}
}

func TestConnectRequiresServers(t *testing.T) {
	cfg := config.Default().Bus
	cfg.Servers = nil
	if _, err := Connect(context.Background(), cfg, nil, newLogger()); err == nil {
		t.Fatalf("expected error without servers")
	}
}
