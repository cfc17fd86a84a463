package bus

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/loqalabs/loqa-converse/internal/config"
	"github.com/loqalabs/loqa-converse/internal/protocol"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// Client wraps a NATS connection used to broadcast turn events.
type Client struct {
	conn   *nats.Conn
	prefix string
	log    *slog.Logger
}

// Connect dials the configured servers, or the given in-process server when
// embedded is non-nil.
func Connect(ctx context.Context, cfg config.BusConfig, embedded *server.Server, log *slog.Logger) (*Client, error) {
	options := []nats.Option{
		nats.Name("loqa-converse"),
		nats.Timeout(time.Duration(cfg.ConnectTimeout) * time.Millisecond),
	}

	// The URL is never dialed for an in-process connection but must parse.
	url, label := nats.DefaultURL, "in-process"
	if embedded != nil {
		options = append(options, nats.InProcessServer(embedded))
	} else {
		if len(cfg.Servers) == 0 {
			return nil, errors.New("no NATS servers configured")
		}
		if cfg.Username != "" || cfg.Password != "" {
			options = append(options, nats.UserInfo(cfg.Username, cfg.Password))
		}
		if cfg.Token != "" {
			options = append(options, nats.Token(cfg.Token))
		}
		if cfg.TLSInsecure {
			options = append(options, nats.Secure(&tls.Config{InsecureSkipVerify: true}))
		}
		url = strings.Join(cfg.Servers, ",")
		label = url
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	log.Info("connected to NATS", slog.String("servers", label))

	return &Client{
		conn:   conn,
		prefix: cfg.SubjectPrefix,
		log:    log,
	}, nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	c.log.Info("closing NATS connection")
	c.conn.Drain()
	c.conn.Close()
}

func (c *Client) Healthy() bool {
	return c != nil && c.conn != nil && c.conn.Status() == nats.CONNECTED
}

func (c *Client) Conn() *nats.Conn {
	return c.conn
}

// PublishTurn broadcasts evt on the subject for its stage.
func (c *Client) PublishTurn(evt protocol.TurnEvent) error {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal turn event: %w", err)
	}
	return c.conn.Publish(protocol.TurnSubject(c.prefix, evt.Stage), data)
}

// SubscribeTurns delivers every turn event to handler.
func (c *Client) SubscribeTurns(handler func(protocol.TurnEvent)) (*nats.Subscription, error) {
	return c.conn.Subscribe(protocol.TurnWildcard(c.prefix), func(msg *nats.Msg) {
		var evt protocol.TurnEvent
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			c.log.Warn("failed to decode turn event", slog.String("error", err.Error()))
			return
		}
		handler(evt)
	})
}
