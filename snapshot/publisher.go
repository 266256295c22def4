package snapshot

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// Publisher pushes built snapshots to a NATS subject for external consumers.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher connects to NATS with reconnect logging.
func NewPublisher(url, subject string, log *slog.Logger) (*Publisher, error) {
	if log == nil {
		log = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("fleetd-snapshots"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			log.Warn("nats snapshot feed disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info("nats snapshot feed reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect snapshot feed: %w", err)
	}
	return &Publisher{nc: nc, subject: subject}, nil
}

// Publish marshals and sends one snapshot.
func (p *Publisher) Publish(snap FleetSnapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return p.nc.Publish(p.subject, b)
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}
