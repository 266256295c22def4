package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// Subscriber consumes JSON position reports from a NATS subject and runs
// them through the pipeline. Subjects follow fleet.reports.<route>.<vehicle>
// but routing is decided by the report body, not the subject.
type Subscriber struct {
	nc       *nats.Conn
	subject  string
	pipeline *Pipeline
	sub      *nats.Subscription
	log      *slog.Logger
}

// NewSubscriber connects to NATS with reconnect logging.
func NewSubscriber(url, subject string, p *Pipeline, log *slog.Logger) (*Subscriber, error) {
	if log == nil {
		log = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("fleetd-ingest"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			log.Warn("nats report feed disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info("nats report feed reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect report feed: %w", err)
	}
	return &Subscriber{nc: nc, subject: subject, pipeline: p, log: log}, nil
}

// Run subscribes and blocks until the context is cancelled. Undecodable
// messages are logged and dropped; rejections are handled inside the
// pipeline.
func (s *Subscriber) Run(ctx context.Context) error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		var r RawReport
		if err := json.Unmarshal(msg.Data, &r); err != nil {
			s.log.Warn("undecodable report", "subject", msg.Subject, "error", err)
			return
		}
		_ = s.pipeline.Ingest(r)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.subject, err)
	}
	s.sub = sub

	<-ctx.Done()
	return s.Close()
}

// Close drains the subscription and connection.
func (s *Subscriber) Close() error {
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	if s.nc != nil {
		_ = s.nc.Drain()
		s.nc.Close()
	}
	return nil
}
