// Package publish forwards streaming updates to NATS JetStream so
// downstream services can consume the merged feed without linking the
// orchestrator.
package publish

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/marketroute/marketroute/internal/metrics"
	"github.com/marketroute/marketroute/pkg/model"
)

// Envelope wraps one update on the wire.
type Envelope struct {
	ID        uuid.UUID       `json:"id"`
	EventType string          `json:"event_type"`
	Symbol    string          `json:"symbol"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Publisher publishes update envelopes to JetStream subjects of the
// form <prefix>.<update-kind>.<symbol>. It satisfies the streaming
// coordinator's sink interface.
type Publisher struct {
	js      nats.JetStreamContext
	prefix  string
	service string
	log     *zap.Logger
}

// New builds a Publisher on an established NATS connection.
func New(nc *nats.Conn, prefix, service string, log *zap.Logger) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return NewWithJetStream(js, prefix, service, log), nil
}

// NewWithJetStream wires an existing JetStream context, mainly for
// tests.
func NewWithJetStream(js nats.JetStreamContext, prefix, service string, log *zap.Logger) *Publisher {
	if prefix == "" {
		prefix = "md.updates"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{js: js, prefix: prefix, service: service, log: log}
}

// Publish emits one update. Subjects are lower-cased and symbol
// separators normalized so they stay valid NATS tokens.
func (p *Publisher) Publish(ctx context.Context, u model.Update) error {
	payload, err := json.Marshal(u)
	if err != nil {
		p.log.Error("publisher.marshal_failed",
			zap.String("symbol", u.Instrument.Symbol),
			zap.Error(err))
		metrics.IncPublishedMessage(p.prefix, "marshal_failed")
		return err
	}

	subject := p.subjectFor(u)
	env := Envelope{
		ID:        uuid.New(),
		EventType: "marketdata." + string(u.Kind),
		Symbol:    u.Instrument.Symbol,
		Timestamp: u.Ts,
		Payload:   payload,
	}
	data, err := json.Marshal(env)
	if err != nil {
		metrics.IncPublishedMessage(subject, "marshal_failed")
		return err
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"event_type":   []string{env.EventType},
			"envelope_id":  []string{env.ID.String()},
			"service":      []string{p.service},
			"content_type": []string{"application/json"},
			"provider":     []string{u.Provider},
		},
	}

	start := time.Now()
	_, err = p.js.PublishMsg(msg)
	metrics.ObservePublishDuration(subject, start)

	if err != nil {
		p.log.Error("publisher.publish_failed",
			zap.String("subject", subject),
			zap.String("symbol", u.Instrument.Symbol),
			zap.Error(err))
		metrics.IncPublishedMessage(subject, "error")
		return err
	}
	metrics.IncPublishedMessage(subject, "ok")
	return nil
}

func (p *Publisher) subjectFor(u model.Update) string {
	symbol := strings.ToLower(strings.ReplaceAll(u.Instrument.Symbol, "/", "-"))
	return p.prefix + "." + string(u.Kind) + "." + symbol
}
