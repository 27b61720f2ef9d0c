package utils

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// EventPublisher emits settlement and level-up events for downstream
// consumers (stats, audit). Publishing is best effort and never blocks a
// session from settling.
type EventPublisher interface {
	Publish(subject string, payload any)
	Close()
}

// SettlementEvent is published once per terminated session.
type SettlementEvent struct {
	GuildID   string    `json:"guild_id"`
	UserID    string    `json:"user_id"`
	Game      string    `json:"game"`
	Score     int64     `json:"score"`
	Earnings  int64     `json:"earnings"`
	XP        int64     `json:"xp"`
	NewRecord bool      `json:"new_record"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}

// NATSPublisher publishes events to a NATS subject tree under "arcade.".
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects to the configured NATS server. Returns a no-op
// publisher when no URL is configured.
func NewNATSPublisher(cfg *EventsConfig) (EventPublisher, error) {
	if cfg.NATSURL == "" {
		return noopPublisher{}, nil
	}
	conn, err := nats.Connect(cfg.NATSURL,
		nats.Name("arcade-bot"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{conn: conn}, nil
}

// Publish marshals and sends the payload; failures are logged and dropped.
func (p *NATSPublisher) Publish(subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("encode event")
		return
	}
	if err := p.conn.Publish("arcade."+subject, data); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("publish event")
	}
}

// Close drains the connection.
func (p *NATSPublisher) Close() {
	_ = p.conn.Drain()
}

type noopPublisher struct{}

func (noopPublisher) Publish(string, any) {}
func (noopPublisher) Close()              {}
