package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// ErrNotConnected is returned when the bus connection is down.
var ErrNotConnected = errors.New("nats not connected")

// NATSTransport publishes frames on a single subject.
type NATSTransport struct {
	nc      *nats.Conn
	subject string
}

// NewNATSTransport creates a transport over nc.
func NewNATSTransport(nc *nats.Conn, subject string) *NATSTransport {
	return &NATSTransport{nc: nc, subject: subject}
}

func (t *NATSTransport) Name() string { return "nats" }

func (t *NATSTransport) Send(_ context.Context, frame []byte) error {
	if !t.nc.IsConnected() {
		return ErrNotConnected
	}
	if err := t.nc.Publish(t.subject, frame); err != nil {
		return fmt.Errorf("publish relay frame: %w", err)
	}
	return nil
}

// Handler applies a decoded message.
type Handler func(Message)

// Listen subscribes to subject and hands known messages to handle. Frames that
// fail to decode, carry an unknown action, or originated from self are skipped.
func Listen(nc *nats.Conn, subject, self string, handle Handler, logger *slog.Logger) (*nats.Subscription, error) {
	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		m, err := Decode(msg.Data)
		if err != nil {
			logger.Warn("relay frame rejected", "error", err)
			return
		}
		if !m.Action.Known() {
			logger.Debug("relay action ignored", "action", m.Action)
			return
		}
		if self != "" && m.Origin == self {
			return
		}
		handle(m)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return sub, nil
}
