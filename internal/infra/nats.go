package infra

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NewNATSConn connects to the relay bus. onReconnect runs every time the
// connection is re-established. Returns nil, nil when NATS is disabled.
func NewNATSConn(cfg *Config, onReconnect func(), logger *slog.Logger) (*nats.Conn, error) {
	if !cfg.NATSEnabled {
		logger.Info("nats relay transport disabled")
		return nil, nil
	}

	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name("warden-"+cfg.ServerName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
			if onReconnect != nil {
				onReconnect()
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	logger.Info("nats relay transport initialized", "url", cfg.NATSURL)
	return nc, nil
}
