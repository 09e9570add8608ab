package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/attaboy/warden/internal/domain"
	"github.com/attaboy/warden/internal/notice"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	loginTimeout     = 2 * time.Second
	loginUnavailable = "Unable to verify your login right now. Please try again shortly."
)

// LoginChecker is the engine's login gate.
type LoginChecker interface {
	CheckLogin(ctx context.Context, id uuid.UUID, ip string) (*domain.Punishment, error)
	RecordLogin(ctx context.Context, rec domain.LoginRecord) error
}

// LoginRequest is what a proxy sends before admitting a connection.
type LoginRequest struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
	IP   string `json:"ip"`
}

// LoginReply tells the proxy whether to admit the connection.
type LoginReply struct {
	Allowed      bool   `json:"allowed"`
	Message      string `json:"message,omitempty"`
	PunishmentID string `json:"punishmentId,omitempty"`
}

// ServeLogins answers login checks on subject. Allowed logins are appended to
// the login history. Lookup failures deny the login.
func ServeLogins(nc *nats.Conn, subject string, gate LoginChecker, fmtr notice.Formatter, logger *slog.Logger) (*nats.Subscription, error) {
	return nc.Subscribe(subject, func(msg *nats.Msg) {
		reply := handleLogin(msg.Data, gate, fmtr, logger)
		data, err := json.Marshal(reply)
		if err != nil {
			logger.Error("marshal login reply", "error", err)
			return
		}
		if err := msg.Respond(data); err != nil {
			logger.Warn("login reply failed", "error", err)
		}
	})
}

func handleLogin(data []byte, gate LoginChecker, fmtr notice.Formatter, logger *slog.Logger) LoginReply {
	var req LoginRequest
	if err := json.Unmarshal(data, &req); err != nil {
		logger.Warn("login request rejected", "error", err)
		return LoginReply{Message: loginUnavailable}
	}
	id, err := uuid.Parse(req.UUID)
	if err != nil || req.Name == "" {
		logger.Warn("login request missing identity", "uuid", req.UUID, "name", req.Name)
		return LoginReply{Message: loginUnavailable}
	}

	ctx, cancel := context.WithTimeout(context.Background(), loginTimeout)
	defer cancel()

	p, err := gate.CheckLogin(ctx, id, req.IP)
	if err != nil {
		logger.Error("login check failed", "uuid", id, "error", err)
		return LoginReply{Message: loginUnavailable}
	}
	if p != nil {
		return LoginReply{
			Message:      fmtr.Format(notice.Key(p.Type, notice.KindScreen), *p),
			PunishmentID: p.PublicID,
		}
	}

	if err := gate.RecordLogin(ctx, domain.LoginRecord{UUID: id, Name: req.Name, IP: req.IP}); err != nil {
		logger.Warn("record login failed", "uuid", id, "error", err)
	}
	return LoginReply{Allowed: true}
}
