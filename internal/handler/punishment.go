package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/attaboy/warden/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// PunishmentReader is the read side of the engine exposed over HTTP.
type PunishmentReader interface {
	Recent(ctx context.Context, limit int) ([]domain.Punishment, error)
	FindByPublicID(ctx context.Context, code string) (*domain.Punishment, error)
	LookupIdentity(ctx context.Context, name string) (*domain.Identity, error)
	GetHistory(ctx context.Context, id uuid.UUID, limit int) ([]domain.Punishment, error)
	ListPendingAppeals(ctx context.Context, limit int) ([]domain.Appeal, error)
}

// PunishmentHandler serves the reporting endpoints.
type PunishmentHandler struct {
	reader PunishmentReader
}

// NewPunishmentHandler creates a new PunishmentHandler.
func NewPunishmentHandler(reader PunishmentReader) *PunishmentHandler {
	return &PunishmentHandler{reader: reader}
}

// Recent handles GET /api/punishments/recent?limit=N.
func (h *PunishmentHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	list, err := h.reader.Recent(r.Context(), limit)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"punishments": nonNil(list)})
}

// Get handles GET /api/punishments/{id}.
func (h *PunishmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.reader.FindByPublicID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, p)
}

// History handles GET /api/players/{name}/history?limit=N.
func (h *PunishmentHandler) History(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	ident, err := h.reader.LookupIdentity(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		RespondError(w, err)
		return
	}
	list, err := h.reader.GetHistory(r.Context(), ident.UUID, limit)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{
		"player":      ident,
		"punishments": nonNil(list),
	})
}

// PendingAppeals handles GET /api/appeals/pending.
func (h *PunishmentHandler) PendingAppeals(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	list, err := h.reader.ListPendingAppeals(r.Context(), limit)
	if err != nil {
		RespondError(w, err)
		return
	}
	if list == nil {
		list = []domain.Appeal{}
	}
	RespondJSON(w, http.StatusOK, map[string]any{"appeals": list})
}

func parseLimit(r *http.Request) (int, error) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > maxListLimit {
		return 0, domain.ErrValidation("limit must be between 1 and 100")
	}
	return n, nil
}

func nonNil(list []domain.Punishment) []domain.Punishment {
	if list == nil {
		return []domain.Punishment{}
	}
	return list
}
