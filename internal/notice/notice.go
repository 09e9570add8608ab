// Package notice selects template keys for punishment notices and renders
// them with a default English table. Callers that localize replace the
// Formatter; the engine only ever picks keys.
package notice

import (
	"os"
	"strings"

	"github.com/attaboy/warden/internal/domain"
	"gopkg.in/yaml.v3"
)

// Kind distinguishes where a notice is shown.
type Kind string

const (
	KindBroadcast Kind = "broadcast"
	KindScreen    Kind = "screen"
	KindRevoke    Kind = "revoke"
)

// Key returns the template key for a punishment type and kind, e.g. "tempban.screen".
func Key(t domain.PunishmentType, kind Kind) string {
	return string(t) + "." + string(kind)
}

// Formatter renders a template key for a punishment.
type Formatter interface {
	Format(key string, p domain.Punishment) string
}

// Templates is the default Formatter. Placeholders: {target} {staff} {reason}
// {duration} {id} {origin}.
type Templates struct {
	table map[string]string
}

var defaults = map[string]string{
	"ban.broadcast":       "{target} was banned by {staff}: {reason}",
	"ban.screen":          "You are banned from this network.\nReason: {reason}\nID: #{id}",
	"ban.revoke":          "{target} was unbanned by {staff}",
	"tempban.broadcast":   "{target} was banned by {staff} for {duration}: {reason}",
	"tempban.screen":      "You are banned for {duration}.\nReason: {reason}\nID: #{id}",
	"tempban.revoke":      "{target} was unbanned by {staff}",
	"ipban.broadcast":     "{target} was IP banned by {staff}: {reason}",
	"ipban.screen":        "Your address is banned from this network.\nReason: {reason}\nID: #{id}",
	"ipban.revoke":        "{target} was unbanned by {staff}",
	"mute.broadcast":      "{target} was muted by {staff}: {reason}",
	"mute.screen":         "You are muted. Reason: {reason}",
	"mute.revoke":         "{target} was unmuted by {staff}",
	"tempmute.broadcast":  "{target} was muted by {staff} for {duration}: {reason}",
	"tempmute.screen":     "You are muted for {duration}. Reason: {reason}",
	"tempmute.revoke":     "{target} was unmuted by {staff}",
	"voicemute.broadcast": "{target} was voice muted by {staff}: {reason}",
	"voicemute.screen":    "You are voice muted. Reason: {reason}",
	"voicemute.revoke":    "{target} was voice unmuted by {staff}",
	"warn.broadcast":      "{target} was warned by {staff}: {reason}",
	"warn.screen":         "You have been warned: {reason}",
	"kick.broadcast":      "{target} was kicked by {staff}: {reason}",
	"kick.screen":         "You were kicked.\nReason: {reason}",
}

// NewTemplates returns the default table with overrides applied.
func NewTemplates(overrides map[string]string) *Templates {
	table := make(map[string]string, len(defaults)+len(overrides))
	for k, v := range defaults {
		table[k] = v
	}
	for k, v := range overrides {
		table[k] = v
	}
	return &Templates{table: table}
}

// LoadTemplates reads a flat key: text YAML map from path and layers it over the defaults.
// An empty path yields the defaults.
func LoadTemplates(path string) (*Templates, error) {
	if path == "" {
		return NewTemplates(nil), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var overrides map[string]string
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return nil, err
	}
	return NewTemplates(overrides), nil
}

// Format renders key. Unknown keys render as the key itself so a missing
// template is visible rather than silent.
func (t *Templates) Format(key string, p domain.Punishment) string {
	tmpl, ok := t.table[key]
	if !ok {
		return key
	}
	staff := p.StaffName
	if staff == "" {
		staff = domain.ConsoleName
	}
	duration := "permanent"
	if !p.IsPermanent() && p.Type != domain.TypeKick {
		duration = domain.FormatDuration((p.ExpiresAt - p.CreatedAt) / 1000)
	}
	r := strings.NewReplacer(
		"{target}", p.TargetName,
		"{staff}", staff,
		"{reason}", p.Reason,
		"{duration}", duration,
		"{id}", p.PublicID,
		"{origin}", p.ServerOrigin,
	)
	return r.Replace(tmpl)
}
