package cache

import (
	"strings"

	"github.com/google/uuid"
)

// Key builders for the engine caches. Everything keyed by a UUID shares the
// "<kind>:<uuid>" shape so IdentityKeys can enumerate it.

func BanKey(id uuid.UUID) string     { return "ban:" + id.String() }
func MuteKey(id uuid.UUID) string    { return "mute:" + id.String() }
func HistoryKey(id uuid.UUID) string { return "history:" + id.String() }
func AltsKey(id uuid.UUID) string    { return "alts:" + id.String() }

// IdentityKey is the name-resolution key; names are case-insensitive.
func IdentityKey(name string) string { return "identity:" + strings.ToLower(name) }

// Prefixes of the IP-scoped lookups; dropped wholesale when any IP-scoped record changes.
const (
	IPBanPrefix  = "ipban:"
	IPMutePrefix = "ipmute:"
)

// IPBanKey keys the active IP ban lookup.
func IPBanKey(ip string) string { return IPBanPrefix + ip }

// IPMuteKey keys the active IP mute lookup.
func IPMuteKey(ip string) string { return IPMutePrefix + ip }

// IdentityKeys lists the punishment-state keys that must be dropped when an identity's records change.
func IdentityKeys(id uuid.UUID) []string {
	return []string{BanKey(id), MuteKey(id), HistoryKey(id)}
}
