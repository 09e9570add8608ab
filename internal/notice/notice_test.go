package notice

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/attaboy/warden/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "tempban.screen", Key(domain.TypeTempBan, KindScreen))
	assert.Equal(t, "mute.revoke", Key(domain.TypeMute, KindRevoke))
}

func TestTemplates_Format(t *testing.T) {
	tmpl := NewTemplates(nil)
	p := domain.Punishment{
		Type:       domain.TypeTempBan,
		PublicID:   "AB12CD",
		TargetName: "Steve",
		Reason:     "cheating",
		CreatedAt:  1_000,
		ExpiresAt:  1_000 + 3_600_000,
	}

	tests := []struct {
		name string
		key  string
		p    domain.Punishment
		want string
	}{
		{"console staff", "tempban.broadcast", p, "Steve was banned by Console for 1h: cheating"},
		{"screen", "tempban.screen", p, "You are banned for 1h.\nReason: cheating\nID: #AB12CD"},
		{"unknown key", "nope.key", p, "nope.key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tmpl.Format(tt.key, tt.p))
		})
	}
}

func TestTemplates_PermanentAndStaff(t *testing.T) {
	p := domain.Punishment{Type: domain.TypeBan, TargetName: "Alex", StaffName: "Mod", Reason: "x", ExpiresAt: domain.Permanent}
	assert.Equal(t, "Alex was banned by Mod: x", NewTemplates(nil).Format("ban.broadcast", p))
}

func TestTemplates_Overrides(t *testing.T) {
	tmpl := NewTemplates(map[string]string{"kick.screen": "bye {target}"})
	assert.Equal(t, "bye Steve", tmpl.Format("kick.screen", domain.Punishment{TargetName: "Steve"}))
}

func TestLoadTemplates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notices.yaml")
	require.NoError(t, os.WriteFile(path, []byte("warn.screen: \"Warned: {reason}\"\n"), 0o600))

	tmpl, err := LoadTemplates(path)
	require.NoError(t, err)
	assert.Equal(t, "Warned: spam", tmpl.Format("warn.screen", domain.Punishment{Reason: "spam"}))
	assert.Equal(t, "Steve was kicked by Console: x", tmpl.Format("kick.broadcast", domain.Punishment{TargetName: "Steve", Reason: "x"}))

	_, err = LoadTemplates(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	def, err := LoadTemplates("")
	require.NoError(t, err)
	assert.NotNil(t, def)
}
