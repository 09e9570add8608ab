//go:build integration

package testutil

import (
	"context"
	"strings"
	"time"
)

var tables = []string{
	"litebans_bans",
	"litebans_mutes",
	"litebans_warnings",
	"litebans_kicks",
	"warden_voice_mutes",
	"litebans_history",
	"warden_scheduled_punishments",
	"warden_punishment_metadata",
	"warden_appeals",
	"warden_outbox",
	"warden_audit_log",
}

// CleanAll truncates every warden table.
func (env *TestEnv) CleanAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := env.Pool.Exec(ctx, "TRUNCATE "+strings.Join(tables, ", ")+" RESTART IDENTITY CASCADE"); err != nil {
		env.t.Fatalf("CleanAll: %v", err)
	}
}
