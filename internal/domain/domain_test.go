package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Punishment Tests ---

func TestPunishment_IsPermanent(t *testing.T) {
	for _, pt := range AllPunishmentTypes() {
		t.Run(string(pt), func(t *testing.T) {
			p := &Punishment{Type: pt, ExpiresAt: Permanent}
			assert.True(t, p.IsPermanent())
			p.ExpiresAt = 1_700_000_000_000
			assert.False(t, p.IsPermanent())
		})
	}
}

func TestPunishment_IsExpired(t *testing.T) {
	now := int64(1_700_000_000_000)
	tests := []struct {
		name      string
		expiresAt int64
		want      bool
	}{
		{"permanent never expires", Permanent, false},
		{"future", now + 1000, false},
		{"exactly now", now, false},
		{"past", now - 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Punishment{ExpiresAt: tt.expiresAt}
			assert.Equal(t, tt.want, p.IsExpired(now))
		})
	}
}

func TestPunishment_Remaining(t *testing.T) {
	now := int64(1_700_000_000_000)
	p := &Punishment{ExpiresAt: now + 3_600_000}
	assert.Equal(t, time.Hour, p.Remaining(now))
	assert.Equal(t, time.Duration(0), p.Remaining(now+4_000_000))

	perm := &Punishment{ExpiresAt: Permanent}
	assert.Equal(t, time.Duration(0), perm.Remaining(now))
}

func TestPunishmentType_Classes(t *testing.T) {
	tests := []struct {
		pt   PunishmentType
		ban  bool
		mute bool
		tbl  Table
	}{
		{TypeBan, true, false, TableBans},
		{TypeTempBan, true, false, TableBans},
		{TypeIPBan, true, false, TableBans},
		{TypeMute, false, true, TableMutes},
		{TypeTempMute, false, true, TableMutes},
		{TypeWarn, false, false, TableWarnings},
		{TypeKick, false, false, TableKicks},
		{TypeVoiceMute, false, false, TableVoiceMutes},
	}
	for _, tt := range tests {
		t.Run(string(tt.pt), func(t *testing.T) {
			assert.Equal(t, tt.ban, tt.pt.IsBanClass())
			assert.Equal(t, tt.mute, tt.pt.IsMuteClass())
			assert.Equal(t, tt.tbl, tt.pt.Table())
		})
	}
}

func TestTypeFromRow(t *testing.T) {
	assert.Equal(t, TypeIPBan, TypeFromRow(TableBans, Permanent, true))
	assert.Equal(t, TypeBan, TypeFromRow(TableBans, Permanent, false))
	assert.Equal(t, TypeTempBan, TypeFromRow(TableBans, 1000, false))
	assert.Equal(t, TypeMute, TypeFromRow(TableMutes, Permanent, false))
	assert.Equal(t, TypeTempMute, TypeFromRow(TableMutes, 1000, true))
	assert.Equal(t, TypeWarn, TypeFromRow(TableWarnings, 0, false))
	assert.Equal(t, TypeKick, TypeFromRow(TableKicks, 5, false))
	assert.Equal(t, TypeVoiceMute, TypeFromRow(TableVoiceMutes, Permanent, false))
}

func TestParsePunishmentType(t *testing.T) {
	pt, ok := ParsePunishmentType("tempmute")
	require.True(t, ok)
	assert.Equal(t, TypeTempMute, pt)

	_, ok = ParsePunishmentType("jail")
	assert.False(t, ok)
}

func TestStaff(t *testing.T) {
	console := Console()
	assert.True(t, console.IsConsole())
	assert.True(t, console.Admin)

	id := uuid.New()
	s := NewStaff(id, "Mod", false)
	assert.False(t, s.IsConsole())
	assert.True(t, s.Is(id))
	assert.False(t, s.Is(uuid.New()))
	assert.False(t, console.Is(id))
}

// --- Duration Tests ---

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"30s", 30, false},
		{"5m", 300, false},
		{"1h", 3600, false},
		{"1d2h3m", 86400 + 7200 + 180, false},
		{"3m2h1d", 86400 + 7200 + 180, false},
		{"1w", 604800, false},
		{"2mo", 2 * 30 * 86400, false},
		{"1y", 365 * 86400, false},
		{"1D", 86400, false},
		{"1h1h", 7200, false},
		{"perm", Permanent, false},
		{"Permanent", Permanent, false},
		{"", 0, true},
		{"h", 0, true},
		{"10", 0, true},
		{"10x", 0, true},
		{"0s", 0, true},
		{"1d-2h", 0, true},
		{"600000000000y", 0, true},
		{"292471208677y1y", 0, true},
		{"9223372036854775807s", 9223372036854775807, false},
		{"9223372036854775807s1s", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "permanent", FormatDuration(Permanent))
	assert.Equal(t, "1d2h3m", FormatDuration(86400+7200+180))
	assert.Equal(t, "45s", FormatDuration(45))

	secs, err := ParseDuration(FormatDuration(400 * 86400))
	require.NoError(t, err)
	assert.Equal(t, int64(400*86400), secs)
}

// --- Error Tests ---

func TestAppError_Is(t *testing.T) {
	err := fmt.Errorf("apply: %w", ErrUnknownIdentity("Steve"))
	assert.True(t, errors.Is(err, ErrIdentityNotFound))
	assert.False(t, errors.Is(err, ErrTargetExempt))
	assert.Equal(t, CodeIdentityNotFound, CodeOf(err))
}

func TestAppError_ErrorString(t *testing.T) {
	plain := ErrValidation("reason too long")
	assert.Equal(t, "VALIDATION_ERROR: reason too long", plain.Error())

	cause := errors.New("connection refused")
	wrapped := ErrPersistence("insert punishment", cause)
	assert.Contains(t, wrapped.Error(), "connection refused")
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, 503, wrapped.Status)
}

func TestCodeOf_Unknown(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	assert.Equal(t, CodeInternal, CodeOf(nil))
}

func TestErrDurationExceeded(t *testing.T) {
	err := ErrDurationExceeded(7200, 3600)
	assert.Equal(t, CodeDurationTooLong, err.Code)
	assert.Contains(t, err.Message, "7200")
}

// --- Validator Tests ---

type sampleRequest struct {
	Name   string `validate:"required,playername"`
	Reason string `validate:"max=8"`
	Code   string `validate:"omitempty,publicid"`
}

func TestValidateStruct(t *testing.T) {
	require.NoError(t, ValidateStruct(sampleRequest{Name: "Steve_1", Reason: "x"}))

	err := ValidateStruct(sampleRequest{Name: "bad name!", Reason: "way too long reason", Code: "abc"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidationFailed))
	assert.Contains(t, err.Error(), "Name failed playername")
	assert.Contains(t, err.Error(), "Reason failed max=8")
	assert.Contains(t, err.Error(), "Code failed publicid")
}

func TestValidatePlayerName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"Steve", false},
		{"a_b_c_123", false},
		{"", true},
		{"has space", true},
		{"seventeen_chars__", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePlayerName(tt.name)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidatePublicID(t *testing.T) {
	require.NoError(t, ValidatePublicID("AB12CD"))
	require.Error(t, ValidatePublicID("ab12cd"))
	require.Error(t, ValidatePublicID("AB12C"))
}

// --- Event Tests ---

func TestNewPunishmentAppliedEvent(t *testing.T) {
	target := uuid.New()
	p := &Punishment{PublicID: "ABC123", Type: TypeBan, TargetUUID: target, TargetName: "Steve", ExpiresAt: Permanent}
	at := time.Unix(1_700_000_000, 0)

	evt := NewPunishmentAppliedEvent(p, at)
	assert.Equal(t, EventPunishmentApplied, evt.EventType)
	assert.Equal(t, AggregatePunishment, evt.AggregateType)
	assert.Equal(t, "ABC123", evt.AggregateID)
	assert.Equal(t, target.String(), evt.PartitionKey)
	assert.Equal(t, at, evt.OccurredAt)

	var decoded Punishment
	require.NoError(t, json.Unmarshal(evt.Payload, &decoded))
	assert.Equal(t, "Steve", decoded.TargetName)
}

func TestNewPunishmentScheduledEvent_Escalated(t *testing.T) {
	sp := &ScheduledPunishment{ID: 7, TargetUUID: uuid.New(), EscalationLevel: 2}
	evt := NewPunishmentScheduledEvent(sp, time.Now())
	assert.Equal(t, EventPunishmentEscalated, evt.EventType)
	assert.Equal(t, "7", evt.AggregateID)

	sp.EscalationLevel = 0
	assert.Equal(t, EventPunishmentScheduled, NewPunishmentScheduledEvent(sp, time.Now()).EventType)
}

func TestAuditFromDraft(t *testing.T) {
	evt := NewPunishmentRevokedEvent("ZZ9999", uuid.New(), TypeMute, Console(), time.Now())
	entry := AuditFromDraft(evt)
	assert.Equal(t, evt.EventID, entry.EventID)
	assert.Equal(t, EventPunishmentRevoked, entry.EventType)
	assert.JSONEq(t, string(evt.Payload), string(entry.Payload))
}
