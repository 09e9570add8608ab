package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/attaboy/warden/internal/domain"
	"github.com/attaboy/warden/internal/executor"
	"github.com/attaboy/warden/internal/relay"
	"github.com/attaboy/warden/internal/repository/repotest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConns struct {
	mu     sync.Mutex
	online map[uuid.UUID]bool
	exempt map[uuid.UUID]bool
	ips    map[uuid.UUID]string
	kicked []uuid.UUID
}

func newFakeConns() *fakeConns {
	return &fakeConns{online: map[uuid.UUID]bool{}, exempt: map[uuid.UUID]bool{}, ips: map[uuid.UUID]string{}}
}

func (c *fakeConns) Address(id uuid.UUID) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.online[id] {
		return "", false
	}
	return c.ips[id], true
}

func (c *fakeConns) Lookup(id uuid.UUID) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online[id], c.exempt[id]
}

func (c *fakeConns) Kick(id uuid.UUID, _ string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.online[id] {
		return false
	}
	delete(c.online, id)
	c.kicked = append(c.kicked, id)
	return true
}

type fakeRelay struct {
	mu   sync.Mutex
	sent []relay.Message
}

func (r *fakeRelay) Send(_ context.Context, m relay.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, m)
	return nil
}

func (r *fakeRelay) of(action relay.Action) []relay.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []relay.Message
	for _, m := range r.sent {
		if m.Action == action {
			out = append(out, m)
		}
	}
	return out
}

type fakeBroadcaster struct {
	mu    sync.Mutex
	texts []string
}

func (b *fakeBroadcaster) Broadcast(_ context.Context, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.texts = append(b.texts, text)
	return nil
}

func (b *fakeBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.texts)
}

type fakeAlts map[uuid.UUID][]uuid.UUID

func (f fakeAlts) FindAlts(_ context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	return f[id], nil
}

type fakeScheduler struct {
	entries []*domain.ScheduledPunishment
}

func (s *fakeScheduler) Schedule(_ context.Context, sp *domain.ScheduledPunishment) error {
	s.entries = append(s.entries, sp)
	return nil
}

var (
	steveID = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	alexID  = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	altID   = uuid.MustParse("33333333-3333-3333-3333-333333333333")
	modID   = uuid.MustParse("99999999-9999-9999-9999-999999999999")

	mod = domain.NewStaff(modID, "Mod", false)
)

type fixture struct {
	db    *repotest.DB
	eng   *Engine
	conns *fakeConns
	relay *fakeRelay
	bc    *fakeBroadcaster
	now   time.Time
}

func newFixture(t *testing.T, tweak ...func(*Deps, *Config)) *fixture {
	t.Helper()
	f := &fixture{
		db:    repotest.New(),
		conns: newFakeConns(),
		relay: &fakeRelay{},
		bc:    &fakeBroadcaster{},
		now:   time.UnixMilli(1_700_000_000_000),
	}
	ctx := context.Background()
	for _, rec := range []domain.LoginRecord{
		{Name: "Steve", UUID: steveID, IP: "10.0.0.1", Date: f.now.Add(-time.Hour)},
		{Name: "Alex", UUID: alexID, IP: "10.0.0.2", Date: f.now.Add(-time.Hour)},
		{Name: "SteveAlt", UUID: altID, IP: "10.0.0.1", Date: f.now.Add(-time.Hour)},
	} {
		require.NoError(t, f.db.History().Record(ctx, nil, rec))
	}

	d := Deps{
		Store:       f.db.Store(),
		Punishments: f.db.Punishments(),
		History:     f.db.History(),
		Outbox:      f.db.Outbox(),
		Appeals:     f.db.Appeals(),
		Connections: f.conns,
		Broadcaster: f.bc,
		Relay:       f.relay,
		Pool:        executor.Inline{},
		Serial:      executor.Inline{},
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	cfg := Config{
		ServerName:  "lobby",
		MaxTempBan:  24 * time.Hour,
		MaxTempMute: time.Hour,
		ActiveTTL:   time.Minute,
		IdentityTTL: time.Minute,
	}
	for _, fn := range tweak {
		fn(&d, &cfg)
	}
	f.eng = New(d, cfg)
	f.eng.now = func() time.Time { return f.now }
	return f
}

func req(target string) Request {
	return Request{TargetName: target, Reason: "cheating", Staff: mod}
}

func TestBan_UnknownIdentityWritesNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.eng.Ban(context.Background(), req("Nobody"))
	require.ErrorIs(t, err, domain.ErrIdentityNotFound)

	assert.Empty(t, f.db.Rows(domain.TableBans))
	assert.Empty(t, f.db.Events())
	assert.Empty(t, f.relay.sent)
	assert.Zero(t, f.bc.count())
}

func TestBan_RejectsBadName(t *testing.T) {
	f := newFixture(t)

	_, err := f.eng.Ban(context.Background(), req("no spaces allowed"))
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
}

func TestTempBan_WritesRecord(t *testing.T) {
	f := newFixture(t)
	r := req("steve")
	r.Duration = 3600

	p, err := f.eng.TempBan(context.Background(), r)
	require.NoError(t, err)

	rows := f.db.Rows(domain.TableBans)
	require.Len(t, rows, 1)
	got := rows[0]
	assert.Equal(t, domain.TypeTempBan, p.Type)
	assert.Equal(t, steveID, got.TargetUUID)
	assert.Equal(t, "Steve", got.TargetName)
	assert.Equal(t, domain.Millis(f.now), got.CreatedAt)
	assert.Equal(t, got.CreatedAt+3_600_000, got.ExpiresAt)
	assert.Equal(t, "lobby", got.ServerOrigin)
	assert.Equal(t, "Mod", got.StaffName)
	assert.True(t, got.Active)
	assert.Len(t, got.PublicID, 6)

	events := f.db.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventPunishmentApplied, events[0].EventType)
	assert.Equal(t, got.PublicID, events[0].AggregateID)

	require.Len(t, f.relay.of(relay.ActionInvalidatePlayer), 1)
	assert.Equal(t, steveID.String(), f.relay.of(relay.ActionInvalidatePlayer)[0].UUID)
}

func TestTempBan_RequiresDuration(t *testing.T) {
	f := newFixture(t)

	_, err := f.eng.TempBan(context.Background(), req("Steve"))
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
}

func TestBan_DefaultsReasonAndConsole(t *testing.T) {
	f := newFixture(t)

	p, err := f.eng.Ban(context.Background(), Request{TargetName: "Steve", Staff: domain.Console()})
	require.NoError(t, err)
	assert.Equal(t, "No reason specified", p.Reason)
	assert.Equal(t, domain.ConsoleName, p.StaffName)
	assert.True(t, p.IsConsole())
	assert.True(t, p.IsPermanent())
}

func TestGetActiveBan_ReflectsWriteImmediately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ban, err := f.eng.GetActiveBan(ctx, steveID)
	require.NoError(t, err)
	require.Nil(t, ban)

	_, err = f.eng.Ban(ctx, req("Steve"))
	require.NoError(t, err)

	ban, err = f.eng.GetActiveBan(ctx, steveID)
	require.NoError(t, err)
	require.NotNil(t, ban)
	assert.Equal(t, domain.TypeBan, ban.Type)
}

func TestGetActiveBan_ExpiredCachedEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := req("Steve")
	r.Duration = 60

	_, err := f.eng.TempBan(ctx, r)
	require.NoError(t, err)
	ban, err := f.eng.GetActiveBan(ctx, steveID)
	require.NoError(t, err)
	require.NotNil(t, ban)

	f.now = f.now.Add(2 * time.Minute)
	ban, err = f.eng.GetActiveBan(ctx, steveID)
	require.NoError(t, err)
	assert.Nil(t, ban)
}

func TestUnban(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.eng.Unban(ctx, "Steve", mod)
	require.NoError(t, err)
	assert.False(t, ok, "nothing to revoke")

	_, err = f.eng.Ban(ctx, req("Steve"))
	require.NoError(t, err)
	_, err = f.eng.GetActiveBan(ctx, steveID)
	require.NoError(t, err)

	ok, err = f.eng.Unban(ctx, "Steve", mod)
	require.NoError(t, err)
	assert.True(t, ok)

	ban, err := f.eng.GetActiveBan(ctx, steveID)
	require.NoError(t, err)
	assert.Nil(t, ban)

	row := f.db.Rows(domain.TableBans)[0]
	assert.False(t, row.Active)
	assert.Equal(t, "Mod", row.RemovedByName)
	require.NotNil(t, row.RemovedByUUID)
	assert.Equal(t, modID, *row.RemovedByUUID)

	ok, err = f.eng.Unban(ctx, "Steve", mod)
	require.NoError(t, err)
	assert.False(t, ok)

	events := f.db.Events()
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventPunishmentRevoked, events[1].EventType)
}

func TestUnmute_BroadcastsRevoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.eng.Mute(ctx, req("Steve"))
	require.NoError(t, err)
	before := f.bc.count()

	ok, err := f.eng.Unmute(ctx, "Steve", mod)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, before+1, f.bc.count())
	assert.Equal(t, "Steve was unmuted by Mod", f.bc.texts[before])
}

func TestApply_Eligibility(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*fixture)
		req     Request
		wantErr error
	}{
		{
			name:    "self punishment",
			req:     Request{TargetName: "Steve", Staff: domain.NewStaff(steveID, "Steve", true)},
			wantErr: domain.ErrCannotPunishSelf,
		},
		{
			name: "exempt target",
			setup: func(f *fixture) {
				f.conns.online[steveID] = true
				f.conns.exempt[steveID] = true
			},
			req:     req("Steve"),
			wantErr: domain.ErrTargetExempt,
		},
		{
			name: "exempt offline target is not checked",
			setup: func(f *fixture) {
				f.conns.exempt[steveID] = true
			},
			req: req("Steve"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}
			_, err := f.eng.Ban(context.Background(), tt.req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, f.db.Rows(domain.TableBans))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestApply_ConsoleOverridesExemptSilently(t *testing.T) {
	f := newFixture(t)
	f.conns.online[steveID] = true
	f.conns.exempt[steveID] = true

	p, err := f.eng.Ban(context.Background(), Request{TargetName: "Steve", Staff: domain.Console()})
	require.NoError(t, err)
	assert.True(t, p.Silent)
	assert.Zero(t, f.bc.count())
}

func TestApply_DurationCeiling(t *testing.T) {
	tests := []struct {
		name     string
		typ      domain.PunishmentType
		duration int64
		staff    domain.Staff
		wantErr  bool
	}{
		{"tempban within limit", domain.TypeTempBan, 3600, mod, false},
		{"tempban over limit", domain.TypeTempBan, 2 * 86400, mod, true},
		{"tempban over limit as admin", domain.TypeTempBan, 2 * 86400, domain.NewStaff(modID, "Mod", true), false},
		{"tempmute over limit", domain.TypeTempMute, 7200, mod, true},
		{"tempmute at limit", domain.TypeTempMute, 3600, mod, false},
		{"timed ipban over limit", domain.TypeIPBan, 2 * 86400, mod, true},
		{"permanent ban ignores ceiling", domain.TypeBan, 0, mod, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			r := req("Steve")
			r.Duration = tt.duration
			r.Staff = tt.staff
			_, err := f.eng.apply(context.Background(), tt.typ, r, applyOptions{})
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrDurationTooLong)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestApply_AlreadyPunished(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.eng.Ban(ctx, req("Steve"))
	require.NoError(t, err)

	r := req("Steve")
	r.Duration = 60
	_, err = f.eng.TempBan(ctx, r)
	assert.ErrorIs(t, err, domain.ErrAlreadyPunished)

	_, err = f.eng.Mute(ctx, req("Steve"))
	assert.NoError(t, err, "a ban does not block a mute")

	_, err = f.eng.Warn(ctx, req("Steve"))
	assert.NoError(t, err)
	_, err = f.eng.Warn(ctx, req("Steve"))
	assert.NoError(t, err, "warnings stack")
}

func TestApply_AlreadyPunishedAfterExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := req("Steve")
	r.Duration = 60

	_, err := f.eng.TempMute(ctx, r)
	require.NoError(t, err)

	f.now = f.now.Add(time.Hour)
	_, err = f.eng.TempMute(ctx, r)
	assert.NoError(t, err, "expired mute no longer blocks")
}

func TestApply_ConcurrentBansWriteOne(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.eng.Ban(context.Background(), req("Steve"))
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, domain.ErrAlreadyPunished)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Len(t, f.db.Rows(domain.TableBans), 1)
}

func TestApply_PublicIDCollisionRetries(t *testing.T) {
	f := newFixture(t)
	f.db.CollideNext(2)

	p, err := f.eng.Ban(context.Background(), req("Steve"))
	require.NoError(t, err)
	assert.Len(t, f.db.Rows(domain.TableBans), 1)
	assert.Equal(t, p.PublicID, f.db.Rows(domain.TableBans)[0].PublicID)
}

func TestApply_PublicIDCollisionGivesUp(t *testing.T) {
	f := newFixture(t)
	f.db.CollideNext(maxPublicIDAttempts)

	_, err := f.eng.Ban(context.Background(), req("Steve"))
	assert.ErrorIs(t, err, domain.ErrPersistenceFailed)
	assert.Empty(t, f.db.Rows(domain.TableBans))
}

func TestApply_PersistenceFailureHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	f.conns.online[steveID] = true
	f.db.InsertErr = errors.New("connection reset")

	_, err := f.eng.Ban(context.Background(), req("Steve"))
	require.ErrorIs(t, err, domain.ErrPersistenceFailed)

	assert.Empty(t, f.db.Events())
	assert.Empty(t, f.relay.sent)
	assert.Empty(t, f.conns.kicked)
	assert.Zero(t, f.bc.count())
}

func TestKick_LocalOrRelayed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.conns.online[steveID] = true

	p, err := f.eng.Kick(ctx, req("Steve"))
	require.NoError(t, err)
	assert.Equal(t, p.CreatedAt, p.ExpiresAt)
	assert.Equal(t, []uuid.UUID{steveID}, f.conns.kicked)
	assert.Empty(t, f.relay.of(relay.ActionKickPlayer))

	_, err = f.eng.Kick(ctx, req("Alex"))
	require.NoError(t, err)
	kicks := f.relay.of(relay.ActionKickPlayer)
	require.Len(t, kicks, 1)
	assert.Equal(t, "Alex", kicks[0].PlayerName)
	assert.Contains(t, kicks[0].KickMessage, "cheating")

	assert.Len(t, f.db.Rows(domain.TableKicks), 2)
}

func TestMute_DoesNotDisconnect(t *testing.T) {
	f := newFixture(t)
	f.conns.online[steveID] = true

	_, err := f.eng.Mute(context.Background(), req("Steve"))
	require.NoError(t, err)
	assert.Empty(t, f.conns.kicked)
	assert.Empty(t, f.relay.of(relay.ActionKickPlayer))
}

func TestIPScopedAndVoiceTypes(t *testing.T) {
	tests := []struct {
		name      string
		apply     func(*Engine) func(context.Context, Request) (*domain.Punishment, error)
		duration  int64
		table     domain.Table
		wantType  domain.PunishmentType
		wantIP    bool
		permanent bool
	}{
		{"ipban", func(e *Engine) func(context.Context, Request) (*domain.Punishment, error) { return e.IPBan }, 0, domain.TableBans, domain.TypeIPBan, true, true},
		{"timed ipban", func(e *Engine) func(context.Context, Request) (*domain.Punishment, error) { return e.IPBan }, 600, domain.TableBans, domain.TypeIPBan, true, false},
		{"ipmute", func(e *Engine) func(context.Context, Request) (*domain.Punishment, error) { return e.IPMute }, 0, domain.TableMutes, domain.TypeMute, true, true},
		{"timed ipmute", func(e *Engine) func(context.Context, Request) (*domain.Punishment, error) { return e.IPMute }, 600, domain.TableMutes, domain.TypeTempMute, true, false},
		{"voicemute", func(e *Engine) func(context.Context, Request) (*domain.Punishment, error) { return e.VoiceMute }, 0, domain.TableVoiceMutes, domain.TypeVoiceMute, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			r := req("Steve")
			r.Duration = tt.duration

			p, err := tt.apply(f.eng)(context.Background(), r)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, p.Type)
			assert.Equal(t, tt.wantIP, p.IPScoped)
			assert.Equal(t, "10.0.0.1", p.TargetIP)
			assert.Equal(t, tt.permanent, p.IsPermanent())
			assert.Len(t, f.db.Rows(tt.table), 1)
		})
	}
}

func TestBroadcast_SilentRelativeToDefault(t *testing.T) {
	tests := []struct {
		name            string
		silentByDefault bool
		silent          bool
		wantBroadcast   bool
	}{
		{"loud server, normal request", false, false, true},
		{"loud server, silent request", false, true, false},
		{"silent server, normal request", true, false, false},
		{"silent server, flagged request", true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(_ *Deps, c *Config) { c.BroadcastSilentByDefault = tt.silentByDefault })
			r := req("Steve")
			r.Silent = tt.silent
			_, err := f.eng.Warn(context.Background(), r)
			require.NoError(t, err)
			if tt.wantBroadcast {
				require.Equal(t, 1, f.bc.count())
				assert.Equal(t, "Steve was warned by Mod: cheating", f.bc.texts[0])
			} else {
				assert.Zero(t, f.bc.count())
			}
		})
	}
}

func TestBan_CascadesToAlts(t *testing.T) {
	f := newFixture(t, func(d *Deps, c *Config) {
		c.AltCascade = true
		d.Alts = fakeAlts{steveID: {altID, alexID}}
	})
	ctx := context.Background()

	_, err := f.eng.Ban(ctx, Request{TargetName: "Alex", Staff: mod, Reason: "already here"})
	require.NoError(t, err)

	_, err = f.eng.Ban(ctx, req("Steve"))
	require.NoError(t, err)

	rows := f.db.Rows(domain.TableBans)
	require.Len(t, rows, 3, "alex was already banned and is skipped")

	alt := rows[2]
	assert.Equal(t, altID, alt.TargetUUID)
	assert.Equal(t, "SteveAlt", alt.TargetName)
	assert.True(t, alt.Silent)
	assert.Equal(t, "cheating", alt.Reason)
	assert.Equal(t, "Mod", alt.StaffName)
	assert.Equal(t, 2, f.bc.count(), "derivative bans are silent")
}

func TestBan_CascadeDisabled(t *testing.T) {
	f := newFixture(t, func(d *Deps, _ *Config) {
		d.Alts = fakeAlts{steveID: {altID}}
	})

	_, err := f.eng.Ban(context.Background(), req("Steve"))
	require.NoError(t, err)
	assert.Len(t, f.db.Rows(domain.TableBans), 1)
}

func TestCheckLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := uuid.New()

	p, err := f.eng.CheckLogin(ctx, other, "10.0.0.1")
	require.NoError(t, err)
	require.Nil(t, p)

	_, err = f.eng.IPBan(ctx, req("Steve"))
	require.NoError(t, err)

	p, err = f.eng.CheckLogin(ctx, other, "10.0.0.1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, domain.TypeIPBan, p.Type)

	p, err = f.eng.CheckLogin(ctx, other, "10.9.9.9")
	require.NoError(t, err)
	assert.Nil(t, p)

	ok, err := f.eng.Unban(ctx, "Steve", mod)
	require.NoError(t, err)
	require.True(t, ok)
	p, err = f.eng.CheckLogin(ctx, other, "10.0.0.1")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestRecordLogin_RefreshesName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ident, err := f.eng.LookupIdentity(ctx, "Steve")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", ident.IP)

	require.NoError(t, f.eng.RecordLogin(ctx, domain.LoginRecord{Name: "Steve", UUID: steveID, IP: "10.0.0.9"}))

	ident, err = f.eng.LookupIdentity(ctx, "steve")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.9", ident.IP)
}

func TestChatAllowed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.eng.ChatAllowed(ctx, steveID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.eng.Mute(ctx, req("Steve"))
	require.NoError(t, err)

	ok, err = f.eng.ChatAllowed(ctx, steveID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChatAllowed_IPMuteCoversSharedAddress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for id, ip := range map[uuid.UUID]string{altID: "10.0.0.1", alexID: "10.0.0.2"} {
		f.conns.online[id] = true
		f.conns.ips[id] = ip
	}

	ok, err := f.eng.ChatAllowed(ctx, altID)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.eng.IPMute(ctx, req("Steve"))
	require.NoError(t, err)

	tests := []struct {
		name string
		id   uuid.UUID
		want bool
	}{
		{"alt on the muted address", altID, false},
		{"player on another address", alexID, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := f.eng.ChatAllowed(ctx, tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}

	lifted, err := f.eng.Unmute(ctx, "Steve", mod)
	require.NoError(t, err)
	require.True(t, lifted)
	ok, err = f.eng.ChatAllowed(ctx, altID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGetHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		r := req("Steve")
		r.Reason = strings.Repeat("x", i+1)
		_, err := f.eng.Warn(ctx, r)
		require.NoError(t, err)
		f.now = f.now.Add(time.Second)
	}

	list, err := f.eng.GetHistory(ctx, steveID, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "xxx", list[0].Reason)
	assert.Equal(t, "xx", list[1].Reason)

	_, err = f.eng.Kick(ctx, req("Steve"))
	require.NoError(t, err)
	list, err = f.eng.GetHistory(ctx, steveID, 0)
	require.NoError(t, err)
	assert.Len(t, list, 4, "write invalidates the cached history")
}

func TestRevokeByPublicID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.eng.Warn(ctx, req("Steve"))
	require.NoError(t, err)

	ok, err := f.eng.RevokeByPublicID(ctx, "#"+strings.ToLower(p.PublicID), mod)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, f.db.Rows(domain.TableWarnings)[0].Active)

	ok, err = f.eng.RevokeByPublicID(ctx, p.PublicID, mod)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.eng.RevokeByPublicID(ctx, "ZZZZZZ", mod)
	assert.ErrorIs(t, err, domain.ErrMissing)

	_, err = f.eng.RevokeByPublicID(ctx, "bad", mod)
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
}

func TestHandleRelay_Invalidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ban, err := f.eng.GetActiveBan(ctx, steveID)
	require.NoError(t, err)
	require.Nil(t, ban)

	// written by a sibling process
	require.NoError(t, f.db.Punishments().Insert(ctx, nil, &domain.Punishment{
		PublicID: "SIB001", Type: domain.TypeBan, TargetUUID: steveID, TargetName: "Steve",
		CreatedAt: domain.Millis(f.now), ExpiresAt: domain.Permanent, Active: true,
	}))
	ban, err = f.eng.GetActiveBan(ctx, steveID)
	require.NoError(t, err)
	require.Nil(t, ban, "still served from cache")

	f.eng.HandleRelay(relay.Invalidate(steveID.String()))
	ban, err = f.eng.GetActiveBan(ctx, steveID)
	require.NoError(t, err)
	require.NotNil(t, ban)
	assert.Equal(t, "SIB001", ban.PublicID)
}

func TestHandleRelay_Kick(t *testing.T) {
	f := newFixture(t)
	f.conns.online[alexID] = true

	f.eng.HandleRelay(relay.Kick("alex", "bye"))
	assert.Equal(t, []uuid.UUID{alexID}, f.conns.kicked)

	f.eng.HandleRelay(relay.Kick("Nobody", "bye"))
	assert.Len(t, f.conns.kicked, 1)
}

func TestSchedule(t *testing.T) {
	sched := &fakeScheduler{}
	f := newFixture(t, func(d *Deps, _ *Config) { d.Scheduler = sched })
	ctx := context.Background()
	at := f.now.Add(30 * time.Minute)

	r := req("Steve")
	r.Duration = 600
	sp, err := f.eng.Schedule(ctx, domain.TypeTempMute, r, at)
	require.NoError(t, err)
	require.Len(t, sched.entries, 1)
	assert.Equal(t, steveID, sp.TargetUUID)
	assert.Equal(t, domain.Millis(at), sp.ExecutionTime)
	assert.Equal(t, int64(600), sp.DurationSeconds)
	assert.Empty(t, f.db.Rows(domain.TableMutes), "nothing applied yet")

	_, err = f.eng.Schedule(ctx, domain.TypeBan, req("Steve"), f.now.Add(-time.Second))
	assert.ErrorIs(t, err, domain.ErrValidationFailed)

	r.Duration = 7200
	_, err = f.eng.Schedule(ctx, domain.TypeTempMute, r, at)
	assert.ErrorIs(t, err, domain.ErrDurationTooLong)

	p, err := f.eng.ApplyScheduled(ctx, *sp)
	require.NoError(t, err)
	assert.Equal(t, domain.TypeTempMute, p.Type)
	assert.Equal(t, "Mod", p.StaffName)
	assert.Equal(t, p.CreatedAt+600_000, p.ExpiresAt)
}

type countingEscalator struct {
	mu   sync.Mutex
	seen []string
}

func (c *countingEscalator) OnPunishmentApplied(_ context.Context, p domain.Punishment) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, p.PublicID)
	return nil
}

func TestApplyScheduled_EscalatedIsDerivative(t *testing.T) {
	tests := []struct {
		name         string
		level        int
		wantBans     int
		wantEscalate int
	}{
		{"manual schedule cascades and escalates", 0, 2, 1},
		{"escalated entry does neither", 3, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			esc := &countingEscalator{}
			f := newFixture(t, func(d *Deps, c *Config) {
				c.AltCascade = true
				d.Alts = fakeAlts{steveID: {altID}}
				d.Escalation = esc
			})
			sp := domain.ScheduledPunishment{
				Type:            domain.TypeTempBan,
				TargetUUID:      steveID,
				TargetName:      "Steve",
				TargetIP:        "10.0.0.1",
				Reason:          "spam",
				StaffName:       domain.ConsoleName,
				Silent:          true,
				ExecutionTime:   domain.Millis(f.now),
				DurationSeconds: 3600,
				EscalationLevel: tt.level,
			}

			_, err := f.eng.ApplyScheduled(context.Background(), sp)
			require.NoError(t, err)
			assert.Len(t, f.db.Rows(domain.TableBans), tt.wantBans)
			assert.Len(t, esc.seen, tt.wantEscalate)
		})
	}
}

func TestApply_DurationOutOfRange(t *testing.T) {
	admin := domain.NewStaff(modID, "Admin", true)
	huge := int64(9_300_000_000_000_000)

	tests := []struct {
		name  string
		apply func(*Engine) func(context.Context, Request) (*domain.Punishment, error)
	}{
		{"tempban", func(e *Engine) func(context.Context, Request) (*domain.Punishment, error) { return e.TempBan }},
		{"tempmute", func(e *Engine) func(context.Context, Request) (*domain.Punishment, error) { return e.TempMute }},
		{"timed ipban", func(e *Engine) func(context.Context, Request) (*domain.Punishment, error) { return e.IPBan }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			r := req("Steve")
			r.Staff = admin
			r.Duration = huge

			_, err := tt.apply(f.eng)(context.Background(), r)
			require.ErrorIs(t, err, domain.ErrValidationFailed)
			assert.Empty(t, f.db.Rows(domain.TableBans))
			assert.Empty(t, f.db.Rows(domain.TableMutes))
			assert.Empty(t, f.db.Events())
		})
	}

	t.Run("longest representable duration", func(t *testing.T) {
		f := newFixture(t)
		r := req("Steve")
		r.Staff = admin
		r.Duration = domain.MaxDurationFrom(domain.Millis(f.now))

		p, err := f.eng.TempBan(context.Background(), r)
		require.NoError(t, err)
		assert.False(t, p.IsPermanent())
		assert.Positive(t, p.ExpiresAt)
	})

	t.Run("schedule", func(t *testing.T) {
		sched := &fakeScheduler{}
		f := newFixture(t, func(d *Deps, _ *Config) { d.Scheduler = sched })
		r := req("Steve")
		r.Staff = admin
		r.Duration = huge

		_, err := f.eng.Schedule(context.Background(), domain.TypeTempBan, r, f.now.Add(time.Minute))
		require.ErrorIs(t, err, domain.ErrValidationFailed)
		assert.Empty(t, sched.entries)
	})
}

func TestSchedule_Disabled(t *testing.T) {
	f := newFixture(t)

	_, err := f.eng.Schedule(context.Background(), domain.TypeBan, req("Steve"), f.now.Add(time.Minute))
	assert.Error(t, err)
}

func TestAppeals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.eng.Ban(ctx, req("Steve"))
	require.NoError(t, err)

	_, err = f.eng.SubmitAppeal(ctx, p.PublicID, alexID, "not mine")
	assert.ErrorIs(t, err, domain.ErrMissing)

	_, err = f.eng.SubmitAppeal(ctx, p.PublicID, steveID, "   ")
	assert.ErrorIs(t, err, domain.ErrValidationFailed)

	a, err := f.eng.SubmitAppeal(ctx, p.PublicID, steveID, "I was lagging")
	require.NoError(t, err)
	assert.Equal(t, domain.AppealPending, a.Status)

	pending, err := f.eng.ListPendingAppeals(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	resolved, err := f.eng.ResolveAppeal(ctx, a.ID, true, mod)
	require.NoError(t, err)
	assert.Equal(t, domain.AppealAccepted, resolved.Status)

	ban, err := f.eng.GetActiveBan(ctx, steveID)
	require.NoError(t, err)
	assert.Nil(t, ban, "accepted appeal lifts the ban")

	_, err = f.eng.ResolveAppeal(ctx, a.ID, false, mod)
	assert.ErrorIs(t, err, domain.ErrMissing)

	_, err = f.eng.SubmitAppeal(ctx, p.PublicID, steveID, "again")
	assert.ErrorIs(t, err, domain.ErrValidationFailed, "punishment no longer in effect")

	var types []domain.EventType
	for _, e := range f.db.Events() {
		types = append(types, e.EventType)
	}
	assert.Equal(t, []domain.EventType{
		domain.EventPunishmentApplied,
		domain.EventAppealSubmitted,
		domain.EventAppealResolved,
		domain.EventPunishmentRevoked,
	}, types)
}

func TestAppeals_Denied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.eng.Mute(ctx, req("Steve"))
	require.NoError(t, err)
	a, err := f.eng.SubmitAppeal(ctx, p.PublicID, steveID, "please")
	require.NoError(t, err)

	resolved, err := f.eng.ResolveAppeal(ctx, a.ID, false, mod)
	require.NoError(t, err)
	assert.Equal(t, domain.AppealDenied, resolved.Status)

	mute, err := f.eng.GetActiveMute(ctx, steveID)
	require.NoError(t, err)
	assert.NotNil(t, mute)
}
