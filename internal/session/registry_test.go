package session

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLink struct {
	kicked  []string
	frames  [][]byte
	sendErr error
}

func (l *fakeLink) Disconnect(message string) error {
	l.kicked = append(l.kicked, message)
	return nil
}

func (l *fakeLink) SendPluginMessage(frame []byte) error {
	if l.sendErr != nil {
		return l.sendErr
	}
	l.frames = append(l.frames, frame)
	return nil
}

func newRegistry(cb func()) *Registry {
	return NewRegistry(cb, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegistry_JoinLookupLeave(t *testing.T) {
	r := newRegistry(nil)
	id := uuid.New()

	online, _ := r.Lookup(id)
	assert.False(t, online)

	r.Join(Session{UUID: id, Name: "Steve", IP: "10.0.0.1", Exempt: true, Link: &fakeLink{}})
	online, exempt := r.Lookup(id)
	assert.True(t, online)
	assert.True(t, exempt)
	assert.Equal(t, 1, r.Count())
	ip, ok := r.Address(id)
	assert.True(t, ok)
	assert.Equal(t, "10.0.0.1", ip)

	require.True(t, r.SetExempt(id, false))
	_, exempt = r.Lookup(id)
	assert.False(t, exempt)

	r.Leave(id)
	online, _ = r.Lookup(id)
	assert.False(t, online)
	_, ok = r.Address(id)
	assert.False(t, ok)
	assert.False(t, r.SetExempt(id, true))
}

func TestRegistry_JoinTriggersCallback(t *testing.T) {
	calls := 0
	r := newRegistry(func() { calls++ })
	r.Join(Session{UUID: uuid.New(), Link: &fakeLink{}})
	r.Join(Session{UUID: uuid.New(), Link: &fakeLink{}})
	assert.Equal(t, 2, calls)
}

func TestRegistry_Kick(t *testing.T) {
	r := newRegistry(nil)
	id := uuid.New()
	link := &fakeLink{}
	r.Join(Session{UUID: id, Name: "Steve", Link: link})

	assert.True(t, r.Kick(id, "Banned"))
	assert.Equal(t, []string{"Banned"}, link.kicked)
	assert.Equal(t, 0, r.Count())
	assert.False(t, r.Kick(id, "again"))
}

func TestRegistry_CarriersInJoinOrder(t *testing.T) {
	r := newRegistry(nil)
	first, second := &fakeLink{}, &fakeLink{sendErr: errors.New("closed")}
	r.Join(Session{UUID: uuid.New(), Name: "a", Link: first})
	r.Join(Session{UUID: uuid.New(), Name: "b", Link: second})

	cs := r.Carriers()
	require.Len(t, cs, 2)
	require.NoError(t, cs[0].Relay([]byte{0, 0}))
	assert.Len(t, first.frames, 1)
	assert.Error(t, cs[1].Relay([]byte{0, 0}))
}

func TestRegistry_Shutdown(t *testing.T) {
	r := newRegistry(nil)
	a, b := &fakeLink{}, &fakeLink{}
	r.Join(Session{UUID: uuid.New(), Link: a})
	r.Join(Session{UUID: uuid.New(), Link: b})

	r.Shutdown("restarting")
	assert.Equal(t, 0, r.Count())
	assert.Equal(t, []string{"restarting"}, a.kicked)
	assert.Equal(t, []string{"restarting"}, b.kicked)
}
