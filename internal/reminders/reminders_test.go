package reminders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nudge/internal/config"
	"nudge/internal/engine"
	"nudge/internal/templates"
	logx "nudge/pkg/logx"
)

type fakeShower struct {
	mu    sync.Mutex
	calls []templates.Type
	msgs  []string
	err   error
}

func (f *fakeShower) Show(typ templates.Type, c engine.Content, _ ...engine.Option) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, typ)
	f.msgs = append(f.msgs, c.Message)
	if f.err != nil {
		return "", f.err
	}
	return "id", nil
}

func (f *fakeShower) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(config.RemindersConfig{Jobs: []config.ReminderJob{
		{Name: "a", Spec: "0 9 * * *"},
		{Name: "b", Spec: "*/5 * * * * *"},
		{Name: "c", Spec: "@every 30m"},
	}}))
	require.Error(t, Validate(config.RemindersConfig{Jobs: []config.ReminderJob{{Name: "bad", Spec: "every day"}}}))
	require.Error(t, Validate(config.RemindersConfig{Timezone: "Mars/Olympus"}))
}

func TestRunNowAndCounters(t *testing.T) {
	sh := &fakeShower{}
	s, err := New(config.RemindersConfig{Jobs: []config.ReminderJob{
		{Name: "daily", Spec: "@daily", Type: "daily_reminder", Message: "log it"},
		{Name: "off", Spec: "@daily", Type: "DAILY_REMINDER", Disabled: true},
	}}, sh, logx.Nop())
	require.NoError(t, err)

	require.NoError(t, s.RunNow("daily"))
	require.ErrorIs(t, s.RunNow("off"), ErrUnknownJob)
	require.Equal(t, []templates.Type{templates.DailyReminder}, sh.calls)
	require.Equal(t, []string{"log it"}, sh.msgs)

	sh.err = engine.ErrDisabled
	require.NoError(t, s.RunNow("daily"))
	sh.err = errors.New("boom")
	require.NoError(t, s.RunNow("daily"))
	fired, failed := s.Counters()
	require.Equal(t, uint64(1), fired)
	require.Equal(t, uint64(1), failed)
}

func TestCronFires(t *testing.T) {
	sh := &fakeShower{}
	s, err := New(config.RemindersConfig{Enabled: true, Timezone: "UTC", Jobs: []config.ReminderJob{
		{Name: "tick", Spec: "@every 1s", Type: "NETWORK_ONLINE"},
	}}, sh, logx.Nop())
	require.NoError(t, err)

	s.Start(context.Background())
	defer s.Stop(context.Background())

	entries := s.Entries()
	require.Len(t, entries, 1)
	require.False(t, entries[0].Next.IsZero())

	require.Eventually(t, func() bool { return sh.count() > 0 }, 3*time.Second, 50*time.Millisecond)
}

func TestDisabledStartsNothing(t *testing.T) {
	sh := &fakeShower{}
	s, err := New(config.RemindersConfig{Jobs: []config.ReminderJob{{Name: "tick", Spec: "@every 1s", Type: "NETWORK_ONLINE"}}}, sh, logx.Nop())
	require.NoError(t, err)
	s.Start(context.Background())
	defer s.Stop(context.Background())
	require.True(t, s.Entries()[0].Next.IsZero())

	require.NoError(t, s.Apply(config.RemindersConfig{Enabled: true, Jobs: []config.ReminderJob{{Name: "tick", Spec: "@every 1s", Type: "NETWORK_ONLINE"}}}))
	require.False(t, s.Entries()[0].Next.IsZero())
	require.Error(t, s.Apply(config.RemindersConfig{Jobs: []config.ReminderJob{{Name: "x", Spec: "nope"}}}))
}
