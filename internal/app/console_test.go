package app

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nudge/internal/channel"
	"nudge/internal/channel/term"
	"nudge/internal/engine"
	"nudge/internal/runtime/clock"
	"nudge/internal/storage"
	"nudge/internal/templates"
	logx "nudge/pkg/logx"
)

type consoleHarness struct {
	c      *Console
	eng    *engine.Engine
	screen *term.Screen
	clk    *clock.Fake
	out    *bytes.Buffer
}

func newConsoleHarness(t *testing.T) *consoleHarness {
	t.Helper()
	reg, err := templates.NewRegistry(nil)
	require.NoError(t, err)
	screen := term.NewScreen(term.Options{Width: 60})
	d := channel.NewDispatcher(logx.Nop())
	require.NoError(t, screen.Register(d))

	n := 0
	clk := clock.NewFake(time.Time{})
	eng, err := engine.New(engine.Options{
		Registry: reg,
		Renderer: d,
		Clock:    clk,
		NewID: func() string {
			n++
			return fmt.Sprintf("n%d", n)
		},
	})
	require.NoError(t, err)
	require.NoError(t, eng.Start(context.Background()))
	t.Cleanup(func() { _ = eng.Shutdown(context.Background()) })

	out := &bytes.Buffer{}
	return &consoleHarness{
		c:      &Console{Engine: eng, Screen: screen, Out: out, Log: logx.Nop()},
		eng:    eng,
		screen: screen,
		clk:    clk,
		out:    out,
	}
}

// exec runs one command and then lets the engine's drain tick fire.
func (h *consoleHarness) exec(t *testing.T, line string) string {
	t.Helper()
	h.out.Reset()
	require.NoError(t, h.c.Exec(context.Background(), line))
	h.clk.Advance(0)
	return h.out.String()
}

func TestParseShowArgs(t *testing.T) {
	content, opts, err := parseShowArgs([]string{"level=modal", "priority=5", "persistent", "count=3", "title=Hi", "you", "did", "it"})
	require.NoError(t, err)
	require.Len(t, opts, 3)
	require.Equal(t, "Hi", content.Title)
	require.Equal(t, "you did it", content.Message)
	require.Equal(t, map[string]string{"count": "3"}, content.Vars)

	_, _, err = parseShowArgs([]string{"level=sidebar"})
	require.Error(t, err)
	_, _, err = parseShowArgs([]string{"duration=soon"})
	require.Error(t, err)
}

func TestParseSettingsPatch(t *testing.T) {
	p, err := parseSettingsPatch([]string{"max=1", "sound=false", "position=bottom-left", "disable=room_full", "enable=SYNC_FAILED"})
	require.NoError(t, err)
	require.Equal(t, 1, *p.MaxConcurrent)
	require.False(t, *p.EnableSound)
	require.Equal(t, "bottom-left", *p.Position)
	require.Equal(t, map[templates.Type]bool{templates.RoomFull: true, templates.SyncFailed: false}, p.DisabledTypes)

	for _, bad := range [][]string{nil, {"max=lots"}, {"sound=maybe"}, {"colour=red"}, {"max"}} {
		_, err := parseSettingsPatch(bad)
		require.Error(t, err, "%v", bad)
	}
}

func TestConsoleShowCloseAndAction(t *testing.T) {
	h := newConsoleHarness(t)

	require.Equal(t, "queued n1\n", h.exec(t, "show ACHIEVEMENT_UNLOCKED First flush"))
	require.Equal(t, 1, h.eng.Stats().Active)
	require.Contains(t, h.exec(t, "view"), "First flush")

	mounted := h.screen.Mounted()
	require.Len(t, mounted, 1)
	require.Equal(t, templates.LevelPopup, mounted[0].Level)

	h.exec(t, "click-outside")
	require.Zero(t, h.eng.Stats().Active)

	h.exec(t, "show ROOM_FULL level=popup persistent")
	require.Equal(t, 1, h.eng.Stats().Active)
	h.exec(t, "close n2")
	require.Zero(t, h.eng.Stats().Active)

	require.Error(t, h.c.Exec(context.Background(), "close n2"))
	require.Error(t, h.c.Exec(context.Background(), "action n9 ok"))
}

func TestConsoleSetAndStats(t *testing.T) {
	h := newConsoleHarness(t)

	out := h.exec(t, "set max=1 enabled=true")
	require.Contains(t, out, `"max_concurrent": 1`)

	h.exec(t, "show POOP_ADDED persistent one")
	h.exec(t, "show POOP_ADDED persistent two")
	st := h.eng.Stats()
	require.Equal(t, 1, st.Active)
	require.Equal(t, 1, st.Queued)

	require.Contains(t, h.exec(t, "stats"), `"queued": 1`)
	require.Equal(t, "cancelled\n", h.exec(t, "cancel n2"))
	require.Equal(t, "closed 1\n", h.exec(t, "closeall"))

	h.exec(t, "set disable=POOP_ADDED")
	err := h.c.Exec(context.Background(), "show POOP_ADDED three")
	require.ErrorIs(t, err, engine.ErrTypeDisabled)
}

func TestConsoleErrorsAndQuit(t *testing.T) {
	h := newConsoleHarness(t)
	ctx := context.Background()

	require.Error(t, h.c.Exec(ctx, "dance"))
	require.Error(t, h.c.Exec(ctx, "show"))
	require.ErrorIs(t, h.c.Exec(ctx, "history"), storage.ErrDisabled)
	require.Error(t, h.c.Exec(ctx, "remind daily"))
	require.ErrorIs(t, h.c.Exec(ctx, "quit"), errQuit)
	require.NoError(t, h.c.Exec(ctx, "   "))
}

func TestConsoleRun(t *testing.T) {
	h := newConsoleHarness(t)
	in := strings.NewReader("show NETWORK_ONLINE\nbogus\nquit\nshow NETWORK_OFFLINE\n")
	require.True(t, h.c.Run(context.Background(), in))
	require.Contains(t, h.out.String(), "queued n1")
	require.Contains(t, h.out.String(), "error: unknown command")
	require.NotContains(t, h.out.String(), "queued n2")
}

func TestConsoleHistory(t *testing.T) {
	h := newConsoleHarness(t)
	st, err := storage.Open(storage.Config{Driver: "file", Path: t.TempDir() + "/store"}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	h.c.Store = st

	at := time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)
	require.NoError(t, st.AppendHistory(context.Background(), historyEntry(at, engine.Released{
		ID: "abcdef123456", Type: templates.RoomClosed, Level: templates.LevelToast,
		Cause: engine.CauseExpired, ActiveFor: 1500 * time.Millisecond,
	})))
	out := h.exec(t, "history 5")
	require.Contains(t, out, "abcdef12")
	require.Contains(t, out, "ROOM_CLOSED")
	require.Contains(t, out, "1500ms")
}
