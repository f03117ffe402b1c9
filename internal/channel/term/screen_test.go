package term

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"nudge/internal/channel"
	"nudge/internal/templates"
	logx "nudge/pkg/logx"
)

type recorder struct {
	dismissed []string
	actions   []string
}

func (r *recorder) Dismiss(id string)          { r.dismissed = append(r.dismissed, id) }
func (r *recorder) Action(id, actionID string) { r.actions = append(r.actions, id+":"+actionID) }

func mountAll(t *testing.T, s *Screen, in channel.Interactions, cs ...channel.Content) []channel.Mounted {
	t.Helper()
	d := channel.NewDispatcher(logx.Nop())
	require.NoError(t, s.Register(d))
	out := make([]channel.Mounted, 0, len(cs))
	for _, c := range cs {
		m, err := d.Render(c, in)
		require.NoError(t, err)
		out = append(out, m)
	}
	return out
}

func TestViewPlacesEachSurface(t *testing.T) {
	s := NewScreen(Options{Width: 100})
	rec := &recorder{}
	mountAll(t, s, rec,
		channel.Content{ID: "b1", Level: templates.LevelBanner, Title: "Offline", Position: "top-right"},
		channel.Content{ID: "t1", Level: templates.LevelToast, Title: "Partner joined", Position: "bottom-left"},
		channel.Content{ID: "p1", Level: templates.LevelPopup, Title: "Achievement", Actions: []templates.Action{{ID: "view", Label: "View", Primary: true}}},
		channel.Content{ID: "i1", Level: templates.LevelInline, Title: "Saved"},
	)

	view := s.View()
	for _, want := range []string{"Offline", "Partner joined", "Achievement", "[View]", "Saved", "── main ──"} {
		require.Contains(t, view, want)
	}
	require.Less(t, strings.Index(view, "Offline"), strings.Index(view, "Achievement"))
	require.Less(t, strings.Index(view, "Achievement"), strings.Index(view, "Partner joined"))
}

func TestModalBlocksOtherInput(t *testing.T) {
	s := NewScreen(Options{})
	rec := &recorder{}
	mountAll(t, s, rec,
		channel.Content{ID: "p1", Level: templates.LevelPopup, Title: "popup"},
		channel.Content{ID: "m1", Level: templates.LevelModal, Title: "confirm"},
	)

	require.ErrorIs(t, s.Close("p1"), ErrBlocked)
	require.Equal(t, 1, s.ClickOutside())
	require.Equal(t, []string{"m1"}, rec.dismissed)

	require.True(t, s.Escape())
	require.Equal(t, []string{"m1", "m1"}, rec.dismissed)
	require.Contains(t, s.View(), "input blocked")
}

func TestClickOutsideDismissesPopups(t *testing.T) {
	s := NewScreen(Options{})
	rec := &recorder{}
	mountAll(t, s, rec,
		channel.Content{ID: "p1", Level: templates.LevelPopup},
		channel.Content{ID: "t1", Level: templates.LevelToast},
		channel.Content{ID: "p2", Level: templates.LevelPopup},
	)
	require.Equal(t, 2, s.ClickOutside())
	require.Equal(t, []string{"p1", "p2"}, rec.dismissed)
	require.False(t, s.Escape())
}

func TestPressRoutesActions(t *testing.T) {
	s := NewScreen(Options{})
	rec := &recorder{}
	actions := []templates.Action{{ID: "share", Label: "Share"}}
	mountAll(t, s, rec,
		channel.Content{ID: "abcdef1234", Level: templates.LevelPopup, Actions: actions},
		channel.Content{ID: "t1", Level: templates.LevelToast, Actions: actions},
	)

	require.NoError(t, s.Input("action", "abcdef", "share"))
	require.Equal(t, []string{"abcdef1234:share"}, rec.actions)
	require.ErrorIs(t, s.Press("abcdef1234", "nope"), ErrUnknownAction)
	require.ErrorIs(t, s.Press("t1", "share"), ErrNoActions)
	require.ErrorIs(t, s.Close("missing"), ErrUnknownID)

	require.NoError(t, s.Input("close", "t1"))
	require.Equal(t, []string{"t1"}, rec.dismissed)
}

func TestUnmountRedraws(t *testing.T) {
	var out bytes.Buffer
	s := NewScreen(Options{Out: &out})
	ms := mountAll(t, s, &recorder{}, channel.Content{ID: "x", Level: templates.LevelToast, Title: "hello"})
	require.Contains(t, out.String(), "hello")

	d := channel.NewDispatcher(logx.Nop())
	require.NoError(t, s.Register(d))
	require.NoError(t, d.Unmount(ms[0]))
	require.Empty(t, s.Mounted())
	require.Error(t, d.Unmount(ms[0]))
	require.Empty(t, s.View())
}

func TestSurfaceRejectsWrongLevel(t *testing.T) {
	s := NewScreen(Options{})
	sf := &surface{screen: s, level: templates.LevelToast}
	_, err := sf.Mount(channel.Content{ID: "x", Level: templates.LevelModal}, &recorder{})
	require.Error(t, err)
}
