package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"nudge/internal/templates"
)

func TestSettingsValidate(t *testing.T) {
	s, err := Settings{MaxConcurrent: 2}.Validate()
	require.NoError(t, err)
	require.Equal(t, templates.LevelToast, s.DefaultLevel)
	require.Equal(t, "top-right", s.Position)
	require.Equal(t, "auto", s.Theme)
	require.Equal(t, "en", s.Language)

	for _, bad := range []Settings{
		{MaxConcurrent: 0},
		{MaxConcurrent: 1, Position: "middle"},
		{MaxConcurrent: 1, Theme: "neon"},
		{MaxConcurrent: 1, DefaultLevel: "sidebar"},
	} {
		_, err := bad.Validate()
		require.ErrorIs(t, err, ErrInvalidSettings)
	}
}

func TestSettingsPatchAndDiff(t *testing.T) {
	base := DefaultSettings()
	limit := 7
	dark := "dark"
	next := base.Apply(SettingsPatch{
		MaxConcurrent: &limit,
		Theme:         &dark,
		DisabledTypes: map[templates.Type]bool{templates.PoopAdded: true},
	})
	require.Equal(t, 7, next.MaxConcurrent)
	require.False(t, next.TypeEnabled(templates.PoopAdded))
	require.True(t, base.TypeEnabled(templates.PoopAdded))

	d := base.Diff(next)
	require.False(t, d.Empty())
	require.Equal(t, next, base.Apply(d))
	require.True(t, next.Diff(next).Empty())

	back := next.Apply(next.Diff(base))
	require.True(t, back.TypeEnabled(templates.PoopAdded))
	require.Empty(t, back.DisabledTypes)
}
