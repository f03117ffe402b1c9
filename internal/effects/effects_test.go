package effects

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nudge/internal/runtime/clock"
	"nudge/internal/runtime/supervisor"
)

type fakePlayer struct {
	mu     sync.Mutex
	played []string
	err    error
	panics bool
}

func (p *fakePlayer) Play(_ context.Context, id string) error {
	if p.panics {
		panic("speaker on fire")
	}
	p.mu.Lock()
	p.played = append(p.played, id)
	p.mu.Unlock()
	return p.err
}

func (p *fakePlayer) snapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...)
}

type fakeHaptics struct {
	mu       sync.Mutex
	patterns [][]time.Duration
}

func (h *fakeHaptics) Vibrate(_ context.Context, p []time.Duration) error {
	h.mu.Lock()
	h.patterns = append(h.patterns, p)
	h.mu.Unlock()
	return nil
}

type announcements struct{ got []string }

func (a *announcements) Announce(text string) { a.got = append(a.got, text) }

func waitAll(t *testing.T, sup *supervisor.Supervisor) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, sup.Wait(ctx))
}

func TestFireRespectsGates(t *testing.T) {
	sup := supervisor.New(context.Background())
	player, haptics, ann := &fakePlayer{}, &fakeHaptics{}, &announcements{}
	tr := New(Config{}, Options{Player: player, Haptics: haptics, Announcer: ann, Sup: sup})

	pattern := []time.Duration{100 * time.Millisecond, 50 * time.Millisecond}
	tr.Fire(Effect{ID: "1", Message: "muted", SoundID: "chime", Vibration: pattern})
	tr.Fire(Effect{ID: "2", Message: "loud", SoundID: "chime", Vibration: pattern, Sound: true, Vibrate: true})
	tr.Fire(Effect{ID: "3", Title: "title only", Sound: true, Vibrate: true})
	waitAll(t, sup)

	require.Equal(t, []string{"chime"}, player.snapshot())
	require.Len(t, haptics.patterns, 1)
	require.Equal(t, []string{"muted", "loud", "title only"}, ann.got)
	require.Equal(t, uint64(2), tr.Counters().Fired)
}

func TestFailuresAreSwallowed(t *testing.T) {
	sup := supervisor.New(context.Background())
	tr := New(Config{}, Options{Player: &fakePlayer{err: errors.New("no device")}, Sup: sup})
	tr.Fire(Effect{ID: "1", SoundID: "a", Sound: true})

	tr2 := New(Config{}, Options{Player: &fakePlayer{panics: true}, Sup: sup})
	tr2.Fire(Effect{ID: "2", SoundID: "a", Sound: true})
	waitAll(t, sup)

	require.Equal(t, uint64(1), tr.Counters().Failed)
	require.Equal(t, uint64(1), tr2.Counters().Failed)
	require.Zero(t, sup.Counters().Panics)
}

func TestRateLimitSkipsBursts(t *testing.T) {
	sup := supervisor.New(context.Background())
	player := &fakePlayer{}
	var skipped []string
	tr := New(Config{RatePerSec: 0.001, Burst: 1}, Options{
		Player:    player,
		Sup:       sup,
		OnSkipped: func(kind string) { skipped = append(skipped, kind) },
	})
	for i := 0; i < 3; i++ {
		tr.Fire(Effect{SoundID: "ding", Sound: true})
	}
	waitAll(t, sup)

	require.Len(t, player.snapshot(), 1)
	require.Equal(t, []string{KindSound, KindSound}, skipped)
	require.Equal(t, uint64(2), tr.Counters().Skipped)

	tr.Apply(Config{})
	tr.Fire(Effect{SoundID: "ding", Sound: true})
	waitAll(t, sup)
	require.Len(t, player.snapshot(), 2)
}

func TestLiveRegionExpiresAfterTTL(t *testing.T) {
	clk := clock.NewFake(time.Time{})
	var changes int
	live := NewLiveRegion(clk, 0, func([]string) { changes++ })

	live.Announce("first")
	clk.Advance(500 * time.Millisecond)
	live.Announce("second")
	require.Equal(t, []string{"first", "second"}, live.Current())

	clk.Advance(500 * time.Millisecond)
	require.Equal(t, []string{"second"}, live.Current())
	clk.Advance(500 * time.Millisecond)
	require.Empty(t, live.Current())
	require.Equal(t, 4, changes)
}

func TestBellPlayerWritesBell(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewBellPlayer(&buf).Play(context.Background(), "x"))
	require.Equal(t, "\a", buf.String())

	var nilPlayer *BellPlayer
	require.ErrorIs(t, nilPlayer.Play(context.Background(), "x"), ErrNoHost)
}
