package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nudge/internal/channel"
	"nudge/internal/device"
	"nudge/internal/effects"
	"nudge/internal/eventbus"
	"nudge/internal/runtime/clock"
	"nudge/internal/templates"
)

type fakeRenderer struct {
	mu        sync.Mutex
	seq       int
	order     []string
	mounted   map[string]channel.Content
	ins       map[string]channel.Interactions
	unmounted []channel.Handle
	fail      map[templates.Level]bool
	// onMount runs inside Render, after the content is recorded.
	onMount func(c channel.Content, in channel.Interactions)
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{
		mounted: map[string]channel.Content{},
		ins:     map[string]channel.Interactions{},
		fail:    map[templates.Level]bool{},
	}
}

func (r *fakeRenderer) Render(c channel.Content, in channel.Interactions) (channel.Mounted, error) {
	r.mu.Lock()
	if r.fail[c.Level] {
		r.mu.Unlock()
		return channel.Mounted{}, fmt.Errorf("%w: %s", channel.ErrRenderFailure, c.Level)
	}
	r.seq++
	r.order = append(r.order, c.ID)
	r.mounted[c.ID] = c
	r.ins[c.ID] = in
	hook := r.onMount
	r.mu.Unlock()
	if hook != nil {
		hook(c, in)
	}
	return channel.Mounted{Level: c.Level, Handle: channel.Handle(c.ID)}, nil
}

func (r *fakeRenderer) Unmount(m channel.Mounted) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.mounted[string(m.Handle)]; !ok {
		return channel.ErrUnknownHandle
	}
	delete(r.mounted, string(m.Handle))
	r.unmounted = append(r.unmounted, m.Handle)
	return nil
}

func (r *fakeRenderer) content(id string) (channel.Content, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.mounted[id]
	return c, ok
}

func (r *fakeRenderer) interactions(id string) channel.Interactions {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ins[id]
}

func (r *fakeRenderer) mountOrder() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

type fakeEffects struct {
	mu    sync.Mutex
	fired []effects.Effect
}

func (f *fakeEffects) Fire(e effects.Effect) {
	f.mu.Lock()
	f.fired = append(f.fired, e)
	f.mu.Unlock()
}

type memStore struct {
	mu     sync.Mutex
	loaded *Settings
	saved  []Settings
}

func (m *memStore) LoadSettings(context.Context) (*Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded, nil
}

func (m *memStore) SaveSettings(_ context.Context, s Settings) error {
	m.mu.Lock()
	m.saved = append(m.saved, s)
	m.mu.Unlock()
	return nil
}

type harness struct {
	e      *Engine
	r      *fakeRenderer
	clk    *clock.Fake
	fx     *fakeEffects
	events <-chan eventbus.Event
	seen   []eventbus.Event
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	reg, err := templates.NewRegistry(nil)
	require.NoError(t, err)

	h := &harness{r: newFakeRenderer(), clk: clock.NewFake(time.Time{}), fx: &fakeEffects{}}
	n := 0
	opts := Options{
		Registry:     reg,
		Renderer:     h.r,
		Effects:      h.fx,
		Clock:        h.clk,
		Capabilities: device.Capabilities{HasAudio: true, HasVibration: true},
		NewID: func() string {
			n++
			return fmt.Sprintf("n%d", n)
		},
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.e, err = New(opts)
	require.NoError(t, err)

	ch, unsub := h.e.Subscribe(1024)
	t.Cleanup(unsub)
	h.events = ch
	require.NoError(t, h.e.Start(context.Background()))
	return h
}

func (h *harness) show(t *testing.T, typ templates.Type, msg string, opts ...Option) string {
	t.Helper()
	id, err := h.e.Show(typ, Content{Message: msg}, opts...)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	return id
}

// tick fires the pending drain tick and anything it re-arms.
func (h *harness) tick() { h.clk.Advance(0) }

// collect drains pending events into h.seen.
func (h *harness) collect() []eventbus.Event {
	for {
		select {
		case ev := <-h.events:
			h.seen = append(h.seen, ev)
		default:
			return h.seen
		}
	}
}

func (h *harness) released() []Released {
	var out []Released
	for _, ev := range h.collect() {
		if r, ok := ev.Data.(Released); ok {
			out = append(out, r)
		}
	}
	return out
}

func (h *harness) releasedFor(id string) []Released {
	var out []Released
	for _, r := range h.released() {
		if r.ID == id {
			out = append(out, r)
		}
	}
	return out
}

func activeIDs(e *Engine) []string {
	var ids []string
	for _, r := range e.Active() {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestAchievementPopupScenario(t *testing.T) {
	h := newHarness(t, nil)

	for i := 0; i < 5; i++ {
		id, err := h.e.Show(templates.AchievementUnlocked, Content{Vars: map[string]string{"achievement": fmt.Sprintf("badge %d", i)}})
		require.NoError(t, err)
		require.NotEmpty(t, id)
	}
	require.Zero(t, h.e.Stats().Active)
	h.tick()
	st := h.e.Stats()
	require.Equal(t, 3, st.Active)
	require.Equal(t, 2, st.Queued)

	c, ok := h.r.content("n1")
	require.True(t, ok)
	require.Equal(t, templates.LevelPopup, c.Level)
	require.Equal(t, 5*time.Second, c.Duration)
	require.Equal(t, "You earned badge 0", c.Message)

	h.clk.Advance(5 * time.Second)
	st = h.e.Stats()
	require.Equal(t, 2, st.Active)
	require.Zero(t, st.Queued)

	h.clk.Advance(5 * time.Second)
	require.Zero(t, h.e.Stats().Active)

	rel := h.released()
	require.Len(t, rel, 5)
	for _, r := range rel {
		require.Equal(t, CauseExpired, r.Cause)
		require.Equal(t, 5*time.Second, r.ActiveFor)
	}
	require.Equal(t, []string{"n1", "n2", "n3", "n4", "n5"}, h.r.mountOrder())
}

func TestActiveNeverExceedsMax(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		s := DefaultSettings()
		s.MaxConcurrent = 2
		o.Settings = s
	})

	var ids []string
	for i := 0; i < 12; i++ {
		ids = append(ids, h.show(t, templates.SettingsSaved, fmt.Sprintf("m%d", i), WithPriority(1+i%5)))
		h.tick()
		require.LessOrEqual(t, h.e.Stats().Active, 2)
		if i%3 == 2 {
			h.e.Close(ids[i/2])
			h.tick()
		}
		if i%4 == 3 {
			h.clk.Advance(time.Second)
		}
		require.LessOrEqual(t, h.e.Stats().Active, 2)
	}
	h.clk.Advance(time.Minute)
	require.Zero(t, h.e.Stats().Active)
	require.Zero(t, h.e.Stats().Queued)

	active := 0
	for _, ev := range h.collect() {
		switch ev.Data.(type) {
		case Activated:
			active++
		case Released:
			active--
		}
		require.LessOrEqual(t, active, 2)
	}
}

func TestQueueOrderIsPriorityThenFIFO(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		s := DefaultSettings()
		s.MaxConcurrent = 1
		o.Settings = s
	})

	p2 := h.show(t, templates.SettingsSaved, "two", WithPriority(2), WithPersistent(true))
	p5a := h.show(t, templates.SettingsSaved, "five a", WithPriority(5), WithPersistent(true))
	p1 := h.show(t, templates.SettingsSaved, "one", WithPriority(1), WithPersistent(true))
	p5b := h.show(t, templates.SettingsSaved, "five b", WithPriority(5), WithPersistent(true))

	// Show returns before anything renders.
	require.Empty(t, h.r.mountOrder())
	require.Equal(t, 4, h.e.Stats().Queued)

	var order []string
	for i := 0; i < 4; i++ {
		h.tick()
		ids := activeIDs(h.e)
		require.Len(t, ids, 1)
		order = append(order, ids[0])
		require.True(t, h.e.Close(ids[0]))
	}
	h.tick()
	require.Equal(t, []string{p5a, p5b, p2, p1}, order)
	require.Equal(t, order, h.r.mountOrder())
	require.Zero(t, h.e.Stats().Active)
}

func TestDedupSupersedesQueuedDuplicate(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		s := DefaultSettings()
		s.MaxConcurrent = 1
		o.Settings = s
	})

	first := h.show(t, templates.PartnerJoined, "Ana joined", WithPersistent(true))
	second := h.show(t, templates.PartnerJoined, "Ana joined", WithPriority(5), WithPersistent(true))
	require.NotEqual(t, first, second)
	require.Equal(t, 1, h.e.Stats().Queued)

	h.tick()
	active := h.e.Active()
	require.Len(t, active, 1)
	require.Equal(t, second, active[0].ID)
	require.Equal(t, 5, active[0].Priority)
	require.Equal(t, []string{second}, h.r.mountOrder())
	require.False(t, h.e.Close(first))

	var sup []Superseded
	for _, ev := range h.collect() {
		if s, ok := ev.Data.(Superseded); ok {
			sup = append(sup, s)
		}
	}
	require.Equal(t, []Superseded{{ID: first, By: second, Type: templates.PartnerJoined}}, sup)

	// Outside the window both copies are kept.
	h.show(t, templates.PartnerJoined, "Ana joined")
	h.clk.Advance(11 * time.Second)
	h.show(t, templates.PartnerJoined, "Ana joined")
	require.Equal(t, 2, h.e.Stats().Queued)

	// A different type with the same message is not a duplicate.
	h.show(t, templates.PartnerLeft, "Ana joined")
	require.Equal(t, 3, h.e.Stats().Queued)
}

func TestBackToBackDuplicatesRenderOnce(t *testing.T) {
	h := newHarness(t, nil)
	a := h.show(t, templates.PartnerJoined, "same", WithPriority(1))
	b := h.show(t, templates.PartnerJoined, "same", WithPriority(4))
	h.tick()

	active := h.e.Active()
	require.Len(t, active, 1)
	require.Equal(t, b, active[0].ID)
	require.Equal(t, 4, active[0].Priority)
	require.Equal(t, []string{b}, h.r.mountOrder())
	require.False(t, h.e.Close(a))

	// Once the first copy is on screen a repeat is a new notification.
	c := h.show(t, templates.PartnerJoined, "same")
	h.tick()
	require.ElementsMatch(t, []string{b, c}, activeIDs(h.e))
}

func TestReleaseFreesCapacity(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		s := DefaultSettings()
		s.MaxConcurrent = 1
		o.Settings = s
	})
	a := h.show(t, templates.RoomClosed, "a")
	b := h.show(t, templates.RoomClosed, "b")
	h.tick()
	require.Equal(t, []string{a}, activeIDs(h.e))

	h.r.interactions(a).Dismiss(a)
	require.Empty(t, activeIDs(h.e))
	h.tick()
	require.Equal(t, []string{b}, activeIDs(h.e))
	require.Equal(t, []channel.Handle{channel.Handle(a)}, h.r.unmounted)
}

func TestPersistentNeverExpires(t *testing.T) {
	h := newHarness(t, nil)
	id := h.show(t, templates.NetworkOffline, "")
	h.tick()
	require.Zero(t, h.clk.Pending())

	h.clk.Advance(24 * time.Hour)
	require.Equal(t, []string{id}, activeIDs(h.e))
	require.Empty(t, h.released())
}

func TestAutoCloseOffMakesEverythingPersistent(t *testing.T) {
	h := newHarness(t, nil)
	off := false
	_, err := h.e.UpdateSettings(SettingsPatch{AutoClose: &off})
	require.NoError(t, err)

	id := h.show(t, templates.PartnerJoined, "x", WithDuration(time.Second))
	h.clk.Advance(time.Hour)
	require.Equal(t, []string{id}, activeIDs(h.e))
	c, _ := h.r.content(id)
	require.True(t, c.Persistent)
}

func TestCloseIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	id := h.show(t, templates.AchievementUnlocked, "x")
	h.tick()

	require.True(t, h.e.Close(id))
	require.False(t, h.e.Close(id))
	h.r.interactions(id).Dismiss(id)
	h.e.Invoke(id, "view")
	h.clk.Advance(time.Minute)
	require.False(t, h.e.Close("does-not-exist"))

	rel := h.releasedFor(id)
	require.Len(t, rel, 1)
	require.Equal(t, CauseClosed, rel[0].Cause)
}

func TestCloseCancelsQueued(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		s := DefaultSettings()
		s.MaxConcurrent = 1
		o.Settings = s
	})
	h.show(t, templates.NetworkOffline, "")
	h.tick()
	q1 := h.show(t, templates.SettingsSaved, "a")
	q2 := h.show(t, templates.SettingsSaved, "b")

	require.True(t, h.e.Close(q1))
	require.True(t, h.e.Cancel(q2))
	require.False(t, h.e.Cancel(q2))
	require.Zero(t, h.e.Stats().Queued)

	var cancelled []string
	for _, ev := range h.collect() {
		if c, ok := ev.Data.(Cancelled); ok {
			cancelled = append(cancelled, c.ID)
		}
	}
	require.Equal(t, []string{q1, q2}, cancelled)
	require.Empty(t, h.releasedFor(q1))
}

func TestCloseAll(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		s := DefaultSettings()
		s.MaxConcurrent = 2
		o.Settings = s
	})
	for i := 0; i < 5; i++ {
		h.show(t, templates.SettingsSaved, fmt.Sprintf("m%d", i))
	}
	h.tick()
	require.Equal(t, 2, h.e.Stats().Active)
	require.Equal(t, 5, h.e.CloseAll())
	st := h.e.Stats()
	require.Zero(t, st.Active)
	require.Zero(t, st.Queued)
	require.Len(t, h.released(), 2)
}

func TestAdmissionRejections(t *testing.T) {
	h := newHarness(t, nil)

	off := false
	_, err := h.e.UpdateSettings(SettingsPatch{Enabled: &off})
	require.NoError(t, err)
	id, err := h.e.Show(templates.AchievementUnlocked, Content{})
	require.Empty(t, id)
	require.ErrorIs(t, err, ErrDisabled)
	require.True(t, IsRejected(err))
	st := h.e.Stats()
	require.Zero(t, st.Active)
	require.Zero(t, st.Queued)

	on := true
	_, err = h.e.UpdateSettings(SettingsPatch{Enabled: &on, DisabledTypes: map[templates.Type]bool{templates.PoopAdded: true}})
	require.NoError(t, err)
	id, err = h.e.Show(templates.PoopAdded, Content{})
	require.Empty(t, id)
	require.ErrorIs(t, err, ErrTypeDisabled)

	id, err = h.e.Show(templates.Type("NOPE"), Content{})
	require.Empty(t, id)
	require.ErrorIs(t, err, templates.ErrTemplateNotFound)
	require.False(t, IsRejected(err))

	var reasons []string
	for _, ev := range h.collect() {
		if r, ok := ev.Data.(Rejected); ok {
			reasons = append(reasons, r.Reason)
		}
	}
	require.Equal(t, []string{"disabled", "type_disabled", "template_not_found"}, reasons)
	require.Zero(t, h.e.Stats().Active)
}

func TestRenderFailureReleasesSlot(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		s := DefaultSettings()
		s.MaxConcurrent = 1
		o.Settings = s
	})
	h.r.fail[templates.LevelModal] = true

	bad := h.show(t, templates.GenericError, "boom")
	good := h.show(t, templates.SettingsSaved, "ok")
	h.tick()

	rel := h.releasedFor(bad)
	require.Len(t, rel, 1)
	require.Equal(t, CauseRenderFailed, rel[0].Cause)
	require.Equal(t, []string{good}, activeIDs(h.e))
	require.Len(t, h.fx.fired, 1)
}

func TestDismissDuringMount(t *testing.T) {
	h := newHarness(t, nil)
	h.r.onMount = func(c channel.Content, in channel.Interactions) { in.Dismiss(c.ID) }

	id := h.show(t, templates.PartnerJoined, "quick")
	h.tick()
	require.Zero(t, h.e.Stats().Active)
	rel := h.releasedFor(id)
	require.Len(t, rel, 1)
	require.Equal(t, CauseClosed, rel[0].Cause)
	require.Equal(t, []channel.Handle{channel.Handle(id)}, h.r.unmounted)
	require.Zero(t, h.clk.Pending())
}

func TestActions(t *testing.T) {
	h := newHarness(t, nil)
	id := h.show(t, templates.AchievementUnlocked, "")
	h.tick()

	h.r.interactions(id).Action(id, "share")
	require.Equal(t, []string{id}, activeIDs(h.e))
	h.r.interactions(id).Action(id, "bogus")
	require.Equal(t, []string{id}, activeIDs(h.e))

	h.r.interactions(id).Action(id, "view")
	require.Empty(t, activeIDs(h.e))

	var invoked []ActionInvoked
	for _, ev := range h.collect() {
		if a, ok := ev.Data.(ActionInvoked); ok {
			invoked = append(invoked, a)
		}
	}
	require.Equal(t, []ActionInvoked{
		{ID: id, Type: templates.AchievementUnlocked, ActionID: "share", Closes: false},
		{ID: id, Type: templates.AchievementUnlocked, ActionID: "view", Closes: true},
	}, invoked)
	rel := h.releasedFor(id)
	require.Len(t, rel, 1)
	require.Equal(t, CauseAction, rel[0].Cause)
	require.Equal(t, "view", rel[0].ActionID)
}

func TestShrinkingMaxConcurrentEvicts(t *testing.T) {
	h := newHarness(t, nil)
	keep := h.show(t, templates.SettingsSaved, "a", WithPriority(3))
	older := h.show(t, templates.SettingsSaved, "b", WithPriority(1))
	newer := h.show(t, templates.SettingsSaved, "c", WithPriority(1))
	h.tick()
	require.Len(t, activeIDs(h.e), 3)

	one := 1
	_, err := h.e.UpdateSettings(SettingsPatch{MaxConcurrent: &one})
	require.NoError(t, err)
	require.Equal(t, []string{keep}, activeIDs(h.e))

	var evicted []string
	for _, r := range h.released() {
		require.Equal(t, CauseEvicted, r.Cause)
		evicted = append(evicted, r.ID)
	}
	require.Equal(t, []string{newer, older}, evicted)

	zero := 0
	_, err = h.e.UpdateSettings(SettingsPatch{MaxConcurrent: &zero})
	require.ErrorIs(t, err, ErrInvalidSettings)
	require.Equal(t, 1, h.e.Settings().MaxConcurrent)
}

func TestGrowingMaxConcurrentPromotes(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		s := DefaultSettings()
		s.MaxConcurrent = 1
		o.Settings = s
	})
	for i := 0; i < 3; i++ {
		h.show(t, templates.RoomClosed, fmt.Sprintf("%d", i))
	}
	h.tick()
	require.Equal(t, 1, h.e.Stats().Active)
	three := 3
	_, err := h.e.UpdateSettings(SettingsPatch{MaxConcurrent: &three})
	require.NoError(t, err)
	h.tick()
	require.Equal(t, 3, h.e.Stats().Active)
}

func TestEffectsFollowSettings(t *testing.T) {
	h := newHarness(t, nil)
	h.show(t, templates.AchievementUnlocked, "loud")
	h.tick()

	off := false
	_, err := h.e.UpdateSettings(SettingsPatch{EnableSound: &off})
	require.NoError(t, err)
	h.show(t, templates.AchievementUnlocked, "quiet")
	h.tick()

	require.Len(t, h.fx.fired, 2)
	require.True(t, h.fx.fired[0].Sound)
	require.Equal(t, "achievement", h.fx.fired[0].SoundID)
	require.False(t, h.fx.fired[1].Sound)
	require.True(t, h.fx.fired[1].Vibrate)
}

func TestShutdown(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		s := DefaultSettings()
		s.MaxConcurrent = 1
		o.Settings = s
	})
	a := h.show(t, templates.PartnerJoined, "a")
	q := h.show(t, templates.PartnerJoined, "b")
	h.tick()

	require.NoError(t, h.e.Shutdown(context.Background()))
	require.Zero(t, h.clk.Pending())
	rel := h.released()
	require.Equal(t, []Released{{
		ID: a, Type: templates.PartnerJoined, Level: templates.LevelToast, Cause: CauseShutdown,
		CreatedAt: rel[0].CreatedAt,
	}}, rel)
	require.False(t, h.e.Close(q))

	id, err := h.e.Show(templates.PartnerJoined, Content{})
	require.Empty(t, id)
	require.True(t, errors.Is(err, ErrStopped))
	require.ErrorIs(t, h.e.Start(context.Background()), ErrStopped)
}

func TestSettingsPersistence(t *testing.T) {
	loaded := DefaultSettings()
	loaded.Language = "id"
	loaded.MaxConcurrent = 5
	store := &memStore{loaded: &loaded}
	h := newHarness(t, func(o *Options) { o.Store = store })
	require.Equal(t, 5, h.e.Settings().MaxConcurrent)
	require.Equal(t, "id", h.e.Settings().Language)

	theme := "dark"
	_, err := h.e.UpdateSettings(SettingsPatch{Theme: &theme})
	require.NoError(t, err)
	require.NoError(t, h.e.Shutdown(context.Background()))

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.saved, 1)
	require.Equal(t, "dark", store.saved[0].Theme)
}

func TestShowBeforeStart(t *testing.T) {
	reg, err := templates.NewRegistry(nil)
	require.NoError(t, err)
	e, err := New(Options{Registry: reg, Renderer: newFakeRenderer()})
	require.NoError(t, err)
	id, err := e.Show(templates.PartnerJoined, Content{})
	require.Empty(t, id)
	require.ErrorIs(t, err, ErrStopped)
}
