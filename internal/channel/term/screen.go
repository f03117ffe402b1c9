// Package term renders notification surfaces into a terminal frame.
//
// One Screen hosts all five surfaces. Toasts and banners stack by position,
// popups sit in the middle, inline content is grouped under its target slot,
// and a mounted modal blocks input to everything else until it is dismissed.
package term

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"nudge/internal/channel"
	"nudge/internal/templates"
)

var (
	ErrBlocked       = errors.New("input blocked by modal")
	ErrUnknownID     = errors.New("no mounted notification with that id")
	ErrUnknownAction = errors.New("unknown action")
	ErrNoActions     = errors.New("surface has no action buttons")
)

const defaultWidth = 80

// DefaultSlot receives inline content mounted without a target.
const DefaultSlot = "main"

type Options struct {
	// Out receives a full redraw after every mount/unmount. Nil disables drawing.
	Out   io.Writer
	Width int
}

type item struct {
	handle channel.Handle
	c      channel.Content
	in     channel.Interactions
}

type Screen struct {
	mu    sync.Mutex
	width int
	seq   uint64
	items []*item

	drawMu sync.Mutex
	out    io.Writer
}

func NewScreen(opts Options) *Screen {
	w := opts.Width
	if w <= 0 {
		w = defaultWidth
	}
	return &Screen{width: w, out: opts.Out}
}

// Register installs one surface per level on d.
func (s *Screen) Register(d *channel.Dispatcher) error {
	for _, l := range templates.Levels {
		if err := d.Register(l, &surface{screen: s, level: l}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Screen) SetWidth(w int) {
	if w <= 0 {
		return
	}
	s.mu.Lock()
	s.width = w
	s.mu.Unlock()
	s.redraw()
}

type surface struct {
	screen *Screen
	level  templates.Level
}

func (f *surface) Mount(c channel.Content, in channel.Interactions) (channel.Handle, error) {
	if c.Level != f.level {
		return "", fmt.Errorf("term: %s surface cannot mount %s content", f.level, c.Level)
	}
	if in == nil {
		return "", errors.New("term: nil interactions")
	}
	if f.level == templates.LevelInline && strings.TrimSpace(c.Target) == "" {
		c.Target = DefaultSlot
	}
	return f.screen.mount(c, in), nil
}

func (f *surface) Unmount(h channel.Handle) error {
	return f.screen.unmount(h)
}

func (s *Screen) mount(c channel.Content, in channel.Interactions) channel.Handle {
	s.mu.Lock()
	s.seq++
	h := channel.Handle(fmt.Sprintf("%s-%d", c.Level, s.seq))
	s.items = append(s.items, &item{handle: h, c: c, in: in})
	s.mu.Unlock()
	s.redraw()
	return h
}

func (s *Screen) unmount(h channel.Handle) error {
	s.mu.Lock()
	idx := -1
	for i, it := range s.items {
		if it.handle == h {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", channel.ErrUnknownHandle, h)
	}
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	s.mu.Unlock()
	s.redraw()
	return nil
}

// Mounted returns the content currently on screen, in mount order.
func (s *Screen) Mounted() []channel.Content {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]channel.Content, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it.c)
	}
	return out
}

// Resolve maps an id or unique id prefix to the full id.
func (s *Screen) Resolve(prefix string) (string, bool) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	found := ""
	for _, it := range s.items {
		if it.c.ID == prefix {
			return prefix, true
		}
		if strings.HasPrefix(it.c.ID, prefix) {
			if found != "" && found != it.c.ID {
				return "", false
			}
			found = it.c.ID
		}
	}
	return found, found != ""
}

// ---- input ----

// Input routes a key or click event: "esc", "click-outside", "close ID",
// "action ID ACTION". IDs may be unique prefixes.
func (s *Screen) Input(event string, args ...string) error {
	switch strings.ToLower(strings.TrimSpace(event)) {
	case "esc", "escape":
		s.Escape()
		return nil
	case "click-outside", "click":
		s.ClickOutside()
		return nil
	case "close":
		if len(args) < 1 {
			return errors.New("close: id required")
		}
		return s.Close(s.resolveOr(args[0]))
	case "action":
		if len(args) < 2 {
			return errors.New("action: id and action required")
		}
		return s.Press(s.resolveOr(args[0]), args[1])
	default:
		return fmt.Errorf("unknown input %q", event)
	}
}

func (s *Screen) resolveOr(id string) string {
	if full, ok := s.Resolve(id); ok {
		return full
	}
	return id
}

// Close presses the close affordance of the notification with id.
func (s *Screen) Close(id string) error {
	it, err := s.target(id)
	if err != nil {
		return err
	}
	it.in.Dismiss(it.c.ID)
	return nil
}

// Press invokes an action button.
func (s *Screen) Press(id, actionID string) error {
	it, err := s.target(id)
	if err != nil {
		return err
	}
	if it.c.Level == templates.LevelToast {
		return ErrNoActions
	}
	for _, a := range it.c.Actions {
		if a.ID == actionID {
			it.in.Action(it.c.ID, actionID)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownAction, actionID)
}

// Escape cancels the topmost modal. It reports whether anything was dismissed.
func (s *Screen) Escape() bool {
	s.mu.Lock()
	m := s.topModalLocked()
	s.mu.Unlock()
	if m == nil {
		return false
	}
	m.in.Dismiss(m.c.ID)
	return true
}

// ClickOutside is a click that hits no surface. With a modal mounted it lands
// on the modal backdrop; otherwise it dismisses every popup.
func (s *Screen) ClickOutside() int {
	s.mu.Lock()
	var hit []*item
	if m := s.topModalLocked(); m != nil {
		hit = append(hit, m)
	} else {
		for _, it := range s.items {
			if it.c.Level == templates.LevelPopup {
				hit = append(hit, it)
			}
		}
	}
	s.mu.Unlock()

	// Interactions re-enter unmount, so call them without holding s.mu.
	for _, it := range hit {
		it.in.Dismiss(it.c.ID)
	}
	return len(hit)
}

func (s *Screen) target(id string) (*item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *item
	for _, it := range s.items {
		if it.c.ID == id {
			found = it
			break
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownID, id)
	}
	if m := s.topModalLocked(); m != nil && m != found {
		return nil, ErrBlocked
	}
	return found, nil
}

func (s *Screen) topModalLocked() *item {
	for i := len(s.items) - 1; i >= 0; i-- {
		if s.items[i].c.Level == templates.LevelModal {
			return s.items[i]
		}
	}
	return nil
}

// ---- rendering ----

func (s *Screen) redraw() {
	if s.out == nil {
		return
	}
	frame := s.View()
	s.drawMu.Lock()
	_, _ = io.WriteString(s.out, "\x1b[H\x1b[2J"+frame+"\n")
	s.drawMu.Unlock()
}

// View renders the whole frame.
func (s *Screen) View() string {
	s.mu.Lock()
	width := s.width
	items := make([]*item, len(s.items))
	copy(items, s.items)
	var modal *item
	if m := s.topModalLocked(); m != nil {
		modal = m
	}
	s.mu.Unlock()

	var top, middle, bottom []string
	slots := map[string][]string{}
	var slotOrder []string

	for _, it := range items {
		c := it.c
		p := paletteFor(c.Theme)
		switch c.Level {
		case templates.LevelBanner:
			b := p.box(c.Level, c.Priority).Width(max(10, width-2)).Render(body(p, c, width-4))
			if isBottom(c.Position) {
				bottom = append(bottom, b)
			} else {
				top = append(top, b)
			}
		case templates.LevelToast:
			b := lipgloss.PlaceHorizontal(width, horizontal(c.Position), p.box(c.Level, c.Priority).Render(body(p, c, 36)))
			if isBottom(c.Position) {
				bottom = append(bottom, b)
			} else {
				top = append(top, b)
			}
		case templates.LevelPopup:
			middle = append(middle, lipgloss.PlaceHorizontal(width, lipgloss.Center, p.box(c.Level, c.Priority).Render(body(p, c, 48))))
		case templates.LevelInline:
			if _, ok := slots[c.Target]; !ok {
				slotOrder = append(slotOrder, c.Target)
			}
			slots[c.Target] = append(slots[c.Target], p.box(c.Level, c.Priority).Render(body(p, c, width-6)))
		}
	}

	sections := make([]string, 0, 8)
	sections = append(sections, top...)
	sections = append(sections, middle...)
	for _, slot := range slotOrder {
		sections = append(sections, paletteFor("").subtle().Render("── "+slot+" ──"))
		sections = append(sections, slots[slot]...)
	}
	sections = append(sections, bottom...)

	if modal != nil {
		p := paletteFor(modal.c.Theme)
		box := p.box(modal.c.Level, modal.c.Priority).Render(body(p, modal.c, 52))
		overlay := lipgloss.JoinVertical(lipgloss.Center,
			p.subtle().Render("░░ input blocked until this dialog is closed ░░"),
			box,
		)
		sections = append(sections, lipgloss.PlaceHorizontal(width, lipgloss.Center, overlay))
	}
	if len(sections) == 0 {
		return ""
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func body(p palette, c channel.Content, width int) string {
	head := strings.TrimSpace(c.Icon + " " + p.title().Render(c.Title))
	id := c.ID
	if len(id) > 8 {
		id = id[:8]
	}
	head += "  " + p.subtle().Render("#"+id+" ✕")

	lines := []string{head}
	if c.Message != "" {
		msg := c.Message
		if width > 0 {
			msg = lipgloss.NewStyle().Width(width).Render(msg)
		}
		lines = append(lines, msg)
	}
	if c.Level != templates.LevelToast && len(c.Actions) > 0 {
		btns := make([]string, 0, len(c.Actions))
		for _, a := range c.Actions {
			btns = append(btns, p.button(a.Primary).Render("["+a.Label+"]"))
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, btns...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func isBottom(position string) bool {
	return strings.HasPrefix(strings.ToLower(position), "bottom")
}

func horizontal(position string) lipgloss.Position {
	p := strings.ToLower(position)
	switch {
	case strings.HasSuffix(p, "left"):
		return lipgloss.Left
	case strings.HasSuffix(p, "center"):
		return lipgloss.Center
	default:
		return lipgloss.Right
	}
}
