package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"nudge/internal/channel/term"
	"nudge/internal/effects"
	"nudge/internal/engine"
	"nudge/internal/reminders"
	"nudge/internal/storage"
	"nudge/internal/templates"
	logx "nudge/pkg/logx"
)

// errQuit ends the console loop.
var errQuit = errors.New("quit")

const consoleHelp = `commands:
  show TYPE [level=L] [priority=N] [duration=D] [target=SLOT] [persistent] [key=value...] [message...]
  close ID | cancel ID | closeall
  action ID ACTION | esc | click-outside
  set key=value...   (enabled, level, sound, vibration, animations, max, autoclose,
                      position, theme, language, disable=TYPE, enable=TYPE)
  stats | settings | view | history [N] | remind NAME | help | quit`

// Console executes line commands against the running engine and screen.
// Optional members may be nil.
type Console struct {
	Engine    *engine.Engine
	Screen    *term.Screen
	Store     storage.Store
	Reminders *reminders.Service
	Effects   *effects.Triggers
	Out       io.Writer
	Log       logx.Logger
}

// Run reads commands until ctx is done, in reaches EOF or "quit" is entered.
// It reports whether the user asked to quit.
func (c *Console) Run(ctx context.Context, in io.Reader) bool {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return false
		case line, ok := <-lines:
			if !ok {
				return false
			}
			err := c.Exec(ctx, line)
			if errors.Is(err, errQuit) {
				return true
			}
			if err != nil {
				fmt.Fprintf(c.Out, "error: %v\n", err)
			}
		}
	}
}

// Exec runs one command line.
func (c *Console) Exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	switch cmd {
	case "help", "?":
		fmt.Fprintln(c.Out, consoleHelp)
	case "quit", "exit":
		return errQuit
	case "show":
		return c.show(args)
	case "close":
		if len(args) != 1 {
			return errors.New("usage: close ID")
		}
		return c.Screen.Input("close", args[0])
	case "cancel":
		if len(args) != 1 {
			return errors.New("usage: cancel ID")
		}
		if !c.Engine.Cancel(args[0]) {
			return fmt.Errorf("no queued notification %s", args[0])
		}
		fmt.Fprintln(c.Out, "cancelled")
	case "closeall":
		fmt.Fprintf(c.Out, "closed %d\n", c.Engine.CloseAll())
	case "action":
		if len(args) != 2 {
			return errors.New("usage: action ID ACTION")
		}
		return c.Screen.Input("action", args[0], args[1])
	case "esc", "escape", "click-outside":
		return c.Screen.Input(cmd)
	case "set":
		p, err := parseSettingsPatch(args)
		if err != nil {
			return err
		}
		s, err := c.Engine.UpdateSettings(p)
		if err != nil {
			return err
		}
		return c.printJSON(s)
	case "settings":
		return c.printJSON(c.Engine.Settings())
	case "stats":
		return c.stats()
	case "view":
		fmt.Fprintln(c.Out, c.Screen.View())
	case "history":
		return c.history(ctx, args)
	case "remind":
		if c.Reminders == nil {
			return errors.New("reminders not configured")
		}
		if len(args) != 1 {
			return errors.New("usage: remind NAME")
		}
		return c.Reminders.RunNow(args[0])
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
	return nil
}

func (c *Console) show(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: show TYPE [options] [message]")
	}
	typ := templates.ParseType(args[0])
	content, opts, err := parseShowArgs(args[1:])
	if err != nil {
		return err
	}
	id, err := c.Engine.Show(typ, content, opts...)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Out, "queued %s\n", id)
	return nil
}

// parseShowArgs splits options, template vars and message words.
func parseShowArgs(args []string) (engine.Content, []engine.Option, error) {
	var (
		content engine.Content
		opts    []engine.Option
		words   []string
	)
	for _, a := range args {
		if a == "persistent" {
			opts = append(opts, engine.WithPersistent(true))
			continue
		}
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			words = append(words, a)
			continue
		}
		switch strings.ToLower(k) {
		case "level":
			l := templates.Level(strings.ToLower(v))
			if !l.Valid() {
				return content, nil, fmt.Errorf("invalid level %q", v)
			}
			opts = append(opts, engine.WithLevel(l))
		case "priority":
			n, err := strconv.Atoi(v)
			if err != nil {
				return content, nil, fmt.Errorf("invalid priority %q", v)
			}
			opts = append(opts, engine.WithPriority(n))
		case "duration":
			d, err := time.ParseDuration(v)
			if err != nil {
				return content, nil, fmt.Errorf("invalid duration %q", v)
			}
			opts = append(opts, engine.WithDuration(d))
		case "target":
			opts = append(opts, engine.WithTarget(v))
		case "title":
			content.Title = v
		default:
			if content.Vars == nil {
				content.Vars = map[string]string{}
			}
			content.Vars[k] = v
		}
	}
	content.Message = strings.Join(words, " ")
	return content, opts, nil
}

func parseBool(k, v string) (*bool, error) {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid bool %q", k, v)
	}
	return &b, nil
}

// parseSettingsPatch turns key=value pairs into a settings patch.
func parseSettingsPatch(args []string) (engine.SettingsPatch, error) {
	var p engine.SettingsPatch
	if len(args) == 0 {
		return p, errors.New("usage: set key=value...")
	}
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok {
			return p, fmt.Errorf("expected key=value, got %q", a)
		}
		var err error
		switch strings.ToLower(k) {
		case "enabled":
			p.Enabled, err = parseBool(k, v)
		case "sound":
			p.EnableSound, err = parseBool(k, v)
		case "vibration":
			p.EnableVibration, err = parseBool(k, v)
		case "animations":
			p.EnableAnimations, err = parseBool(k, v)
		case "autoclose":
			p.AutoClose, err = parseBool(k, v)
		case "max", "max_concurrent":
			n, convErr := strconv.Atoi(v)
			if convErr != nil {
				return p, fmt.Errorf("%s: invalid number %q", k, v)
			}
			p.MaxConcurrent = &n
		case "level", "default_level":
			l := templates.Level(strings.ToLower(v))
			p.DefaultLevel = &l
		case "position":
			p.Position = &v
		case "theme":
			p.Theme = &v
		case "language", "lang":
			p.Language = &v
		case "disable", "enable":
			typ := templates.ParseType(v)
			if typ == "" {
				return p, fmt.Errorf("%s: type required", k)
			}
			if p.DisabledTypes == nil {
				p.DisabledTypes = map[templates.Type]bool{}
			}
			p.DisabledTypes[typ] = strings.EqualFold(k, "disable")
		default:
			return p, fmt.Errorf("unknown setting %q", k)
		}
		if err != nil {
			return p, err
		}
	}
	return p, nil
}

func (c *Console) stats() error {
	out := struct {
		Engine  engine.Stats      `json:"engine"`
		Active  []string          `json:"active"`
		Effects *effects.Counters `json:"effects,omitempty"`
	}{Engine: c.Engine.Stats()}
	for _, r := range c.Engine.Active() {
		out.Active = append(out.Active, fmt.Sprintf("%s %s %s p%d", r.ID, r.Type, r.Level, r.Priority))
	}
	if c.Effects != nil {
		cnt := c.Effects.Counters()
		out.Effects = &cnt
	}
	return c.printJSON(out)
}

func (c *Console) history(ctx context.Context, args []string) error {
	if c.Store == nil {
		return storage.ErrDisabled
	}
	n := 10
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v <= 0 {
			return fmt.Errorf("invalid count %q", args[0])
		}
		n = v
	}
	entries, err := c.Store.RecentHistory(ctx, n)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Fprintf(c.Out, "%s %-8s %-20s %-6s %-12s %dms\n",
			e.At.Format(time.TimeOnly), shortID(e.ID), e.Type, e.Level, e.Cause, e.ActiveMS)
	}
	return nil
}

func (c *Console) printJSON(v any) error {
	enc := json.NewEncoder(c.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
