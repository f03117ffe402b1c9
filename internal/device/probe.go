package device

import (
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// SmallScreenColumns is the terminal width below which a host counts as small.
const SmallScreenColumns = 60

// Overrides pins capabilities from configuration. Nil fields are probed.
type Overrides struct {
	HasVibration *bool
	HasAudio     *bool
	SmallScreen  *bool
}

// Prober inspects the host terminal.
type Prober struct {
	// Width returns the terminal width in columns; ok=false when unknown.
	Width func() (cols int, ok bool)
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

// NewProber returns a Prober for the process stdout.
func NewProber() *Prober {
	return &Prober{
		Width: func() (int, bool) {
			fd := int(os.Stdout.Fd())
			if !term.IsTerminal(fd) {
				return 0, false
			}
			w, _, err := term.GetSize(fd)
			if err != nil || w <= 0 {
				return 0, false
			}
			return w, true
		},
		Getenv: os.Getenv,
	}
}

// Probe builds Capabilities. A terminal can ring the bell, so audio defaults
// to true; nothing in a terminal vibrates. When the width is unknown, $COLUMNS
// is consulted before assuming a regular screen.
func (p *Prober) Probe(o Overrides) Capabilities {
	caps := Capabilities{HasAudio: true}

	cols, ok := 0, false
	if p.Width != nil {
		cols, ok = p.Width()
	}
	if !ok && p.Getenv != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(p.Getenv("COLUMNS"))); err == nil && n > 0 {
			cols, ok = n, true
		}
	}
	caps.SmallScreen = ok && cols < SmallScreenColumns

	if o.HasVibration != nil {
		caps.HasVibration = *o.HasVibration
	}
	if o.HasAudio != nil {
		caps.HasAudio = *o.HasAudio
	}
	if o.SmallScreen != nil {
		caps.SmallScreen = *o.SmallScreen
	}
	return caps
}
