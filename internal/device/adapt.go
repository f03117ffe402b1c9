// Package device adapts notification presentation to what the host can do.
package device

import (
	"time"

	"nudge/internal/templates"
)

const (
	smallScreenMaxRunes  = 50
	smallScreenKeepRunes = 47
	smallScreenMaxDur    = 3 * time.Second
	ellipsis             = "..."
)

// Capabilities describes the host. The zero value is the most restricted host.
type Capabilities struct {
	HasVibration bool `json:"has_vibration"`
	HasAudio     bool `json:"has_audio"`
	SmallScreen  bool `json:"small_screen"`
}

// Presentation is the subset of a request the adapter may rewrite.
type Presentation struct {
	Message   string
	Duration  time.Duration
	Animation templates.Animation
	SoundID   string
	Vibration []time.Duration
}

// Adapt returns p rewritten for caps. It is pure: p is not modified.
func Adapt(p Presentation, caps Capabilities) Presentation {
	out := p
	if out.Vibration != nil {
		out.Vibration = append([]time.Duration(nil), out.Vibration...)
	}

	if caps.SmallScreen {
		out.Message = truncate(out.Message)
		// Zero stays zero: persistent notifications remain persistent.
		if out.Duration > smallScreenMaxDur {
			out.Duration = smallScreenMaxDur
		}
		if out.Animation == templates.AnimationBounce {
			out.Animation = templates.AnimationFade
		}
	}
	if !caps.HasVibration {
		out.Vibration = nil
	}
	if !caps.HasAudio {
		out.SoundID = ""
	}
	return out
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= smallScreenMaxRunes {
		return s
	}
	return string(r[:smallScreenKeepRunes]) + ellipsis
}
