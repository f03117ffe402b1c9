package effects

import (
	"context"
	"io"
	"sync"
	"time"

	logx "nudge/pkg/logx"
)

// BellPlayer rings the terminal bell for every sound.
type BellPlayer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewBellPlayer(w io.Writer) *BellPlayer { return &BellPlayer{w: w} }

func (b *BellPlayer) Play(ctx context.Context, _ string) error {
	if b == nil || b.w == nil {
		return ErrNoHost
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := io.WriteString(b.w, "\a")
	return err
}

// LogHaptics records vibration patterns in the log; terminals cannot vibrate.
type LogHaptics struct {
	Log logx.Logger
}

func (h LogHaptics) Vibrate(ctx context.Context, pattern []time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var total time.Duration
	for _, d := range pattern {
		total += d
	}
	h.Log.Debug("vibrate", logx.Int("steps", len(pattern)), logx.Duration("total", total))
	return nil
}
