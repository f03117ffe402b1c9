package engine

import (
	"nudge/internal/channel"
	"nudge/internal/effects"
	logx "nudge/pkg/logx"
)

// signalLocked arms the next drain tick: a zero-delay clock timer, so Show
// returns right after enqueue and everything admitted before the tick fires
// competes by priority. At most one tick is pending.
func (e *Engine) signalLocked() {
	if !e.running || e.tick != nil {
		return
	}
	e.tick = e.clock.AfterFunc(0, e.onTick)
}

func (e *Engine) kick() {
	e.mu.Lock()
	e.signalLocked()
	e.mu.Unlock()
}

func (e *Engine) onTick() {
	e.mu.Lock()
	e.tick = nil
	e.mu.Unlock()
	e.schedule()
}

// schedule promotes queued requests while capacity allows. Only one goroutine
// drains at a time; a call that finds a drain in progress marks it to run
// again, so overlapping ticks coalesce.
func (e *Engine) schedule() {
	e.mu.Lock()
	if e.draining {
		e.again = true
		e.mu.Unlock()
		return
	}
	e.draining = true
	e.mu.Unlock()

	for {
		e.drain()

		e.mu.Lock()
		if !e.again {
			e.draining = false
			e.mu.Unlock()
			return
		}
		e.again = false
		e.mu.Unlock()
	}
}

func (e *Engine) drain() {
	for {
		e.mu.Lock()
		if !e.running || len(e.active) >= e.settings.MaxConcurrent || e.queue.Len() == 0 {
			e.mu.Unlock()
			return
		}
		ent := e.queue.pop()
		delete(e.queued, ent.req.ID)
		if e.recent[ent.req.DedupKey] == ent {
			delete(e.recent, ent.req.DedupKey)
		}
		ent.state = StateActive
		ent.activatedAt = e.clock.Now()
		e.active[ent.req.ID] = ent
		content := e.contentLocked(ent)
		fx := effects.Effect{
			ID:        ent.req.ID,
			Type:      string(ent.req.Type),
			Title:     ent.req.Title,
			Message:   ent.req.Message,
			SoundID:   ent.req.SoundID,
			Vibration: ent.req.Vibration,
			Sound:     e.settings.EnableSound,
			Vibrate:   e.settings.EnableVibration,
		}
		e.publish(EventActivated, Activated{ID: ent.req.ID, Type: ent.req.Type, Level: ent.req.Level, Priority: ent.req.Priority})
		e.mu.Unlock()

		m, err := e.renderer.Render(content, interactions{e: e})

		e.mu.Lock()
		if err != nil {
			e.releaseLocked(ent, CauseRenderFailed, "")
			e.mu.Unlock()
			e.log.Error("render failed; notification released", logx.String("id", ent.req.ID), logx.String("level", string(ent.req.Level)), logx.Err(err))
			continue
		}
		if ent.state != StateActive {
			// Released while mounting.
			e.mu.Unlock()
			e.unmountAll([]channel.Mounted{m})
			continue
		}
		ent.mounted = &m
		if !ent.req.Persistent && ent.req.Duration > 0 {
			ent.timer = e.clock.AfterFunc(ent.req.Duration, func() { e.expire(ent) })
		}
		e.mu.Unlock()

		if e.effects != nil {
			e.effects.Fire(fx)
		}
	}
}

func (e *Engine) contentLocked(ent *entry) channel.Content {
	r := ent.req
	return channel.Content{
		ID:         r.ID,
		Type:       r.Type,
		Level:      r.Level,
		Title:      r.Title,
		Message:    r.Message,
		Icon:       r.Icon,
		Priority:   r.Priority,
		Animation:  r.Animation,
		Actions:    r.Actions,
		Duration:   r.Duration,
		Persistent: r.Persistent,
		Position:   e.settings.Position,
		Theme:      e.settings.Theme,
		Target:     r.Target,
	}
}
