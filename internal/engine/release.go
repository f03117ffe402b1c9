package engine

import (
	"sort"

	"nudge/internal/channel"
	logx "nudge/pkg/logx"
)

// Close ends the request with id: an active request is released with
// CauseClosed, a queued one is cancelled. Unknown or finished ids are a no-op.
// It reports whether anything changed.
func (e *Engine) Close(id string) bool {
	return e.end(id, CauseClosed, "")
}

// Cancel removes a queued request. Active requests are left alone.
func (e *Engine) Cancel(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.queued[id]
	if !ok {
		return false
	}
	e.queue.remove(ent)
	e.cancelLocked(ent)
	return true
}

// CloseAll cancels every queued request and releases every active one.
func (e *Engine) CloseAll() int {
	e.mu.Lock()
	n := 0
	for e.queue.Len() > 0 {
		e.cancelLocked(e.queue.pop())
		n++
	}
	var unmount []channel.Mounted
	for _, ent := range e.activeByAge() {
		if m := e.releaseLocked(ent, CauseClosed, ""); m != nil {
			unmount = append(unmount, *m)
		}
		n++
	}
	e.mu.Unlock()

	e.unmountAll(unmount)
	e.kick()
	return n
}

func (e *Engine) end(id string, cause Cause, actionID string) bool {
	e.mu.Lock()
	if ent, ok := e.active[id]; ok {
		m := e.releaseLocked(ent, cause, actionID)
		e.mu.Unlock()
		if m != nil {
			e.unmountAll([]channel.Mounted{*m})
		}
		e.kick()
		return true
	}
	if ent, ok := e.queued[id]; ok && cause == CauseClosed {
		e.queue.remove(ent)
		e.cancelLocked(ent)
		e.mu.Unlock()
		return true
	}
	e.mu.Unlock()
	return false
}

// expire fires from the request's timer.
func (e *Engine) expire(ent *entry) {
	e.mu.Lock()
	if ent.state != StateActive {
		e.mu.Unlock()
		return
	}
	m := e.releaseLocked(ent, CauseExpired, "")
	e.mu.Unlock()
	if m != nil {
		e.unmountAll([]channel.Mounted{*m})
	}
	e.kick()
}

// releaseLocked moves an active entry to released and publishes Released.
// It returns the mount to tear down once the lock is dropped; nil when the
// entry is still mounting, in which case the drainer unmounts it.
func (e *Engine) releaseLocked(ent *entry, cause Cause, actionID string) *channel.Mounted {
	if ent == nil || ent.state != StateActive {
		return nil
	}
	ent.state = StateReleased
	if ent.timer != nil {
		ent.timer.Stop()
		ent.timer = nil
	}
	delete(e.active, ent.req.ID)

	now := e.clock.Now()
	e.publish(EventReleased, Released{
		ID:        ent.req.ID,
		Type:      ent.req.Type,
		Level:     ent.req.Level,
		Cause:     cause,
		ActionID:  actionID,
		CreatedAt: ent.req.CreatedAt,
		ActiveFor: now.Sub(ent.activatedAt),
	})
	e.log.Debug("notification released", logx.String("id", ent.req.ID), logx.String("cause", string(cause)))

	m := ent.mounted
	ent.mounted = nil
	return m
}

func (e *Engine) cancelLocked(ent *entry) {
	if ent == nil || ent.state != StateQueued {
		return
	}
	ent.state = StateCancelled
	delete(e.queued, ent.req.ID)
	if e.recent[ent.req.DedupKey] == ent {
		delete(e.recent, ent.req.DedupKey)
	}
	e.publish(EventCancelled, Cancelled{ID: ent.req.ID, Type: ent.req.Type})
}

// evictionCandidate picks the lowest-priority active entry, newest first on ties.
func (e *Engine) evictionCandidate() *entry {
	var victim *entry
	for _, ent := range e.active {
		if victim == nil ||
			ent.req.Priority < victim.req.Priority ||
			(ent.req.Priority == victim.req.Priority && ent.req.Seq > victim.req.Seq) {
			victim = ent
		}
	}
	return victim
}

func (e *Engine) activeByAge() []*entry {
	out := make([]*entry, 0, len(e.active))
	for _, ent := range e.active {
		out = append(out, ent)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].req.Seq < out[j].req.Seq })
	return out
}

func (e *Engine) unmountAll(ms []channel.Mounted) {
	for _, m := range ms {
		if err := e.renderer.Unmount(m); err != nil {
			e.log.Debug("unmount failed", logx.String("level", string(m.Level)), logx.String("handle", string(m.Handle)), logx.Err(err))
		}
	}
}

// interactions routes surface reports back to the engine.
type interactions struct{ e *Engine }

func (in interactions) Dismiss(id string) {
	in.e.end(id, CauseClosed, "")
}

func (in interactions) Action(id, actionID string) {
	in.e.invoke(id, actionID)
}

// invoke handles an action press. Actions that keep the request open only
// publish ActionInvoked.
func (e *Engine) invoke(id, actionID string) {
	e.mu.Lock()
	ent, ok := e.active[id]
	if !ok {
		e.mu.Unlock()
		return
	}
	closes, found := false, false
	for _, a := range ent.req.Actions {
		if a.ID == actionID {
			closes, found = a.Dismisses(), true
			break
		}
	}
	if !found {
		e.mu.Unlock()
		e.log.Debug("unknown action ignored", logx.String("id", id), logx.String("action", actionID))
		return
	}
	e.publish(EventActionInvoked, ActionInvoked{ID: id, Type: ent.req.Type, ActionID: actionID, Closes: closes})
	var m *channel.Mounted
	if closes {
		m = e.releaseLocked(ent, CauseAction, actionID)
	}
	e.mu.Unlock()

	if m != nil {
		e.unmountAll([]channel.Mounted{*m})
	}
	if closes {
		e.kick()
	}
}

// Invoke presses actionID on an active request as if from a surface.
func (e *Engine) Invoke(id, actionID string) {
	e.invoke(id, actionID)
}
