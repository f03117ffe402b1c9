package engine

import (
	"errors"
	"hash/fnv"

	"nudge/internal/device"
	"nudge/internal/templates"
	logx "nudge/pkg/logx"
)

// Show admits a notification of type typ and returns its id. Rejected and
// dropped requests return "" with the reason; callers that only care about
// admission can ignore the error.
func (e *Engine) Show(typ templates.Type, content Content, opts ...Option) (string, error) {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return "", e.reject(typ, "stopped", ErrStopped)
	}
	settings := e.settings.clone()
	caps := e.caps
	e.mu.Unlock()

	if !settings.Enabled {
		return "", e.reject(typ, "disabled", ErrDisabled)
	}
	if !settings.TypeEnabled(typ) {
		return "", e.reject(typ, "type_disabled", ErrTypeDisabled)
	}
	tpl, err := e.registry.Lookup(typ, settings.Language)
	if err != nil {
		e.log.Warn("notification dropped", logx.String("type", string(typ)), logx.Err(err))
		return "", e.reject(typ, "template_not_found", err)
	}

	var o overrides
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	req := build(typ, tpl, content, o, settings, caps)
	req.ID = e.newID()

	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return "", e.reject(typ, "stopped", ErrStopped)
	}
	now := e.clock.Now()
	req.CreatedAt = now
	e.seq++
	req.Seq = e.seq

	if prev := e.recent[req.DedupKey]; prev != nil && prev.state == StateQueued && now.Sub(prev.req.CreatedAt) < e.window {
		e.queue.remove(prev)
		delete(e.queued, prev.req.ID)
		prev.state = StateCancelled
		e.publish(EventSuperseded, Superseded{ID: prev.req.ID, By: req.ID, Type: typ})
		e.log.Debug("queued duplicate superseded", logx.String("id", prev.req.ID), logx.String("by", req.ID))
	}

	ent := &entry{req: req, state: StateQueued, index: -1}
	e.queue.push(ent)
	e.queued[req.ID] = ent
	e.recent[req.DedupKey] = ent
	e.publish(EventQueued, Queued{ID: req.ID, Type: typ, Priority: req.Priority})
	e.signalLocked()
	e.mu.Unlock()
	return req.ID, nil
}

func (e *Engine) reject(typ templates.Type, reason string, err error) error {
	e.publish(EventRejected, Rejected{Type: typ, Reason: reason})
	if !errors.Is(err, templates.ErrTemplateNotFound) {
		e.log.Debug("notification rejected", logx.String("type", string(typ)), logx.String("reason", reason))
	}
	return err
}

// build merges, in order, template defaults, settings, caller overrides and
// device adaptation.
func build(typ templates.Type, tpl templates.Template, c Content, o overrides, s Settings, caps device.Capabilities) Request {
	r := Request{
		Type:      typ,
		Title:     tpl.Title,
		Message:   tpl.Message,
		Icon:      tpl.Icon,
		Level:     tpl.Level,
		Priority:  templates.ClampPriority(tpl.Priority),
		Duration:  tpl.Duration,
		Animation: tpl.Animation,
		SoundID:   tpl.SoundID,
		Vibration: tpl.Vibration,
		Actions:   tpl.Actions,
	}
	if c.Title != "" {
		r.Title = c.Title
	}
	if c.Message != "" {
		r.Message = c.Message
	}
	if c.Icon != "" {
		r.Icon = c.Icon
	}
	r.Title = templates.Expand(r.Title, c.Vars)
	r.Message = templates.Expand(r.Message, c.Vars)
	r.Persistent = r.Duration <= 0

	if r.Level == "" {
		r.Level = s.DefaultLevel
	}
	if !s.EnableAnimations {
		r.Animation = templates.AnimationNone
	}
	if !s.AutoClose {
		r.Persistent = true
	}

	if o.level != nil && o.level.Valid() {
		r.Level = *o.level
	}
	if o.priority != nil {
		r.Priority = *o.priority
	}
	if o.duration != nil {
		r.Duration = *o.duration
		r.Persistent = r.Duration == 0 || !s.AutoClose
	}
	if o.persistent != nil {
		r.Persistent = *o.persistent
	}
	if o.animation != nil {
		r.Animation = *o.animation
	}
	if o.sound != nil {
		r.SoundID = *o.sound
	}
	if o.vibSet {
		r.Vibration = o.vibration
	}
	if o.actionsSet {
		r.Actions = o.actions
	}
	r.Target = o.target
	if r.Persistent || r.Duration <= 0 {
		r.Persistent = true
		r.Duration = 0
	}

	r.DedupKey = dedupKey(typ, r.Message)

	p := device.Adapt(device.Presentation{
		Message:   r.Message,
		Duration:  r.Duration,
		Animation: r.Animation,
		SoundID:   r.SoundID,
		Vibration: r.Vibration,
	}, caps)
	r.Message = p.Message
	r.Duration = p.Duration
	r.Animation = p.Animation
	r.SoundID = p.SoundID
	r.Vibration = p.Vibration
	if r.Actions != nil {
		r.Actions = append(r.Actions[:0:0], r.Actions...)
	}
	return r
}

func dedupKey(typ templates.Type, message string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(typ))
	_, _ = h.Write([]byte{'|'})
	_, _ = h.Write([]byte(message))
	return h.Sum64()
}
