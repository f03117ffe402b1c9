package app

import (
	"context"
	"time"

	"nudge/internal/engine"
	"nudge/internal/eventbus"
	"nudge/internal/storage"
	logx "nudge/pkg/logx"
)

// historyBuffer sizes the recorder's subscription so a burst of releases
// (CloseAll, eviction, shutdown) fits while the store is writing. Overflow
// still drops and shows up in nudge_events_dropped_total.
const historyBuffer = 1024

func historyEntry(at time.Time, r engine.Released) storage.HistoryEntry {
	return storage.HistoryEntry{
		At:        at,
		ID:        r.ID,
		Type:      string(r.Type),
		Level:     string(r.Level),
		Cause:     string(r.Cause),
		ActionID:  r.ActionID,
		CreatedAt: r.CreatedAt,
		ActiveMS:  r.ActiveFor.Milliseconds(),
	}
}

// recordHistory appends every Released event to the store.
func recordHistory(ctx context.Context, events <-chan eventbus.Event, store storage.Store, log logx.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			r, ok := ev.Data.(engine.Released)
			if !ok {
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := store.AppendHistory(wctx, historyEntry(ev.Time, r)); err != nil {
				log.Debug("history append failed", logx.String("id", r.ID), logx.Err(err))
			}
			cancel()
		}
	}
}
