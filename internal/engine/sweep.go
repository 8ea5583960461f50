package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Dancode-188/synckit/sdk/go/internal/protocol"
)

// SyncOfflineOperations replays the offline queue for the current space
// against the live connection, in original mutation order, and prunes what
// the server acknowledged. Runs automatically on every successful join and
// may be called any time ("sync now"); with an empty queue it returns
// immediately, so speculative calls are cheap.
//
// A failing record does not stop the sweep: every record gets its attempt,
// acknowledged ids are removed, the rest stay queued for the next sweep.
// There is no retry cap on the queue itself; local edits are never
// silently discarded.
//
// Sweeps serialize: a call that overlaps a running sweep waits its turn and
// then re-lists the queue, so no record is delivered twice.
func (e *Engine) SyncOfflineOperations(ctx context.Context) error {
	e.sweepMu.Lock()
	defer e.sweepMu.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrDisposed
	}
	c := e.conn
	mode := e.mode
	spaceType, spaceID := e.spaceType, e.workspaceID
	e.mu.Unlock()

	if spaceID == "" {
		return ErrNoWorkspace
	}

	records, err := e.st.ListOffline(spaceType, spaceID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	if c == nil || mode != ModeCloud {
		return ErrNotConnected
	}

	var synced []string
	var firstErr error

	for _, rec := range records {
		// Announce the originating identity first, so peers attribute the
		// delayed mutation to its author rather than to this reconnect.
		activity := map[string]interface{}{
			"spaceType": spaceType,
			"spaceId":   spaceID,
			"sessionId": rec.SessionID,
		}
		if rec.ClientID != "" {
			activity["clientId"] = rec.ClientID
		}
		if err := c.Notify(protocol.TypeAwarenessUpdate, activity); err != nil {
			e.logger.Debug("replay presence broadcast failed", slog.String("error", err.Error()))
		}

		ts, err := e.sendUpdate(ctx, c, spaceType, spaceID, rec.DocID, rec.Update, rec.SessionID, rec.ClientID)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			e.logger.Warn("offline record delivery failed",
				slog.String("recordId", rec.ID),
				slog.String("docId", rec.DocID),
				slog.String("error", err.Error()))
			continue
		}

		synced = append(synced, rec.ID)
		e.resolveWaiters(rec.ID, ts)
	}

	if len(synced) == len(records) {
		if err := e.st.ClearOffline(spaceType, spaceID); err != nil {
			return err
		}
		e.markSynced()
		e.logger.Info("offline queue drained", slog.Int("count", len(records)))
		return nil
	}

	if err := e.st.RemoveOffline(synced); err != nil {
		return err
	}
	if len(synced) > 0 {
		e.markSynced()
	}
	return fmt.Errorf("synced %d of %d offline operations: %w", len(synced), len(records), firstErr)
}

// resolveWaiters completes pushes that were blocked on a queued record
// reaching the server.
func (e *Engine) resolveWaiters(recordID string, timestamp int64) {
	e.mu.Lock()
	var resolved []*pendingPush
	kept := e.pending[:0]
	for _, p := range e.pending {
		if p.recordID == recordID {
			resolved = append(resolved, p)
		} else {
			kept = append(kept, p)
		}
	}
	e.pending = kept
	e.mu.Unlock()

	for _, p := range resolved {
		p.done <- pushResult{timestamp: timestamp}
	}
}
