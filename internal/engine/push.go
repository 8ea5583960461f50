package engine

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Dancode-188/synckit/sdk/go/internal/protocol"
	"github.com/Dancode-188/synckit/sdk/go/internal/store"
)

// PushDocUpdate delivers one document mutation and returns the server
// timestamp of the acknowledgment.
//
// Connectivity decides the path:
//   - empty updates resolve immediately without touching the network;
//   - not joined (network down or no live connection), the mutation is
//     queued durably first and the call blocks until a reconciliation sweep
//     confirms delivery; when online, a connection attempt is kicked off.
//     The mutation survives a crash or retry exhaustion either way;
//   - online and joined, the mutation goes out with acknowledgment. A send
//     failure queues the mutation durably and returns the error: the caller
//     is told it failed now, but nothing is lost.
func (e *Engine) PushDocUpdate(ctx context.Context, docID string, update []byte) (int64, error) {
	docID = strings.TrimSpace(docID)

	sessionID, err := e.tracker.SessionID()
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return 0, ErrDisposed
	}
	if e.workspaceID == "" {
		e.mu.Unlock()
		return 0, ErrNoWorkspace
	}

	if protocol.IsEmptyUpdate(update) {
		now := e.now().UnixMilli()
		e.mu.Unlock()
		return now, nil
	}
	if len(update) < 2 {
		e.mu.Unlock()
		return 0, ErrInvalidUpdate
	}

	if !e.online || e.conn == nil || e.mode != ModeCloud {
		rec := e.newRecordLocked(docID, update, sessionID)
		p := &pendingPush{recordID: rec.ID, done: make(chan pushResult, 1)}
		e.pending = append(e.pending, p)
		if e.online {
			e.connectLocked() // opportunistic kick
		}
		e.mu.Unlock()

		if err := e.st.AppendOffline(rec); err != nil {
			e.removePending(p)
			return 0, err
		}
		return e.waitPush(ctx, p)
	}

	c := e.conn
	clientID := e.clientID
	spaceType, spaceID := e.spaceType, e.workspaceID
	e.mu.Unlock()

	ts, err := e.sendUpdate(ctx, c, spaceType, spaceID, docID, update, sessionID, clientID)
	if err != nil {
		rec := store.Record{
			ID:        store.NewRecordID(e.now()),
			DocID:     docID,
			Update:    update,
			Timestamp: e.now().UnixMilli(),
			SpaceID:   spaceID,
			SpaceType: spaceType,
			SessionID: sessionID,
			ClientID:  clientID,
		}
		if aerr := e.st.AppendOffline(rec); aerr != nil {
			e.logger.Error("failed to queue mutation after send failure",
				slog.String("docId", docID),
				slog.String("error", aerr.Error()))
		}
		return 0, err
	}

	e.markSynced()
	return ts, nil
}

// newRecordLocked builds an offline record from current engine state.
// Caller holds e.mu.
func (e *Engine) newRecordLocked(docID string, update []byte, sessionID string) store.Record {
	now := e.now()
	return store.Record{
		ID:        store.NewRecordID(now),
		DocID:     docID,
		Update:    update,
		Timestamp: now.UnixMilli(),
		SpaceID:   e.workspaceID,
		SpaceType: e.spaceType,
		SessionID: sessionID,
		ClientID:  e.clientID,
	}
}

func (e *Engine) waitPush(ctx context.Context, p *pendingPush) (int64, error) {
	select {
	case res := <-p.done:
		if res.err != nil {
			return 0, res.err
		}
		return res.timestamp, nil
	case <-ctx.Done():
		e.removePending(p)
		return 0, ctx.Err()
	}
}

func (e *Engine) removePending(p *pendingPush) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, q := range e.pending {
		if q == p {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			return
		}
	}
}

// sendUpdate performs one push round trip over a live connection.
func (e *Engine) sendUpdate(ctx context.Context, c conn, spaceType, spaceID, docID string, update []byte, sessionID, clientID string) (int64, error) {
	payload := map[string]interface{}{
		"spaceType": spaceType,
		"spaceId":   spaceID,
		"docId":     docID,
		"update":    protocol.EncodeUpdate(update),
		"sessionId": sessionID,
	}
	if clientID != "" {
		payload["clientId"] = clientID
	}

	reply, err := c.Request(ctx, protocol.TypeSpacePushDocUpdate, payload)
	if err != nil {
		return 0, err
	}

	if ts := protocol.AckTimestamp(reply.Payload); ts != 0 {
		return ts, nil
	}
	// Server omitted the timestamp; local time stands in.
	return e.now().UnixMilli(), nil
}

// markSynced records a confirmed delivery. Never called optimistically.
func (e *Engine) markSynced() {
	e.mu.Lock()
	e.lastSync = e.now()
	e.mu.Unlock()
}
