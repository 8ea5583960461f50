// Package engine is the client-side document sync engine: it owns the
// connection lifecycle to a SyncKit server, delivers document mutations with
// acknowledgment, queues them durably while offline, and reconciles the
// queue on reconnect.
package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Dancode-188/synckit/sdk/go/internal/auth"
	"github.com/Dancode-188/synckit/sdk/go/internal/events"
	"github.com/Dancode-188/synckit/sdk/go/internal/protocol"
	"github.com/Dancode-188/synckit/sdk/go/internal/session"
	"github.com/Dancode-188/synckit/sdk/go/internal/store"
	"github.com/Dancode-188/synckit/sdk/go/internal/transport"
)

const (
	// connectTimeout bounds dial plus join. Anything slower counts as a
	// connection failure.
	connectTimeout = 5 * time.Second

	// settleDelay separates a workspace teardown from the fresh connect so
	// the old transport finishes closing.
	settleDelay = 500 * time.Millisecond

	defaultClientVersion = "0.3.0"
)

var (
	ErrDisposed      = errors.New("sync engine disposed")
	ErrNoWorkspace   = errors.New("no workspace id configured")
	ErrInvalidUpdate = errors.New("malformed document update")
	ErrNotConnected  = errors.New("not connected to cloud")
)

// conn is the slice of transport.Conn the engine drives. Tests substitute
// scripted fakes.
type conn interface {
	Request(ctx context.Context, messageType string, payload map[string]interface{}) (*protocol.Message, error)
	Notify(messageType string, payload map[string]interface{}) error
	Done() <-chan struct{}
	Err() error
	Close() error
}

type dialFunc func(ctx context.Context, url string, logger *slog.Logger, onMessage transport.MessageHandler) (conn, error)

func defaultDial(ctx context.Context, url string, logger *slog.Logger, onMessage transport.MessageHandler) (conn, error) {
	return transport.Dial(ctx, url, logger, onMessage)
}

type pushResult struct {
	timestamp int64
	err       error
}

// pendingPush is a caller blocked on its durably queued mutation reaching
// the server. The reconciliation sweep resolves it by record id.
type pendingPush struct {
	recordID string
	done     chan pushResult
}

// Options configures a sync Engine.
type Options struct {
	ServerURL     string
	WorkspaceID   string
	SpaceType     string // protocol.SpaceTypeWorkspace (default) or SpaceTypeUserspace
	Token         string
	ClientVersion string
	Store         *store.Store
	Logger        *slog.Logger
}

// Engine is the sync engine. Construct one per workspace session with New
// and pass it by reference to anything that needs it; there is no ambient
// singleton.
type Engine struct {
	logger  *slog.Logger
	st      *store.Store
	bus     *events.Bus
	tracker *session.Tracker

	dial  dialFunc
	sched scheduler
	now   func() time.Time

	serverURL     string
	token         string
	clientVersion string

	// sweepMu serializes reconciliation sweeps so the join-triggered sweep
	// and a manual "sync now" never deliver the same record twice.
	sweepMu sync.Mutex

	mu           sync.Mutex
	closed       bool
	mode         Mode
	workspaceID  string
	spaceType    string
	online       bool
	conn         conn
	connGen      int
	connecting   bool
	clientID     string
	retry        *retryPolicy
	cancelRetry  func()
	cancelSettle func()
	pending      []*pendingPush
	lastSync     time.Time
	watchers     []chan Mode
}

// New creates an Engine. The Store is owned by the caller and must outlive
// the engine.
func New(opts Options) (*Engine, error) {
	if opts.ServerURL == "" {
		return nil, errors.New("engine: server url is required")
	}
	if opts.Store == nil {
		return nil, errors.New("engine: store is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	spaceType := opts.SpaceType
	if spaceType == "" {
		spaceType = protocol.SpaceTypeWorkspace
	}
	if spaceType != protocol.SpaceTypeWorkspace && spaceType != protocol.SpaceTypeUserspace {
		return nil, errors.New("engine: space type must be workspace or userspace")
	}

	clientVersion := opts.ClientVersion
	if clientVersion == "" {
		clientVersion = defaultClientVersion
	}

	bus := events.NewBus()
	tracker := session.NewTracker(opts.Store, bus, logger)
	if label := auth.UserLabel(opts.Token); label != "" {
		tracker.SetLabel(label)
	}

	return &Engine{
		logger:        logger,
		st:            opts.Store,
		bus:           bus,
		tracker:       tracker,
		dial:          defaultDial,
		sched:         newTimerScheduler(),
		now:           time.Now,
		serverURL:     opts.ServerURL,
		token:         opts.Token,
		clientVersion: clientVersion,
		mode:          ModeLocal,
		workspaceID:   strings.TrimSpace(opts.WorkspaceID),
		spaceType:     spaceType,
		online:        true,
		retry:         newRetryPolicy(),
	}, nil
}

// Connect starts a connection attempt. No-op when already connected or
// connecting; settles in local mode when the network is reported unavailable
// or the retry budget is exhausted.
func (e *Engine) Connect() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connectLocked()
}

func (e *Engine) connectLocked() error {
	if e.closed {
		return ErrDisposed
	}
	if e.workspaceID == "" {
		return ErrNoWorkspace
	}
	if e.conn != nil || e.connecting {
		return nil
	}
	if !e.online {
		e.setModeLocked(ModeLocal)
		return nil
	}
	if e.retry.Exhausted() {
		e.setModeLocked(ModeLocal)
		return nil
	}

	e.setModeLocked(ModeDetecting)
	e.connecting = true
	e.connGen++
	gen := e.connGen
	go e.dialAndJoin(gen, e.workspaceID, e.spaceType)
	return nil
}

// dialAndJoin runs one full connection attempt: dial, then join the space
// within the same timeout budget.
func (e *Engine) dialAndJoin(gen int, workspaceID, spaceType string) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	sessionID, err := e.tracker.SessionID()
	if err != nil {
		e.connectFailed(gen, err, false)
		return
	}

	c, err := e.dial(ctx, e.serverURL, e.logger, e.handleServerMessage)
	if err != nil {
		e.connectFailed(gen, err, false)
		return
	}

	payload := map[string]interface{}{
		"spaceType":     spaceType,
		"spaceId":       workspaceID,
		"clientVersion": e.clientVersion,
		"sessionId":     sessionID,
	}
	if e.token != "" {
		payload["token"] = e.token
	}

	reply, err := c.Request(ctx, protocol.TypeSpaceJoin, payload)
	if err != nil {
		c.Close()
		var serr *protocol.ServerError
		e.connectFailed(gen, err, errors.As(err, &serr))
		return
	}

	e.joined(gen, c, protocol.ClientID(reply.Payload), sessionID)
}

func (e *Engine) connectFailed(gen int, err error, rejected bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || gen != e.connGen {
		return
	}
	e.connecting = false

	if rejected {
		// Explicit server rejection is terminal: no automatic retry, only a
		// manual reconnect, a workspace change or a network event escapes.
		e.logger.Warn("join rejected by server", slog.String("error", err.Error()))
		e.setModeLocked(ModeError)
		return
	}

	e.scheduleRetryLocked(err)
}

// scheduleRetryLocked books the next reconnect attempt, or settles in local
// mode when the budget is spent.
func (e *Engine) scheduleRetryLocked(cause error) {
	delay, ok := e.retry.Next()
	if !ok {
		e.logger.Warn("reconnect attempts exhausted, switching to local mode",
			slog.String("error", cause.Error()))
		e.setModeLocked(ModeLocal)
		return
	}

	e.logger.Info("scheduling reconnect",
		slog.Int("attempt", e.retry.Attempts()),
		slog.Duration("delay", delay),
		slog.String("error", cause.Error()))
	e.setModeLocked(ModeDetecting)
	e.cancelRetry = e.sched.Schedule(delay, e.retryFire)
}

func (e *Engine) retryFire() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cancelRetry = nil
	if e.closed || e.conn != nil || e.connecting || !e.online || e.workspaceID == "" {
		return
	}
	e.connectLocked()
}

func (e *Engine) joined(gen int, c conn, clientID, sessionID string) {
	e.mu.Lock()
	if e.closed || gen != e.connGen {
		e.mu.Unlock()
		c.Close()
		return
	}

	e.connecting = false
	e.conn = c
	e.clientID = clientID
	e.retry.Reset()
	e.setModeLocked(ModeCloud)
	workspaceID := e.workspaceID
	e.mu.Unlock()

	if err := e.st.SetLastWorkspaceID(workspaceID); err != nil {
		e.logger.Warn("failed to persist workspace id", slog.String("error", err.Error()))
	}

	e.logger.Info("joined space",
		slog.String("spaceId", workspaceID),
		slog.String("clientId", clientID))

	go e.watchConn(gen, c)

	// Announce local presence to in-process listeners and to peers.
	if err := e.tracker.EmitActivity(clientID, "local"); err != nil {
		e.logger.Warn("activity emit failed", slog.String("error", err.Error()))
	}
	e.notifyActivity(c, sessionID, clientID)

	go func() {
		if err := e.SyncOfflineOperations(context.Background()); err != nil {
			e.logger.Warn("offline reconciliation failed", slog.String("error", err.Error()))
		}
	}()
}

// watchConn turns an unexpected connection loss into a retry cycle. Clean
// local disconnects bump connGen first, so they never reach the retry path.
func (e *Engine) watchConn(gen int, c conn) {
	<-c.Done()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || gen != e.connGen || e.conn != c {
		return
	}

	err := c.Err()
	e.conn = nil
	e.clientID = ""
	e.logger.Warn("connection lost", slog.String("error", err.Error()))
	e.scheduleRetryLocked(err)
}

func (e *Engine) notifyActivity(c conn, sessionID, clientID string) {
	e.mu.Lock()
	spaceType, spaceID := e.spaceType, e.workspaceID
	e.mu.Unlock()

	payload := map[string]interface{}{
		"spaceType": spaceType,
		"spaceId":   spaceID,
		"sessionId": sessionID,
	}
	if clientID != "" {
		payload["clientId"] = clientID
	}
	if err := c.Notify(protocol.TypeAwarenessUpdate, payload); err != nil {
		e.logger.Debug("presence broadcast failed", slog.String("error", err.Error()))
	}
}

func (e *Engine) handleServerMessage(msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeAwarenessUpdate:
		sid, _ := msg.Payload["sessionId"].(string)
		cid, _ := msg.Payload["clientId"].(string)
		e.tracker.Upsert(sid, cid, "remote")
		if id := session.SanitizeSessionID(sid); id != "" {
			e.bus.Publish(events.Activity{SessionID: id, ClientID: cid, Source: "remote"})
		}
	default:
		e.logger.Debug("ignoring server message", slog.String("type", msg.Type))
	}
}

// Disconnect closes the connection intentionally and settles in local mode
// without scheduling a retry.
func (e *Engine) Disconnect() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.teardownLocked(ModeLocal)
}

// Reconnect cancels any pending backoff, disposes the current transport,
// restores the retry budget and starts a fresh attempt.
func (e *Engine) Reconnect() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrDisposed
	}
	e.teardownLocked(ModeDetecting)
	e.retry.Reset()
	return e.connectLocked()
}

// SetWorkspace switches to a different workspace: full teardown, then a
// fresh connect after a short settle delay. Pending pushes are rejected
// with ErrDisposed; offline-queued mutations stay put and replay when their
// own space reconnects.
func (e *Engine) SetWorkspace(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrDisposed
	}

	id = strings.TrimSpace(id)
	if id == e.workspaceID {
		return nil
	}

	e.teardownLocked(ModeDetecting)
	e.rejectPendingLocked(ErrDisposed)
	e.workspaceID = id
	e.retry.Reset()

	if id == "" {
		e.setModeLocked(ModeLocal)
		return nil
	}

	e.cancelSettle = e.sched.Schedule(settleDelay, e.settleFire)
	return nil
}

func (e *Engine) settleFire() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelSettle = nil
	if e.closed {
		return
	}
	e.connectLocked()
}

// SetNetworkAvailable feeds the platform's connectivity signal. Going
// offline forces local mode immediately; coming back online restores the
// retry budget and connects at once, bypassing backoff.
func (e *Engine) SetNetworkAvailable(online bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || e.online == online {
		return
	}
	e.online = online

	if !online {
		e.teardownLocked(ModeLocal)
		return
	}

	if e.conn == nil && e.workspaceID != "" {
		e.retry.Reset()
		e.connectLocked()
	}
}

// teardownLocked cancels timers, invalidates in-flight attempts and closes
// the transport.
func (e *Engine) teardownLocked(mode Mode) {
	e.connGen++
	e.connecting = false
	if e.cancelRetry != nil {
		e.cancelRetry()
		e.cancelRetry = nil
	}
	if e.cancelSettle != nil {
		e.cancelSettle()
		e.cancelSettle = nil
	}
	if e.conn != nil {
		e.conn.Close()
		e.conn = nil
	}
	e.clientID = ""
	e.setModeLocked(mode)
}

func (e *Engine) rejectPendingLocked(err error) {
	for _, p := range e.pending {
		p.done <- pushResult{err: err}
	}
	e.pending = nil
}

// Close disposes the engine: every timer is cancelled, the transport is
// closed and unresolved pushes are rejected with ErrDisposed. The store
// stays open for its owner.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.connGen++
	e.sched.Stop()
	if e.conn != nil {
		e.conn.Close()
		e.conn = nil
	}
	e.clientID = ""
	e.rejectPendingLocked(ErrDisposed)
	e.setModeLocked(ModeLocal)
	e.mu.Unlock()

	e.bus.Close()
	return nil
}

func (e *Engine) setModeLocked(m Mode) {
	if e.mode == m {
		return
	}
	e.mode = m
	for _, ch := range e.watchers {
		select {
		case ch <- m:
		default:
		}
	}
}

// Mode returns the current storage mode.
func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// IsConnected reports whether the engine is joined to a space.
func (e *Engine) IsConnected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode == ModeCloud && e.conn != nil
}

// LastSync returns when a mutation was last confirmed delivered. Zero until
// the first acknowledged push.
func (e *Engine) LastSync() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSync
}

// PendingOperations counts in-memory pushes awaiting an outcome.
func (e *Engine) PendingOperations() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// OfflineOperations counts durably queued mutations for the current space.
func (e *Engine) OfflineOperations() int {
	e.mu.Lock()
	spaceType, spaceID := e.spaceType, e.workspaceID
	e.mu.Unlock()

	if spaceID == "" {
		return 0
	}
	n, err := e.st.CountOffline(spaceType, spaceID)
	if err != nil {
		e.logger.Warn("offline count failed", slog.String("error", err.Error()))
		return 0
	}
	return n
}

// Sessions lists active sessions, local first.
func (e *Engine) Sessions() []session.Peer {
	return e.tracker.Sessions()
}

// Events exposes the engine-scoped activity bus for in-process collaborators.
func (e *Engine) Events() *events.Bus {
	return e.bus
}

// WorkspaceID returns the current workspace id.
func (e *Engine) WorkspaceID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.workspaceID
}

// ClientID returns the server-assigned client id, "" while not joined.
func (e *Engine) ClientID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clientID
}

// Watch returns a channel receiving the mode after every transition. A slow
// consumer misses intermediate transitions rather than block the engine.
func (e *Engine) Watch() <-chan Mode {
	ch := make(chan Mode, 8)
	e.mu.Lock()
	e.watchers = append(e.watchers, ch)
	ch <- e.mode
	e.mu.Unlock()
	return ch
}
