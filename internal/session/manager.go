package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"coldcall-platform/internal/calls"
	"coldcall-platform/internal/reporting"

	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("session: not found")
	ErrInvalidRequest = errors.New("session: invalid request")
)

// SnapshotStore keeps session snapshots outside the process so a restart or
// another replica can pick a session up. store.RedisSnapshots implements it.
type SnapshotStore interface {
	Save(ctx context.Context, st State) error
	Load(ctx context.Context, id string) (State, bool, error)
	Delete(ctx context.Context, id string) error
	BindProviderCall(ctx context.Context, providerCallID, sessionID string) error
	LookupProviderCall(ctx context.Context, providerCallID string) (string, bool, error)
}

type ManagerOptions struct {
	Session Options

	// Snapshots is optional; without it sessions live only in memory.
	Snapshots SnapshotStore

	Logger  *slog.Logger
	Metrics Recorder
	NewID   func() string
}

// Manager owns the live sessions of this process.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	// providerCalls maps a CallSid to its session; sessionCalls holds the
	// one CallSid each session is bound to.
	providerCalls map[string]string
	sessionCalls  map[string]string

	gw    Gateway
	stats *reporting.Service
	opts  ManagerOptions
	log   *slog.Logger
}

func NewManager(gw Gateway, opts ManagerOptions) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopRecorder{}
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Session.Logger == nil {
		opts.Session.Logger = opts.Logger
	}
	if opts.Session.Metrics == nil {
		opts.Session.Metrics = opts.Metrics
	}
	if opts.Session.NewID == nil {
		opts.Session.NewID = opts.NewID
	}
	return &Manager{
		sessions:      map[string]*Session{},
		providerCalls: map[string]string{},
		sessionCalls:  map[string]string{},
		gw:            gw,
		stats:         reporting.NewService(gw),
		opts:          opts,
		log:           opts.Logger,
	}
}

type StartRequest struct {
	WorkspaceID string
	UserID      string
	ListID      string
	ReadOnly    bool
}

// Start opens a session on a contact list, resuming at the saved cursor with
// stats rebuilt from call history.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*Session, error) {
	if strings.TrimSpace(req.WorkspaceID) == "" || strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.ListID) == "" {
		return nil, ErrInvalidRequest
	}

	list, err := m.gw.LoadContactList(ctx, req.WorkspaceID, req.ListID)
	if err != nil {
		return nil, err
	}
	stats, err := m.stats.ListStats(ctx, reporting.ListStatsRequest{WorkspaceID: req.WorkspaceID, ListID: req.ListID})
	if err != nil {
		return nil, err
	}
	progress, _, err := m.gw.GetProgress(ctx, req.WorkspaceID, req.ListID)
	if err != nil {
		return nil, err
	}

	opts := m.opts.Session
	opts.ReadOnly = req.ReadOnly
	s := New(Info{
		ID:          m.opts.NewID(),
		WorkspaceID: req.WorkspaceID,
		UserID:      req.UserID,
		List:        list,
		Cursor:      progress.CurrentIndex,
	}, stats, m.gw, opts)

	m.register(s)
	m.Persist(ctx, s)
	m.log.Info("session started", "session_id", s.ID(), "workspace_id", req.WorkspaceID, "list_id", req.ListID)
	return s, nil
}

func (m *Manager) register(s *Session) *Session {
	m.mu.Lock()
	if existing, ok := m.sessions[s.ID()]; ok {
		m.mu.Unlock()
		s.Dispose()
		return existing
	}
	m.sessions[s.ID()] = s
	if pc := s.State().ProviderCallID; pc != "" {
		m.bindLocked(pc, s.ID())
	}
	n := len(m.sessions)
	m.mu.Unlock()
	m.opts.Metrics.SessionsActive(n)
	return s
}

// Get returns a live session of the workspace, rehydrating it from its
// snapshot when this process does not hold it.
func (m *Manager) Get(ctx context.Context, workspaceID, id string) (*Session, error) {
	s, err := m.byID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.WorkspaceID() != workspaceID {
		return nil, ErrNotFound
	}
	return s, nil
}

func (m *Manager) byID(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}
	if m.opts.Snapshots == nil {
		return nil, ErrNotFound
	}
	st, found, err := m.opts.Snapshots.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	s, err = m.rehydrate(ctx, st)
	if err != nil {
		return nil, err
	}
	return m.register(s), nil
}

func (m *Manager) rehydrate(ctx context.Context, st State) (*Session, error) {
	list, err := m.gw.LoadContactList(ctx, st.WorkspaceID, st.ListID)
	if err != nil {
		return nil, err
	}
	total, err := m.gw.CountContacts(ctx, st.WorkspaceID, st.ListID)
	if err != nil {
		return nil, err
	}
	rows, err := m.gw.ListCallHistory(ctx, st.WorkspaceID, st.ListID)
	if err != nil {
		return nil, err
	}
	progress, _, err := m.gw.GetProgress(ctx, st.WorkspaceID, st.ListID)
	if err != nil {
		return nil, err
	}

	var current *calls.Record
	others := make([]calls.Record, 0, len(rows))
	for i, r := range rows {
		if st.CallID != "" && r.CallID == st.CallID {
			current = &rows[i]
			continue
		}
		others = append(others, r)
	}
	base := reporting.Rebuild(total, others, progress.Skipped)

	m.log.Info("session rehydrated", "session_id", st.ID, "list_id", st.ListID, "phase", string(st.Phase))
	return Restore(st, current, list, base, m.gw, m.opts.Session), nil
}

// Persist writes the session snapshot. Failures are logged only.
func (m *Manager) Persist(ctx context.Context, s *Session) {
	if m.opts.Snapshots == nil {
		return
	}
	if err := m.opts.Snapshots.Save(ctx, s.State()); err != nil {
		m.log.Warn("session snapshot save failed", "session_id", s.ID(), "err", err)
	}
}

// StartCall starts the call and indexes it by provider call ID for webhooks.
func (m *Manager) StartCall(ctx context.Context, s *Session, providerCallID string) error {
	if err := s.StartCall(providerCallID); err != nil {
		return err
	}
	if pc := strings.TrimSpace(providerCallID); pc != "" {
		m.mu.Lock()
		m.bindLocked(pc, s.ID())
		m.mu.Unlock()
		if m.opts.Snapshots != nil {
			if err := m.opts.Snapshots.BindProviderCall(ctx, pc, s.ID()); err != nil {
				m.log.Warn("provider call bind failed", "session_id", s.ID(), "err", err)
			}
		}
	}
	m.Persist(ctx, s)
	return nil
}

// bindLocked points pc at the session and drops the session's previous call,
// so each session keeps one entry however many contacts it dials.
func (m *Manager) bindLocked(pc, sessionID string) {
	if old, ok := m.sessionCalls[sessionID]; ok && old != pc {
		delete(m.providerCalls, old)
	}
	if prev, ok := m.providerCalls[pc]; ok && prev != sessionID {
		delete(m.sessionCalls, prev)
	}
	m.providerCalls[pc] = sessionID
	m.sessionCalls[sessionID] = pc
}

// EndProviderCall ends the call the provider reports as finished.
func (m *Manager) EndProviderCall(ctx context.Context, providerCallID string, durationSeconds int) (*Session, error) {
	m.mu.RLock()
	id, ok := m.providerCalls[providerCallID]
	m.mu.RUnlock()
	if !ok && m.opts.Snapshots != nil {
		var err error
		id, ok, err = m.opts.Snapshots.LookupProviderCall(ctx, providerCallID)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, ErrNotFound
	}

	s, err := m.byID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.EndProviderCall(providerCallID, durationSeconds); err != nil {
		return s, err
	}
	m.Persist(ctx, s)
	return s, nil
}

// Close ends a session for good: the draft is flushed, timers stop and the
// snapshot is dropped.
func (m *Manager) Close(ctx context.Context, workspaceID, id string) error {
	s, err := m.Get(ctx, workspaceID, id)
	if err != nil {
		return err
	}
	m.unregister(s)
	closeErr := s.Close(ctx)
	if m.opts.Snapshots != nil {
		if err := m.opts.Snapshots.Delete(ctx, id); err != nil {
			m.log.Warn("session snapshot delete failed", "session_id", id, "err", err)
		}
	}
	m.log.Info("session closed", "session_id", id)
	return closeErr
}

func (m *Manager) unregister(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.ID())
	if pc, ok := m.sessionCalls[s.ID()]; ok {
		delete(m.providerCalls, pc)
		delete(m.sessionCalls, s.ID())
	}
	n := len(m.sessions)
	m.mu.Unlock()
	m.opts.Metrics.SessionsActive(n)
}

// Shutdown flushes and releases every live session but keeps snapshots, so
// sessions resume after a restart.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.sessions = map[string]*Session{}
	m.providerCalls = map[string]string{}
	m.sessionCalls = map[string]string{}
	m.mu.Unlock()
	m.opts.Metrics.SessionsActive(0)

	var errs []error
	for _, s := range live {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		m.Persist(ctx, s)
	}
	return errors.Join(errs...)
}

// Len is the number of sessions held in memory.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
