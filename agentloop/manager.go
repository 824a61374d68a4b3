package agentloop

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/martinemde/vox/workspace"
)

// Manager opens one Session per activation, each in a fresh workspace
// under a shared base directory.
type Manager struct {
	base           string
	profile        ProviderProfile
	sessionOpts    []SessionOption
	commandTimeout time.Duration
	lookup         *LookupOptions
	logger         *zap.Logger

	sessions map[string]*Session
	mu       sync.RWMutex
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithSessionOptions applies opts to every session the manager opens.
func WithSessionOptions(opts ...SessionOption) ManagerOption {
	return func(m *Manager) { m.sessionOpts = append(m.sessionOpts, opts...) }
}

// WithCommandTimeout bounds the npm tools of every session.
func WithCommandTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.commandTimeout = d }
}

// WithLookupOptions configures the network lookup tools.
func WithLookupOptions(opts LookupOptions) ManagerOption {
	return func(m *Manager) { m.lookup = &opts }
}

// WithoutLookupTools leaves getLocation and getCurrentWeather unregistered.
func WithoutLookupTools() ManagerOption {
	return func(m *Manager) { m.lookup = nil }
}

// WithManagerLogger sets the logger for the manager, its sessions and
// their workspaces.
func WithManagerLogger(logger *zap.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a manager that places workspaces under base.
func NewManager(base string, profile ProviderProfile, opts ...ManagerOption) *Manager {
	m := &Manager{
		base:     base,
		profile:  profile,
		lookup:   &LookupOptions{},
		logger:   zap.NewNop(),
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open creates a workspace and a session bound to it. A workspace that
// cannot be created is returned as *workspace.CreationError.
func (m *Manager) Open(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sb, err := workspace.Create(m.base, workspace.WithLogger(m.logger))
	if err != nil {
		m.logger.Error("workspace creation failed", zap.String("base", m.base), zap.Error(err))
		return nil, err
	}

	reg := NewToolRegistry()
	if err := RegisterWorkspaceTools(reg, sb, m.commandTimeout); err != nil {
		return nil, fmt.Errorf("register workspace tools: %w", err)
	}
	if m.lookup != nil {
		if err := RegisterLookupTools(reg, *m.lookup); err != nil {
			return nil, fmt.Errorf("register lookup tools: %w", err)
		}
	}

	opts := append([]SessionOption{WithSessionLogger(m.logger)}, m.sessionOpts...)
	s := NewSession(m.profile, sb, reg, opts...)

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()
	return s, nil
}

// Run submits text to the session with the given id.
func (m *Manager) Run(ctx context.Context, id, text string) (string, error) {
	s, err := m.Get(id)
	if err != nil {
		return "", err
	}
	return s.Run(ctx, text)
}

// Get returns an open session by id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close closes and forgets one session.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.Close()
	return nil
}

// CloseAll closes every open session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
