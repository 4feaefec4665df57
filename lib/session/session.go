// Package session keeps server-side sessions in memory and identifies them
// with a signed cookie. It is the host-side collaborator that instance
// state is stored in; sessions never leave the process.
package session

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pthm/snapoff/lib/encoding"
)

// DefaultCookie is the cookie name used when none is configured.
const DefaultCookie = "snapoff_session"

// Session is a concurrency-safe key/value bag.
type Session struct {
	id     string
	mu     sync.RWMutex
	values map[string]any
}

// New returns an empty session with the given id.
func New(id string) *Session {
	return &Session{id: id, values: make(map[string]any)}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Get returns the value stored under key.
func (s *Session) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key.
func (s *Session) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Delete removes key.
func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// Clear removes every value, including all component instances.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]any)
}

type ctxKey struct{}

// NewContext returns a copy of ctx carrying s.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session stored by the middleware, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxKey{}).(*Session)
	return s
}

type cookiePayload struct {
	ID     string `msgpack:"id"`
	Issued int64  `msgpack:"iat"`
}

type entry struct {
	session  *Session
	lastSeen time.Time
}

// Manager owns all live sessions.
type Manager struct {
	encoder *encoding.Encoder
	cookie  string
	ttl     time.Duration
	secure  bool
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

// Option configures a Manager.
type Option func(*Manager)

// WithCookieName sets the session cookie name.
func WithCookieName(name string) Option {
	return func(m *Manager) { m.cookie = name }
}

// WithTTL sets how long an idle session survives.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.ttl = ttl }
}

// WithSecure marks the cookie Secure.
func WithSecure(secure bool) Option {
	return func(m *Manager) { m.secure = secure }
}

// WithLogger sets the manager's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager returns a manager whose cookies are signed with secret.
func NewManager(secret []byte, opts ...Option) (*Manager, error) {
	enc, err := encoding.NewEncoder(secret)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		encoder:  enc,
		cookie:   DefaultCookie,
		ttl:      24 * time.Hour,
		logger:   slog.Default(),
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Load returns the live session named by the request cookie, if any.
func (m *Manager) Load(r *http.Request) (*Session, bool) {
	c, err := r.Cookie(m.cookie)
	if err != nil {
		return nil, false
	}
	var p cookiePayload
	if err := m.encoder.Decode(c.Value, false, &p); err != nil {
		m.logger.Debug("session cookie rejected", "error", err)
		return nil, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[p.ID]
	if !ok || m.expired(e) {
		return nil, false
	}
	e.lastSeen = m.now()
	return e.session, true
}

// Start returns the request's session, creating one and setting the cookie
// when there is none.
func (m *Manager) Start(w http.ResponseWriter, r *http.Request) (*Session, error) {
	if s, ok := m.Load(r); ok {
		return s, nil
	}

	s := New(uuid.NewString())
	value, err := m.encoder.Encode(cookiePayload{ID: s.ID(), Issued: m.now().Unix()}, false)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID()] = &entry{session: s, lastSeen: m.now()}
	m.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	m.logger.Debug("session started", "session", s.ID())
	return s, nil
}

// Middleware attaches a session to every request context.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := m.Start(w, r)
		if err != nil {
			m.logger.Error("start session", "error", err)
			http.Error(w, "session unavailable", http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), s)))
	})
}

// Destroy drops a session and everything stored in it.
func (m *Manager) Destroy(id string) {
	m.mu.Lock()
	e, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		e.session.Clear()
	}
}

// Sweep removes expired sessions and reports how many were dropped.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	var dead []*Session
	for id, e := range m.sessions {
		if m.expired(e) {
			dead = append(dead, e.session)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range dead {
		s.Clear()
	}
	if len(dead) > 0 {
		m.logger.Info("expired sessions removed", "count", len(dead))
	}
	return len(dead)
}

// Run sweeps every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) expired(e *entry) bool {
	return m.ttl > 0 && m.now().Sub(e.lastSeen) > m.ttl
}
