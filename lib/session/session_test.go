package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionValues(t *testing.T) {
	s := New("abc")
	assert.Equal(t, "abc", s.ID())

	_, ok := s.Get("k")
	assert.False(t, ok)

	s.Set("k", 1)
	v, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	s.Delete("k")
	_, ok = s.Get("k")
	assert.False(t, ok)

	s.Set("a", 1)
	s.Clear()
	_, ok = s.Get("a")
	assert.False(t, ok)
}

func TestMiddlewareKeepsSessionAcrossRequests(t *testing.T) {
	m, err := NewManager([]byte("secret"))
	require.NoError(t, err)

	var seen []string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := FromContext(r.Context())
		require.NotNil(t, s)
		seen = append(seen, s.ID())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, DefaultCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Result().Cookies(), "existing session must not be reissued")

	require.Len(t, seen, 2)
	assert.Equal(t, seen[0], seen[1])
	assert.Equal(t, 1, m.Len())
}

func TestTamperedCookieStartsNewSession(t *testing.T) {
	m, err := NewManager([]byte("secret"))
	require.NoError(t, err)
	other, err := NewManager([]byte("other-secret"))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	_, err = other.Start(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(rec.Result().Cookies()[0])
	_, ok := m.Load(req)
	assert.False(t, ok)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookie, Value: "garbage"})
	_, ok = m.Load(req)
	assert.False(t, ok)
}

func TestSweepExpiresIdleSessions(t *testing.T) {
	now := time.Unix(1000, 0)
	m, err := NewManager([]byte("secret"), WithTTL(time.Minute), WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s, err := m.Start(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	s.Set("k", "v")
	cookie := rec.Result().Cookies()[0]

	now = now.Add(30 * time.Second)
	assert.Equal(t, 0, m.Sweep())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, m.Sweep())
	assert.Equal(t, 0, m.Len())
	_, ok := s.Get("k")
	assert.False(t, ok)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	_, ok = m.Load(req)
	assert.False(t, ok)
}

func TestDestroy(t *testing.T) {
	m, err := NewManager([]byte("secret"), WithCookieName("sid"))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s, err := m.Start(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, "sid", rec.Result().Cookies()[0].Name)

	m.Destroy(s.ID())
	assert.Equal(t, 0, m.Len())
}
