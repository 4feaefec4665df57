package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm/snapoff/lib/component"
	"github.com/pthm/snapoff/lib/config"
	"github.com/pthm/snapoff/lib/loader"
)

func testApp(t *testing.T) *app {
	t.Helper()
	cfg := config.Default()
	cfg.ComponentsPath = filepath.Join(t.TempDir(), "missing")
	cfg.Session.Secret = "test-secret"

	a, err := newApp(context.Background(), &cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	a.now = func() time.Time { return time.Date(2024, 1, 2, 12, 30, 0, 0, time.UTC) }
	t.Cleanup(a.hub.Close)
	return a
}

func get(t *testing.T, h http.Handler, target string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func post(t *testing.T, h http.Handler, target string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, nil)
	req.Header.Set("HX-Request", "true")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func instanceOf(t *testing.T, html, class string) string {
	t.Helper()
	m := regexp.MustCompile(`instance-scope="([^"]+)" class="` + class + `"`).FindStringSubmatch(html)
	require.NotNil(t, m, "no %s instance in %s", class, html)
	return m[1]
}

func TestHomePageAndEvents(t *testing.T) {
	a := testApp(t)
	h := a.routes()

	rec := get(t, h, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)

	page := rec.Body.String()
	assert.Contains(t, page, `<span class="count">10</span>`)
	assert.Contains(t, page, `ws-connect="/_snap/ws"`)
	assert.Contains(t, page, `id="server-messages"`)
	counter := instanceOf(t, page, "counter")
	toggle := instanceOf(t, page, "toggle")

	rec = post(t, h, "/_snap/event/"+counter+"/increment", cookies...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `<span class="count">11</span>`)
	assert.Contains(t, rec.Body.String(), "Incremented!")

	rec = post(t, h, "/_snap/event/"+toggle+"/flip", cookies...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Lights: on")
	assert.Contains(t, rec.Body.String(), "flipped 1 times")

	rec = post(t, h, "/_snap/event/"+counter+"/increment")
	assert.Equal(t, http.StatusNotFound, rec.Code, "a fresh session owns no instances")

	rec = post(t, h, "/_snap/event/"+counter+"/explode", cookies...)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBroadcastTime(t *testing.T) {
	a := testApp(t)
	srv := httptest.NewServer(a.routes())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/_snap/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return a.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Post(srv.URL+"/broadcast-time", "text/plain", nil)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Event broadcasted to 1 clients!", string(body))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), `id="server-messages"`)
	assert.Contains(t, string(msg), `ws-swap="message"`)
	assert.Contains(t, string(msg), "Server time: <strong>12:30:00</strong>")
}

func TestMetricsEndpoint(t *testing.T) {
	a := testApp(t)
	rec := get(t, a.routes(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	a.cfg.Metrics.Enabled = false
	rec = get(t, a.routes(), "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLab(t *testing.T) {
	a := testApp(t)
	h := a.labRoutes()

	rec := get(t, h, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `<a href="/component/counter">counter</a>`)
	assert.Contains(t, rec.Body.String(), `<a href="/component/toggle">toggle</a>`)

	rec = get(t, h, "/component/counter?initialValue=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<h1>Component: counter</h1>")
	assert.Contains(t, rec.Body.String(), `<span class="count">5</span>`)
	cookies := rec.Result().Cookies()
	counter := instanceOf(t, rec.Body.String(), "counter")

	rec = post(t, h, "/_snap/event/"+counter+"/increment", cookies...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `<span class="count">6</span>`)

	rec = get(t, h, "/component/toggle?label=Fan&on=true", cookies...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Fan: on")
	toggle := instanceOf(t, rec.Body.String(), "toggle")

	rec = post(t, h, "/_snap/event/"+toggle+"/flip", cookies...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Fan: off")

	rec = get(t, h, "/component/nope")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Error rendering component 'nope'")
}

func TestQueryProps(t *testing.T) {
	props := queryProps(url.Values{
		"n":     {"5"},
		"ratio": {"0.5"},
		"on":    {"true"},
		"name":  {"Ada"},
		"tags":  {"a", "7"},
	})
	assert.Equal(t, component.Props{
		"n":     int64(5),
		"ratio": 0.5,
		"on":    true,
		"name":  "Ada",
		"tags":  []any{"a", int64(7)},
	}, props)
}

func TestComponentSource(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := config.Default()
	cfg.ComponentsPath = "components"
	src, dir, err := componentSource(context.Background(), &cfg, logger)
	require.NoError(t, err)
	assert.Equal(t, "components", dir)
	assert.IsType(t, loader.FSSource{}, src)

	cfg.ComponentsPath = filepath.Join(t.TempDir(), "missing")
	src, dir, err = componentSource(context.Background(), &cfg, logger)
	require.NoError(t, err)
	assert.Empty(t, dir)
	names, err := src.(loader.Lister).List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"counter", "toggle"}, names)
}
