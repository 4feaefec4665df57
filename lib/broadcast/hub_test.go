package broadcast

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/pthm/snapoff/lib/metrics"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func read(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	typ, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, typ)
	return string(data)
}

func TestBroadcastReachesOpenClients(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	hub := NewHub(WithMetrics(metrics.New(metrics.WithRegistry(prometheus.NewRegistry()))))
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	a, b, c := dial(t, srv), dial(t, srv), dial(t, srv)
	defer a.Close()
	defer b.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 3 }, 2*time.Second, 10*time.Millisecond)

	c.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	fragment := `<div id="server-messages">hello</div>`
	sent, err := hub.Broadcast(context.Background(), Message{HTML: fragment})
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	assert.Equal(t, fragment, read(t, a))
	assert.Equal(t, fragment, read(t, b))
}

func TestBroadcastRejectsEmptyFragment(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	sent, err := hub.Broadcast(context.Background(), Message{})
	assert.ErrorIs(t, err, ErrEmptyFragment)
	assert.Zero(t, sent)

	_, err = hub.BroadcastHTML(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyFragment)
}

func TestBroadcastWithoutClients(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	sent, err := hub.BroadcastHTML(context.Background(), "<p>x</p>")
	require.NoError(t, err)
	assert.Zero(t, sent)
}

func TestCloseDisconnectsClients(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Close()
	assert.Equal(t, 0, hub.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	_, err = hub.BroadcastHTML(context.Background(), "<p>x</p>")
	assert.ErrorIs(t, err, ErrClosed)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	assert.Error(t, err)
	if resp != nil {
		assert.Equal(t, 503, resp.StatusCode)
	}
}

func TestConnectDuringBroadcast(t *testing.T) {
	hub := NewHub(WithParallelism(4))
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	var g errgroup.Group
	g.Go(func() error {
		for i := 0; i < 50; i++ {
			if _, err := hub.BroadcastHTML(context.Background(), "<p>tick</p>"); err != nil {
				return err
			}
		}
		return nil
	})
	for i := 0; i < 5; i++ {
		conn := dial(t, srv)
		conn.Close()
	}
	require.NoError(t, g.Wait())
}
