package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(WithRegistry(reg), WithNamespace("test"))

	r.Event("counter", "increment", "200", 10*time.Millisecond)
	r.Event("counter", "increment", "200", 10*time.Millisecond)
	r.Render("counter", "initial", "ok")
	r.ComponentLoad("hit")
	r.InstanceCreated("counter")
	r.Broadcast(2)
	r.ClientConnected()
	r.ClientConnected()
	r.ClientDisconnected()

	assert.Equal(t, 2.0, testutil.ToFloat64(r.eventsTotal.WithLabelValues("counter", "increment", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.rendersTotal.WithLabelValues("counter", "initial", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.loadsTotal.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.instancesCreated.WithLabelValues("counter")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.broadcastsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.broadcastFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.wsClients))

	families, err := reg.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
	assert.Equal(t, "test_broadcast_failures_total", families[0].GetName())
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.Event("a", "b", "200", time.Second)
		r.Render("a", "initial", "ok")
		r.ComponentLoad("miss")
		r.InstanceCreated("a")
		r.Broadcast(0)
		r.ClientConnected()
		r.ClientDisconnected()
	})
}
