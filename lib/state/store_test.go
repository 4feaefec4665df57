package state

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/pthm/snapoff/lib/component"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mapSession struct {
	mu     sync.Mutex
	values map[string]any
}

func newMapSession() *mapSession { return &mapSession{values: map[string]any{}} }

func (s *mapSession) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *mapSession) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

type counter struct {
	Count int `msgpack:"count"`
}

func counterDef() *component.Definition {
	return &component.Definition{
		Name: "counter",
		Handler: component.Typed(
			func(p component.Props) counter { return counter{Count: p.Int("initialValue", 0)} },
			map[string]func(counter, component.Payload) counter{
				"increment": func(s counter, _ component.Payload) counter { s.Count++; return s },
			},
		),
	}
}

func TestCreateAndRead(t *testing.T) {
	store := NewStore()
	sess := newMapSession()

	id, initial, err := store.Create(sess, counterDef(), component.Props{"initialValue": 10})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.Equal(t, map[string]any{"count": int64(10)}, initial)

	rec, ok := store.Read(sess, id)
	require.True(t, ok)
	assert.Equal(t, "counter", rec.ComponentName)
	assert.Equal(t, initial, rec.State)
	assert.Equal(t, 1, store.Count(sess))
}

func TestIDsAreUnique(t *testing.T) {
	store := NewStore()
	sess := newMapSession()
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id, _, err := store.Create(sess, counterDef(), nil)
		require.NoError(t, err)
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestCreateRetriesOnCollision(t *testing.T) {
	ids := []string{"a", "a", "b"}
	store := NewStore(WithIDFunc(func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}))
	sess := newMapSession()

	first, _, err := store.Create(sess, counterDef(), nil)
	require.NoError(t, err)
	second, _, err := store.Create(sess, counterDef(), nil)
	require.NoError(t, err)

	assert.Equal(t, "a", first)
	assert.Equal(t, "b", second)
}

func TestReadReturnsCopies(t *testing.T) {
	store := NewStore()
	sess := newMapSession()
	id, _, err := store.Create(sess, counterDef(), component.Props{"initialValue": 1})
	require.NoError(t, err)

	rec, _ := store.Read(sess, id)
	rec.State.(map[string]any)["count"] = int64(99)

	again, _ := store.Read(sess, id)
	assert.Equal(t, map[string]any{"count": int64(1)}, again.State)
}

func TestUpdate(t *testing.T) {
	store := NewStore()
	sess := newMapSession()
	id, _, err := store.Create(sess, counterDef(), nil)
	require.NoError(t, err)

	require.NoError(t, store.Update(sess, id, counter{Count: 7}))
	rec, ok := store.Read(sess, id)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"count": int64(7)}, rec.State)
}

func TestUnknownInstance(t *testing.T) {
	store := NewStore()
	sess := newMapSession()

	_, ok := store.Read(sess, "missing")
	assert.False(t, ok)
	assert.NoError(t, store.Update(sess, "missing", counter{}))
	assert.Equal(t, 0, store.Count(sess))

	unlock, ok := store.Lock(sess, "missing")
	assert.False(t, ok)
	unlock()
}

func TestSessionsAreIsolated(t *testing.T) {
	store := NewStore()
	a, b := newMapSession(), newMapSession()

	id, _, err := store.Create(a, counterDef(), nil)
	require.NoError(t, err)

	_, ok := store.Read(b, id)
	assert.False(t, ok)
}

func TestNilSession(t *testing.T) {
	store := NewStore()
	_, _, err := store.Create(nil, counterDef(), nil)
	assert.ErrorIs(t, err, ErrNoSession)

	_, ok := store.Read(nil, "x")
	assert.False(t, ok)
}

func TestCreateStateFailure(t *testing.T) {
	def := &component.Definition{
		Name: "broken",
		Handler: component.Funcs{Create: func(component.Props) (component.State, error) {
			return nil, assert.AnError
		}},
	}
	_, _, err := NewStore().Create(newMapSession(), def, nil)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestLockSerializesUpdates(t *testing.T) {
	store := NewStore()
	sess := newMapSession()
	def := counterDef()
	id, _, err := store.Create(sess, def, nil)
	require.NoError(t, err)
	inc, _ := def.Handler.Event("increment")

	var g errgroup.Group
	for i := 0; i < 50; i++ {
		g.Go(func() error {
			unlock, ok := store.Lock(sess, id)
			if !ok {
				return assert.AnError
			}
			defer unlock()
			rec, _ := store.Read(sess, id)
			next, err := inc(rec.State, nil)
			if err != nil {
				return err
			}
			return store.Update(sess, id, next)
		})
	}
	require.NoError(t, g.Wait())

	rec, _ := store.Read(sess, id)
	assert.Equal(t, map[string]any{"count": int64(50)}, rec.State)
}
