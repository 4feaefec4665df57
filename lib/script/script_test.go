package script

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"

	"github.com/pthm/snapoff/lib/component"
)

const counterScript = `
def create_state(props):
    return {"count": props.get("initialValue", 0), "tags": []}

def increment(state, payload):
    return {"count": state["count"] + payload.get("by", 1), "tags": state["tags"]}

def tag(state, payload):
    state["tags"].append(payload["name"])
    return state

events = {"increment": increment, "tag": tag}
`

func TestLoadAndRun(t *testing.T) {
	h, err := Load("counter", []byte(counterScript), Options{})
	require.NoError(t, err)

	st, err := h.CreateState(component.Props{"initialValue": 10})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"count": int64(10), "tags": []any{}}, st)

	inc, ok := h.Event("increment")
	require.True(t, ok)
	next, err := inc(st, component.Payload{"by": int64(2)})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"count": int64(12), "tags": []any{}}, next)

	assert.Equal(t, []string{"increment", "tag"}, h.EventNames())
}

func TestTransitionDoesNotMutateInput(t *testing.T) {
	h, err := Load("counter", []byte(counterScript), Options{})
	require.NoError(t, err)

	in := map[string]any{"count": int64(1), "tags": []any{"a"}}
	tag, ok := h.Event("tag")
	require.True(t, ok)

	next, err := tag(in, component.Payload{"name": "b"})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, next.(map[string]any)["tags"])
	assert.Equal(t, []any{"a"}, in["tags"])
}

func TestUnknownEvent(t *testing.T) {
	h, err := Load("counter", []byte(counterScript), Options{})
	require.NoError(t, err)
	_, ok := h.Event("explode")
	assert.False(t, ok)
}

func TestEmptyScript(t *testing.T) {
	h, err := Load("static", []byte("# nothing here\n"), Options{})
	require.NoError(t, err)

	st, err := h.CreateState(nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, st)
	assert.Empty(t, h.EventNames())
}

func TestCamelCaseCreateState(t *testing.T) {
	h, err := Load("legacy", []byte("def createState(props):\n    return {\"ok\": True}\n"), Options{})
	require.NoError(t, err)
	st, err := h.CreateState(nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, st)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax", "def broken(:\n"},
		{"events not a dict", "events = [1]\n"},
		{"event not callable", "events = {\"go\": 1}\n"},
		{"event name not a string", "def f(s, p):\n    return s\nevents = {1: f}\n"},
		{"create_state not callable", "create_state = 3\n"},
		{"runtime failure", "x = 1 // 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load("bad", []byte(tt.src), Options{})
			assert.Error(t, err)
		})
	}
}

func TestStepBudget(t *testing.T) {
	src := `
def create_state(props):
    n = 0
    while True:
        n += 1
    return {}
`
	h, err := Load("spin", []byte(src), Options{MaxSteps: 10000})
	require.NoError(t, err)

	_, err = h.CreateState(nil)
	assert.Error(t, err)
}

func TestPrintGoesToLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	_, err := Load("noisy", []byte("print(\"hello from script\")\n"), Options{Logger: logger})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "hello from script")
	assert.Contains(t, buf.String(), "component=noisy")
}

func TestReturningFunctionFails(t *testing.T) {
	src := "def create_state(props):\n    return create_state\n"
	h, err := Load("weird", []byte(src), Options{})
	require.NoError(t, err)
	_, err = h.CreateState(nil)
	assert.Error(t, err)
}

func TestValueConversion(t *testing.T) {
	type item struct {
		Label  string `msgpack:"label"`
		Hidden string `msgpack:"-"`
		Count  uint8
	}

	v, err := ToValue(map[string]any{"item": item{Label: "x", Count: 2}, "list": []int{1, 2}})
	require.NoError(t, err)

	back, err := FromValue(v)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"item": map[string]any{"label": "x", "Count": int64(2)},
		"list": []any{int64(1), int64(2)},
	}, back)

	_, err = ToValue(make(chan int))
	assert.Error(t, err)

	d := starlark.NewDict(1)
	require.NoError(t, d.SetKey(starlark.MakeInt(1), starlark.True))
	_, err = FromValue(d)
	assert.Error(t, err)

	tuple, err := FromValue(starlark.Tuple{starlark.String("a"), starlark.None})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", nil}, tuple)
}
