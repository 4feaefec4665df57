package encoding

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// Snapshot is the msgpack form of a committed state value.
//
// Stores keep snapshots instead of live values so that nothing handed out to
// templates or transition functions aliases the stored record.
type Snapshot []byte

// MarshalSnapshot encodes v as a Snapshot.
func MarshalSnapshot(v any) (Snapshot, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Snapshot(b), nil
}

// Value decodes the snapshot into plain Go values: map[string]any, []any,
// string, bool, int64, uint64, float64 or nil.
func (s Snapshot) Value() (any, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(s))
	dec.UseLooseInterfaceDecoding(true)
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// Decode unpacks the snapshot into a typed destination.
func (s Snapshot) Decode(v any) error {
	return msgpack.Unmarshal(s, v)
}

// Convert re-shapes v into T by passing it through the snapshot codec.
// Values that already have type T are returned unchanged.
func Convert[T any](v any) (T, error) {
	var out T
	if t, ok := v.(T); ok {
		return t, nil
	}
	snap, err := MarshalSnapshot(v)
	if err != nil {
		return out, err
	}
	err = snap.Decode(&out)
	return out, err
}
