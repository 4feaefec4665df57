// Package state keeps per-session component instance state.
//
// Every session owns one bucket, stored in the session under StorageKey and
// created lazily on first use. The bucket maps instance ids to the component
// that owns the instance and a msgpack snapshot of its current state. Reads
// always decode a fresh copy, so callers can never mutate stored state in
// place.
package state

import (
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/pthm/snapoff/lib/component"
	"github.com/pthm/snapoff/lib/encoding"
)

// StorageKey is the session key the instance bucket lives under.
const StorageKey = "_snap_states"

// ErrNoSession is returned when an operation needs a session and got nil.
var ErrNoSession = errors.New("state: no session")

// Session is the subset of a session the store needs.
type Session interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// Record is the stored view of one instance.
type Record struct {
	ComponentName string
	State         any
}

type entry struct {
	component string
	snapshot  encoding.Snapshot
	lock      sync.Mutex
}

// Bucket holds the instances of a single session.
type Bucket struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// Len returns the number of instances in the bucket.
func (b *Bucket) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Store creates, reads and replaces instance state.
type Store struct {
	mu    sync.Mutex
	newID func() string
}

// Option configures a Store.
type Option func(*Store)

// WithIDFunc overrides instance id generation.
func WithIDFunc(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// NewStore returns a Store that generates url-safe random ids.
func NewStore(opts ...Option) *Store {
	s := &Store{newID: NewID}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewID returns a random, url-safe instance id.
func NewID() string {
	id := uuid.New()
	return base64.RawURLEncoding.EncodeToString(id[:])
}

// Create runs the component's CreateState with props, stores the result
// under a fresh id and returns the id with the stored (decoded) state.
func (s *Store) Create(sess Session, def *component.Definition, props component.Props) (string, any, error) {
	if sess == nil {
		return "", nil, ErrNoSession
	}
	initial, err := def.Handler.CreateState(props)
	if err != nil {
		return "", nil, fmt.Errorf("state: create state for %q: %w", def.Name, err)
	}
	snap, err := encoding.MarshalSnapshot(initial)
	if err != nil {
		return "", nil, fmt.Errorf("state: snapshot %q: %w", def.Name, err)
	}
	stored, err := snap.Value()
	if err != nil {
		return "", nil, fmt.Errorf("state: snapshot %q: %w", def.Name, err)
	}

	b := s.bucket(sess)
	b.mu.Lock()
	defer b.mu.Unlock()

	id := s.newID()
	for b.entries[id] != nil {
		id = s.newID()
	}
	b.entries[id] = &entry{component: def.Name, snapshot: snap}
	return id, stored, nil
}

// Read returns the instance's component name and a fresh copy of its state.
func (s *Store) Read(sess Session, id string) (Record, bool) {
	e := s.lookup(sess, id)
	if e == nil {
		return Record{}, false
	}
	b := s.bucket(sess)
	b.mu.RLock()
	snap := e.snapshot
	b.mu.RUnlock()

	v, err := snap.Value()
	if err != nil {
		return Record{}, false
	}
	return Record{ComponentName: e.component, State: v}, true
}

// Update replaces the state of an existing instance. Unknown ids are ignored.
func (s *Store) Update(sess Session, id string, newState any) error {
	e := s.lookup(sess, id)
	if e == nil {
		return nil
	}
	snap, err := encoding.MarshalSnapshot(newState)
	if err != nil {
		return fmt.Errorf("state: snapshot %q: %w", e.component, err)
	}
	b := s.bucket(sess)
	b.mu.Lock()
	e.snapshot = snap
	b.mu.Unlock()
	return nil
}

// Lock serializes work on one instance. The returned func releases it.
// ok is false when the instance does not exist.
func (s *Store) Lock(sess Session, id string) (unlock func(), ok bool) {
	e := s.lookup(sess, id)
	if e == nil {
		return func() {}, false
	}
	e.lock.Lock()
	return e.lock.Unlock, true
}

// Count returns how many instances the session holds.
func (s *Store) Count(sess Session) int {
	if sess == nil {
		return 0
	}
	if b, ok := existing(sess); ok {
		return b.Len()
	}
	return 0
}

func (s *Store) lookup(sess Session, id string) *entry {
	if sess == nil || id == "" {
		return nil
	}
	b, ok := existing(sess)
	if !ok {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.entries[id]
}

// bucket returns the session's bucket, creating it on first use.
func (s *Store) bucket(sess Session) *Bucket {
	if b, ok := existing(sess); ok {
		return b
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := existing(sess); ok {
		return b
	}
	b := &Bucket{entries: make(map[string]*entry)}
	sess.Set(StorageKey, b)
	return b
}

func existing(sess Session) (*Bucket, bool) {
	v, ok := sess.Get(StorageKey)
	if !ok {
		return nil, false
	}
	b, ok := v.(*Bucket)
	return b, ok && b != nil
}
