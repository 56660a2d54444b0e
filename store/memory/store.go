// Package memory provides an in-memory Store implementation for testing.
// This store is not suitable for production use - data is not persisted.
//
// Committed state is immutable. Atomic clones it, lets the callback mutate the
// clone and publishes the clone on success, so readers never block on writers
// and a failed callback leaves no trace.
package memory

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbaliyan/forum/store"
)

// Compile-time checks
var (
	_ store.Store = (*Store)(nil)
	_ store.Tx    = (*tx)(nil)
)

// Store implements store.Store with in-memory storage.
// Thread-safe for concurrent use. Not suitable for production.
type Store struct {
	reader

	current   atomic.Pointer[state]
	writeMu   sync.Mutex // serializes Atomic callers
	connected int32
}

// New creates a new in-memory store.
func New() *Store {
	s := &Store{}
	s.current.Store(newState())
	s.reader = reader{
		load:  s.current.Load,
		check: s.checkConnected,
	}
	return s
}

// Connect marks the store as connected.
func (s *Store) Connect(_ context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}
	return nil
}

// Close marks the store as disconnected.
func (s *Store) Close(_ context.Context) error {
	atomic.StoreInt32(&s.connected, 0)
	return nil
}

func (s *Store) checkConnected() error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	return nil
}

// Atomic runs fn against a private copy of the state and publishes the copy
// only if fn succeeds.
func (s *Store) Atomic(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	working := s.current.Load().clone()
	t := &tx{st: working}
	t.reader = reader{
		load:  func() *state { return working },
		check: func() error { return nil },
	}

	if err := fn(t); err != nil {
		return err
	}
	s.current.Store(working)
	return nil
}

// Activity returns the last recorded activity for a member.
func (s *Store) Activity(memberID int64) (action string, at time.Time, ok bool) {
	a, ok := s.current.Load().activity[memberID]
	return a.action, a.at, ok
}

// =============================================================================
// State
// =============================================================================

type readKey struct {
	member int64
	id     int64 // topic or board id
}

type choiceKey struct {
	poll   int64
	choice int
}

type voteKey struct {
	poll   int64
	member int64
	choice int
}

type activity struct {
	action string
	at     time.Time
}

type sequences struct {
	category int64
	board    int64
	topic    int64
	message  int64
	poll     int64
	report   int64
}

// state holds every table as a map of values so that clone is a set of map copies.
type state struct {
	categories map[int64]store.Category
	boards     map[int64]store.Board
	members    map[int64]store.Member
	topics     map[int64]store.Topic
	messages   map[int64]store.Message
	readLogs   map[readKey]int64
	boardMarks map[readKey]int64
	polls      map[int64]store.Poll
	choices    map[choiceKey]store.PollChoice
	votes      map[voteKey]struct{}
	reports    map[int64]store.Report
	activity   map[int64]activity
	seq        sequences
}

func newState() *state {
	return &state{
		categories: make(map[int64]store.Category),
		boards:     make(map[int64]store.Board),
		members:    make(map[int64]store.Member),
		topics:     make(map[int64]store.Topic),
		messages:   make(map[int64]store.Message),
		readLogs:   make(map[readKey]int64),
		boardMarks: make(map[readKey]int64),
		polls:      make(map[int64]store.Poll),
		choices:    make(map[choiceKey]store.PollChoice),
		votes:      make(map[voteKey]struct{}),
		reports:    make(map[int64]store.Report),
		activity:   make(map[int64]activity),
	}
}

func (st *state) clone() *state {
	return &state{
		categories: maps.Clone(st.categories),
		boards:     maps.Clone(st.boards),
		members:    maps.Clone(st.members),
		topics:     maps.Clone(st.topics),
		messages:   maps.Clone(st.messages),
		readLogs:   maps.Clone(st.readLogs),
		boardMarks: maps.Clone(st.boardMarks),
		polls:      maps.Clone(st.polls),
		choices:    maps.Clone(st.choices),
		votes:      maps.Clone(st.votes),
		reports:    maps.Clone(st.reports),
		activity:   maps.Clone(st.activity),
		seq:        st.seq,
	}
}
