package peer

import (
	"sync"
	"sync/atomic"

	"github.com/vmoraru/btwire/wire"
)

// Listener observes the life of a session
// Callbacks run on the session's event executor, one at a time per
// session, with the state mutation for a message already committed
type Listener interface {
	// Received fires for every message read off the wire, in wire order
	Received(s *Session, m wire.Message)
	// Sent fires for every message written, in enqueue order
	Sent(s *Session, m wire.Message)
	// Closed fires exactly once when the session closes
	Closed(s *Session)
}

// listenerSet is a copy-on-write set so firing events never locks out
// readers
type listenerSet struct {
	mu  sync.Mutex
	cur atomic.Value // []Listener
}

func newListenerSet() *listenerSet {
	s := &listenerSet{}
	s.cur.Store([]Listener(nil))
	return s
}

func (s *listenerSet) all() []Listener {
	return s.cur.Load().([]Listener)
}

func (s *listenerSet) add(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.cur.Load().([]Listener)
	next := make([]Listener, 0, len(old)+1)
	next = append(next, old...)
	next = append(next, l)
	s.cur.Store(next)
}

func (s *listenerSet) remove(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.cur.Load().([]Listener)
	next := make([]Listener, 0, len(old))
	for _, o := range old {
		if o != l {
			next = append(next, o)
		}
	}
	s.cur.Store(next)
}
