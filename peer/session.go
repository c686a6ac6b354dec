package peer

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vmoraru/btwire/wire"
)

// sendPollInterval is how long the send worker waits on its queue before
// re-checking for shutdown
const sendPollInterval = time.Minute

// ownedLoopShutdownWait bounds how long a session-owned event loop gets
// to drain after the close event
const ownedLoopShutdownWait = 5 * time.Second

// Session drives one peer connection: it mirrors both sides' protocol
// state, pumps incoming and outgoing messages on two background workers
// and fans events out to listeners through a single-threaded executor
type Session struct {
	conn *Conn

	local  *sideState
	remote *sideState

	out       *msgQueue
	listeners *listenerSet

	events     *eventLoop
	ownsEvents bool

	closeOnce sync.Once
	closedCh  chan struct{}
}

// NewSession starts a session over conn with its own event executor
// Sessions created through a Pool share the pool's executor instead
func NewSession(conn *Conn) *Session {
	return newSession(conn, newEventLoop(), true)
}

func newSession(conn *Conn, events *eventLoop, ownsEvents bool) *Session {
	s := &Session{
		conn:       conn,
		local:      newSideState(),
		remote:     newSideState(),
		out:        newMsgQueue(),
		listeners:  newListenerSet(),
		events:     events,
		ownsEvents: ownsEvents,
		closedCh:   make(chan struct{}),
	}
	go s.receiveLoop()
	go s.sendLoop()
	return s
}

// AddListener registers l for this session's events
func (s *Session) AddListener(l Listener) {
	s.listeners.add(l)
}

// RemoveListener drops l; events already dispatched may still reach it
func (s *Session) RemoveListener(l Listener) {
	s.listeners.remove(l)
}

// Local returns a snapshot of the state announced by this side
func (s *Session) Local() State {
	return s.local.snapshot()
}

// Remote returns a snapshot of the state announced by the other side
func (s *Session) Remote() State {
	return s.remote.snapshot()
}

// Send enqueues m for the send worker and returns whether it was
// accepted; it never blocks on the network
func (s *Session) Send(m wire.Message) bool {
	if m == nil || s.Closed() {
		return false
	}
	s.out.push(m)
	return true
}

// Closed reports whether Close has run
func (s *Session) Closed() bool {
	select {
	case <-s.closedCh:
		return true
	default:
		return false
	}
}

// Close shuts the session down: it closes the connection to fail pending
// reads and writes, wakes the send worker with a sentinel and fires a
// single close event
// Safe to call repeatedly and from any goroutine
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closedCh)
		s.conn.Close()
		// nil sentinel unblocks the send worker's queue poll
		s.out.push(nil)
		s.events.submit(func() {
			for _, l := range s.listeners.all() {
				l.Closed(s)
			}
			if s.ownsEvents {
				go s.events.shutdown(ownedLoopShutdownWait)
			}
		})
		log.WithField("remote", s.conn.RemoteAddr()).Debug("session closed")
	})
}

// receiveLoop reads the two handshake halves then regular messages and
// dispatches each as a receive event in wire order
func (s *Session) receiveLoop() {
	hs, err := s.conn.ReceiveHandshakeStart()
	if err != nil {
		s.closeOnError(err)
		return
	}
	s.dispatchReceived(hs)

	he, err := s.conn.ReceiveHandshakeEnd()
	if err != nil {
		s.closeOnError(err)
		return
	}
	s.dispatchReceived(he)

	for {
		m, err := s.conn.ReceiveMessage()
		if err != nil {
			s.closeOnError(err)
			return
		}
		s.dispatchReceived(m)
	}
}

func (s *Session) dispatchReceived(m wire.Message) {
	// the mutation commits on the event executor right before the
	// callbacks, so the state visible at callback entry is exactly this
	// message's effect plus all preceding ones
	s.events.submit(func() {
		s.remote.apply(m)
		for _, l := range s.listeners.all() {
			l.Received(s, m)
		}
	})
}

// sendLoop drains the output queue, committing the local mirror before
// each write and dispatching a send event after it
func (s *Session) sendLoop() {
	for {
		m, ok := s.out.poll(sendPollInterval)
		if !ok {
			// poll timeout; check for shutdown and keep waiting
			if s.Closed() {
				return
			}
			continue
		}
		if m == nil {
			// close sentinel
			return
		}
		s.local.apply(m)
		if err := s.conn.SendMessage(m); err != nil {
			s.closeOnError(err)
			return
		}
		s.dispatchSent(m)
	}
}

func (s *Session) dispatchSent(m wire.Message) {
	s.events.submit(func() {
		for _, l := range s.listeners.all() {
			l.Sent(s, m)
		}
	})
}

// closeOnError closes the session after a worker error
// Errors after Close are the expected wakeup of a blocked read or write
func (s *Session) closeOnError(err error) {
	if !s.Closed() {
		log.WithFields(log.Fields{
			"remote": s.conn.RemoteAddr(),
			"error":  err,
		}).Debug("session worker error")
	}
	s.Close()
}
