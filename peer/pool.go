package peer

import (
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// reapInterval is how often the pool sweeps out closed sessions
const reapInterval = 30 * time.Second

// poolShutdownWait bounds how long Close waits for the event executor to
// drain before abandoning it
const poolShutdownWait = 5 * time.Second

// Pool hosts many sessions on one shared event executor
// The pool owns the executor it creates; sessions attached to it never
// shut the shared executor down on their own close
type Pool struct {
	mu        sync.Mutex
	sessions  []*Session
	listeners []Listener
	closed    bool

	events     *eventLoop
	reaperQuit chan struct{}
	reaperDone chan struct{}
}

// NewPool creates a pool with a fresh event executor and starts the
// reaper
func NewPool() *Pool {
	p := &Pool{
		events:     newEventLoop(),
		reaperQuit: make(chan struct{}),
		reaperDone: make(chan struct{}),
	}
	go p.reap()
	return p
}

// NewSession attaches a new session over c to the pool: it shares the
// pool's event executor and starts with every currently registered
// listener
func (p *Pool) NewSession(c net.Conn) *Session {
	s := newSession(NewConn(c), p.events, false)
	p.mu.Lock()
	for _, l := range p.listeners {
		s.AddListener(l)
	}
	closed := p.closed
	if !closed {
		p.sessions = append(p.sessions, s)
	}
	p.mu.Unlock()
	if closed {
		// pool already shut down; the session dies immediately
		s.Close()
	}
	return s
}

// AddListener registers l on every current and future session
func (p *Pool) AddListener(l Listener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, l)
	for _, s := range p.sessions {
		s.AddListener(l)
	}
}

// RemoveListener drops l from the pool and every current session
func (p *Pool) RemoveListener(l Listener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, o := range p.listeners {
		if o == l {
			p.listeners = append(p.listeners[:i], p.listeners[i+1:]...)
			break
		}
	}
	for _, s := range p.sessions {
		s.RemoveListener(l)
	}
}

// Sessions returns the currently tracked sessions
func (p *Pool) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Session(nil), p.sessions...)
}

// Close closes every session, stops the reaper and shuts the event
// executor down, waiting a bounded time for it to drain
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	sessions := p.sessions
	p.sessions = nil
	p.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	close(p.reaperQuit)
	<-p.reaperDone
	p.events.shutdown(poolShutdownWait)
	log.WithField("sessions", len(sessions)).Debug("pool closed")
}

// reap periodically drops closed sessions from the pool
func (p *Pool) reap() {
	defer close(p.reaperDone)
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.sweep()
		case <-p.reaperQuit:
			return
		}
	}
}

func (p *Pool) sweep() {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.sessions[:0]
	for _, s := range p.sessions {
		if !s.Closed() {
			kept = append(kept, s)
		}
	}
	if reaped := len(p.sessions) - len(kept); reaped > 0 {
		log.WithField("reaped", reaped).Debug("reaped closed sessions")
	}
	p.sessions = kept
}
