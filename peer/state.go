package peer

import (
	"sync"

	"github.com/vmoraru/btwire/metainfo"
	"github.com/vmoraru/btwire/wire"
)

// State is a snapshot of one side of a session: what that side has
// announced through handshakes and protocol messages
type State struct {
	// PeerID is set once the side's handshake finished
	PeerID metainfo.PeerID
	// ProtocolName, Reserved and InfoHash are set once the side's
	// handshake started
	ProtocolName string
	Reserved     [8]byte
	InfoHash     metainfo.Hash
	// ClaimedPieces accumulates bitfield and have announcements
	ClaimedPieces wire.BitSet
	// Choking starts true, Interested starts false
	Choking    bool
	Interested bool

	HandshakeStarted  bool
	HandshakeFinished bool
}

// sideState is the mutable mirror for one side, updated only by the
// session's send worker (local side) and its event executor (remote side)
type sideState struct {
	mu sync.RWMutex
	s  State
}

func newSideState() *sideState {
	return &sideState{s: State{Choking: true}}
}

// snapshot returns a copy safe to hand to callers
func (ss *sideState) snapshot() State {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	out := ss.s
	out.ClaimedPieces = ss.s.ClaimedPieces.Clone()
	return out
}

// apply commits the state mutation for a message
// It runs before any listener observes the message
func (ss *sideState) apply(m wire.Message) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	switch m := m.(type) {
	case wire.HandshakeStart:
		ss.s.ProtocolName = m.ProtocolName
		ss.s.Reserved = m.Reserved
		ss.s.InfoHash = m.InfoHash
		ss.s.HandshakeStarted = true
	case wire.HandshakeEnd:
		ss.s.PeerID = m.PeerID
		ss.s.HandshakeFinished = true
	case wire.Choke:
		ss.s.Choking = true
	case wire.Unchoke:
		ss.s.Choking = false
	case wire.Interested:
		ss.s.Interested = true
	case wire.NotInterested:
		ss.s.Interested = false
	case wire.Have:
		ss.s.ClaimedPieces.Set(int(m.Index))
	case wire.Bitfield:
		ss.s.ClaimedPieces.Union(m.Bits)
	}
	// everything else passes through without touching the mirror
}
