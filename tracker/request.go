// Package tracker implements the announce side of the BitTorrent
// tracker protocols: HTTP(S) announces, the BEP 15 UDP exchange and
// BEP 12 tiered failover with a shared time budget.
package tracker

import (
	"net"

	"github.com/vmoraru/btwire/metainfo"
)

// Event is the announce event reported to the tracker
type Event int

// Announce events
const (
	EventNone Event = iota
	EventStarted
	EventStopped
	EventCompleted
)

// String returns the value used in HTTP announce queries
// A regular announce reports an empty event
func (e Event) String() string {
	switch e {
	case EventStarted:
		return "started"
	case EventStopped:
		return "stopped"
	case EventCompleted:
		return "completed"
	}
	return ""
}

// udpCode returns the numeric event of the UDP announce packet:
// started 1, completed 2, stopped 3, regular 0
func (e Event) udpCode() uint32 {
	switch e {
	case EventStarted:
		return 1
	case EventCompleted:
		return 2
	case EventStopped:
		return 3
	}
	return 0
}

// Request carries everything one announce needs
type Request struct {
	InfoHash metainfo.Hash
	PeerID   metainfo.PeerID
	// Port this client accepts peer connections on
	Port uint16
	// Transfer totals in bytes
	Uploaded   int64
	Downloaded int64
	Left       int64
	Event      Event
	// Compact asks for the 6 byte per peer response form; nil leaves the
	// parameter off the query entirely
	Compact *bool
	// WantPeerID asks the tracker to include peer IDs in the response
	WantPeerID bool
	// IP optionally overrides the address the tracker sees
	IP net.IP
	// NumWant is the number of peers asked for
	NumWant int
	// Key identifies this client across IP changes
	Key string
	// TrackerID echoes the token a previous response handed out
	TrackerID string
}
