// Package wire implements the peer protocol wire format: the handshake
// and the fixed set of length-prefixed messages exchanged between peers.
package wire

import (
	"fmt"

	"github.com/vmoraru/btwire/metainfo"
)

// ID is the one byte identifier of a regular message
type ID uint8

// Message identifiers
const (
	IDChoke ID = iota
	IDUnchoke
	IDInterested
	IDNotInterested
	IDHave
	IDBitfield
	IDRequest
	IDPiece
	IDCancel
	IDPort
)

// Protocol is the protocol name announced in the handshake
const Protocol = "BitTorrent protocol"

// Reserved bits carried in the handshake
// They are transparent to this layer, the accessors exist for callers
// that negotiate extensions themselves
const (
	// reservedDHT marks DHT support in reserved[7] (BEP 5)
	reservedDHT = 0x01
	// reservedExtended marks the extension protocol in reserved[5] (BEP 10)
	reservedExtended = 0x10
)

// Message is one peer protocol message
// The concrete types below are the only implementations
type Message interface {
	message()
}

// HandshakeStart is the first half of the handshake: protocol name,
// reserved flags and info hash
// The peer ID follows separately so the receiver can decide whether to
// answer after seeing the info hash
type HandshakeStart struct {
	ProtocolName string
	Reserved     [8]byte
	InfoHash     metainfo.Hash
}

// SupportsDHT reports whether the reserved flags advertise DHT (BEP 5)
func (h HandshakeStart) SupportsDHT() bool {
	return h.Reserved[7]&reservedDHT != 0
}

// SupportsExtended reports whether the reserved flags advertise the
// extension protocol (BEP 10)
func (h HandshakeStart) SupportsExtended() bool {
	return h.Reserved[5]&reservedExtended != 0
}

// NewHandshakeStart builds a handshake opener with the standard protocol
// name and empty reserved flags
func NewHandshakeStart(infoHash metainfo.Hash) HandshakeStart {
	return HandshakeStart{ProtocolName: Protocol, InfoHash: infoHash}
}

// HandshakeEnd is the trailing 20 bytes of the handshake: the peer ID
type HandshakeEnd struct {
	PeerID metainfo.PeerID
}

// KeepAlive is a zero length frame with no semantics beyond preventing
// idle timeouts
type KeepAlive struct{}

// Choke tells the receiver its requests will not be served
type Choke struct{}

// Unchoke lifts a previous choke
type Unchoke struct{}

// Interested announces the sender wants pieces the receiver holds
type Interested struct{}

// NotInterested withdraws interest
type NotInterested struct{}

// Have announces possession of one piece
type Have struct {
	Index uint32
}

// Bitfield announces the full set of held pieces
type Bitfield struct {
	Bits BitSet
}

// Request asks for a block of a piece
type Request struct {
	Index  uint32
	Offset uint32
	Length uint32
}

// Piece carries a block of piece data
type Piece struct {
	Index  uint32
	Offset uint32
	Block  []byte
}

// Cancel withdraws a previous request
type Cancel struct {
	Index  uint32
	Offset uint32
	Length uint32
}

// Port announces the sender's DHT port (BEP 5)
type Port struct {
	Port uint16
}

func (HandshakeStart) message() {}
func (HandshakeEnd) message()   {}
func (KeepAlive) message()      {}
func (Choke) message()          {}
func (Unchoke) message()        {}
func (Interested) message()     {}
func (NotInterested) message()  {}
func (Have) message()           {}
func (Bitfield) message()       {}
func (Request) message()        {}
func (Piece) message()          {}
func (Cancel) message()         {}
func (Port) message()           {}

// Name returns a short name for logging
func Name(m Message) string {
	switch m := m.(type) {
	case HandshakeStart:
		return "handshake-start"
	case HandshakeEnd:
		return "handshake-end"
	case KeepAlive:
		return "keep-alive"
	case Choke:
		return "choke"
	case Unchoke:
		return "unchoke"
	case Interested:
		return "interested"
	case NotInterested:
		return "not-interested"
	case Have:
		return fmt.Sprintf("have(%d)", m.Index)
	case Bitfield:
		return "bitfield"
	case Request:
		return fmt.Sprintf("request(%d,%d,%d)", m.Index, m.Offset, m.Length)
	case Piece:
		return fmt.Sprintf("piece(%d,%d)", m.Index, m.Offset)
	case Cancel:
		return fmt.Sprintf("cancel(%d,%d,%d)", m.Index, m.Offset, m.Length)
	case Port:
		return fmt.Sprintf("port(%d)", m.Port)
	}
	return "unknown"
}
