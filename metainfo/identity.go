// Package metainfo models .torrent files: the identity hashes, the info
// section, and the mapping between pieces and files.
package metainfo

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// IDLen is the length of every BitTorrent identity: info hashes, peer
// IDs and DHT node IDs are all 20 bytes
const IDLen = 20

// ErrBadIDLen is returned when constructing an identity from a slice
// that is not exactly 20 bytes
var ErrBadIDLen = errors.New("metainfo: identity must be 20 bytes")

// upperhex digits for the cached hex form
const upperhex = "0123456789ABCDEF"

// unreserved reports whether a byte survives percent encoding untouched
func unreserved(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' || c == '-' || c == '_' || c == '.' || c == '~'
}

// urlEncode percent-encodes every reserved byte of b, byte by byte
// The 20 raw bytes go on the wire as is; no charset round trip
func urlEncode(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		if unreserved(c) {
			sb.WriteByte(c)
		} else {
			sb.WriteByte('%')
			sb.WriteByte(upperhex[c>>4])
			sb.WriteByte(upperhex[c&0x0f])
		}
	}
	return sb.String()
}

// Hash is a 20 byte SHA-1 digest with its hex and URL-encoded forms
// computed once at construction
type Hash struct {
	b   [IDLen]byte
	hex string
	url string
}

// NewHash builds a Hash from a 20 byte array
func NewHash(b [IDLen]byte) Hash {
	return Hash{
		b:   b,
		hex: strings.ToUpper(hex.EncodeToString(b[:])),
		url: urlEncode(b[:]),
	}
}

// HashFromBytes builds a Hash from a slice that must be 20 bytes long
func HashFromBytes(b []byte) (Hash, error) {
	if len(b) != IDLen {
		return Hash{}, errors.Wrapf(ErrBadIDLen, "got %d", len(b))
	}
	var arr [IDLen]byte
	copy(arr[:], b)
	return NewHash(arr), nil
}

// Bytes returns the raw digest
func (h Hash) Bytes() [IDLen]byte { return h.b }

// Hex returns the uppercase hexadecimal form
func (h Hash) Hex() string { return h.hex }

// URLEncoded returns the percent-encoded form used in announce URLs
func (h Hash) URLEncoded() string { return h.url }

func (h Hash) String() string { return h.hex }

// Equal reports whether two hashes hold the same digest
func (h Hash) Equal(o Hash) bool { return h.b == o.b }

// PeerID is the 20 byte identifier a client presents on handshake and
// in announces
type PeerID struct {
	b   [IDLen]byte
	url string
}

// NewPeerID generates a fresh peer ID: an Azureus style '-BW0001-'
// prefix followed by 12 random bytes
func NewPeerID() PeerID {
	id := [IDLen]byte{'-', 'B', 'W', '0', '0', '0', '1', '-'}
	u := uuid.New()
	copy(id[8:], u[:12])
	return PeerIDFrom(id)
}

// PeerIDFrom builds a PeerID from a 20 byte array
func PeerIDFrom(b [IDLen]byte) PeerID {
	return PeerID{b: b, url: urlEncode(b[:])}
}

// PeerIDFromBytes builds a PeerID from a slice that must be 20 bytes long
func PeerIDFromBytes(b []byte) (PeerID, error) {
	if len(b) != IDLen {
		return PeerID{}, errors.Wrapf(ErrBadIDLen, "got %d", len(b))
	}
	var arr [IDLen]byte
	copy(arr[:], b)
	return PeerIDFrom(arr), nil
}

// Bytes returns the raw identifier
func (p PeerID) Bytes() [IDLen]byte { return p.b }

// URLEncoded returns the percent-encoded form used in announce URLs
func (p PeerID) URLEncoded() string { return p.url }

// Equal reports whether two peer IDs are the same
func (p PeerID) Equal(o PeerID) bool { return p.b == o.b }

// NodeID identifies a node in the DHT
type NodeID [IDLen]byte

// NewNodeID generates a random node ID
func NewNodeID() NodeID {
	var id NodeID
	rand.Read(id[:])
	return id
}
