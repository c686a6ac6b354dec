package tracker

import (
	"encoding/binary"
	"math/rand"
	"net"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// BEP 15 constants
const (
	// connectMagic opens every connect request
	connectMagic uint64 = 0x41727101980

	actionConnect  uint32 = 0
	actionAnnounce uint32 = 1

	connectReqLen  = 16
	connectRespLen = 16
	announceReqLen = 98
	announceHead   = 20
)

// defaultNumWant is used when the request does not bound the peer count
const defaultNumWant = 50

// UDPTracker announces over the BEP 15 UDP protocol, IPv4 only
type UDPTracker struct {
	url  string
	host string
}

// NewUDPTracker builds a tracker for a udp announce URL of the form
// udp://host:port/...
func NewUDPTracker(announceURL, host string) *UDPTracker {
	return &UDPTracker{url: announceURL, host: host}
}

// URL returns the announce URL
func (t *UDPTracker) URL() string { return t.url }

// Announce runs the four step connect and announce exchange on a fresh
// socket; any IO error, timeout or validation mismatch yields nil
func (t *UDPTracker) Announce(req *Request, budget time.Duration) *Response {
	addr, err := net.ResolveUDPAddr("udp4", t.host)
	if err != nil {
		log.WithFields(log.Fields{"tracker": t.url, "error": err}).Debug("udp resolve failed")
		return nil
	}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		log.WithFields(log.Fields{"tracker": t.url, "error": err}).Debug("udp dial failed")
		return nil
	}
	defer conn.Close()
	// reads never block past half the budget
	conn.SetReadDeadline(time.Now().Add(budget / 2))

	connID, ok := t.connect(conn)
	if !ok {
		return nil
	}
	return t.announce(conn, connID, req)
}

// connect performs steps one and two: the 16 byte connect request and
// its validated response carrying the connection ID
func (t *UDPTracker) connect(conn *net.UDPConn) (uint64, bool) {
	txid := rand.Uint32()
	pkt := make([]byte, connectReqLen)
	binary.BigEndian.PutUint64(pkt, connectMagic)
	binary.BigEndian.PutUint32(pkt[8:], actionConnect)
	binary.BigEndian.PutUint32(pkt[12:], txid)
	if _, err := conn.Write(pkt); err != nil {
		return 0, false
	}

	resp := make([]byte, connectRespLen)
	n, err := conn.Read(resp)
	if err != nil || n < connectRespLen {
		log.WithFields(log.Fields{"tracker": t.url, "error": err}).Debug("udp connect failed")
		return 0, false
	}
	if binary.BigEndian.Uint32(resp) != actionConnect {
		return 0, false
	}
	if binary.BigEndian.Uint32(resp[4:]) != txid {
		log.WithField("tracker", t.url).Debug("udp connect transaction mismatch")
		return 0, false
	}
	return binary.BigEndian.Uint64(resp[8:]), true
}

// announce performs steps three and four: the 98 byte announce request
// and the peer list response
func (t *UDPTracker) announce(conn *net.UDPConn, connID uint64, req *Request) *Response {
	txid := rand.Uint32()
	numWant := req.NumWant
	if numWant <= 0 {
		numWant = defaultNumWant
	}

	pkt := make([]byte, announceReqLen)
	binary.BigEndian.PutUint64(pkt, connID)
	binary.BigEndian.PutUint32(pkt[8:], actionAnnounce)
	binary.BigEndian.PutUint32(pkt[12:], txid)
	hash := req.InfoHash.Bytes()
	copy(pkt[16:], hash[:])
	id := req.PeerID.Bytes()
	copy(pkt[36:], id[:])
	binary.BigEndian.PutUint64(pkt[56:], uint64(req.Downloaded))
	binary.BigEndian.PutUint64(pkt[64:], uint64(req.Left))
	binary.BigEndian.PutUint64(pkt[72:], uint64(req.Uploaded))
	binary.BigEndian.PutUint32(pkt[80:], req.Event.udpCode())
	// the client address, or all ones when the tracker should use the
	// packet source
	if ip4 := req.IP.To4(); ip4 != nil {
		copy(pkt[84:], ip4)
	} else {
		binary.BigEndian.PutUint32(pkt[84:], 0xFFFFFFFF)
	}
	binary.BigEndian.PutUint32(pkt[88:], announceKey())
	binary.BigEndian.PutUint32(pkt[92:], uint32(numWant))
	binary.BigEndian.PutUint16(pkt[96:], req.Port)

	if _, err := conn.Write(pkt); err != nil {
		return nil
	}

	resp := make([]byte, announceHead+compactPeerLen*numWant)
	n, err := conn.Read(resp)
	if err != nil || n < announceHead {
		log.WithFields(log.Fields{"tracker": t.url, "error": err}).Debug("udp announce failed")
		return nil
	}
	resp = resp[:n]

	if binary.BigEndian.Uint32(resp) != actionAnnounce {
		log.WithField("tracker", t.url).Debug("udp announce action mismatch")
		return nil
	}
	if binary.BigEndian.Uint32(resp[4:]) != txid {
		log.WithField("tracker", t.url).Debug("udp announce transaction mismatch")
		return nil
	}

	out := &Response{
		Interval:   int(binary.BigEndian.Uint32(resp[8:])),
		Incomplete: int(binary.BigEndian.Uint32(resp[12:])),
		Complete:   int(binary.BigEndian.Uint32(resp[16:])),
	}
	for i := announceHead; i+compactPeerLen <= len(resp); i += compactPeerLen {
		ip := make(net.IP, net.IPv4len)
		copy(ip, resp[i:i+net.IPv4len])
		out.Peers = append(out.Peers, Peer{
			IP:   ip,
			Port: binary.BigEndian.Uint16(resp[i+net.IPv4len:]),
		})
	}
	return out
}

// announceKey derives the random per-announce key
// The key field is a fresh 32 bit value each time rather than a hash of
// the request's string key
func announceKey() uint32 {
	u := uuid.New()
	return binary.BigEndian.Uint32(u[:4])
}
