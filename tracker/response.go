package tracker

import (
	"encoding/binary"
	"net"
	"strconv"

	"github.com/pkg/errors"
	"github.com/vmoraru/btwire/bencode"
	"github.com/vmoraru/btwire/metainfo"
)

// ErrInvalidResponse is the cause of every announce response that does
// not follow the expected shape
var ErrInvalidResponse = errors.New("tracker: invalid response")

// compactPeerLen is the wire size of one IPv4 peer in the compact form
const compactPeerLen = net.IPv4len + 2

// compactPeer6Len is the wire size of one IPv6 peer in the compact form
const compactPeer6Len = net.IPv6len + 2

// Peer is one peer returned by a tracker
type Peer struct {
	IP   net.IP
	Port uint16
	// ID is present only in the dictionary response form and only when
	// the tracker includes it
	ID *metainfo.PeerID
}

// Addr returns the peer as a dialable host:port string
func (p Peer) Addr() string {
	return net.JoinHostPort(p.IP.String(), strconv.Itoa(int(p.Port)))
}

// Response is a parsed announce response
// A tracker-level failure carries only FailureReason
type Response struct {
	// Interval is the seconds to wait before the next regular announce
	Interval int
	// MinInterval is the optional hard lower bound
	MinInterval int
	// TrackerID is an opaque token to echo on the next announce
	TrackerID string
	// Complete and Incomplete count seeders and leechers
	Complete   int
	Incomplete int
	// Warning is an optional message to surface to the user
	Warning string
	// Peers holds the announced peers
	Peers []Peer
	// FailureReason is set instead of everything else when the tracker
	// rejects the announce
	FailureReason string
}

// Failed reports whether the tracker rejected the announce
func (r *Response) Failed() bool {
	return r.FailureReason != ""
}

// ResponseFromValue builds a Response from a decoded announce body
func ResponseFromValue(v bencode.Value) (*Response, error) {
	if !v.IsDict() {
		return nil, errors.Wrap(ErrInvalidResponse, "not a dictionary")
	}
	r := &Response{}

	if failure, ok := v.Get("failure reason"); ok {
		r.FailureReason = failure.Text()
		return r, nil
	}

	interval, ok := v.Get("interval")
	n, isInt := interval.Int()
	if !ok || !isInt {
		return nil, errors.Wrap(ErrInvalidResponse, "missing interval")
	}
	r.Interval = int(n)

	if minInterval, ok := v.Get("min interval"); ok {
		if n, isInt := minInterval.Int(); isInt {
			r.MinInterval = int(n)
		}
	}
	if id, ok := v.Get("tracker id"); ok {
		r.TrackerID = id.Text()
	}
	if complete, ok := v.Get("complete"); ok {
		if n, isInt := complete.Int(); isInt {
			r.Complete = int(n)
		}
	}
	if incomplete, ok := v.Get("incomplete"); ok {
		if n, isInt := incomplete.Int(); isInt {
			r.Incomplete = int(n)
		}
	}
	if warning, ok := v.Get("warning message"); ok {
		r.Warning = warning.Text()
	}

	peers, ok := v.Get("peers")
	if ok {
		parsed, err := peersFromValue(peers)
		if err != nil {
			return nil, err
		}
		r.Peers = parsed
	}
	// optional compact IPv6 peers (BEP 7)
	if peers6, ok := v.Get("peers6"); ok {
		if blob, isStr := peers6.Str(); isStr {
			parsed, err := compactPeers(blob, true)
			if err != nil {
				return nil, err
			}
			r.Peers = append(r.Peers, parsed...)
		}
	}
	return r, nil
}

// peersFromValue parses either response shape: the compact byte blob or
// the list of peer dictionaries
func peersFromValue(v bencode.Value) ([]Peer, error) {
	if blob, isStr := v.Str(); isStr {
		return compactPeers(blob, false)
	}
	elems, isList := v.Elems()
	if !isList {
		return nil, errors.Wrap(ErrInvalidResponse, "peers is neither string nor list")
	}
	peers := make([]Peer, 0, len(elems))
	for _, e := range elems {
		ipVal, ok := e.Get("ip")
		if !ok {
			return nil, errors.Wrap(ErrInvalidResponse, "peer missing ip")
		}
		ip := net.ParseIP(ipVal.Text())
		if ip == nil {
			return nil, errors.Wrapf(ErrInvalidResponse, "peer ip %q", ipVal.Text())
		}
		portVal, ok := e.Get("port")
		port, isInt := portVal.Int()
		if !ok || !isInt || port < 0 || port > 65535 {
			return nil, errors.Wrap(ErrInvalidResponse, "peer missing port")
		}
		p := Peer{IP: ip, Port: uint16(port)}
		if idVal, ok := e.Get("peer id"); ok {
			if raw, isStr := idVal.Str(); isStr {
				if id, err := metainfo.PeerIDFromBytes(raw); err == nil {
					p.ID = &id
				}
			}
		}
		peers = append(peers, p)
	}
	return peers, nil
}

// compactPeers parses the N*6 (or N*18 for IPv6) byte blob form
func compactPeers(blob []byte, ipv6 bool) ([]Peer, error) {
	size := compactPeerLen
	ipLen := net.IPv4len
	if ipv6 {
		size = compactPeer6Len
		ipLen = net.IPv6len
	}
	if len(blob)%size != 0 {
		return nil, errors.Wrapf(ErrInvalidResponse, "compact peers length %d", len(blob))
	}
	peers := make([]Peer, 0, len(blob)/size)
	for i := 0; i < len(blob); i += size {
		ip := make(net.IP, ipLen)
		copy(ip, blob[i:i+ipLen])
		peers = append(peers, Peer{
			IP:   ip,
			Port: binary.BigEndian.Uint16(blob[i+ipLen : i+size]),
		})
	}
	return peers, nil
}
