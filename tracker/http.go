package tracker

import (
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vmoraru/btwire/bencode"
)

// maxResponseLen bounds how much of an announce body is read
const maxResponseLen = 1 << 20

// HTTPTracker announces over HTTP or HTTPS
type HTTPTracker struct {
	url string
}

// NewHTTPTracker builds a tracker for an http(s) announce URL
func NewHTTPTracker(announceURL string) *HTTPTracker {
	return &HTTPTracker{url: announceURL}
}

// URL returns the announce URL
func (t *HTTPTracker) URL() string { return t.url }

// Announce performs one announce within the given time budget
// Any network, timeout or parse problem yields nil; only a well formed
// response comes back, including tracker-reported failures
func (t *HTTPTracker) Announce(req *Request, budget time.Duration) *Response {
	dialer := &net.Dialer{Timeout: budget}
	client := &http.Client{
		Timeout: budget,
		Transport: &http.Transport{
			DialContext:           dialer.DialContext,
			ResponseHeaderTimeout: budget / 5,
		},
	}
	defer client.CloseIdleConnections()

	res, err := client.Get(t.announceURL(req))
	if err != nil {
		log.WithFields(log.Fields{
			"tracker": t.url,
			"error":   err,
		}).Debug("http announce failed")
		return nil
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		log.WithFields(log.Fields{
			"tracker": t.url,
			"status":  res.Status,
		}).Debug("http announce rejected")
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseLen))
	if err != nil {
		return nil
	}
	v, err := bencode.DecodeBytes(body)
	if err != nil {
		log.WithFields(log.Fields{
			"tracker": t.url,
			"error":   err,
		}).Debug("http announce body undecodable")
		return nil
	}
	resp, err := ResponseFromValue(v)
	if err != nil {
		return nil
	}
	if resp.Failed() {
		log.WithFields(log.Fields{
			"tracker": t.url,
			"reason":  resp.FailureReason,
		}).Warn("tracker reported failure")
	}
	return resp
}

// announceURL assembles the full query
// info_hash and peer_id use byte-exact percent encoding of their raw 20
// bytes, never a charset round trip
func (t *HTTPTracker) announceURL(req *Request) string {
	var sb strings.Builder
	sb.WriteString(t.url)
	if strings.ContainsRune(t.url, '?') {
		sb.WriteByte('&')
	} else {
		sb.WriteByte('?')
	}
	sb.WriteString("info_hash=")
	sb.WriteString(req.InfoHash.URLEncoded())
	sb.WriteString("&peer_id=")
	sb.WriteString(req.PeerID.URLEncoded())
	sb.WriteString("&port=")
	sb.WriteString(strconv.Itoa(int(req.Port)))
	sb.WriteString("&uploaded=")
	sb.WriteString(strconv.FormatInt(req.Uploaded, 10))
	sb.WriteString("&downloaded=")
	sb.WriteString(strconv.FormatInt(req.Downloaded, 10))
	sb.WriteString("&left=")
	sb.WriteString(strconv.FormatInt(req.Left, 10))
	if req.Compact != nil {
		sb.WriteString("&compact=")
		if *req.Compact {
			sb.WriteString("1")
		} else {
			sb.WriteString("0")
		}
	}
	sb.WriteString("&no_peer_id=")
	if req.WantPeerID {
		sb.WriteString("0")
	} else {
		sb.WriteString("1")
	}
	sb.WriteString("&event=")
	sb.WriteString(req.Event.String())
	if req.IP != nil {
		sb.WriteString("&ip=")
		sb.WriteString(req.IP.String())
	}
	sb.WriteString("&numwant=")
	sb.WriteString(strconv.Itoa(req.NumWant))
	sb.WriteString("&key=")
	sb.WriteString(req.Key)
	if req.TrackerID != "" {
		sb.WriteString("&trackerid=")
		sb.WriteString(req.TrackerID)
	}
	return sb.String()
}
