package tracker

import (
	"net/url"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/vmoraru/btwire/metainfo"
)

// ErrUnsupportedScheme is returned for announce URLs this library does
// not speak
var ErrUnsupportedScheme = errors.New("tracker: unsupported announce scheme")

// Tracker is one announce target
// Announce returns nil whenever no well formed response arrived within
// the budget; it never blocks past it
type Tracker interface {
	Announce(req *Request, budget time.Duration) *Response
	URL() string
}

// New builds a tracker for a single announce URL, picking the protocol
// from the scheme
func New(announceURL string) (Tracker, error) {
	u, err := url.Parse(announceURL)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %q", announceURL)
	}
	switch u.Scheme {
	case "http", "https":
		return NewHTTPTracker(announceURL), nil
	case "udp", "udp4":
		return NewUDPTracker(announceURL, u.Host), nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedScheme, "%q", u.Scheme)
	}
}

// Backed is an ordered list of trackers tried in turn under one shared
// time budget
// On success the responding tracker moves to the front of the list, so
// later announces try it first (BEP 12)
type Backed struct {
	mu   sync.Mutex
	subs []Tracker
}

// NewBacked builds a backed tracker over the given sub-trackers
func NewBacked(subs ...Tracker) *Backed {
	return &Backed{subs: subs}
}

// URL returns the URL of the current head of the list
func (b *Backed) URL() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.subs) == 0 {
		return ""
	}
	return b.subs[0].URL()
}

// Announce walks the list, granting each sub-tracker an equal share of
// whatever budget remains, and stops on the first response
func (b *Backed) Announce(req *Request, budget time.Duration) *Response {
	b.mu.Lock()
	subs := append([]Tracker(nil), b.subs...)
	b.mu.Unlock()

	remaining := budget
	for i, sub := range subs {
		if remaining <= 0 {
			break
		}
		share := remaining / time.Duration(len(subs)-i)
		start := time.Now()
		resp := sub.Announce(req, share)
		remaining -= time.Since(start)
		if resp != nil {
			b.promote(sub)
			return resp
		}
		log.WithFields(log.Fields{
			"tracker":   sub.URL(),
			"remaining": remaining,
		}).Debug("sub-tracker failed, moving on")
	}
	return nil
}

// promote moves sub to the front of the list
func (b *Backed) promote(sub Tracker) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == sub {
			copy(b.subs[1:i+1], b.subs[:i])
			b.subs[0] = sub
			return
		}
	}
}

// ForTorrent builds the announce targets of a torrent: the single
// announce URL plus one backed tracker per announce-list tier
// URLs with unsupported schemes are skipped
func ForTorrent(m *metainfo.MetaInfo) []Tracker {
	var out []Tracker
	if t, err := New(m.Announce); err == nil {
		out = append(out, t)
	} else {
		log.WithFields(log.Fields{"url": m.Announce, "error": err}).Warn("skipping announce URL")
	}
	for _, tier := range m.AnnounceList {
		var subs []Tracker
		for _, u := range tier {
			t, err := New(u)
			if err != nil {
				log.WithFields(log.Fields{"url": u, "error": err}).Warn("skipping announce URL")
				continue
			}
			subs = append(subs, t)
		}
		if len(subs) > 0 {
			out = append(out, NewBacked(subs...))
		}
	}
	return out
}
