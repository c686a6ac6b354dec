package tracker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vmoraru/btwire/metainfo"
)

func testRequest(t *testing.T) *Request {
	t.Helper()
	hash, err := metainfo.HashFromBytes([]byte("metadata for torrent"))
	require.NoError(t, err)
	id, err := metainfo.PeerIDFromBytes([]byte("abcdefghij0123456789"))
	require.NoError(t, err)
	return &Request{
		InfoHash: hash,
		PeerID:   id,
		Port:     6881,
		Left:     1 << 20,
		NumWant:  8,
		Key:      "k",
	}
}

func TestEventStrings(t *testing.T) {
	require.Equal(t, "started", EventStarted.String())
	require.Equal(t, "stopped", EventStopped.String())
	require.Equal(t, "completed", EventCompleted.String())
	require.Equal(t, "", EventNone.String())
}

func TestEventUDPCodes(t *testing.T) {
	require.Equal(t, uint32(0), EventNone.udpCode())
	require.Equal(t, uint32(1), EventStarted.udpCode())
	require.Equal(t, uint32(2), EventCompleted.udpCode())
	require.Equal(t, uint32(3), EventStopped.udpCode())
}

func TestNewSchemeDispatch(t *testing.T) {
	tr, err := New("http://tracker.example.com/announce")
	require.NoError(t, err)
	require.IsType(t, &HTTPTracker{}, tr)

	tr, err = New("https://tracker.example.com/announce")
	require.NoError(t, err)
	require.IsType(t, &HTTPTracker{}, tr)

	tr, err = New("udp://tracker.example.com:80/announce")
	require.NoError(t, err)
	require.IsType(t, &UDPTracker{}, tr)

	_, err = New("wss://tracker.example.com/announce")
	require.ErrorIs(t, err, ErrUnsupportedScheme)
}

// scripted is a Tracker returning canned responses and recording calls
type scripted struct {
	mu      sync.Mutex
	name    string
	resp    *Response
	delay   time.Duration
	budgets []time.Duration
}

func (s *scripted) URL() string { return s.name }

func (s *scripted) Announce(req *Request, budget time.Duration) *Response {
	s.mu.Lock()
	s.budgets = append(s.budgets, budget)
	s.mu.Unlock()
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.resp
}

func TestBackedStopsOnFirstSuccess(t *testing.T) {
	a := &scripted{name: "a"}
	b := &scripted{name: "b", resp: &Response{Interval: 60}}
	c := &scripted{name: "c", resp: &Response{Interval: 120}}
	backed := NewBacked(a, b, c)

	resp := backed.Announce(testRequest(t), time.Second)
	require.NotNil(t, resp)
	require.Equal(t, 60, resp.Interval)
	require.Len(t, a.budgets, 1)
	require.Len(t, b.budgets, 1)
	require.Empty(t, c.budgets)
}

func TestBackedPromotesOnSuccess(t *testing.T) {
	a := &scripted{name: "a"}
	b := &scripted{name: "b", resp: &Response{Interval: 60}}
	backed := NewBacked(a, b)

	require.Equal(t, "a", backed.URL())
	resp := backed.Announce(testRequest(t), time.Second)
	require.NotNil(t, resp)
	// the responding tracker moved to the front
	require.Equal(t, "b", backed.URL())

	// the next announce tries it first
	resp = backed.Announce(testRequest(t), time.Second)
	require.NotNil(t, resp)
	require.Len(t, b.budgets, 2)
	require.Len(t, a.budgets, 1)
}

func TestBackedSplitsBudget(t *testing.T) {
	a := &scripted{name: "a"}
	b := &scripted{name: "b"}
	backed := NewBacked(a, b)

	backed.Announce(testRequest(t), time.Second)
	require.Len(t, a.budgets, 1)
	require.Len(t, b.budgets, 1)
	// first call gets half the budget, the second whatever remains
	require.Equal(t, 500*time.Millisecond, a.budgets[0])
	require.Greater(t, b.budgets[0], 500*time.Millisecond)
	require.LessOrEqual(t, b.budgets[0], time.Second)
}

func TestBackedRespectsExhaustedBudget(t *testing.T) {
	a := &scripted{name: "a", delay: 50 * time.Millisecond}
	b := &scripted{name: "b"}
	backed := NewBacked(a, b)

	resp := backed.Announce(testRequest(t), 40*time.Millisecond)
	require.Nil(t, resp)
	require.Len(t, a.budgets, 1)
	// the first call ate the whole budget
	require.Empty(t, b.budgets)
}

func TestBackedAllFail(t *testing.T) {
	a := &scripted{name: "a"}
	b := &scripted{name: "b"}
	backed := NewBacked(a, b)
	require.Nil(t, backed.Announce(testRequest(t), time.Second))
}

func TestBackedConcurrentAnnounces(t *testing.T) {
	a := &scripted{name: "a", resp: &Response{Interval: 1}}
	b := &scripted{name: "b", resp: &Response{Interval: 2}}
	backed := NewBacked(a, b)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NotNil(t, backed.Announce(testRequest(t), time.Second))
		}()
	}
	wg.Wait()
	require.Equal(t, "a", backed.URL())
}

func TestForTorrent(t *testing.T) {
	m := &metainfo.MetaInfo{
		Announce: "http://primary.example.com/announce",
		AnnounceList: [][]string{
			{"udp://one.example.com:80/a", "http://two.example.com/a"},
			{"wss://bad.example.com/a"},
			{"https://three.example.com/a"},
		},
	}
	trackers := ForTorrent(m)
	// primary, first tier, third tier; second tier has no usable URL
	require.Len(t, trackers, 3)
	require.IsType(t, &HTTPTracker{}, trackers[0])
	require.IsType(t, &Backed{}, trackers[1])
	require.Equal(t, "udp://one.example.com:80/a", trackers[1].URL())
	require.IsType(t, &Backed{}, trackers[2])
}
