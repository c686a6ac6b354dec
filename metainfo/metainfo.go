package metainfo

import (
	"crypto/sha1"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/vmoraru/btwire/bencode"
)

// MetaInfo is a parsed .torrent file
type MetaInfo struct {
	// Announce is the primary tracker URL
	Announce string
	// AnnounceList holds the BEP 12 tracker tiers, outermost first
	AnnounceList [][]string
	// CreationDate is the optional creation time
	CreationDate time.Time
	// Comment and CreatedBy are optional free text
	Comment   string
	CreatedBy string
	// Info is the parsed info section
	Info *Info
	// InfoHash identifies the torrent on trackers and peers
	InfoHash Hash

	fileMap *FileMap
}

// Load reads and parses a .torrent file from disk
func Load(path string) (*MetaInfo, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return Parse(raw)
}

// Parse parses the bencoded bytes of a .torrent file
func Parse(raw []byte) (*MetaInfo, error) {
	v, err := bencode.DecodeBytes(raw)
	if err != nil {
		return nil, errors.Wrap(err, "decoding torrent")
	}
	return FromValue(v)
}

// FromValue builds a MetaInfo from an already decoded bencode value
//
// The decoder only accepts canonically ordered dictionaries, so the info
// hash is computed by re-encoding the parsed info subtree into a SHA-1
// digest; the result matches a hash taken over the source bytes
func FromValue(v bencode.Value) (*MetaInfo, error) {
	if !v.IsDict() {
		return nil, errors.Wrap(ErrInvalidMetaInfo, "torrent is not a dictionary")
	}
	m := &MetaInfo{}

	announce, ok := v.Get("announce")
	if !ok || announce.Kind() != bencode.KindString {
		return nil, errors.Wrap(ErrInvalidMetaInfo, "missing announce")
	}
	m.Announce = announce.Text()

	if list, ok := v.Get("announce-list"); ok {
		tiers, isList := list.Elems()
		if !isList {
			return nil, errors.Wrap(ErrInvalidMetaInfo, "announce-list is not a list")
		}
		for _, tier := range tiers {
			urls, isList := tier.Elems()
			if !isList {
				continue
			}
			var set []string
			for _, u := range urls {
				if s, isStr := u.Str(); isStr {
					set = append(set, string(s))
				}
			}
			if len(set) > 0 {
				m.AnnounceList = append(m.AnnounceList, set)
			}
		}
	}

	if date, ok := v.Get("creation date"); ok {
		if secs, isInt := date.Int(); isInt {
			m.CreationDate = time.Unix(secs, 0)
		}
	}
	if comment, ok := v.Get("comment"); ok {
		m.Comment = comment.Text()
	}
	if by, ok := v.Get("created by"); ok {
		m.CreatedBy = by.Text()
	}

	infoVal, ok := v.Get("info")
	if !ok {
		return nil, errors.Wrap(ErrInvalidMetaInfo, "missing info")
	}
	inf, err := infoFromValue(infoVal)
	if err != nil {
		return nil, err
	}
	m.Info = inf

	// hash the canonical re-encoding of the info subtree without
	// materialising it
	digest := sha1.New()
	if err := bencode.Encode(digest, infoVal); err != nil {
		return nil, errors.Wrap(err, "hashing info")
	}
	m.InfoHash, _ = HashFromBytes(digest.Sum(nil))

	return m, nil
}

// FileMap returns the piece to file mapping, building it on first use
func (m *MetaInfo) FileMap() *FileMap {
	if m.fileMap == nil {
		m.fileMap = BuildFileMap(m.Info)
	}
	return m.fileMap
}

// Equal reports whether two metainfos describe the same torrent
func (m *MetaInfo) Equal(o *MetaInfo) bool {
	return m.InfoHash.Equal(o.InfoHash)
}
