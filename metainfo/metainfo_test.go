package metainfo

import (
	"bytes"
	"crypto/sha1"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vmoraru/btwire/bencode"
)

// buildInfo assembles an info dictionary value for tests
func buildInfo(name string, pieceLength int64, pieces []byte, extra func(*bencode.Dict)) bencode.Value {
	d := bencode.NewDict().
		Set("name", bencode.String(name)).
		Set("piece length", bencode.Integer(pieceLength)).
		Set("pieces", bencode.Bytes(pieces))
	if extra != nil {
		extra(d)
	}
	return d.Value()
}

func buildTorrent(announce string, info bencode.Value, extra func(*bencode.Dict)) []byte {
	d := bencode.NewDict().
		Set("announce", bencode.String(announce)).
		Set("info", info)
	if extra != nil {
		extra(d)
	}
	return bencode.EncodeBytes(d.Value())
}

func singleFileTorrent(t *testing.T) []byte {
	t.Helper()
	pieces := bytes.Repeat([]byte("0123456789abcdefghij"), 3)
	info := buildInfo("content.bin", 16384, pieces, func(d *bencode.Dict) {
		d.Set("length", bencode.Integer(40000))
	})
	return buildTorrent("http://tracker.example.com/announce", info, nil)
}

func TestParseSingleFile(t *testing.T) {
	m, err := Parse(singleFileTorrent(t))
	require.NoError(t, err)
	require.Equal(t, "http://tracker.example.com/announce", m.Announce)
	require.Equal(t, "content.bin", m.Info.Name)
	require.False(t, m.Info.Multi())
	require.Equal(t, ".", m.Info.BaseDir())
	require.Equal(t, int64(40000), m.Info.TotalLength())
	require.Len(t, m.Info.Files, 1)
	require.Equal(t, []string{"content.bin"}, m.Info.Files[0].Path)

	require.Equal(t, 3, m.Info.NumPieces())
	require.Equal(t, int64(16384), m.Info.PieceSize(0))
	require.Equal(t, int64(16384), m.Info.PieceSize(1))
	require.Equal(t, int64(7232), m.Info.PieceSize(2))
}

func TestInfoHashMatchesSourceBytes(t *testing.T) {
	raw := singleFileTorrent(t)
	m, err := Parse(raw)
	require.NoError(t, err)

	// the info hash must equal a SHA-1 taken over the info subtree bytes
	// exactly as they appear in the source
	start := bytes.Index(raw, []byte("4:info")) + len("4:info")
	// the info dictionary runs to just before the final 'e' of the outer
	// dictionary since "info" sorts last in this fixture
	infoBytes := raw[start : len(raw)-1]
	want := sha1.Sum(infoBytes)
	require.Equal(t, want, m.InfoHash.Bytes())
}

func TestInfoHashStableAcrossParses(t *testing.T) {
	raw := singleFileTorrent(t)
	a, err := Parse(raw)
	require.NoError(t, err)
	b, err := Parse(append([]byte(nil), raw...))
	require.NoError(t, err)
	require.True(t, a.InfoHash.Equal(b.InfoHash))
	require.True(t, a.Equal(b))
}

func TestParseOptionalFields(t *testing.T) {
	pieces := bytes.Repeat([]byte("x"), 20)
	info := buildInfo("f", 4, pieces, func(d *bencode.Dict) {
		d.Set("length", bencode.Integer(4))
		d.Set("private", bencode.Integer(1))
	})
	raw := buildTorrent("http://t/a", info, func(d *bencode.Dict) {
		d.Set("announce-list", bencode.List(
			bencode.List(bencode.String("http://t/a"), bencode.String("udp://t:80/a")),
			bencode.List(bencode.String("http://backup/a")),
		))
		d.Set("comment", bencode.String("a comment"))
		d.Set("created by", bencode.String("btwire"))
		d.Set("creation date", bencode.Integer(1577836800))
	})
	m, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, [][]string{
		{"http://t/a", "udp://t:80/a"},
		{"http://backup/a"},
	}, m.AnnounceList)
	require.Equal(t, "a comment", m.Comment)
	require.Equal(t, "btwire", m.CreatedBy)
	require.Equal(t, int64(1577836800), m.CreationDate.Unix())
	require.True(t, m.Info.Private)
}

func TestParseInvalid(t *testing.T) {
	pieces := bytes.Repeat([]byte("x"), 20)
	cases := map[string][]byte{
		"not a dict": bencode.EncodeBytes(bencode.Integer(1)),
		"no announce": bencode.EncodeBytes(bencode.NewDict().
			Set("info", buildInfo("f", 4, pieces, func(d *bencode.Dict) {
				d.Set("length", bencode.Integer(4))
			})).Value()),
		"info not a dict": buildTorrent("http://t/a", bencode.Integer(0), nil),
		"bad pieces": buildTorrent("http://t/a",
			buildInfo("f", 4, []byte("short"), func(d *bencode.Dict) {
				d.Set("length", bencode.Integer(4))
			}), nil),
		"zero piece length": buildTorrent("http://t/a",
			buildInfo("f", 0, pieces, func(d *bencode.Dict) {
				d.Set("length", bencode.Integer(4))
			}), nil),
		"no shape": buildTorrent("http://t/a",
			buildInfo("f", 4, pieces, nil), nil),
		"both shapes": buildTorrent("http://t/a",
			buildInfo("f", 4, pieces, func(d *bencode.Dict) {
				d.Set("length", bencode.Integer(4))
				d.Set("files", bencode.List())
			}), nil),
	}
	for name, raw := range cases {
		_, err := Parse(raw)
		require.ErrorIs(t, err, ErrInvalidMetaInfo, name)
	}
}

func TestParseRejectsNonCanonicalInput(t *testing.T) {
	// out of order keys never reach the metainfo layer
	_, err := Parse([]byte("d4:info0:8:announce0:e"))
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInvalidMetaInfo)
}

func multiFileInfo() *Info {
	// three files over 10 byte pieces: 25 + 4 + 11 = 40 bytes, 4 pieces
	pieces := bytes.Repeat([]byte("0123456789abcdefghij"), 4)
	v := buildInfo("dir", 10, pieces, func(d *bencode.Dict) {
		d.Set("files", bencode.List(
			bencode.NewDict().
				Set("length", bencode.Integer(25)).
				Set("path", bencode.List(bencode.String("a"), bencode.String("one.bin"))).
				Value(),
			bencode.NewDict().
				Set("length", bencode.Integer(4)).
				Set("path", bencode.List(bencode.String("two.bin"))).
				Value(),
			bencode.NewDict().
				Set("length", bencode.Integer(11)).
				Set("path", bencode.List(bencode.String("three.bin"))).
				Value(),
		))
	})
	inf, err := infoFromValue(v)
	if err != nil {
		panic(err)
	}
	return inf
}

func TestMultiFileInfo(t *testing.T) {
	inf := multiFileInfo()
	require.True(t, inf.Multi())
	require.Equal(t, "dir", inf.BaseDir())
	require.Equal(t, int64(40), inf.TotalLength())
	require.Equal(t, 4, inf.NumPieces())
	require.Equal(t, int64(10), inf.PieceSize(3))
}

func TestFileMapSingleFile(t *testing.T) {
	m, err := Parse(singleFileTorrent(t))
	require.NoError(t, err)
	fm := m.FileMap()

	require.Len(t, fm.Entries(), 3)
	for p := 0; p < m.Info.NumPieces(); p++ {
		entries := fm.ByPiece(p)
		require.Len(t, entries, 1)
		require.Equal(t, int64(0), entries[0].PieceOffset)
		require.Equal(t, m.Info.PieceSize(p), entries[0].Length)
	}
	var total int64
	for _, e := range fm.ByFile(0) {
		require.Equal(t, total, e.FileOffset)
		total += e.Length
	}
	require.Equal(t, int64(40000), total)
}

func TestFileMapCoverage(t *testing.T) {
	inf := multiFileInfo()
	fm := BuildFileMap(inf)

	// every piece is covered exactly once from offset 0 to its size
	for p := 0; p < inf.NumPieces(); p++ {
		var off int64
		for _, e := range fm.ByPiece(p) {
			require.Equal(t, off, e.PieceOffset, "piece %d", p)
			off += e.Length
		}
		require.Equal(t, inf.PieceSize(p), off, "piece %d", p)
	}

	// every file is covered exactly once from offset 0 to its length
	for f := range inf.Files {
		var off int64
		for _, e := range fm.ByFile(f) {
			require.Equal(t, off, e.FileOffset, "file %d", f)
			off += e.Length
		}
		require.Equal(t, inf.Files[f].Length, off, "file %d", f)
	}

	// the whole torrent is covered exactly once
	var total int64
	for _, e := range fm.Entries() {
		total += e.Length
	}
	require.Equal(t, inf.TotalLength(), total)
}

func TestFileMapCrossesBoundaries(t *testing.T) {
	inf := multiFileInfo()
	fm := BuildFileMap(inf)

	// file one (25 bytes) spans pieces 0, 1 and 2
	entries := fm.ByFile(0)
	require.Len(t, entries, 3)
	require.Equal(t, 0, entries[0].PieceIndex)
	require.Equal(t, 1, entries[1].PieceIndex)
	require.Equal(t, 2, entries[2].PieceIndex)

	// piece 2 mixes the tail of file one with file two and part of three
	require.Len(t, fm.ByPiece(2), 3)
}

func TestHashForms(t *testing.T) {
	var raw [IDLen]byte
	copy(raw[:], []byte{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf1,
		0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef, 0x12, 0x34, 0x56, 0x78, 0x9a})
	h := NewHash(raw)
	require.Equal(t, "123456789ABCDEF123456789ABCDEF123456789A", h.Hex())
	require.Equal(t,
		"%124Vx%9A%BC%DE%F1%23Eg%89%AB%CD%EF%124Vx%9A",
		h.URLEncoded())
}

func TestHashFromBytesLength(t *testing.T) {
	_, err := HashFromBytes(make([]byte, 19))
	require.ErrorIs(t, err, ErrBadIDLen)
}

func TestNewPeerID(t *testing.T) {
	a := NewPeerID()
	b := NewPeerID()
	ab := a.Bytes()
	require.Equal(t, "-BW0001-", string(ab[:8]))
	require.False(t, a.Equal(b))
	require.NotEmpty(t, a.URLEncoded())
}
