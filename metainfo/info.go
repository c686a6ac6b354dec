package metainfo

import (
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/vmoraru/btwire/bencode"
)

// ErrInvalidMetaInfo is the cause of every metainfo validation failure:
// missing or mistyped required fields, bad piece hashes, bad lengths
var ErrInvalidMetaInfo = errors.New("metainfo: invalid metainfo")

// FileEntry is one file of the torrent content
type FileEntry struct {
	// Length of the file in bytes
	Length int64
	// Path components, relative to the base directory
	Path []string
}

// Info is the parsed info section of a torrent
type Info struct {
	// Name is the advised directory name (multi file) or file name
	// (single file)
	Name string
	// PieceLength is the nominal piece size in bytes
	PieceLength int64
	// Pieces holds one SHA-1 hash per piece
	Pieces []Hash
	// Private is the optional BEP 27 flag
	Private bool
	// Files lists the content files in torrent order
	// A single file torrent has exactly one entry with path [Name]
	Files []FileEntry

	multi       bool
	totalLength int64
}

// infoFromValue extracts and validates the info dictionary
func infoFromValue(v bencode.Value) (*Info, error) {
	if !v.IsDict() {
		return nil, errors.Wrap(ErrInvalidMetaInfo, "info is not a dictionary")
	}
	inf := &Info{}

	name, ok := v.Get("name")
	if !ok || name.Kind() != bencode.KindString {
		return nil, errors.Wrap(ErrInvalidMetaInfo, "missing name")
	}
	inf.Name = name.Text()

	pieceLen, ok := v.Get("piece length")
	n, isInt := pieceLen.Int()
	if !ok || !isInt {
		return nil, errors.Wrap(ErrInvalidMetaInfo, "missing piece length")
	}
	if n <= 0 {
		return nil, errors.Wrapf(ErrInvalidMetaInfo, "piece length %d", n)
	}
	inf.PieceLength = n

	piecesVal, ok := v.Get("pieces")
	raw, isStr := piecesVal.Str()
	if !ok || !isStr {
		return nil, errors.Wrap(ErrInvalidMetaInfo, "missing pieces")
	}
	if len(raw)%IDLen != 0 {
		return nil, errors.Wrapf(ErrInvalidMetaInfo, "pieces length %d not a multiple of %d", len(raw), IDLen)
	}
	inf.Pieces = make([]Hash, 0, len(raw)/IDLen)
	for i := 0; i < len(raw); i += IDLen {
		h, _ := HashFromBytes(raw[i : i+IDLen])
		inf.Pieces = append(inf.Pieces, h)
	}

	if private, ok := v.Get("private"); ok {
		if p, isInt := private.Int(); isInt && p == 1 {
			inf.Private = true
		}
	}

	length, hasLength := v.Get("length")
	files, hasFiles := v.Get("files")
	switch {
	case hasLength && hasFiles:
		return nil, errors.Wrap(ErrInvalidMetaInfo, "both length and files present")
	case hasLength:
		n, isInt := length.Int()
		if !isInt || n < 0 {
			return nil, errors.Wrap(ErrInvalidMetaInfo, "bad length")
		}
		inf.Files = []FileEntry{{Length: n, Path: []string{inf.Name}}}
	case hasFiles:
		inf.multi = true
		elems, isList := files.Elems()
		if !isList || len(elems) == 0 {
			return nil, errors.Wrap(ErrInvalidMetaInfo, "bad files list")
		}
		for _, f := range elems {
			entry, err := fileEntryFromValue(f)
			if err != nil {
				return nil, err
			}
			inf.Files = append(inf.Files, entry)
		}
	default:
		return nil, errors.Wrap(ErrInvalidMetaInfo, "neither length nor files present")
	}

	for _, f := range inf.Files {
		inf.totalLength += f.Length
	}
	return inf, nil
}

func fileEntryFromValue(v bencode.Value) (FileEntry, error) {
	length, ok := v.Get("length")
	n, isInt := length.Int()
	if !ok || !isInt || n < 0 {
		return FileEntry{}, errors.Wrap(ErrInvalidMetaInfo, "file missing length")
	}
	pathVal, ok := v.Get("path")
	elems, isList := pathVal.Elems()
	if !ok || !isList || len(elems) == 0 {
		return FileEntry{}, errors.Wrap(ErrInvalidMetaInfo, "file missing path")
	}
	path := make([]string, 0, len(elems))
	for _, p := range elems {
		comp, isStr := p.Str()
		if !isStr {
			return FileEntry{}, errors.Wrap(ErrInvalidMetaInfo, "file path component is not a string")
		}
		path = append(path, string(comp))
	}
	return FileEntry{Length: n, Path: path}, nil
}

// Multi reports whether the torrent carries multiple files
func (i *Info) Multi() bool { return i.multi }

// BaseDir returns the advised base directory: the torrent name for a
// multi file torrent, "." for a single file
func (i *Info) BaseDir() string {
	if i.multi {
		return i.Name
	}
	return "."
}

// TotalLength returns the summed length of all content files
func (i *Info) TotalLength() int64 { return i.totalLength }

// NumPieces returns the number of pieces
func (i *Info) NumPieces() int { return len(i.Pieces) }

// PieceSize returns the actual length of piece p
// Every piece is PieceLength bytes except possibly the last one
func (i *Info) PieceSize(p int) int64 {
	if p < i.NumPieces()-1 {
		return i.PieceLength
	}
	if rem := i.totalLength % i.PieceLength; rem != 0 {
		return rem
	}
	return i.PieceLength
}

// FilePath joins the path components of file f with the platform
// separator, without the base directory
func (i *Info) FilePath(f int) string {
	return filepath.Join(i.Files[f].Path...)
}
