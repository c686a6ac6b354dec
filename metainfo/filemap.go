package metainfo

// MapEntry relates a contiguous range of one piece to a contiguous range
// of one file of the same length
type MapEntry struct {
	PieceIndex  int
	PieceOffset int64
	FileIndex   int
	FileOffset  int64
	Length      int64
}

// FileMap is the full piece to file mapping of a torrent
// Entries are stored once; the two indices refer into the shared list
type FileMap struct {
	entries []MapEntry
	byPiece [][]int
	byFile  [][]int
}

// BuildFileMap sweeps the files in torrent order and lays them into
// fixed size pieces, covering every content byte exactly once
func BuildFileMap(info *Info) *FileMap {
	m := &FileMap{
		byPiece: make([][]int, info.NumPieces()),
		byFile:  make([][]int, len(info.Files)),
	}
	var pos int64
	for f, file := range info.Files {
		var fileOff int64
		for fileOff < file.Length {
			piece := int(pos / info.PieceLength)
			pieceOff := pos % info.PieceLength
			length := info.PieceLength - pieceOff
			if rem := file.Length - fileOff; rem < length {
				length = rem
			}
			idx := len(m.entries)
			m.entries = append(m.entries, MapEntry{
				PieceIndex:  piece,
				PieceOffset: pieceOff,
				FileIndex:   f,
				FileOffset:  fileOff,
				Length:      length,
			})
			m.byPiece[piece] = append(m.byPiece[piece], idx)
			m.byFile[f] = append(m.byFile[f], idx)
			pos += length
			fileOff += length
		}
		// zero length files occupy no piece range and get no entries
	}
	return m
}

// Entries returns every mapping entry in sweep order
func (m *FileMap) Entries() []MapEntry {
	return m.entries
}

// ByPiece returns the entries covering piece p in offset order
func (m *FileMap) ByPiece(p int) []MapEntry {
	return m.resolve(m.byPiece[p])
}

// ByFile returns the entries covering file f in offset order
func (m *FileMap) ByFile(f int) []MapEntry {
	return m.resolve(m.byFile[f])
}

func (m *FileMap) resolve(idx []int) []MapEntry {
	out := make([]MapEntry, len(idx))
	for i, j := range idx {
		out[i] = m.entries[j]
	}
	return out
}
