package bencode

import (
	"bytes"
	"io"
	"strconv"
)

// chunkSize bounds a single write to the sink so that encoding against a
// hash digest never buffers more than this
const chunkSize = 64 << 10

// Encode writes the canonical encoding of v to w
// w may be a hash digest, so the info hash of a torrent can be computed
// without materialising the encoded bytes
func Encode(w io.Writer, v Value) error {
	switch v.kind {
	case KindInteger:
		var scratch [24]byte
		buf := append(scratch[:0], 'i')
		buf = strconv.AppendInt(buf, v.num, 10)
		buf = append(buf, 'e')
		_, err := w.Write(buf)
		return err
	case KindString:
		return encodeString(w, v.str)
	case KindList:
		if _, err := w.Write([]byte{'l'}); err != nil {
			return err
		}
		for _, elem := range v.list {
			if err := Encode(w, elem); err != nil {
				return err
			}
		}
		_, err := w.Write([]byte{'e'})
		return err
	case KindDict:
		if _, err := w.Write([]byte{'d'}); err != nil {
			return err
		}
		for _, e := range v.dict {
			if err := encodeString(w, e.key); err != nil {
				return err
			}
			if err := Encode(w, e.val); err != nil {
				return err
			}
		}
		_, err := w.Write([]byte{'e'})
		return err
	}
	return nil
}

// EncodeBytes returns the canonical encoding of v
func EncodeBytes(v Value) []byte {
	var buf bytes.Buffer
	Encode(&buf, v)
	return buf.Bytes()
}

func encodeString(w io.Writer, b []byte) error {
	var scratch [24]byte
	head := strconv.AppendInt(scratch[:0], int64(len(b)), 10)
	head = append(head, ':')
	if _, err := w.Write(head); err != nil {
		return err
	}
	for len(b) > 0 {
		n := len(b)
		if n > chunkSize {
			n = chunkSize
		}
		if _, err := w.Write(b[:n]); err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}
