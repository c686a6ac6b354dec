package wire

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	"github.com/vmoraru/btwire/metainfo"
)

// MaxFrameLen caps the declared length of a regular frame: the largest
// legal piece message (16 MiB block) plus its header
const MaxFrameLen = 16<<20 + 13

// ErrProtocol is the cause of every framing violation: oversized length,
// unknown message ID, payload of the wrong size
var ErrProtocol = errors.New("wire: protocol error")

// Marshal returns the on-wire bytes of a message
// Handshake halves have their own layout; everything else is a 4 byte
// big endian length followed by the body
func Marshal(m Message) []byte {
	switch m := m.(type) {
	case HandshakeStart:
		buf := make([]byte, 0, 1+len(m.ProtocolName)+8+metainfo.IDLen)
		buf = append(buf, byte(len(m.ProtocolName)))
		buf = append(buf, m.ProtocolName...)
		buf = append(buf, m.Reserved[:]...)
		hash := m.InfoHash.Bytes()
		return append(buf, hash[:]...)
	case HandshakeEnd:
		id := m.PeerID.Bytes()
		return append([]byte(nil), id[:]...)
	case KeepAlive:
		return []byte{0, 0, 0, 0}
	case Choke:
		return frame(IDChoke, nil)
	case Unchoke:
		return frame(IDUnchoke, nil)
	case Interested:
		return frame(IDInterested, nil)
	case NotInterested:
		return frame(IDNotInterested, nil)
	case Have:
		payload := make([]byte, 4)
		binary.BigEndian.PutUint32(payload, m.Index)
		return frame(IDHave, payload)
	case Bitfield:
		return frame(IDBitfield, m.Bits)
	case Request:
		return frame(IDRequest, indexOffsetLength(m.Index, m.Offset, m.Length))
	case Piece:
		payload := make([]byte, 8+len(m.Block))
		binary.BigEndian.PutUint32(payload, m.Index)
		binary.BigEndian.PutUint32(payload[4:], m.Offset)
		copy(payload[8:], m.Block)
		return frame(IDPiece, payload)
	case Cancel:
		return frame(IDCancel, indexOffsetLength(m.Index, m.Offset, m.Length))
	case Port:
		payload := make([]byte, 2)
		binary.BigEndian.PutUint16(payload, m.Port)
		return frame(IDPort, payload)
	}
	return nil
}

func frame(id ID, payload []byte) []byte {
	buf := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(1+len(payload)))
	buf[4] = byte(id)
	copy(buf[5:], payload)
	return buf
}

func indexOffsetLength(index, offset, length uint32) []byte {
	payload := make([]byte, 12)
	binary.BigEndian.PutUint32(payload, index)
	binary.BigEndian.PutUint32(payload[4:], offset)
	binary.BigEndian.PutUint32(payload[8:], length)
	return payload
}

// WriteMessage writes the encoded message to w in one pass
func WriteMessage(w io.Writer, m Message) error {
	_, err := w.Write(Marshal(m))
	return err
}

// ReadMessage reads one length-prefixed frame from r
// A zero length frame decodes to KeepAlive
func ReadMessage(r io.Reader) (Message, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		// a clean EOF on a frame boundary is a normal close
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length == 0 {
		return KeepAlive{}, nil
	}
	if length > MaxFrameLen {
		return nil, errors.Wrapf(ErrProtocol, "frame length %d", length)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, eof(err)
	}
	return Unmarshal(body)
}

// Unmarshal decodes the body of a non empty frame: one ID byte plus the
// payload
func Unmarshal(body []byte) (Message, error) {
	id := ID(body[0])
	payload := body[1:]
	switch id {
	case IDChoke, IDUnchoke, IDInterested, IDNotInterested:
		if len(payload) != 0 {
			return nil, payloadErr(id, len(payload))
		}
		switch id {
		case IDChoke:
			return Choke{}, nil
		case IDUnchoke:
			return Unchoke{}, nil
		case IDInterested:
			return Interested{}, nil
		default:
			return NotInterested{}, nil
		}
	case IDHave:
		if len(payload) != 4 {
			return nil, payloadErr(id, len(payload))
		}
		return Have{Index: binary.BigEndian.Uint32(payload)}, nil
	case IDBitfield:
		// consume exactly the payload bytes, whatever the piece count
		return Bitfield{Bits: BitSet(append([]byte(nil), payload...))}, nil
	case IDRequest:
		if len(payload) != 12 {
			return nil, payloadErr(id, len(payload))
		}
		return Request{
			Index:  binary.BigEndian.Uint32(payload),
			Offset: binary.BigEndian.Uint32(payload[4:]),
			Length: binary.BigEndian.Uint32(payload[8:]),
		}, nil
	case IDPiece:
		if len(payload) < 8 {
			return nil, payloadErr(id, len(payload))
		}
		return Piece{
			Index:  binary.BigEndian.Uint32(payload),
			Offset: binary.BigEndian.Uint32(payload[4:]),
			Block:  append([]byte(nil), payload[8:]...),
		}, nil
	case IDCancel:
		if len(payload) != 12 {
			return nil, payloadErr(id, len(payload))
		}
		return Cancel{
			Index:  binary.BigEndian.Uint32(payload),
			Offset: binary.BigEndian.Uint32(payload[4:]),
			Length: binary.BigEndian.Uint32(payload[8:]),
		}, nil
	case IDPort:
		if len(payload) != 2 {
			return nil, payloadErr(id, len(payload))
		}
		return Port{Port: binary.BigEndian.Uint16(payload)}, nil
	}
	return nil, errors.Wrapf(ErrProtocol, "unknown message id %d", id)
}

// ReadHandshakeStart reads the first half of a handshake: pstrlen, the
// protocol name, the reserved flags and the info hash
func ReadHandshakeStart(r io.Reader) (HandshakeStart, error) {
	var lenByte [1]byte
	if _, err := io.ReadFull(r, lenByte[:]); err != nil {
		return HandshakeStart{}, eof(err)
	}
	pstrlen := int(lenByte[0])
	if pstrlen == 0 {
		return HandshakeStart{}, errors.Wrap(ErrProtocol, "empty protocol name")
	}
	rest := make([]byte, pstrlen+8+metainfo.IDLen)
	if _, err := io.ReadFull(r, rest); err != nil {
		return HandshakeStart{}, eof(err)
	}
	hs := HandshakeStart{ProtocolName: string(rest[:pstrlen])}
	copy(hs.Reserved[:], rest[pstrlen:pstrlen+8])
	hs.InfoHash, _ = metainfo.HashFromBytes(rest[pstrlen+8:])
	return hs, nil
}

// ReadHandshakeEnd reads the trailing 20 bytes of a handshake
func ReadHandshakeEnd(r io.Reader) (HandshakeEnd, error) {
	buf := make([]byte, metainfo.IDLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return HandshakeEnd{}, eof(err)
	}
	id, _ := metainfo.PeerIDFromBytes(buf)
	return HandshakeEnd{PeerID: id}, nil
}

func payloadErr(id ID, got int) error {
	return errors.Wrapf(ErrProtocol, "message %d with payload length %d", id, got)
}

func eof(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
