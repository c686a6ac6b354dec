// Package krpc implements the KRPC message shape of the DHT protocol
// (BEP 5): bencoded queries, responses and errors over UDP.
// Routing tables and lookup logic are left to the caller.
package krpc

import (
	"github.com/pkg/errors"
	"github.com/vmoraru/btwire/bencode"
	"github.com/vmoraru/btwire/metainfo"
)

// Message types, the "y" key
const (
	TypeQuery    = "q"
	TypeResponse = "r"
	TypeError    = "e"
)

// Query methods
const (
	MethodPing         = "ping"
	MethodFindNode     = "find_node"
	MethodGetPeers     = "get_peers"
	MethodAnnouncePeer = "announce_peer"
)

// Error codes
const (
	CodeGeneric       = 201
	CodeServer        = 202
	CodeProtocol      = 203
	CodeMethodUnknown = 204
)

// ErrInvalidMessage is the cause of every malformed KRPC message
var ErrInvalidMessage = errors.New("krpc: invalid message")

// Message is one KRPC message: a query, a response or an error
type Message struct {
	// TransactionID correlates a response with its query
	TransactionID string
	// Type is one of TypeQuery, TypeResponse, TypeError
	Type string
	// Method names the query for TypeQuery messages
	Method string
	// Args holds the query arguments, Response the response values
	Args     bencode.Value
	Response bencode.Value
	// Code and Error carry the TypeError payload
	Code  int64
	Error string
}

// NewQuery builds a query message
func NewQuery(txID, method string, args *bencode.Dict) Message {
	return Message{
		TransactionID: txID,
		Type:          TypeQuery,
		Method:        method,
		Args:          args.Value(),
	}
}

// NewPing builds a ping query for the given node
func NewPing(txID string, id metainfo.NodeID) Message {
	return NewQuery(txID, MethodPing, bencode.NewDict().
		Set("id", bencode.Bytes(id[:])))
}

// NewResponse builds a response message
func NewResponse(txID string, values *bencode.Dict) Message {
	return Message{
		TransactionID: txID,
		Type:          TypeResponse,
		Response:      values.Value(),
	}
}

// NewError builds an error message
func NewError(txID string, code int64, msg string) Message {
	return Message{
		TransactionID: txID,
		Type:          TypeError,
		Code:          code,
		Error:         msg,
	}
}

// Marshal returns the bencoded bytes of the message
func (m Message) Marshal() []byte {
	d := bencode.NewDict().
		Set("t", bencode.String(m.TransactionID)).
		Set("y", bencode.String(m.Type))
	switch m.Type {
	case TypeQuery:
		d.Set("q", bencode.String(m.Method))
		d.Set("a", m.Args)
	case TypeResponse:
		d.Set("r", m.Response)
	case TypeError:
		d.Set("e", bencode.List(bencode.Integer(m.Code), bencode.String(m.Error)))
	}
	return bencode.EncodeBytes(d.Value())
}

// Unmarshal parses one KRPC message
func Unmarshal(raw []byte) (Message, error) {
	v, err := bencode.DecodeBytes(raw)
	if err != nil {
		return Message{}, errors.Wrap(err, "decoding krpc message")
	}
	if !v.IsDict() {
		return Message{}, errors.Wrap(ErrInvalidMessage, "not a dictionary")
	}
	var m Message

	tx, ok := v.Get("t")
	if !ok || tx.Kind() != bencode.KindString {
		return Message{}, errors.Wrap(ErrInvalidMessage, "missing transaction id")
	}
	m.TransactionID = tx.Text()

	typ, ok := v.Get("y")
	if !ok || typ.Kind() != bencode.KindString {
		return Message{}, errors.Wrap(ErrInvalidMessage, "missing type")
	}
	m.Type = typ.Text()

	switch m.Type {
	case TypeQuery:
		method, ok := v.Get("q")
		if !ok || method.Kind() != bencode.KindString {
			return Message{}, errors.Wrap(ErrInvalidMessage, "query missing method")
		}
		m.Method = method.Text()
		args, ok := v.Get("a")
		if !ok || !args.IsDict() {
			return Message{}, errors.Wrap(ErrInvalidMessage, "query missing arguments")
		}
		m.Args = args
	case TypeResponse:
		resp, ok := v.Get("r")
		if !ok || !resp.IsDict() {
			return Message{}, errors.Wrap(ErrInvalidMessage, "response missing values")
		}
		m.Response = resp
	case TypeError:
		e, ok := v.Get("e")
		elems, isList := e.Elems()
		if !ok || !isList || len(elems) < 2 {
			return Message{}, errors.Wrap(ErrInvalidMessage, "malformed error payload")
		}
		code, isInt := elems[0].Int()
		if !isInt {
			return Message{}, errors.Wrap(ErrInvalidMessage, "error code is not an integer")
		}
		m.Code = code
		m.Error = elems[1].Text()
	default:
		return Message{}, errors.Wrapf(ErrInvalidMessage, "type %q", m.Type)
	}
	return m, nil
}

// NodeID extracts the sender's node ID from a query's arguments or a
// response's values
func (m Message) NodeID() (metainfo.NodeID, bool) {
	var src bencode.Value
	switch m.Type {
	case TypeQuery:
		src = m.Args
	case TypeResponse:
		src = m.Response
	default:
		return metainfo.NodeID{}, false
	}
	idVal, ok := src.Get("id")
	raw, isStr := idVal.Str()
	if !ok || !isStr || len(raw) != metainfo.IDLen {
		return metainfo.NodeID{}, false
	}
	var id metainfo.NodeID
	copy(id[:], raw)
	return id, true
}
