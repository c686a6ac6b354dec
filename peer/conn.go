// Package peer implements the peer protocol endpoint: a framed transport
// over one TCP stream, a session that mirrors per-connection state and
// pumps messages through background workers, and a pool that hosts many
// sessions on shared executors.
package peer

import (
	"bufio"
	"net"
	"sync"

	"github.com/vmoraru/btwire/wire"
)

// readBufSize holds the largest expected piece message: a 16 KiB block
// plus the frame header
const readBufSize = 4 + 9 + 16<<10

// Conn is a byte-framed transport over one network connection
// It marshals messages and nothing else; all protocol state lives in the
// session driving it
type Conn struct {
	c net.Conn
	r *bufio.Reader

	writeMu sync.Mutex

	closeMu sync.Mutex
	closed  bool
}

// NewConn wraps an established network connection
func NewConn(c net.Conn) *Conn {
	return &Conn{
		c: c,
		r: bufio.NewReaderSize(c, readBufSize),
	}
}

// ReceiveHandshakeStart blocks until the first half of the handshake is
// fully read
func (c *Conn) ReceiveHandshakeStart() (wire.HandshakeStart, error) {
	return wire.ReadHandshakeStart(c.r)
}

// ReceiveHandshakeEnd reads the trailing peer ID of the handshake
func (c *Conn) ReceiveHandshakeEnd() (wire.HandshakeEnd, error) {
	return wire.ReadHandshakeEnd(c.r)
}

// ReceiveMessage reads one length-prefixed frame and decodes it
func (c *Conn) ReceiveMessage() (wire.Message, error) {
	return wire.ReadMessage(c.r)
}

// SendMessage encodes and writes a message in one pass
func (c *Conn) SendMessage(m wire.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wire.WriteMessage(c.c, m)
}

// Close shuts the underlying connection; repeated calls are no-ops
func (c *Conn) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.c.Close()
}

// Closed reports whether Close has been called
func (c *Conn) Closed() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closed
}

// RemoteAddr returns the address of the remote end for logging
func (c *Conn) RemoteAddr() net.Addr {
	return c.c.RemoteAddr()
}
