package network

import (
	"encoding/binary"
	"io"
	"net"
	"sync"

	"github.com/meridian-chain/meridian-node/internal/merrors"
)

// Transport sends and receives length-prefixed wire messages over a
// connection, generalising the teacher's SimulatedNetwork abstraction to a
// real net.Conn as well as an in-memory test double.
type Transport interface {
	Send(m *Message) error
	Receive() (*Message, error)
	Close() error
}

// ConnTransport implements Transport over a net.Conn using the 4-byte
// length-prefix framing of spec.md §6.
type ConnTransport struct {
	conn net.Conn
	mu   sync.Mutex
}

// NewConnTransport wraps conn.
func NewConnTransport(conn net.Conn) *ConnTransport {
	return &ConnTransport{conn: conn}
}

// Send frames and writes m to the underlying connection.
func (t *ConnTransport) Send(m *Message) error {
	frame, err := FrameEncode(m)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err = t.conn.Write(frame)
	if err != nil {
		return merrors.Wrap(merrors.Network, "transport send", err)
	}
	return nil
}

// Receive reads one length-prefixed frame and decodes it.
func (t *ConnTransport) Receive() (*Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(t.conn, lenBuf[:]); err != nil {
		return nil, merrors.Wrap(merrors.Network, "transport receive length", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxMessageSize {
		return nil, merrors.Wrap(merrors.Network, "transport receive", ErrMessageTooLarge)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(t.conn, body); err != nil {
		return nil, merrors.Wrap(merrors.Network, "transport receive body", err)
	}
	return Decode(body)
}

// Close closes the underlying connection.
func (t *ConnTransport) Close() error { return t.conn.Close() }

// MemoryTransport is an in-process Transport pair for tests, generalising the
// teacher's SimulatedNetwork (an in-memory substitute for real sockets).
type MemoryTransport struct {
	out    chan *Message
	in     chan *Message
	closed chan struct{}
	once   sync.Once
}

// NewMemoryTransportPair returns two MemoryTransports wired to each other:
// messages sent on a arrive via Receive on b, and vice versa.
func NewMemoryTransportPair(buffer int) (a, b *MemoryTransport) {
	c1 := make(chan *Message, buffer)
	c2 := make(chan *Message, buffer)
	closedA := make(chan struct{})
	closedB := make(chan struct{})
	a = &MemoryTransport{out: c1, in: c2, closed: closedA}
	b = &MemoryTransport{out: c2, in: c1, closed: closedB}
	return a, b
}

// Send enqueues m for the peer transport.
func (t *MemoryTransport) Send(m *Message) error {
	select {
	case t.out <- m:
		return nil
	case <-t.closed:
		return merrors.New(merrors.Network, "transport closed")
	}
}

// Receive blocks until a message arrives or the transport is closed.
func (t *MemoryTransport) Receive() (*Message, error) {
	select {
	case m := <-t.in:
		return m, nil
	case <-t.closed:
		return nil, merrors.New(merrors.Network, "transport closed")
	}
}

// Close marks the transport closed; idempotent.
func (t *MemoryTransport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}
