/*
@Description: Thin async byte-I/O facade over the UDP socket (spec.md §5)
@Language: Go 1.23.4
*/

package relay

import (
	"net"

	"golang.org/x/net/ipv4"
)

// Socket is the "async byte I/O interface" the relay core treats as an
// opaque external collaborator (spec.md §1). Anything satisfying
// net.PacketConn works; batchWriter is detected separately.
type Socket interface {
	ReadFrom(p []byte) (n int, addr net.Addr, err error)
	WriteTo(p []byte, addr net.Addr) (n int, err error)
	Close() error
}

// batchWriter is implemented by connections that can coalesce several
// datagrams into one syscall, e.g. golang.org/x/net/ipv4.PacketConn.
type batchWriter interface {
	WriteBatch(ms []ipv4.Message, flags int) (int, error)
}

// BatchSocket is the optional capability a Socket may additionally offer:
// sending several queued packets to one peer in a single call. Relay.drainDue
// type-asserts for this and uses it when available, falling back to
// individual WriteTo calls otherwise.
type BatchSocket interface {
	Socket
	WriteBatch(addr net.Addr, packets [][]byte) (int, error)
}

// udpSocket wraps a net.PacketConn, using a batch write path when the
// underlying conn supports it and falling back to one WriteTo per packet
// otherwise — the same batchTx/defaultTx split as the teacher's tx.go and
// batchconn.go, minus the KCP-specific SNMP bookkeeping.
type udpSocket struct {
	conn  net.PacketConn
	batch batchWriter
}

// NewUDPSocket binds conn for use by the relay's single I/O task. If conn
// also implements batchWriter (as *ipv4.PacketConn does when wrapped
// around a UDP conn), WriteBatch is used to drain the egress queue.
func NewUDPSocket(conn net.PacketConn) Socket {
	s := &udpSocket{conn: conn}
	if bw, ok := conn.(batchWriter); ok {
		s.batch = bw
	} else if udpConn, ok := conn.(*net.UDPConn); ok {
		s.batch = ipv4.NewPacketConn(udpConn)
	}
	return s
}

func (s *udpSocket) ReadFrom(p []byte) (int, net.Addr, error) {
	return s.conn.ReadFrom(p)
}

func (s *udpSocket) WriteTo(p []byte, addr net.Addr) (int, error) {
	return s.conn.WriteTo(p, addr)
}

func (s *udpSocket) Close() error {
	return s.conn.Close()
}

// WriteBatch sends several packets to the same addr in one syscall where
// possible, falling back to sequential WriteTo calls on any batch error —
// matching the teacher's batchTx/defaultTx fallback in tx.go.
func (s *udpSocket) WriteBatch(addr net.Addr, packets [][]byte) (int, error) {
	if s.batch == nil {
		return s.writeSequential(addr, packets)
	}

	msgs := make([]ipv4.Message, len(packets))
	for i, p := range packets {
		msgs[i] = ipv4.Message{Buffers: [][]byte{p}, Addr: addr}
	}
	n, err := s.batch.WriteBatch(msgs, 0)
	if err != nil {
		return s.writeSequential(addr, packets)
	}
	return n, nil
}

func (s *udpSocket) writeSequential(addr net.Addr, packets [][]byte) (int, error) {
	sent := 0
	for _, p := range packets {
		if _, err := s.conn.WriteTo(p, addr); err != nil {
			return sent, ioError(err)
		}
		sent++
	}
	return sent, nil
}
