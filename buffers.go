/*
@Description: Shared packet-buffer pool
@Language: Go 1.23.4
*/

package relay

import "sync"

// xmitBuf is a package-wide byte buffer pool used by the relay's read loop
// to cut down on high-frequency allocation of MaxPacketSize-sized slices,
// mirroring the teacher's package-level xmitBuf in session.go.
var xmitBuf sync.Pool

func init() {
	xmitBuf.New = func() any {
		return make([]byte, MaxPacketSize)
	}
}

// getPacketBuf returns a zero-length slice backed by a MaxPacketSize
// buffer from the pool.
func getPacketBuf() []byte {
	return xmitBuf.Get().([]byte)[:0]
}

// putPacketBuf returns buf to the pool for reuse. Callers must not retain
// buf (or any slice of it) after calling this.
func putPacketBuf(buf []byte) {
	xmitBuf.Put(buf[:cap(buf)]) //nolint:staticcheck // reset length, keep capacity
}
