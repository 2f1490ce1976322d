/*
@Description: Atomic diagnostic counters for the relay core
@Language: Go 1.23.4
*/

package relay

import "sync/atomic"

// Stats holds atomically-updated counters for the relay's lifetime, in the
// style of the teacher's DefaultSnmp (snmp.go): plain uint64 fields touched
// with sync/atomic rather than guarded by a mutex, since every field is
// independent and tests only ever need a consistent read, not a consistent
// snapshot across fields.
type Stats struct {
	PacketsIn  uint64
	PacketsOut uint64
	BytesIn    uint64
	BytesOut   uint64

	BadPackets uint64

	BlocksDecoded         uint64
	BlockSymbolsRecovered uint64

	StreamChunksOut       uint64
	StreamChunksDelivered uint64
	StreamFECSent         uint64
	StreamFECRecovered    uint64

	ShaperPops            uint64
	ShaperWouldBlock      uint64
	SubscriptionsAdded    uint64
	SubscriptionsReplaced uint64
}

// DefaultStats is the package-level counter set used when the caller
// doesn't construct its own Relay with a private Stats.
var DefaultStats = &Stats{}

func (s *Stats) addPacketIn(n int) {
	atomic.AddUint64(&s.PacketsIn, 1)
	atomic.AddUint64(&s.BytesIn, uint64(n))
}

func (s *Stats) addPacketOut(n int) {
	atomic.AddUint64(&s.PacketsOut, 1)
	atomic.AddUint64(&s.BytesOut, uint64(n))
}
