/*
@Description: Error taxonomy shared by the codec, engine and relay layers
@Language: Go 1.23.4
*/

package relay

import "github.com/pkg/errors"

// Sentinel error kinds, matched with errors.Is at call sites that branch on
// taxonomy rather than on a specific wrapped message.
var (
	// ErrBadPacket covers a datagram too short for its header, an unknown
	// packet type, or a non-zero version field. Recovered locally: the
	// packet is logged and dropped.
	ErrBadPacket = errors.New("fecrelay: bad packet")

	// ErrBadSymbol is reported by a codec on corrupted input. Fatal to the
	// owning block or stream, never to the relay as a whole.
	ErrBadSymbol = errors.New("fecrelay: bad symbol")

	// ErrIO wraps a send or receive failure from the socket facility.
	ErrIO = errors.New("fecrelay: io error")

	// ErrClockWentBackwards signals a monotonic-clock violation observed by
	// the shaped egress queue. Not recoverable: callers should abort.
	ErrClockWentBackwards = errors.New("fecrelay: clock went backwards")

	// ErrPopFromEmpty signals an internal queue invariant violation. Not
	// recoverable: callers should abort, this is a bug.
	ErrPopFromEmpty = errors.New("fecrelay: pop from empty queue")
)

// badPacket wraps ErrBadPacket with msg so errors.Is(err, ErrBadPacket)
// still succeeds after wrapping.
func badPacket(msg string) error {
	return errors.Wrap(ErrBadPacket, msg)
}

func badSymbol(msg string) error {
	return errors.Wrap(ErrBadSymbol, msg)
}

func ioError(err error) error {
	return errors.Wrap(ErrIO, err.Error())
}
