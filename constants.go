/*
@Description: Wire and FEC constants for the fecrelay protocol
@Language: Go 1.23.4
*/

package relay

const (
	// MaxPacketSize is the largest UDP datagram this protocol will ever send.
	MaxPacketSize = 1400

	// MaxBlockPayload is how much of a block fits in a single BLOCK packet's
	// payload once the block header is accounted for.
	MaxBlockPayload = MaxPacketSize - blockHeaderSize

	// MaxStreamPayload is the equivalent figure for STREAM packets.
	MaxStreamPayload = MaxPacketSize - streamHeaderSize

	// Redundancy is how many symbols (as a multiple of n original shards) a
	// block engine re-emits once a block has been fully decoded.
	Redundancy = 1.3

	// FECRatioNum/FECRatioDen express FEC_RATIO = recovery/original = 2/5:
	// for every 5 original chunks a stream encoder emits 2 recovery symbols.
	FECRatioNum = 2
	FECRatioDen = 5

	// NetworkBufferSize is the shaper's fixed receive-buffer capacity, in
	// bytes, used for every subscription; CONTROL.SUBSCRIBE carries no
	// buffer size of its own.
	NetworkBufferSize = 5000

	// FECIndex is the sentinel packet_index value meaning "recovery symbol",
	// chosen to sit outside the range of any real sequence number.
	FECIndex = ^uint32(0)

	// wireVersion is the only version this experimental profile accepts.
	wireVersion = 0
)
