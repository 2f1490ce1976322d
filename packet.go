/*
@Description: Packet header variants, framing and egress priority ordering
@Language: Go 1.23.4
*/

package relay

import "encoding/binary"

// PacketType tags which header variant follows the common prefix. Values are
// ordered by egress priority, lowest first: a STREAM packet drains behind a
// BLOCK packet, which drains behind a CONTROL packet, for any two packets
// competing for the same egress queue slot. STREAM_ACK never enters an
// egress queue (the relay sends acks immediately) so its numeric value
// doesn't participate in priority comparisons.
type PacketType uint32

const (
	PacketStream PacketType = iota
	PacketBlock
	PacketControl
	PacketStreamAck
)

// ControlAction distinguishes the two CONTROL packet actions.
type ControlAction uint32

const (
	ActionUnsubscribe ControlAction = iota
	ActionSubscribe
)

const commonHeaderSize = 8 // version(4) + type(4)

const (
	blockHeaderSize   = commonHeaderSize + 4*4 // + channel, block_id, block_size, packet_index
	streamHeaderSize  = commonHeaderSize + 4*2 // + channel, packet_index
	streamAckHdrSize  = commonHeaderSize + 4   // + channel
	controlHeaderSize = commonHeaderSize + 4*3 // + action, channel, kbps
)

// Header is the common 64-bit prefix shared by every packet variant.
type Header struct {
	Version uint32
	Type    PacketType
}

// BlockHeader frames one symbol of a bounded block.
type BlockHeader struct {
	Header
	ChannelID   uint32
	BlockID     uint32
	BlockSize   uint32
	PacketIndex uint32
}

// StreamHeader frames one symbol of a continuous stream.
type StreamHeader struct {
	Header
	ChannelID   uint32
	PacketIndex uint32
}

// StreamAckHeader frames a cumulative stream acknowledgement.
type StreamAckHeader struct {
	Header
	ChannelID uint32
}

// ControlHeader frames a subscribe/unsubscribe request.
type ControlHeader struct {
	Header
	Action    ControlAction
	ChannelID uint32
	Kbps      uint32
}

// Packet is a decoded header paired with its payload. Priority comparisons
// (used by the shaped egress queue's priority heap) operate on Packet
// values, not raw bytes. seq is not part of the wire format; PacketQueue.Push
// stamps it to break ties between equal-priority packets.
type Packet struct {
	Type        PacketType
	ChannelID   uint32
	BlockID     uint32
	BlockSize   uint32
	PacketIndex uint32
	Action      ControlAction
	Kbps        uint32
	Payload     []byte
	seq         uint64
}

// less implements the egress ordering from spec.md §4.D: lower PacketType
// value is lower priority; within BLOCK, ascending PacketIndex drains first;
// packets tied on both of those drain in insertion order (spec.md §5's
// "equal-priority packets in FIFO of insertion" guarantee), since
// container/heap gives no ordering among elements Less treats as equal.
func (p *Packet) less(other *Packet) bool {
	if p.Type != other.Type {
		return p.Type < other.Type
	}
	if p.Type == PacketBlock && p.PacketIndex != other.PacketIndex {
		// Lower packet_index drains first, i.e. has higher priority, so p
		// ranks lower (this returns true) when its index is the larger one.
		return p.PacketIndex > other.PacketIndex
	}
	// Earlier insertion (smaller seq) outranks later, so p ranks lower
	// (this returns true) when it arrived after other.
	return p.seq > other.seq
}

// EncodeBlock serializes a BLOCK packet. Host-native endianness, matching
// the experimental wire profile of spec.md §6.
func EncodeBlock(channelID, blockID, blockSize, packetIndex uint32, payload []byte) []byte {
	buf := make([]byte, blockHeaderSize+len(payload))
	putCommon(buf, PacketBlock)
	binary.NativeEndian.PutUint32(buf[8:], channelID)
	binary.NativeEndian.PutUint32(buf[12:], blockID)
	binary.NativeEndian.PutUint32(buf[16:], blockSize)
	binary.NativeEndian.PutUint32(buf[20:], packetIndex)
	copy(buf[blockHeaderSize:], payload)
	return buf
}

// EncodeStream serializes a STREAM packet.
func EncodeStream(channelID, packetIndex uint32, payload []byte) []byte {
	buf := make([]byte, streamHeaderSize+len(payload))
	putCommon(buf, PacketStream)
	binary.NativeEndian.PutUint32(buf[8:], channelID)
	binary.NativeEndian.PutUint32(buf[12:], packetIndex)
	copy(buf[streamHeaderSize:], payload)
	return buf
}

// EncodeStreamAck serializes a STREAM_ACK packet.
func EncodeStreamAck(channelID uint32, payload []byte) []byte {
	buf := make([]byte, streamAckHdrSize+len(payload))
	putCommon(buf, PacketStreamAck)
	binary.NativeEndian.PutUint32(buf[8:], channelID)
	copy(buf[streamAckHdrSize:], payload)
	return buf
}

// EncodeControl serializes a CONTROL packet.
func EncodeControl(action ControlAction, channelID, kbps uint32) []byte {
	buf := make([]byte, controlHeaderSize)
	putCommon(buf, PacketControl)
	binary.NativeEndian.PutUint32(buf[8:], uint32(action))
	binary.NativeEndian.PutUint32(buf[12:], channelID)
	binary.NativeEndian.PutUint32(buf[16:], kbps)
	return buf
}

func putCommon(buf []byte, t PacketType) {
	binary.NativeEndian.PutUint32(buf[0:], wireVersion)
	binary.NativeEndian.PutUint32(buf[4:], uint32(t))
}

// Decode parses the common prefix and then the variant-specific header,
// returning a Packet with Payload pointing into buf (no copy). Fails with
// ErrBadPacket if buf is shorter than the minimum header, the version is
// non-zero, or the type is unrecognized.
func Decode(buf []byte) (*Packet, error) {
	if len(buf) < commonHeaderSize {
		return nil, badPacket("datagram shorter than common header")
	}
	version := binary.NativeEndian.Uint32(buf[0:])
	if version != wireVersion {
		return nil, badPacket("non-zero version rejected")
	}
	t := PacketType(binary.NativeEndian.Uint32(buf[4:]))

	switch t {
	case PacketBlock:
		if len(buf) < blockHeaderSize {
			return nil, badPacket("datagram shorter than block header")
		}
		return &Packet{
			Type:        PacketBlock,
			ChannelID:   binary.NativeEndian.Uint32(buf[8:]),
			BlockID:     binary.NativeEndian.Uint32(buf[12:]),
			BlockSize:   binary.NativeEndian.Uint32(buf[16:]),
			PacketIndex: binary.NativeEndian.Uint32(buf[20:]),
			Payload:     buf[blockHeaderSize:],
		}, nil

	case PacketStream:
		if len(buf) < streamHeaderSize {
			return nil, badPacket("datagram shorter than stream header")
		}
		return &Packet{
			Type:        PacketStream,
			ChannelID:   binary.NativeEndian.Uint32(buf[8:]),
			PacketIndex: binary.NativeEndian.Uint32(buf[12:]),
			Payload:     buf[streamHeaderSize:],
		}, nil

	case PacketStreamAck:
		if len(buf) < streamAckHdrSize {
			return nil, badPacket("datagram shorter than stream-ack header")
		}
		return &Packet{
			Type:      PacketStreamAck,
			ChannelID: binary.NativeEndian.Uint32(buf[8:]),
			Payload:   buf[streamAckHdrSize:],
		}, nil

	case PacketControl:
		if len(buf) < controlHeaderSize {
			return nil, badPacket("datagram shorter than control header")
		}
		return &Packet{
			Type:      PacketControl,
			Action:    ControlAction(binary.NativeEndian.Uint32(buf[8:])),
			ChannelID: binary.NativeEndian.Uint32(buf[12:]),
			Kbps:      binary.NativeEndian.Uint32(buf[16:]),
		}, nil

	default:
		return nil, badPacket("unrecognized packet type")
	}
}

// Bytes re-serializes p back into wire form. Used by the relay to re-frame
// an inbound BLOCK packet for fan-out to subscribers, and by tests asserting
// packet round-trip (spec.md §8 property 8).
func (p *Packet) Bytes() []byte {
	switch p.Type {
	case PacketBlock:
		return EncodeBlock(p.ChannelID, p.BlockID, p.BlockSize, p.PacketIndex, p.Payload)
	case PacketStream:
		return EncodeStream(p.ChannelID, p.PacketIndex, p.Payload)
	case PacketStreamAck:
		return EncodeStreamAck(p.ChannelID, p.Payload)
	case PacketControl:
		return EncodeControl(p.Action, p.ChannelID, p.Kbps)
	default:
		return nil
	}
}
