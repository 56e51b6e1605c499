package network

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/meridian-chain/meridian-node/internal/merrors"
	"github.com/meridian-chain/meridian-node/internal/types"
)

// MessageType enumerates the wire message kinds of spec.md §4.5.2.
type MessageType uint8

const (
	MsgBlockAnnouncement MessageType = iota
	MsgBlockHeader
	MsgBlockBody
	MsgTransactionAnnouncement
	MsgTransactionBatch
	MsgShardSyncRequest
	MsgShardStateResponse
	MsgValidatorHandshake
	MsgPeerDiscovery
	MsgPeerExchange
	MsgStateSnapshot
	MsgCheckpointVote
	MsgNetworkHealth
)

// MaxMessageSize is the default transport frame size limit of spec.md §4.5.2.
const MaxMessageSize = 4 << 20

// Message is the wire message of spec.md §4.5.2/§6.
type Message struct {
	Version     uint8
	Compression bool
	Encryption  bool
	Priority    types.Priority
	Type        MessageType
	ShardID     *types.ShardId
	Data        []byte
	Checksum    [4]byte
	Sender      []byte
	Signature   []byte
}

var (
	// ErrMessageTooLarge is returned when a frame's declared length exceeds MaxMessageSize.
	ErrMessageTooLarge = errors.New("message exceeds max message size")
	// ErrShortFrame is returned when a buffer is too short to contain a declared field.
	ErrShortFrame = errors.New("frame truncated")
	// ErrChecksumMismatch is returned when a decoded message's checksum does not match its payload.
	ErrChecksumMismatch = errors.New("message checksum mismatch")
)

// Checksum4 computes the 4-byte checksum carried in a Message: the first four
// bytes of SHA-256 over data.
func Checksum4(data []byte) [4]byte {
	full := sha256Sum(data)
	var c [4]byte
	copy(c[:], full[:4])
	return c
}

// Encode serialises m into its wire form (without the outer 4-byte length
// prefix), per spec.md §6's field order.
func (m *Message) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteByte(m.Version)
	buf.WriteByte(boolByte(m.Compression))
	buf.WriteByte(boolByte(m.Encryption))
	buf.WriteByte(byte(m.Priority))
	buf.WriteByte(byte(m.Type))

	if m.ShardID != nil {
		writeLP(&buf, encodeU16(uint16(*m.ShardID)))
	} else {
		writeLP(&buf, nil)
	}
	writeLP(&buf, m.Data)

	checksum := Checksum4(m.Data)
	buf.Write(checksum[:])

	writeLP(&buf, m.Sender)
	writeLP(&buf, m.Signature)
	return buf.Bytes()
}

// Decode parses a wire-form message body (the bytes after the 4-byte length
// prefix has already been stripped by the transport).
func Decode(b []byte) (*Message, error) {
	if len(b) < 5 {
		return nil, merrors.Wrap(merrors.Serialization, "decode message", ErrShortFrame)
	}
	m := &Message{
		Version:     b[0],
		Compression: b[1] != 0,
		Encryption:  b[2] != 0,
		Priority:    types.Priority(b[3]),
		Type:        MessageType(b[4]),
	}
	rest := b[5:]

	shardBytes, rest, ok := readLP(rest)
	if !ok {
		return nil, merrors.Wrap(merrors.Serialization, "decode message", ErrShortFrame)
	}
	if len(shardBytes) == 2 {
		sid := types.ShardId(binary.BigEndian.Uint16(shardBytes))
		m.ShardID = &sid
	}

	data, rest, ok := readLP(rest)
	if !ok {
		return nil, merrors.Wrap(merrors.Serialization, "decode message", ErrShortFrame)
	}
	m.Data = data

	if len(rest) < 4 {
		return nil, merrors.Wrap(merrors.Serialization, "decode message", ErrShortFrame)
	}
	copy(m.Checksum[:], rest[:4])
	rest = rest[4:]

	if Checksum4(m.Data) != m.Checksum {
		return nil, merrors.Wrap(merrors.Serialization, "decode message", ErrChecksumMismatch)
	}

	sender, rest, ok := readLP(rest)
	if !ok {
		return nil, merrors.Wrap(merrors.Serialization, "decode message", ErrShortFrame)
	}
	m.Sender = sender

	sig, _, ok := readLP(rest)
	if !ok {
		return nil, merrors.Wrap(merrors.Serialization, "decode message", ErrShortFrame)
	}
	m.Signature = sig

	return m, nil
}

// FrameEncode wraps the message's wire form with the 4-byte big-endian length
// prefix used by the transport, per spec.md §6.
func FrameEncode(m *Message) ([]byte, error) {
	body := m.Encode()
	if len(body) > MaxMessageSize {
		return nil, merrors.Wrap(merrors.Network, "frame encode", ErrMessageTooLarge)
	}
	var out bytes.Buffer
	writeU32(&out, uint32(len(body)))
	out.Write(body)
	return out.Bytes(), nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func encodeU16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func writeU32(buf *bytes.Buffer, v uint32) {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	buf.Write(b)
}

func writeLP(buf *bytes.Buffer, b []byte) {
	writeU32(buf, uint32(len(b)))
	buf.Write(b)
}

func readLP(b []byte) (payload, rest []byte, ok bool) {
	if len(b) < 4 {
		return nil, nil, false
	}
	n := binary.BigEndian.Uint32(b[:4])
	if uint32(len(b)-4) < n {
		return nil, nil, false
	}
	return b[4 : 4+n], b[4+n:], true
}
