// Package types defines the primitive value types shared across every Meridian
// subsystem: Hash, Address, ShardId, BlockHeight, Timestamp, and Priority.
package types

import (
	"encoding/binary"
	"fmt"
)

// Hash is a 32-byte opaque digest (SHA-256 or BLAKE3 output width).
type Hash [32]byte

func (h Hash) String() string {
	return fmt.Sprintf("%x", [32]byte(h))
}

// IsZero reports whether h is the all-zero hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Bytes returns a copy of the hash as a byte slice.
func (h Hash) Bytes() []byte {
	b := make([]byte, 32)
	copy(b, h[:])
	return b
}

// HashFromBytes copies up to 32 bytes of b into a Hash.
func HashFromBytes(b []byte) Hash {
	var h Hash
	copy(h[:], b)
	return h
}

// Address is a 24-byte blockchain address: a 20-byte payload followed by a 4-byte
// checksum (the first four bytes of double-SHA-256 over the payload).
type Address [24]byte

// IsZero reports whether a is the all-zero address.
func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) Bytes() []byte {
	b := make([]byte, 24)
	copy(b, a[:])
	return b
}

func AddressFromBytes(b []byte) Address {
	var a Address
	copy(a[:], b)
	return a
}

// ShardId identifies a shard.
type ShardId uint16

// BlockHeight identifies a block's position in the chain.
type BlockHeight uint64

// Timestamp is microseconds since the Unix epoch.
type Timestamp uint64

// Priority orders transactions and network messages. Higher values sort first.
type Priority uint8

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "Low"
	case PriorityNormal:
		return "Normal"
	case PriorityHigh:
		return "High"
	case PriorityCritical:
		return "Critical"
	default:
		return "Unknown"
	}
}

// PutUint16 / PutUint64 are small helpers used throughout the codec layers to build
// canonical big-endian encodings without repeating binary.BigEndian.PutUint* calls.
func PutUint16(buf []byte, v uint16) { binary.BigEndian.PutUint16(buf, v) }
func PutUint64(buf []byte, v uint64) { binary.BigEndian.PutUint64(buf, v) }
