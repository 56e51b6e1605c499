package network

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/meridian-chain/meridian-node/internal/merrors"
	"github.com/meridian-chain/meridian-node/internal/types"
)

// Capability is a single bit in the capability bitmask negotiated at
// handshake time, per spec.md §4.5.1.
type Capability uint8

const (
	CapCore Capability = 1 << iota
	CapValidator
	CapLightClient
	CapTransactionRelay
	CapShardSync
	CapArchive
)

// CapabilitySet is a bitmask of negotiated capabilities.
type CapabilitySet uint8

// Has reports whether cap is present in the set.
func (c CapabilitySet) Has(cap Capability) bool { return c&CapabilitySet(cap) != 0 }

// Intersect returns the capabilities common to both sets, determining the
// permitted message types for a connection, per spec.md §4.5.1.
func (c CapabilitySet) Intersect(other CapabilitySet) CapabilitySet {
	return c & other
}

// Handshake is the payload carried inside a ValidatorHandshake message, per
// spec.md §6.
type Handshake struct {
	Version     uint8
	Capabilities CapabilitySet
	UserAgent   string
	NodeID      types.Hash
	BlockHeight uint64
	GenesisHash types.Hash
	NetworkID   string
	Timestamp   uint64 // seconds
}

// Encode serialises the handshake payload per spec.md §6's field order.
func (h *Handshake) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteByte(h.Version)
	buf.WriteByte(byte(h.Capabilities))
	writeLP(&buf, []byte(h.UserAgent))
	writeLP(&buf, h.NodeID[:])
	writeU64Field(&buf, h.BlockHeight)
	buf.Write(h.GenesisHash[:])
	writeLP(&buf, []byte(h.NetworkID))
	writeU64Field(&buf, h.Timestamp)
	return buf.Bytes()
}

func writeU64Field(buf *bytes.Buffer, v uint64) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	buf.Write(b)
}

var (
	// ErrVersionMismatch is returned when a handshake's protocol version differs from ours.
	ErrVersionMismatch = errors.New("handshake protocol version mismatch")
	// ErrNetworkMismatch is returned when a handshake's network id differs from ours.
	ErrNetworkMismatch = errors.New("handshake network id mismatch")
	// ErrHandshakeStale is returned when a handshake's timestamp is too far from now.
	ErrHandshakeStale = errors.New("handshake timestamp outside tolerance")
)

// DecodeHandshake parses a handshake payload.
func DecodeHandshake(b []byte) (*Handshake, error) {
	if len(b) < 2 {
		return nil, merrors.Wrap(merrors.Serialization, "decode handshake", ErrShortFrame)
	}
	h := &Handshake{Version: b[0], Capabilities: CapabilitySet(b[1])}
	rest := b[2:]

	ua, rest, ok := readLP(rest)
	if !ok {
		return nil, merrors.Wrap(merrors.Serialization, "decode handshake", ErrShortFrame)
	}
	h.UserAgent = string(ua)

	nodeID, rest, ok := readLP(rest)
	if !ok || len(nodeID) != 32 {
		return nil, merrors.Wrap(merrors.Serialization, "decode handshake", ErrShortFrame)
	}
	h.NodeID = types.HashFromBytes(nodeID)

	if len(rest) < 8 {
		return nil, merrors.Wrap(merrors.Serialization, "decode handshake", ErrShortFrame)
	}
	h.BlockHeight = binary.BigEndian.Uint64(rest[:8])
	rest = rest[8:]

	if len(rest) < 32 {
		return nil, merrors.Wrap(merrors.Serialization, "decode handshake", ErrShortFrame)
	}
	h.GenesisHash = types.HashFromBytes(rest[:32])
	rest = rest[32:]

	netID, rest, ok := readLP(rest)
	if !ok {
		return nil, merrors.Wrap(merrors.Serialization, "decode handshake", ErrShortFrame)
	}
	h.NetworkID = string(netID)

	if len(rest) < 8 {
		return nil, merrors.Wrap(merrors.Serialization, "decode handshake", ErrShortFrame)
	}
	h.Timestamp = binary.BigEndian.Uint64(rest[:8])

	return h, nil
}

// ValidateHandshake rejects a remote handshake per spec.md §4.5.1: version
// mismatch, network-id mismatch, or |now - timestamp| > 5 minutes.
func ValidateHandshake(local *Handshake, remote *Handshake, nowSeconds uint64) error {
	if remote.Version != local.Version {
		return merrors.Wrap(merrors.Network, "handshake", ErrVersionMismatch)
	}
	if remote.NetworkID != local.NetworkID {
		return merrors.Wrap(merrors.Network, "handshake", ErrNetworkMismatch)
	}
	var diff int64
	if nowSeconds > remote.Timestamp {
		diff = int64(nowSeconds - remote.Timestamp)
	} else {
		diff = int64(remote.Timestamp - nowSeconds)
	}
	if diff > 5*60 {
		return merrors.Wrap(merrors.Network, "handshake", ErrHandshakeStale)
	}
	return nil
}
