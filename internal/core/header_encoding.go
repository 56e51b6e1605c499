package core

import (
	"bytes"

	"github.com/meridian-chain/meridian-node/internal/crypto"
	"github.com/meridian-chain/meridian-node/internal/types"
)

// headerBytesForSigning serialises everything in a BlockHeader except the
// aggregated signature itself, mirroring the teacher's HeaderForSigning
// convention of excluding only the final signature from the signed payload.
func headerBytesForSigning(h BlockHeader) []byte {
	var buf bytes.Buffer
	writeU64(&buf, uint64(h.Index))
	writeU64(&buf, uint64(h.Timestamp))
	buf.Write(h.PreviousHash[:])
	buf.Write(h.StateRoot[:])
	buf.Write(h.TransactionRoot[:])
	buf.Write(h.ReceiptRoot[:])
	buf.Write(h.ValidatorMerkle[:])
	for _, sid := range h.ShardIdentifiers {
		writeU16(&buf, uint16(sid))
	}
	return buf.Bytes()
}

// sha256Header hashes the full header, including the aggregated signature, to
// produce the block's identity hash.
func sha256Header(h BlockHeader) types.Hash {
	buf := headerBytesForSigning(h)
	buf = append(buf, h.AggregatedSignature...)
	return crypto.SHA256(buf)
}
