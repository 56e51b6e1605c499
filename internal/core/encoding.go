package core

import (
	"bytes"
	"encoding/binary"
)

// encodeTransactionCanonical builds the exact byte layout of spec.md §6:
// version, type, sender_pubkey, sender_shard BE, recipient_address,
// recipient_shard BE, amount BE, fee BE, gas_limit BE, nonce BE, timestamp BE,
// data_type, data_content, concatenated dependency ids. Signature and id are
// never included.
func encodeTransactionCanonical(tx *Transaction) []byte {
	var buf bytes.Buffer
	buf.WriteByte(tx.Version)
	buf.WriteByte(byte(tx.Type))
	buf.Write(tx.SenderPubKey)
	writeU16(&buf, uint16(tx.SenderShard))
	buf.Write(tx.RecipientAddr.Bytes())
	writeU16(&buf, uint16(tx.RecipientShard))
	writeU64(&buf, tx.Amount)
	writeU64(&buf, tx.Fee)
	writeU64(&buf, tx.GasLimit)
	writeU64(&buf, tx.Nonce)
	writeU64(&buf, uint64(tx.Timestamp))
	buf.WriteByte(byte(tx.Data.Kind))
	buf.Write(tx.Data.Content)
	for _, dep := range tx.Dependencies {
		buf.Write(dep.TxID[:])
	}
	return buf.Bytes()
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}
