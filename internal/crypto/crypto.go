// Package crypto implements the C1 crypto primitives: hashing, Ed25519 signing,
// and address derivation/text-form conversion.
package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160"
	"lukechampine.com/blake3"

	"github.com/meridian-chain/meridian-node/internal/merrors"
	"github.com/meridian-chain/meridian-node/internal/types"
)

// SHA256 hashes b with SHA-256.
func SHA256(b []byte) types.Hash {
	return types.Hash(sha256.Sum256(b))
}

// DoubleSHA256 hashes b twice with SHA-256, as used by the address checksum.
func DoubleSHA256(b []byte) types.Hash {
	first := sha256.Sum256(b)
	return types.Hash(sha256.Sum256(first[:]))
}

// BLAKE3 hashes b with BLAKE3-256, whose native 32-byte digest is returned as
// is, offered alongside SHA-256 per spec.md C1.
func BLAKE3(b []byte) types.Hash {
	return types.Hash(blake3.Sum256(b))
}

// GenerateKeypair creates a new Ed25519 keypair.
func GenerateKeypair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, nil, merrors.Wrap(merrors.Crypto, "generate ed25519 keypair", err)
	}
	return pub, priv, nil
}

// Sign produces an Ed25519 signature over msg.
func Sign(priv ed25519.PrivateKey, msg []byte) []byte {
	return ed25519.Sign(priv, msg)
}

// Verify reports whether sig is a valid Ed25519 signature over msg under pub.
func Verify(pub ed25519.PublicKey, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}

// DeriveAddress derives a 24-byte Address from a public key: SHA-256, then
// RIPEMD-160 over that digest for the 20-byte payload, followed by the first four
// bytes of DoubleSHA256(payload) as the checksum, per spec.md §3/§6.
func DeriveAddress(pub ed25519.PublicKey) (types.Address, error) {
	shaDigest := sha256.Sum256(pub)
	ripemder := ripemd160.New()
	if _, err := ripemder.Write(shaDigest[:]); err != nil {
		return types.Address{}, merrors.Wrap(merrors.Crypto, "ripemd160 hash", err)
	}
	payload := ripemder.Sum(nil) // 20 bytes

	checksum := DoubleSHA256(payload)

	var addr types.Address
	copy(addr[0:20], payload)
	copy(addr[20:24], checksum[0:4])
	return addr, nil
}

// VerifyAddressChecksum reports whether addr's trailing 4 bytes match the checksum
// computed from its 20-byte payload.
func VerifyAddressChecksum(addr types.Address) bool {
	checksum := DoubleSHA256(addr[0:20])
	for i := 0; i < 4; i++ {
		if addr[20+i] != checksum[i] {
			return false
		}
	}
	return true
}

// AddressToBase58 renders addr as its Base58 text form (spec.md §6).
func AddressToBase58(addr types.Address) string {
	return base58.Encode(addr.Bytes())
}

// AddressFromBase58 parses a Base58 text form back into an Address, verifying its
// checksum and length.
func AddressFromBase58(s string) (types.Address, error) {
	decoded, err := base58.Decode(s)
	if err != nil {
		return types.Address{}, merrors.Wrap(merrors.Crypto, "base58 decode address", err)
	}
	if len(decoded) != 24 {
		return types.Address{}, merrors.New(merrors.Crypto, "decoded address has wrong length")
	}
	addr := types.AddressFromBytes(decoded)
	if !VerifyAddressChecksum(addr) {
		return types.Address{}, merrors.New(merrors.Crypto, "address checksum mismatch")
	}
	return addr, nil
}
