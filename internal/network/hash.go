package network

import (
	"crypto/sha256"

	"github.com/meridian-chain/meridian-node/internal/types"
)

func sha256Sum(b []byte) types.Hash {
	return types.Hash(sha256.Sum256(b))
}
