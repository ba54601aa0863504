package transferid

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

const prefixV1 = "token-transfer-v1"

// V1 computes the journal id of a submitted transfer.
//
//	id = keccak256("token-transfer-v1" || chainId (32B BE) || token || from || nonce (8B BE))
//
// A (chain, sender, nonce) triple identifies at most one mined transaction, so two submissions
// always get distinct ids; the id carries no de-duplication meaning.
func V1(chainID *big.Int, token, from common.Address, nonce uint64) common.Hash {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write([]byte(prefixV1))

	var chain [32]byte
	if chainID != nil && chainID.Sign() > 0 {
		chainID.FillBytes(chain[:])
	}
	_, _ = h.Write(chain[:])
	_, _ = h.Write(token[:])
	_, _ = h.Write(from[:])

	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	_, _ = h.Write(n[:])

	return common.BytesToHash(h.Sum(nil))
}
