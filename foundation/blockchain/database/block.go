// Package database defines the transactions and blocks that make up the
// ledger, the hash codec that seals them, and the storage abstraction used
// to persist them.
package database

import (
	"fmt"

	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
)

// Block represents a group of transactions batched together and sealed with
// a proof of work.
type Block struct {
	Index        uint64 `json:"index"`        // Position in the chain, re-derived on acceptance.
	Timestamp    uint64 `json:"timestamp"`    // Milliseconds since the epoch when the block was sealed.
	PreviousHash string `json:"previousHash"` // Hash of the parent block.
	Transactions []Tx   `json:"transactions"` // Coinbase first, when present.
	Nonce        uint64 `json:"nonce"`        // Value found by the proof of work.
	Hash         string `json:"hash"`         // HashBlock over the fields above.
}

// hashData defines the fields and the order they are encoded in when a
// block is hashed.
type hashData struct {
	PreviousHash string `json:"previousHash"`
	Timestamp    uint64 `json:"timestamp"`
	Transactions []Tx   `json:"transactions"`
	Nonce        uint64 `json:"nonce"`
}

// HashBlock produces the hash for the block fields. The same inputs always
// produce the same 64 character lowercase hex string.
func HashBlock(previousHash string, timestamp uint64, trans []Tx, nonce uint64) (string, error) {
	if trans == nil {
		trans = []Tx{}
	}

	hd := hashData{
		PreviousHash: previousHash,
		Timestamp:    timestamp,
		Transactions: trans,
		Nonce:        nonce,
	}

	hash, err := signature.Hash(hd)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrEncoding, err)
	}

	return hash, nil
}

// IsHashSolved checks the hash to make sure it complies with the POW rules.
// We need to match a difficulty number of leading 0's.
func IsHashSolved(difficulty uint16, hash string) bool {
	if len(hash) != 64 || int(difficulty) > len(hash) {
		return false
	}

	for i := 0; i < int(difficulty); i++ {
		if hash[i] != '0' {
			return false
		}
	}

	return true
}

// =============================================================================

// Genesis constructs the first block of every chain. The genesis block is
// not mined so it is exempt from the difficulty rule.
func Genesis(timestamp uint64) (Block, error) {
	b := Block{
		Index:        0,
		Timestamp:    timestamp,
		PreviousHash: signature.ZeroHash,
		Transactions: []Tx{},
	}

	hash, err := b.ComputeHash()
	if err != nil {
		return Block{}, err
	}
	b.Hash = hash

	return b, nil
}

// ComputeHash recomputes the hash for the block from its fields.
func (b Block) ComputeHash() (string, error) {
	return HashBlock(b.PreviousHash, b.Timestamp, b.Transactions, b.Nonce)
}

// Coinbase returns the coinbase transaction of the block if one exists.
func (b Block) Coinbase() (Tx, bool) {
	for _, tx := range b.Transactions {
		if tx.IsCoinbase() {
			return tx, true
		}
	}

	return Tx{}, false
}

// ValidateStructure checks the block is well formed. Nothing outside the
// block is consulted.
func (b Block) ValidateStructure() error {
	if !isHash(b.Hash) {
		return fmt.Errorf("%w: invalid hash %q", ErrStructural, b.Hash)
	}

	if !isHash(b.PreviousHash) {
		return fmt.Errorf("%w: invalid previous hash %q", ErrStructural, b.PreviousHash)
	}

	var coinbases int
	for i, tx := range b.Transactions {
		if err := tx.Validate(); err != nil {
			return fmt.Errorf("tx[%d]: %w", i, err)
		}

		if tx.IsCoinbase() {
			coinbases++
		}
	}

	if coinbases > 1 {
		return fmt.Errorf("%w: block has %d coinbase transactions", ErrStructural, coinbases)
	}

	return nil
}

// ValidatePOW checks the hash of the block matches its fields and solves
// the puzzle for the specified difficulty.
func (b Block) ValidatePOW(difficulty uint16) error {
	hash, err := b.ComputeHash()
	if err != nil {
		return err
	}

	if hash != b.Hash {
		return fmt.Errorf("%w: hash mismatch, got %s, exp %s", ErrValidation, b.Hash, hash)
	}

	if !IsHashSolved(difficulty, b.Hash) {
		return fmt.Errorf("%w: hash %s does not meet difficulty %d", ErrValidation, b.Hash, difficulty)
	}

	return nil
}

// ValidateLink checks the block is a child of the parent block.
func (b Block) ValidateLink(parent Block) error {
	if b.PreviousHash != parent.Hash {
		return fmt.Errorf("%w: previous hash %s, parent hash %s", ErrLinkage, b.PreviousHash, parent.Hash)
	}

	return nil
}

// String implements the fmt.Stringer interface for logging.
func (b Block) String() string {
	return fmt.Sprintf("%d:%s", b.Index, shortHash(b.Hash))
}

// =============================================================================

// isHash validates the string is 64 lowercase hex characters.
func isHash(s string) bool {
	if len(s) != 64 {
		return false
	}

	for _, c := range []byte(s) {
		if !('0' <= c && c <= '9') && !('a' <= c && c <= 'f') {
			return false
		}
	}

	return true
}

func shortHash(hash string) string {
	if len(hash) < 12 {
		return hash
	}

	return hash[:12]
}
