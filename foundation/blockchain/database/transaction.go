package database

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Signature is the 65 byte recoverable signature of a transaction. It is
// written as a 0x prefixed hex string, or null when missing.
type Signature []byte

// MarshalJSON implements the json.Marshaler interface.
func (s Signature) MarshalJSON() ([]byte, error) {
	if len(s) == 0 {
		return []byte("null"), nil
	}

	return json.Marshal(hexutil.Encode(s))
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (s *Signature) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = nil
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	b, err := hexutil.Decode(str)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}

	*s = b
	return nil
}

// =============================================================================

// Tx is a transfer of value between two parties. A transaction without a
// sender is a coinbase transaction that mints the mining reward.
type Tx struct {
	From      AccountID `json:"from"`      // Empty for a coinbase.
	To        AccountID `json:"to"`        // Account receiving the value.
	Amount    uint64    `json:"amount"`    // Value being transferred.
	Nonce     uint64    `json:"nonce"`     // Chosen by the sender, the block index for a coinbase.
	Signature Signature `json:"signature"` // Sender's signature over the payload.
}

// payload is the part of a transaction that is signed and identifies it.
type payload struct {
	From   AccountID `json:"from"`
	To     AccountID `json:"to"`
	Amount uint64    `json:"amount"`
	Nonce  uint64    `json:"nonce"`
}

// NewTx constructs a new unsigned transaction.
func NewTx(from AccountID, to AccountID, amount uint64, nonce uint64) (Tx, error) {
	tx := Tx{
		From:   from,
		To:     to,
		Amount: amount,
		Nonce:  nonce,
	}

	if err := tx.Validate(); err != nil {
		return Tx{}, err
	}

	return tx, nil
}

// NewCoinbase constructs the transaction that pays the mining reward to the
// beneficiary of the block at the specified index.
func NewCoinbase(beneficiary AccountID, reward uint64, index uint64) Tx {
	return Tx{
		To:     beneficiary,
		Amount: reward,
		Nonce:  index,
	}
}

// IsCoinbase reports whether the transaction mints new value.
func (tx Tx) IsCoinbase() bool {
	return tx.From == ""
}

// Hash returns the identity of the transaction. The signature is not part of
// the identity.
func (tx Tx) Hash() string {
	h, err := signature.Hash(tx.payload())
	if err != nil {
		return signature.ZeroHash
	}

	return h
}

// Sign uses the specified private key to sign the transaction.
func (tx Tx) Sign(privateKey *ecdsa.PrivateKey) (Tx, error) {
	if tx.IsCoinbase() {
		return Tx{}, fmt.Errorf("%w: coinbase transactions are not signed", ErrStructural)
	}

	sig, err := signature.Sign(tx.payload(), privateKey)
	if err != nil {
		return Tx{}, err
	}

	tx.Signature = sig
	return tx, nil
}

// Validate checks the structure of the transaction. It does not check the
// signature or the funds of the sender.
func (tx Tx) Validate() error {
	if !tx.To.IsAccountID() {
		return fmt.Errorf("%w: invalid to account %q", ErrStructural, tx.To)
	}

	if tx.Amount == 0 {
		return fmt.Errorf("%w: amount must be positive", ErrStructural)
	}

	if !tx.IsCoinbase() && !tx.From.IsAccountID() {
		return fmt.Errorf("%w: invalid from account %q", ErrStructural, tx.From)
	}

	return nil
}

// FromAccount extracts the account id that signed the transaction.
func (tx Tx) FromAccount() (AccountID, error) {
	address, err := signature.FromAddress(tx.payload(), tx.Signature)
	if err != nil {
		return "", err
	}

	return AccountID(address), nil
}

// VerifySignature checks the transaction was signed by the sender.
func (tx Tx) VerifySignature() error {
	signer, err := tx.FromAccount()
	if err != nil {
		return fmt.Errorf("%w: invalid signature: %s", ErrValidation, err)
	}

	if !strings.EqualFold(string(signer), string(tx.From)) {
		return fmt.Errorf("%w: signature belongs to %s, not %s", ErrValidation, signer, tx.From)
	}

	return nil
}

// String implements the fmt.Stringer interface for logging.
func (tx Tx) String() string {
	from := string(tx.From)
	if tx.IsCoinbase() {
		from = "coinbase"
	}

	return fmt.Sprintf("%s->%s:%d:%d", from, tx.To, tx.Amount, tx.Nonce)
}

func (tx Tx) payload() payload {
	return payload{
		From:   tx.From,
		To:     tx.To,
		Amount: tx.Amount,
		Nonce:  tx.Nonce,
	}
}
