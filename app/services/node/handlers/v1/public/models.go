package public

import (
	"github.com/ardanlabs/ledger/foundation/blockchain/database"
)

type tx struct {
	FromAccount database.AccountID `json:"from"`
	FromName    string             `json:"from_name"`
	To          database.AccountID `json:"to"`
	ToName      string             `json:"to_name"`
	Amount      uint64             `json:"amount"`
	Nonce       uint64             `json:"nonce"`
	Hash        string             `json:"hash"`
	Sig         database.Signature `json:"sig"`
}

type block struct {
	Index        uint64 `json:"index"`
	Timestamp    uint64 `json:"timestamp"`
	PreviousHash string `json:"previous_hash"`
	Hash         string `json:"hash"`
	Nonce        uint64 `json:"nonce"`
	Transactions []tx   `json:"transactions"`
}

type info struct {
	Account database.AccountID `json:"account"`
	Name    string             `json:"name"`
	Balance uint64             `json:"balance"`
}

type actInfo struct {
	LatestBlock string `json:"latest_block"`
	Uncommitted int    `json:"uncommitted"`
	Accounts    []info `json:"accounts"`
}

// newTx is the payload a wallet submits for a new transaction.
type newTx struct {
	From      database.AccountID `json:"from" validate:"required"`
	To        database.AccountID `json:"to" validate:"required"`
	Amount    uint64             `json:"amount" validate:"gt=0"`
	Nonce     uint64             `json:"nonce"`
	Signature database.Signature `json:"signature" validate:"required"`
}

func (ntx newTx) toTx() database.Tx {
	return database.Tx{
		From:      ntx.From,
		To:        ntx.To,
		Amount:    ntx.Amount,
		Nonce:     ntx.Nonce,
		Signature: ntx.Signature,
	}
}
