package commands

import (
	"fmt"
	"io"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/ledger"
)

// Blocks writes every block of the chain with its transactions. When an
// account is provided only the transactions involving it are written.
func Blocks(w io.Writer, account string, ldgr *ledger.Ledger) error {
	var accountID database.AccountID
	if account != "" {
		var err error
		if accountID, err = database.ToAccountID(account); err != nil {
			return err
		}
	}

	blocks, err := ldgr.Blocks(0)
	if err != nil {
		return err
	}

	for _, block := range blocks {
		fmt.Fprintf(w, "Block: %d  Hash: %s  Prev: %s  Nonce: %d\n", block.Index, block.Hash, block.PreviousHash, block.Nonce)

		for _, tx := range block.Transactions {
			if accountID != "" && tx.From != accountID && tx.To != accountID {
				continue
			}

			from := string(tx.From)
			if tx.IsCoinbase() {
				from = "coinbase"
			}
			fmt.Fprintf(w, "  ID: %s  From: %s  To: %s  Amount: %d\n", tx.Hash(), from, tx.To, tx.Amount)
		}
	}

	return nil
}
