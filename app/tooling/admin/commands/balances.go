// Package commands contains the functionality for the admin tooling.
package commands

import (
	"fmt"
	"io"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/ledger"
	"github.com/ardanlabs/ledger/foundation/blockchain/snapshot"
)

// Balances writes the balances at the tip of the chain. When an account is
// provided only that account is written.
func Balances(w io.Writer, account string, ldgr *ledger.Ledger) error {
	fmt.Fprintf(w, "LatestBlockHash: %s\n\n", ldgr.LatestBlock().Hash)

	if account != "" {
		accountID, err := database.ToAccountID(account)
		if err != nil {
			return err
		}

		fmt.Fprintf(w, "Account: %s  Balance: %d\n", accountID, ldgr.Balance(accountID))
		return nil
	}

	balances := ldgr.Balances()
	for _, accountID := range snapshot.Accounts(balances) {
		fmt.Fprintf(w, "Account: %s  Balance: %d\n", accountID, balances[accountID])
	}

	return nil
}
