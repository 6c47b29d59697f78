package snapshot_test

import (
	"crypto/ecdsa"
	"errors"
	"testing"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/snapshot"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const reward = 50

// =============================================================================

func Test_Models(t *testing.T) {
	alice, aliceID := newAccount(t)
	_, bobID := newAccount(t)

	models := []string{snapshot.ModelUTXO, snapshot.ModelBalance}

	t.Log("Given the need to fold transactions into a snapshot.")
	{
		for testID, model := range models {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen handling the %s model.", testID, model)

				snap, err := snapshot.New(model)
				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to construct the snapshot: %v", failed, testID, err)
				}

				v := snapshot.Validator{Reward: reward}

				trans := []database.Tx{
					database.NewCoinbase(aliceID, reward, 1),
					database.NewCoinbase(aliceID, reward, 2),
					sign(t, alice, aliceID, bobID, 70, 1),
				}

				if err := v.ApplyAll(trans, snap); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to apply the transactions: %v", failed, testID, err)
				}
				t.Logf("\t%s\tTest %d:\tShould be able to apply the transactions.", success, testID)

				if got := snap.Balance(aliceID); got != 30 {
					t.Fatalf("\t%s\tTest %d:\tShould leave alice with 30, got %d.", failed, testID, got)
				}
				if got := snap.Balance(bobID); got != 70 {
					t.Fatalf("\t%s\tTest %d:\tShould give bob 70, got %d.", failed, testID, got)
				}
				t.Logf("\t%s\tTest %d:\tShould have the right balances.", success, testID)

				var total uint64
				for _, value := range snap.Balances() {
					total += value
				}
				if total != 2*reward {
					t.Fatalf("\t%s\tTest %d:\tShould conserve value, got %d.", failed, testID, total)
				}
				t.Logf("\t%s\tTest %d:\tShould conserve value.", success, testID)

				replay := trans[2]
				if err := v.Validate(replay, snap); !errors.Is(err, database.ErrValidation) {
					t.Fatalf("\t%s\tTest %d:\tShould reject a replayed transaction: %v", failed, testID, err)
				}
				t.Logf("\t%s\tTest %d:\tShould reject a replayed transaction.", success, testID)

				over := sign(t, alice, aliceID, bobID, 31, 2)
				if err := v.Validate(over, snap); !errors.Is(err, database.ErrValidation) {
					t.Fatalf("\t%s\tTest %d:\tShould reject an overspend: %v", failed, testID, err)
				}
				t.Logf("\t%s\tTest %d:\tShould reject an overspend.", success, testID)

				cpy := snap.Copy()
				if err := cpy.Apply(sign(t, alice, aliceID, bobID, 30, 3)); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to apply to a copy: %v", failed, testID, err)
				}
				if snap.Balance(aliceID) != 30 || cpy.Balance(aliceID) != 0 {
					t.Fatalf("\t%s\tTest %d:\tShould not change the original through a copy.", failed, testID)
				}
				t.Logf("\t%s\tTest %d:\tShould not change the original through a copy.", success, testID)
			}

			t.Run(model, f)
		}
	}
}

func Test_Validator(t *testing.T) {
	alice, aliceID := newAccount(t)
	mallory, _ := newAccount(t)
	_, bobID := newAccount(t)

	snap := snapshot.NewBalance()
	if err := snap.Apply(database.NewCoinbase(aliceID, reward, 1)); err != nil {
		t.Fatalf("\t%s\tShould be able to fund alice: %v", failed, err)
	}

	forged, err := database.Tx{From: aliceID, To: bobID, Amount: 10, Nonce: 1}.Sign(mallory)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to sign: %v", failed, err)
	}

	type table struct {
		name string
		tx   database.Tx
		err  error
	}

	tt := []table{
		{"valid", sign(t, alice, aliceID, bobID, 10, 1), nil},
		{"coinbase", database.NewCoinbase(bobID, reward, 2), nil},
		{"bad-reward", database.NewCoinbase(bobID, reward+1, 2), database.ErrValidation},
		{"forged", forged, database.ErrValidation},
		{"unsigned", database.Tx{From: aliceID, To: bobID, Amount: 10, Nonce: 2}, database.ErrValidation},
		{"zero", database.Tx{From: aliceID, To: bobID, Amount: 0, Nonce: 3}, database.ErrStructural},
		{"bad-to", database.Tx{From: aliceID, To: "M", Amount: 1, Nonce: 4}, database.ErrStructural},
	}

	v := snapshot.Validator{Reward: reward}

	t.Log("Given the need to validate transactions.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				err := v.Validate(tst.tx, snap)

				switch tst.err {
				case nil:
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould accept the %s transaction: %v", failed, testID, tst.name, err)
					}
				default:
					if !errors.Is(err, tst.err) {
						t.Fatalf("\t%s\tTest %d:\tShould reject the %s transaction with %v: %v", failed, testID, tst.name, tst.err, err)
					}
				}
				t.Logf("\t%s\tTest %d:\tShould handle the %s transaction.", success, testID, tst.name)
			}

			t.Run(tst.name, f)
		}

		if snap.Balance(aliceID) != reward {
			t.Fatalf("\t%s\tShould not mutate the snapshot while validating.", failed)
		}
		t.Logf("\t%s\tShould not mutate the snapshot while validating.", success)
	}
}

func Test_UTXOSelection(t *testing.T) {
	alice, aliceID := newAccount(t)
	_, bobID := newAccount(t)

	t.Log("Given the need to spend the oldest outputs first.")
	{
		u := snapshot.NewUTXO()
		for i := 0; i < 3; i++ {
			if err := u.Apply(database.NewCoinbase(aliceID, reward, uint64(i+1))); err != nil {
				t.Fatalf("\t%s\tShould be able to fund alice: %v", failed, err)
			}
		}

		tx := sign(t, alice, aliceID, bobID, 60, 1)
		if err := u.Apply(tx); err != nil {
			t.Fatalf("\t%s\tShould be able to spend: %v", failed, err)
		}

		outputs := u.Unspent(aliceID)
		if len(outputs) != 2 {
			t.Fatalf("\t%s\tShould leave the newest coinbase and the change, got %d outputs.", failed, len(outputs))
		}

		change, exists := outputs[snapshot.OutPoint{TxHash: tx.Hash(), Index: 1}]
		if !exists || change.Amount != 40 {
			t.Fatalf("\t%s\tShould create 40 of change: %+v", failed, outputs)
		}

		newest := database.NewCoinbase(aliceID, reward, 3)
		if _, exists := outputs[snapshot.OutPoint{TxHash: newest.Hash(), Index: 0}]; !exists {
			t.Fatalf("\t%s\tShould keep the newest coinbase output unspent.", failed)
		}
		t.Logf("\t%s\tShould spend the oldest outputs first.", success)
	}
}

func Test_UnknownModel(t *testing.T) {
	t.Log("Given the need to select a snapshot model.")
	{
		if _, err := snapshot.New("ledger"); err == nil {
			t.Fatalf("\t%s\tShould reject an unknown model.", failed)
		}
		t.Logf("\t%s\tShould reject an unknown model.", success)
	}
}

// =============================================================================

func newAccount(t *testing.T) (*ecdsa.PrivateKey, database.AccountID) {
	pk, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to generate a key: %v", failed, err)
	}

	return pk, database.PublicKeyToAccountID(pk.PublicKey)
}

func sign(t *testing.T, pk *ecdsa.PrivateKey, from, to database.AccountID, amount, nonce uint64) database.Tx {
	tx, err := database.NewTx(from, to, amount, nonce)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct a transaction: %v", failed, err)
	}

	signed, err := tx.Sign(pk)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to sign a transaction: %v", failed, err)
	}

	return signed
}
