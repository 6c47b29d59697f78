package database_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const (
	pkHexKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	from     = database.AccountID("0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4")
	to       = database.AccountID("0xF01813E4B85e178A83e29B8E7bF26BD830a25f32")
)

// =============================================================================

func Test_HashBlock(t *testing.T) {
	trans := []database.Tx{database.NewCoinbase(to, 50, 1)}

	t.Log("Given the need to hash block fields.")
	{
		h1, err := database.HashBlock(signature.ZeroHash, 1000, trans, 7)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to hash the fields: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to hash the fields.", success)

		h2, _ := database.HashBlock(signature.ZeroHash, 1000, trans, 7)
		if h1 != h2 {
			t.Fatalf("\t%s\tShould get the same hash for the same fields.", failed)
		}
		t.Logf("\t%s\tShould get the same hash for the same fields.", success)

		if len(h1) != 64 || strings.ToLower(h1) != h1 {
			t.Fatalf("\t%s\tShould get 64 lowercase hex characters: %s", failed, h1)
		}
		t.Logf("\t%s\tShould get 64 lowercase hex characters.", success)

		h3, _ := database.HashBlock(signature.ZeroHash, 1000, trans, 8)
		if h1 == h3 {
			t.Fatalf("\t%s\tShould get a different hash for a different nonce.", failed)
		}
		t.Logf("\t%s\tShould get a different hash for a different nonce.", success)

		hNil, _ := database.HashBlock(signature.ZeroHash, 1000, nil, 0)
		hEmpty, _ := database.HashBlock(signature.ZeroHash, 1000, []database.Tx{}, 0)
		if hNil != hEmpty {
			t.Fatalf("\t%s\tShould treat nil and empty transactions the same.", failed)
		}
		t.Logf("\t%s\tShould treat nil and empty transactions the same.", success)
	}
}

func Test_Genesis(t *testing.T) {
	t.Log("Given the need to build the genesis block.")
	{
		g1, err := database.Genesis(1000)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to build genesis: %v", failed, err)
		}

		g2, _ := database.Genesis(1000)
		if g1.Hash != g2.Hash {
			t.Fatalf("\t%s\tShould build the same genesis for the same timestamp.", failed)
		}
		t.Logf("\t%s\tShould build the same genesis for the same timestamp.", success)

		if g1.Index != 0 || g1.PreviousHash != signature.ZeroHash || len(g1.Transactions) != 0 {
			t.Fatalf("\t%s\tShould have the genesis fields set: %+v", failed, g1)
		}
		t.Logf("\t%s\tShould have the genesis fields set.", success)

		if err := g1.ValidateStructure(); err != nil {
			t.Fatalf("\t%s\tShould be structurally valid: %v", failed, err)
		}
		t.Logf("\t%s\tShould be structurally valid.", success)
	}
}

func Test_IsHashSolved(t *testing.T) {
	type table struct {
		name       string
		difficulty uint16
		hash       string
		solved     bool
	}

	tt := []table{
		{"zero", 0, strings.Repeat("f", 64), true},
		{"one", 1, "0" + strings.Repeat("f", 63), true},
		{"two-miss", 2, "0" + strings.Repeat("f", 63), false},
		{"short", 1, "00", false},
		{"too-hard", 65, strings.Repeat("0", 64), false},
	}

	t.Log("Given the need to check the proof of work.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				got := database.IsHashSolved(tst.difficulty, tst.hash)
				if got != tst.solved {
					t.Fatalf("\t%s\tTest %d:\tShould get %v for %s.", failed, testID, tst.solved, tst.name)
				}
				t.Logf("\t%s\tTest %d:\tShould get %v for %s.", success, testID, tst.solved, tst.name)
			}

			t.Run(tst.name, f)
		}
	}
}

func Test_Transaction(t *testing.T) {
	t.Log("Given the need to sign and verify transactions.")
	{
		pk, err := crypto.HexToECDSA(pkHexKey)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to load the private key: %v", failed, err)
		}

		tx, err := database.NewTx(from, to, 10, 1)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct a transaction: %v", failed, err)
		}

		signed, err := tx.Sign(pk)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to sign the transaction: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to sign the transaction.", success)

		if err := signed.VerifySignature(); err != nil {
			t.Fatalf("\t%s\tShould verify the signature: %v", failed, err)
		}
		t.Logf("\t%s\tShould verify the signature.", success)

		if signed.Hash() != tx.Hash() {
			t.Fatalf("\t%s\tShould not include the signature in the identity.", failed)
		}
		t.Logf("\t%s\tShould not include the signature in the identity.", success)

		forged := signed
		forged.Amount = 1000
		if err := forged.VerifySignature(); !errors.Is(err, database.ErrValidation) {
			t.Fatalf("\t%s\tShould reject a changed amount: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a changed amount.", success)

		data, err := json.Marshal(signed)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to marshal: %v", failed, err)
		}

		var decoded database.Tx
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("\t%s\tShould be able to unmarshal: %v", failed, err)
		}

		if err := decoded.VerifySignature(); err != nil {
			t.Fatalf("\t%s\tShould verify the signature after the wire: %v", failed, err)
		}
		t.Logf("\t%s\tShould verify the signature after the wire.", success)

		if _, err := database.NewTx(from, "M", 10, 1); !errors.Is(err, database.ErrStructural) {
			t.Fatalf("\t%s\tShould reject a bad to account: %v", failed, err)
		}
		if _, err := database.NewTx(from, to, 0, 1); !errors.Is(err, database.ErrStructural) {
			t.Fatalf("\t%s\tShould reject a zero amount: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject malformed transactions.", success)
	}
}

func Test_CoinbaseJSON(t *testing.T) {
	t.Log("Given the need to encode a coinbase transaction.")
	{
		cb := database.NewCoinbase(to, 50, 3)

		data, err := json.Marshal(cb)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to marshal: %v", failed, err)
		}

		exp := `{"from":null,"to":"0xF01813E4B85e178A83e29B8E7bF26BD830a25f32","amount":50,"nonce":3,"signature":null}`
		if string(data) != exp {
			t.Logf("\t\tgot: %s", data)
			t.Logf("\t\texp: %s", exp)
			t.Fatalf("\t%s\tShould encode the missing sender as null.", failed)
		}
		t.Logf("\t%s\tShould encode the missing sender as null.", success)

		var decoded database.Tx
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("\t%s\tShould be able to unmarshal: %v", failed, err)
		}

		if !decoded.IsCoinbase() || decoded.Signature != nil {
			t.Fatalf("\t%s\tShould decode back into a coinbase: %+v", failed, decoded)
		}
		t.Logf("\t%s\tShould decode back into a coinbase.", success)
	}
}

func Test_ValidateBlock(t *testing.T) {
	genesis, err := database.Genesis(0)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to build genesis: %v", failed, err)
	}

	t.Log("Given the need to validate a block.")
	{
		b := database.Block{
			Index:        1,
			Timestamp:    1000,
			PreviousHash: genesis.Hash,
			Transactions: []database.Tx{database.NewCoinbase(to, 50, 1)},
		}

		for !database.IsHashSolved(1, b.Hash) {
			b.Nonce++
			b.Hash, _ = b.ComputeHash()
		}

		if err := b.ValidateStructure(); err != nil {
			t.Fatalf("\t%s\tShould be structurally valid: %v", failed, err)
		}
		if err := b.ValidatePOW(1); err != nil {
			t.Fatalf("\t%s\tShould solve difficulty 1: %v", failed, err)
		}
		if err := b.ValidateLink(genesis); err != nil {
			t.Fatalf("\t%s\tShould link to genesis: %v", failed, err)
		}
		t.Logf("\t%s\tShould accept a sealed block.", success)

		tampered := b
		tampered.Transactions = []database.Tx{database.NewCoinbase(to, 5000, 1)}
		if err := tampered.ValidatePOW(1); !errors.Is(err, database.ErrValidation) {
			t.Fatalf("\t%s\tShould detect a tampered block: %v", failed, err)
		}
		t.Logf("\t%s\tShould detect a tampered block.", success)

		double := b
		double.Transactions = append(double.Transactions, database.NewCoinbase(to, 50, 2))
		if err := double.ValidateStructure(); !errors.Is(err, database.ErrStructural) {
			t.Fatalf("\t%s\tShould reject two coinbase transactions: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject two coinbase transactions.", success)

		orphan := b
		orphan.PreviousHash = b.Hash
		if err := orphan.ValidateLink(genesis); !errors.Is(err, database.ErrLinkage) {
			t.Fatalf("\t%s\tShould reject a block that does not link: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a block that does not link.", success)
	}
}
