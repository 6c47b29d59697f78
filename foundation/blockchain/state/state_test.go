package state_test

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"testing"
	"time"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/database/storage/memory"
	"github.com/ardanlabs/ledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/ledger/foundation/blockchain/ledger"
	"github.com/ardanlabs/ledger/foundation/blockchain/miner"
	"github.com/ardanlabs/ledger/foundation/blockchain/network"
	"github.com/ardanlabs/ledger/foundation/blockchain/peer"
	"github.com/ardanlabs/ledger/foundation/blockchain/state"
	"github.com/ardanlabs/ledger/foundation/blockchain/worker"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

var gen = genesis.Genesis{
	ChainID:       1,
	TransPerBlock: 10,
	Difficulty:    1,
	MiningReward:  50,
	SyncLookback:  10,
}

// =============================================================================

func Test_MineAndShare(t *testing.T) {
	alice, aliceID := newAccount(t)
	_, bobID := newAccount(t)
	_, minerID := newAccount(t)

	hub := network.NewHub()
	hosts := []peer.Peer{peer.New("node-a"), peer.New("node-b")}

	nodeA := newNode(t, hub, hosts[0], minerID, hosts)
	defer nodeA.Shutdown()

	nodeB := newNode(t, hub, hosts[1], minerID, hosts)
	defer nodeB.Shutdown()

	t.Log("Given the need to mine and share blocks between nodes.")
	{
		funding, err := miner.New(nil).Seal(context.Background(), miner.SealArgs{
			Previous:    nodeA.RetrieveLatestBlock(),
			Beneficiary: aliceID,
			Reward:      gen.MiningReward,
			Difficulty:  gen.Difficulty,
		})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to mine a funding block: %v", failed, err)
		}

		outcome, err := nodeA.ProcessProposedBlock(funding)
		if err != nil || outcome != ledger.OutcomeExtended {
			t.Fatalf("\t%s\tShould accept the funding block: %s %v", failed, outcome, err)
		}
		t.Logf("\t%s\tShould accept the funding block.", success)

		eventually(t, "relay the funding block", func() bool {
			return nodeB.RetrieveLatestBlock().Hash == funding.Hash
		})
		t.Logf("\t%s\tShould relay the funding block to the peer.", success)

		tx, err := database.NewTx(aliceID, bobID, 10, 1)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct a transaction: %v", failed, err)
		}
		signed, err := tx.Sign(alice)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to sign a transaction: %v", failed, err)
		}

		if err := nodeA.SubmitWalletTransaction(signed); err != nil {
			t.Fatalf("\t%s\tShould be able to submit a transaction: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to submit a transaction.", success)

		eventually(t, "mine the transaction on both nodes", func() bool {
			a, b := nodeA.RetrieveLatestBlock(), nodeB.RetrieveLatestBlock()
			return a.Index == 2 && a.Hash == b.Hash && nodeB.QueryMempoolLength() == 0
		})
		t.Logf("\t%s\tShould mine the transaction and converge.", success)

		for _, node := range []*state.State{nodeA, nodeB} {
			if node.RetrieveBalance(bobID) != 10 || node.RetrieveBalance(aliceID) != 40 || node.RetrieveBalance(minerID) != 50 {
				t.Fatalf("\t%s\tShould agree on the balances: %v", failed, node.RetrieveBalances())
			}
		}
		t.Logf("\t%s\tShould agree on the balances.", success)

		status := nodeB.RetrieveStatus()
		if status.LatestBlockNumber != 2 || len(status.KnownPeers) != 1 || status.KnownPeers[0] != hosts[0] {
			t.Fatalf("\t%s\tShould report the node status: %+v", failed, status)
		}
		t.Logf("\t%s\tShould report the node status.", success)
	}
}

// =============================================================================

func newNode(t *testing.T, hub *network.Hub, self peer.Peer, beneficiary database.AccountID, hosts []peer.Peer) *state.State {
	ev := func(v string, args ...any) {
		t.Log(self.Host + ": " + fmt.Sprintf(v, args...))
	}

	st, err := state.New(state.Config{
		BeneficiaryID: beneficiary,
		Genesis:       gen,
		Storage:       memory.New(),
		KnownPeers:    peer.NewSet(hosts...),
		Link:          hub.Join(self),
		SyncTimeout:   time.Second,
		EvHandler:     ev,
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the node: %v", failed, err)
	}

	worker.Run(st, worker.Config{SyncInterval: time.Hour}, state.EventHandler(ev))

	return st
}

func eventually(t *testing.T, what string, fn func() bool) {
	deadline := time.Now().Add(10 * time.Second)
	for !fn() {
		if time.Now().After(deadline) {
			t.Fatalf("\t%s\tShould %s in time.", failed, what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func newAccount(t *testing.T) (*ecdsa.PrivateKey, database.AccountID) {
	pk, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to generate a key: %v", failed, err)
	}

	return pk, database.PublicKeyToAccountID(pk.PublicKey)
}
