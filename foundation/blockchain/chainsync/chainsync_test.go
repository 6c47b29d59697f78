package chainsync_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ardanlabs/ledger/foundation/blockchain/chainsync"
	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/database/storage/memory"
	"github.com/ardanlabs/ledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/ledger/foundation/blockchain/ledger"
	"github.com/ardanlabs/ledger/foundation/blockchain/miner"
	"github.com/ardanlabs/ledger/foundation/blockchain/network"
	"github.com/ardanlabs/ledger/foundation/blockchain/peer"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

var gen = genesis.Genesis{
	Difficulty:    1,
	MiningReward:  50,
	TransPerBlock: 10,
}

// =============================================================================

func Test_CatchUp(t *testing.T) {
	t.Log("Given the need to catch up with a peer that is ahead.")
	{
		hub := network.NewHub()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// node-0 is joined but never answers.
		hub.Join(peer.New("node-0"))

		ahead := newNode(ctx, t, hub, "node-b", 500*time.Millisecond)
		behind := newNode(ctx, t, hub, "node-a", 500*time.Millisecond)

		beneficiary := newAccountID(t)
		shared := mine(t, ahead.chain.LatestBlock(), beneficiary, 100)
		accept(t, ahead.chain, shared)
		accept(t, behind.chain, shared)
		accept(t, behind.chain, mine(t, shared, beneficiary, 150))
		for i := 0; i < 4; i++ {
			accept(t, ahead.chain, mine(t, ahead.chain.LatestBlock(), beneficiary, uint64(200+i)))
		}

		target := ahead.chain.LatestBlock().Index
		if err := behind.coord.CatchUp(ctx, target); err != nil {
			t.Fatalf("\t%s\tShould be able to catch up: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to catch up past a silent peer.", success)

		if behind.chain.LatestBlock().Hash != ahead.chain.LatestBlock().Hash {
			t.Fatalf("\t%s\tShould converge on the longest chain: %s %s", failed, behind.chain.LatestBlock(), ahead.chain.LatestBlock())
		}
		t.Logf("\t%s\tShould converge on the longest chain.", success)

		if err := behind.coord.CatchUp(ctx, target); err != nil {
			t.Fatalf("\t%s\tShould do nothing once caught up: %v", failed, err)
		}
		t.Logf("\t%s\tShould do nothing once caught up.", success)
	}
}

func Test_Exhausted(t *testing.T) {
	t.Log("Given the need to give up when no peer answers.")
	{
		hub := network.NewHub()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		hub.Join(peer.New("node-0"))
		node := newNode(ctx, t, hub, "node-a", 100*time.Millisecond)

		if err := node.coord.CatchUp(ctx, 5); !errors.Is(err, chainsync.ErrSyncExhausted) {
			t.Fatalf("\t%s\tShould report the peers are exhausted: %v", failed, err)
		}
		t.Logf("\t%s\tShould report the peers are exhausted.", success)
	}
}

func Test_ResponseFromOtherPeer(t *testing.T) {
	t.Log("Given the need to only accept a response from the peer that was asked.")
	{
		hub := network.NewHub()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		asked := hub.Join(peer.New("node-b"))

		chain, err := ledger.New(ledger.Config{Genesis: gen, Storage: memory.New()})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct the ledger: %v", failed, err)
		}

		ahead, err := ledger.New(ledger.Config{Genesis: gen, Storage: memory.New()})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct the ledger: %v", failed, err)
		}

		beneficiary := newAccountID(t)
		for i := 0; i < 2; i++ {
			accept(t, ahead, mine(t, ahead.LatestBlock(), beneficiary, uint64(100+i)))
		}

		coord := chainsync.New(chainsync.Config{
			Chain:     chain,
			Link:      hub.Join(peer.New("node-a")),
			Peers:     peer.NewSet(peer.New("node-b")),
			Timeout:   5 * time.Second,
			EvHandler: func(v string, args ...any) { t.Logf(v, args...) },
		})

		errs := make(chan error, 1)
		go func() {
			errs <- coord.CatchUp(ctx, ahead.LatestBlock().Index)
		}()

		var req network.Envelope
		select {
		case req = <-asked.Receive():
		case <-ctx.Done():
			t.Fatalf("\t%s\tShould receive the catch up request.", failed)
		}
		t.Logf("\t%s\tShould receive the catch up request.", success)

		resp := chainsync.Response(ahead, req.Message)

		if coord.HandleResponse(network.Envelope{From: peer.New("node-c"), Message: resp}) {
			t.Fatalf("\t%s\tShould drop a response from a peer that was not asked.", failed)
		}
		t.Logf("\t%s\tShould drop a response from a peer that was not asked.", success)

		if !coord.HandleResponse(network.Envelope{From: peer.New("node-b"), Message: resp}) {
			t.Fatalf("\t%s\tShould deliver the response from the peer that was asked.", failed)
		}
		t.Logf("\t%s\tShould deliver the response from the peer that was asked.", success)

		if err := <-errs; err != nil {
			t.Fatalf("\t%s\tShould be able to catch up: %v", failed, err)
		}

		if chain.LatestBlock().Hash != ahead.LatestBlock().Hash {
			t.Fatalf("\t%s\tShould converge on the asked peer's chain: %s %s", failed, chain.LatestBlock(), ahead.LatestBlock())
		}
		t.Logf("\t%s\tShould converge on the asked peer's chain.", success)
	}
}

func Test_Response(t *testing.T) {
	t.Log("Given the need to answer catch up requests.")
	{
		chain, err := ledger.New(ledger.Config{Genesis: gen, Storage: memory.New()})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct the ledger: %v", failed, err)
		}

		resp := chainsync.Response(chain, network.NewSyncChain("req-1", 0))
		if resp.Type != network.TypeSyncChainResponse || resp.ReplyTo != "req-1" || len(resp.Chain) != 1 || resp.Error != "" {
			t.Fatalf("\t%s\tShould respond with the chain: %+v", failed, resp)
		}
		t.Logf("\t%s\tShould respond with the chain.", success)

		resp = chainsync.Response(chain, network.NewSyncChain("req-2", 1))
		if resp.Error != "" || len(resp.Chain) != 0 {
			t.Fatalf("\t%s\tShould respond with nothing past the tip: %+v", failed, resp)
		}
		t.Logf("\t%s\tShould respond with nothing past the tip.", success)

		resp = chainsync.Response(chain, network.NewSyncChain("req-3", 2))
		if resp.Error != "invalid index" || resp.ReplyTo != "req-3" {
			t.Fatalf("\t%s\tShould respond with an invalid index error: %+v", failed, resp)
		}
		t.Logf("\t%s\tShould respond with an invalid index error.", success)
	}
}

// =============================================================================

type node struct {
	chain *ledger.Ledger
	coord *chainsync.Coordinator
}

// newNode joins a node to the hub and runs a loop that answers requests and
// routes responses until the context is done.
func newNode(ctx context.Context, t *testing.T, hub *network.Hub, host string, timeout time.Duration) node {
	chain, err := ledger.New(ledger.Config{Genesis: gen, Storage: memory.New()})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the ledger: %v", failed, err)
	}

	link := hub.Join(peer.New(host))

	coord := chainsync.New(chainsync.Config{
		Chain:     chain,
		Link:      link,
		Peers:     peer.NewSet(peer.New("node-0"), peer.New("node-a"), peer.New("node-b")),
		Timeout:   timeout,
		EvHandler: func(v string, args ...any) { t.Logf(host+": "+v, args...) },
	})

	ctx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	go func() {
		defer wg.Done()
		for {
			select {
			case env := <-link.Receive():
				switch env.Type {
				case network.TypeSyncChain:
					coord.Respond(ctx, env)
				case network.TypeSyncChainResponse:
					coord.HandleResponse(env)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return node{chain: chain, coord: coord}
}

func accept(t *testing.T, l *ledger.Ledger, b database.Block) {
	if outcome, err := l.AcceptBlock(b); err != nil || outcome != ledger.OutcomeExtended {
		t.Fatalf("\t%s\tShould extend the chain with %s: %s %v", failed, b, outcome, err)
	}
}

func mine(t *testing.T, prev database.Block, beneficiary database.AccountID, timestamp uint64) database.Block {
	b, err := miner.New(nil).Seal(context.Background(), miner.SealArgs{
		Previous:    prev,
		Beneficiary: beneficiary,
		Reward:      gen.MiningReward,
		Difficulty:  gen.Difficulty,
		Timestamp:   timestamp,
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to mine a block: %v", failed, err)
	}

	return b
}

func newAccountID(t *testing.T) database.AccountID {
	pk, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to generate a key: %v", failed, err)
	}

	return database.PublicKeyToAccountID(pk.PublicKey)
}
