package miner_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/miner"
	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const beneficiary = database.AccountID("0xF01813E4B85e178A83e29B8E7bF26BD830a25f32")

// =============================================================================

func Test_Seal(t *testing.T) {
	genesis, err := database.Genesis(0)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to build genesis: %v", failed, err)
	}

	t.Log("Given the need to seal a block at difficulty 1.")
	{
		m := miner.New(func(v string, args ...any) { t.Logf(v, args...) })

		args := miner.SealArgs{
			Previous:    genesis,
			Beneficiary: beneficiary,
			Reward:      50,
			Difficulty:  1,
			Timestamp:   1000,
		}

		b, err := m.Seal(context.Background(), args)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to seal the block: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to seal the block.", success)

		if !strings.HasPrefix(b.Hash, "0") {
			t.Fatalf("\t%s\tShould have a hash starting with 0: %s", failed, b.Hash)
		}
		t.Logf("\t%s\tShould have a hash starting with 0.", success)

		if b.Index != 1 || b.PreviousHash != genesis.Hash || b.Timestamp != 1000 {
			t.Fatalf("\t%s\tShould extend genesis: %+v", failed, b)
		}
		t.Logf("\t%s\tShould extend genesis.", success)

		cb, exists := b.Coinbase()
		if !exists || len(b.Transactions) != 1 || cb.Amount != 50 || cb.To != beneficiary || cb.Nonce != 1 {
			t.Fatalf("\t%s\tShould hold a single coinbase of 50: %+v", failed, b.Transactions)
		}
		t.Logf("\t%s\tShould hold a single coinbase of 50.", success)

		if err := b.ValidatePOW(1); err != nil {
			t.Fatalf("\t%s\tShould produce a valid proof of work: %v", failed, err)
		}
		t.Logf("\t%s\tShould produce a valid proof of work.", success)

		if m.Status() != miner.StatusIdle {
			t.Fatalf("\t%s\tShould return to idle.", failed)
		}
		t.Logf("\t%s\tShould return to idle.", success)
	}
}

func Test_Preempt(t *testing.T) {
	prev := database.Block{Index: 4, Hash: signature.ZeroHash}

	t.Log("Given the need to stop a mining operation.")
	{
		m := miner.New(nil)

		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() {
			_, err := m.Seal(ctx, miner.SealArgs{
				Previous:    prev,
				Beneficiary: beneficiary,
				Reward:      50,
				Difficulty:  64,
			})
			done <- err
		}()

		deadline := time.Now().Add(5 * time.Second)
		for m.Status() != miner.StatusSealing {
			if time.Now().After(deadline) {
				t.Fatalf("\t%s\tShould start sealing.", failed)
			}
			time.Sleep(time.Millisecond)
		}
		t.Logf("\t%s\tShould start sealing.", success)

		if _, err := m.Seal(context.Background(), miner.SealArgs{Previous: prev}); !errors.Is(err, miner.ErrBusy) {
			t.Fatalf("\t%s\tShould refuse a second seal while busy: %v", failed, err)
		}
		t.Logf("\t%s\tShould refuse a second seal while busy.", success)

		cancel()

		select {
		case err := <-done:
			if !errors.Is(err, miner.ErrPreempted) {
				t.Fatalf("\t%s\tShould return ErrPreempted: %v", failed, err)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("\t%s\tShould stop after the cancel.", failed)
		}
		t.Logf("\t%s\tShould return ErrPreempted.", success)

		if m.Status() != miner.StatusIdle {
			t.Fatalf("\t%s\tShould return to idle.", failed)
		}
		t.Logf("\t%s\tShould return to idle.", success)
	}
}
