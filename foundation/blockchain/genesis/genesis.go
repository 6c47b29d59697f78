// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Genesis represents the genesis file.
type Genesis struct {
	Date          time.Time `json:"date"`            // Timestamp of the genesis block.
	ChainID       uint16    `json:"chain_id"`        // The chain id represents an unique id for this running instance.
	TransPerBlock uint16    `json:"trans_per_block"` // The maximum number of transactions that can be in a block.
	Difficulty    uint16    `json:"difficulty"`      // Number of leading hex zeros a block hash needs.
	MiningReward  uint64    `json:"mining_reward"`   // Reward for mining a block.
	SyncLookback  uint64    `json:"sync_lookback"`   // Blocks behind the tip a catch up request starts from.
}

// Default returns the genesis values used when no file is provided.
func Default() Genesis {
	return Genesis{
		Date:          time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		ChainID:       1,
		TransPerBlock: 10,
		Difficulty:    4,
		MiningReward:  50,
		SyncLookback:  10,
	}
}

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, fmt.Errorf("decode genesis: %w", err)
	}

	return genesis, nil
}

// Timestamp returns the date of the genesis in milliseconds since the epoch.
func (g Genesis) Timestamp() uint64 {
	if g.Date.IsZero() || g.Date.Before(time.Unix(0, 0)) {
		return 0
	}

	return uint64(g.Date.UnixMilli())
}
