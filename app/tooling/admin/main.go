// This program performs administrative tasks against a node's block store
// while the node is stopped.
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ardanlabs/conf/v3"
	"github.com/ardanlabs/ledger/app/tooling/admin/commands"
	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/database/storage/boltdb"
	"github.com/ardanlabs/ledger/foundation/blockchain/database/storage/disk"
	"github.com/ardanlabs/ledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/ledger/foundation/blockchain/ledger"
	"github.com/ardanlabs/ledger/foundation/logger"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("ADMIN")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {
	cfg := struct {
		conf.Version
		Args        conf.Args
		GenesisFile string `conf:"default:zblock/genesis.json"`
		Storage     string `conf:"default:disk"`
		DBPath      string `conf:"default:zblock/miner1/"`
		Model       string `conf:"default:utxo"`
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "ledger administration: bals [account] | blocks [account]",
		},
	}

	const prefix = "ADMIN"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	gen, err := genesis.Load(cfg.GenesisFile)
	if err != nil {
		return fmt.Errorf("unable to load genesis: %w", err)
	}

	var strg database.Storage
	switch strings.ToLower(cfg.Storage) {
	case "disk":
		strg, err = disk.New(cfg.DBPath)
	case "bolt":
		strg, err = boltdb.New(cfg.DBPath)
	default:
		err = fmt.Errorf("unknown storage kind %q", cfg.Storage)
	}
	if err != nil {
		return err
	}

	// Loading the ledger validates every stored block.
	ldgr, err := ledger.New(ledger.Config{
		Genesis: gen,
		Storage: strg,
		Model:   cfg.Model,
		EvHandler: func(v string, args ...any) {
			log.Infow(fmt.Sprintf(v, args...))
		},
	})
	if err != nil {
		strg.Close()
		return err
	}
	defer ldgr.Close()

	return processCommands(cfg.Args, ldgr)
}

// processCommands handles the execution of the commands specified on
// the command line.
func processCommands(args conf.Args, ldgr *ledger.Ledger) error {
	switch args.Num(0) {
	case "bals":
		if err := commands.Balances(os.Stdout, args.Num(1), ldgr); err != nil {
			return fmt.Errorf("getting balances: %w", err)
		}
	case "blocks":
		if err := commands.Blocks(os.Stdout, args.Num(1), ldgr); err != nil {
			return fmt.Errorf("getting blocks: %w", err)
		}
	default:
		return fmt.Errorf("unknown command %q", args.Num(0))
	}

	return nil
}
