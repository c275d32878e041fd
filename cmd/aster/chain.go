package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/ipfs/go-cid"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	badgerbs "github.com/asterchain/aster/blockstore/badger"
	"github.com/asterchain/aster/chain/consensus"
	"github.com/asterchain/aster/chain/types"
	"github.com/asterchain/aster/chain/vm"
)

var chainCmd = &cli.Command{
	Name:  "chain",
	Usage: "apply messages on top of the current state",
	Subcommands: []*cli.Command{
		chainApplyCmd,
	},
}

// batchFile is the on-disk shape of a message batch: one block's worth
// of unsigned messages credited to a miner.
type batchFile struct {
	Miner    address.Address
	WinCount int64
	Messages []types.Message
}

var chainApplyCmd = &cli.Command{
	Name:      "apply",
	Usage:     "execute a batch of messages from a JSON file and advance the repo head",
	ArgsUsage: "[batchFile]",
	Flags: []cli.Flag{
		&cli.Int64Flag{
			Name:  "parent-epoch",
			Usage: "epoch the current head was computed at",
			Value: 0,
		},
		&cli.Int64Flag{
			Name:  "epoch",
			Usage: "epoch to execute at",
			Value: 1,
		},
		&cli.StringFlag{
			Name:  "base-fee",
			Usage: "base fee in attoaster",
			Value: "0",
		},
	},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return xerrors.New("expected batch file")
		}

		fdata, err := os.ReadFile(cctx.Args().First())
		if err != nil {
			return xerrors.Errorf("reading batch: %w", err)
		}

		var batch batchFile
		if err := json.Unmarshal(fdata, &batch); err != nil {
			return xerrors.Errorf("unmarshaling batch: %w", err)
		}

		baseFee, err := types.BigFromString(cctx.String("base-fee"))
		if err != nil {
			return xerrors.Errorf("parsing base fee: %w", err)
		}

		repo, err := repoPath(cctx)
		if err != nil {
			return err
		}

		bs, err := badgerbs.Open(badgerbs.DefaultOptions(filepath.Join(repo, "chain")))
		if err != nil {
			return xerrors.Errorf("opening chain blockstore: %w", err)
		}
		defer bs.Close() // nolint:errcheck

		head, err := os.ReadFile(filepath.Join(repo, "head"))
		if err != nil {
			return xerrors.Errorf("reading repo head: %w", err)
		}
		root, err := cid.Decode(strings.TrimSpace(string(head)))
		if err != nil {
			return xerrors.Errorf("parsing repo head: %w", err)
		}

		msgs := make([]types.ChainMsg, 0, len(batch.Messages))
		for i := range batch.Messages {
			msgs = append(msgs, &batch.Messages[i])
		}

		tse := consensus.NewTipSetExecutor(bs, vm.Syscalls())
		st, rectroot, err := tse.ApplyBlocks(cctx.Context,
			abi.ChainEpoch(cctx.Int64("parent-epoch")),
			root,
			[]consensus.BlockMessages{{
				Miner:       batch.Miner,
				BlsMessages: msgs,
				WinCount:    batch.WinCount,
			}},
			abi.ChainEpoch(cctx.Int64("epoch")),
			baseFee)
		if err != nil {
			return xerrors.Errorf("applying blocks: %w", err)
		}

		if err := bs.Flush(cctx.Context); err != nil {
			return xerrors.Errorf("flushing blockstore: %w", err)
		}

		if err := os.WriteFile(filepath.Join(repo, "head"), []byte(st.String()), 0644); err != nil {
			return xerrors.Errorf("writing head: %w", err)
		}

		fmt.Printf("state root: %s\n", st)
		fmt.Printf("receipts:   %s\n", rectroot)
		return nil
	},
}
