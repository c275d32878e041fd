package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	badgerbs "github.com/asterchain/aster/blockstore/badger"
	gen "github.com/asterchain/aster/chain/gen/genesis"
	"github.com/asterchain/aster/genesis"
)

var genesisCmd = &cli.Command{
	Name:  "genesis",
	Usage: "manipulate aster genesis state",
	Subcommands: []*cli.Command{
		genesisNewCmd,
	},
}

var genesisNewCmd = &cli.Command{
	Name:      "new",
	Usage:     "build genesis state from a template and store it in the repo",
	ArgsUsage: "[templateFile]",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return xerrors.New("expected genesis template file")
		}

		fdata, err := os.ReadFile(cctx.Args().First())
		if err != nil {
			return xerrors.Errorf("reading template: %w", err)
		}

		var template genesis.Template
		if err := json.Unmarshal(fdata, &template); err != nil {
			return xerrors.Errorf("unmarshaling template: %w", err)
		}

		repo, err := repoPath(cctx)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(repo, 0755); err != nil {
			return err
		}

		bs, err := badgerbs.Open(badgerbs.DefaultOptions(filepath.Join(repo, "chain")))
		if err != nil {
			return xerrors.Errorf("opening chain blockstore: %w", err)
		}
		defer bs.Close() // nolint:errcheck

		root, err := gen.MakeGenesis(cctx.Context, bs, template)
		if err != nil {
			return xerrors.Errorf("making genesis: %w", err)
		}

		if err := bs.Flush(cctx.Context); err != nil {
			return xerrors.Errorf("flushing blockstore: %w", err)
		}

		if err := os.WriteFile(filepath.Join(repo, "head"), []byte(root.String()), 0644); err != nil {
			return xerrors.Errorf("writing head: %w", err)
		}

		fmt.Println(root.String())
		return nil
	},
}
