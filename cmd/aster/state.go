package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/filecoin-project/go-address"
	"github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/asterchain/aster/blockstore"
	badgerbs "github.com/asterchain/aster/blockstore/badger"
	"github.com/asterchain/aster/chain/actors/builtin"
	"github.com/asterchain/aster/chain/state"
	"github.com/asterchain/aster/chain/types"
	"github.com/asterchain/aster/chain/vm"
)

var stateCmd = &cli.Command{
	Name:  "state",
	Usage: "inspect the actor state tree",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "root",
			Usage: "state root to inspect (defaults to the repo head)",
		},
	},
	Subcommands: []*cli.Command{
		stateListActorsCmd,
		stateGetActorCmd,
	},
}

func openStateTree(cctx *cli.Context) (*state.StateTree, blockstore.Blockstore, func() error, error) {
	repo, err := repoPath(cctx)
	if err != nil {
		return nil, nil, nil, err
	}

	bs, err := badgerbs.Open(badgerbs.DefaultOptions(filepath.Join(repo, "chain")))
	if err != nil {
		return nil, nil, nil, xerrors.Errorf("opening chain blockstore: %w", err)
	}

	rootStr := cctx.String("root")
	if rootStr == "" {
		head, err := os.ReadFile(filepath.Join(repo, "head"))
		if err != nil {
			_ = bs.Close()
			return nil, nil, nil, xerrors.Errorf("no --root given and no head in repo: %w", err)
		}
		rootStr = strings.TrimSpace(string(head))
	}

	root, err := cid.Decode(rootStr)
	if err != nil {
		_ = bs.Close()
		return nil, nil, nil, xerrors.Errorf("parsing state root: %w", err)
	}

	tree, err := state.LoadStateTree(cbor.NewCborStore(bs), root)
	if err != nil {
		_ = bs.Close()
		return nil, nil, nil, xerrors.Errorf("loading state tree %s: %w", root, err)
	}

	return tree, bs, bs.Close, nil
}

var stateListActorsCmd = &cli.Command{
	Name:  "list-actors",
	Usage: "list all actors in the state tree",
	Action: func(cctx *cli.Context) error {
		tree, _, closer, err := openStateTree(cctx)
		if err != nil {
			return err
		}
		defer closer() // nolint:errcheck

		return tree.ForEach(func(addr address.Address, act *types.Actor) error {
			fmt.Printf("%s\t%s\tbalance: %s\tnonce: %d\n", addr, builtin.ActorNameByCode(act.Code), act.Balance, act.Nonce)
			return nil
		})
	},
}

var stateGetActorCmd = &cli.Command{
	Name:      "get-actor",
	Usage:     "print basic information and state of an actor",
	ArgsUsage: "[actorAddress]",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return xerrors.New("expected actor address")
		}

		addr, err := address.NewFromString(cctx.Args().First())
		if err != nil {
			return xerrors.Errorf("parsing address: %w", err)
		}

		tree, bs, closer, err := openStateTree(cctx)
		if err != nil {
			return err
		}
		defer closer() // nolint:errcheck

		act, err := tree.GetActor(addr)
		if err != nil {
			return xerrors.Errorf("getting actor %s: %w", addr, err)
		}

		fmt.Printf("Address:\t%s\n", addr)
		fmt.Printf("Code:\t\t%s (%s)\n", act.Code, builtin.ActorNameByCode(act.Code))
		fmt.Printf("Head:\t\t%s\n", act.Head)
		fmt.Printf("Nonce:\t\t%d\n", act.Nonce)
		fmt.Printf("Balance:\t%s\n", act.Balance)

		var raw []byte
		if err := bs.View(cctx.Context, act.Head, func(b []byte) error {
			raw = append(raw, b...)
			return nil
		}); err != nil {
			return xerrors.Errorf("reading actor head: %w", err)
		}

		st, err := vm.NewActorRegistry().DumpActorState(act.Code, raw)
		if err != nil {
			return xerrors.Errorf("dumping actor state: %w", err)
		}
		if st == nil {
			return nil
		}

		out, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return err
		}
		fmt.Printf("State:\n%s\n", out)
		return nil
	},
}
