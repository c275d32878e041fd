package genesis

import (
	"context"
	"encoding/json"

	"github.com/filecoin-project/go-address"
	"github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	bstore "github.com/asterchain/aster/blockstore"
	"github.com/asterchain/aster/chain/actors/builtin"
	"github.com/asterchain/aster/chain/actors/builtin/account"
	"github.com/asterchain/aster/chain/state"
	"github.com/asterchain/aster/chain/types"
	"github.com/asterchain/aster/genesis"
)

var log = logging.Logger("genesis")

const (
	AccountStart = 100
	MaxAccounts  = 1000
)

// MakeInitialStateTree builds the state the chain starts from: the
// singleton actors at their well-known addresses plus one account actor
// per genesis account, funded per the template.
func MakeInitialStateTree(ctx context.Context, bs bstore.Blockstore, template genesis.Template) (*state.StateTree, map[address.Address]address.Address, error) {
	cst := cbor.NewCborStore(bs)

	stateTree, err := state.NewStateTree(cst)
	if err != nil {
		return nil, nil, xerrors.Errorf("making new state tree: %w", err)
	}

	// Create system actor
	sysact, err := SetupSystemActor(ctx, bs)
	if err != nil {
		return nil, nil, xerrors.Errorf("setup system actor: %w", err)
	}
	if err := stateTree.SetActor(builtin.SystemActorAddr, sysact); err != nil {
		return nil, nil, xerrors.Errorf("set system actor: %w", err)
	}

	// Create init actor
	idStart, initact, keyIDs, err := SetupInitActor(ctx, bs, template.NetworkName, template.Accounts)
	if err != nil {
		return nil, nil, xerrors.Errorf("setup init actor: %w", err)
	}
	if err := stateTree.SetActor(builtin.InitActorAddr, initact); err != nil {
		return nil, nil, xerrors.Errorf("set init actor: %w", err)
	}

	// Setup reward actor
	rewact, err := SetupRewardActor(ctx, bs)
	if err != nil {
		return nil, nil, xerrors.Errorf("setup reward actor: %w", err)
	}
	if err := stateTree.SetActor(builtin.RewardActorAddr, rewact); err != nil {
		return nil, nil, xerrors.Errorf("set reward actor: %w", err)
	}

	// Setup cron
	cronact, err := SetupCronActor(ctx, bs)
	if err != nil {
		return nil, nil, xerrors.Errorf("setup cron actor: %w", err)
	}
	if err := stateTree.SetActor(builtin.CronActorAddr, cronact); err != nil {
		return nil, nil, xerrors.Errorf("set cron actor: %w", err)
	}

	// Setup burnt-funds
	burntRoot, err := cst.Put(ctx, &account.State{
		Address: builtin.BurntFundsActorAddr,
	})
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to setup burnt funds actor state: %w", err)
	}
	err = stateTree.SetActor(builtin.BurntFundsActorAddr, &types.Actor{
		Code:    builtin.AccountActorCodeID,
		Balance: types.NewInt(0),
		Head:    burntRoot,
	})
	if err != nil {
		return nil, nil, xerrors.Errorf("set burnt funds account actor: %w", err)
	}

	// Create accounts
	for _, info := range template.Accounts {
		if info.Type != genesis.TAccount {
			return nil, nil, xerrors.New("unsupported genesis actor type")
		}

		if err := createAccountActor(ctx, cst, stateTree, info, keyIDs); err != nil {
			return nil, nil, xerrors.Errorf("failed to create account actor: %w", err)
		}
	}

	log.Infow("genesis state built", "accounts", len(template.Accounts), "nextID", idStart)

	return stateTree, keyIDs, nil
}

func createAccountActor(ctx context.Context, cst cbor.IpldStore, stateTree *state.StateTree, info genesis.Actor, keyIDs map[address.Address]address.Address) error {
	var ainfo genesis.AccountMeta
	if err := json.Unmarshal(info.Meta, &ainfo); err != nil {
		return xerrors.Errorf("unmarshaling account meta: %w", err)
	}
	ida, ok := keyIDs[ainfo.Owner]
	if !ok {
		return xerrors.Errorf("no registered ID for account actor: %s", ainfo.Owner)
	}

	st, err := cst.Put(ctx, &account.State{Address: ainfo.Owner})
	if err != nil {
		return err
	}

	return stateTree.SetActor(ida, &types.Actor{
		Code:    builtin.AccountActorCodeID,
		Balance: info.Balance,
		Head:    st,
	})
}

// MakeGenesis builds the genesis state for template and returns its
// state root.
func MakeGenesis(ctx context.Context, bs bstore.Blockstore, template genesis.Template) (cid.Cid, error) {
	st, _, err := MakeInitialStateTree(ctx, bs, template)
	if err != nil {
		return cid.Undef, xerrors.Errorf("make initial state tree failed: %w", err)
	}

	stateroot, err := st.Flush(ctx)
	if err != nil {
		return cid.Undef, xerrors.Errorf("flush state tree failed: %w", err)
	}

	return stateroot, nil
}
