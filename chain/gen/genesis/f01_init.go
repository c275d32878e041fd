package genesis

import (
	"context"
	"encoding/json"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	cbor "github.com/ipfs/go-ipld-cbor"
	cbg "github.com/whyrusleeping/cbor-gen"
	"golang.org/x/xerrors"

	bstore "github.com/asterchain/aster/blockstore"
	"github.com/asterchain/aster/chain/actors/adt"
	"github.com/asterchain/aster/chain/actors/builtin"
	init_ "github.com/asterchain/aster/chain/actors/builtin/init"
	"github.com/asterchain/aster/chain/types"
	"github.com/asterchain/aster/genesis"
)

// SetupInitActor constructs the init actor, pre-assigning an ID address
// to every genesis account. It returns the next free ID alongside the
// actor and the key-to-ID mapping for the other setup steps.
func SetupInitActor(ctx context.Context, bs bstore.Blockstore, netname string, initialActors []genesis.Actor) (int64, *types.Actor, map[address.Address]address.Address, error) {
	if len(initialActors) > MaxAccounts {
		return 0, nil, nil, xerrors.New("too many initial actors")
	}

	cst := cbor.NewCborStore(bs)
	amap := adt.MakeEmptyMap(adt.WrapStore(ctx, cst))

	keyToID := map[address.Address]address.Address{}
	counter := int64(AccountStart)

	for _, a := range initialActors {
		if a.Type != genesis.TAccount {
			return 0, nil, nil, xerrors.Errorf("unsupported account type: %s", a.Type)
		}

		var ainfo genesis.AccountMeta
		if err := json.Unmarshal(a.Meta, &ainfo); err != nil {
			return 0, nil, nil, xerrors.Errorf("unmarshaling account meta: %w", err)
		}

		if _, ok := keyToID[ainfo.Owner]; ok {
			return 0, nil, nil, xerrors.Errorf("duplicate genesis account %s", ainfo.Owner)
		}

		value := cbg.CborInt(counter)
		if err := amap.Put(adt.AddrKey(ainfo.Owner), &value); err != nil {
			return 0, nil, nil, err
		}
		counter = counter + 1

		var err error
		keyToID[ainfo.Owner], err = address.NewIDAddress(uint64(value))
		if err != nil {
			return 0, nil, nil, err
		}
	}

	amapaddr, err := amap.Root()
	if err != nil {
		return 0, nil, nil, err
	}

	ist := init_.ConstructState(amapaddr, netname)
	ist.NextID = abi.ActorID(counter)

	statecid, err := cst.Put(ctx, ist)
	if err != nil {
		return 0, nil, nil, err
	}

	act := &types.Actor{
		Code:    builtin.InitActorCodeID,
		Head:    statecid,
		Balance: types.NewInt(0),
	}

	return counter, act, keyToID, nil
}
