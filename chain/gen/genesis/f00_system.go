package genesis

import (
	"context"

	cbor "github.com/ipfs/go-ipld-cbor"

	bstore "github.com/asterchain/aster/blockstore"
	"github.com/asterchain/aster/chain/actors/builtin"
	"github.com/asterchain/aster/chain/types"
)

func SetupSystemActor(ctx context.Context, bs bstore.Blockstore) (*types.Actor, error) {
	cst := cbor.NewCborStore(bs)

	statecid, err := cst.Put(ctx, []struct{}{})
	if err != nil {
		return nil, err
	}

	act := &types.Actor{
		Code:    builtin.SystemActorCodeID,
		Head:    statecid,
		Balance: types.NewInt(0),
	}

	return act, nil
}
