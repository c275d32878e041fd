package genesis

import (
	"context"

	cbor "github.com/ipfs/go-ipld-cbor"

	bstore "github.com/asterchain/aster/blockstore"
	"github.com/asterchain/aster/build"
	"github.com/asterchain/aster/chain/actors/builtin"
	"github.com/asterchain/aster/chain/actors/builtin/reward"
	"github.com/asterchain/aster/chain/types"
)

func SetupRewardActor(ctx context.Context, bs bstore.Blockstore) (*types.Actor, error) {
	cst := cbor.NewCborStore(bs)

	statecid, err := cst.Put(ctx, reward.ConstructState())
	if err != nil {
		return nil, err
	}

	act := &types.Actor{
		Code:    builtin.RewardActorCodeID,
		Head:    statecid,
		Balance: types.BigInt{Int: build.InitialRewardBalance},
	}

	return act, nil
}
