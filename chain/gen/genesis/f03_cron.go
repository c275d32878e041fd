package genesis

import (
	"context"

	cbor "github.com/ipfs/go-ipld-cbor"

	bstore "github.com/asterchain/aster/blockstore"
	"github.com/asterchain/aster/chain/actors/builtin"
	"github.com/asterchain/aster/chain/actors/builtin/cron"
	"github.com/asterchain/aster/chain/types"
)

func SetupCronActor(ctx context.Context, bs bstore.Blockstore) (*types.Actor, error) {
	cst := cbor.NewCborStore(bs)

	statecid, err := cst.Put(ctx, cron.ConstructState(cron.BuiltInEntries()))
	if err != nil {
		return nil, err
	}

	act := &types.Actor{
		Code:    builtin.CronActorCodeID,
		Head:    statecid,
		Balance: types.NewInt(0),
	}

	return act, nil
}
