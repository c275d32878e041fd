package genesis

import (
	"context"
	"testing"

	"github.com/filecoin-project/go-address"
	cbor "github.com/ipfs/go-ipld-cbor"
	"github.com/stretchr/testify/require"

	"github.com/asterchain/aster/blockstore"
	"github.com/asterchain/aster/chain/actors/builtin"
	"github.com/asterchain/aster/chain/state"
	"github.com/asterchain/aster/chain/types"
	"github.com/asterchain/aster/genesis"
)

func testAddr(t *testing.T, seed byte) address.Address {
	t.Helper()
	buf := make([]byte, 48)
	for i := range buf {
		buf[i] = seed
	}
	a, err := address.NewSecp256k1Address(buf)
	require.NoError(t, err)
	return a
}

func TestMakeGenesis(t *testing.T) {
	ctx := context.Background()
	bs := blockstore.NewMemorySync()

	owner1 := testAddr(t, 1)
	owner2 := testAddr(t, 2)

	template := genesis.Template{
		NetworkName: "genesistest",
		Accounts: []genesis.Actor{
			{
				Type:    genesis.TAccount,
				Balance: types.NewInt(50_000),
				Meta:    (&genesis.AccountMeta{Owner: owner1}).ActorMeta(),
			},
			{
				Type:    genesis.TAccount,
				Balance: types.NewInt(1_000),
				Meta:    (&genesis.AccountMeta{Owner: owner2}).ActorMeta(),
			},
		},
	}

	root, err := MakeGenesis(ctx, bs, template)
	require.NoError(t, err)

	tree, err := state.LoadStateTree(cbor.NewCborStore(bs), root)
	require.NoError(t, err)

	for _, a := range []address.Address{
		builtin.SystemActorAddr,
		builtin.InitActorAddr,
		builtin.RewardActorAddr,
		builtin.CronActorAddr,
		builtin.BurntFundsActorAddr,
	} {
		_, err := tree.GetActor(a)
		require.NoError(t, err, "missing singleton %s", a)
	}

	// accounts get sequential IDs from AccountStart and resolve by key
	id1, err := tree.LookupIDAddress(owner1)
	require.NoError(t, err)
	expect1, err := address.NewIDAddress(AccountStart)
	require.NoError(t, err)
	require.Equal(t, expect1, id1)

	id2, err := tree.LookupIDAddress(owner2)
	require.NoError(t, err)
	expect2, err := address.NewIDAddress(AccountStart + 1)
	require.NoError(t, err)
	require.Equal(t, expect2, id2)

	act1, err := tree.GetActor(owner1)
	require.NoError(t, err)
	require.True(t, builtin.IsAccountActor(act1.Code))
	require.Equal(t, types.NewInt(50_000), act1.Balance)

	act2, err := tree.GetActor(owner2)
	require.NoError(t, err)
	require.Equal(t, types.NewInt(1_000), act2.Balance)
}

func TestMakeGenesisRejectsDuplicateAccounts(t *testing.T) {
	ctx := context.Background()
	bs := blockstore.NewMemorySync()

	owner := testAddr(t, 3)
	acct := genesis.Actor{
		Type:    genesis.TAccount,
		Balance: types.NewInt(1),
		Meta:    (&genesis.AccountMeta{Owner: owner}).ActorMeta(),
	}

	_, err := MakeGenesis(ctx, bs, genesis.Template{
		NetworkName: "genesistest",
		Accounts:    []genesis.Actor{acct, acct},
	})
	require.Error(t, err)
}
