package state

import (
	"context"
	"fmt"
	"testing"

	"github.com/filecoin-project/go-address"
	"github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
	"github.com/stretchr/testify/require"

	"github.com/asterchain/aster/blockstore"
	"github.com/asterchain/aster/chain/actors/adt"
	"github.com/asterchain/aster/chain/actors/builtin"
	init_ "github.com/asterchain/aster/chain/actors/builtin/init"
	"github.com/asterchain/aster/chain/types"
)

func newTestStateTree(t *testing.T) (*StateTree, cbor.IpldStore) {
	t.Helper()

	cst := cbor.NewCborStore(blockstore.NewMemory())
	st, err := NewStateTree(cst)
	require.NoError(t, err)
	return st, cst
}

func idAddr(t *testing.T, id uint64) address.Address {
	t.Helper()

	a, err := address.NewIDAddress(id)
	require.NoError(t, err)
	return a
}

func TestStateTreeRoundTrip(t *testing.T) {
	ctx := context.Background()
	st, cst := newTestStateTree(t)

	var addrs []address.Address
	for i := 100; i < 150; i++ {
		a := idAddr(t, uint64(i))
		addrs = append(addrs, a)

		err := st.SetActor(a, &types.Actor{
			Code:    builtin.AccountActorCodeID,
			Head:    builtin.AccountActorCodeID, // any cid will do here
			Balance: types.NewInt(uint64(10000 + i)),
		})
		require.NoError(t, err)
	}

	root, err := st.Flush(ctx)
	require.NoError(t, err)

	loaded, err := LoadStateTree(cst, root)
	require.NoError(t, err)

	for i, a := range addrs {
		act, err := loaded.GetActor(a)
		require.NoError(t, err)
		require.Equal(t, types.NewInt(uint64(10100+i)), act.Balance)
		require.Equal(t, builtin.AccountActorCodeID, act.Code)
	}

	// missing actor
	_, err = loaded.GetActor(idAddr(t, 99999))
	require.ErrorIs(t, err, types.ErrActorNotFound)
}

func TestStateTreeFlushDeterminism(t *testing.T) {
	ctx := context.Background()

	mkTree := func() cid.Cid {
		st, _ := newTestStateTree(t)
		for i := 100; i < 120; i++ {
			err := st.SetActor(idAddr(t, uint64(i)), &types.Actor{
				Code:    builtin.AccountActorCodeID,
				Head:    builtin.AccountActorCodeID,
				Balance: types.NewInt(uint64(i)),
			})
			require.NoError(t, err)
		}
		root, err := st.Flush(ctx)
		require.NoError(t, err)
		return root
	}

	require.Equal(t, mkTree(), mkTree())
}

func TestStructuralSharingAcrossFlushes(t *testing.T) {
	ctx := context.Background()

	bs := blockstore.NewMemory()
	cst := cbor.NewCborStore(bs)
	st, err := NewStateTree(cst)
	require.NoError(t, err)

	for i := 100; i < 120; i++ {
		require.NoError(t, st.SetActor(idAddr(t, uint64(i)), &types.Actor{
			Code:    builtin.AccountActorCodeID,
			Head:    builtin.AccountActorCodeID,
			Balance: types.NewInt(uint64(i)),
		}))
	}

	root1, err := st.Flush(ctx)
	require.NoError(t, err)

	blkBefore, err := bs.Get(ctx, root1)
	require.NoError(t, err)
	rootBytes := append([]byte(nil), blkBefore.RawData()...)

	require.NoError(t, st.MutateActor(idAddr(t, 110), func(act *types.Actor) error {
		act.Balance = types.NewInt(999_999)
		return nil
	}))

	root2, err := st.Flush(ctx)
	require.NoError(t, err)
	require.NotEqual(t, root1, root2)

	// the old root block must survive the second flush untouched
	blkAfter, err := bs.Get(ctx, root1)
	require.NoError(t, err)
	require.Equal(t, rootBytes, blkAfter.RawData())

	// and the old snapshot still resolves to the pre-mutation state
	old, err := LoadStateTree(cst, root1)
	require.NoError(t, err)
	act, err := old.GetActor(idAddr(t, 110))
	require.NoError(t, err)
	require.Equal(t, types.NewInt(110), act.Balance)

	// untouched actors read back identically under both roots
	cur, err := LoadStateTree(cst, root2)
	require.NoError(t, err)
	oldAct, err := old.GetActor(idAddr(t, 105))
	require.NoError(t, err)
	newAct, err := cur.GetActor(idAddr(t, 105))
	require.NoError(t, err)
	require.Equal(t, oldAct, newAct)
}

func TestSnapshotRevert(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStateTree(t)

	a := idAddr(t, 100)
	require.NoError(t, st.SetActor(a, &types.Actor{
		Code:    builtin.AccountActorCodeID,
		Head:    builtin.AccountActorCodeID,
		Balance: types.NewInt(100),
	}))

	require.NoError(t, st.Snapshot(ctx))

	require.NoError(t, st.MutateActor(a, func(act *types.Actor) error {
		act.Balance = types.NewInt(50)
		act.Nonce++
		return nil
	}))

	act, err := st.GetActor(a)
	require.NoError(t, err)
	require.Equal(t, types.NewInt(50), act.Balance)

	require.NoError(t, st.Revert())
	st.ClearSnapshot()

	act, err = st.GetActor(a)
	require.NoError(t, err)
	require.Equal(t, types.NewInt(100), act.Balance)
	require.Equal(t, uint64(0), act.Nonce)

	// reverted state must flush cleanly
	_, err = st.Flush(ctx)
	require.NoError(t, err)
}

func TestSnapshotCommit(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStateTree(t)

	a := idAddr(t, 100)
	require.NoError(t, st.SetActor(a, &types.Actor{
		Code:    builtin.AccountActorCodeID,
		Head:    builtin.AccountActorCodeID,
		Balance: types.NewInt(100),
	}))

	require.NoError(t, st.Snapshot(ctx))
	require.NoError(t, st.MutateActor(a, func(act *types.Actor) error {
		act.Balance = types.NewInt(42)
		return nil
	}))
	st.ClearSnapshot()

	act, err := st.GetActor(a)
	require.NoError(t, err)
	require.Equal(t, types.NewInt(42), act.Balance)
}

func TestDeleteActor(t *testing.T) {
	ctx := context.Background()
	st, cst := newTestStateTree(t)

	a := idAddr(t, 100)
	require.NoError(t, st.SetActor(a, &types.Actor{
		Code:    builtin.AccountActorCodeID,
		Head:    builtin.AccountActorCodeID,
		Balance: types.NewInt(100),
	}))

	require.NoError(t, st.DeleteActor(a))

	_, err := st.GetActor(a)
	require.ErrorIs(t, err, types.ErrActorNotFound)

	// the deletion survives a flush
	root, err := st.Flush(ctx)
	require.NoError(t, err)

	loaded, err := LoadStateTree(cst, root)
	require.NoError(t, err)
	_, err = loaded.GetActor(a)
	require.ErrorIs(t, err, types.ErrActorNotFound)
}

func TestRegisterNewAddress(t *testing.T) {
	ctx := context.Background()
	st, cst := newTestStateTree(t)

	emptyMap, err := adt.MakeEmptyMap(adt.WrapStore(ctx, cst)).Root()
	require.NoError(t, err)

	ias := init_.ConstructState(emptyMap, "statetree-test")
	head, err := cst.Put(ctx, ias)
	require.NoError(t, err)

	require.NoError(t, st.SetActor(builtin.InitActorAddr, &types.Actor{
		Code:    builtin.InitActorCodeID,
		Head:    head,
		Balance: types.NewInt(0),
	}))

	pubkey, err := address.NewSecp256k1Address([]byte(fmt.Sprintf("pubkey-%d", 1)))
	require.NoError(t, err)

	ida, err := st.RegisterNewAddress(pubkey)
	require.NoError(t, err)
	require.Equal(t, idAddr(t, builtin.FirstNonSingletonActorId), ida)

	resolved, err := st.LookupIDAddress(pubkey)
	require.NoError(t, err)
	require.Equal(t, ida, resolved)

	// resolution survives flush and reload
	root, err := st.Flush(ctx)
	require.NoError(t, err)

	loaded, err := LoadStateTree(cst, root)
	require.NoError(t, err)
	resolved, err = loaded.LookupIDAddress(pubkey)
	require.NoError(t, err)
	require.Equal(t, ida, resolved)
}
