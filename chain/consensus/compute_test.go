package consensus

import (
	"context"
	"testing"

	"github.com/filecoin-project/go-address"
	amt4 "github.com/filecoin-project/go-amt-ipld/v4"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/crypto"
	cbor "github.com/ipfs/go-ipld-cbor"
	"github.com/stretchr/testify/require"

	"github.com/asterchain/aster/blockstore"
	"github.com/asterchain/aster/build"
	"github.com/asterchain/aster/chain/actors/builtin"
	gen "github.com/asterchain/aster/chain/gen/genesis"
	"github.com/asterchain/aster/chain/state"
	"github.com/asterchain/aster/chain/types"
	"github.com/asterchain/aster/chain/vm"
	"github.com/asterchain/aster/genesis"
	"github.com/asterchain/aster/lib/sigs"
	_ "github.com/asterchain/aster/lib/sigs/secp"
)

func genKey(t *testing.T) ([]byte, address.Address) {
	t.Helper()
	priv, err := sigs.Generate(crypto.SigTypeSecp256k1)
	require.NoError(t, err)
	pub, err := sigs.ToPublic(crypto.SigTypeSecp256k1, priv)
	require.NoError(t, err)
	addr, err := address.NewSecp256k1Address(pub)
	require.NoError(t, err)
	return priv, addr
}

func signMsg(t *testing.T, priv []byte, msg types.Message) *types.SignedMessage {
	t.Helper()
	ser, err := msg.Serialize()
	require.NoError(t, err)
	sig, err := sigs.Sign(crypto.SigTypeSecp256k1, priv, ser)
	require.NoError(t, err)
	return &types.SignedMessage{Message: msg, Signature: *sig}
}

func TestApplyBlocksTransferAndReward(t *testing.T) {
	ctx := context.Background()

	senderPriv, sender := genKey(t)
	_, target := genKey(t)
	_, miner := genKey(t)

	bs := blockstore.NewMemorySync()
	root, err := gen.MakeGenesis(ctx, bs, genesis.Template{
		NetworkName: "testnet",
		Accounts: []genesis.Actor{{
			Type:    genesis.TAccount,
			Balance: types.NewInt(100_000),
			Meta:    (&genesis.AccountMeta{Owner: sender}).ActorMeta(),
		}},
	})
	require.NoError(t, err)

	tse := NewTipSetExecutor(bs, vm.Syscalls())

	mkTransfer := func(nonce uint64, amt uint64) *types.SignedMessage {
		return signMsg(t, senderPriv, types.Message{
			From:       sender,
			To:         target,
			Nonce:      nonce,
			Value:      types.NewInt(amt),
			GasLimit:   build.BlockGasLimit,
			GasFeeCap:  types.NewInt(0),
			GasPremium: types.NewInt(0),
			Method:     builtin.MethodSend,
		})
	}

	bms := []BlockMessages{{
		Miner:         miner,
		SecpkMessages: []types.ChainMsg{mkTransfer(0, 20_000), mkTransfer(1, 10_000)},
		WinCount:      1,
	}}

	st, rectroot, err := tse.ApplyBlocks(ctx, 0, root, bms, 1, types.NewInt(0))
	require.NoError(t, err)

	tree, err := state.LoadStateTree(cbor.NewCborStore(bs), st)
	require.NoError(t, err)

	sact, err := tree.GetActor(sender)
	require.NoError(t, err)
	require.Equal(t, types.NewInt(70_000), sact.Balance)
	require.Equal(t, uint64(2), sact.Nonce)

	tact, err := tree.GetActor(target)
	require.NoError(t, err)
	require.Equal(t, types.NewInt(30_000), tact.Balance)

	// block reward for one win went to the miner
	mact, err := tree.GetActor(miner)
	require.NoError(t, err)
	require.Equal(t, big.NewFromGo(build.BlockReward).String(), mact.Balance.String())

	// both receipts in the amt, in order
	a, err := amt4.LoadAMT(ctx, cbor.NewCborStore(bs), rectroot)
	require.NoError(t, err)
	require.Equal(t, uint64(2), a.Len())

	for i := uint64(0); i < 2; i++ {
		var r types.MessageReceipt
		require.NoError(t, a.Get(ctx, i, &r))
		require.True(t, r.ExitCode.IsSuccess())
	}
}

func TestApplyBlocksDeterministic(t *testing.T) {
	ctx := context.Background()

	senderPriv, sender := genKey(t)
	_, target := genKey(t)
	_, miner := genKey(t)

	bs := blockstore.NewMemorySync()
	root, err := gen.MakeGenesis(ctx, bs, genesis.Template{
		NetworkName: "testnet",
		Accounts: []genesis.Actor{{
			Type:    genesis.TAccount,
			Balance: types.NewInt(100_000),
			Meta:    (&genesis.AccountMeta{Owner: sender}).ActorMeta(),
		}},
	})
	require.NoError(t, err)

	tse := NewTipSetExecutor(bs, vm.Syscalls())

	smsg := signMsg(t, senderPriv, types.Message{
		From:       sender,
		To:         target,
		Nonce:      0,
		Value:      types.NewInt(10_000),
		GasLimit:   build.BlockGasLimit,
		GasFeeCap:  types.NewInt(0),
		GasPremium: types.NewInt(0),
		Method:     builtin.MethodSend,
	})

	bms := []BlockMessages{{Miner: miner, SecpkMessages: []types.ChainMsg{smsg}, WinCount: 1}}

	// applying the same messages on the same parent state twice must
	// produce the same state root and the same receipts root
	st1, rect1, err := tse.ApplyBlocks(ctx, 0, root, bms, 1, types.NewInt(0))
	require.NoError(t, err)

	st2, rect2, err := tse.ApplyBlocks(ctx, 0, root, bms, 1, types.NewInt(0))
	require.NoError(t, err)

	require.Equal(t, st1, st2)
	require.Equal(t, rect1, rect2)
}

func TestApplyBlocksDedupAndNullRounds(t *testing.T) {
	ctx := context.Background()

	senderPriv, sender := genKey(t)
	_, target := genKey(t)
	_, minerA := genKey(t)
	_, minerB := genKey(t)

	bs := blockstore.NewMemorySync()
	root, err := gen.MakeGenesis(ctx, bs, genesis.Template{
		NetworkName: "testnet",
		Accounts: []genesis.Actor{{
			Type:    genesis.TAccount,
			Balance: types.NewInt(100_000),
			Meta:    (&genesis.AccountMeta{Owner: sender}).ActorMeta(),
		}},
	})
	require.NoError(t, err)

	tse := NewTipSetExecutor(bs, vm.Syscalls())

	smsg := signMsg(t, senderPriv, types.Message{
		From:       sender,
		To:         target,
		Nonce:      0,
		Value:      types.NewInt(10_000),
		GasLimit:   build.BlockGasLimit,
		GasFeeCap:  types.NewInt(0),
		GasPremium: types.NewInt(0),
		Method:     builtin.MethodSend,
	})

	// both blocks carry the same message; it must execute exactly once,
	// and three null rounds separate the epochs
	bms := []BlockMessages{
		{Miner: minerA, SecpkMessages: []types.ChainMsg{smsg}, WinCount: 1},
		{Miner: minerB, SecpkMessages: []types.ChainMsg{smsg}, WinCount: 1},
	}

	st, rectroot, err := tse.ApplyBlocks(ctx, 0, root, bms, 4, types.NewInt(0))
	require.NoError(t, err)

	tree, err := state.LoadStateTree(cbor.NewCborStore(bs), st)
	require.NoError(t, err)

	tact, err := tree.GetActor(target)
	require.NoError(t, err)
	require.Equal(t, types.NewInt(10_000), tact.Balance)

	a, err := amt4.LoadAMT(ctx, cbor.NewCborStore(bs), rectroot)
	require.NoError(t, err)
	require.Equal(t, uint64(1), a.Len())
}

func TestApplyBlocksRejectsDuplicateMiner(t *testing.T) {
	ctx := context.Background()

	_, sender := genKey(t)
	_, miner := genKey(t)

	bs := blockstore.NewMemorySync()
	root, err := gen.MakeGenesis(ctx, bs, genesis.Template{
		NetworkName: "testnet",
		Accounts: []genesis.Actor{{
			Type:    genesis.TAccount,
			Balance: types.NewInt(100_000),
			Meta:    (&genesis.AccountMeta{Owner: sender}).ActorMeta(),
		}},
	})
	require.NoError(t, err)

	tse := NewTipSetExecutor(bs, vm.Syscalls())

	bms := []BlockMessages{
		{Miner: miner, WinCount: 1},
		{Miner: miner, WinCount: 1},
	}

	_, _, err = tse.ApplyBlocks(ctx, 0, root, bms, 1, types.NewInt(0))
	require.Error(t, err)
}

func TestApplyBlocksRejectsBadSignature(t *testing.T) {
	ctx := context.Background()

	senderPriv, sender := genKey(t)
	_, target := genKey(t)
	_, miner := genKey(t)

	bs := blockstore.NewMemorySync()
	root, err := gen.MakeGenesis(ctx, bs, genesis.Template{
		NetworkName: "testnet",
		Accounts: []genesis.Actor{{
			Type:    genesis.TAccount,
			Balance: types.NewInt(100_000),
			Meta:    (&genesis.AccountMeta{Owner: sender}).ActorMeta(),
		}},
	})
	require.NoError(t, err)

	tse := NewTipSetExecutor(bs, vm.Syscalls())

	smsg := signMsg(t, senderPriv, types.Message{
		From:       sender,
		To:         target,
		Nonce:      0,
		Value:      types.NewInt(10_000),
		GasLimit:   build.BlockGasLimit,
		GasFeeCap:  types.NewInt(0),
		GasPremium: types.NewInt(0),
		Method:     builtin.MethodSend,
	})
	// tamper with the envelope after signing
	smsg.Message.Value = types.NewInt(99_999)

	bms := []BlockMessages{{Miner: miner, SecpkMessages: []types.ChainMsg{smsg}, WinCount: 1}}

	_, _, err = tse.ApplyBlocks(ctx, 0, root, bms, 1, types.NewInt(0))
	require.Error(t, err)
}
