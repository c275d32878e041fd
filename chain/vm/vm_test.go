package vm

import (
	"context"
	"testing"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
	mh "github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/require"

	"github.com/asterchain/aster/blockstore"
	"github.com/asterchain/aster/build"
	"github.com/asterchain/aster/chain/actors/adt"
	"github.com/asterchain/aster/chain/actors/builtin"
	"github.com/asterchain/aster/chain/actors/builtin/account"
	"github.com/asterchain/aster/chain/actors/builtin/cron"
	init_ "github.com/asterchain/aster/chain/actors/builtin/init"
	"github.com/asterchain/aster/chain/actors/builtin/reward"
	vmr "github.com/asterchain/aster/chain/actors/runtime"
	"github.com/asterchain/aster/chain/state"
	"github.com/asterchain/aster/chain/types"
)

type vmHarness struct {
	vm *VM
	bs blockstore.Blockstore
}

// setupTestVM builds a minimal state tree with the singleton actors and
// one funded account, then boots a VM on top of it.
func setupTestVM(t *testing.T, sender address.Address, funds abi.TokenAmount) *vmHarness {
	t.Helper()
	ctx := context.Background()

	bs := blockstore.NewMemorySync()
	cst := cbor.NewCborStore(bs)
	st, err := state.NewStateTree(cst)
	require.NoError(t, err)

	mustPut := func(obj interface{}) cid.Cid {
		c, err := cst.Put(ctx, obj)
		require.NoError(t, err)
		return c
	}

	setActor := func(addr address.Address, act *types.Actor) {
		require.NoError(t, st.SetActor(addr, act))
	}

	setActor(builtin.SystemActorAddr, &types.Actor{
		Code:    builtin.SystemActorCodeID,
		Head:    mustPut([]struct{}{}),
		Balance: types.NewInt(0),
	})

	emptyMap, err := adt.MakeEmptyMap(adt.WrapStore(ctx, cst)).Root()
	require.NoError(t, err)
	setActor(builtin.InitActorAddr, &types.Actor{
		Code:    builtin.InitActorCodeID,
		Head:    mustPut(init_.ConstructState(emptyMap, "vmtest")),
		Balance: types.NewInt(0),
	})

	setActor(builtin.RewardActorAddr, &types.Actor{
		Code:    builtin.RewardActorCodeID,
		Head:    mustPut(reward.ConstructState()),
		Balance: types.BigInt{Int: build.InitialRewardBalance},
	})

	setActor(builtin.CronActorAddr, &types.Actor{
		Code:    builtin.CronActorCodeID,
		Head:    mustPut(cron.ConstructState(nil)),
		Balance: types.NewInt(0),
	})

	setActor(builtin.BurntFundsActorAddr, &types.Actor{
		Code:    builtin.AccountActorCodeID,
		Head:    mustPut(&account.State{Address: builtin.BurntFundsActorAddr}),
		Balance: types.NewInt(0),
	})

	id, err := st.RegisterNewAddress(sender)
	require.NoError(t, err)
	setActor(id, &types.Actor{
		Code:    builtin.AccountActorCodeID,
		Head:    mustPut(&account.State{Address: sender}),
		Balance: funds,
	})

	root, err := st.Flush(ctx)
	require.NoError(t, err)

	vm, err := NewVM(ctx, &VMOpts{
		StateBase: root,
		Epoch:     1,
		Bstore:    bs,
		Actors:    NewActorRegistry(),
		Syscalls:  Syscalls(),
		BaseFee:   types.NewInt(0),
	})
	require.NoError(t, err)

	return &vmHarness{vm: vm, bs: bs}
}

func (h *vmHarness) stateAfterFlush(t *testing.T) *state.StateTree {
	t.Helper()
	root, err := h.vm.Flush(context.Background())
	require.NoError(t, err)

	st, err := state.LoadStateTree(cbor.NewCborStore(h.bs), root)
	require.NoError(t, err)
	return st
}

func randomSecpAddr(t *testing.T, seed byte) address.Address {
	t.Helper()
	buf := make([]byte, 48)
	for i := range buf {
		buf[i] = seed
	}
	a, err := address.NewSecp256k1Address(buf)
	require.NoError(t, err)
	return a
}

func transferMsg(from, to address.Address, nonce uint64, amt uint64) *types.Message {
	return &types.Message{
		From:       from,
		To:         to,
		Nonce:      nonce,
		Value:      types.NewInt(amt),
		GasLimit:   build.BlockGasLimit,
		GasFeeCap:  types.NewInt(0),
		GasPremium: types.NewInt(0),
		Method:     builtin.MethodSend,
	}
}

func TestApplyMessageTransfer(t *testing.T) {
	ctx := context.Background()
	sender := randomSecpAddr(t, 1)
	target := randomSecpAddr(t, 2)

	h := setupTestVM(t, sender, types.NewInt(100_000))

	ret, err := h.vm.ApplyMessage(ctx, transferMsg(sender, target, 0, 30_000))
	require.NoError(t, err)
	require.True(t, ret.ExitCode.IsSuccess(), "exit code: %s, err: %s", ret.ExitCode, ret.ActorErr)
	require.Greater(t, ret.GasUsed, int64(0))

	st := h.stateAfterFlush(t)

	// the recipient account was auto-created and credited
	tact, err := st.GetActor(target)
	require.NoError(t, err)
	require.True(t, builtin.IsAccountActor(tact.Code))
	require.Equal(t, types.NewInt(30_000), tact.Balance)

	sact, err := st.GetActor(sender)
	require.NoError(t, err)
	require.Equal(t, types.NewInt(70_000), sact.Balance)
	require.Equal(t, uint64(1), sact.Nonce)
}

func TestApplyMessageNonceStrict(t *testing.T) {
	ctx := context.Background()
	sender := randomSecpAddr(t, 3)
	target := randomSecpAddr(t, 4)

	h := setupTestVM(t, sender, types.NewInt(100_000))

	ret, err := h.vm.ApplyMessage(ctx, transferMsg(sender, target, 5, 1))
	require.NoError(t, err)
	require.Equal(t, exitcode.SysErrSenderStateInvalid, ret.ExitCode)

	ret, err = h.vm.ApplyMessage(ctx, transferMsg(sender, target, 0, 1))
	require.NoError(t, err)
	require.True(t, ret.ExitCode.IsSuccess())

	// replaying the same nonce must fail
	ret, err = h.vm.ApplyMessage(ctx, transferMsg(sender, target, 0, 1))
	require.NoError(t, err)
	require.Equal(t, exitcode.SysErrSenderStateInvalid, ret.ExitCode)
}

func TestApplyMessageUnknownSender(t *testing.T) {
	ctx := context.Background()
	sender := randomSecpAddr(t, 5)

	h := setupTestVM(t, sender, types.NewInt(100_000))

	stranger := randomSecpAddr(t, 6)
	ret, err := h.vm.ApplyMessage(ctx, transferMsg(stranger, sender, 0, 1))
	require.NoError(t, err)
	require.Equal(t, exitcode.SysErrSenderInvalid, ret.ExitCode)
}

func TestApplyMessageRevertOnFailure(t *testing.T) {
	ctx := context.Background()
	sender := randomSecpAddr(t, 7)

	h := setupTestVM(t, sender, types.NewInt(100_000))

	// invalid method on the init actor; the value transfer must be
	// rolled back but the nonce still advances
	msg := transferMsg(sender, builtin.InitActorAddr, 0, 5_000)
	msg.Method = abi.MethodNum(77)

	ret, err := h.vm.ApplyMessage(ctx, msg)
	require.NoError(t, err)
	require.Equal(t, exitcode.SysErrInvalidMethod, ret.ExitCode)

	st := h.stateAfterFlush(t)

	sact, err := st.GetActor(sender)
	require.NoError(t, err)
	require.Equal(t, types.NewInt(100_000), sact.Balance)
	require.Equal(t, uint64(1), sact.Nonce)

	iact, err := st.GetActor(builtin.InitActorAddr)
	require.NoError(t, err)
	require.Equal(t, types.NewInt(0), iact.Balance)
}

func TestApplyMessageInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	sender := randomSecpAddr(t, 8)
	target := randomSecpAddr(t, 9)

	h := setupTestVM(t, sender, types.NewInt(1_000))

	ret, err := h.vm.ApplyMessage(ctx, transferMsg(sender, target, 0, 50_000))
	require.NoError(t, err)
	require.Equal(t, exitcode.SysErrInsufficientFunds, ret.ExitCode)

	st := h.stateAfterFlush(t)
	sact, err := st.GetActor(sender)
	require.NoError(t, err)
	require.Equal(t, types.NewInt(1_000), sact.Balance)
}

func TestGasTracingToggle(t *testing.T) {
	ctx := context.Background()
	sender := randomSecpAddr(t, 12)
	target := randomSecpAddr(t, 13)

	h := setupTestVM(t, sender, types.NewInt(100_000))

	prev := EnableDetailedTracing
	defer func() { EnableDetailedTracing = prev }()

	EnableDetailedTracing = false
	ret, err := h.vm.ApplyMessage(ctx, transferMsg(sender, target, 0, 1_000))
	require.NoError(t, err)
	require.True(t, ret.ExitCode.IsSuccess())
	require.Empty(t, ret.ExecutionTrace.GasCharges)

	EnableDetailedTracing = true
	ret, err = h.vm.ApplyMessage(ctx, transferMsg(sender, target, 1, 1_000))
	require.NoError(t, err)
	require.True(t, ret.ExitCode.IsSuccess())
	require.NotEmpty(t, ret.ExecutionTrace.GasCharges)
}

// faultyContract moves its funds around and then aborts, for checking
// that aborts undo everything the call tree wrote.
type faultyContract struct{}

func (f faultyContract) Exports() []interface{} {
	return []interface{}{
		nil,
		nil,
		f.TransferThenAbort,
	}
}

func (faultyContract) TransferThenAbort(rt vmr.Runtime, _ *abi.EmptyValue) *abi.EmptyValue {
	rt.ValidateImmediateCallerAcceptAny()

	code := rt.Send(builtin.BurntFundsActorAddr, builtin.MethodSend, nil, types.NewInt(7_000), &builtin.Discard{})
	builtin.RequireSuccess(rt, code, "inner transfer failed")

	rt.Abortf(exitcode.ErrForbidden, "abandoning after the inner transfer")
	return nil
}

func TestAbortRollsBackNestedSends(t *testing.T) {
	ctx := context.Background()
	sender := randomSecpAddr(t, 11)

	h := setupTestVM(t, sender, types.NewInt(100_000))

	builder := cid.V1Builder{Codec: cid.Raw, MhType: mh.IDENTITY}
	faultyCode, err := builder.Sum([]byte("aster/1/faulty"))
	require.NoError(t, err)
	h.vm.areg.Register(faultyCode, faultyContract{}, nil)

	head, err := h.vm.cst.Put(ctx, []struct{}{})
	require.NoError(t, err)

	faddr, err := address.NewIDAddress(98)
	require.NoError(t, err)
	require.NoError(t, h.vm.cstate.SetActor(faddr, &types.Actor{
		Code:    faultyCode,
		Head:    head,
		Balance: types.NewInt(50_000),
	}))

	rootBefore, err := h.vm.Flush(ctx)
	require.NoError(t, err)

	ret, err := h.vm.ApplyImplicitMessage(ctx, &types.Message{
		From:       builtin.SystemActorAddr,
		To:         faddr,
		Value:      types.NewInt(0),
		GasFeeCap:  types.NewInt(0),
		GasPremium: types.NewInt(0),
		Method:     abi.MethodNum(2),
	})
	require.Error(t, err)
	require.Equal(t, exitcode.ErrForbidden, ret.ExitCode)

	// the inner transfer committed before the abort, then the whole call
	// tree was rolled back: the state root must not have moved
	rootAfter, err := h.vm.Flush(ctx)
	require.NoError(t, err)
	require.Equal(t, rootBefore, rootAfter)
}

func TestApplyImplicitMessage(t *testing.T) {
	ctx := context.Background()
	sender := randomSecpAddr(t, 10)

	h := setupTestVM(t, sender, types.NewInt(100_000))

	// implicit cron tick from the system actor
	ret, err := h.vm.ApplyImplicitMessage(ctx, &types.Message{
		From:       builtin.SystemActorAddr,
		To:         builtin.CronActorAddr,
		Value:      types.NewInt(0),
		GasFeeCap:  types.NewInt(0),
		GasPremium: types.NewInt(0),
		Method:     builtin.MethodsCron.EpochTick,
	})
	require.NoError(t, err)
	require.True(t, ret.ExitCode.IsSuccess())
	require.Equal(t, int64(0), ret.GasUsed)
}
