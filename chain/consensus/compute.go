package consensus

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/filecoin-project/go-address"
	amt4 "github.com/filecoin-project/go-amt-ipld/v4"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
	logging "github.com/ipfs/go-log/v2"
	cbg "github.com/whyrusleeping/cbor-gen"
	"go.opencensus.io/stats"
	"go.opencensus.io/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/asterchain/aster/blockstore"
	"github.com/asterchain/aster/build"
	"github.com/asterchain/aster/chain/actors"
	"github.com/asterchain/aster/chain/actors/builtin"
	"github.com/asterchain/aster/chain/actors/builtin/reward"
	"github.com/asterchain/aster/chain/types"
	"github.com/asterchain/aster/chain/vm"
	"github.com/asterchain/aster/lib/sigs"
	"github.com/asterchain/aster/metrics"
)

var log = logging.Logger("consensus")

// BlockMessages is the list of messages a single block contributes to
// its epoch, split by signature type the way they appear on chain.
type BlockMessages struct {
	Miner         address.Address
	BlsMessages   []types.ChainMsg
	SecpkMessages []types.ChainMsg
	WinCount      int64
}

// TipSetExecutor applies the messages of all blocks at an epoch on top
// of a parent state, paying out block rewards and running cron.
type TipSetExecutor struct {
	bs       blockstore.Blockstore
	syscalls vm.SyscallBuilder
}

func NewTipSetExecutor(bs blockstore.Blockstore, syscalls vm.SyscallBuilder) *TipSetExecutor {
	return &TipSetExecutor{
		bs:       bs,
		syscalls: syscalls,
	}
}

func (t *TipSetExecutor) NewActorRegistry() *vm.ActorRegistry {
	return vm.NewActorRegistry()
}

// checkBlockMessages verifies the signatures of all signed messages in
// the batch. Signature checks are independent, so they run in parallel.
func (t *TipSetExecutor) checkBlockMessages(ctx context.Context, bms []BlockMessages) error {
	var g errgroup.Group
	for _, b := range bms {
		for _, cm := range b.SecpkMessages {
			sm, ok := cm.(*types.SignedMessage)
			if !ok {
				return xerrors.Errorf("secp message was not signed")
			}
			g.Go(func() error {
				if err := sigs.CheckMessageSignature(ctx, sm, sm.Message.From); err != nil {
					return xerrors.Errorf("message %s has invalid signature: %w", sm.Cid(), err)
				}
				return nil
			})
		}
	}
	return g.Wait()
}

// ApplyBlocks executes bms on top of pstate and returns the new state
// root along with the root of the receipts array.
//
// Message application order follows block order, messages within a
// block stay in their given order, and a message included by more than
// one block only executes once. Cron runs for every epoch in
// (parentEpoch, epoch], so null rounds are backfilled before the
// block messages execute.
func (t *TipSetExecutor) ApplyBlocks(ctx context.Context,
	parentEpoch abi.ChainEpoch,
	pstate cid.Cid,
	bms []BlockMessages,
	epoch abi.ChainEpoch,
	baseFee abi.TokenAmount) (cid.Cid, cid.Cid, error) {

	ctx, span := trace.StartSpan(ctx, "consensus.ApplyBlocks")
	defer span.End()

	done := metrics.Timer(ctx, metrics.VMApplyBlocksTotal)
	defer done()

	if parentEpoch >= epoch && epoch != 0 {
		return cid.Undef, cid.Undef, xerrors.Errorf("epoch %d must come after parent epoch %d", epoch, parentEpoch)
	}

	for i := 0; i < len(bms); i++ {
		for j := i + 1; j < len(bms); j++ {
			if bms[i].Miner == bms[j].Miner {
				return cid.Undef, cid.Undef, xerrors.Errorf("duplicate miner in a tipset (%s)", bms[i].Miner)
			}
		}
	}

	if err := t.checkBlockMessages(ctx, bms); err != nil {
		return cid.Undef, cid.Undef, err
	}

	makeVm := func(base cid.Cid, e abi.ChainEpoch) (*vm.VM, error) {
		return vm.NewVM(ctx, &vm.VMOpts{
			StateBase: base,
			Epoch:     e,
			Bstore:    t.bs,
			Actors:    vm.NewActorRegistry(),
			Syscalls:  t.syscalls,
			BaseFee:   baseFee,
		})
	}

	runCron := func(vmCron *vm.VM, e abi.ChainEpoch) error {
		cronMsg := &types.Message{
			To:         builtin.CronActorAddr,
			From:       builtin.SystemActorAddr,
			Nonce:      uint64(e),
			Value:      types.NewInt(0),
			GasFeeCap:  types.NewInt(0),
			GasPremium: types.NewInt(0),
			GasLimit:   build.BlockGasLimit * 10000, // Make super sure this is never too little
			Method:     builtin.MethodsCron.EpochTick,
			Params:     nil,
		}
		ret, err := vmCron.ApplyImplicitMessage(ctx, cronMsg)
		if err != nil {
			return xerrors.Errorf("running cron: %w", err)
		}
		if !ret.ExitCode.IsSuccess() {
			return xerrors.Errorf("cron failed with exit code %d: %w", ret.ExitCode, ret.ActorErr)
		}
		return nil
	}

	// backfill cron for null rounds between the parent and this epoch
	for i := parentEpoch + 1; i < epoch; i++ {
		vmCron, err := makeVm(pstate, i)
		if err != nil {
			return cid.Undef, cid.Undef, xerrors.Errorf("making cron vm: %w", err)
		}

		if err := runCron(vmCron, i); err != nil {
			return cid.Undef, cid.Undef, err
		}

		pstate, err = vmCron.Flush(ctx)
		if err != nil {
			return cid.Undef, cid.Undef, xerrors.Errorf("flushing cron vm: %w", err)
		}
	}

	partDone := metrics.Timer(ctx, metrics.VMApplyMessages)
	defer func() {
		partDone()
	}()

	vmi, err := makeVm(pstate, epoch)
	if err != nil {
		return cid.Undef, cid.Undef, xerrors.Errorf("making vm: %w", err)
	}

	var (
		receipts      []cbg.CBORMarshaler
		processedMsgs = make(map[cid.Cid]struct{})
	)

	for _, b := range bms {
		penalty := types.NewInt(0)
		gasReward := big.Zero()

		for _, cm := range append(b.BlsMessages, b.SecpkMessages...) {
			m := cm.VMMessage()
			if _, found := processedMsgs[m.Cid()]; found {
				continue
			}
			r, err := vmi.ApplyMessage(ctx, cm)
			if err != nil {
				return cid.Undef, cid.Undef, err
			}

			receipts = append(receipts, &r.MessageReceipt)
			gasReward = big.Add(gasReward, r.GasCosts.MinerTip)
			penalty = big.Add(penalty, r.GasCosts.MinerPenalty)

			stats.Record(ctx, metrics.MessageApplied.M(1))
			processedMsgs[m.Cid()] = struct{}{}
		}

		params, aerr := actors.SerializeParams(&reward.AwardBlockRewardParams{
			Miner:     b.Miner,
			Penalty:   penalty,
			GasReward: gasReward,
			WinCount:  b.WinCount,
		})
		if aerr != nil {
			return cid.Undef, cid.Undef, xerrors.Errorf("failed to serialize award params: %w", aerr)
		}

		rwMsg := &types.Message{
			From:       builtin.SystemActorAddr,
			To:         builtin.RewardActorAddr,
			Nonce:      uint64(epoch),
			Value:      types.NewInt(0),
			GasFeeCap:  types.NewInt(0),
			GasPremium: types.NewInt(0),
			GasLimit:   1 << 30,
			Method:     builtin.MethodsReward.AwardBlockReward,
			Params:     params,
		}
		ret, actErr := vmi.ApplyImplicitMessage(ctx, rwMsg)
		if actErr != nil {
			return cid.Undef, cid.Undef, xerrors.Errorf("failed to apply reward message for miner %s: %w", b.Miner, actErr)
		}
		if !ret.ExitCode.IsSuccess() {
			return cid.Undef, cid.Undef, xerrors.Errorf("reward application message failed (exit %d): %s", ret.ExitCode, ret.ActorErr)
		}
	}

	vmMsgDuration := partDone()
	partDone = metrics.Timer(ctx, metrics.VMApplyCron)

	if err := runCron(vmi, epoch); err != nil {
		return cid.Undef, cid.Undef, err
	}

	vmCronDuration := partDone()
	partDone = metrics.Timer(ctx, metrics.VMApplyFlush)

	// receipts go straight to the chain store, they are not part of the
	// state tree the vm flushes
	rectroot, err := amt4.FromArray(ctx, cbor.NewCborStore(t.bs), receipts)
	if err != nil {
		return cid.Undef, cid.Undef, xerrors.Errorf("failed to build receipts amt: %w", err)
	}

	st, err := vmi.Flush(ctx)
	if err != nil {
		return cid.Undef, cid.Undef, xerrors.Errorf("vm flush failed: %w", err)
	}

	vmFlushDuration := partDone()
	partDone = func() time.Duration { return time.Duration(0) }

	log.Infow(
		"ApplyBlocks stats",
		"vmMsgMs", vmMsgDuration.Milliseconds(),
		"vmCronMs", vmCronDuration.Milliseconds(),
		"vmFlushMs", vmFlushDuration.Milliseconds(),
		"epoch", epoch,
	)

	stats.Record(ctx,
		metrics.ChainEpoch.M(int64(epoch)),
		metrics.VMSends.M(int64(atomic.LoadUint64(&vm.StatSends))),
		metrics.VMApplied.M(int64(atomic.LoadUint64(&vm.StatApplied))),
	)

	return st, rectroot, nil
}
