package reward

import (
	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/exitcode"

	"github.com/asterchain/aster/build"
	"github.com/asterchain/aster/chain/actors/builtin"
	"github.com/asterchain/aster/chain/actors/runtime"
)

// The reward actor holds the unminted token supply and pays out block
// rewards plus gas tips to miners as blocks are applied.
type Actor struct{}

func (a Actor) Exports() []interface{} {
	return []interface{}{
		builtin.MethodConstructor: a.Constructor,
		2:                         a.AwardBlockReward,
	}
}

type State struct {
	// TotalMined is the cumulative reward paid out since genesis,
	// penalties included.
	TotalMined abi.TokenAmount
}

func ConstructState() *State {
	return &State{TotalMined: big.Zero()}
}

func (a Actor) Constructor(rt runtime.Runtime, _ *abi.EmptyValue) *abi.EmptyValue {
	rt.ValidateImmediateCallerIs(builtin.SystemActorAddr)
	rt.StateCreate(ConstructState())
	return nil
}

type AwardBlockRewardParams struct {
	Miner     address.Address
	Penalty   abi.TokenAmount
	GasReward abi.TokenAmount
	WinCount  int64
}

// AwardBlockReward pays the block reward and the block's aggregate gas
// tips to the miner, less any penalty, which goes to the burnt funds
// actor instead.
func (a Actor) AwardBlockReward(rt runtime.Runtime, params *AwardBlockRewardParams) *abi.EmptyValue {
	rt.ValidateImmediateCallerIs(builtin.SystemActorAddr)

	priorBalance := rt.CurrentBalance()
	if params.Penalty.LessThan(big.Zero()) {
		rt.Abortf(exitcode.ErrIllegalArgument, "negative penalty %v", params.Penalty)
	}
	if params.GasReward.LessThan(big.Zero()) {
		rt.Abortf(exitcode.ErrIllegalArgument, "negative gas reward %v", params.GasReward)
	}
	if params.WinCount <= 0 {
		rt.Abortf(exitcode.ErrIllegalArgument, "invalid win count %d", params.WinCount)
	}

	blockReward := big.Mul(big.NewFromGo(build.BlockReward), big.NewInt(params.WinCount))
	totalReward := big.Add(blockReward, params.GasReward)

	// The pool can run dry; never mint out of thin air.
	if totalReward.GreaterThan(priorBalance) {
		rt.Log(runtime.WARN, "reward pool balance %v below reward %v, paying out balance", priorBalance, totalReward)
		totalReward = priorBalance
	}

	penalty := big.Min(params.Penalty, totalReward)
	payable := big.Sub(totalReward, penalty)

	var st State
	rt.StateTransaction(&st, func() {
		st.TotalMined = big.Add(st.TotalMined, totalReward)
	})

	code := rt.Send(params.Miner, builtin.MethodSend, nil, payable, &builtin.Discard{})
	if !code.IsSuccess() {
		rt.Log(runtime.ERROR, "failed to send reward to miner %s, burning it: code %d", params.Miner, code)
		penalty = big.Add(penalty, payable)
	}

	if penalty.GreaterThan(big.Zero()) {
		code := rt.Send(builtin.BurntFundsActorAddr, builtin.MethodSend, nil, penalty, &builtin.Discard{})
		builtin.RequireSuccess(rt, code, "failed to burn penalty")
	}

	return nil
}
