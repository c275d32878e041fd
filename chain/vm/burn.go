package vm

import (
	"github.com/filecoin-project/go-state-types/abi"

	"github.com/asterchain/aster/chain/types"
)

const (
	gasOveruseNum   = 11
	gasOveruseDenom = 10
)

// GasOutputs is a breakdown of where the gas fees charged for a
// message end up.
type GasOutputs struct {
	BaseFeeBurn        abi.TokenAmount
	OverEstimationBurn abi.TokenAmount

	MinerPenalty abi.TokenAmount
	MinerTip     abi.TokenAmount
	Refund       abi.TokenAmount

	GasRefund int64
	GasBurned int64
}

// ZeroGasOutputs returns a logically zeroed GasOutputs.
func ZeroGasOutputs() GasOutputs {
	return GasOutputs{
		BaseFeeBurn:        types.NewInt(0),
		OverEstimationBurn: types.NewInt(0),
		MinerPenalty:       types.NewInt(0),
		MinerTip:           types.NewInt(0),
		Refund:             types.NewInt(0),
	}
}

// ComputeGasOverestimationBurn computes amount of gas to be refunded and
// amount of gas to be burned
// Result is (refund, burn)
func ComputeGasOverestimationBurn(gasUsed, gasLimit int64) (int64, int64) {
	if gasUsed == 0 {
		return 0, gasLimit
	}

	// over = gasLimit/gasUsed - 1 - 0.1
	// over = min(over, 1)
	// gasToBurn = (gasLimit - gasUsed) * over

	// so to factor out division from `over`
	// over*gasUsed = min(gasLimit - (11*gasUsed)/10, gasUsed)
	// gasToBurn = ((gasLimit - gasUsed)*over*gasUsed) / gasUsed
	over := gasLimit - (gasOveruseNum*gasUsed)/gasOveruseDenom
	if over < 0 {
		return gasLimit - gasUsed, 0
	}

	// if we want sharper scaling it goes here:
	// over *= 2

	if over > gasUsed {
		over = gasUsed
	}

	// needs bigint, as it overflows in pathological case gasLimit > 2^32 gasUsed = gasLimit / 2
	gasToBurn := types.BigMul(types.NewInt(uint64(gasLimit-gasUsed)), types.NewInt(uint64(over)))
	gasToBurn = types.BigDiv(gasToBurn, types.NewInt(uint64(gasUsed)))

	return gasLimit - gasUsed - gasToBurn.Int64(), gasToBurn.Int64()
}

// ComputeGasOutputs splits the fee charged at gasLimit*feeCap into the
// burn, the miner tip, and the sender refund.
func ComputeGasOutputs(gasUsed, gasLimit int64, baseFee, feeCap, gasPremium abi.TokenAmount) GasOutputs {
	gasUsedBig := types.NewInt(uint64(gasUsed))
	out := ZeroGasOutputs()

	baseFeeToPay := baseFee
	if baseFee.Cmp(feeCap.Int) > 0 {
		baseFeeToPay = feeCap
		out.MinerPenalty = types.BigMul(types.BigSub(baseFee, feeCap), gasUsedBig)
	}

	out.BaseFeeBurn = types.BigMul(baseFeeToPay, gasUsedBig)

	minerTip := gasPremium
	if types.BigCmp(types.BigAdd(baseFeeToPay, minerTip), feeCap) > 0 {
		minerTip = types.BigSub(feeCap, baseFeeToPay)
	}
	out.MinerTip = types.BigMul(minerTip, types.NewInt(uint64(gasLimit)))

	out.GasRefund, out.GasBurned = ComputeGasOverestimationBurn(gasUsed, gasLimit)

	if out.GasBurned != 0 {
		gasBurnedBig := types.NewInt(uint64(out.GasBurned))
		out.OverEstimationBurn = types.BigMul(baseFeeToPay, gasBurnedBig)
		out.MinerPenalty = types.BigAdd(out.MinerPenalty, types.BigMul(types.BigSub(baseFee, baseFeeToPay), gasBurnedBig))
	}

	requiredFunds := types.BigMul(types.NewInt(uint64(gasLimit)), feeCap)
	refund := types.BigSub(requiredFunds, out.BaseFeeBurn)
	refund = types.BigSub(refund, out.MinerTip)
	refund = types.BigSub(refund, out.OverEstimationBurn)
	out.Refund = refund

	return out
}
