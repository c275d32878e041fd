package vm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/asterchain/aster/chain/types"
)

func TestGasOverestimationBurn(t *testing.T) {
	tests := []struct {
		used   int64
		limit  int64
		refund int64
		burn   int64
	}{
		{0, 0, 0, 0},
		{0, 100, 0, 100},     // all overestimated gas burns when nothing was used
		{100, 100, 0, 0},     // perfect estimate
		{100, 110, 10, 0},    // within the 10% allowance
		{100, 120, 18, 2},    // just past the allowance
		{100, 200, 10, 90},   // overestimation burn kicks in hard
		{100, 220, 0, 120},   // over factor capped at 1
		{100, 300, 0, 200},   // way over
		{10_000_000_000, 100_000_000_000, 0, 90_000_000_000},
	}

	for _, test := range tests {
		refund, burn := ComputeGasOverestimationBurn(test.used, test.limit)
		require.Equal(t, test.refund, refund, "refund mismatch for used %d limit %d", test.used, test.limit)
		require.Equal(t, test.burn, burn, "burn mismatch for used %d limit %d", test.used, test.limit)
	}
}

func TestGasOutputs(t *testing.T) {
	baseFee := types.NewInt(10)

	tests := []struct {
		used               int64
		limit              int64
		feeCap             uint64
		premium            uint64
		BaseFeeBurn        uint64
		OverEstimationBurn uint64
		MinerPenalty       uint64
		MinerTip           uint64
		Refund             uint64
	}{
		{100, 110, 11, 1, 1000, 0, 0, 110, 100},
		{100, 120, 11, 1, 1000, 20, 0, 120, 180},
		{100, 110, 5, 1, 500, 0, 500, 0, 50},
		{0, 100, 11, 1, 0, 1000, 0, 100, 0},
	}

	for _, test := range tests {
		output := ComputeGasOutputs(test.used, test.limit, baseFee, types.NewInt(test.feeCap), types.NewInt(test.premium))
		i2s := func(i uint64) string {
			return types.NewInt(i).String()
		}
		require.Equal(t, i2s(test.BaseFeeBurn), output.BaseFeeBurn.String(), "base fee burn")
		require.Equal(t, i2s(test.OverEstimationBurn), output.OverEstimationBurn.String(), "overestimation burn")
		require.Equal(t, i2s(test.MinerPenalty), output.MinerPenalty.String(), "miner penalty")
		require.Equal(t, i2s(test.MinerTip), output.MinerTip.String(), "miner tip")
		require.Equal(t, i2s(test.Refund), output.Refund.String(), "refund")
	}
}

func TestGasOutputsSumToCost(t *testing.T) {
	baseFee := types.NewInt(10)
	feeCap := types.NewInt(13)
	premium := types.NewInt(2)

	for _, tc := range []struct{ used, limit int64 }{
		{0, 100}, {50, 100}, {100, 100}, {91, 100}, {100, 250},
	} {
		out := ComputeGasOutputs(tc.used, tc.limit, baseFee, feeCap, premium)

		total := types.BigAdd(out.BaseFeeBurn, out.OverEstimationBurn)
		total = types.BigAdd(total, out.MinerTip)
		total = types.BigAdd(total, out.Refund)

		gascost := types.BigMul(types.NewInt(uint64(tc.limit)), feeCap)
		require.Equal(t, gascost.String(), total.String(), "used %d limit %d", tc.used, tc.limit)
	}
}
