package build

import (
	"math/big"

	"github.com/filecoin-project/go-state-types/abi"
)

// Core chain parameters. These are consensus-critical: changing any of
// them produces a different state transition for the same inputs.
const (
	BlockGasLimit  = int64(10_000_000_000)
	BlockGasTarget = BlockGasLimit / 2

	BlockDelaySecs = uint64(30)

	// MaxCallDepth bounds the actor call tree explicitly so a deep
	// mutual recursion aborts with an exit code instead of blowing the
	// goroutine stack.
	MaxCallDepth = 4096

	MinimumBaseFee = 100
)

// AsterPrecision is the number of attoaster in one AST.
const AsterPrecision = uint64(1_000_000_000_000_000_000)

var (
	// InitialRewardBalance is the reward pool the genesis reward actor
	// starts with; block rewards and gas tips are paid out of it.
	InitialRewardBalance *big.Int

	// BlockReward paid per winning block, before gas tips.
	BlockReward *big.Int
)

func init() {
	InitialRewardBalance = big.NewInt(int64(1_400_000_000))
	InitialRewardBalance = InitialRewardBalance.Mul(InitialRewardBalance, big.NewInt(int64(AsterPrecision)))

	BlockReward = big.NewInt(5)
	BlockReward = BlockReward.Mul(BlockReward, big.NewInt(int64(AsterPrecision)))
}

// UpgradeAmberHeight is the epoch at which the revised gas pricelist
// takes effect.
var UpgradeAmberHeight = abi.ChainEpoch(0)
