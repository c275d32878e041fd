package system

import (
	"github.com/filecoin-project/go-state-types/abi"

	"github.com/asterchain/aster/chain/actors/builtin"
	"github.com/asterchain/aster/chain/actors/runtime"
)

// The system actor is the sender of implicit messages (cron ticks,
// rewards, genesis construction). It has no state of its own.
type Actor struct{}

func (a Actor) Exports() []interface{} {
	return []interface{}{
		builtin.MethodConstructor: a.Constructor,
	}
}

func (a Actor) Constructor(rt runtime.Runtime, _ *abi.EmptyValue) *abi.EmptyValue {
	rt.ValidateImmediateCallerIs(builtin.SystemActorAddr)
	return nil
}
