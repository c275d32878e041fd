package init

import (
	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/ipfs/go-cid"

	"github.com/asterchain/aster/chain/actors/adt"
	"github.com/asterchain/aster/chain/actors/builtin"
	"github.com/asterchain/aster/chain/actors/runtime"
)

// The init actor instantiates all other actors and keeps the map from
// robust addresses to the ID addresses it assigned them.
type Actor struct{}

func (a Actor) Exports() []interface{} {
	return []interface{}{
		builtin.MethodConstructor: a.Constructor,
		2:                         a.Exec,
	}
}

type ConstructorParams struct {
	NetworkName string
}

func (a Actor) Constructor(rt runtime.Runtime, params *ConstructorParams) *abi.EmptyValue {
	rt.ValidateImmediateCallerIs(builtin.SystemActorAddr)

	emptyMap, err := adt.MakeEmptyMap(adt.AsStore(rt)).Root()
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to construct state")

	st := ConstructState(emptyMap, params.NetworkName)
	rt.StateCreate(st)
	return nil
}

type ExecParams struct {
	CodeCID           cid.Cid
	ConstructorParams []byte
}

type ExecReturn struct {
	// IDAddress is the canonical ID-based address of the new actor.
	IDAddress address.Address
	// RobustAddress is a reorg-safe address for the new actor.
	RobustAddress address.Address
}

// Exec creates a new actor: assigns it the next ID, binds a robust
// address to that ID, and invokes the new actor's constructor with the
// supplied parameters and received value.
func (a Actor) Exec(rt runtime.Runtime, params *ExecParams) *ExecReturn {
	rt.ValidateImmediateCallerAcceptAny()

	if !canExec(params.CodeCID) {
		rt.Abortf(exitcode.ErrForbidden, "cannot exec actor type %v", params.CodeCID)
	}

	// Compute a reorg-stable address for the new actor before touching
	// state, so the mapping below is deterministic for this message.
	uniqueAddress := rt.NewActorAddress()

	var st State
	var idAddr address.Address
	rt.StateTransaction(&st, func() {
		var err error
		idAddr, err = st.MapAddressToNewID(adt.AsStore(rt), uniqueAddress)
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to allocate ID address")
	})

	rt.CreateActor(params.CodeCID, idAddr)

	code := rt.Send(idAddr, builtin.MethodConstructor, runtime.CBORBytes(params.ConstructorParams), rt.ValueReceived(), &builtin.Discard{})
	builtin.RequireSuccess(rt, code, "constructor failed")

	return &ExecReturn{IDAddress: idAddr, RobustAddress: uniqueAddress}
}

func canExec(codeID cid.Cid) bool {
	// Singletons exist from genesis and may never be created again;
	// everything else the registry knows is fair game.
	return builtin.IsBuiltinActor(codeID) && !builtin.IsSingletonActor(codeID)
}
