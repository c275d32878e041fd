package cron

import (
	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"

	"github.com/asterchain/aster/chain/actors/builtin"
	"github.com/asterchain/aster/chain/actors/runtime"
)

// The cron actor invokes a static list of entries at the end of every
// epoch. The system actor is the only permitted caller, so the entries
// run as implicit messages outside any block's gas accounting.
type Actor struct{}

func (a Actor) Exports() []interface{} {
	return []interface{}{
		builtin.MethodConstructor: a.Constructor,
		2:                         a.EpochTick,
	}
}

type State struct {
	Entries []Entry
}

type Entry struct {
	// Receiver must be an ID address.
	Receiver  address.Address
	MethodNum abi.MethodNum
}

type ConstructorParams struct {
	Entries []Entry
}

func ConstructState(entries []Entry) *State {
	return &State{Entries: entries}
}

// BuiltInEntries is the tick list a new chain starts with. None of the
// singletons need a periodic call yet.
func BuiltInEntries() []Entry {
	return nil
}

func (a Actor) Constructor(rt runtime.Runtime, params *ConstructorParams) *abi.EmptyValue {
	rt.ValidateImmediateCallerIs(builtin.SystemActorAddr)
	rt.StateCreate(ConstructState(params.Entries))
	return nil
}

// EpochTick executes built-in periodic actions, run at every epoch.
// A failing entry does not fail the tick; its effects are reverted and
// the rest of the entries still run.
func (a Actor) EpochTick(rt runtime.Runtime, _ *abi.EmptyValue) *abi.EmptyValue {
	rt.ValidateImmediateCallerIs(builtin.SystemActorAddr)

	var st State
	rt.StateReadonly(&st)
	for _, entry := range st.Entries {
		code := rt.Send(entry.Receiver, entry.MethodNum, nil, big.Zero(), &builtin.Discard{})
		if !code.IsSuccess() {
			rt.Log(runtime.WARN, "cron entry %s method %d failed with code %d", entry.Receiver, entry.MethodNum, code)
		}
	}
	return nil
}
