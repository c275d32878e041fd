package account

import (
	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/exitcode"

	"github.com/asterchain/aster/chain/actors/builtin"
	"github.com/asterchain/aster/chain/actors/runtime"
)

// Actor of a user account. It holds funds and maps a public-key
// address to its ID address; all its behavior beyond that is plain
// value transfer.
type Actor struct{}

func (a Actor) Exports() []interface{} {
	return []interface{}{
		builtin.MethodConstructor: a.Constructor,
		2:                         a.PubkeyAddress,
	}
}

// State includes the address the actor was created with.
type State struct {
	Address address.Address
}

func (a Actor) Constructor(rt runtime.Runtime, params *address.Address) *abi.EmptyValue {
	// Account actors are created implicitly by sending a message to a
	// pubkey-style address, so only the system can construct them.
	rt.ValidateImmediateCallerIs(builtin.SystemActorAddr)

	switch params.Protocol() {
	case address.SECP256K1, address.BLS:
	default:
		rt.Abortf(exitcode.ErrIllegalArgument, "address must use SECP256K1 or BLS protocol, got %v", params.Protocol())
	}
	st := State{Address: *params}
	rt.StateCreate(&st)
	return nil
}

// PubkeyAddress returns the public-key address this account was
// constructed with. Useful for signature checks against an ID address.
func (a Actor) PubkeyAddress(rt runtime.Runtime, _ *abi.EmptyValue) *address.Address {
	rt.ValidateImmediateCallerAcceptAny()
	var st State
	rt.StateReadonly(&st)
	return &st.Address
}
