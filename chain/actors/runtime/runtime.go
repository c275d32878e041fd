package runtime

import (
	"context"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/filecoin-project/go-state-types/crypto"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/ipfs/go-cid"
	ipldcbor "github.com/ipfs/go-ipld-cbor"
)

// Runtime is the execution environment handed to actor methods. All
// chain state access goes through it so that gas is charged and
// mutations stay inside the current transaction.
//
// Methods prefixed with Validate or State, plus Send, Abortf,
// CreateActor and DeleteActor, may abort execution by panicking with an
// ActorError; the VM translates that into the message's exit code.
type Runtime interface {
	Message

	// Context is the context of the underlying chain computation. It is
	// NOT for cancellation of individual actor calls.
	Context() context.Context

	CurrEpoch() abi.ChainEpoch

	// ValidateImmediateCallerAcceptAny succeeds for any caller. Exactly
	// one caller validation must happen per method invocation.
	ValidateImmediateCallerAcceptAny()
	ValidateImmediateCallerIs(addrs ...address.Address)
	ValidateImmediateCallerType(types ...cid.Cid)

	CurrentBalance() abi.TokenAmount

	// ResolveAddress maps an address of any protocol to its ID address,
	// if one is bound in the state tree.
	ResolveAddress(addr address.Address) (address.Address, bool)

	// GetActorCodeCID returns the code of the actor at the given
	// address, if any.
	GetActorCodeCID(addr address.Address) (cid.Cid, bool)

	Store() Store

	// Send dispatches a message to the given actor, transferring value
	// and unmarshaling the return into out if non-nil. A non-Ok exit
	// code from the callee is returned, not propagated.
	Send(to address.Address, method abi.MethodNum, params cbor.Marshaler, value abi.TokenAmount, out cbor.Er) exitcode.ExitCode

	// Abortf halts execution with the given exit code. It does not
	// return.
	Abortf(code exitcode.ExitCode, msg string, args ...interface{})

	// NewActorAddress computes a reorg-stable address for a new actor.
	NewActorAddress() address.Address

	// CreateActor instantiates an actor with the given code at the
	// given ID address, with empty state and zero balance.
	CreateActor(codeID cid.Cid, addr address.Address)

	// DeleteActor removes the calling actor, sending any remaining
	// balance to beneficiary.
	DeleteActor(beneficiary address.Address)

	StateCreate(obj cbor.Marshaler)
	StateReadonly(obj cbor.Unmarshaler)
	StateTransaction(obj cbor.Er, f func())

	Syscalls() Syscalls

	// ChargeGas applies an actor-defined gas charge on top of the
	// pricelist-driven ones.
	ChargeGas(name string, gas int64, virtual int64)

	Log(level LogLevel, msg string, args ...interface{})
}

// Message exposes the fields of the message that triggered this
// invocation. Caller and Receiver are always ID addresses.
type Message interface {
	Caller() address.Address
	Receiver() address.Address
	ValueReceived() abi.TokenAmount
}

// Store is gas-metered access to the chain's IPLD store.
type Store interface {
	Context() context.Context
	ipldcbor.IpldStore
}

// Syscalls are the pure host functions available to actors.
type Syscalls interface {
	VerifySignature(signature crypto.Signature, signer address.Address, plaintext []byte) error
	HashBlake2b(data []byte) [32]byte
}

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)
