package types

import (
	"errors"

	"github.com/ipfs/go-cid"
)

// ErrActorNotFound is returned by state-tree lookups for addresses with
// no actor bound to them.
var ErrActorNotFound = errors.New("actor not found")

// Actor is the on-chain header of an actor: its code, the CID of its
// state blob, its call sequence number and balance. The state blob
// itself is opaque to everything but the actor's own methods.
type Actor struct {
	Code    cid.Cid
	Head    cid.Cid
	Nonce   uint64
	Balance BigInt
}
