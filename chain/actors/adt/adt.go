package adt

import (
	"context"

	"github.com/filecoin-project/go-address"
	"github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"

	"github.com/asterchain/aster/chain/actors/runtime"
)

// Store defines an interface required to back the ADT structures. It
// is satisfied by runtime.Store, so actor code can hand its runtime
// store straight to AsMap and friends.
type Store interface {
	Context() context.Context
	cbor.IpldStore
}

// AsStore allows Runtime to satisfy the adt.Store interface.
func AsStore(rt runtime.Runtime) Store {
	return rt.Store()
}

func WrapStore(ctx context.Context, store cbor.IpldStore) Store {
	return &wstore{
		ctx:   ctx,
		store: store,
	}
}

type wstore struct {
	ctx   context.Context
	store cbor.IpldStore
}

var _ Store = &wstore{}

func (s *wstore) Context() context.Context {
	return s.ctx
}

func (s *wstore) Get(ctx context.Context, c cid.Cid, out interface{}) error {
	return s.store.Get(ctx, c, out)
}

func (s *wstore) Put(ctx context.Context, v interface{}) (cid.Cid, error) {
	return s.store.Put(ctx, v)
}

// Keyer generates a key for a HAMT entry.
type Keyer interface {
	Key() string
}

// AddrKey keys by the address's binary encoding, protocol byte
// included, so addresses of different protocols never collide.
type AddrKey address.Address

func (k AddrKey) Key() string {
	return string(address.Address(k).Bytes())
}
