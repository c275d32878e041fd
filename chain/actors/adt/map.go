package adt

import (
	"bytes"
	"crypto/sha256"

	hamt "github.com/filecoin-project/go-hamt-ipld/v3"
	"github.com/ipfs/go-cid"
	cbg "github.com/whyrusleeping/cbor-gen"
	"golang.org/x/xerrors"
)

// HamtBitwidth is the branching factor used for all actor-state HAMTs.
// Changing it changes every map root CID, so it is consensus-critical.
const HamtBitwidth = 5

func hamtOptions() []hamt.Option {
	return []hamt.Option{
		hamt.UseTreeBitWidth(HamtBitwidth),
		hamt.UseHashFunction(func(input []byte) []byte {
			res := sha256.Sum256(input)
			return res[:]
		}),
	}
}

// Map stores key-value pairs in a HAMT.
type Map struct {
	root  *hamt.Node
	store Store
}

// AsMap interprets a store as a HAMT-based map with root r.
func AsMap(s Store, r cid.Cid) (*Map, error) {
	nd, err := hamt.LoadNode(s.Context(), s, r, hamtOptions()...)
	if err != nil {
		return nil, xerrors.Errorf("failed to load hamt node: %w", err)
	}

	return &Map{
		root:  nd,
		store: s,
	}, nil
}

// MakeEmptyMap creates a new map backed by an empty HAMT.
func MakeEmptyMap(s Store) *Map {
	nd, _ := hamt.NewNode(s, hamtOptions()...)
	return &Map{
		root:  nd,
		store: s,
	}
}

// Root writes the map out and returns its root CID.
func (m *Map) Root() (cid.Cid, error) {
	return m.root.Write(m.store.Context())
}

// Put adds value v with key k to the hamt store.
func (m *Map) Put(k Keyer, v cbg.CBORMarshaler) error {
	if err := m.root.Set(m.store.Context(), k.Key(), v); err != nil {
		return xerrors.Errorf("failed to set key %x value %v in node %v: %w", k.Key(), v, m.root, err)
	}
	return nil
}

// Get retrieves the value at k into out, if the key exists.
func (m *Map) Get(k Keyer, out cbg.CBORUnmarshaler) (bool, error) {
	found, err := m.root.Find(m.store.Context(), k.Key(), out)
	if err != nil {
		return false, xerrors.Errorf("failed to get key %v: %w", k.Key(), err)
	}
	return found, nil
}

// Delete removes the value at k from the hamt store, if it exists.
func (m *Map) Delete(k Keyer) (bool, error) {
	found, err := m.root.Delete(m.store.Context(), k.Key())
	if err != nil {
		return false, xerrors.Errorf("failed to delete key %v: %w", k.Key(), err)
	}
	return found, nil
}

// ForEach iterates all entries in the map, deserializing each value in
// turn into out and calling fn with the corresponding key.
func (m *Map) ForEach(out cbg.CBORUnmarshaler, fn func(key string) error) error {
	return m.root.ForEach(m.store.Context(), func(k string, val *cbg.Deferred) error {
		if out != nil {
			if err := out.UnmarshalCBOR(bytes.NewReader(val.Raw)); err != nil {
				return err
			}
		}
		return fn(k)
	})
}
