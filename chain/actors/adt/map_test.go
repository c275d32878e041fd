package adt

import (
	"context"
	"testing"

	"github.com/filecoin-project/go-address"
	cbor "github.com/ipfs/go-ipld-cbor"
	"github.com/stretchr/testify/require"
	cbg "github.com/whyrusleeping/cbor-gen"
)

func TestMapRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := WrapStore(ctx, cbor.NewMemCborStore())

	m := MakeEmptyMap(store)

	addr, err := address.NewIDAddress(101)
	require.NoError(t, err)

	val := cbg.CborInt(42)
	require.NoError(t, m.Put(AddrKey(addr), &val))

	root, err := m.Root()
	require.NoError(t, err)

	m2, err := AsMap(store, root)
	require.NoError(t, err)

	var out cbg.CborInt
	found, err := m2.Get(AddrKey(addr), &out)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, cbg.CborInt(42), out)

	other, err := address.NewIDAddress(102)
	require.NoError(t, err)
	found, err = m2.Get(AddrKey(other), &out)
	require.NoError(t, err)
	require.False(t, found)
}

func TestMapDeleteAndForEach(t *testing.T) {
	ctx := context.Background()
	store := WrapStore(ctx, cbor.NewMemCborStore())

	m := MakeEmptyMap(store)

	for i := 100; i < 110; i++ {
		addr, err := address.NewIDAddress(uint64(i))
		require.NoError(t, err)
		val := cbg.CborInt(i)
		require.NoError(t, m.Put(AddrKey(addr), &val))
	}

	victim, err := address.NewIDAddress(105)
	require.NoError(t, err)
	deleted, err := m.Delete(AddrKey(victim))
	require.NoError(t, err)
	require.True(t, deleted)

	count := 0
	var v cbg.CborInt
	require.NoError(t, m.ForEach(&v, func(k string) error {
		count++
		return nil
	}))
	require.Equal(t, 9, count)
}
