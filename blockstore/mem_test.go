package blockstore

import (
	"context"
	"testing"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	ipld "github.com/ipfs/go-ipld-format"
	mh "github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/require"
)

func mkBlock(t *testing.T, data []byte) blocks.Block {
	t.Helper()

	pref := cid.NewPrefixV1(cid.DagCBOR, mh.BLAKE2B_MIN+31)
	c, err := pref.Sum(data)
	require.NoError(t, err)

	blk, err := blocks.NewBlockWithCid(data, c)
	require.NoError(t, err)
	return blk
}

func TestMemGetPut(t *testing.T) {
	ctx := context.Background()
	bs := NewMemory()

	blk := mkBlock(t, []byte("some data"))

	has, err := bs.Has(ctx, blk.Cid())
	require.NoError(t, err)
	require.False(t, has)

	_, err = bs.Get(ctx, blk.Cid())
	require.True(t, ipld.IsNotFound(err))

	require.NoError(t, bs.Put(ctx, blk))

	// put is idempotent for identical bytes.
	require.NoError(t, bs.Put(ctx, blk))

	got, err := bs.Get(ctx, blk.Cid())
	require.NoError(t, err)
	require.Equal(t, blk.RawData(), got.RawData())

	sz, err := bs.GetSize(ctx, blk.Cid())
	require.NoError(t, err)
	require.Equal(t, len(blk.RawData()), sz)
}

func TestMemViewAndDelete(t *testing.T) {
	ctx := context.Background()
	bs := NewMemory()

	blk := mkBlock(t, []byte("view me"))
	require.NoError(t, bs.Put(ctx, blk))

	var viewed []byte
	err := bs.View(ctx, blk.Cid(), func(b []byte) error {
		viewed = append(viewed, b...)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, blk.RawData(), viewed)

	require.NoError(t, bs.DeleteBlock(ctx, blk.Cid()))

	has, err := bs.Has(ctx, blk.Cid())
	require.NoError(t, err)
	require.False(t, has)
}

func TestBufferedIsolatesWrites(t *testing.T) {
	ctx := context.Background()
	base := NewMemory()
	buf := NewBuffered(base)

	blk := mkBlock(t, []byte("staged write"))
	require.NoError(t, buf.Put(ctx, blk))

	// visible through the buffer...
	has, err := buf.Has(ctx, blk.Cid())
	require.NoError(t, err)
	require.True(t, has)

	// ...but not in the base store until copied over.
	has, err = base.Has(ctx, blk.Cid())
	require.NoError(t, err)
	require.False(t, has)
}

func TestIDStoreInlinesIdentity(t *testing.T) {
	ctx := context.Background()
	bs := WrapIDStore(NewMemory())

	data := []byte("inline me")
	pref := cid.Prefix{Version: 1, Codec: cid.Raw, MhType: mh.IDENTITY, MhLength: -1}
	c, err := pref.Sum(data)
	require.NoError(t, err)

	blk, err := blocks.NewBlockWithCid(data, c)
	require.NoError(t, err)

	require.NoError(t, bs.Put(ctx, blk))

	// inline blocks are served from the CID itself.
	got, err := bs.Get(ctx, c)
	require.NoError(t, err)
	require.Equal(t, data, got.RawData())

	has, err := bs.Has(ctx, c)
	require.NoError(t, err)
	require.True(t, has)
}
