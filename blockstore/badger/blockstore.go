package badgerbs

import (
	"context"
	"fmt"
	"sync"

	badger "github.com/dgraph-io/badger/v2"
	"github.com/dgraph-io/badger/v2/options"
	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	ipld "github.com/ipfs/go-ipld-format"
	logger "github.com/ipfs/go-log/v2"
	"github.com/multiformats/go-multihash"
	"go.uber.org/zap"

	"github.com/asterchain/aster/blockstore"
)

var (
	// ErrBlockstoreClosed is returned from blockstore operations after
	// the blockstore has been closed.
	ErrBlockstoreClosed = fmt.Errorf("badger blockstore closed")

	log = logger.Logger("badgerbs")
)

// Options embeds the badger options themselves, and augments them with
// blockstore-specific options.
type Options struct {
	badger.Options

	// Prefix is an optional prefix to prepend to keys. Default: "".
	Prefix string
}

func DefaultOptions(path string) Options {
	bopts := badger.DefaultOptions(path)
	bopts.DetectConflicts = false
	bopts.CompactL0OnClose = true
	bopts.Truncate = true
	bopts.ValueLogLoadingMode = options.MemoryMap
	bopts.TableLoadingMode = options.MemoryMap
	bopts.ValueThreshold = 128
	bopts.MaxTableSize = 64 << 20
	return Options{Options: bopts}
}

// badgerLogger is a local wrapper for go-log to make the interface
// compatible with badger.Logger (namely, aliasing Warnf to Warningf)
type badgerLogger struct {
	*zap.SugaredLogger
}

func (b *badgerLogger) Warningf(format string, args ...interface{}) {
	b.Warnf(format, args...)
}

const (
	stateOpen = iota
	stateClosing
	stateClosed
)

// Blockstore is a badger-backed IPLD blockstore. Keys are raw
// multihashes with an optional prefix, values are block payloads.
//
// NOTE: once Close() is called, methods will try their best to return
// ErrBlockstoreClosed. This will guarantee to work after a certain
// timespan, but during a critical number of operations blocked before
// Close() is called, they might not be able to close cleanly.
type Blockstore struct {
	stateLk sync.RWMutex
	state   int

	db *badger.DB

	prefixing bool
	prefix    []byte
	prefixLen int
}

var (
	_ blockstore.Blockstore         = (*Blockstore)(nil)
	_ blockstore.Viewer             = (*Blockstore)(nil)
	_ blockstore.BlockstoreIterator = (*Blockstore)(nil)
	_ blockstore.BlockstoreSize     = (*Blockstore)(nil)
)

// Open creates a new badger-backed blockstore, with the supplied options.
func Open(opts Options) (*Blockstore, error) {
	opts.Logger = &badgerLogger{SugaredLogger: log.Desugar().Sugar()}

	db, err := badger.Open(opts.Options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger blockstore: %w", err)
	}

	bs := &Blockstore{db: db}
	if p := opts.Prefix; p != "" {
		bs.prefixing = true
		bs.prefix = []byte(p)
		bs.prefixLen = len(bs.prefix)
	}

	return bs, nil
}

// Close closes the store. If the store has already been closed, this noops and
// returns an error, even if the first closure resulted in error.
func (b *Blockstore) Close() error {
	b.stateLk.Lock()
	if b.state != stateOpen {
		b.stateLk.Unlock()
		return nil
	}
	b.state = stateClosing
	b.stateLk.Unlock()

	defer func() {
		b.stateLk.Lock()
		b.state = stateClosed
		b.stateLk.Unlock()
	}()

	return b.db.Close()
}

func (b *Blockstore) access() error {
	b.stateLk.RLock()
	defer b.stateLk.RUnlock()

	if b.state != stateOpen {
		return ErrBlockstoreClosed
	}
	return nil
}

// View implements blockstore.Viewer, which leverages zero-copy read-only
// access to values.
func (b *Blockstore) View(ctx context.Context, cid cid.Cid, fn func([]byte) error) error {
	if err := b.access(); err != nil {
		return err
	}

	k, pooled := b.PooledStorageKey(cid)
	defer func() {
		if pooled {
			KeyPool.Put(k)
		}
	}()

	return b.db.View(func(txn *badger.Txn) error {
		switch item, err := txn.Get(k); err {
		case nil:
			return item.Value(fn)
		case badger.ErrKeyNotFound:
			return ipld.ErrNotFound{Cid: cid}
		default:
			return fmt.Errorf("failed to view block from badger blockstore: %w", err)
		}
	})
}

// Has implements Blockstore.Has.
func (b *Blockstore) Has(ctx context.Context, cid cid.Cid) (bool, error) {
	if err := b.access(); err != nil {
		return false, err
	}

	k, pooled := b.PooledStorageKey(cid)
	defer func() {
		if pooled {
			KeyPool.Put(k)
		}
	}()

	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(k)
		return err
	})

	switch err {
	case badger.ErrKeyNotFound:
		return false, nil
	case nil:
		return true, nil
	default:
		return false, fmt.Errorf("failed to check if block exists in badger blockstore: %w", err)
	}
}

// Get implements Blockstore.Get.
func (b *Blockstore) Get(ctx context.Context, cid cid.Cid) (blocks.Block, error) {
	if !cid.Defined() {
		return nil, ipld.ErrNotFound{Cid: cid}
	}

	if err := b.access(); err != nil {
		return nil, err
	}

	k, pooled := b.PooledStorageKey(cid)
	defer func() {
		if pooled {
			KeyPool.Put(k)
		}
	}()

	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		switch item, err := txn.Get(k); err {
		case nil:
			val, err = item.ValueCopy(nil)
			return err
		case badger.ErrKeyNotFound:
			return ipld.ErrNotFound{Cid: cid}
		default:
			return fmt.Errorf("failed to get block from badger blockstore: %w", err)
		}
	})
	if err != nil {
		return nil, err
	}
	return blocks.NewBlockWithCid(val, cid)
}

// GetSize implements Blockstore.GetSize.
func (b *Blockstore) GetSize(ctx context.Context, cid cid.Cid) (int, error) {
	if err := b.access(); err != nil {
		return 0, err
	}

	k, pooled := b.PooledStorageKey(cid)
	defer func() {
		if pooled {
			KeyPool.Put(k)
		}
	}()

	size := -1
	err := b.db.View(func(txn *badger.Txn) error {
		switch item, err := txn.Get(k); err {
		case nil:
			size = int(item.ValueSize())
		case badger.ErrKeyNotFound:
			return ipld.ErrNotFound{Cid: cid}
		default:
			return fmt.Errorf("failed to get block size from badger blockstore: %w", err)
		}
		return nil
	})
	if err != nil {
		size = -1
	}
	return size, err
}

// Put implements Blockstore.Put.
func (b *Blockstore) Put(ctx context.Context, block blocks.Block) error {
	return b.PutMany(ctx, []blocks.Block{block})
}

// PutMany implements Blockstore.PutMany.
func (b *Blockstore) PutMany(ctx context.Context, blks []blocks.Block) error {
	if err := b.access(); err != nil {
		return err
	}

	// toReturn tracks the byte slices to return to the pool, if we're using key
	// prefixing. we can't return each slice to the pool after each Set, because
	// badger holds on to the slice.
	var toReturn [][]byte
	if b.prefixing {
		toReturn = make([][]byte, 0, len(blks))
		defer func() {
			for _, b := range toReturn {
				KeyPool.Put(b)
			}
		}()
	}

	batch := b.db.NewWriteBatch()
	defer batch.Cancel()

	for _, block := range blks {
		k, pooled := b.PooledStorageKey(block.Cid())
		if pooled {
			toReturn = append(toReturn, k)
		}
		if err := batch.Set(k, block.RawData()); err != nil {
			return err
		}
	}

	err := batch.Flush()
	if err != nil {
		return fmt.Errorf("failed to put blocks in badger blockstore: %w", err)
	}
	return nil
}

// DeleteBlock implements Blockstore.DeleteBlock.
func (b *Blockstore) DeleteBlock(ctx context.Context, cid cid.Cid) error {
	if err := b.access(); err != nil {
		return err
	}

	k, pooled := b.PooledStorageKey(cid)
	defer func() {
		if pooled {
			KeyPool.Put(k)
		}
	}()

	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(k)
	})
}

func (b *Blockstore) DeleteMany(ctx context.Context, cids []cid.Cid) error {
	if err := b.access(); err != nil {
		return err
	}

	var toReturn [][]byte
	if b.prefixing {
		toReturn = make([][]byte, 0, len(cids))
		defer func() {
			for _, b := range toReturn {
				KeyPool.Put(b)
			}
		}()
	}

	batch := b.db.NewWriteBatch()
	defer batch.Cancel()

	for _, cid := range cids {
		k, pooled := b.PooledStorageKey(cid)
		if pooled {
			toReturn = append(toReturn, k)
		}
		if err := batch.Delete(k); err != nil {
			return err
		}
	}

	err := batch.Flush()
	if err != nil {
		return fmt.Errorf("failed to delete blocks from badger blockstore: %w", err)
	}
	return nil
}

// AllKeysChan implements Blockstore.AllKeysChan.
func (b *Blockstore) AllKeysChan(ctx context.Context) (<-chan cid.Cid, error) {
	if err := b.access(); err != nil {
		return nil, err
	}

	txn := b.db.NewTransaction(false)
	opts := badger.IteratorOptions{PrefetchSize: 100}
	if b.prefixing {
		opts.Prefix = b.prefix
	}
	iter := txn.NewIterator(opts)

	ch := make(chan cid.Cid)
	go func() {
		defer close(ch)
		defer iter.Close()
		defer txn.Discard()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if ctx.Err() != nil {
				return // context has fired.
			}
			k := iter.Item().Key()
			if b.prefixing {
				k = k[b.prefixLen:]
			}

			mh, err := multihash.Cast(k)
			if err != nil {
				log.Warnf("failed to rehydrate multihash from badger key: %s", err)
				continue
			}

			select {
			case ch <- cid.NewCidV1(cid.Raw, mh):
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

// ForEachKey runs a callback for every key in the store, without
// spinning up a goroutine or channel.
func (b *Blockstore) ForEachKey(f func(cid.Cid) error) error {
	if err := b.access(); err != nil {
		return err
	}

	txn := b.db.NewTransaction(false)
	defer txn.Discard()

	opts := badger.IteratorOptions{PrefetchSize: 100}
	if b.prefixing {
		opts.Prefix = b.prefix
	}

	iter := txn.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		k := iter.Item().Key()
		if b.prefixing {
			k = k[b.prefixLen:]
		}

		mh, err := multihash.Cast(k)
		if err != nil {
			log.Warnf("failed to rehydrate multihash from badger key: %s", err)
			continue
		}

		if err := f(cid.NewCidV1(cid.Raw, mh)); err != nil {
			return err
		}
	}

	return nil
}

// HashOnRead implements Blockstore.HashOnRead. It is not supported by this
// blockstore.
func (b *Blockstore) HashOnRead(_ bool) {
	log.Warnf("called HashOnRead on badger blockstore; function not supported; ignoring")
}

// Flush syncs the value log to disk.
func (b *Blockstore) Flush(ctx context.Context) error {
	if err := b.access(); err != nil {
		return err
	}
	return b.db.Sync()
}

// Size returns the aggregate size of the blockstore.
func (b *Blockstore) Size() (int64, error) {
	if err := b.access(); err != nil {
		return 0, err
	}
	lsm, vlog := b.db.Size()
	return lsm + vlog, nil
}

// PooledStorageKey returns the storage key under which this CID is stored.
//
// The key is: prefix + cid.Hash().
//
// This method may return pooled byte slice, which MUST be returned to the
// KeyPool if pooled=true, or a leak will occur.
func (b *Blockstore) PooledStorageKey(cid cid.Cid) (key []byte, pooled bool) {
	h := cid.Hash()
	if !b.prefixing { // optimize for branch prediction.
		return h, false // does not escape, and not pooled.
	}

	k := KeyPool.Get().([]byte)[:0]
	k = append(k, b.prefix...)
	k = append(k, h...)
	return k, true // slice is pooled.
}

// KeyPool is a pool of key buffers shared by prefixed stores.
var KeyPool = &sync.Pool{
	New: func() interface{} { return make([]byte, 0, 64) },
}
