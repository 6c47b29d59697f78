// Package boltdb implements the ability to read and write blocks to a bolt
// key/value database file.
package boltdb

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/boltdb/bolt"
)

// ErrNotFound is returned when a block index is not stored.
var ErrNotFound = errors.New("block does not exist")

var blocksBucket = []byte("blocks")

// BoltDB represents the serialization implementation for reading and storing
// blocks in a bolt database keyed by the block index. This implements the
// database.Storage interface.
type BoltDB struct {
	db *bolt.DB
}

// New opens or creates the bolt database at the specified path.
func New(dbPath string) (*BoltDB, error) {
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}

	f := func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(blocksBucket)
		return err
	}

	if err := db.Update(f); err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// Close releases the database file.
func (b *BoltDB) Close() error {
	return b.db.Close()
}

// Write stores the block under its index, replacing any existing block.
func (b *BoltDB) Write(block database.Block) error {
	data, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("%w: %s", database.ErrEncoding, err)
	}

	f := func(tx *bolt.Tx) error {
		return tx.Bucket(blocksBucket).Put(key(block.Index), data)
	}

	return b.db.Update(f)
}

// GetBlock returns the block stored at the specified index.
func (b *BoltDB) GetBlock(index uint64) (database.Block, error) {
	var block database.Block

	f := func(tx *bolt.Tx) error {
		data := tx.Bucket(blocksBucket).Get(key(index))
		if data == nil {
			return ErrNotFound
		}

		if err := json.Unmarshal(data, &block); err != nil {
			return fmt.Errorf("%w: block %d: %s", database.ErrEncoding, index, err)
		}

		return nil
	}

	if err := b.db.View(f); err != nil {
		return database.Block{}, err
	}

	return block, nil
}

// Truncate removes every block with an index equal to or greater than the
// specified height.
func (b *BoltDB) Truncate(height uint64) error {
	f := func(tx *bolt.Tx) error {
		bucket := tx.Bucket(blocksBucket)

		var keys [][]byte
		c := bucket.Cursor()
		for k, _ := c.Seek(key(height)); k != nil; k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}

		for _, k := range keys {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}

		return nil
	}

	return b.db.Update(f)
}

// ForEach returns an iterator to walk through all the blocks
// starting with the genesis block.
func (b *BoltDB) ForEach() database.Iterator {
	return &boltIterator{storage: b}
}

// key encodes the index big endian so the keys sort in chain order.
func key(index uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, index)
	return k
}

// =============================================================================

// boltIterator walks the blocks in index order. This implements the
// database Iterator interface.
type boltIterator struct {
	storage *BoltDB
	current uint64
	eoc     bool
}

// Next retrieves the next block from the database.
func (bi *boltIterator) Next() (database.Block, error) {
	if bi.eoc {
		return database.Block{}, errors.New("end of chain")
	}

	block, err := bi.storage.GetBlock(bi.current)
	if errors.Is(err, ErrNotFound) {
		bi.eoc = true
	}
	bi.current++

	return block, err
}

// Done returns the end of chain value.
func (bi *boltIterator) Done() bool {
	return bi.eoc
}
