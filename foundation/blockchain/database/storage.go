package database

// Storage interface represents the behavior required to be implemented by any
// package providing support for storing and reading the blocks of the chain.
type Storage interface {
	Write(block Block) error
	GetBlock(index uint64) (Block, error)
	Truncate(height uint64) error
	ForEach() Iterator
	Close() error
}

// Iterator interface represents the behavior required to be implemented by any
// package providing support to iterate over the blocks.
type Iterator interface {
	Next() (Block, error)
	Done() bool
}
