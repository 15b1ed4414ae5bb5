// Package arena provides a call-scoped allocator for temporary
// buffers.
//
// An Arena hands out zeroed [Block]s and remembers every one of
// them, so that all memory produced during a single operation can be
// discarded in one step with [Arena.Release], regardless of how the
// operation ended.
//
// An Arena is not safe for concurrent use. Each method call through
// the bus uses its own Arena.
package arena

import (
	"github.com/creachadair/mds/queue"
)

// A Block is a buffer owned by an [Arena].
//
// Data is only valid until the owning Arena is released.
type Block struct {
	// Size is the usable size of the block, as requested from
	// [Arena.Alloc].
	Size int
	// Data is the block's storage. len(Data) == Size.
	Data []byte
}

// Bytes returns the block's contents.
func (b *Block) Bytes() []byte { return b.Data }

// An Arena tracks the blocks allocated during one operation.
//
// The zero value is ready to use.
type Arena struct {
	blocks *queue.Queue[*Block]
	bytes  int
}

// New returns an empty Arena.
func New() *Arena {
	return &Arena{blocks: queue.New[*Block]()}
}

// Alloc returns a new zeroed block of the given size, and records it
// in the arena. Alloc panics if size is negative.
func (a *Arena) Alloc(size int) *Block {
	if size < 0 {
		panic("arena: negative allocation size")
	}
	if a.blocks == nil {
		a.blocks = queue.New[*Block]()
	}
	b := &Block{
		Size: size,
		Data: make([]byte, size),
	}
	a.blocks.Add(b)
	a.bytes += size
	return b
}

// Len returns the number of live blocks in the arena.
func (a *Arena) Len() int {
	if a.blocks == nil {
		return 0
	}
	return a.blocks.Len()
}

// Bytes returns the total size of the live blocks in the arena.
func (a *Arena) Bytes() int { return a.bytes }

// Release discards every block in the arena. Blocks are zeroed and
// detached from their storage, so that stale references observe an
// empty block rather than reused memory.
//
// Release may be called any number of times. The arena may be reused
// after Release.
func (a *Arena) Release() {
	if a.blocks == nil {
		return
	}
	for b, ok := a.blocks.Pop(); ok; b, ok = a.blocks.Pop() {
		clear(b.Data)
		b.Data = nil
		b.Size = 0
	}
	a.bytes = 0
}
