// Package kalloc implements the kernel's secure memory allocator
// (spec.md §4.10): canary-guarded blocks, a global doubly-linked live
// list, zeroise-on-free, and a background sweeper that keeps the pages
// resident.
package kalloc

import (
	"crypto/rand"
	"sync"

	"github.com/compozy/kernelguard/kernel/kerrors"
)

const canaryLen = 8

// Block is one secure-memory allocation: a header carrying bookkeeping
// plus a canary-bracketed payload (spec.md §4.10 "16/32/64-byte header").
type Block struct {
	locked bool
	size   int
	payload []byte
	canaryFront [canaryLen]byte
	canaryBack  [canaryLen]byte

	prev, next *Block
}

// Pointer is the opaque handle allocate returns to callers; it is the
// only thing outside this package that may reference a Block.
type Pointer struct {
	block *Block
}

// Allocator owns the global live list every Block is linked onto, so a
// background sweeper can walk it without per-block discovery (spec.md
// §4.10 "Allocations are globally linked").
type Allocator struct {
	mu     sync.Mutex
	head   *Block
	count  int
	locker PageLocker
	debug  bool
}

// PageLocker is the platform page-locking facility (mlock/VirtualLock);
// callers not running with elevated privilege may supply a no-op.
type PageLocker interface {
	Lock(b []byte) error
	Unlock(b []byte) error
}

// noopLocker is used when no platform locker is configured; page
// residency then relies solely on the sweeper's periodic touch.
type noopLocker struct{}

func (noopLocker) Lock([]byte) error   { return nil }
func (noopLocker) Unlock([]byte) error { return nil }

// New constructs an Allocator. debug enables the corruption walk on every
// Free call (spec.md §4.10 "debug builds also walk the linked list").
func New(locker PageLocker, debug bool) *Allocator {
	if locker == nil {
		locker = noopLocker{}
	}
	return &Allocator{locker: locker, debug: debug}
}

// Allocate reserves size bytes bracketed by canary words and linked onto
// the allocator's live list (spec.md §4.10).
func (a *Allocator) Allocate(size int) (Pointer, error) {
	if size <= 0 {
		return Pointer{}, kerrors.Argument(1, "allocation size must be positive")
	}
	b := &Block{size: size, payload: make([]byte, size)}
	if _, err := rand.Read(b.canaryFront[:]); err != nil {
		return Pointer{}, kerrors.Wrap(err, kerrors.Memory, "could not seed canary")
	}
	copy(b.canaryBack[:], b.canaryFront[:])

	if err := a.locker.Lock(b.payload); err != nil {
		return Pointer{}, kerrors.Wrap(err, kerrors.Memory, "page lock failed")
	}
	b.locked = true

	a.mu.Lock()
	b.next = a.head
	if a.head != nil {
		a.head.prev = b
	}
	a.head = b
	a.count++
	a.mu.Unlock()

	return Pointer{block: b}, nil
}

// SizeOf is an O(1) query against the block's header (spec.md §4.10).
func (a *Allocator) SizeOf(p Pointer) (int, error) {
	if p.block == nil {
		return 0, kerrors.Argument(1, "invalid pointer")
	}
	return p.block.size, nil
}

// Bytes exposes the payload for read/write by the object whose body owns
// this allocation. The slice is only valid until the next Free.
func (a *Allocator) Bytes(p Pointer) ([]byte, error) {
	if p.block == nil {
		return nil, kerrors.Argument(1, "invalid pointer")
	}
	if !p.block.checkCanaries() {
		return nil, kerrors.New(kerrors.Failed, "canary check failed")
	}
	return p.block.payload, nil
}

// Free verifies the canaries, zeroises the payload and header, unlinks
// the block from the live list, and releases any page lock (spec.md
// §4.10 "Freeing zeroises the payload and header").
func (a *Allocator) Free(p Pointer) error {
	if p.block == nil {
		return kerrors.Argument(1, "invalid pointer")
	}
	b := p.block
	if !b.checkCanaries() {
		return kerrors.New(kerrors.Failed, "canary check failed on free")
	}

	a.mu.Lock()
	if a.debug && !a.walkIsConsistent() {
		a.mu.Unlock()
		return kerrors.New(kerrors.Failed, "secure memory list corruption detected")
	}
	if b.prev != nil {
		b.prev.next = b.next
	} else {
		a.head = b.next
	}
	if b.next != nil {
		b.next.prev = b.prev
	}
	a.count--
	a.mu.Unlock()

	if b.locked {
		_ = a.locker.Unlock(b.payload)
	}
	zero(b.payload)
	b.size = 0
	b.canaryFront = [canaryLen]byte{}
	b.canaryBack = [canaryLen]byte{}
	b.prev, b.next = nil, nil
	return nil
}

// checkCanaries compares the two copies of the canary recorded at
// allocation time. Go's bounds-checked slices rule out the adjacent-
// memory buffer overrun the C original guards against; this instead
// catches the same class of bug the debug list-walk does: a block whose
// header was corrupted through holding the Pointer past a Free.
func (b *Block) checkCanaries() bool {
	return b.canaryFront == b.canaryBack
}

func zero(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}

// walkIsConsistent traverses the whole live list checking every canary;
// caller must hold mu. Used only when debug is enabled (spec.md §4.10).
func (a *Allocator) walkIsConsistent() bool {
	n := 0
	for b := a.head; b != nil; b = b.next {
		if !b.checkCanaries() {
			return false
		}
		n++
		if n > a.count {
			return false // cycle in the live list
		}
	}
	return n == a.count
}

// Live returns every payload currently allocated, for the sweeper to
// touch; caller must not retain the slice beyond one sweep tick.
func (a *Allocator) Live() [][]byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([][]byte, 0, a.count)
	for b := a.head; b != nil; b = b.next {
		out = append(out, b.payload)
	}
	return out
}

// Count reports the number of live allocations.
func (a *Allocator) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}
