package ktable

import (
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/compozy/kernelguard/kernel/kerrors"
	"github.com/compozy/kernelguard/pkg/logger"
)

// Table is the fixed-initial, geometrically-expanding object table
// (spec.md §2, §4.1). Every read or write takes Mu, the only process-wide
// mutable shared structure (spec.md §5).
type Table struct {
	Mu sync.Mutex

	entries []*Object
	maxSize int
	lfsr    *lfsr
	nextSeq int64 // strictly increasing uniqueID generator

	// bodyCache correlates handles to object bodies for getObject/
	// releaseObject, avoiding a second table scan for the narrow set of
	// operations that need two-object simultaneous access (spec.md §6).
	bodyCache *lru.Cache[Handle, any]

	log logger.Logger
}

// New constructs a table with the given initial size and hard cap.
func New(initSize, maxSize int, log logger.Logger) *Table {
	if log == nil {
		log = logger.NewLogger(nil)
	}
	cache, _ := lru.New[Handle, any](256)
	return &Table{
		entries:   make([]*Object, initSize),
		maxSize:   maxSize,
		lfsr:      newLFSR(initSize),
		bodyCache: cache,
		log:       log,
	}
}

// slotFor returns the table index for a handle, assuming handles are
// assigned 1:1 with slots modulo table length.
func (t *Table) slotFor(h Handle) int {
	return int(h) % len(t.entries)
}

// grow doubles the table length up to maxSize, re-slots every live entry
// at its handle modulo the new length, and upgrades the LFSR
// (spec.md §4.1). Caller must hold Mu.
func (t *Table) grow() error {
	newSize := len(t.entries) * 2
	if newSize > t.maxSize {
		return kerrors.New(kerrors.Overflow, "object table has reached its hard cap")
	}
	grown := make([]*Object, newSize)
	for _, obj := range t.entries {
		if obj != nil {
			grown[int(obj.Handle)%newSize] = obj
		}
	}
	t.entries = grown
	t.lfsr.grow(newSize)
	t.log.Debug("object table grown", "new_size", newSize)
	return nil
}

// Alloc installs a not-inited descriptor and returns its handle. reserved
// is used only for the two system-object handles (spec.md §2), which are
// allocated sequentially rather than via the LFSR.
func (t *Table) Alloc(obj *Object, reserved Handle) (Handle, error) {
	t.Mu.Lock()
	defer t.Mu.Unlock()

	var h Handle
	if reserved != 0 {
		h = reserved
		if int(h) >= len(t.entries) {
			if err := t.ensureRoom(int(h) + 1); err != nil {
				return 0, err
			}
		}
	} else {
		found := false
		for range t.entries {
			candidate := Handle(t.lfsr.next())
			if candidate < firstDynamicHandle {
				continue
			}
			slot := t.slotFor(candidate)
			if slot < len(t.entries) && t.entries[slot] == nil {
				h = candidate
				found = true
				break
			}
		}
		if !found {
			if err := t.grow(); err != nil {
				return 0, err
			}
			return t.allocAfterGrow(obj)
		}
	}

	t.nextSeq++
	obj.Handle = h
	obj.UniqueID = t.nextSeq
	obj.Flags |= FlagNotInited
	t.entries[t.slotFor(h)] = obj
	return h, nil
}

func (t *Table) ensureRoom(n int) error {
	for len(t.entries) < n {
		if err := t.grow(); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) allocAfterGrow(obj *Object) (Handle, error) {
	for range t.entries {
		candidate := Handle(t.lfsr.next())
		if candidate < firstDynamicHandle {
			continue
		}
		slot := t.slotFor(candidate)
		if t.entries[slot] == nil {
			t.nextSeq++
			obj.Handle = candidate
			obj.UniqueID = t.nextSeq
			obj.Flags |= FlagNotInited
			t.entries[slot] = obj
			return candidate, nil
		}
	}
	return 0, kerrors.New(kerrors.Overflow, "no free object-table slot after growth")
}

// Lookup resolves a handle to its descriptor. Returns argument-error on an
// unknown or stale handle.
func (t *Table) Lookup(h Handle) (*Object, error) {
	t.Mu.Lock()
	defer t.Mu.Unlock()
	return t.lookupLocked(h)
}

// LookupNoLock is Lookup for callers that already hold Mu (e.g. the
// dispatcher mid-send). Calling it without holding Mu is a race.
func (t *Table) LookupNoLock(h Handle) (*Object, error) {
	return t.lookupLocked(h)
}

func (t *Table) lookupLocked(h Handle) (*Object, error) {
	if h < 1 {
		return nil, kerrors.Argument(1, "invalid handle")
	}
	obj := t.entries[t.slotFor(h)]
	if obj == nil || obj.Handle != h {
		return nil, kerrors.Argument(1, "invalid handle")
	}
	return obj, nil
}

// Free zeroes a descriptor's slot after destruction (spec.md §3 Lifecycle:
// "zero the descriptor").
func (t *Table) Free(h Handle) {
	t.Mu.Lock()
	defer t.Mu.Unlock()
	slot := t.slotFor(h)
	if slot >= 0 && slot < len(t.entries) && t.entries[slot] != nil && t.entries[slot].Handle == h {
		t.entries[slot] = nil
	}
	t.bodyCache.Remove(h)
}

// NextUniqueID reports the generation counter without allocating, used by
// composition resumption (spec.md §4.4) to detect handle reuse across a
// yield.
func (t *Table) NextUniqueID() int64 {
	return atomic.LoadInt64(&t.nextSeq)
}

// CacheBody stores a handle->body correlation for getObject/releaseObject.
func (t *Table) CacheBody(h Handle, body any) {
	t.bodyCache.Add(h, body)
}

// CachedBody retrieves a previously cached body, if any.
func (t *Table) CachedBody(h Handle) (any, bool) {
	return t.bodyCache.Get(h)
}

// Range calls fn for every live object, holding Mu for the duration. Used
// by shutdown's depth-ordered destruction sweep (spec.md §5).
func (t *Table) Range(fn func(*Object) bool) {
	t.Mu.Lock()
	defer t.Mu.Unlock()
	for _, obj := range t.entries {
		if obj == nil {
			continue
		}
		if !fn(obj) {
			return
		}
	}
}
