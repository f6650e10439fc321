package ktable

// Handle is the small integer external callers hold (spec.md GLOSSARY).
type Handle int32

// Predefined system-object handles (spec.md §2).
const (
	SystemDeviceHandle Handle = 1
	DefaultUserHandle  Handle = 2
	firstDynamicHandle Handle = 3
)

// tapsForBits returns the XOR-feedback tap mask for an n-bit maximal-length
// LFSR, n in [9,20] — the precomputed primitive-polynomial table spec.md
// §4.1 calls for, upgraded as the object table doubles.
func tapsForBits(n uint) uint32 {
	switch n {
	case 9:
		return 0x110 // bits 9,5
	case 10:
		return 0x240 // bits 10,7
	case 11:
		return 0x500 // bits 11,9
	case 12:
		return 0xe08 // bits 12,11,10,4
	case 13:
		return 0x1c80 // bits 13,12,11,8
	case 14:
		return 0x3802 // bits 14,13,12,2
	case 15:
		return 0x6000 // bits 15,14
	case 16:
		return 0xd008 // bits 16,15,13,4
	case 17:
		return 0x12000 // bits 17,14
	case 18:
		return 0x20400 // bits 18,11
	case 19:
		return 0x72000 // bits 19,18,17,14
	default:
		return 0x90000 // 20 bits: bits 20,17
	}
}

// lfsr is a Fibonacci LFSR over [1, 2^bits - 2] used to scatter handle
// reuse across the table so a freshly-destroyed handle is not immediately
// re-issued (spec.md §4.1).
type lfsr struct {
	bits  uint
	mask  uint32
	taps  uint32
	state uint32
}

func newLFSR(tableSize int) *lfsr {
	bits := uint(9)
	for (1 << bits) < tableSize*2 {
		bits++
	}
	if bits > 20 {
		bits = 20
	}
	return &lfsr{
		bits:  bits,
		mask:  (1 << bits) - 1,
		taps:  tapsForBits(bits),
		state: 1,
	}
}

// next steps the LFSR and returns the new state, guaranteed nonzero and
// guaranteed to visit every value in [1, 2^bits-1] exactly once before
// repeating.
func (l *lfsr) next() uint32 {
	lsb := l.state & 1
	l.state >>= 1
	if lsb == 1 {
		l.state ^= l.taps
	}
	l.state &= l.mask
	if l.state == 0 {
		l.state = 1
	}
	return l.state
}

// grow rebuilds the LFSR for a doubled table size, upgrading bits/taps per
// spec.md §4.1 ("the LFSR mask doubles with it, and the polynomial is
// upgraded").
func (l *lfsr) grow(newTableSize int) {
	*l = *newLFSR(newTableSize)
}
