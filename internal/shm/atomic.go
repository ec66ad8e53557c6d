package shm

import (
	"sync/atomic"
	"unsafe"
)

// AtomicLoadUint64 loads a uint64 from shared memory atomically.
func AtomicLoadUint64(addr unsafe.Pointer) uint64 {
	return atomic.LoadUint64((*uint64)(addr))
}

// AtomicStoreUint64 stores a uint64 to shared memory atomically.
func AtomicStoreUint64(addr unsafe.Pointer, val uint64) {
	atomic.StoreUint64((*uint64)(addr), val)
}

// AtomicSwapUint64 stores val and returns the previous value.
func AtomicSwapUint64(addr unsafe.Pointer, val uint64) uint64 {
	return atomic.SwapUint64((*uint64)(addr), val)
}

// AtomicCompareAndSwapUint64 atomically compares and swaps a uint64 in shared memory.
func AtomicCompareAndSwapUint64(addr unsafe.Pointer, old, new uint64) bool {
	return atomic.CompareAndSwapUint64((*uint64)(addr), old, new)
}

// Word returns the address of the 8-byte word at off in the region.
// off must be a multiple of 8; mappings are page aligned.
func (r *MappedRegion) Word(off int) unsafe.Pointer {
	return unsafe.Pointer(&r.Addr[off])
}
