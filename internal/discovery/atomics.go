package discovery

import (
	"sync/atomic"
	"unsafe"
)

// Go's sync/atomic provides sequentially consistent operations, a strict
// superset of the acquire/release ordering spec §6 asks for; these wrappers
// just name the two sides of the discovery segment's single-writer,
// many-reader contract.
func storeU32Release(mem []byte, off uint32, v uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&mem[off])), v)
}

func loadU32Acquire(mem []byte, off uint32) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&mem[off])))
}
