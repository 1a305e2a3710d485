package slotengine

import (
	"sync/atomic"
	"unsafe"
)

func u32ptr(mem []byte, off uint32) *uint32 {
	return (*uint32)(unsafe.Pointer(&mem[off]))
}

func u64ptr(mem []byte, off uint32) *uint64 {
	return (*uint64)(unsafe.Pointer(&mem[off]))
}

func loadU32(mem []byte, off uint32) uint32 { return atomic.LoadUint32(u32ptr(mem, off)) }

func storeU32(mem []byte, off uint32, v uint32) { atomic.StoreUint32(u32ptr(mem, off), v) }

func casU32(mem []byte, off uint32, old, new uint32) bool {
	return atomic.CompareAndSwapUint32(u32ptr(mem, off), old, new)
}

func addU32(mem []byte, off uint32, delta int32) uint32 {
	return atomic.AddUint32(u32ptr(mem, off), uint32(delta))
}

func loadU64(mem []byte, off uint32) uint64 { return atomic.LoadUint64(u64ptr(mem, off)) }

func storeU64(mem []byte, off uint32, v uint64) { atomic.StoreUint64(u64ptr(mem, off), v) }

func addU64(mem []byte, off uint32, delta uint64) uint64 {
	return atomic.AddUint64(u64ptr(mem, off), delta)
}
