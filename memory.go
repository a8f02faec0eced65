package kago

import (
	"math"

	"github.com/tetratelabs/wazero/api"
)

// memory is bounds-checked access to the engine module's linear memory.
// Offsets are engine-heap pointers; a false return means the engine
// handed us a pointer outside its own memory.
type memory struct {
	mem api.Memory
}

func newMemory(mem api.Memory) *memory {
	return &memory{mem: mem}
}

func (m *memory) readBytes(offset MemoryPtr, n uint32) ([]byte, bool) {
	return m.mem.Read(uint32(offset), n)
}

func (m *memory) writeBytes(offset MemoryPtr, data []byte) bool {
	return m.mem.Write(uint32(offset), data)
}

func (m *memory) readUint32(offset MemoryPtr) (uint32, bool) {
	return m.mem.ReadUint32Le(uint32(offset))
}

func (m *memory) writeUint32(offset MemoryPtr, val uint32) bool {
	return m.mem.WriteUint32Le(uint32(offset), val)
}

func (m *memory) readUint64(offset MemoryPtr) (uint64, bool) {
	return m.mem.ReadUint64Le(uint32(offset))
}

func (m *memory) readFloat64(offset MemoryPtr) (float64, bool) {
	bits, ok := m.mem.ReadUint64Le(uint32(offset))
	return math.Float64frombits(bits), ok
}

// readString reads n bytes at offset as UTF-8 text. The engine reports
// string lengths explicitly, so no terminator scan is needed.
func (m *memory) readString(offset MemoryPtr, n uint32) (string, bool) {
	if n == 0 {
		return "", true
	}
	data, ok := m.mem.Read(uint32(offset), n)
	if !ok {
		return "", false
	}
	return string(data), true
}

// writeCString writes s plus a NUL terminator at offset. The caller
// allocates len(s)+1 bytes.
func (m *memory) writeCString(offset MemoryPtr, s string) bool {
	return m.mem.Write(uint32(offset), append([]byte(s), 0))
}
