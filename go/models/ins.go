package models

// Ins is one decoded guest instruction. Instructions are allocated
// individually by the decoders, so an Ins handed to a consumer stays valid
// for the lifetime of the process no matter how the caches grow.
type Ins interface {
	Addr() uint64
	Bytes() []byte
	Mnemonic() string
	OpStr() string
}

// Dis decodes the bytes of a single raw guest instruction at addr into one
// or more Ins. Decoders consume as many leading bytes as they can; a result
// covering fewer bytes than len(mem) means the tail failed to decode.
type Dis interface {
	Dis(mem []byte, addr uint64) ([]Ins, error)
}

// MemAccess is one guest load or store reported by the emulator.
type MemAccess struct {
	IsStore bool
	Addr    uint64
	Size    uint32
}
