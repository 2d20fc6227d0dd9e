package models

// Arch describes a guest architecture the broker can ingest a trace for.
//
// Targets that switch instruction sets mid-stream (ARM<->Thumb) carry two
// decoders: Dis handles blocks whose entry PC has the low bit clear, and
// ThumbDis handles blocks whose entry PC has it set. Everything else leaves
// ThumbDis nil.
type Arch struct {
	Name string
	Bits int

	Dis      Dis
	ThumbDis Dis

	// ARM-family targets encode the Thumb state in the LSB of reported
	// addresses; it has to be stripped before address arithmetic.
	ClearPCLSB bool
}

// PickDis selects the decoder for a block entered at pc.
func (a *Arch) PickDis(pc uint64) Dis {
	if a.ThumbDis != nil && pc&1 == 1 {
		return a.ThumbDis
	}
	return a.Dis
}
