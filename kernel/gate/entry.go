package gate

// Raw gate type nibbles for 64-bit descriptors. An interrupt gate clears IF
// on entry; a trap gate leaves it untouched.
const (
	typeInterruptGate = 0xE
	typeTrapGate      = 0xF

	flagPresent = 1 << 7
)

// Entry is the raw 16-byte descriptor image the processor expects for one
// IDT slot. A boot layer copies these into the table referenced by LIDT.
type Entry struct {
	OffsetLow  uint16
	Selector   uint16
	IST        uint8
	TypeAttr   uint8
	OffsetMid  uint16
	OffsetHigh uint32
	_          uint32
}

// Encode packs the descriptor into its raw entry image. selector is the
// owning code segment and offset the handler entry point. System-trap gates
// encode as trap gates with a user DPL.
func (d Descriptor) Encode(selector uint16, offset uint64) Entry {
	gateType := uint8(typeTrapGate)
	if d.Kind == KindInterrupt {
		gateType = typeInterruptGate
	}

	return Entry{
		OffsetLow:  uint16(offset),
		Selector:   selector,
		IST:        d.IST & 0x7,
		TypeAttr:   flagPresent | uint8(d.Privilege)<<5 | gateType,
		OffsetMid:  uint16(offset >> 16),
		OffsetHigh: uint32(offset >> 32),
	}
}
