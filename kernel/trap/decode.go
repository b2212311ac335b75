package trap

import "fmt"

// DescriptorTable identifies which descriptor table a faulting selector
// indexes.
type DescriptorTable uint8

const (
	// TableGDT is the global descriptor table.
	TableGDT DescriptorTable = iota

	// TableIDT is the interrupt descriptor table.
	TableIDT

	// TableLDT is the current local descriptor table.
	TableLDT
)

// String implements fmt.Stringer for DescriptorTable.
func (dt DescriptorTable) String() string {
	switch dt {
	case TableIDT:
		return "IDT"
	case TableLDT:
		return "LDT"
	default:
		return "GDT"
	}
}

// SelectorFault is the decoded form of the error code shared by the
// invalid-TSS, segment-not-present, stack-segment and general-protection
// vectors.
type SelectorFault struct {
	// External is set when the fault occurred during delivery of an event
	// external to the program rather than one raised by the current
	// instruction.
	External bool

	// Table is the descriptor table the faulting selector indexes. The IDT
	// bit takes precedence over the LDT bit.
	Table DescriptorTable

	// Index is the numeric segment selector index (bits 3-15).
	Index uint16
}

// DecodeSelectorFault decodes a selector-family error code. It is a pure
// function of its argument and performs no I/O.
func DecodeSelectorFault(code uint64) SelectorFault {
	fault := SelectorFault{
		External: code&0x1 != 0,
		Index:    uint16(code & 0xfff8),
	}

	switch {
	case code&0x2 != 0:
		fault.Table = TableIDT
	case code&0x4 != 0:
		fault.Table = TableLDT
	default:
		fault.Table = TableGDT
	}

	return fault
}

// Findings renders the decoded fields as fixed diagnostic messages in report
// order. The external-event line is conditional; the table-origin and
// selector-index lines are always present.
func (f SelectorFault) Findings() []string {
	var out []string

	if f.External {
		out = append(out, "the fault occurred during delivery of an event external to the program")
	}

	switch f.Table {
	case TableIDT:
		out = append(out, "the selector refers to a descriptor in the IDT")
	case TableLDT:
		out = append(out, "the selector refers to a descriptor in the current LDT")
	default:
		out = append(out, "the selector refers to a descriptor in the GDT")
	}

	return append(out, fmt.Sprintf("segment selector index: %#x", f.Index))
}

// PageFault is the decoded form of the page-fault error code.
type PageFault struct {
	// NotPresent is set when the referenced page does not exist. When
	// clear, the fault is a protection violation on a present page.
	NotPresent bool

	// Write is set for faults raised by a write access, clear for reads.
	Write bool

	// User is set when the fault occurred at user privilege level.
	User bool

	// ReservedBit is set when a reserved bit in a paging structure caused
	// the fault.
	ReservedBit bool

	// InstructionFetch is set for faults raised during instruction fetch.
	InstructionFetch bool
}

// DecodePageFault decodes a page-fault error code. It is a pure function of
// its argument and performs no I/O.
func DecodePageFault(code uint64) PageFault {
	return PageFault{
		NotPresent:       code&0x01 == 0,
		Write:            code&0x02 != 0,
		User:             code&0x04 != 0,
		ReservedBit:      code&0x08 != 0,
		InstructionFetch: code&0x10 != 0,
	}
}

// Findings renders the decoded fields as fixed diagnostic messages in report
// order. The not-present, reserved-bit and instruction-fetch lines are
// conditional; the access and privilege lines are always present.
func (f PageFault) Findings() []string {
	var out []string

	if f.NotPresent {
		out = append(out, "page does not exist")
	}

	if f.Write {
		out = append(out, "fault occurred during a write")
	} else {
		out = append(out, "fault occurred during a read")
	}

	if f.User {
		out = append(out, "fault occurred in user level (3)")
	} else {
		out = append(out, "fault occurred in supervisor level (0,1,2)")
	}

	if f.ReservedBit {
		out = append(out, "a reserved bit in a paging structure caused the fault")
	}

	if f.InstructionFetch {
		out = append(out, "fault occurred during instruction fetch")
	}

	return out
}
