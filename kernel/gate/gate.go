// Package gate maintains the descriptor table that binds exception vectors to
// their kernel-resident handlers. The table is populated once at boot, before
// interrupts are enabled, and is read-only for the remainder of execution.
package gate

import (
	"fmt"
	"io"

	"faultline/kernel"
)

// Kind selects the flavor of gate descriptor installed for a vector.
type Kind uint8

const (
	// KindTrap gates are reachable only from kernel context and leave
	// maskable interrupts enabled on entry.
	KindTrap Kind = iota

	// KindInterrupt gates mask further maskable interrupts on entry. Used
	// only for vectors that must not be re-interrupted (NMI).
	KindInterrupt

	// KindSystemTrap gates behave like trap gates but may also be invoked
	// from user mode via a software-triggered instruction.
	KindSystemTrap
)

// String implements fmt.Stringer for Kind.
func (k Kind) String() string {
	switch k {
	case KindInterrupt:
		return "interrupt"
	case KindSystemTrap:
		return "system-trap"
	default:
		return "trap"
	}
}

// Privilege is the minimum privilege level required to invoke a gate.
type Privilege uint8

const (
	// PrivilegeKernel restricts the gate to ring 0.
	PrivilegeKernel Privilege = 0

	// PrivilegeUser makes the gate reachable from ring 3 as well.
	PrivilegeUser Privilege = 3
)

// String implements fmt.Stringer for Privilege.
func (p Privilege) String() string {
	if p == PrivilegeUser {
		return "kernel-and-user"
	}
	return "kernel-only"
}

// Registers contains a snapshot of all register values captured when an
// exception, interrupt or syscall occurs, laid out in trap-frame order.
type Registers struct {
	RAX uint64
	RBX uint64
	RCX uint64
	RDX uint64
	RSI uint64
	RDI uint64
	RBP uint64
	R8  uint64
	R9  uint64
	R10 uint64
	R11 uint64
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64

	// The return frame used by IRETQ
	RIP    uint64
	CS     uint64
	RFlags uint64
	RSP    uint64
	SS     uint64
}

// DumpTo outputs the register contents to w.
func (r *Registers) DumpTo(w io.Writer) {
	fmt.Fprintf(w, "RAX = %016x RBX = %016x\n", r.RAX, r.RBX)
	fmt.Fprintf(w, "RCX = %016x RDX = %016x\n", r.RCX, r.RDX)
	fmt.Fprintf(w, "RSI = %016x RDI = %016x\n", r.RSI, r.RDI)
	fmt.Fprintf(w, "RBP = %016x\n", r.RBP)
	fmt.Fprintf(w, "R8  = %016x R9  = %016x\n", r.R8, r.R9)
	fmt.Fprintf(w, "R10 = %016x R11 = %016x\n", r.R10, r.R11)
	fmt.Fprintf(w, "R12 = %016x R13 = %016x\n", r.R12, r.R13)
	fmt.Fprintf(w, "R14 = %016x R15 = %016x\n", r.R14, r.R15)
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "RIP = %016x CS  = %016x\n", r.RIP, r.CS)
	fmt.Fprintf(w, "RSP = %016x SS  = %016x\n", r.RSP, r.SS)
	fmt.Fprintf(w, "RFL = %016x\n", r.RFlags)
}

// Handler is invoked by the trampoline layer with the register snapshot for
// the faulting context and the hardware-supplied error code. The error code
// is 0 for vectors where the architecture defines none.
type Handler func(regs *Registers, errCode uint64)

// Descriptor binds a vector to a handler entry point, a gate kind and the
// minimum privilege level required to invoke it.
type Descriptor struct {
	Kind      Kind
	Privilege Privilege

	// IST selects an interrupt stack table entry; 0 disables IST use.
	IST uint8

	Handler Handler
}

const numVectors = 256

var (
	idt       [numVectors]Descriptor
	populated [numVectors]bool

	errReservedVector = &kernel.Error{Module: "gate", Message: "attempt to install a descriptor on an architecturally reserved vector"}
)

// reservedVector reports whether the architecture forbids populating vector v.
// Vector 15 and vectors 21-31 are reserved by Intel.
func reservedVector(v uint8) bool {
	return v == 15 || (v >= 21 && v <= 31)
}

// SetTrapGate installs a kernel-only trap gate for the given vector.
func SetTrapGate(vector, ist uint8, handler Handler) {
	install(vector, Descriptor{Kind: KindTrap, Privilege: PrivilegeKernel, IST: ist, Handler: handler})
}

// SetIntrGate installs a kernel-only interrupt gate for the given vector.
// Further maskable interrupts are disabled while the handler runs.
func SetIntrGate(vector, ist uint8, handler Handler) {
	install(vector, Descriptor{Kind: KindInterrupt, Privilege: PrivilegeKernel, IST: ist, Handler: handler})
}

// SetSystemTrapGate installs a trap gate that user-mode code may invoke via a
// software-triggered instruction.
func SetSystemTrapGate(vector, ist uint8, handler Handler) {
	install(vector, Descriptor{Kind: KindSystemTrap, Privilege: PrivilegeUser, IST: ist, Handler: handler})
}

func install(vector uint8, desc Descriptor) {
	// Populating a reserved slot is a boot-time defect, not a runtime
	// condition; fail loudly before interrupts are ever enabled.
	if reservedVector(vector) {
		panic(errReservedVector)
	}

	idt[vector] = desc
	populated[vector] = true
}

// DescriptorFor returns the descriptor installed for vector and whether the
// slot has been populated.
func DescriptorFor(vector uint8) (Descriptor, bool) {
	return idt[vector], populated[vector]
}

// Reset clears every descriptor slot. It exists for tests and for ports that
// rebuild the table on a soft reset; nothing calls it after boot.
func Reset() {
	idt = [numVectors]Descriptor{}
	populated = [numVectors]bool{}
}
