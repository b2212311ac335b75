// Package trap installs the boot-time exception vector table and implements
// the per-vector fault decode and report engine. The hardware boundary (the
// trampoline that captures register state and the privileged control-register
// read) is injected, so the engine is fully observable without raising real
// faults.
package trap

import (
	"faultline/kernel/gate"
	"faultline/kernel/kcon"
)

// Vector numbers for the exceptions this subsystem owns. Vector 15 is
// reserved by Intel; vectors 21-31 are reserved and stay unpopulated;
// vectors 32-255 belong to the device interrupt subsystem.
const (
	VecDivideError        uint8 = 0
	VecDebug              uint8 = 1
	VecNMI                uint8 = 2
	VecBreakpoint         uint8 = 3
	VecOverflow           uint8 = 4
	VecBounds             uint8 = 5
	VecUndefinedOpcode    uint8 = 6
	VecDeviceNotAvailable uint8 = 7
	VecDoubleFault        uint8 = 8
	VecCoprocOverrun      uint8 = 9
	VecInvalidTSS         uint8 = 10
	VecSegmentNotPresent  uint8 = 11
	VecStackSegmentFault  uint8 = 12
	VecGeneralProtection  uint8 = 13
	VecPageFault          uint8 = 14
	VecX87FPUError        uint8 = 16
	VecAlignmentCheck     uint8 = 17
	VecMachineCheck       uint8 = 18
	VecSIMDException      uint8 = 19
	VecVirtualization     uint8 = 20
)

// istDefault is the interrupt stack table entry used for every installed
// vector.
const istDefault = 1

// VectorInfo describes one exception vector: its identity, severity tag,
// gate setup and whether the hardware supplies an error code for it.
type VectorInfo struct {
	Vector     uint8
	Name       string
	Mnemonic   string
	Severity   kcon.Severity
	Kind       gate.Kind
	Privilege  gate.Privilege
	HasErrCode bool
}

// vectors holds the installation matrix for vectors 0-20. Slot 15 is the
// Intel-reserved vector and stays nil.
var vectors = [21]*VectorInfo{
	0:  {0, "divide error", "#DE", kcon.SevError, gate.KindTrap, gate.PrivilegeKernel, false},
	1:  {1, "debug", "#DB", kcon.SevErrorTrap, gate.KindTrap, gate.PrivilegeKernel, false},
	2:  {2, "non-maskable interrupt", "NMI", kcon.SevInt, gate.KindInterrupt, gate.PrivilegeKernel, false},
	3:  {3, "breakpoint", "#BP", kcon.SevTrap, gate.KindSystemTrap, gate.PrivilegeUser, false},
	4:  {4, "overflow", "#OF", kcon.SevTrap, gate.KindSystemTrap, gate.PrivilegeUser, false},
	5:  {5, "bounds check", "#BR", kcon.SevError, gate.KindTrap, gate.PrivilegeKernel, false},
	6:  {6, "undefined opcode", "#UD", kcon.SevError, gate.KindTrap, gate.PrivilegeKernel, false},
	7:  {7, "device not available", "#NM", kcon.SevError, gate.KindTrap, gate.PrivilegeKernel, false},
	8:  {8, "double fault", "#DF", kcon.SevTerminate, gate.KindTrap, gate.PrivilegeKernel, true},
	9:  {9, "coprocessor segment overrun", "-", kcon.SevError, gate.KindTrap, gate.PrivilegeKernel, false},
	10: {10, "invalid TSS", "#TS", kcon.SevError, gate.KindTrap, gate.PrivilegeKernel, true},
	11: {11, "segment not present", "#NP", kcon.SevError, gate.KindTrap, gate.PrivilegeKernel, true},
	12: {12, "stack segment fault", "#SS", kcon.SevError, gate.KindTrap, gate.PrivilegeKernel, true},
	13: {13, "general protection", "#GP", kcon.SevError, gate.KindTrap, gate.PrivilegeKernel, true},
	14: {14, "page fault", "#PF", kcon.SevError, gate.KindTrap, gate.PrivilegeKernel, true},
	16: {16, "x87 FPU error", "#MF", kcon.SevError, gate.KindTrap, gate.PrivilegeKernel, false},
	17: {17, "alignment check", "#AC", kcon.SevError, gate.KindTrap, gate.PrivilegeKernel, true},
	18: {18, "machine check", "#MC", kcon.SevError, gate.KindTrap, gate.PrivilegeKernel, false},
	19: {19, "SIMD exception", "#XM", kcon.SevError, gate.KindTrap, gate.PrivilegeKernel, false},
	20: {20, "virtualization exception", "#VE", kcon.SevError, gate.KindTrap, gate.PrivilegeKernel, false},
}

// Vectors returns the installation matrix for the vectors this subsystem
// owns, in vector order.
func Vectors() []VectorInfo {
	out := make([]VectorInfo, 0, len(vectors)-1)
	for _, info := range vectors {
		if info != nil {
			out = append(out, *info)
		}
	}
	return out
}

// State tracks the continuation policy of an engine. Every handler
// invocation begins in StateReporting; all vectors except general protection
// transition to StateHalted after rendering their diagnostic.
type State uint8

const (
	// StateReporting is the initial state of an engine.
	StateReporting State = iota

	// StateHalted is terminal: the surrounding runtime must never resume
	// the faulted context or schedule it again, and no further vector is
	// processed on it.
	StateHalted
)

// String implements fmt.Stringer for State.
func (s State) String() string {
	if s == StateHalted {
		return "halted"
	}
	return "reporting"
}

// readCR2Fn reads the control register holding the last faulting linear
// address. Swapped by tests and overridden by ports via SetCR2Reader.
var readCR2Fn = func() uint64 { return 0 }

// SetCR2Reader registers the privileged control-register read used by the
// page-fault handler. A bare-metal port installs the real register access
// here; the default source reports address 0.
func SetCR2Reader(read func() uint64) {
	if read == nil {
		read = func() uint64 { return 0 }
	}
	readCR2Fn = read
}

// Engine decodes and reports faults raised on a single execution context.
// Each hardware context owns one engine; all engines share the console sink,
// which is responsible for serializing concurrent writes.
type Engine struct {
	state State
}

// NewEngine returns an engine in the Reporting state.
func NewEngine() *Engine {
	return &Engine{state: StateReporting}
}

// State returns the engine's continuation state.
func (e *Engine) State() State {
	return e.state
}

// Dispatch decodes and reports the fault for vector and applies the
// per-vector continuation policy. The returned state tells the trampoline
// whether the faulted context may be resumed: StateHalted means the context
// must never run again. Dispatching on a halted engine reports nothing.
func (e *Engine) Dispatch(vector uint8, regs *gate.Registers, errCode uint64) State {
	if e.state == StateHalted {
		return StateHalted
	}

	// The faulting linear address must be captured before anything that
	// could itself fault, including diagnostic output; a second fault
	// destroys the register value irrecoverably.
	var faultAddr uint64
	if vector == VecPageFault {
		faultAddr = readCR2Fn()
	}

	info := lookup(vector)
	if info == nil {
		kcon.Tagf(kcon.SevError, "unknown vector (%d), error code %#x, RSP %#016x, RIP %#016x\n",
			vector, errCode, regs.RSP, regs.RIP)
		e.state = StateHalted
		return e.state
	}

	if vector == VecPageFault {
		kcon.Tagf(info.Severity, "%s (%d), error code %#x, RSP %#016x, RIP %#016x, CR2 %#016x\n",
			info.Name, vector, errCode, regs.RSP, regs.RIP, faultAddr)
	} else {
		kcon.Tagf(info.Severity, "%s (%d), error code %#x, RSP %#016x, RIP %#016x\n",
			info.Name, vector, errCode, regs.RSP, regs.RIP)
	}

	switch vector {
	case VecInvalidTSS, VecSegmentNotPresent, VecStackSegmentFault, VecGeneralProtection:
		reportFindings(DecodeSelectorFault(errCode).Findings())
	case VecPageFault:
		reportFindings(DecodePageFault(errCode).Findings())
	}

	// General protection returns control to the faulting context instead
	// of halting; every other vector is terminal. Carried over from the
	// original handler and pinned by tests; see DESIGN.md before changing
	// either way.
	if vector == VecGeneralProtection {
		return e.state
	}

	e.state = StateHalted
	return e.state
}

func reportFindings(findings []string) {
	kcon.Headingf("Information:")
	for _, finding := range findings {
		kcon.Printf("%s\n", finding)
	}
}

func lookup(vector uint8) *VectorInfo {
	if int(vector) >= len(vectors) {
		return nil
	}
	return vectors[vector]
}

// defaultEngine handles faults raised on the boot execution context.
var defaultEngine = NewEngine()

// InstallVectorTable populates gate descriptors for vectors 0 through 20,
// skipping the Intel-reserved vector 15, and routes each one to the boot
// engine. It must run exactly once at boot, before interrupts are enabled
// and before any code that can raise these vectors. Vectors 21-31 stay
// unpopulated and vectors 32-255 are never touched.
func InstallVectorTable() {
	for _, info := range vectors {
		if info == nil {
			continue
		}

		vector := info.Vector
		handler := func(regs *gate.Registers, errCode uint64) {
			defaultEngine.Dispatch(vector, regs, errCode)
		}

		switch info.Kind {
		case gate.KindInterrupt:
			gate.SetIntrGate(vector, istDefault, handler)
		case gate.KindSystemTrap:
			gate.SetSystemTrapGate(vector, istDefault, handler)
		default:
			gate.SetTrapGate(vector, istDefault, handler)
		}
	}
}
