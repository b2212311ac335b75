package trap

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"faultline/kernel/gate"
	"faultline/kernel/kcon"
)

func TestDispatchHaltsEveryVectorExceptGeneralProtection(t *testing.T) {
	var buf bytes.Buffer

	kcon.SetOutputSink(&buf)
	defer kcon.SetOutputSink(nil)

	for _, info := range Vectors() {
		t.Run(fmt.Sprint(info.Vector), func(t *testing.T) {
			engine := NewEngine()
			if engine.State() != StateReporting {
				t.Fatal("expected a fresh engine to start in the reporting state")
			}

			state := engine.Dispatch(info.Vector, &gate.Registers{}, 0)

			// General protection is the single vector that hands control
			// back to the faulted context. This asymmetry is deliberate
			// and must not silently regress into "all vectors halt".
			if info.Vector == VecGeneralProtection {
				if state != StateReporting || engine.State() != StateReporting {
					t.Errorf("expected general protection to leave the engine in the reporting state; got %s", state)
				}
				return
			}

			if state != StateHalted || engine.State() != StateHalted {
				t.Errorf("expected vector %d to halt the engine; got %s", info.Vector, state)
			}
		})
	}
}

func TestDispatchOnHaltedEngineReportsNothing(t *testing.T) {
	var buf bytes.Buffer

	kcon.SetOutputSink(&buf)
	defer kcon.SetOutputSink(nil)

	engine := NewEngine()
	engine.Dispatch(VecDivideError, &gate.Registers{}, 0)

	buf.Reset()
	if state := engine.Dispatch(VecBreakpoint, &gate.Registers{}, 0); state != StateHalted {
		t.Errorf("expected the engine to stay halted; got %s", state)
	}

	if buf.Len() != 0 {
		t.Errorf("expected no output from a halted engine; got %q", buf.String())
	}
}

func TestDispatchDiagnosticLine(t *testing.T) {
	var buf bytes.Buffer

	kcon.SetOutputSink(&buf)
	defer kcon.SetOutputSink(nil)

	specs := []struct {
		vector   uint8
		errCode  uint64
		expParts []string
	}{
		{VecDivideError, 0, []string{"[ ERROR ]", "divide error (0)", "error code 0x0"}},
		{VecDebug, 0, []string{"[ ERROR / TRAP ]", "debug (1)"}},
		{VecNMI, 0, []string{"[ INT ]", "non-maskable interrupt (2)"}},
		{VecBreakpoint, 0, []string{"[ TRAP ]", "breakpoint (3)"}},
		{VecDoubleFault, 0, []string{"[ Terminate ]", "double fault (8)"}},
		{VecInvalidTSS, 0x0013, []string{"invalid TSS (10)", "Information:", "in the IDT", "index: 0x10"}},
		{VecSegmentNotPresent, 0x0004, []string{"segment not present (11)", "in the current LDT"}},
		{VecStackSegmentFault, 0x0000, []string{"stack segment fault (12)", "in the GDT"}},
	}

	for _, spec := range specs {
		t.Run(fmt.Sprint(spec.vector), func(t *testing.T) {
			buf.Reset()
			NewEngine().Dispatch(spec.vector, &gate.Registers{RSP: 0x1000, RIP: 0x2000}, spec.errCode)

			got := buf.String()
			for _, part := range spec.expParts {
				if !strings.Contains(got, part) {
					t.Errorf("expected output to contain %q; got:\n%q", part, got)
				}
			}

			if !strings.Contains(got, "RSP 0x0000000000001000") || !strings.Contains(got, "RIP 0x0000000000002000") {
				t.Errorf("expected the register snapshot in the output; got:\n%q", got)
			}
		})
	}
}

func TestPageFaultReport(t *testing.T) {
	var buf bytes.Buffer

	kcon.SetOutputSink(&buf)
	defer kcon.SetOutputSink(nil)

	defer func(orig func() uint64) { readCR2Fn = orig }(readCR2Fn)
	readCR2Fn = func() uint64 { return 0xbadf00d000 }

	NewEngine().Dispatch(VecPageFault, &gate.Registers{}, 0x0006)

	got := buf.String()
	for _, part := range []string{
		"page fault (14)",
		"CR2 0x000000badf00d000",
		"page does not exist",
		"during a write",
		"supervisor level",
	} {
		if !strings.Contains(got, part) {
			t.Errorf("expected output to contain %q; got:\n%q", part, got)
		}
	}
}

// recordingWriter notes the first write so that tests can order it against
// the control-register read.
type recordingWriter struct {
	events *[]string
}

func (w recordingWriter) Write(p []byte) (int, error) {
	if len(*w.events) == 0 || (*w.events)[len(*w.events)-1] != "write" {
		*w.events = append(*w.events, "write")
	}
	return len(p), nil
}

func TestPageFaultReadsCR2BeforeAnyOutput(t *testing.T) {
	var events []string

	kcon.SetOutputSink(recordingWriter{events: &events})
	defer kcon.SetOutputSink(nil)

	defer func(orig func() uint64) { readCR2Fn = orig }(readCR2Fn)
	readCR2Fn = func() uint64 {
		events = append(events, "cr2")
		return 0
	}

	NewEngine().Dispatch(VecPageFault, &gate.Registers{}, 0)

	if len(events) < 2 || events[0] != "cr2" {
		t.Fatalf("expected the CR2 read to happen before any output; got event order %v", events)
	}
}

func TestSetCR2Reader(t *testing.T) {
	defer SetCR2Reader(nil)

	SetCR2Reader(func() uint64 { return 42 })
	if got := readCR2Fn(); got != 42 {
		t.Errorf("expected the injected reader to be used; got %d", got)
	}

	SetCR2Reader(nil)
	if got := readCR2Fn(); got != 0 {
		t.Errorf("expected a nil reader to restore the zero source; got %d", got)
	}
}

func TestDispatchUnknownVectorHalts(t *testing.T) {
	var buf bytes.Buffer

	kcon.SetOutputSink(&buf)
	defer kcon.SetOutputSink(nil)

	engine := NewEngine()
	if state := engine.Dispatch(42, &gate.Registers{}, 0); state != StateHalted {
		t.Errorf("expected an unknown vector to halt the engine; got %s", state)
	}

	if !strings.Contains(buf.String(), "unknown vector (42)") {
		t.Errorf("expected an unknown-vector diagnostic; got %q", buf.String())
	}
}

func TestInstallVectorTable(t *testing.T) {
	defer gate.Reset()
	defer func() { defaultEngine = NewEngine() }()

	var buf bytes.Buffer
	kcon.SetOutputSink(&buf)
	defer kcon.SetOutputSink(nil)

	InstallVectorTable()

	installed := map[uint8]bool{}
	for _, info := range Vectors() {
		installed[info.Vector] = true

		desc, ok := gate.DescriptorFor(info.Vector)
		if !ok {
			t.Errorf("expected vector %d to be populated", info.Vector)
			continue
		}

		if desc.Kind != info.Kind {
			t.Errorf("vector %d: expected gate kind %q; got %q", info.Vector, info.Kind, desc.Kind)
		}

		if desc.Privilege != info.Privilege {
			t.Errorf("vector %d: expected privilege %q; got %q", info.Vector, info.Privilege, desc.Privilege)
		}
	}

	if len(installed) != 20 {
		t.Errorf("expected exactly 20 installed vectors; got %d", len(installed))
	}

	// The reserved slots and the device interrupt range must stay empty.
	for vector := 0; vector < 256; vector++ {
		if installed[uint8(vector)] {
			continue
		}

		if _, ok := gate.DescriptorFor(uint8(vector)); ok {
			t.Errorf("expected vector %d to stay unpopulated", vector)
		}
	}

	// Installed handlers route to the boot engine.
	desc, _ := gate.DescriptorFor(VecOverflow)
	desc.Handler(&gate.Registers{}, 0)

	if defaultEngine.State() != StateHalted {
		t.Error("expected the installed handler to halt the boot engine")
	}

	if !strings.Contains(buf.String(), "overflow (4)") {
		t.Errorf("expected the overflow diagnostic; got %q", buf.String())
	}
}

func TestVectorsMatrix(t *testing.T) {
	infos := Vectors()

	if len(infos) != 20 {
		t.Fatalf("expected 20 vectors; got %d", len(infos))
	}

	withErrCode := map[uint8]bool{8: true, 10: true, 11: true, 12: true, 13: true, 14: true, 17: true}
	for _, info := range infos {
		if info.Vector == 15 || (info.Vector >= 21 && info.Vector <= 31) {
			t.Errorf("reserved vector %d must not appear in the matrix", info.Vector)
		}

		if info.HasErrCode != withErrCode[info.Vector] {
			t.Errorf("vector %d: expected HasErrCode=%t", info.Vector, withErrCode[info.Vector])
		}

		switch info.Vector {
		case VecNMI:
			if info.Kind != gate.KindInterrupt {
				t.Error("expected the NMI gate to be an interrupt gate")
			}
		case VecBreakpoint, VecOverflow:
			if info.Kind != gate.KindSystemTrap || info.Privilege != gate.PrivilegeUser {
				t.Errorf("vector %d: expected a user-reachable system-trap gate", info.Vector)
			}
		default:
			if info.Kind != gate.KindTrap || info.Privilege != gate.PrivilegeKernel {
				t.Errorf("vector %d: expected a kernel-only trap gate", info.Vector)
			}
		}
	}
}
