// Package syscall implements the fixed syscall dispatch table and its
// calling convention: a software trap raises a call with a fixed-register
// id, up to six word arguments, and a single-word return where negative
// values (per the original convention) indicate failure. This core owns a
// subset of the slots; the rest are stubbed as NotSupported, since their
// implementations (TTY, ELF exec, IASW-specific calls) are out of scope.
package syscall

import (
	"github.com/uviespace/flightos-sub001/internal/kerr"
)

// NumSlots is the fixed size of the syscall table.
const NumSlots = 16

// Args is the fixed six-word argument vector passed to every syscall.
type Args [6]uintptr

// Func is one syscall table entry.
type Func func(args Args) (uintptr, error)

// Slot identifies one of the fixed syscall table entries this core owns.
type Slot int

const (
	SlotAlloc Slot = iota
	SlotFree
	SlotGetTime
	SlotNanosleep
	SlotSchedYield
	SlotWatchdog
	SlotSchedProgSeg
	SlotSysctlShowAttr
	SlotSysctlStoreAttr
)

var slotNames = map[Slot]string{
	SlotAlloc:           "alloc",
	SlotFree:            "free",
	SlotGetTime:         "gettime",
	SlotNanosleep:       "nanosleep",
	SlotSchedYield:      "sched_yield",
	SlotWatchdog:        "watchdog",
	SlotSchedProgSeg:    "sched_prog_seg",
	SlotSysctlShowAttr:  "sysctl_show_attr",
	SlotSysctlStoreAttr: "sysctl_store_attr",
}

// Table is the fixed 16-entry syscall dispatch table.
type Table struct {
	fns [NumSlots]Func
}

// NewTable creates a Table with every slot stubbed to return NotSupported,
// explicit out-of-scope external collaborators.
func NewTable() *Table {
	t := &Table{}
	for i := range t.fns {
		t.fns[i] = notSupported
	}
	return t
}

func notSupported(Args) (uintptr, error) {
	return 0, kerr.New(kerr.NotSupported, "syscall slot is not implemented by this core")
}

// Register installs fn at slot, per the original's static syscall table
// initialization.
func (t *Table) Register(slot Slot, fn Func) error {
	if int(slot) < 0 || int(slot) >= NumSlots {
		return kerr.New(kerr.InvalidArgument, "syscall slot %d out of range [0,%d)", slot, NumSlots)
	}
	t.fns[slot] = fn
	return nil
}

// Invoke raises the syscall identified by id with the given arguments: the
// id is in a fixed register, with up to six arguments following it.
func (t *Table) Invoke(id int, args Args) (uintptr, error) {
	if id < 0 || id >= NumSlots {
		return 0, kerr.New(kerr.InvalidArgument, "syscall id %d out of range [0,%d)", id, NumSlots)
	}
	return t.fns[id](args)
}

// Name returns the conventional name for slot, for diagnostics.
func (s Slot) Name() string {
	if n, ok := slotNames[s]; ok {
		return n
	}
	return "unknown"
}
