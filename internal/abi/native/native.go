// Package native is Scarlet's own ABI: the numerical syscall table the
// dispatcher falls back to outside any registered ABI zone. Syscall
// numbers 90 and 91 are reserved for register_abi_zone/unregister_abi_zone
// (spec.md section 4.4); all other assignments are this module's own.
package native

import (
	"debug/elf"

	"github.com/petitstrawberry/Scarlet/internal/abi"
	"github.com/petitstrawberry/Scarlet/internal/arch"
	"github.com/petitstrawberry/Scarlet/internal/kernerr"
	"github.com/petitstrawberry/Scarlet/internal/mm"
)

// Name is this ABI's registry key.
const Name = "scarlet"

// Syscall numbers. 90/91 are fixed by spec.md section 4.4; the rest are
// this module's own stable numbering.
const (
	SysFork = 1
	SysExec = 2
	SysWait = 3
	SysExit = 4

	SysGetpid  = 5
	SysGetppid = 6

	SysSbrk   = 7
	SysMmap   = 8
	SysMunmap = 9

	SysOpen  = 10
	SysClose = 11
	SysRead  = 12
	SysWrite = 13
	SysLseek = 14
	SysDup   = 15
	SysPipe  = 16

	SysMount   = 17
	SysUmount  = 18
	SysChdir   = 19
	SysGetcwd  = 20
	SysSetenv  = 21
	SysGetenv  = 22

	SysRegisterAbiZone   = 90
	SysUnregisterAbiZone = 91

	SysKlogDump = 92
)

// ABI is one task's native-ABI instance. It holds no per-task state of
// its own beyond the references every native syscall needs to reach
// shared kernel services; the task it is acting on arrives as the
// HandleSyscall ctx parameter.
type ABI struct {
	registry *abi.Registry
	arena    *mm.Arena
}

// Factory returns an abi.Factory producing native ABI instances bound to
// the given shared registry and physical memory arena.
func Factory(registry *abi.Registry, arena *mm.Arena) abi.Factory {
	return func() abi.Instance {
		return &ABI{registry: registry, arena: arena}
	}
}

// Detect recognizes any ELF binary with no explicit OS/ABI marking as a
// native Scarlet binary — the OSABI byte a Scarlet-targeting toolchain
// would leave unset, since there is no registered OSABI value for it.
func Detect(header []byte) bool {
	if len(header) < elf.EI_OSABI+1 {
		return false
	}
	if string(header[:4]) != "\x7fELF" {
		return false
	}
	return elf.OSABI(header[elf.EI_OSABI]) == elf.ELFOSABI_NONE
}

// CloneBoxed returns an independent instance sharing the same registry
// and arena references (those are shared kernel services, not per-task
// state).
func (a *ABI) CloneBoxed() abi.Instance {
	return &ABI{registry: a.registry, arena: a.arena}
}

// HandleSyscall dispatches tf.SyscallNumber() (a7) to this module's
// syscall table, operating on ctx (expected to be a *task.Task — see
// internal/abi's Instance doc comment for why this is typed any).
func (a *ABI) HandleSyscall(ctx any, tf *arch.TrapFrame) error {
	h, ok := table[tf.SyscallNumber()]
	if !ok {
		tf.SetReturnErrno(kernerr.Errno(kernerr.New(kernerr.NotSupported, "unknown native syscall %d", tf.SyscallNumber())))
		return nil
	}
	return h(a, ctx, tf)
}
