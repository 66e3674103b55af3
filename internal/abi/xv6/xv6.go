// Package xv6 is an experimental compatibility ABI: it translates
// xv6-riscv64's syscall numbering onto the same internal/task primitives
// internal/abi/native uses, demonstrating that a second, unrelated ABI can
// share the kernel's actual process/VFS objects rather than needing its
// own parallel implementation.
package xv6

import (
	"debug/elf"

	"github.com/petitstrawberry/Scarlet/internal/abi"
	"github.com/petitstrawberry/Scarlet/internal/arch"
	"github.com/petitstrawberry/Scarlet/internal/mm"
)

// Name is this ABI's registry key.
const Name = "xv6-riscv64"

// Syscall numbers, fixed by the upstream xv6-riscv kernel's syscall.h —
// this module does not own these assignments the way native.go owns its
// own.
const (
	SysFork   = 1
	SysExit   = 2
	SysWait   = 3
	SysPipe   = 4
	SysRead   = 5
	SysKill   = 6
	SysExec   = 7
	SysFstat  = 8
	SysChdir  = 9
	SysDup    = 10
	SysGetpid = 11
	SysSbrk   = 12
	SysSleep  = 13
	SysUptime = 14
	SysOpen   = 15
	SysWrite  = 16
	SysMknod  = 17
	SysUnlink = 18
	SysLink   = 19
	SysMkdir  = 20
	SysClose  = 21
)

// xv6AbiVersionMarker is the e_ident[EI_ABIVERSION] value this module
// treats as "this ELF targets xv6-riscv64 on Scarlet" — xv6's own
// toolchain leaves ABIVERSION at 0 like most ELF binaries, so a real xv6
// binary is indistinguishable from a native Scarlet one by OSABI alone.
// Since Scarlet never runs an unmodified upstream xv6 binary (there is no
// upstream relationship, only a syscall-numbering compatibility intent),
// this module instead requires binaries built for it to set ABIVERSION to
// a reserved marker byte. See DESIGN.md.
const xv6AbiVersionMarker = 0x78 // ASCII 'x'

// ABI is one task's xv6-compatibility instance. Like native.ABI, it holds
// no per-task state of its own beyond the shared registry and arena
// references sysExec needs to resolve and load whatever the exec'd file
// turns out to be (another xv6 binary, or a native one).
type ABI struct {
	registry *abi.Registry
	arena    *mm.Arena
}

// Factory returns an abi.Factory producing xv6 ABI instances bound to the
// given shared registry and physical memory arena.
func Factory(registry *abi.Registry, arena *mm.Arena) abi.Factory {
	return func() abi.Instance { return &ABI{registry: registry, arena: arena} }
}

// Detect recognizes an ELF binary carrying the xv6 ABI-version marker.
func Detect(header []byte) bool {
	if len(header) <= elf.EI_ABIVERSION {
		return false
	}
	return header[elf.EI_ABIVERSION] == xv6AbiVersionMarker
}

// CloneBoxed returns an independent instance sharing the same registry
// and arena references.
func (a *ABI) CloneBoxed() abi.Instance {
	return &ABI{registry: a.registry, arena: a.arena}
}

// HandleSyscall dispatches tf.SyscallNumber() (a7) through xv6's own
// syscall table onto internal/task's primitives.
func (a *ABI) HandleSyscall(ctx any, tf *arch.TrapFrame) error {
	h, ok := table[tf.SyscallNumber()]
	if !ok {
		return fail(tf, unsupportedSyscall(tf.SyscallNumber()))
	}
	return h(a, ctx, tf)
}
