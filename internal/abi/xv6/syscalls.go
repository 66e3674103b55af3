package xv6

import (
	"path"

	"github.com/petitstrawberry/Scarlet/internal/arch"
	"github.com/petitstrawberry/Scarlet/internal/kernerr"
	"github.com/petitstrawberry/Scarlet/internal/mm"
	"github.com/petitstrawberry/Scarlet/internal/task"
	"github.com/petitstrawberry/Scarlet/internal/vfs"
)

type handler func(a *ABI, ctx any, tf *arch.TrapFrame) error

// table covers the subset of xv6's syscalls this module models: process
// lifecycle, file descriptors, and the heap. kill/sleep/uptime/mknod/
// link/mkdir/fstat have no equivalent kernel object in internal/task or
// internal/vfs (signals, timers, device-node creation, hard links, and
// stat structures are not modeled) and are deliberately absent — an
// unmapped number falls through to HandleSyscall's own NotSupported.
var table = map[uint64]handler{
	SysFork:   sysFork,
	SysExit:   sysExit,
	SysWait:   sysWait,
	SysPipe:   sysPipe,
	SysRead:   sysRead,
	SysExec:   sysExec,
	SysChdir:  sysChdir,
	SysDup:    sysDup,
	SysGetpid: sysGetpid,
	SysSbrk:   sysSbrk,
	SysOpen:   sysOpen,
	SysWrite:  sysWrite,
	SysUnlink: sysUnlink,
	SysClose:  sysClose,
}

const maxCStringLen = 4096

func readCString(as *mm.AddressSpace, addr uint64) (string, error) {
	buf := make([]byte, 0, 64)
	var b [1]byte
	for i := 0; i < maxCStringLen; i++ {
		if err := as.CopyIn(b[:], mm.VirtAddr(addr)+mm.VirtAddr(i)); err != nil {
			return "", err
		}
		if b[0] == 0 {
			return string(buf), nil
		}
		buf = append(buf, b[0])
	}
	return "", kernerr.New(kernerr.InvalidArgument, "string at %#x exceeds %d bytes", addr, maxCStringLen)
}

func asTask(ctx any) (*task.Task, error) {
	t, isTask := ctx.(*task.Task)
	if !isTask {
		return nil, kernerr.New(kernerr.InvalidArgument, "xv6 ABI requires a *task.Task context")
	}
	return t, nil
}

func unsupportedSyscall(n uint64) error {
	return kernerr.New(kernerr.NotSupported, "xv6 syscall %d not modeled", n)
}

// fail/ok have the same shape as internal/abi/native's helpers but a
// different return-value convention: xv6 binaries see -1 on error (matching real xv6 libc) rather than a
// negative errno, since the upstream xv6 syscall convention itself does
// not multiplex different failure kinds onto distinct negative codes the
// way the native ABI does.
func fail(tf *arch.TrapFrame, err error) error {
	tf.SetReturn(^uint64(0)) // -1
	return nil
}

func ok(tf *arch.TrapFrame, v uint64) error {
	tf.SetReturn(v)
	return nil
}

func sysFork(a *ABI, ctx any, tf *arch.TrapFrame) error {
	t, err := asTask(ctx)
	if err != nil {
		return err
	}
	child, ferr := t.Fork()
	if ferr != nil {
		return fail(tf, ferr)
	}
	return ok(tf, uint64(child.ID))
}

func sysExit(a *ABI, ctx any, tf *arch.TrapFrame) error {
	t, err := asTask(ctx)
	if err != nil {
		return err
	}
	t.Exit(int(tf.A0()))
	return ok(tf, 0)
}

func sysWait(a *ABI, ctx any, tf *arch.TrapFrame) error {
	t, err := asTask(ctx)
	if err != nil {
		return err
	}
	pid, _, werr := t.Wait(0)
	if werr != nil {
		return fail(tf, werr)
	}
	return ok(tf, uint64(pid))
}

func sysPipe(a *ABI, ctx any, tf *arch.TrapFrame) error {
	t, err := asTask(ctx)
	if err != nil {
		return err
	}
	r, w := vfs.NewPipeEnds()
	anchor := t.Namespace.Root()
	rf := vfs.OpenFile(anchor, r, vfs.OpenFlags{Read: true})
	wf := vfs.OpenFile(anchor, w, vfs.OpenFlags{Write: true})
	rfd := t.Files.Install(rf, false)
	wfd := t.Files.Install(wf, false)

	fds := make([]byte, 8)
	putU32(fds[0:4], uint32(rfd))
	putU32(fds[4:8], uint32(wfd))
	if werr := t.AddressSpace.CopyOut(mm.VirtAddr(tf.A0()), fds); werr != nil {
		return fail(tf, werr)
	}
	return ok(tf, 0)
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func sysRead(a *ABI, ctx any, tf *arch.TrapFrame) error {
	t, err := asTask(ctx)
	if err != nil {
		return err
	}
	f, ferr := t.Files.Get(int(tf.A0()))
	if ferr != nil {
		return fail(tf, ferr)
	}
	buf := make([]byte, tf.A2())
	n, rerr := f.Read(buf)
	if rerr != nil {
		return fail(tf, rerr)
	}
	if werr := t.AddressSpace.CopyOut(mm.VirtAddr(tf.A1()), buf[:n]); werr != nil {
		return fail(tf, werr)
	}
	return ok(tf, uint64(n))
}

func sysExec(a *ABI, ctx any, tf *arch.TrapFrame) error {
	t, err := asTask(ctx)
	if err != nil {
		return err
	}
	p, rerr := readCString(t.AddressSpace, tf.A0())
	if rerr != nil {
		return fail(tf, rerr)
	}
	// Re-detects against the same shared registry native.ABI uses, so an
	// xv6 process can exec into either a native or another xv6 binary.
	if eerr := t.Exec(p, a.registry, a.arena); eerr != nil {
		return fail(tf, eerr)
	}
	return ok(tf, 0)
}

func sysChdir(a *ABI, ctx any, tf *arch.TrapFrame) error {
	t, err := asTask(ctx)
	if err != nil {
		return err
	}
	p, rerr := readCString(t.AddressSpace, tf.A0())
	if rerr != nil {
		return fail(tf, rerr)
	}
	entry, werr := vfs.Walk(t.Namespace, t.Cwd, p)
	if werr != nil {
		return fail(tf, werr)
	}
	md, merr := entry.EffectiveFS().Metadata(entry.EffectiveNode())
	if merr != nil {
		return fail(tf, merr)
	}
	if md.Kind != vfs.KindDir {
		return fail(tf, kernerr.New(kernerr.NotDirectory, "chdir target %q is not a directory", p))
	}
	t.Cwd = entry
	return ok(tf, 0)
}

func sysDup(a *ABI, ctx any, tf *arch.TrapFrame) error {
	t, err := asTask(ctx)
	if err != nil {
		return err
	}
	fd, derr := t.Files.Dup(int(tf.A0()))
	if derr != nil {
		return fail(tf, derr)
	}
	return ok(tf, uint64(fd))
}

func sysGetpid(a *ABI, ctx any, tf *arch.TrapFrame) error {
	t, err := asTask(ctx)
	if err != nil {
		return err
	}
	return ok(tf, uint64(t.Getpid()))
}

func sysSbrk(a *ABI, ctx any, tf *arch.TrapFrame) error {
	t, err := asTask(ctx)
	if err != nil {
		return err
	}
	oldBrk, serr := t.AddressSpace.Sbrk(0)
	if serr != nil {
		return fail(tf, serr)
	}
	if _, serr := t.AddressSpace.Sbrk(int64(tf.A0())); serr != nil {
		return fail(tf, serr)
	}
	// xv6's sbrk returns the OLD break, unlike the native ABI's sbrk.
	return ok(tf, uint64(oldBrk))
}

func sysOpen(a *ABI, ctx any, tf *arch.TrapFrame) error {
	t, err := asTask(ctx)
	if err != nil {
		return err
	}
	p, rerr := readCString(t.AddressSpace, tf.A0())
	if rerr != nil {
		return fail(tf, rerr)
	}
	flags := decodeOmode(tf.A1())

	if flags.Create {
		dirPath, name := path.Split(path.Clean(p))
		if dirPath == "" {
			dirPath = "."
		}
		dir, werr := vfs.Walk(t.Namespace, t.Cwd, dirPath)
		if werr != nil {
			return fail(tf, werr)
		}
		_, cerr := dir.EffectiveFS().Create(dir.EffectiveNode(), name, vfs.KindFile, 0644)
		if cerr != nil {
			kind, _ := kernerr.KindOf(cerr)
			if kind != kernerr.AlreadyExists {
				return fail(tf, cerr)
			}
		}
	}

	entry, werr := vfs.Walk(t.Namespace, t.Cwd, p)
	if werr != nil {
		return fail(tf, werr)
	}
	f, oerr := entry.Open(flags)
	if oerr != nil {
		return fail(tf, oerr)
	}
	fd := t.Files.Install(f, false)
	return ok(tf, uint64(fd))
}

// xv6 O_ flags, from xv6-riscv's kernel/fcntl.h.
const (
	oRDONLY = 0x000
	oWRONLY = 0x001
	oRDWR   = 0x002
	oCREATE = 0x200
)

func decodeOmode(mode uint64) vfs.OpenFlags {
	var f vfs.OpenFlags
	switch mode & 0x3 {
	case oRDONLY:
		f.Read = true
	case oWRONLY:
		f.Write = true
	case oRDWR:
		f.Read, f.Write = true, true
	}
	if mode&oCREATE != 0 {
		f.Create = true
		f.Write = true
	}
	return f
}

func sysWrite(a *ABI, ctx any, tf *arch.TrapFrame) error {
	t, err := asTask(ctx)
	if err != nil {
		return err
	}
	f, ferr := t.Files.Get(int(tf.A0()))
	if ferr != nil {
		return fail(tf, ferr)
	}
	buf := make([]byte, tf.A2())
	if cerr := t.AddressSpace.CopyIn(buf, mm.VirtAddr(tf.A1())); cerr != nil {
		return fail(tf, cerr)
	}
	n, werr := f.Write(buf)
	if werr != nil {
		return fail(tf, werr)
	}
	return ok(tf, uint64(n))
}

func sysUnlink(a *ABI, ctx any, tf *arch.TrapFrame) error {
	t, err := asTask(ctx)
	if err != nil {
		return err
	}
	p, rerr := readCString(t.AddressSpace, tf.A0())
	if rerr != nil {
		return fail(tf, rerr)
	}
	dirPath, name := path.Split(path.Clean(p))
	if dirPath == "" {
		dirPath = "."
	}
	dir, werr := vfs.Walk(t.Namespace, t.Cwd, dirPath)
	if werr != nil {
		return fail(tf, werr)
	}
	if rerr := dir.EffectiveFS().Remove(dir.EffectiveNode(), name); rerr != nil {
		return fail(tf, rerr)
	}
	return ok(tf, 0)
}

func sysClose(a *ABI, ctx any, tf *arch.TrapFrame) error {
	t, err := asTask(ctx)
	if err != nil {
		return err
	}
	if cerr := t.Files.Close(int(tf.A0())); cerr != nil {
		return fail(tf, cerr)
	}
	return ok(tf, 0)
}
