package native

import (
	"path"
	"strings"

	"github.com/petitstrawberry/Scarlet/internal/arch"
	"github.com/petitstrawberry/Scarlet/internal/kernerr"
	"github.com/petitstrawberry/Scarlet/internal/klog"
	"github.com/petitstrawberry/Scarlet/internal/mm"
	"github.com/petitstrawberry/Scarlet/internal/task"
	"github.com/petitstrawberry/Scarlet/internal/vfs"
)

// splitPath separates p into its parent directory and final component, the
// shape Create's (dir, name) signature wants.
func splitPath(p string) (dir, name string) {
	clean := path.Clean(p)
	return path.Dir(clean), path.Base(clean)
}

// entryPath reconstructs e's absolute path within ns by walking parent
// links, for getcwd — the namespace caches entries by (parent, name) but
// does not itself track each entry's absolute path.
func entryPath(ns *vfs.Namespace, e *vfs.Entry) string {
	if e == ns.Root() {
		return "/"
	}
	var parts []string
	cur := e
	for cur != ns.Root() {
		parts = append([]string{cur.Name()}, parts...)
		parent := cur.Parent()
		if parent == cur {
			break
		}
		cur = parent
	}
	return "/" + strings.Join(parts, "/")
}

type handler func(a *ABI, ctx any, tf *arch.TrapFrame) error

var table = map[uint64]handler{
	SysFork:  sysFork,
	SysExec:  sysExec,
	SysWait:  sysWait,
	SysExit:  sysExit,

	SysGetpid:  sysGetpid,
	SysGetppid: sysGetppid,

	SysSbrk:   sysSbrk,
	SysMmap:   sysMmap,
	SysMunmap: sysMunmap,

	SysOpen:  sysOpen,
	SysClose: sysClose,
	SysRead:  sysRead,
	SysWrite: sysWrite,
	SysLseek: sysLseek,
	SysDup:   sysDup,
	SysPipe:  sysPipe,

	SysMount:  sysMount,
	SysUmount: sysUmount,
	SysChdir:  sysChdir,
	SysGetcwd: sysGetcwd,
	SysSetenv: sysSetenv,
	SysGetenv: sysGetenv,

	SysRegisterAbiZone:   sysRegisterAbiZone,
	SysUnregisterAbiZone: sysUnregisterAbiZone,

	SysKlogDump: sysKlogDump,
}

const maxCStringLen = 4096

// readCString reads a NUL-terminated string from user memory one byte at
// a time. Simple rather than fast: the native ABI has no reason to read
// more than a path or an ABI name per call.
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
	t, ok := ctx.(*task.Task)
	if !ok {
		return nil, kernerr.New(kernerr.InvalidArgument, "native ABI requires a *task.Task context")
	}
	return t, nil
}

// fail writes kind's errno encoding to tf's return slot and returns nil:
// syscall failures are reported to the caller through the trap frame, not
// through HandleSyscall's own error return (which is reserved for
// kernel-internal dispatch failures).
func fail(tf *arch.TrapFrame, err error) error {
	tf.SetReturnErrno(kernerr.Errno(err))
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

func sysExec(a *ABI, ctx any, tf *arch.TrapFrame) error {
	t, err := asTask(ctx)
	if err != nil {
		return err
	}
	path, rerr := readCString(t.AddressSpace, tf.A0())
	if rerr != nil {
		return fail(tf, rerr)
	}
	if eerr := t.Exec(path, a.registry, a.arena); eerr != nil {
		return fail(tf, eerr)
	}
	return ok(tf, 0)
}

func sysWait(a *ABI, ctx any, tf *arch.TrapFrame) error {
	t, err := asTask(ctx)
	if err != nil {
		return err
	}
	pid, _, werr := t.Wait(int(tf.A0()))
	if werr != nil {
		return fail(tf, werr)
	}
	return ok(tf, uint64(pid))
}

func sysExit(a *ABI, ctx any, tf *arch.TrapFrame) error {
	t, err := asTask(ctx)
	if err != nil {
		return err
	}
	t.Exit(int(tf.A0()))
	return ok(tf, 0)
}

func sysGetpid(a *ABI, ctx any, tf *arch.TrapFrame) error {
	t, err := asTask(ctx)
	if err != nil {
		return err
	}
	return ok(tf, uint64(t.Getpid()))
}

func sysGetppid(a *ABI, ctx any, tf *arch.TrapFrame) error {
	t, err := asTask(ctx)
	if err != nil {
		return err
	}
	return ok(tf, uint64(t.Getppid()))
}

func sysSbrk(a *ABI, ctx any, tf *arch.TrapFrame) error {
	t, err := asTask(ctx)
	if err != nil {
		return err
	}
	newBrk, serr := t.AddressSpace.Sbrk(int64(tf.A0()))
	if serr != nil {
		return fail(tf, serr)
	}
	return ok(tf, uint64(newBrk))
}

func sysMmap(a *ABI, ctx any, tf *arch.TrapFrame) error {
	t, err := asTask(ctx)
	if err != nil {
		return err
	}
	addr, merr := t.AddressSpace.MapAnon(tf.A0(), mm.Prot(tf.A1()))
	if merr != nil {
		return fail(tf, merr)
	}
	return ok(tf, uint64(addr))
}

func sysMunmap(a *ABI, ctx any, tf *arch.TrapFrame) error {
	t, err := asTask(ctx)
	if err != nil {
		return err
	}
	if uerr := t.AddressSpace.Unmap(mm.VirtAddr(tf.A0())); uerr != nil {
		return fail(tf, uerr)
	}
	return ok(tf, 0)
}

func sysOpen(a *ABI, ctx any, tf *arch.TrapFrame) error {
	t, err := asTask(ctx)
	if err != nil {
		return err
	}
	path, rerr := readCString(t.AddressSpace, tf.A0())
	if rerr != nil {
		return fail(tf, rerr)
	}
	flags := decodeOpenFlags(tf.A1())

	if flags.Create {
		dirPath, name := splitPath(path)
		dir, werr := vfs.Walk(t.Namespace, t.Cwd, dirPath)
		if werr != nil {
			return fail(tf, werr)
		}
		_, cerr := dir.EffectiveFS().Create(dir.EffectiveNode(), name, vfs.KindFile, uint32(tf.A2()))
		if cerr != nil {
			kind, _ := kernerr.KindOf(cerr)
			if kind != kernerr.AlreadyExists || flags.Exclusive {
				return fail(tf, cerr)
			}
		}
	}

	entry, werr := vfs.Walk(t.Namespace, t.Cwd, path)
	if werr != nil {
		return fail(tf, werr)
	}
	f, oerr := entry.Open(flags)
	if oerr != nil {
		return fail(tf, oerr)
	}
	fd := t.Files.Install(f, flags.CloseExec)
	return ok(tf, uint64(fd))
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

func sysRead(a *ABI, ctx any, tf *arch.TrapFrame) error {
	t, err := asTask(ctx)
	if err != nil {
		return err
	}
	f, ferr := t.Files.Get(int(tf.A0()))
	if ferr != nil {
		return fail(tf, ferr)
	}
	n := tf.A2()
	buf := make([]byte, n)
	read, rerr := f.Read(buf)
	if rerr != nil {
		return fail(tf, rerr)
	}
	if werr := t.AddressSpace.CopyOut(mm.VirtAddr(tf.A1()), buf[:read]); werr != nil {
		return fail(tf, werr)
	}
	return ok(tf, uint64(read))
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
	n := tf.A2()
	buf := make([]byte, n)
	if cerr := t.AddressSpace.CopyIn(buf, mm.VirtAddr(tf.A1())); cerr != nil {
		return fail(tf, cerr)
	}
	written, werr := f.Write(buf)
	if werr != nil {
		return fail(tf, werr)
	}
	return ok(tf, uint64(written))
}

func sysLseek(a *ABI, ctx any, tf *arch.TrapFrame) error {
	t, err := asTask(ctx)
	if err != nil {
		return err
	}
	f, ferr := t.Files.Get(int(tf.A0()))
	if ferr != nil {
		return fail(tf, ferr)
	}
	pos, serr := f.Seek(int64(tf.A1()), int(tf.A2()))
	if serr != nil {
		return fail(tf, serr)
	}
	return ok(tf, uint64(pos))
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

func sysPipe(a *ABI, ctx any, tf *arch.TrapFrame) error {
	t, err := asTask(ctx)
	if err != nil {
		return err
	}
	r, w := vfs.NewPipeEnds()
	// A pipe has no backing node, so both ends hold the namespace root
	// rather than an unrelated entry — the root's refcount is never used to
	// decide whether to detach it from the tree (it has no parent).
	anchor := t.Namespace.Root()
	rf := vfs.OpenFile(anchor, r, vfs.OpenFlags{Read: true})
	wf := vfs.OpenFile(anchor, w, vfs.OpenFlags{Write: true})
	rfd := t.Files.Install(rf, false)
	wfd := t.Files.Install(wf, false)
	if werr := t.AddressSpace.CopyOut(mm.VirtAddr(tf.A0()), encodeFds(rfd, wfd)); werr != nil {
		return fail(tf, werr)
	}
	return ok(tf, 0)
}

func encodeFds(r, w int) []byte {
	buf := make([]byte, 8)
	putU32(buf[0:4], uint32(r))
	putU32(buf[4:8], uint32(w))
	return buf
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func sysMount(a *ABI, ctx any, tf *arch.TrapFrame) error {
	return fail(tf, kernerr.New(kernerr.NotSupported, "mount requires an in-process filesystem instance; not available through the trap-frame ABI"))
}

func sysUmount(a *ABI, ctx any, tf *arch.TrapFrame) error {
	t, err := asTask(ctx)
	if err != nil {
		return err
	}
	path, rerr := readCString(t.AddressSpace, tf.A0())
	if rerr != nil {
		return fail(tf, rerr)
	}
	if uerr := t.Namespace.Unmount(path, tf.A1() != 0); uerr != nil {
		return fail(tf, uerr)
	}
	return ok(tf, 0)
}

func sysChdir(a *ABI, ctx any, tf *arch.TrapFrame) error {
	t, err := asTask(ctx)
	if err != nil {
		return err
	}
	path, rerr := readCString(t.AddressSpace, tf.A0())
	if rerr != nil {
		return fail(tf, rerr)
	}
	entry, werr := vfs.Walk(t.Namespace, t.Cwd, path)
	if werr != nil {
		return fail(tf, werr)
	}
	md, merr := entry.EffectiveFS().Metadata(entry.EffectiveNode())
	if merr != nil {
		return fail(tf, merr)
	}
	if md.Kind != vfs.KindDir {
		return fail(tf, kernerr.New(kernerr.NotDirectory, "chdir target %q is not a directory", path))
	}
	t.Cwd = entry
	return ok(tf, 0)
}

func sysGetcwd(a *ABI, ctx any, tf *arch.TrapFrame) error {
	t, err := asTask(ctx)
	if err != nil {
		return err
	}
	cwdPath := entryPath(t.Namespace, t.Cwd)
	buf := append([]byte(cwdPath), 0)
	if uint64(len(buf)) > tf.A1() {
		return fail(tf, kernerr.New(kernerr.InvalidArgument, "getcwd buffer too small"))
	}
	if werr := t.AddressSpace.CopyOut(mm.VirtAddr(tf.A0()), buf); werr != nil {
		return fail(tf, werr)
	}
	return ok(tf, uint64(len(buf)))
}

func sysSetenv(a *ABI, ctx any, tf *arch.TrapFrame) error {
	t, err := asTask(ctx)
	if err != nil {
		return err
	}
	key, kerr := readCString(t.AddressSpace, tf.A0())
	if kerr != nil {
		return fail(tf, kerr)
	}
	val, verr := readCString(t.AddressSpace, tf.A1())
	if verr != nil {
		return fail(tf, verr)
	}
	t.Setenv(key, val)
	return ok(tf, 0)
}

func sysGetenv(a *ABI, ctx any, tf *arch.TrapFrame) error {
	t, err := asTask(ctx)
	if err != nil {
		return err
	}
	key, kerr := readCString(t.AddressSpace, tf.A0())
	if kerr != nil {
		return fail(tf, kerr)
	}
	val, ok2 := t.Getenv(key)
	if !ok2 {
		return fail(tf, kernerr.New(kernerr.NotFound, "environment variable %q not set", key))
	}
	buf := append([]byte(val), 0)
	if uint64(len(buf)) > tf.A2() {
		return fail(tf, kernerr.New(kernerr.InvalidArgument, "getenv buffer too small"))
	}
	if werr := t.AddressSpace.CopyOut(mm.VirtAddr(tf.A1()), buf); werr != nil {
		return fail(tf, werr)
	}
	return ok(tf, uint64(len(buf)))
}

func sysRegisterAbiZone(a *ABI, ctx any, tf *arch.TrapFrame) error {
	t, err := asTask(ctx)
	if err != nil {
		return err
	}
	name, rerr := readCString(t.AddressSpace, tf.A2())
	if rerr != nil {
		return fail(tf, rerr)
	}
	instance, instOk := a.registry.Instantiate(name)
	if !instOk {
		return fail(tf, kernerr.New(kernerr.UnknownAbi, "ABI %q not registered", name))
	}
	if zerr := t.Zones.Register(tf.A0(), tf.A1(), instance); zerr != nil {
		return fail(tf, zerr)
	}
	return ok(tf, 0)
}

func sysUnregisterAbiZone(a *ABI, ctx any, tf *arch.TrapFrame) error {
	t, err := asTask(ctx)
	if err != nil {
		return err
	}
	if zerr := t.Zones.Unregister(tf.A0()); zerr != nil {
		return fail(tf, zerr)
	}
	return ok(tf, 0)
}

// sysKlogDump copies the boot ring's buffered log lines, newline-joined,
// into the buffer at tf.A0() sized tf.A1(). A debug syscall: no real
// console exists to read dmesg output from otherwise.
func sysKlogDump(a *ABI, ctx any, tf *arch.TrapFrame) error {
	t, err := asTask(ctx)
	if err != nil {
		return err
	}
	buf := append([]byte(strings.Join(klog.Dump(), "\n")), 0)
	if uint64(len(buf)) > tf.A1() {
		return fail(tf, kernerr.New(kernerr.InvalidArgument, "klog_dump buffer too small"))
	}
	if werr := t.AddressSpace.CopyOut(mm.VirtAddr(tf.A0()), buf); werr != nil {
		return fail(tf, werr)
	}
	return ok(tf, uint64(len(buf)))
}

// openFlagBits mirrors vfs.OpenFlags as a small bitmask the trap-frame ABI
// can pass in a register.
type openFlagBits uint64

const (
	oRead openFlagBits = 1 << iota
	oWrite
	oAppend
	oCreate
	oExclusive
	oTruncate
	oCloseExec
)

func decodeOpenFlags(bits uint64) vfs.OpenFlags {
	b := openFlagBits(bits)
	return vfs.OpenFlags{
		Read:      b&oRead != 0,
		Write:     b&oWrite != 0,
		Append:    b&oAppend != 0,
		Create:    b&oCreate != 0,
		Exclusive: b&oExclusive != 0,
		Truncate:  b&oTruncate != 0,
		CloseExec: b&oCloseExec != 0,
	}
}
