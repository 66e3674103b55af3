package xv6

import (
	"debug/elf"
	"testing"

	"github.com/petitstrawberry/Scarlet/internal/abi"
	"github.com/petitstrawberry/Scarlet/internal/arch"
	"github.com/petitstrawberry/Scarlet/internal/mm"
	"github.com/petitstrawberry/Scarlet/internal/task"
	"github.com/petitstrawberry/Scarlet/internal/vfs"
	"github.com/petitstrawberry/Scarlet/internal/vfsdriver/tmpfs"
)

func newTestTask(t *testing.T) (*task.Task, *task.Table, *ABI, *arch.TrapFrame) {
	t.Helper()

	arena, err := mm.NewArena(1 << 20)
	if err != nil {
		t.Fatalf("NewArena: %v", err)
	}
	t.Cleanup(func() { arena.Close() })

	registry := abi.NewRegistry()
	a := &ABI{registry: registry, arena: arena}
	if err := registry.Register(Name, func() abi.Instance { return &ABI{registry: registry, arena: arena} }, Detect); err != nil {
		t.Fatalf("Register: %v", err)
	}

	fs := tmpfs.New()
	ns := vfs.NewNamespace(fs)
	tb := task.NewTable()
	init := tb.Spawn(0, mm.NewAddressSpace(arena), task.NewFileTable(), ns, ns.Root(), a)

	return init, tb, a, init.TrapFrame
}

func setArgs(tf *arch.TrapFrame, sysno uint64, args ...uint64) {
	tf.A[7] = sysno
	for i, v := range args {
		tf.A[i] = v
	}
}

func TestDetectRequiresAbiVersionMarker(t *testing.T) {
	header := make([]byte, 20)
	copy(header, "\x7fELF")
	if Detect(header) {
		t.Fatalf("Detect matched a header with ABIVERSION 0")
	}
	header[elf.EI_ABIVERSION] = xv6AbiVersionMarker
	if !Detect(header) {
		t.Fatalf("Detect did not match a header carrying the marker byte")
	}
}

func TestSbrkReturnsOldBreak(t *testing.T) {
	tk, _, a, tf := newTestTask(t)

	setArgs(tf, SysSbrk, 4096)
	if err := a.HandleSyscall(tk, tf); err != nil {
		t.Fatalf("HandleSyscall sbrk: %v", err)
	}
	firstBreak := tf.A0()

	setArgs(tf, SysSbrk, 4096)
	if err := a.HandleSyscall(tk, tf); err != nil {
		t.Fatalf("HandleSyscall sbrk: %v", err)
	}
	secondBreak := tf.A0()

	if secondBreak != firstBreak+4096 {
		t.Fatalf("second sbrk returned %#x, want old break %#x", secondBreak, firstBreak+4096)
	}
}

func TestOpenCreateWriteClose(t *testing.T) {
	tk, _, a, tf := newTestTask(t)

	name := "/greeting"
	buf := append([]byte(name), 0)
	addr, err := tk.AddressSpace.MapAnon(uint64(len(buf)), mm.ProtRead|mm.ProtWrite)
	if err != nil {
		t.Fatalf("MapAnon: %v", err)
	}
	if err := tk.AddressSpace.CopyOut(addr, buf); err != nil {
		t.Fatalf("CopyOut: %v", err)
	}

	setArgs(tf, SysOpen, uint64(addr), uint64(oRDWR|oCREATE))
	if err := a.HandleSyscall(tk, tf); err != nil {
		t.Fatalf("HandleSyscall open: %v", err)
	}
	fd := int64(tf.A0())
	if fd < 0 {
		t.Fatalf("open failed")
	}

	payload := []byte("hello from xv6")
	payloadAddr, err := tk.AddressSpace.MapAnon(uint64(len(payload)), mm.ProtRead|mm.ProtWrite)
	if err != nil {
		t.Fatalf("MapAnon payload: %v", err)
	}
	if err := tk.AddressSpace.CopyOut(payloadAddr, payload); err != nil {
		t.Fatalf("CopyOut payload: %v", err)
	}

	setArgs(tf, SysWrite, uint64(fd), uint64(payloadAddr), uint64(len(payload)))
	if err := a.HandleSyscall(tk, tf); err != nil {
		t.Fatalf("HandleSyscall write: %v", err)
	}
	if written := int64(tf.A0()); written != int64(len(payload)) {
		t.Fatalf("write returned %d, want %d", written, len(payload))
	}

	setArgs(tf, SysClose, uint64(fd))
	if err := a.HandleSyscall(tk, tf); err != nil {
		t.Fatalf("HandleSyscall close: %v", err)
	}
	if errno := int64(tf.A0()); errno != 0 {
		t.Fatalf("close returned %d, want 0", errno)
	}
}

func TestPipeReadWriteRoundTrip(t *testing.T) {
	tk, _, a, tf := newTestTask(t)

	fdsAddr, err := tk.AddressSpace.MapAnon(8, mm.ProtRead|mm.ProtWrite)
	if err != nil {
		t.Fatalf("MapAnon: %v", err)
	}

	setArgs(tf, SysPipe, uint64(fdsAddr))
	if err := a.HandleSyscall(tk, tf); err != nil {
		t.Fatalf("HandleSyscall pipe: %v", err)
	}
	if errno := int64(tf.A0()); errno != 0 {
		t.Fatalf("pipe returned %d, want 0", errno)
	}

	fds := make([]byte, 8)
	if err := tk.AddressSpace.CopyIn(fds, fdsAddr); err != nil {
		t.Fatalf("CopyIn: %v", err)
	}
	rfd := uint64(fds[0]) | uint64(fds[1])<<8 | uint64(fds[2])<<16 | uint64(fds[3])<<24
	wfd := uint64(fds[4]) | uint64(fds[5])<<8 | uint64(fds[6])<<16 | uint64(fds[7])<<24

	payload := []byte("pipeline")
	payloadAddr, err := tk.AddressSpace.MapAnon(uint64(len(payload)), mm.ProtRead|mm.ProtWrite)
	if err != nil {
		t.Fatalf("MapAnon payload: %v", err)
	}
	if err := tk.AddressSpace.CopyOut(payloadAddr, payload); err != nil {
		t.Fatalf("CopyOut payload: %v", err)
	}

	setArgs(tf, SysWrite, wfd, uint64(payloadAddr), uint64(len(payload)))
	if err := a.HandleSyscall(tk, tf); err != nil {
		t.Fatalf("HandleSyscall write: %v", err)
	}
	if n := int64(tf.A0()); n != int64(len(payload)) {
		t.Fatalf("write returned %d, want %d", n, len(payload))
	}

	readAddr, err := tk.AddressSpace.MapAnon(uint64(len(payload)), mm.ProtRead|mm.ProtWrite)
	if err != nil {
		t.Fatalf("MapAnon readAddr: %v", err)
	}
	setArgs(tf, SysRead, rfd, uint64(readAddr), uint64(len(payload)))
	if err := a.HandleSyscall(tk, tf); err != nil {
		t.Fatalf("HandleSyscall read: %v", err)
	}
	if n := int64(tf.A0()); n != int64(len(payload)) {
		t.Fatalf("read returned %d, want %d", n, len(payload))
	}
	got := make([]byte, len(payload))
	if err := tk.AddressSpace.CopyIn(got, readAddr); err != nil {
		t.Fatalf("CopyIn: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("read back %q, want %q", got, payload)
	}
}

func TestForkExitWaitRoundTrip(t *testing.T) {
	tk, tb, a, tf := newTestTask(t)

	setArgs(tf, SysFork)
	if err := a.HandleSyscall(tk, tf); err != nil {
		t.Fatalf("HandleSyscall fork: %v", err)
	}
	childID := int64(tf.A0())
	if childID <= 0 {
		t.Fatalf("fork returned %d", childID)
	}

	childTask, err := tb.Get(int(childID))
	if err != nil {
		t.Fatalf("Get(child): %v", err)
	}
	childTask.Exit(5)

	setArgs(tf, SysWait)
	if err := a.HandleSyscall(tk, tf); err != nil {
		t.Fatalf("HandleSyscall wait: %v", err)
	}
	if reaped := int64(tf.A0()); reaped != childID {
		t.Fatalf("wait reaped %d, want %d", reaped, childID)
	}
}

func TestUnmodeledSyscallReturnsMinusOne(t *testing.T) {
	tk, _, a, tf := newTestTask(t)

	setArgs(tf, SysSleep, 1)
	if err := a.HandleSyscall(tk, tf); err != nil {
		t.Fatalf("HandleSyscall sleep: %v", err)
	}
	if errno := int64(tf.A0()); errno != -1 {
		t.Fatalf("sleep returned %d, want -1", errno)
	}
}
