package native

import (
	"strings"
	"testing"

	"github.com/petitstrawberry/Scarlet/internal/abi"
	"github.com/petitstrawberry/Scarlet/internal/arch"
	"github.com/petitstrawberry/Scarlet/internal/klog"
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

func TestSbrkGrowsAndShrinksHeap(t *testing.T) {
	tk, _, a, tf := newTestTask(t)

	setArgs(tf, SysSbrk, 4096)
	if err := a.HandleSyscall(tk, tf); err != nil {
		t.Fatalf("HandleSyscall sbrk grow: %v", err)
	}
	if tf.A0() == 0 {
		t.Fatalf("sbrk grow returned 0")
	}

	setArgs(tf, SysSbrk, uint64(int64(-4096)))
	if err := a.HandleSyscall(tk, tf); err != nil {
		t.Fatalf("HandleSyscall sbrk shrink: %v", err)
	}
}

func TestOpenWriteReadCloseRoundTrip(t *testing.T) {
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

	setArgs(tf, SysOpen, uint64(addr), uint64(oRead|oWrite|oCreate), 0644)
	if err := a.HandleSyscall(tk, tf); err != nil {
		t.Fatalf("HandleSyscall open: %v", err)
	}
	fd := int64(tf.A0())
	if fd < 0 {
		t.Fatalf("open failed with errno %d", fd)
	}

	payload := []byte("hello, scarlet")
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

	setArgs(tf, SysLseek, uint64(fd), 0, 0)
	if err := a.HandleSyscall(tk, tf); err != nil {
		t.Fatalf("HandleSyscall lseek: %v", err)
	}

	readAddr, err := tk.AddressSpace.MapAnon(uint64(len(payload)), mm.ProtRead|mm.ProtWrite)
	if err != nil {
		t.Fatalf("MapAnon readAddr: %v", err)
	}
	setArgs(tf, SysRead, uint64(fd), uint64(readAddr), uint64(len(payload)))
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

	setArgs(tf, SysClose, uint64(fd))
	if err := a.HandleSyscall(tk, tf); err != nil {
		t.Fatalf("HandleSyscall close: %v", err)
	}
	if errno := int64(tf.A0()); errno != 0 {
		t.Fatalf("close errno %d, want 0", errno)
	}
}

func TestRegisterAndUnregisterAbiZone(t *testing.T) {
	tk, _, a, tf := newTestTask(t)

	nameBuf := append([]byte(Name), 0)
	nameAddr, err := tk.AddressSpace.MapAnon(uint64(len(nameBuf)), mm.ProtRead|mm.ProtWrite)
	if err != nil {
		t.Fatalf("MapAnon: %v", err)
	}
	if err := tk.AddressSpace.CopyOut(nameAddr, nameBuf); err != nil {
		t.Fatalf("CopyOut: %v", err)
	}

	setArgs(tf, SysRegisterAbiZone, 0x1000, 0x1000, uint64(nameAddr))
	if err := a.HandleSyscall(tk, tf); err != nil {
		t.Fatalf("HandleSyscall register zone: %v", err)
	}
	if errno := int64(tf.A0()); errno != 0 {
		t.Fatalf("register zone errno %d, want 0", errno)
	}

	if len(tk.Zones.Zones()) != 1 {
		t.Fatalf("zone count = %d, want 1", len(tk.Zones.Zones()))
	}

	setArgs(tf, SysUnregisterAbiZone, 0x1000)
	if err := a.HandleSyscall(tk, tf); err != nil {
		t.Fatalf("HandleSyscall unregister zone: %v", err)
	}
	if errno := int64(tf.A0()); errno != 0 {
		t.Fatalf("unregister zone errno %d, want 0", errno)
	}
	if len(tk.Zones.Zones()) != 0 {
		t.Fatalf("zone count after unregister = %d, want 0", len(tk.Zones.Zones()))
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
	childTask.Exit(3)

	setArgs(tf, SysWait, 0)
	if err := a.HandleSyscall(tk, tf); err != nil {
		t.Fatalf("HandleSyscall wait: %v", err)
	}
	if reaped := int64(tf.A0()); reaped != childID {
		t.Fatalf("wait reaped %d, want %d", reaped, childID)
	}
}

func TestUnknownSyscallReturnsNotSupported(t *testing.T) {
	tk, _, a, tf := newTestTask(t)

	setArgs(tf, 255)
	if err := a.HandleSyscall(tk, tf); err != nil {
		t.Fatalf("HandleSyscall unknown: %v", err)
	}
	if errno := int64(tf.A0()); errno >= 0 {
		t.Fatalf("unknown syscall errno %d, want negative", errno)
	}
}

func TestKlogDumpReturnsBufferedMessages(t *testing.T) {
	tk, _, a, tf := newTestTask(t)

	klog.Info("klog dump marker %d", 42)
	want := strings.Join(klog.Dump(), "\n")

	addr, err := tk.AddressSpace.MapAnon(uint64(len(want))+1, mm.ProtRead|mm.ProtWrite)
	if err != nil {
		t.Fatalf("MapAnon: %v", err)
	}

	setArgs(tf, SysKlogDump, uint64(addr), uint64(len(want))+1)
	if err := a.HandleSyscall(tk, tf); err != nil {
		t.Fatalf("HandleSyscall klog_dump: %v", err)
	}
	n := int64(tf.A0())
	if n <= 0 {
		t.Fatalf("klog_dump returned %d, want positive", n)
	}

	got := make([]byte, n)
	if err := tk.AddressSpace.CopyIn(got, addr); err != nil {
		t.Fatalf("CopyIn: %v", err)
	}
	if !strings.Contains(string(got), "klog dump marker 42") {
		t.Fatalf("dump %q does not contain marker line", got)
	}
}

func TestKlogDumpRejectsUndersizedBuffer(t *testing.T) {
	tk, _, a, tf := newTestTask(t)

	klog.Info("another marker")
	addr, err := tk.AddressSpace.MapAnon(1, mm.ProtRead|mm.ProtWrite)
	if err != nil {
		t.Fatalf("MapAnon: %v", err)
	}

	setArgs(tf, SysKlogDump, uint64(addr), 1)
	if err := a.HandleSyscall(tk, tf); err != nil {
		t.Fatalf("HandleSyscall klog_dump: %v", err)
	}
	if errno := int64(tf.A0()); errno >= 0 {
		t.Fatalf("klog_dump errno %d, want negative", errno)
	}
}
