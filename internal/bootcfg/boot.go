package bootcfg

import (
	"io"

	"github.com/petitstrawberry/Scarlet/internal/abi"
	"github.com/petitstrawberry/Scarlet/internal/abi/native"
	"github.com/petitstrawberry/Scarlet/internal/abi/xv6"
	"github.com/petitstrawberry/Scarlet/internal/device"
	"github.com/petitstrawberry/Scarlet/internal/kernerr"
	"github.com/petitstrawberry/Scarlet/internal/klog"
	"github.com/petitstrawberry/Scarlet/internal/mm"
	"github.com/petitstrawberry/Scarlet/internal/task"
	"github.com/petitstrawberry/Scarlet/internal/vfs"
	"github.com/petitstrawberry/Scarlet/internal/vfsdriver/cpiofs"
	"github.com/petitstrawberry/Scarlet/internal/vfsdriver/devfs"
)

// Kernel is the assembled subsystem graph a booted Scarlet instance runs
// with: the physical arena, device registry, root namespace, ABI
// registry, and task table. cmd/scarlet's main is little more than
// flag-parsing glue in front of Boot, the same division minimega keeps
// between main()'s f_* flags and the subsystems they configure.
type Kernel struct {
	Arena    *mm.Arena
	Devices  *device.Registry
	Registry *abi.Registry
	Tasks    *task.Table
	Root     *vfs.Namespace
}

// Boot builds every kernel subsystem from cfg and an already-open initrd
// reader, registers the built-in devices and ABIs, mounts devfs at /dev,
// and returns the assembled Kernel. The initrd has to contain a /dev
// directory: the cpio root is read-only, and Boot fails if it is missing. It does not spawn task 1 — callers
// decide what that task execs (spec.md's boot scenario execs /bin/hello;
// a real init system would exec /bin/init).
func Boot(cfg Config, initrd io.Reader) (*Kernel, error) {
	klog.SetLevel(cfg.LogLevel)
	klog.Info("booting: memsize=%d initpath=%s", cfg.MemSizeBytes, cfg.InitPath)

	arena, err := mm.NewArena(cfg.MemSizeBytes)
	if err != nil {
		return nil, kernerr.Wrap(kernerr.NoSpace, err, "allocate physical arena")
	}

	devices := device.NewRegistry()
	if err := devices.RegisterChar(device.NewConsoleDevice()); err != nil {
		return nil, err
	}
	if err := devices.RegisterChar(device.NullDevice{}); err != nil {
		return nil, err
	}

	rootFS, err := cpiofs.New(initrd)
	if err != nil {
		return nil, kernerr.Wrap(kernerr.Fault, err, "decode initrd %q", cfg.InitrdPath)
	}
	root := vfs.NewNamespace(rootFS)
	if err := root.Mount("/dev", devfs.New(devices), vfs.MountFlags{}); err != nil {
		return nil, err
	}

	// xv6 is registered first: native.Detect accepts any ELF whose OSABI
	// byte is unset, which includes binaries carrying xv6's marker.
	registry := abi.NewRegistry()
	if err := registry.Register(xv6.Name, xv6.Factory(registry, arena), xv6.Detect); err != nil {
		return nil, err
	}
	if err := registry.Register(native.Name, native.Factory(registry, arena), native.Detect); err != nil {
		return nil, err
	}

	klog.Info("boot complete: %d device(s) registered, root mounted from initrd", len(devices.Names()))

	return &Kernel{
		Arena:    arena,
		Devices:  devices,
		Registry: registry,
		Tasks:    task.NewTable(),
		Root:     root,
	}, nil
}

// SpawnInit creates task 1, using the native ABI as its default (exec
// re-detects the real ABI from the target binary's ELF header once it
// loads), and execs initPath into it.
func (k *Kernel) SpawnInit(initPath string) (*task.Task, error) {
	defaultABI, ok := k.Registry.Instantiate(native.Name)
	if !ok {
		return nil, kernerr.New(kernerr.UnknownAbi, "native ABI not registered")
	}

	init := k.Tasks.Spawn(0, mm.NewAddressSpace(k.Arena), task.NewFileTable(), k.Root, k.Root.Root(), defaultABI)
	if err := init.Exec(initPath, k.Registry, k.Arena); err != nil {
		return nil, kernerr.Wrap(kernerr.Fault, err, "exec init %q", initPath)
	}
	klog.Info("task 1 running %s", initPath)
	return init, nil
}

// Shutdown tears down every remaining task, for a clean exit.
func (k *Kernel) Shutdown() error {
	klog.Info("shutting down")
	return k.Tasks.Shutdown(0)
}
