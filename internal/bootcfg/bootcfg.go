// Package bootcfg holds the boot-time configuration a real port would
// read out of a flattened device tree. cmd/scarlet parses it from flags
// once at startup, the same plain-struct-of-settings convention minimega
// keeps in BaseConfig.
package bootcfg

import (
	"github.com/petitstrawberry/Scarlet/internal/klog"
)

// Config is the full set of boot-time parameters the kernel core is
// built from.
type Config struct {
	// MemSizeBytes sizes the physical-frame arena internal/mm allocates
	// out of (stands in for a device tree's /memory node).
	MemSizeBytes uint64

	// InitrdPath names a CPIO newc archive on the host filesystem,
	// standing in for a boot loader handing the kernel an initrd image
	// already resident in memory.
	InitrdPath string

	// InitPath is the path within the mounted initrd of the program task
	// 1 execs, e.g. "/bin/init" or "/bin/hello" for the boot scenario.
	InitPath string

	// LogLevel is the minimum klog.Level the ring logger keeps.
	LogLevel klog.Level
}

const (
	defaultMemSizeBytes = 64 << 20 // 64 MiB
	defaultInitPath     = "/bin/init"
)

// Default returns a Config usable without any flags set, for tests and
// for documenting what cmd/scarlet's flag defaults resolve to.
func Default() Config {
	return Config{
		MemSizeBytes: defaultMemSizeBytes,
		InitPath:     defaultInitPath,
		LogLevel:     klog.INFO,
	}
}
