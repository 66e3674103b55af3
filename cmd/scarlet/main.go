// Command scarlet boots the kernel: it parses boot-time flags (standing
// in for a flattened device tree), assembles the subsystem graph via
// internal/bootcfg, spawns task 1, and runs until every task has exited.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/petitstrawberry/Scarlet/internal/bootcfg"
	"github.com/petitstrawberry/Scarlet/internal/klog"
)

var (
	fMemSize  = flag.Uint64("memsize", 64<<20, "physical memory size, in bytes")
	fInitrd   = flag.String("initrd", "", "path to the CPIO newc initrd image")
	fInit     = flag.String("init", "/bin/init", "path within the initrd task 1 execs")
	fLogLevel = flag.String("loglevel", "info", "minimum log level (debug, info, warn, error)")
)

func usage() {
	fmt.Println("scarlet, a RISC-V64 kernel simulator")
	fmt.Println("usage: scarlet -initrd <path> [option]...")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	level, err := klog.ParseLevel(*fLogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *fInitrd == "" {
		fmt.Fprintln(os.Stderr, "scarlet: -initrd is required")
		os.Exit(1)
	}

	cfg := bootcfg.Config{
		MemSizeBytes: *fMemSize,
		InitrdPath:   *fInitrd,
		InitPath:     *fInit,
		LogLevel:     level,
	}

	f, err := os.Open(cfg.InitrdPath)
	if err != nil {
		klog.Fatal("open initrd: %v", err)
	}
	defer f.Close()

	kernel, err := bootcfg.Boot(cfg, f)
	if err != nil {
		klog.Fatal("boot: %v", err)
	}

	init, err := kernel.SpawnInit(cfg.InitPath)
	if err != nil {
		klog.Fatal("spawn init: %v", err)
	}

	// With no real CPU trap path in this simulator, init's own reaper
	// loop is the kernel's run loop: orphaned descendants are reparented
	// to task 1 (internal/task's Exit), so looping Wait until it reports
	// no children left is exactly the condition for "nothing is running
	// anymore."
	for {
		if _, _, err := init.Wait(0); err != nil {
			break
		}
	}

	if err := kernel.Shutdown(); err != nil {
		klog.Error("shutdown: %v", err)
	}
}
