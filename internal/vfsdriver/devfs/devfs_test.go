package devfs

import (
	"testing"

	"github.com/petitstrawberry/Scarlet/internal/device"
	"github.com/petitstrawberry/Scarlet/internal/vfs"
)

func TestReaddirListsRegisteredDevices(t *testing.T) {
	reg := device.NewRegistry()
	reg.RegisterChar(device.NewConsoleDevice())
	reg.RegisterBlock(device.NewMemDevice("disk0", 4096))

	fs := New(reg)
	entries, err := fs.Readdir(fs.Root())
	if err != nil {
		t.Fatalf("Readdir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Readdir returned %d entries, want 2", len(entries))
	}
}

func TestOpenCharDeviceProxiesWrites(t *testing.T) {
	reg := device.NewRegistry()
	console := device.NewConsoleDevice()
	reg.RegisterChar(console)

	fs := New(reg)
	n, err := fs.Lookup(fs.Root(), "console")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	s, err := fs.Open(n, vfs.OpenFlags{Write: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.Write([]byte("hi")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if string(console.Buffered()) != "hi" {
		t.Fatalf("console buffered = %q, want %q", console.Buffered(), "hi")
	}
}

func TestOpenBlockDeviceSupportsSeekAndReadWrite(t *testing.T) {
	reg := device.NewRegistry()
	reg.RegisterBlock(device.NewMemDevice("disk0", 4096))

	fs := New(reg)
	n, err := fs.Lookup(fs.Root(), "disk0")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	s, err := fs.Open(n, vfs.OpenFlags{Read: true, Write: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.Seek(512, 0); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if _, err := s.Write([]byte("sector")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := s.Seek(512, 0); err != nil {
		t.Fatalf("Seek back: %v", err)
	}
	buf := make([]byte, 6)
	if _, err := s.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf) != "sector" {
		t.Fatalf("read %q, want %q", buf, "sector")
	}
}

func TestLookupUnknownDeviceFails(t *testing.T) {
	fs := New(device.NewRegistry())
	if _, err := fs.Lookup(fs.Root(), "nope"); err == nil {
		t.Fatalf("Lookup unknown device: want error, got nil")
	}
}
