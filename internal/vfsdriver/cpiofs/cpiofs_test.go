package cpiofs

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/petitstrawberry/Scarlet/internal/vfs"
)

// buildArchive assembles a minimal newc archive from a list of entries, for
// tests. Real images come from a build pipeline outside this package.
type entry struct {
	name string
	mode uint32
	data []byte
}

func buildArchive(entries []entry) []byte {
	var buf bytes.Buffer
	for _, e := range entries {
		writeEntry(&buf, e.name, e.mode, e.data)
	}
	writeEntry(&buf, trailer, 0, nil)
	return buf.Bytes()
}

func writeEntry(buf *bytes.Buffer, name string, mode uint32, data []byte) {
	namez := name + "\x00"
	fmt.Fprintf(buf, "%s%08x%08x%08x%08x%08x%08x%08x%08x%08x%08x%08x%08x%08x",
		magic,
		0,               // ino
		mode,            // mode
		0, 0,            // uid, gid
		1,               // nlink
		0,               // mtime
		len(data),       // filesize
		0, 0, 0, 0,      // devmajor, devminor, rdevmajor, rdevminor
		len(namez),      // namesize
		0,               // check
	)
	buf.WriteString(namez)
	padTo4(buf)
	buf.Write(data)
	padTo4(buf)
}

func padTo4(buf *bytes.Buffer) {
	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}
}

func TestDecodeFileTreeAndReadContents(t *testing.T) {
	archive := buildArchive([]entry{
		{name: "bin", mode: modeFmtDir | 0755},
		{name: "bin/init", mode: modeFmtReg | 0755, data: []byte("#!/bin/init\n")},
		{name: "etc", mode: modeFmtDir | 0755},
		{name: "etc/motd", mode: modeFmtReg | 0644, data: []byte("welcome")},
	})

	fs, err := New(bytes.NewReader(archive))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	root := fs.Root()
	bin, err := fs.Lookup(root, "bin")
	if err != nil {
		t.Fatalf("Lookup bin: %v", err)
	}
	md, err := fs.Metadata(bin)
	if err != nil {
		t.Fatalf("Metadata bin: %v", err)
	}
	if md.Kind != vfs.KindDir {
		t.Fatalf("bin kind = %v, want dir", md.Kind)
	}

	init, err := fs.Lookup(bin, "init")
	if err != nil {
		t.Fatalf("Lookup init: %v", err)
	}
	s, err := fs.Open(init, vfs.OpenFlags{Read: true})
	if err != nil {
		t.Fatalf("Open init: %v", err)
	}
	got, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "#!/bin/init\n" {
		t.Fatalf("read %q, want %q", got, "#!/bin/init\n")
	}
}

func TestWriteOperationsFailReadOnly(t *testing.T) {
	archive := buildArchive(nil)
	fs, err := New(bytes.NewReader(archive))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if !fs.ReadOnly() {
		t.Fatalf("ReadOnly() = false, want true")
	}
	if _, err := fs.Create(fs.Root(), "x", vfs.KindFile, 0644); err == nil {
		t.Fatalf("Create: want error, got nil")
	}
	if err := fs.Remove(fs.Root(), "x"); err == nil {
		t.Fatalf("Remove: want error, got nil")
	}
}

func TestReaddirListsTopLevelEntries(t *testing.T) {
	archive := buildArchive([]entry{
		{name: "a", mode: modeFmtReg | 0644, data: []byte("a")},
		{name: "b", mode: modeFmtReg | 0644, data: []byte("b")},
	})
	fs, err := New(bytes.NewReader(archive))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	entries, err := fs.Readdir(fs.Root())
	if err != nil {
		t.Fatalf("Readdir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Readdir returned %d entries, want 2", len(entries))
	}
}

func TestSymlinkReadLink(t *testing.T) {
	archive := buildArchive([]entry{
		{name: "lnk", mode: modeFmtLnk | 0777, data: []byte("/bin/init")},
	})
	fs, err := New(bytes.NewReader(archive))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	lnk, err := fs.Lookup(fs.Root(), "lnk")
	if err != nil {
		t.Fatalf("Lookup lnk: %v", err)
	}
	target, err := fs.ReadLink(lnk)
	if err != nil {
		t.Fatalf("ReadLink: %v", err)
	}
	if target != "/bin/init" {
		t.Fatalf("ReadLink = %q, want %q", target, "/bin/init")
	}
}
