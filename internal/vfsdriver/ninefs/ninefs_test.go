package ninefs

import (
	"testing"

	"github.com/petitstrawberry/Scarlet/internal/kernerr"
	"github.com/petitstrawberry/Scarlet/internal/vfs"
)

func TestEveryOperationReturnsUnsupportedProtocol(t *testing.T) {
	fs := New("9p://example.invalid")
	root := fs.Root()

	cases := []error{
		func() error { _, err := fs.Lookup(root, "x"); return err }(),
		func() error { _, err := fs.Readdir(root); return err }(),
		func() error { _, err := fs.Create(root, "x", vfs.KindFile, 0o644); return err }(),
		fs.Remove(root, "x"),
		fs.Rename(root, "x", root, "y"),
		func() error { _, err := fs.Open(root, vfs.OpenFlags{Read: true}); return err }(),
		func() error { _, err := fs.Metadata(root); return err }(),
	}

	for i, err := range cases {
		if err == nil {
			t.Fatalf("case %d: got nil error, want UnsupportedProtocol", i)
		}
		if kind, ok := kernerr.KindOf(err); !ok || kind != kernerr.UnsupportedProtocol {
			t.Fatalf("case %d: kind = %v, ok = %v, want UnsupportedProtocol", i, kind, ok)
		}
	}
}

func TestReadOnly(t *testing.T) {
	if !New("9p://example.invalid").ReadOnly() {
		t.Fatalf("ReadOnly() = false, want true")
	}
}
